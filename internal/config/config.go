// Package config assembles the daemon settings from config.json5, the
// environment and a .env file.
package config

import (
	"fmt"
	"os"
	"questwatch/internal/quest"
	"questwatch/internal/render"
	"questwatch/internal/watcher"
	"questwatch/lib/configutil"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Telegram struct {
	Token  string `json:"token"`
	ChatID string `json:"chat_id"`
	// BaseURL points at a Bot API server, defaults to api.telegram.org.
	BaseURL string `json:"base_url"`
	// DisableListener turns off the chat id echo replies.
	DisableListener bool `json:"disable_listener"`
}

type Render struct {
	// Engine is one of playwright, rod or http.
	Engine            string `json:"engine"`
	UserAgent         string `json:"user_agent"`
	NavigationTimeout string `json:"navigation_timeout"`
	SettleDelay       string `json:"settle_delay"`
	Headful           bool   `json:"headful"`
	Sandbox           bool   `json:"sandbox"`
}

type Extract struct {
	PathMarker      string `json:"path_marker"`
	HeadingSelector string `json:"heading_selector"`
}

// Email is optional, mails are only sent when Addr and To are set.
type Email struct {
	Addr     string `json:"addr"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
	To       string `json:"to"`
}

type Config struct {
	// StoreURL selects the store backend by scheme, see store.Open.
	StoreURL string   `json:"store_url"`
	Telegram Telegram `json:"telegram"`
	Email    Email    `json:"email"`
	Render   Render   `json:"render"`
	Extract  Extract  `json:"extract"`

	QuestsURL    string `json:"quests_url"`
	QuestsOrigin string `json:"quests_origin"`
	// CheckInterval is a duration like "10m".
	CheckInterval  string `json:"check_interval"`
	CycleTimeout   string `json:"cycle_timeout"`
	ScreenshotPath string `json:"screenshot_path"`
	Timezone       string `json:"timezone"`

	NatsURL    string `json:"nats_url"`
	StatusAddr string `json:"status_addr"`
	LogLevel   string `json:"log_level"`
	// HttpDumpDir receives every bot api exchange when debug logging is on.
	HttpDumpDir string `json:"http_dump_dir"`
}

// Load reads path (a missing file is fine), then .env, then overlays the
// environment and fills defaults.
func Load(path string) (Config, error) {
	config, err := configutil.ReadConfig[Config](path)
	if err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	// existing environment variables win over .env
	err = godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read .env: %w", err)
	}

	config.ApplyEnv(os.Getenv)
	config.fillDefaults()
	return config, config.Validate()
}

// ApplyEnv overrides fields with every non-empty variable returned by getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(field *string, keys ...string) {
		for _, key := range keys {
			if v := strings.TrimSpace(getenv(key)); v != "" {
				*field = v
				return
			}
		}
	}
	setBool := func(field *bool, key string) {
		v, err := strconv.ParseBool(strings.TrimSpace(getenv(key)))
		if err == nil {
			*field = v
		}
	}

	set(&c.StoreURL, "STORE_URL", "MONGO_URI")
	set(&c.Telegram.Token, "TELEGRAM_TOKEN")
	set(&c.Telegram.ChatID, "CHAT_ID")
	set(&c.Telegram.BaseURL, "TELEGRAM_API_URL")
	setBool(&c.Telegram.DisableListener, "DISABLE_LISTENER")
	set(&c.QuestsURL, "QUESTS_URL")
	set(&c.QuestsOrigin, "QUESTS_ORIGIN")
	set(&c.CheckInterval, "CHECK_INTERVAL")
	set(&c.CycleTimeout, "CYCLE_TIMEOUT")
	set(&c.ScreenshotPath, "SCREENSHOT_PATH")
	set(&c.Timezone, "TIMEZONE")
	set(&c.Render.Engine, "RENDER_ENGINE")
	setBool(&c.Render.Headful, "RENDER_HEADFUL")
	setBool(&c.Render.Sandbox, "RENDER_SANDBOX")
	set(&c.NatsURL, "NATS_URL")
	set(&c.StatusAddr, "STATUS_ADDR")
	set(&c.LogLevel, "LOG_LEVEL")
	set(&c.HttpDumpDir, "HTTP_DUMP_DIR")
	set(&c.Email.Addr, "SMTP_ADDR")
	set(&c.Email.Username, "SMTP_USERNAME")
	set(&c.Email.Password, "SMTP_PASSWORD")
	set(&c.Email.From, "SMTP_FROM")
	set(&c.Email.To, "EMAIL_TO")
}

func (c *Config) fillDefaults() {
	if c.QuestsURL == "" {
		c.QuestsURL = quest.DefaultSearchURL
	}
	if c.QuestsOrigin == "" {
		c.QuestsOrigin = quest.DefaultOrigin
	}
	if c.CheckInterval == "" {
		c.CheckInterval = "10m"
	}
	if c.CycleTimeout == "" {
		c.CycleTimeout = watcher.DefaultCycleTimeout.String()
	}
	if c.ScreenshotPath == "" {
		c.ScreenshotPath = watcher.DefaultScreenshotPath
	}
	if c.Render.Engine == "" {
		c.Render.Engine = render.EnginePlaywright
	}
	if c.Render.NavigationTimeout == "" {
		c.Render.NavigationTimeout = render.DefaultNavigationTimeout.String()
	}
	if c.Render.SettleDelay == "" {
		c.Render.SettleDelay = render.DefaultSettleDelay.String()
	}
}

// Validate only checks what the daemon cannot start without parsing. A missing
// token, chat id or store url shows up when it is first used.
func (c Config) Validate() error {
	for name, value := range map[string]string{
		"check_interval":            c.CheckInterval,
		"cycle_timeout":             c.CycleTimeout,
		"render.navigation_timeout": c.Render.NavigationTimeout,
		"render.settle_delay":       c.Render.SettleDelay,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
		if d < 0 {
			return fmt.Errorf("invalid %s: %s is negative", name, value)
		}
	}
	interval, _ := time.ParseDuration(c.CheckInterval)
	if interval == 0 {
		return fmt.Errorf("invalid check_interval: must be positive")
	}
	switch c.Render.Engine {
	case render.EnginePlaywright, render.EngineRod, render.EngineHTTP:
	default:
		return fmt.Errorf("invalid render.engine %q", c.Render.Engine)
	}
	return nil
}

func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// Schedule is the cron spec of the check interval.
func (c Config) Schedule() string {
	return "@every " + mustDuration(c.CheckInterval).String()
}

func (c Config) RenderOptions() render.Options {
	return render.Options{
		UserAgent:         c.Render.UserAgent,
		NavigationTimeout: mustDuration(c.Render.NavigationTimeout),
		SettleDelay:       mustDuration(c.Render.SettleDelay),
		Headful:           c.Render.Headful,
		Sandbox:           c.Render.Sandbox,
	}
}

func (c Config) WatcherOptions() watcher.Options {
	return watcher.Options{
		URL:            c.QuestsURL,
		Origin:         c.QuestsOrigin,
		Destination:    c.Telegram.ChatID,
		Schedule:       c.Schedule(),
		CycleTimeout:   mustDuration(c.CycleTimeout),
		ScreenshotPath: c.ScreenshotPath,
	}
}
