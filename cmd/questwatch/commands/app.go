package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"questwatch/internal/components/chrono"
	"questwatch/internal/components/telemetry"
	"questwatch/internal/config"
	"questwatch/internal/events"
	"questwatch/internal/extract"
	"questwatch/internal/notify"
	"questwatch/internal/render"
	"questwatch/internal/store"
	"questwatch/internal/watcher"
	"questwatch/lib/restyutil"
)

// app is the application context, it owns every long lived handle.
type app struct {
	clock    chrono.StandardImpl
	tel      telemetry.API
	store    store.Store
	events   events.Sink
	telegram *notify.Telegram
	watcher  *watcher.Watcher
}

func newApp(cfg config.Config) (*app, error) {
	clock, err := chrono.NewStandardImpl(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	tel := telemetry.SlogAPI{}

	// connecting is left to the first cycle, an unreachable store only
	// fails the cycles run while it is down
	s := store.NewLazy(func(ctx context.Context) (store.Store, error) {
		return store.Open(ctx, cfg.StoreURL)
	})
	a := &app{clock: clock, tel: tel, store: s, events: events.Noop{}}

	renderer, err := render.New(cfg.Render.Engine, cfg.RenderOptions())
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.NatsURL != "" {
		sink, err := events.ConnectNATS(cfg.NatsURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.events = sink
	}

	telegramOpts := notify.TelegramOptions{BaseURL: cfg.Telegram.BaseURL}
	if cfg.HttpDumpDir != "" {
		dump, err := restyutil.NewFilesystemOutput(cfg.HttpDumpDir)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create http dump dir: %w", err)
		}
		telegramOpts.Dump = dump
	}
	a.telegram = notify.NewTelegram(cfg.Telegram.Token, telegramOpts)

	var notifier notify.Notifier = a.telegram
	if cfg.Email.Addr != "" && cfg.Email.To != "" {
		slog.Info("also announcing quests by email", "to", cfg.Email.To)
		notifier = notify.Multi{
			{Notifier: a.telegram},
			{
				Notifier: notify.NewEmail(notify.EmailOptions{
					Addr:     cfg.Email.Addr,
					Username: cfg.Email.Username,
					Password: cfg.Email.Password,
					From:     cfg.Email.From,
				}),
				Destination: cfg.Email.To,
			},
		}
	}

	a.watcher = watcher.New(watcher.Deps{
		Store:    s,
		Renderer: renderer,
		Extractor: extract.New(extract.Options{
			PathMarker:      cfg.Extract.PathMarker,
			HeadingSelector: cfg.Extract.HeadingSelector,
		}),
		Notifier:  notifier,
		Events:    a.events,
		Telemetry: tel,
		Clock:     clock,
	}, cfg.WatcherOptions())

	return a, nil
}

func (a *app) Close() error {
	return errors.Join(a.events.Close(), a.store.Close())
}
