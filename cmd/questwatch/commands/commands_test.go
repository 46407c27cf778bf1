package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"questwatch/internal/quest"
	"questwatch/internal/store"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runContext(t, context.Background(), args...)
}

func runContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	// a nil slice makes cobra fall back to os.Args
	rootCmd.SetArgs(append([]string{}, args...))
	err := rootCmd.ExecuteContext(ctx)
	return out.String(), err
}

func workspace(t *testing.T, config string) string {
	t.Helper()
	for _, key := range []string{"STORE_URL", "MONGO_URI", "TELEGRAM_TOKEN", "CHAT_ID", "QUESTS_URL", "TELEGRAM_API_URL", "RENDER_ENGINE", "DISABLE_LISTENER", "STATUS_ADDR"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json5"), []byte(config), 0644))
	return dir
}

func TestList(t *testing.T) {
	dir := workspace(t, `{}`)
	dbPath := filepath.Join(dir, "quests.db")
	t.Setenv("STORE_URL", "sqlite:"+dbPath)

	s, err := store.OpenSQLite(context.Background(), dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Insert(context.Background(), quest.Record{ID: "q1", Title: "Quest One", Href: "/v2/quests/q1"}))
	require.NoError(t, s.Close())

	out, err := run(t, "list")
	require.NoError(t, err)
	require.Contains(t, out, "Quest One")
	require.Contains(t, out, "https://app.layer3.xyz/v2/quests/q1")
	require.Contains(t, out, "1 quests")
	require.NotContains(t, out, "1 QUESTS")

	out, err = run(t, "list", "q1", "q404")
	require.NoError(t, err)
	require.Contains(t, out, "Quest One")
	require.Contains(t, out, `quest "q404" has not been seen`)
}

func TestCheck(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<a href="/v2/quests/q1"><h2>Quest One</h2></a>
			<a href="/v2/quests/q2"></a>
			<a href="/profile">me</a>
		</body></html>`))
	}))
	defer site.Close()

	var mutex sync.Mutex
	var sent []map[string]string
	bot := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		mutex.Lock()
		sent = append(sent, body)
		mutex.Unlock()
		w.Header().Set("content-type", "application/json")
		w.Write([]byte(`{"ok":true,"result":{"message_id":1,"chat":{"id":7}}}`))
	}))
	defer bot.Close()

	dir := workspace(t, `{
		render: {engine: "http", settle_delay: "0s"},
		telegram: {token: "t0k", chat_id: "7"},
	}`)
	t.Setenv("STORE_URL", "sqlite:"+filepath.Join(dir, "quests.db"))
	t.Setenv("QUESTS_URL", site.URL+"/search")
	t.Setenv("TELEGRAM_API_URL", bot.URL)

	out, err := run(t, "check")
	require.NoError(t, err)
	require.Contains(t, out, "Quest One")
	require.Contains(t, out, "1 new, 1 notified")
	require.Contains(t, out, "1 found")

	mutex.Lock()
	require.Len(t, sent, 1)
	require.Equal(t, "7", sent[0]["chat_id"])
	require.Equal(t, "🎮 New quest!\n\n📌 Title: Quest One\n🔗 Link: https://app.layer3.xyz/v2/quests/q1", sent[0]["text"])
	mutex.Unlock()

	out, err = run(t, "check")
	require.NoError(t, err)
	require.Contains(t, out, "0 new, 0 notified")
}

func TestCheckFailure(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer site.Close()

	dir := workspace(t, `{render: {engine: "http", settle_delay: "0s"}}`)
	t.Setenv("STORE_URL", "sqlite:"+filepath.Join(dir, "quests.db"))
	t.Setenv("QUESTS_URL", site.URL)

	_, err := run(t, "check")
	require.ErrorContains(t, err, "check failed during render")
}

func TestCheckWithoutStore(t *testing.T) {
	workspace(t, `{render: {engine: "http", settle_delay: "0s"}}`)

	_, err := run(t, "check")
	require.ErrorContains(t, err, "check failed during diff")
	require.ErrorIs(t, err, store.ErrUnavailable)
}

func TestDaemonSurvivesStoreOutage(t *testing.T) {
	var mutex sync.Mutex
	renders := 0
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mutex.Lock()
		renders++
		mutex.Unlock()
		w.Write([]byte(`<a href="/v2/quests/q1"><h2>Quest One</h2></a>`))
	}))
	defer site.Close()

	workspace(t, `{render: {engine: "http", settle_delay: "0s"}}`)
	t.Setenv("STORE_URL", "redis://127.0.0.1:1/0")
	t.Setenv("QUESTS_URL", site.URL)
	t.Setenv("DISABLE_LISTENER", "true")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	started := time.Now()
	_, err := runContext(t, ctx)
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(started), 900*time.Millisecond, "the daemon runs until its context ends")

	mutex.Lock()
	require.Equal(t, 0, renders, "a cycle without a store stops before rendering")
	mutex.Unlock()
}
