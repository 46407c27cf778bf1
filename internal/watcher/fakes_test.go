package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"questwatch/internal/quest"
	"questwatch/internal/render"
	"questwatch/internal/store"
	"sync"
	"time"
)

func page(records ...quest.Record) string {
	markup := "<html><body><main>"
	for _, r := range records {
		markup += fmt.Sprintf(`<a href="%s"><div><h2>%s</h2></div></a>`, r.Href, r.Title)
	}
	return markup + "</main></body></html>"
}

type fakeRenderer struct {
	mutex sync.Mutex

	markup        string
	openErr       error
	renderErr     error
	screenshotErr error
	// block makes Render wait until it is closed or ctx ends.
	block   chan struct{}
	started chan struct{}

	opened      int
	closed      int
	rendered    []string
	screenshots []string
}

func (f *fakeRenderer) Open(ctx context.Context) (render.Session, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened++
	return &fakeSession{r: f}, nil
}

func (f *fakeRenderer) counts() (opened, closed int) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.opened, f.closed
}

type fakeSession struct {
	r *fakeRenderer
}

func (s *fakeSession) Render(ctx context.Context, url string) (string, error) {
	s.r.mutex.Lock()
	s.r.rendered = append(s.r.rendered, url)
	block, started := s.r.block, s.r.started
	s.r.mutex.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", fmt.Errorf("%w: navigate: %w", render.ErrRenderFailure, ctx.Err())
		}
	}

	s.r.mutex.Lock()
	defer s.r.mutex.Unlock()
	if s.r.renderErr != nil {
		return "", s.r.renderErr
	}
	return s.r.markup, nil
}

func (s *fakeSession) Screenshot(path string) error {
	s.r.mutex.Lock()
	defer s.r.mutex.Unlock()
	if s.r.screenshotErr != nil {
		return s.r.screenshotErr
	}
	s.r.screenshots = append(s.r.screenshots, path)
	return os.WriteFile(path, []byte("png"), 0644)
}

func (s *fakeSession) Close() error {
	s.r.mutex.Lock()
	defer s.r.mutex.Unlock()
	s.r.closed++
	return nil
}

type sentMessage struct {
	destination string
	text        string
}

type fakeNotifier struct {
	mutex sync.Mutex
	err   error
	sent  []sentMessage
}

func (f *fakeNotifier) Send(ctx context.Context, destination, text string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{destination: destination, text: text})
	return nil
}

func (f *fakeNotifier) messages() []sentMessage {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeNotifier) setErr(err error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.err = err
}

type event struct {
	subject string
	data    any
}

type fakeSink struct {
	mutex  sync.Mutex
	events []event
}

func (f *fakeSink) Publish(ctx context.Context, subject string, data any) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.events = append(f.events, event{subject: subject, data: data})
	return nil
}

func (f *fakeSink) Close() error { return nil }

func (f *fakeSink) subjects() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	var out []string
	for _, e := range f.events {
		out = append(out, e.subject)
	}
	return out
}

// brokenStore fails every operation.
type brokenStore struct{}

var errConnRefused = errors.New("connection refused")

func (brokenStore) Exists(context.Context, string) (bool, error) {
	return false, fmt.Errorf("%w: exists: %w", store.ErrUnavailable, errConnRefused)
}

func (brokenStore) Insert(context.Context, quest.Record) error {
	return fmt.Errorf("%w: insert: %w", store.ErrUnavailable, errConnRefused)
}

func (brokenStore) InsertIfAbsent(context.Context, quest.Record) (bool, error) {
	return false, fmt.Errorf("%w: insert: %w", store.ErrUnavailable, errConnRefused)
}

func (brokenStore) Get(context.Context, string) (quest.Record, error) {
	return quest.Record{}, fmt.Errorf("%w: get: %w", store.ErrUnavailable, errConnRefused)
}

func (brokenStore) List(context.Context) ([]quest.Record, error) {
	return nil, fmt.Errorf("%w: list: %w", store.ErrUnavailable, errConnRefused)
}

func (brokenStore) Close() error { return nil }

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time           { return c.now }
func (c fixedClock) Location() *time.Location { return time.UTC }

type fakeCron struct {
	mutex    sync.Mutex
	spec     string
	callback func()
	stopped  bool
}

func (c *fakeCron) Cron(spec string, callback func()) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.spec = spec
	c.callback = callback
	return nil
}

func (c *fakeCron) Stop() context.Context {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.stopped = true
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

func (c *fakeCron) fire() {
	c.mutex.Lock()
	callback := c.callback
	c.mutex.Unlock()
	callback()
}
