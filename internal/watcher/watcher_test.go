package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"questwatch/internal/components/telemetry"
	"questwatch/internal/events"
	"questwatch/internal/extract"
	"questwatch/internal/notify"
	"questwatch/internal/quest"
	"questwatch/internal/render"
	"questwatch/internal/store"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var (
	q1 = quest.Record{ID: "q1", Title: "Quest One", Href: "/v2/quests/q1"}
	q2 = quest.Record{ID: "q2", Title: "Quest Two", Href: "/v2/quests/q2"}
)

type harness struct {
	renderer *fakeRenderer
	store    store.Store
	notifier *fakeNotifier
	sink     *fakeSink
	tel      *telemetry.Recorder
	watcher  *Watcher
	opts     Options
}

func newHarness(t *testing.T, markup string) *harness {
	t.Helper()
	h := &harness{
		renderer: &fakeRenderer{markup: markup},
		store:    store.NewMemory(),
		notifier: &fakeNotifier{},
		sink:     &fakeSink{},
		tel:      &telemetry.Recorder{},
		opts: Options{
			Destination:    "-100200",
			ScreenshotPath: filepath.Join(t.TempDir(), "error.png"),
		},
	}
	h.build()
	return h
}

func (h *harness) build() {
	h.watcher = New(Deps{
		Store:     h.store,
		Renderer:  h.renderer,
		Extractor: extract.New(extract.Options{}),
		Notifier:  h.notifier,
		Events:    h.sink,
		Telemetry: h.tel,
		Clock:     fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}, h.opts)
}

func (h *harness) stored(t *testing.T) []quest.Record {
	t.Helper()
	list, err := h.store.List(context.Background())
	require.NoError(t, err)
	return list
}

func TestNewQuestIsStoredAndAnnounced(t *testing.T) {
	h := newHarness(t, page(q1))

	result := h.watcher.Check(context.Background())
	require.NoError(t, result.Err)
	require.Empty(t, result.FailedStage)
	require.Equal(t, 1, result.Candidates)
	require.Equal(t, []quest.Record{q1}, result.New)
	require.Equal(t, 1, result.Notified)
	require.NotEmpty(t, result.ID)
	require.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), result.Start)

	require.Equal(t, []quest.Record{q1}, h.stored(t))
	require.Equal(t, []sentMessage{{
		destination: "-100200",
		text:        "🎮 New quest!\n\n📌 Title: Quest One\n🔗 Link: https://app.layer3.xyz/v2/quests/q1",
	}}, h.notifier.messages())

	require.Equal(t, []string{quest.DefaultSearchURL}, h.renderer.rendered)
	opened, closed := h.renderer.counts()
	require.Equal(t, 1, opened)
	require.Equal(t, 1, closed)
	require.Empty(t, h.renderer.screenshots)

	require.Equal(t, []string{events.SubjectQuestDiscovered, events.SubjectCycleCompleted}, h.sink.subjects())
}

func TestKnownQuestIsIgnored(t *testing.T) {
	h := newHarness(t, page(q1))
	require.NoError(t, h.store.Insert(context.Background(), q1))

	result := h.watcher.Check(context.Background())
	require.NoError(t, result.Err)
	require.Equal(t, 1, result.Candidates)
	require.Empty(t, result.New)
	require.Empty(t, h.notifier.messages())
	require.Equal(t, []quest.Record{q1}, h.stored(t))
}

func TestHeadinglessListingIsDiscarded(t *testing.T) {
	h := newHarness(t, `<a href="/v2/quests/q9"><span>no heading</span></a><a href="/v2/quests/q8"><h2>  </h2></a>`)

	result := h.watcher.Check(context.Background())
	require.NoError(t, result.Err)
	require.Equal(t, 0, result.Candidates)
	require.Empty(t, h.stored(t))
	require.Empty(t, h.notifier.messages())
}

func TestRenderTimeout(t *testing.T) {
	h := newHarness(t, page(q1))
	h.renderer.renderErr = fmt.Errorf("%w: navigate: %w", render.ErrRenderFailure, context.DeadlineExceeded)

	result := h.watcher.Check(context.Background())
	require.ErrorIs(t, result.Err, render.ErrRenderFailure)
	require.Equal(t, StageRender, result.FailedStage)
	require.Equal(t, h.opts.ScreenshotPath, result.Screenshot)
	require.FileExists(t, h.opts.ScreenshotPath)

	opened, closed := h.renderer.counts()
	require.Equal(t, 1, opened)
	require.Equal(t, 1, closed)
	require.Empty(t, h.stored(t))
	require.Empty(t, h.notifier.messages())

	broken := h.tel.Reports("broken")
	require.Len(t, broken, 1)
	require.Equal(t, "watcher.cycle", broken[0].ID)

	// the next cycle runs normally
	h.renderer.mutex.Lock()
	h.renderer.renderErr = nil
	h.renderer.mutex.Unlock()

	result = h.watcher.Check(context.Background())
	require.NoError(t, result.Err)
	require.Equal(t, []quest.Record{q1}, h.stored(t))
	require.Len(t, h.notifier.messages(), 1)

	stats := h.watcher.Stats()
	require.EqualValues(t, 2, stats.Cycles)
	require.EqualValues(t, 1, stats.Failures)
	require.EqualValues(t, 1, stats.NewTotal)
	require.Equal(t, result.ID, stats.Last.ID)
}

func TestCycleTimeout(t *testing.T) {
	h := newHarness(t, page(q1))
	h.renderer.block = make(chan struct{})
	h.opts.CycleTimeout = time.Millisecond * 50
	h.build()

	result := h.watcher.Check(context.Background())
	require.ErrorIs(t, result.Err, context.DeadlineExceeded)
	require.Equal(t, StageRender, result.FailedStage)
	_, closed := h.renderer.counts()
	require.Equal(t, 1, closed)
}

func TestOpenFailureTakesNoScreenshot(t *testing.T) {
	h := newHarness(t, page(q1))
	h.renderer.openErr = fmt.Errorf("%w: launch browser: %w", render.ErrRenderFailure, errors.New("chromium not found"))

	result := h.watcher.Check(context.Background())
	require.ErrorIs(t, result.Err, render.ErrRenderFailure)
	require.Equal(t, StageRender, result.FailedStage)
	require.Empty(t, result.Screenshot)
	require.NoFileExists(t, h.opts.ScreenshotPath)
}

func TestScreenshotFailureIsAWarning(t *testing.T) {
	h := newHarness(t, page(q1))
	h.renderer.renderErr = fmt.Errorf("%w: page crashed", render.ErrRenderFailure)
	h.renderer.screenshotErr = errors.New("target closed")

	result := h.watcher.Check(context.Background())
	require.ErrorIs(t, result.Err, render.ErrRenderFailure)
	require.Empty(t, result.Screenshot)

	warnings := h.tel.Reports("warning")
	require.Len(t, warnings, 1)
	require.Equal(t, "watcher.screenshot", warnings[0].ID)
}

func TestStoreUnavailable(t *testing.T) {
	h := newHarness(t, page(q1))
	h.store = brokenStore{}
	h.build()

	result := h.watcher.Check(context.Background())
	require.ErrorIs(t, result.Err, store.ErrUnavailable)
	require.Equal(t, StageDiff, result.FailedStage)
	require.Equal(t, h.opts.ScreenshotPath, result.Screenshot)
	require.Empty(t, h.notifier.messages())
	_, closed := h.renderer.counts()
	require.Equal(t, 1, closed)
}

func TestStoreOutageFailsOnlyThatCycle(t *testing.T) {
	h := newHarness(t, page(q1))
	memory := store.NewMemory()
	var mutex sync.Mutex
	down := true
	h.store = store.NewLazy(func(ctx context.Context) (store.Store, error) {
		mutex.Lock()
		defer mutex.Unlock()
		if down {
			return nil, errConnRefused
		}
		return memory, nil
	})
	h.build()

	result := h.watcher.Check(context.Background())
	require.ErrorIs(t, result.Err, store.ErrUnavailable)
	require.ErrorIs(t, result.Err, errConnRefused)
	require.Equal(t, StageDiff, result.FailedStage)
	require.Empty(t, h.notifier.messages())
	opened, _ := h.renderer.counts()
	require.Equal(t, 0, opened)

	mutex.Lock()
	down = false
	mutex.Unlock()

	result = h.watcher.Check(context.Background())
	require.NoError(t, result.Err)
	require.Equal(t, []quest.Record{q1}, result.New)
	require.Len(t, h.notifier.messages(), 1)

	stats := h.watcher.Stats()
	require.EqualValues(t, 2, stats.Cycles)
	require.EqualValues(t, 1, stats.Failures)
}

func TestNotifyFailureIsNotReplayed(t *testing.T) {
	h := newHarness(t, page(q1, q2))
	h.notifier.setErr(fmt.Errorf("%w: telegram send: %w", notify.ErrNotifyFailure, errors.New("bad gateway")))

	result := h.watcher.Check(context.Background())
	require.ErrorIs(t, result.Err, notify.ErrNotifyFailure)
	require.Equal(t, StageNotify, result.FailedStage)
	require.Equal(t, []quest.Record{q1}, result.New)
	require.Equal(t, 0, result.Notified)
	// q1 stays seen, q2 was never reached
	require.Equal(t, []quest.Record{q1}, h.stored(t))

	h.notifier.setErr(nil)
	result = h.watcher.Check(context.Background())
	require.NoError(t, result.Err)
	require.Equal(t, []quest.Record{q2}, result.New)

	sent := h.notifier.messages()
	require.Len(t, sent, 1)
	require.Contains(t, sent[0].text, "Quest Two")
}

func TestRepeatedCyclesAnnounceOnce(t *testing.T) {
	h := newHarness(t, page(q1, q2, q1))

	first := h.watcher.Check(context.Background())
	second := h.watcher.Check(context.Background())
	require.NoError(t, first.Err)
	require.NoError(t, second.Err)

	require.Equal(t, 3, first.Candidates)
	require.Equal(t, []quest.Record{q1, q2}, first.New)
	require.Empty(t, second.New)
	require.Len(t, h.notifier.messages(), 2)
	require.Equal(t, []quest.Record{q1, q2}, h.stored(t))
}

func TestOverlappingChecksAnnounceOnce(t *testing.T) {
	h := newHarness(t, page(q1))
	h.renderer.block = make(chan struct{})
	h.renderer.started = make(chan struct{}, 1)

	var wg sync.WaitGroup
	results := make([]Result, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0] = h.watcher.Check(context.Background())
	}()
	<-h.renderer.started

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1] = h.watcher.Check(context.Background())
	}()
	time.Sleep(time.Millisecond * 50)
	close(h.renderer.block)
	wg.Wait()

	require.NoError(t, results[0].Err)
	require.NoError(t, results[1].Err)
	require.Len(t, h.notifier.messages(), 1)
	require.Equal(t, []quest.Record{q1}, h.stored(t))
}

func TestConcurrentWatchersShareOneStore(t *testing.T) {
	shared := store.NewMemory()
	notifier := &fakeNotifier{}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		w := New(Deps{
			Store:     shared,
			Renderer:  &fakeRenderer{markup: page(q1)},
			Extractor: extract.New(extract.Options{}),
			Notifier:  notifier,
			Telemetry: &telemetry.Recorder{},
		}, Options{ScreenshotPath: filepath.Join(t.TempDir(), "error.png")})

		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Check(context.Background())
		}()
	}
	wg.Wait()

	require.Len(t, notifier.messages(), 1)
}

func TestRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(t, page(q1))
	cron := &fakeCron{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- h.watcher.Run(ctx, cron)
	}()

	// the first cycle runs without waiting for the schedule
	require.Eventually(t, func() bool {
		return h.watcher.Stats().Cycles == 1
	}, time.Second*5, time.Millisecond*10)
	require.Equal(t, DefaultSchedule, cron.spec)
	require.Len(t, h.notifier.messages(), 1)

	h.renderer.mutex.Lock()
	h.renderer.markup = page(q1, q2)
	h.renderer.mutex.Unlock()
	cron.fire()
	require.EqualValues(t, 2, h.watcher.Stats().Cycles)
	require.Len(t, h.notifier.messages(), 2)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second * 5):
		t.Fatal("run did not return")
	}
	require.True(t, cron.stopped)
}

type rejectingCron struct{ fakeCron }

func (c *rejectingCron) Cron(spec string, callback func()) error {
	return errors.New("unparseable spec")
}

func TestRunBadSchedule(t *testing.T) {
	h := newHarness(t, page(q1))
	err := h.watcher.Run(context.Background(), &rejectingCron{})
	require.Error(t, err)
	require.EqualValues(t, 0, h.watcher.Stats().Cycles)
}
