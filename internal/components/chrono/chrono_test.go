package chrono

import (
	"questwatch/internal/components/telemetry"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStandardImpl(t *testing.T) {
	impl, err := NewStandardImpl("")
	require.NoError(t, err)
	require.Equal(t, time.Local, impl.Location())
	require.WithinDuration(t, time.Now(), impl.Now(), time.Second)

	impl, err = NewStandardImpl("UTC")
	require.NoError(t, err)
	require.Equal(t, time.UTC.String(), impl.Now().Location().String())

	_, err = NewStandardImpl("Nowhere/Invalid")
	require.Error(t, err)

	require.Equal(t, time.Local, StandardImpl{}.Location())
}

func TestStandardCron(t *testing.T) {
	rec := &telemetry.Recorder{}
	c := NewStandardCron(rec, time.UTC)

	ran := make(chan struct{}, 1)
	err := c.Cron("@every 1s", func() {
		select {
		case ran <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)

	select {
	case <-ran:
	case <-time.After(time.Second * 5):
		t.Fatal("cron job did not run")
	}

	select {
	case <-c.Stop().Done():
	case <-time.After(time.Second * 5):
		t.Fatal("cron did not stop")
	}

	require.Error(t, c.Cron("not a spec", func() {}))
}

func TestCronLogger(t *testing.T) {
	rec := &telemetry.Recorder{}
	logger := cronLogger{tel: rec}

	logger.Info("schedule", "entry", 1, "dangling")
	logger.Error(errAssert{}, "run", "entry", 1)

	debug := rec.Reports("debug")
	require.Len(t, debug, 1)
	require.Equal(t, "cron: schedule", debug[0].ID)
	require.Equal(t, []any{"entry: 1"}, debug[0].Params)

	broken := rec.Reports("broken")
	require.Len(t, broken, 1)
	require.Equal(t, "cron", broken[0].ID)
	require.ErrorIs(t, broken[0].Params[0].(error), errAssert{})
}

type errAssert struct{}

func (errAssert) Error() string { return "assert" }
