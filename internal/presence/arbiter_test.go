package presence

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestArbiterFiresOnceAfterThreshold(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testStart)
	clock := NewClock(fc, 10*time.Second)
	a := NewArbiter(clock)

	fires := 0
	for i := 1; i <= 30; i++ {
		fc.Advance(time.Second)
		if ev, fired := a.Evaluate(); fired {
			fires++
			require.Equal(t, 10, i, "fired too early or too late")
			require.Equal(t, 10*time.Second, ev.IdleDuration)
			require.Equal(t, testStart, ev.LastActivityAt)
			require.Equal(t, CauseClock, ev.Cause)
		}
	}
	require.Equal(t, 1, fires)
	require.Equal(t, StateFired, a.State())
}

func TestArbiterForceNeverDoubleFires(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testStart)
	clock := NewClock(fc, 30*time.Second)
	a := NewArbiter(clock)

	fc.Advance(5 * time.Second)
	ev, fired := a.ForceInactivity()
	require.True(t, fired)
	require.Equal(t, CauseForced, ev.Cause)
	require.GreaterOrEqual(t, ev.IdleDuration, 30*time.Second)
	require.Equal(t, fc.Now().Add(-31*time.Second), ev.LastActivityAt)

	_, fired = a.ForceInactivity()
	require.False(t, fired)
	_, fired = a.Evaluate()
	require.False(t, fired, "tick while fired must not re-emit")

	clock.Reset()
	_, fired = a.ForceInactivity()
	require.True(t, fired, "reset returns the arbiter to active")
}

func TestArbiterWorkIdlePath(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testStart)
	clock := NewClock(fc, 10*time.Minute)
	a := NewArbiter(clock)

	_, fired := a.ReportWorkIdle(9)
	require.False(t, fired)

	ev, fired := a.ReportWorkIdle(10)
	require.True(t, fired)
	require.Equal(t, CauseWorkStatus, ev.Cause)
	require.Equal(t, 10*time.Minute, ev.IdleDuration)

	_, fired = a.ReportWorkIdle(20)
	require.False(t, fired)
}

func TestArbiterResetBeforeEvaluationSuppressesFire(t *testing.T) {
	fc := clockwork.NewFakeClockAt(testStart)
	clock := NewClock(fc, time.Minute)
	a := NewArbiter(clock)

	fc.Advance(time.Minute)
	require.True(t, clock.IsExpired())

	clock.Reset()
	_, fired := a.Evaluate()
	require.False(t, fired)
}
