package typing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type signal struct {
	conversationID string
	typing         bool
}

type recorder struct {
	mu      sync.Mutex
	signals []signal
}

func (r *recorder) EmitTyping(conversationID string, typing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, signal{conversationID, typing})
}

func (r *recorder) all() []signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]signal(nil), r.signals...)
}

type fakeTimer struct {
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeClock struct {
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(_ time.Duration, f func()) Timer {
	t := &fakeTimer{fn: f}
	c.timers = append(c.timers, t)
	return t
}

// fireAll runs every timer callback, including stopped ones, the way a timer
// that already fired before Stop would.
func (c *fakeClock) fireAll() {
	for _, t := range c.timers {
		t.fn()
	}
}

func TestKeystroke_RapidKeystrokesEmitOneStartAndOneStop(t *testing.T) {
	rec := &recorder{}
	clock := &fakeClock{}
	d := NewDebouncer(time.Second, rec, WithAfterFunc(clock.AfterFunc))

	for i := 0; i < 5; i++ {
		d.Keystroke("c1")
	}
	require.Equal(t, []signal{{"c1", true}}, rec.all())
	require.Len(t, clock.timers, 5)

	clock.fireAll()
	clock.fireAll()

	require.Equal(t, []signal{{"c1", true}, {"c1", false}}, rec.all())
	require.False(t, d.Signaling("c1"))
}

func TestStop_EmitsImmediatelyAndDisarms(t *testing.T) {
	rec := &recorder{}
	clock := &fakeClock{}
	d := NewDebouncer(time.Second, rec, WithAfterFunc(clock.AfterFunc))

	d.Keystroke("c1")
	require.True(t, d.Stop("c1"))
	require.False(t, d.Stop("c1"))
	clock.fireAll()

	require.Equal(t, []signal{{"c1", true}, {"c1", false}}, rec.all())
	require.True(t, clock.timers[0].stopped)
}

func TestCancel_DropsWithoutEmitting(t *testing.T) {
	rec := &recorder{}
	clock := &fakeClock{}
	d := NewDebouncer(time.Second, rec, WithAfterFunc(clock.AfterFunc))

	d.Keystroke("c1")
	d.Keystroke("c2")
	d.Cancel("c1")
	d.CancelAll()
	clock.fireAll()

	require.Equal(t, []signal{{"c1", true}, {"c2", true}}, rec.all())
}

func TestKeystroke_ConversationsAreIndependent(t *testing.T) {
	rec := &recorder{}
	clock := &fakeClock{}
	d := NewDebouncer(time.Second, rec, WithAfterFunc(clock.AfterFunc))

	d.Keystroke("c1")
	d.Keystroke("c2")
	clock.timers[0].fn()

	require.Equal(t, []signal{{"c1", true}, {"c2", true}, {"c1", false}}, rec.all())
	require.True(t, d.Signaling("c2"))
}

func TestDebouncer_RealTimerFiresOnce(t *testing.T) {
	rec := &recorder{}
	d := NewDebouncer(20*time.Millisecond, rec)

	d.Keystroke("c1")
	time.Sleep(5 * time.Millisecond)
	d.Keystroke("c1")

	require.Eventually(t, func() bool { return len(rec.all()) == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, []signal{{"c1", true}, {"c1", false}}, rec.all())
}
