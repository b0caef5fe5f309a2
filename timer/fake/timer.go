// Package fake implements a fake physical timer peripheral for tests and
// simulation. The counter is advanced manually, or derived from a clock for
// wall-time simulation, and every alarm programming call is recorded so
// tests can check what the multiplexer armed.
package fake

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/mcu/timer"
)

// A Timer is a fake timer.PhysicalTimer.
//
// The injectable *Err fields, when set, make the corresponding method fail.
type Timer struct {
	CounterErr   error
	AlarmErr     error
	SetAlarmErr  error
	SubscribeErr error

	mu             sync.Mutex
	freq           uint64
	counter        timer.Tick
	alarm          timer.Tick
	alarmEnabled   bool
	interruptArmed bool
	running        bool
	isr            func()

	clock     clock.Clock
	clockMark time.Time

	setAlarmCalls    []timer.Tick
	enableAlarmCalls []bool
}

// NewTimer returns a fake timer whose counter is advanced manually with
// Advance.
func NewTimer(tickHz uint64) *Timer {
	return &Timer{freq: tickHz}
}

// NewClockTimer returns a fake timer whose counter tracks the given clock
// while the counter is enabled. Pair it with a mock clock in tests or a real
// clock in simulation; call Tick periodically to let due alarms fire.
func NewClockTimer(tickHz uint64, c clock.Clock) *Timer {
	return &Timer{freq: tickHz, clock: c}
}

// Counter returns the current tick count.
func (t *Timer) Counter() (timer.Tick, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.CounterErr != nil {
		return 0, t.CounterErr
	}
	t.syncToClock()
	return t.counter, nil
}

// SetCounter overwrites the tick count.
func (t *Timer) SetCounter(tick timer.Tick) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counter = tick
	if t.clock != nil {
		t.clockMark = t.clock.Now()
	}
	t.maybeFire()
	return nil
}

// Alarm returns the armed compare value.
func (t *Timer) Alarm() (timer.Tick, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.AlarmErr != nil {
		return 0, t.AlarmErr
	}
	return t.alarm, nil
}

// SetAlarm arms the compare register. The call is recorded.
func (t *Timer) SetAlarm(tick timer.Tick) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.SetAlarmErr != nil {
		return t.SetAlarmErr
	}
	t.alarm = tick
	t.setAlarmCalls = append(t.setAlarmCalls, tick)
	t.maybeFire()
	return nil
}

// EnableAlarm enables or disables compare matching. The call is recorded.
func (t *Timer) EnableAlarm(enable bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.alarmEnabled = enable
	t.enableAlarmCalls = append(t.enableAlarmCalls, enable)
	t.maybeFire()
	return nil
}

// EnableInterrupt arms the interrupt.
func (t *Timer) EnableInterrupt() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interruptArmed = true
	t.maybeFire()
	return nil
}

// DisableInterrupt disarms the interrupt.
func (t *Timer) DisableInterrupt() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interruptArmed = false
	return nil
}

// Enable starts or stops the counter.
func (t *Timer) Enable(enable bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if enable && !t.running && t.clock != nil {
		t.clockMark = t.clock.Now()
	}
	if !enable && t.running {
		t.syncToClock()
	}
	t.running = enable
	t.maybeFire()
	return nil
}

// Subscribe installs the interrupt service routine.
func (t *Timer) Subscribe(isr func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.SubscribeErr != nil {
		return t.SubscribeErr
	}
	if t.isr != nil {
		return errors.New("interrupt subscription slot already taken")
	}
	t.isr = isr
	return nil
}

// Unsubscribe removes the interrupt service routine.
func (t *Timer) Unsubscribe() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.isr = nil
	return nil
}

// TickFrequency returns the configured tick frequency.
func (t *Timer) TickFrequency() uint64 {
	return t.freq
}

// Advance moves the counter forward by the given number of ticks, firing the
// interrupt if the alarm is crossed. Only meaningful on manually advanced
// timers.
func (t *Timer) Advance(ticks timer.Tick) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		t.counter += ticks
	}
	t.maybeFire()
}

// Tick re-derives the counter from the clock and fires the interrupt if an
// alarm became due. Only meaningful on clock-backed timers.
func (t *Timer) Tick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.syncToClock()
	t.maybeFire()
}

// Running reports whether the counter is enabled.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// AlarmArmed reports whether compare matching is enabled.
func (t *Timer) AlarmArmed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.alarmEnabled
}

// InterruptArmed reports whether the interrupt is armed.
func (t *Timer) InterruptArmed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interruptArmed
}

// SetAlarmCalls returns every value armed with SetAlarm, in order.
func (t *Timer) SetAlarmCalls() []timer.Tick {
	t.mu.Lock()
	defer t.mu.Unlock()
	calls := make([]timer.Tick, len(t.setAlarmCalls))
	copy(calls, t.setAlarmCalls)
	return calls
}

// EnableAlarmCalls returns every EnableAlarm argument, in order.
func (t *Timer) EnableAlarmCalls() []bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	calls := make([]bool, len(t.enableAlarmCalls))
	copy(calls, t.enableAlarmCalls)
	return calls
}

// syncToClock folds clock time elapsed since the last mark into the counter.
// Call with the mutex held.
func (t *Timer) syncToClock() {
	if t.clock == nil || !t.running {
		return
	}
	now := t.clock.Now()
	elapsed := now.Sub(t.clockMark)
	if elapsed <= 0 {
		return
	}
	t.counter += timer.Tick(uint64(elapsed.Nanoseconds()) * t.freq / uint64(time.Second))
	t.clockMark = now
}

// maybeFire invokes the interrupt service routine when the counter has
// reached an armed alarm. Real compare hardware auto-disarms on match; the
// multiplexer re-enables the alarm when it re-arms. Call with the mutex
// held.
func (t *Timer) maybeFire() {
	if !t.running || !t.alarmEnabled || !t.interruptArmed || t.isr == nil {
		return
	}
	if t.counter < t.alarm {
		return
	}
	t.alarmEnabled = false
	t.isr()
}
