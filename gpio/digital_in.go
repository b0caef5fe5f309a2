package gpio

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"go.viam.com/mcu/logging"
	"go.viam.com/mcu/timer"
)

// Pending work codes for a digital input, set from interrupt context and
// drained by UpdateInterrupt.
const (
	inNone uint32 = iota
	inExecAndEnablePin
	inEnableTimer
	inTimerReached
	inExecAndUnsubscribePin
)

var errNoTriggerSet = errors.New("no interrupt trigger set on digital input")

// A DigitalIn reads digital inputs from one pin. With a debounce window set,
// an edge only reaches the user callback if the level still matches the
// trigger edge once the window elapses; the window is timed by a logical
// timer on the shared physical timer.
type DigitalIn struct {
	pin      InterruptPin
	timer    *timer.Driver
	notifier *timer.Notifier
	logger   logging.Logger

	edge           Edge
	debounceMicros uint64
	userCallback   func()
	pending        atomic.Uint32
}

// NewDigitalIn wraps an input pin. The timer driver times debounce windows;
// the notifier wakes the application's update loop after an edge.
func NewDigitalIn(td *timer.Driver, pin InterruptPin, notifier *timer.Notifier, logger logging.Logger) *DigitalIn {
	return &DigitalIn{
		pin:      pin,
		timer:    td,
		notifier: notifier,
		logger:   logger,
	}
}

// SetDebounce requires the level to hold for the given number of
// microseconds before the user callback runs.
func (d *DigitalIn) SetDebounce(micros uint64) {
	d.debounceMicros = micros
}

// Get reads the current pin level.
func (d *DigitalIn) Get() (bool, error) {
	return d.pin.Get()
}

// TriggerOnInterrupt runs userCallback on every matching edge, debounced if
// a debounce window is set.
func (d *DigitalIn) TriggerOnInterrupt(edge Edge, userCallback func()) error {
	return d.triggerOnInterrupt(edge, userCallback, func() {
		d.pending.Store(inExecAndEnablePin)
		d.notifier.Notify()
	})
}

// TriggerOnInterruptFirstNTimes is TriggerOnInterrupt limited to the first
// count edges, after which the pin interrupt is unsubscribed.
func (d *DigitalIn) TriggerOnInterruptFirstNTimes(count uint32, edge Edge, userCallback func()) error {
	if count == 0 {
		return nil
	}
	var remaining atomic.Uint32
	remaining.Store(count)
	return d.triggerOnInterrupt(edge, userCallback, func() {
		if remaining.Add(^uint32(0)) == 0 {
			d.pending.Store(inExecAndUnsubscribePin)
		} else {
			d.pending.Store(inExecAndEnablePin)
		}
		d.notifier.Notify()
	})
}

func (d *DigitalIn) triggerOnInterrupt(edge Edge, userCallback, edgeCallback func()) error {
	if err := d.pin.SetInterruptEdge(edge); err != nil {
		return errors.Wrap(err, "couldn't set interrupt edge")
	}
	d.edge = edge
	d.userCallback = userCallback

	if d.debounceMicros > 0 {
		// Drop any debounce timer from an earlier trigger configuration.
		if err := d.timer.Remove(); err != nil {
			return err
		}
		// The edge only starts the debounce timer; the callback decision is
		// made when the timer fires.
		if err := d.timer.InterruptAfter(d.debounceMicros, func() {
			d.pending.Store(inTimerReached)
			d.notifier.Notify()
		}); err != nil {
			return errors.Wrap(err, "couldn't set up debounce timer")
		}
		edgeCallback = func() {
			d.pending.Store(inEnableTimer)
			d.notifier.Notify()
		}
	}

	if err := d.pin.Subscribe(edgeCallback); err != nil {
		return errors.Wrap(err, "couldn't subscribe to pin interrupt")
	}
	return errors.Wrap(d.pin.EnableInterrupt(), "couldn't enable pin interrupt")
}

// timerReached checks that the level still corresponds to the trigger edge;
// if it does, the edge survived the debounce window and the user callback
// runs.
func (d *DigitalIn) timerReached() error {
	level, err := d.pin.Get()
	if err != nil {
		return errors.Wrap(err, "couldn't read pin level")
	}
	if level == (d.edge == EdgeRising) {
		d.userCallback()
	}
	if err := d.timer.Disable(); err != nil {
		return err
	}
	return errors.Wrap(d.pin.EnableInterrupt(), "couldn't enable pin interrupt")
}

// UpdateInterrupt drains the pending work raised by interrupt context,
// executing the user callback and re-enabling interrupts as needed.
func (d *DigitalIn) UpdateInterrupt() error {
	switch d.pending.Swap(inNone) {
	case inExecAndEnablePin:
		if d.userCallback == nil {
			return errNoTriggerSet
		}
		d.userCallback()
		return errors.Wrap(d.pin.EnableInterrupt(), "couldn't enable pin interrupt")
	case inEnableTimer:
		return d.timer.Enable()
	case inTimerReached:
		return d.timerReached()
	case inExecAndUnsubscribePin:
		if d.userCallback == nil {
			return errNoTriggerSet
		}
		d.userCallback()
		return errors.Wrap(d.pin.Unsubscribe(), "couldn't unsubscribe from pin interrupt")
	}
	return nil
}

// Close releases the pin interrupt slot and the logical timer.
func (d *DigitalIn) Close() error {
	if err := d.pin.Unsubscribe(); err != nil {
		d.logger.Debugw("error unsubscribing pin on close", "error", err)
	}
	return d.timer.Remove()
}
