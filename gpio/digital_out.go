package gpio

import (
	"sync/atomic"

	"github.com/pkg/errors"

	"go.viam.com/mcu/logging"
	"go.viam.com/mcu/timer"
)

const (
	outNone uint32 = iota
	outBlink
)

// A DigitalOut writes digital outputs to one pin. Blink drives the pin
// through a bounded auto-reenabling logical timer, so it needs the
// application's update loop running to make progress.
type DigitalOut struct {
	pin      OutputPin
	timer    *timer.Driver
	notifier *timer.Notifier
	logger   logging.Logger
	pending  atomic.Uint32
}

// NewDigitalOut wraps an output pin, driving it low initially.
func NewDigitalOut(td *timer.Driver, pin OutputPin, notifier *timer.Notifier, logger logging.Logger) (*DigitalOut, error) {
	d := &DigitalOut{
		pin:      pin,
		timer:    td,
		notifier: notifier,
		logger:   logger,
	}
	if err := pin.Set(false); err != nil {
		return nil, errors.Wrap(err, "couldn't initialize output pin")
	}
	return d, nil
}

// SetHigh drives the pin high.
func (d *DigitalOut) SetHigh() error {
	return d.pin.Set(true)
}

// SetLow drives the pin low.
func (d *DigitalOut) SetLow() error {
	return d.pin.Set(false)
}

// Toggle inverts the pin level.
func (d *DigitalOut) Toggle() error {
	high, err := d.pin.Get()
	if err != nil {
		return errors.Wrap(err, "couldn't read back output pin")
	}
	return d.pin.Set(!high)
}

// Blink toggles the pin blinks times, holding each state for the given
// number of microseconds. One blink is two toggles.
func (d *DigitalOut) Blink(blinks uint32, microsBetweenStates uint64) error {
	toggles := blinks * 2
	if toggles == 0 {
		return nil
	}
	if err := d.timer.Remove(); err != nil {
		return err
	}
	if err := d.timer.InterruptAfterNTimes(microsBetweenStates, toggles, true, func() {
		d.pending.Store(outBlink)
		d.notifier.Notify()
	}); err != nil {
		return errors.Wrap(err, "couldn't set up blink timer")
	}
	return d.timer.Enable()
}

// UpdateInterrupt drains pending toggles raised by the blink timer.
func (d *DigitalOut) UpdateInterrupt() error {
	switch d.pending.Swap(outNone) {
	case outBlink:
		return d.Toggle()
	}
	return nil
}

// Close stops any blink in progress and releases the logical timer.
func (d *DigitalOut) Close() error {
	return d.timer.Remove()
}
