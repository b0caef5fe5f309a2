package timer

import (
	"context"

	"github.com/pkg/errors"
)

// maxChildren caps the number of handles per physical timer. Ids are
// allocated monotonically and never reused; ids above the cap are reserved
// for internal one-shots such as Delay.
const maxChildren = 255

// A Driver is one owner's handle onto a multiplexed physical timer. The root
// driver is created with NewDriver and owns the peripheral; child drivers
// share the same multiplexer under their own id, so many components can each
// run an independent logical timer on one piece of hardware.
type Driver struct {
	mux          *mux
	notification *Notification
	id           uint16
	nextChild    uint16
}

// NewDriver wraps a physical timer in a root driver, installing the
// interrupt bridge that wakes the given notification. The caller keeps the
// notification and should run Update each time it wakes.
func NewDriver(phys PhysicalTimer, notification *Notification) (*Driver, error) {
	m, err := newMux(phys, notification.Notifier())
	if err != nil {
		return nil, err
	}
	return &Driver{mux: m, notification: notification, nextChild: 1}, nil
}

// CreateChild derives a new handle with the next unused id. Only the root
// driver may derive children.
func (d *Driver) CreateChild() (*Driver, error) {
	if d.id != 0 {
		return nil, ErrOnlyRootMayDeriveChildren
	}
	if d.nextChild >= maxChildren {
		return nil, ErrTooManyChildren
	}
	child := &Driver{mux: d.mux, notification: d.notification, id: d.nextChild}
	d.nextChild++
	return child, nil
}

// ID returns the driver's id on its physical timer. The root driver is id 0.
func (d *Driver) ID() uint16 {
	return d.id
}

// InterruptAfter registers a callback to run once, the given number of
// microseconds after Enable is called. After firing it can be rescheduled by
// calling Enable again. The timer starts disabled.
func (d *Driver) InterruptAfter(micros uint64, callback func()) error {
	return d.mux.register(d.id, micros, 0, false, callback)
}

// InterruptAfterNTimes registers a callback to run every micros
// microseconds, count times in total (count of zero means unbounded). With
// autoReenable the timer reschedules itself after each firing; otherwise it
// must be explicitly re-enabled. The timer starts disabled.
func (d *Driver) InterruptAfterNTimes(micros uint64, count uint32, autoReenable bool, callback func()) error {
	return d.mux.register(d.id, micros, count, autoReenable, callback)
}

// Enable schedules this driver's timer. Enabling an already scheduled timer
// is a no-op.
func (d *Driver) Enable() error {
	return d.mux.enable(d.id)
}

// Disable stops this driver's timer from firing until re-enabled.
func (d *Driver) Disable() error {
	return d.mux.disable(d.id)
}

// Remove discards this driver's timer; its callback will never run again.
func (d *Driver) Remove() error {
	return d.mux.remove(d.id)
}

// Update runs one dispatch pass over the shared multiplexer, firing all
// callbacks currently due. It is shared by all handles of one physical timer
// and is typically invoked once per main-loop iteration or per notification
// wake.
func (d *Driver) Update() error {
	return d.mux.update()
}

// UpdateInterrupt makes a Driver usable as an mcu interrupt driver.
func (d *Driver) UpdateInterrupt() error {
	return d.Update()
}

// Delay blocks for at least the given number of microseconds, pumping the
// dispatch loop while it waits. It must not be called concurrently with
// other update passes on the same physical timer.
func (d *Driver) Delay(ctx context.Context, micros uint64) error {
	delayID := d.id + maxChildren
	fired := false
	if err := d.mux.register(delayID, micros, 1, false, func() { fired = true }); err != nil {
		return errors.Wrap(err, "couldn't set up for delay")
	}
	defer func() {
		//nolint:errcheck
		d.mux.remove(delayID)
	}()
	if err := d.mux.enable(delayID); err != nil {
		return errors.Wrap(err, "couldn't set up for delay")
	}
	for !fired {
		if err := d.notification.Wait(ctx); err != nil {
			return err
		}
		if err := d.mux.update(); err != nil {
			return err
		}
	}
	return nil
}

// Close winds the underlying multiplexer down and releases the interrupt
// subscription. Close only the root driver, and only once no handle is in
// use anymore.
func (d *Driver) Close() error {
	if d.id != 0 {
		return d.Remove()
	}
	return d.mux.close()
}
