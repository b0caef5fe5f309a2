// Package mcu ties the framework together: it owns the peripheral registry
// and the shared wake notification, lends out timer driver handles, and
// pumps the cooperative update loop for every registered driver.
package mcu

import (
	"context"

	"go.uber.org/multierr"

	"go.viam.com/mcu/logging"
	"go.viam.com/mcu/peripherals"
	"go.viam.com/mcu/timer"
)

// An InterruptDriver defers interrupt work to a cooperative update pass.
type InterruptDriver interface {
	UpdateInterrupt() error
}

// A Controller is the primary abstraction for an application embedding the
// framework. Its methods must all be called from the application's main
// goroutine.
type Controller struct {
	registry     *peripherals.Registry
	notification *timer.Notification
	timerDrivers []*timer.Driver
	drivers      []InterruptDriver
	logger       logging.Logger
}

// NewController returns a controller over the given peripheral registry.
func NewController(registry *peripherals.Registry, logger logging.Logger) *Controller {
	return &Controller{
		registry:     registry,
		notification: timer.NewNotification(),
		logger:       logger,
	}
}

// Notification returns the wake primitive all interrupt bridges feed.
func (c *Controller) Notification() *timer.Notification {
	return c.notification
}

// TimerDriver lends out a child timer driver handle. While physical timers
// remain untaken a fresh root is created for each; afterwards the existing
// roots are shared round-robin, so the number of lent handles is not limited
// by the hardware.
func (c *Controller) TimerDriver() (*timer.Driver, error) {
	var root *timer.Driver
	if len(c.timerDrivers) < c.registry.TimerCount() {
		phys, err := c.registry.Timer(len(c.timerDrivers))
		if err != nil {
			return nil, err
		}
		root, err = timer.NewDriver(phys, c.notification)
		if err != nil {
			return nil, err
		}
		c.timerDrivers = append(c.timerDrivers, root)
	} else {
		if len(c.timerDrivers) == 0 {
			_, err := c.registry.Timer(0)
			return nil, err
		}
		root = c.timerDrivers[0]
		c.timerDrivers = append(c.timerDrivers[1:], root)
	}
	return root.CreateChild()
}

// RegisterInterruptDriver adds a driver to the update pass.
func (c *Controller) RegisterInterruptDriver(d InterruptDriver) {
	c.drivers = append(c.drivers, d)
}

// Update runs one cooperative pass. Timer drivers update first since their
// callbacks raise the work the other drivers then drain.
func (c *Controller) Update() error {
	for _, td := range c.timerDrivers {
		if err := td.Update(); err != nil {
			return err
		}
	}
	for _, d := range c.drivers {
		if err := d.UpdateInterrupt(); err != nil {
			return err
		}
	}
	return nil
}

// WaitForUpdates blocks until an interrupt wakes the controller, then runs
// one update pass.
func (c *Controller) WaitForUpdates(ctx context.Context) error {
	if err := c.notification.Wait(ctx); err != nil {
		return err
	}
	return c.Update()
}

// Run pumps update passes until the context ends.
func (c *Controller) Run(ctx context.Context) error {
	for {
		if err := c.WaitForUpdates(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// Close winds down every root timer driver.
func (c *Controller) Close() error {
	var err error
	for _, td := range c.timerDrivers {
		err = multierr.Combine(err, td.Close())
	}
	return err
}
