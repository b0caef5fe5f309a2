package gpio_test

import (
	"testing"

	"go.viam.com/test"

	"go.viam.com/mcu/gpio"
	"go.viam.com/mcu/logging"
	"go.viam.com/mcu/timer"
	"go.viam.com/mcu/timer/fake"
)

const tickHz = 1_000_000

type fakeInputPin struct {
	level        bool
	edge         gpio.Edge
	cb           func()
	enableCalls  int
	unsubscribed bool
}

func (p *fakeInputPin) Get() (bool, error) { return p.level, nil }

func (p *fakeInputPin) SetInterruptEdge(edge gpio.Edge) error {
	p.edge = edge
	return nil
}

func (p *fakeInputPin) Subscribe(cb func()) error {
	p.cb = cb
	return nil
}

func (p *fakeInputPin) Unsubscribe() error {
	p.cb = nil
	p.unsubscribed = true
	return nil
}

func (p *fakeInputPin) EnableInterrupt() error {
	p.enableCalls++
	return nil
}

// fire simulates an edge interrupt. Edge interrupts self-disarm, so nothing
// fires unless a subscription is present.
func (p *fakeInputPin) fire(level bool) {
	p.level = level
	if p.cb != nil {
		p.cb()
	}
}

type fakeOutputPin struct {
	level   bool
	history []bool
}

func (p *fakeOutputPin) Set(high bool) error {
	p.level = high
	p.history = append(p.history, high)
	return nil
}

func (p *fakeOutputPin) Get() (bool, error) { return p.level, nil }

func newDriver(t *testing.T) (*timer.Driver, *fake.Timer, *timer.Notification) {
	t.Helper()
	phys := fake.NewTimer(tickHz)
	notif := timer.NewNotification()
	root, err := timer.NewDriver(phys, notif)
	test.That(t, err, test.ShouldBeNil)
	return root, phys, notif
}

func TestDigitalInTrigger(t *testing.T) {
	root, _, notif := newDriver(t)
	logger := logging.NewTestLogger(t)
	pin := &fakeInputPin{}
	d := gpio.NewDigitalIn(root, pin, notif.Notifier(), logger)

	var calls int
	test.That(t, d.TriggerOnInterrupt(gpio.EdgeRising, func() { calls++ }), test.ShouldBeNil)
	test.That(t, pin.edge, test.ShouldEqual, gpio.EdgeRising)

	pin.fire(true)
	test.That(t, notif.Poll(), test.ShouldBeTrue)
	test.That(t, d.UpdateInterrupt(), test.ShouldBeNil)
	test.That(t, calls, test.ShouldEqual, 1)

	pin.fire(true)
	test.That(t, d.UpdateInterrupt(), test.ShouldBeNil)
	test.That(t, calls, test.ShouldEqual, 2)
}

func TestDigitalInDebounce(t *testing.T) {
	root, phys, notif := newDriver(t)
	logger := logging.NewTestLogger(t)
	pin := &fakeInputPin{}
	d := gpio.NewDigitalIn(root, pin, notif.Notifier(), logger)
	d.SetDebounce(1000)

	var calls int
	test.That(t, d.TriggerOnInterrupt(gpio.EdgeRising, func() { calls++ }), test.ShouldBeNil)

	// A bounce: the edge starts the debounce window but the level drops
	// before it elapses, so the callback is suppressed.
	pin.fire(true)
	test.That(t, d.UpdateInterrupt(), test.ShouldBeNil)
	pin.level = false
	phys.Advance(1000)
	test.That(t, root.Update(), test.ShouldBeNil)
	test.That(t, d.UpdateInterrupt(), test.ShouldBeNil)
	test.That(t, calls, test.ShouldEqual, 0)

	// A clean press held through the window reaches the callback.
	pin.fire(true)
	test.That(t, d.UpdateInterrupt(), test.ShouldBeNil)
	phys.Advance(1000)
	test.That(t, root.Update(), test.ShouldBeNil)
	test.That(t, d.UpdateInterrupt(), test.ShouldBeNil)
	test.That(t, calls, test.ShouldEqual, 1)
}

func TestDigitalInFirstNTimes(t *testing.T) {
	root, _, notif := newDriver(t)
	logger := logging.NewTestLogger(t)
	pin := &fakeInputPin{}
	d := gpio.NewDigitalIn(root, pin, notif.Notifier(), logger)

	var calls int
	test.That(t, d.TriggerOnInterruptFirstNTimes(2, gpio.EdgeFalling, func() { calls++ }), test.ShouldBeNil)

	pin.fire(false)
	test.That(t, d.UpdateInterrupt(), test.ShouldBeNil)
	pin.fire(false)
	test.That(t, d.UpdateInterrupt(), test.ShouldBeNil)
	test.That(t, calls, test.ShouldEqual, 2)
	test.That(t, pin.unsubscribed, test.ShouldBeTrue)

	// The subscription is gone, further edges are invisible.
	pin.fire(false)
	test.That(t, d.UpdateInterrupt(), test.ShouldBeNil)
	test.That(t, calls, test.ShouldEqual, 2)
}

func TestDigitalOutLevels(t *testing.T) {
	root, _, notif := newDriver(t)
	logger := logging.NewTestLogger(t)
	pin := &fakeOutputPin{level: true}
	d, err := gpio.NewDigitalOut(root, pin, notif.Notifier(), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pin.level, test.ShouldBeFalse)

	test.That(t, d.SetHigh(), test.ShouldBeNil)
	test.That(t, pin.level, test.ShouldBeTrue)
	test.That(t, d.Toggle(), test.ShouldBeNil)
	test.That(t, pin.level, test.ShouldBeFalse)
	test.That(t, d.SetLow(), test.ShouldBeNil)
	test.That(t, pin.level, test.ShouldBeFalse)
}

func TestDigitalOutBlink(t *testing.T) {
	root, phys, notif := newDriver(t)
	logger := logging.NewTestLogger(t)
	pin := &fakeOutputPin{}
	d, err := gpio.NewDigitalOut(root, pin, notif.Notifier(), logger)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, d.Blink(2, 1000), test.ShouldBeNil)
	for i := 0; i < 4; i++ {
		phys.Advance(1000)
		test.That(t, root.Update(), test.ShouldBeNil)
		test.That(t, d.UpdateInterrupt(), test.ShouldBeNil)
	}
	// Two blinks, four toggles, starting from low.
	test.That(t, pin.history[1:], test.ShouldResemble, []bool{true, false, true, false})

	// The blink timer is exhausted; no further toggles.
	phys.Advance(1000)
	test.That(t, root.Update(), test.ShouldBeNil)
	test.That(t, d.UpdateInterrupt(), test.ShouldBeNil)
	test.That(t, len(pin.history), test.ShouldEqual, 5)
}

func TestDigitalOutBlinkRestartWithConcurrentTimer(t *testing.T) {
	root, phys, notif := newDriver(t)
	logger := logging.NewTestLogger(t)

	// Another logical timer holds an earlier deadline on the same physical
	// timer, so the old blink registration cannot drain before the restart.
	var beats int
	test.That(t, root.InterruptAfter(500, func() { beats++ }), test.ShouldBeNil)
	test.That(t, root.Enable(), test.ShouldBeNil)

	child, err := root.CreateChild()
	test.That(t, err, test.ShouldBeNil)
	pin := &fakeOutputPin{}
	d, err := gpio.NewDigitalOut(child, pin, notif.Notifier(), logger)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, d.Blink(3, 1000), test.ShouldBeNil)
	test.That(t, d.Blink(1, 2000), test.ShouldBeNil)

	phys.Advance(500)
	test.That(t, root.Update(), test.ShouldBeNil)
	test.That(t, d.UpdateInterrupt(), test.ShouldBeNil)
	test.That(t, beats, test.ShouldEqual, 1)

	for i := 0; i < 2; i++ {
		phys.Advance(2000)
		test.That(t, root.Update(), test.ShouldBeNil)
		test.That(t, d.UpdateInterrupt(), test.ShouldBeNil)
	}
	// Only the restarted one-blink schedule drove the pin.
	test.That(t, pin.history[1:], test.ShouldResemble, []bool{true, false})
}

func TestDigitalInRetriggerWithConcurrentTimer(t *testing.T) {
	root, phys, notif := newDriver(t)
	logger := logging.NewTestLogger(t)

	var beats int
	test.That(t, root.InterruptAfter(500, func() { beats++ }), test.ShouldBeNil)
	test.That(t, root.Enable(), test.ShouldBeNil)

	child, err := root.CreateChild()
	test.That(t, err, test.ShouldBeNil)
	pin := &fakeInputPin{}
	d := gpio.NewDigitalIn(child, pin, notif.Notifier(), logger)
	d.SetDebounce(1000)

	var rising, falling int
	test.That(t, d.TriggerOnInterrupt(gpio.EdgeRising, func() { rising++ }), test.ShouldBeNil)
	pin.fire(true)
	test.That(t, d.UpdateInterrupt(), test.ShouldBeNil)

	// Reconfiguring while the debounce window is in flight replaces the
	// debounce timer even though its node is buried under the other deadline.
	test.That(t, d.TriggerOnInterrupt(gpio.EdgeFalling, func() { falling++ }), test.ShouldBeNil)
	pin.fire(false)
	test.That(t, d.UpdateInterrupt(), test.ShouldBeNil)

	phys.Advance(500)
	test.That(t, root.Update(), test.ShouldBeNil)
	phys.Advance(500)
	test.That(t, root.Update(), test.ShouldBeNil)
	test.That(t, d.UpdateInterrupt(), test.ShouldBeNil)
	test.That(t, rising, test.ShouldEqual, 0)
	test.That(t, falling, test.ShouldEqual, 1)
	test.That(t, beats, test.ShouldEqual, 1)
}

func TestDigitalOutBlinkRestart(t *testing.T) {
	root, phys, notif := newDriver(t)
	logger := logging.NewTestLogger(t)
	pin := &fakeOutputPin{}
	d, err := gpio.NewDigitalOut(root, pin, notif.Notifier(), logger)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, d.Blink(5, 1000), test.ShouldBeNil)
	phys.Advance(1000)
	test.That(t, root.Update(), test.ShouldBeNil)
	test.That(t, d.UpdateInterrupt(), test.ShouldBeNil)

	// Restarting replaces the in-flight blink cleanly.
	test.That(t, d.Blink(1, 2000), test.ShouldBeNil)
	phys.Advance(2000)
	test.That(t, root.Update(), test.ShouldBeNil)
	test.That(t, d.UpdateInterrupt(), test.ShouldBeNil)
	phys.Advance(2000)
	test.That(t, root.Update(), test.ShouldBeNil)
	test.That(t, d.UpdateInterrupt(), test.ShouldBeNil)
	test.That(t, pin.history[1:], test.ShouldResemble, []bool{true, false, true})
}
