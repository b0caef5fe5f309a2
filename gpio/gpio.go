// Package gpio contains digital pin drivers whose time-based behavior
// (input debouncing, output blinking) is built on logical timers.
//
// The drivers speak to pins through small interfaces so ports can back them
// with real hardware while tests use fakes. Like the timer package, driver
// methods and UpdateInterrupt must run on a single goroutine; only pin edge
// callbacks run in interrupt context.
package gpio

// Edge selects which signal transition of an input pin raises its interrupt.
type Edge uint8

const (
	// EdgeRising triggers on low to high transitions.
	EdgeRising Edge = iota
	// EdgeFalling triggers on high to low transitions.
	EdgeFalling
)

// An InterruptPin is a digital input pin with a single edge-interrupt
// subscription slot. The subscribed callback runs in interrupt context and
// the interrupt disarms itself after each firing; drivers re-enable it once
// they have processed the edge.
type InterruptPin interface {
	// Get reads the pin level, true meaning high.
	Get() (bool, error)
	// SetInterruptEdge selects which transition raises the interrupt.
	SetInterruptEdge(Edge) error
	// Subscribe installs the edge callback.
	Subscribe(func()) error
	// Unsubscribe removes the edge callback.
	Unsubscribe() error
	// EnableInterrupt re-arms the edge interrupt.
	EnableInterrupt() error
}

// An OutputPin is a writable digital pin.
type OutputPin interface {
	// Set drives the pin, true meaning high.
	Set(high bool) error
	// Get reads back the driven level.
	Get() (bool, error)
}
