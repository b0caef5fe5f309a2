package timer

import "context"

// A Notification is the wake primitive the cooperative dispatch loop blocks
// on. Many Notifiers may feed one Notification; sends coalesce, so waking
// represents "at least one update is pending", not a count.
type Notification struct {
	ch chan struct{}
}

// NewNotification returns a new Notification.
func NewNotification() *Notification {
	return &Notification{ch: make(chan struct{}, 1)}
}

// Notifier returns a Notifier that wakes this Notification. It is safe to
// call Notify from interrupt context.
func (n *Notification) Notifier() *Notifier {
	return &Notifier{ch: n.ch}
}

// Wait blocks until a notifier wakes this Notification or the context ends.
func (n *Notification) Wait(ctx context.Context) error {
	select {
	case <-n.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll reports whether a wake is pending without blocking, consuming it if so.
func (n *Notification) Poll() bool {
	select {
	case <-n.ch:
		return true
	default:
		return false
	}
}

// A Notifier wakes its Notification. It never blocks and never allocates, so
// it is usable from an interrupt service routine.
type Notifier struct {
	ch chan struct{}
}

// Notify wakes the associated Notification if it is not already pending.
func (n *Notifier) Notify() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}
