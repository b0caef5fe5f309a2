// Package peripherals tracks ownership of the hardware timer peripherals a
// port makes available, handing each out at most once.
package peripherals

import (
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/mcu/timer"
)

// ErrInvalidTimerResource is returned when a requested physical timer does
// not exist or was already taken.
var ErrInvalidTimerResource = errors.New("invalid timer resource")

// A Registry is seeded once at startup with the port's physical timers (two
// on the reference hardware) and hands each out at most once.
type Registry struct {
	mu     sync.Mutex
	timers []timer.PhysicalTimer
	taken  []bool
}

// NewRegistry returns a registry over the given physical timers.
func NewRegistry(timers ...timer.PhysicalTimer) *Registry {
	return &Registry{
		timers: timers,
		taken:  make([]bool, len(timers)),
	}
}

// Timer takes ownership of physical timer n.
func (r *Registry) Timer(n int) (timer.PhysicalTimer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n < 0 || n >= len(r.timers) {
		return nil, errors.Wrapf(ErrInvalidTimerResource, "no timer %d", n)
	}
	if r.taken[n] {
		return nil, errors.Wrapf(ErrInvalidTimerResource, "timer %d already taken", n)
	}
	r.taken[n] = true
	return r.timers[n], nil
}

// TimerCount returns how many physical timers the registry was seeded with.
func (r *Registry) TimerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}
