// Package timer multiplexes a single physical countdown timer peripheral into
// an unbounded number of independently controllable logical timers.
//
// A physical timer exposes one alarm compare register, so only one absolute
// deadline can be armed at a time. The multiplexer keeps a min-heap of
// pending deadlines and always arms the hardware alarm to the earliest one.
// The only code that runs in interrupt context is a bridge that raises a
// coalescing "work pending" flag and wakes the cooperative dispatch loop;
// everything else happens in Update.
//
// All driver operations (Enable, Disable, Remove, Update) mutate shared
// multiplexer state and must be called from a single goroutine, or with
// external synchronization. The interrupt subscription is the one exception
// and may fire from any context.
package timer

import (
	"math"
	"math/bits"
)

// Tick is a count of physical timer ticks. Microseconds at the interface are
// converted to ticks via the peripheral's tick frequency.
type Tick uint64

const microsPerSecond = 1_000_000

// A PhysicalTimer is one hardware countdown timer: a monotonic counter, an
// alarm compare register, and a single interrupt subscription slot. Ports
// implement this against real hardware; the fake package implements it for
// testing and simulation.
type PhysicalTimer interface {
	// Counter reads the current value of the monotonic tick counter.
	Counter() (Tick, error)
	// SetCounter overwrites the tick counter.
	SetCounter(Tick) error
	// Alarm reads the currently armed compare value.
	Alarm() (Tick, error)
	// SetAlarm arms the compare register to an absolute tick count.
	SetAlarm(Tick) error
	// EnableAlarm enables or disables comparison against the alarm register.
	EnableAlarm(bool) error
	// EnableInterrupt arms the timer interrupt.
	EnableInterrupt() error
	// DisableInterrupt disarms the timer interrupt.
	DisableInterrupt() error
	// Enable starts or stops the counter.
	Enable(bool) error
	// Subscribe installs the interrupt service routine. The peripheral has a
	// single subscription slot.
	Subscribe(func()) error
	// Unsubscribe removes the installed interrupt service routine.
	Unsubscribe() error
	// TickFrequency returns the counter frequency in Hz.
	TickFrequency() uint64
}

// TicksFromMicros converts a duration in microseconds to ticks at the given
// frequency, truncating toward zero and saturating at the maximum tick count.
// A duration shorter than one tick truncates to zero; registration rounds
// such periods up to one tick.
func TicksFromMicros(micros, tickHz uint64) Tick {
	hi, lo := bits.Mul64(micros, tickHz)
	if hi >= microsPerSecond {
		return Tick(math.MaxUint64)
	}
	quo, _ := bits.Div64(hi, lo, microsPerSecond)
	return Tick(quo)
}
