package timer

import (
	"container/heap"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// status is the lifecycle state of one logical timer. A given id is in
// exactly one state at any instant.
type status uint8

const (
	// statusDisabled: registered but not scheduled; configuration is kept so
	// the timer can be re-enabled without re-registering.
	statusDisabled status = iota
	// statusActive: a member of the scheduling heap.
	statusActive
	// statusWaiting: disabled while still physically present in the heap; on
	// the next pop it becomes disabled without firing.
	statusWaiting
	// statusRemoving: will be discarded on the next pop and never fire again.
	statusRemoving
)

// timeInterrupt is the state table entry for one logical timer.
type timeInterrupt struct {
	id           uint16
	period       Tick
	deadline     Tick // next scheduled deadline, meaningful while active
	generation   uint32
	status       status
	bounded      bool
	remaining    uint32
	autoReenable bool
	pending      int // heap nodes (current or stale) referencing this id
	callback     func()
}

// trigger executes the callback if any trigger budget remains. A bounded
// entry whose budget is already exhausted is a no-op.
func (ti *timeInterrupt) trigger() {
	if ti.bounded {
		if ti.remaining == 0 {
			return
		}
		ti.remaining--
	}
	ti.callback()
}

func (ti *timeInterrupt) triggersLeft() bool {
	return !ti.bounded || ti.remaining > 0
}

// mux converts many logical timers into one physical alarm. It owns the
// physical peripheral exclusively; handles mutate it only through mux
// operations. Invariant: after every operation, the physical alarm equals
// the minimum deadline among active entries, or the peripheral is fully
// disarmed if none is active.
//
// All fields except pendingWork are owned by the single-threaded dispatch
// and enable/disable call sites and are accessed without locks.
type mux struct {
	phys        PhysicalTimer
	pendingWork atomic.Bool // coalescing flag, set from interrupt context
	notifier    *Notifier
	alarms      alarmHeap
	interrupts  map[uint16]*timeInterrupt
	active      int
	running     bool // physical counter started and interrupt armed
}

func newMux(phys PhysicalTimer, notifier *Notifier) (*mux, error) {
	m := &mux{
		phys:       phys,
		notifier:   notifier,
		interrupts: map[uint16]*timeInterrupt{},
	}
	// The interrupt service routine does the minimum possible: raise the
	// coalescing flag and wake the dispatch loop. It must not touch the heap
	// or the state table.
	if err := m.phys.Subscribe(func() {
		m.pendingWork.Store(true)
		m.notifier.Notify()
	}); err != nil {
		return nil, errors.Wrap(err, "couldn't subscribe to timer interrupt")
	}
	return m, nil
}

// register stores a logical timer in the disabled state. It never touches
// hardware. A count of zero means unbounded. Registering over a live id is an
// error, but an id in the removing state is reclaimed: its old callback can
// never run anymore, so the slot is free even while stale heap nodes for it
// are still buried under other timers' deadlines.
func (m *mux) register(id uint16, micros uint64, count uint32, autoReenable bool, callback func()) error {
	period := TicksFromMicros(micros, m.phys.TickFrequency())
	if period == 0 {
		// A sub-tick period would reschedule to a deadline that is already
		// due, never letting the dispatch pass terminate.
		period = 1
	}
	if entry, ok := m.interrupts[id]; ok {
		if entry.status != statusRemoving {
			return errors.Wrapf(ErrTimerAlreadyRegistered, "id %d", id)
		}
		// Reclaim: keep the generation so the buried nodes stay stale, and
		// keep pending so they are still accounted for when popped.
		entry.period = period
		entry.status = statusDisabled
		entry.bounded = count > 0
		entry.remaining = count
		entry.autoReenable = autoReenable
		entry.callback = callback
		return nil
	}
	m.interrupts[id] = &timeInterrupt{
		id:           id,
		period:       period,
		status:       statusDisabled,
		bounded:      count > 0,
		remaining:    count,
		autoReenable: autoReenable,
		callback:     callback,
	}
	return nil
}

// enable schedules the logical timer at counter+period. Enabling an already
// active timer is a no-op; enabling an unregistered or removed id is also a
// no-op so that lifecycle races with remove stay harmless.
func (m *mux) enable(id uint16) error {
	entry, ok := m.interrupts[id]
	if !ok || entry.status == statusActive || entry.status == statusRemoving {
		return nil
	}

	now, err := m.phys.Counter()
	if err != nil {
		return errors.Wrap(err, "couldn't read timer counter")
	}
	entry.generation++
	entry.deadline = now + entry.period
	heap.Push(&m.alarms, alarm{time: entry.deadline, id: id, generation: entry.generation})
	entry.pending++
	entry.status = statusActive
	m.active++

	if !m.running {
		if err := m.phys.EnableInterrupt(); err != nil {
			return errors.Wrap(err, "couldn't arm timer interrupt")
		}
		if err := m.phys.Enable(true); err != nil {
			return errors.Wrap(err, "couldn't start timer counter")
		}
		m.running = true
	}
	return m.setLowestAlarm()
}

// disable stops the logical timer from firing again until re-enabled. Its
// heap node, if any, stays behind as stale and is discarded when popped. If
// this was the last active timer, the peripheral is disarmed and all state
// is dropped: an idle physical timer retains no obligations.
func (m *mux) disable(id uint16) error {
	entry, ok := m.interrupts[id]
	if !ok || entry.status == statusRemoving {
		return nil
	}
	if entry.status != statusActive {
		return nil
	}
	entry.status = statusWaiting
	m.active--
	if m.active == 0 {
		return m.reset()
	}
	m.prune()
	return m.setLowestAlarm()
}

// remove guarantees the callback never executes again. The entry is
// discarded as soon as no heap node references it.
func (m *mux) remove(id uint16) error {
	if _, ok := m.interrupts[id]; !ok {
		return nil
	}
	if err := m.disable(id); err != nil {
		return err
	}
	// disable may have performed a full reset and dropped the entry.
	entry, ok := m.interrupts[id]
	if !ok {
		return nil
	}
	entry.status = statusRemoving
	if entry.pending == 0 {
		delete(m.interrupts, id)
	}
	return nil
}

// update is the cooperative dispatch pass: drain the coalescing flag, pop
// and resolve everything currently due, then re-arm the alarm to the new
// minimum. Multiple hardware firings between passes collapse into one flag
// set, so the loop drains all due items rather than one per wake.
func (m *mux) update() error {
	for m.pendingWork.CompareAndSwap(true, false) {
		for len(m.alarms) > 0 {
			now, err := m.phys.Counter()
			if err != nil {
				return errors.Wrap(err, "couldn't read timer counter")
			}
			if m.alarms[0].time > now {
				break
			}
			if err := m.handleAlarm(heap.Pop(&m.alarms).(alarm)); err != nil {
				return err
			}
		}
		if err := m.rearm(); err != nil {
			return err
		}
	}
	return nil
}

// handleAlarm resolves one popped heap node against the state table.
func (m *mux) handleAlarm(a alarm) error {
	entry, ok := m.interrupts[a.id]
	if !ok {
		return nil
	}
	entry.pending--
	if a.generation != entry.generation {
		// Stale node from before a disable or re-enable.
		m.collectRemoved(entry)
		return nil
	}

	switch entry.status {
	case statusActive:
		entry.trigger()
		if entry.triggersLeft() && entry.autoReenable {
			// Reschedule relative to the previous deadline, not "now", so
			// repeated wake jitter does not accumulate drift.
			entry.deadline += entry.period
			heap.Push(&m.alarms, alarm{time: entry.deadline, id: a.id, generation: a.generation})
			entry.pending++
		} else {
			entry.status = statusDisabled
			m.active--
		}
	case statusWaiting:
		entry.status = statusDisabled
	case statusRemoving:
		m.collectRemoved(entry)
	case statusDisabled:
	}
	return nil
}

func (m *mux) collectRemoved(entry *timeInterrupt) {
	if entry.status == statusRemoving && entry.pending == 0 {
		delete(m.interrupts, entry.id)
	}
}

// prune discards heap-top nodes that no longer correspond to an active
// logical timer, demoting waiting entries along the way, so that the heap
// minimum is always a live deadline.
func (m *mux) prune() {
	for len(m.alarms) > 0 {
		top := m.alarms[0]
		entry, ok := m.interrupts[top.id]
		if ok && top.generation == entry.generation && entry.status == statusActive {
			return
		}
		heap.Pop(&m.alarms)
		if !ok {
			continue
		}
		entry.pending--
		if top.generation == entry.generation && entry.status == statusWaiting {
			entry.status = statusDisabled
		}
		m.collectRemoved(entry)
	}
}

// rearm reprograms the alarm after a dispatch pass, or winds the peripheral
// down if nothing is scheduled anymore.
func (m *mux) rearm() error {
	m.prune()
	if len(m.alarms) > 0 {
		return m.setLowestAlarm()
	}
	if m.active == 0 && m.running {
		return m.idle()
	}
	return nil
}

// setLowestAlarm arms the physical alarm to the heap minimum if it is not
// armed there already.
func (m *mux) setLowestAlarm() error {
	if len(m.alarms) == 0 {
		return nil
	}
	lowest := m.alarms[0].time
	current, err := m.phys.Alarm()
	if err != nil {
		return errors.Wrap(err, "couldn't read timer alarm")
	}
	if current != lowest {
		if err := m.phys.SetAlarm(lowest); err != nil {
			return errors.Wrap(err, "couldn't set timer alarm")
		}
	}
	return errors.Wrap(m.phys.EnableAlarm(true), "couldn't enable timer alarm")
}

// idle disarms the peripheral while keeping the state table.
func (m *mux) idle() error {
	if err := m.phys.DisableInterrupt(); err != nil {
		return errors.Wrap(err, "couldn't disarm timer interrupt")
	}
	if err := m.phys.EnableAlarm(false); err != nil {
		return errors.Wrap(err, "couldn't disable timer alarm")
	}
	if err := m.phys.Enable(false); err != nil {
		return errors.Wrap(err, "couldn't stop timer counter")
	}
	m.running = false
	return nil
}

// reset disarms the peripheral and drops all logical timers and pending
// alarms.
func (m *mux) reset() error {
	m.interrupts = map[uint16]*timeInterrupt{}
	m.alarms = m.alarms[:0]
	m.active = 0
	m.pendingWork.Store(false)
	if !m.running {
		return nil
	}
	return m.idle()
}

// close winds the multiplexer down and releases the interrupt subscription
// slot.
func (m *mux) close() error {
	return multierr.Combine(
		m.reset(),
		errors.Wrap(m.phys.Unsubscribe(), "couldn't unsubscribe from timer interrupt"),
	)
}
