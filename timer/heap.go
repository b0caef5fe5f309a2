package timer

// An alarm is one pending deadline in the scheduling heap. Alarms carry the
// generation of the logical timer at the time they were scheduled; a
// mismatched generation marks a stale alarm left behind by a disable, and it
// is discarded when it reaches the top of the heap.
type alarm struct {
	time       Tick
	id         uint16
	generation uint32
}

// alarmHeap is a min-heap keyed on absolute deadline. The tie-break order
// for equal deadlines is arbitrary.
type alarmHeap []alarm

func (h alarmHeap) Len() int           { return len(h) }
func (h alarmHeap) Less(i, j int) bool { return h[i].time < h[j].time }
func (h alarmHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *alarmHeap) Push(x interface{}) {
	*h = append(*h, x.(alarm))
}

func (h *alarmHeap) Pop() interface{} {
	old := *h
	n := len(old)
	a := old[n-1]
	*h = old[:n-1]
	return a
}
