package hidevent

// Queue is a fixed-capacity ring buffer of Events with overflow coalescing.
//
// The queue is written by exactly one producer (the hardware event callback)
// and drained by exactly one consumer (the poll cycle); the two never run
// concurrently, so no locking is required. All operations complete in bounded
// time and never allocate.
type Queue struct {
	buf   []Event
	head  int
	count int
}

// NewQueue returns a queue holding at most capacity events. A capacity below
// one is clamped to one so the overflow marker always has a slot.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{buf: make([]Event, capacity)}
}

// PushWithOverflow inserts ev stamped with seqn. When the queue is full the
// incoming event is dropped and the newest queued event is replaced with a
// single KindOverflow marker, so the consumer always learns that events were
// lost. Repeated overflows coalesce into one marker.
func (q *Queue) PushWithOverflow(ev Event, seqn uint32) {
	ev.PollSeqn = seqn
	if q.count == len(q.buf) {
		last := &q.buf[(q.head+q.count-1)%len(q.buf)]
		if last.Kind != KindOverflow {
			*last = Event{Kind: KindOverflow, PollSeqn: seqn}
		}
		return
	}
	q.buf[(q.head+q.count)%len(q.buf)] = ev
	q.count++
}

// Current returns a pointer to the oldest queued event without consuming it,
// or nil when the queue is empty. The pointer is valid until the next queue
// mutation.
func (q *Queue) Current() *Event {
	if q.count == 0 {
		return nil
	}
	return &q.buf[q.head]
}

// RemoveCurrent consumes the oldest queued event. It is a no-op on an empty
// queue.
func (q *Queue) RemoveCurrent() {
	if q.count == 0 {
		return
	}
	q.head = (q.head + 1) % len(q.buf)
	q.count--
}

// Flush discards all queued events.
func (q *Queue) Flush() {
	q.head = 0
	q.count = 0
}

// Len reports the number of queued events.
func (q *Queue) Len() int {
	return q.count
}

// Cap reports the queue capacity.
func (q *Queue) Cap() int {
	return len(q.buf)
}
