package message

// DefaultQueueSize denotes the default capacity of a Queue
const DefaultQueueSize = 16

// Queue denotes a bounded multi-producer record queue
type Queue struct {
	ch chan Record
}

// NewQueue instantiates a new Queue with the given capacity
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}

	return &Queue{
		ch: make(chan Record, size),
	}
}

// TrySend enqueues a record if space is available, dropping it otherwise
func (q *Queue) TrySend(r Record) bool {
	select {
	case q.ch <- r:
		return true
	default:
		return false
	}
}

// TryReceive dequeues a record without blocking
func (q *Queue) TryReceive() (Record, bool) {
	select {
	case r := <-q.ch:
		return r, true
	default:
		return "", false
	}
}

// C returns the underlying channel for consumers that want to block / select
func (q *Queue) C() <-chan Record {
	return q.ch
}

// Len returns the number of currently queued records
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the capacity of the queue
func (q *Queue) Cap() int {
	return cap(q.ch)
}

// Drain dequeues all currently queued records
func (q *Queue) Drain() []Record {
	var records []Record
	for {
		r, ok := q.TryReceive()
		if !ok {
			return records
		}
		records = append(records, r)
	}
}
