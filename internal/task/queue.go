package task

import "sync"

// kindQueue holds the pending FIFO, the in-flight set and the spawned worker
// count of one report kind. All three share mu, so a task is never pending
// and in flight at the same time.
type kindQueue struct {
	mu       sync.Mutex
	pending  []*Task
	inFlight map[string]*Task
	spawned  int
}

func newKindQueue() *kindQueue {
	return &kindQueue{inFlight: make(map[string]*Task)}
}

func (q *kindQueue) push(t *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, t)
}

// trySpawn reserves a worker slot when fewer than capacity workers exist.
func (q *kindQueue) trySpawn(capacity int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.spawned >= capacity {
		return false
	}
	q.spawned++
	return true
}

// next moves the head of the queue in flight. When the queue is empty the
// caller's worker slot is released in the same critical section, so a
// concurrent push either sees the slot free or the task is taken by this
// worker.
func (q *kindQueue) next() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		q.spawned--
		return nil, false
	}

	t := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	q.inFlight[t.SN()] = t
	return t, true
}

// retire releases a worker slot without taking work.
func (q *kindQueue) retire() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.spawned--
}

func (q *kindQueue) finished(t *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inFlight, t.SN())
}

// remove takes a task out of the pending queue only.
func (q *kindQueue) remove(sn string) (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, t := range q.pending {
		if t.SN() == sn {
			q.pending = append(q.pending[:i:i], q.pending[i+1:]...)
			return t, true
		}
	}
	return nil, false
}

// drain empties the pending queue.
func (q *kindQueue) drain() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	tasks := q.pending
	q.pending = nil
	return tasks
}

// position returns the 1-based position of sn in the pending queue, or -1.
func (q *kindQueue) position(sn string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, t := range q.pending {
		if t.SN() == sn {
			return i + 1
		}
	}
	return -1
}

func (q *kindQueue) running(sn string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.inFlight[sn]
	return ok
}

// KindStats is a snapshot of one kind's queue.
type KindStats struct {
	Pending  int `json:"pending"`
	InFlight int `json:"in_flight"`
	Workers  int `json:"workers"`
}

func (q *kindQueue) stats() KindStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return KindStats{Pending: len(q.pending), InFlight: len(q.inFlight), Workers: q.spawned}
}
