package store

import "sync"

// task is one unit of work for the instance worker: either a payload to
// append or a function to run at the mutation point.
type task struct {
	payload []byte
	fn      func() error
	done    chan error
}

// writeQueue is an unbounded multi-producer, single-consumer queue. Producers
// never block on the consumer.
type writeQueue struct {
	mu      sync.Mutex
	items   []task
	signal  chan struct{}
	closed  bool
	stopped chan struct{}
}

func newWriteQueue() *writeQueue {
	return &writeQueue{
		signal:  make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
}

// push enqueues t. It returns false once the queue is closed.
func (q *writeQueue) push(t task) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, t)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

func (q *writeQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// run hands batches to handle in arrival order until the queue is closed
// and drained.
func (q *writeQueue) run(handle func([]task)) {
	defer close(q.stopped)
	var batch []task
	for {
		q.mu.Lock()
		batch, q.items = q.items, batch[:0]
		closed := q.closed
		q.mu.Unlock()

		if len(batch) > 0 {
			handle(batch)
			for i := range batch {
				batch[i] = task{}
			}
			continue
		}
		if closed {
			return
		}
		<-q.signal
	}
}

// close rejects further pushes and waits for queued work to finish.
func (q *writeQueue) close() {
	q.mu.Lock()
	already := q.closed
	q.closed = true
	q.mu.Unlock()

	if !already {
		select {
		case q.signal <- struct{}{}:
		default:
		}
	}
	<-q.stopped
}
