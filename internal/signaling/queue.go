package signaling

import "sync"

// queue hands values to deliver on a dedicated goroutine, in push order,
// without ever blocking the producer.
type queue[T any] struct {
	deliver func(T)

	mu     sync.Mutex
	items  []T
	notify chan struct{}
	done   chan struct{}
	closed bool
}

func newQueue[T any](deliver func(T)) *queue[T] {
	q := &queue[T]{
		deliver: deliver,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *queue[T]) push(v T) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *queue[T]) loop() {
	for {
		select {
		case <-q.notify:
		case <-q.done:
			return
		}

		for {
			v, ok, closed := q.pop()
			if closed {
				return
			}
			if !ok {
				break
			}
			q.deliver(v)
		}
	}
}

// pop takes the next value. Checking closed under the same lock as close
// means nothing is dequeued once close has returned.
func (q *queue[T]) pop() (v T, ok, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return v, false, true
	}
	if len(q.items) == 0 {
		return v, false, false
	}
	v = q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	return v, true, false
}

// close drops pending values. It does not wait for a delivery in progress,
// so a subscriber may close its own queue from inside deliver.
func (q *queue[T]) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	close(q.done)
}
