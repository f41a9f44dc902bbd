package session

import "sync"

// Sequencer runs submitted work concurrently across keys and in submission
// order within one key. The long-polling loop uses it so one user's updates
// are handled in arrival order without blocking other users.
type Sequencer struct {
	mu    sync.Mutex
	tails map[int64]chan struct{}
	wg    sync.WaitGroup
}

func NewSequencer() *Sequencer {
	return &Sequencer{tails: make(map[int64]chan struct{})}
}

func (q *Sequencer) Submit(key int64, fn func()) {
	q.mu.Lock()
	prev := q.tails[key]
	done := make(chan struct{})
	q.tails[key] = done
	q.wg.Add(1)
	q.mu.Unlock()

	go func() {
		defer q.wg.Done()
		defer func() {
			close(done)
			q.mu.Lock()
			if q.tails[key] == done {
				delete(q.tails, key)
			}
			q.mu.Unlock()
		}()

		if prev != nil {
			<-prev
		}
		fn()
	}()
}

// Wait blocks until all submitted work has run.
func (q *Sequencer) Wait() {
	q.wg.Wait()
}
