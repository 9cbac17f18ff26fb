package embedded

import (
	"fmt"
	"sync"
	"time"
)

// Pool is the multi-client embedded thread service: it
// maintains between Min and Max Threads, growing when a hosted callable
// signals Busy and shrinking back toward Min when one signals Idle while
// the pool is oversized. This is the admission-control surface for
// embedded servers (HTTP, TCP).
type Pool struct {
	min, max    int
	factory     func(id int) Callable
	stopTimeout time.Duration

	mu      sync.Mutex
	threads map[int]*Thread
	nextID  int
}

// NewPool creates a pool that keeps between min and max Threads, each
// built by factory given a stable integer ID. stopTimeout bounds how long
// Stop waits for an individual thread during a shrink or full shutdown.
func NewPool(min, max int, factory func(id int) Callable, stopTimeout time.Duration) (*Pool, error) {
	if min < 1 {
		return nil, fmt.Errorf("embedded: pool min must be >= 1, got %d", min)
	}
	if max < min {
		return nil, fmt.Errorf("embedded: pool max %d must be >= min %d", max, min)
	}
	return &Pool{
		min:         min,
		max:         max,
		factory:     factory,
		stopTimeout: stopTimeout,
		threads:     make(map[int]*Thread),
	}, nil
}

// Start brings the pool up to its minimum size.
func (p *Pool) Start(startTimeout time.Duration) error {
	for i := 0; i < p.min; i++ {
		if err := p.spawn(startTimeout); err != nil {
			return err
		}
	}
	return nil
}

// Size returns the current number of live threads.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.threads)
}

func (p *Pool) spawn(startTimeout time.Duration) error {
	// The size check and the insertion happen under one lock hold, so
	// concurrent Busy signals cannot push the pool past max. A signal the
	// new thread raises before spawn returns waits for the lock.
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.threads) >= p.max {
		return nil
	}
	id := p.nextID
	p.nextID++

	th := NewThread(fmt.Sprintf("%d", id), p.factory(id), true)
	th.onSignal = func(code ErrorCode) { p.handleSignal(id, code) }
	if err := th.Start(startTimeout); err != nil {
		return err
	}
	p.threads[id] = th
	return nil
}

func (p *Pool) handleSignal(id int, code ErrorCode) {
	switch code {
	case Busy:
		p.mu.Lock()
		grow := len(p.threads) < p.max
		p.mu.Unlock()
		if grow {
			_ = p.spawn(p.stopTimeout)
		}
	case Idle:
		p.mu.Lock()
		th, ok := p.threads[id]
		shrink := ok && len(p.threads) > p.min
		if shrink {
			delete(p.threads, id)
		}
		p.mu.Unlock()
		if shrink {
			// Stop from a fresh goroutine: handleSignal runs on the
			// reporting thread's own run loop, so a synchronous Stop here
			// would deadlock waiting for that same loop to exit.
			go th.Stop(p.stopTimeout)
		}
	}
}

// Stop stops every thread in the pool, waiting up to stopTimeout each,
// concurrently.
func (p *Pool) Stop() {
	p.mu.Lock()
	threads := make([]*Thread, 0, len(p.threads))
	for _, th := range p.threads {
		threads = append(threads, th)
	}
	p.threads = make(map[int]*Thread)
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, th := range threads {
		wg.Add(1)
		go func(th *Thread) {
			defer wg.Done()
			th.Stop(p.stopTimeout)
		}(th)
	}
	wg.Wait()
}
