package loader

import "sync"

// barrier counts outstanding resources down and calls onZero from the
// goroutine that completes the last one.
type barrier struct {
	mu        sync.Mutex
	remaining int
	onZero    func() error
}

func newBarrier(n int, onZero func() error) *barrier {
	return &barrier{remaining: n, onZero: onZero}
}

func (b *barrier) done() error {
	b.mu.Lock()
	b.remaining--
	last := b.remaining == 0
	b.mu.Unlock()
	if !last {
		return nil
	}
	return b.onZero()
}

func (b *barrier) fire() error {
	return b.onZero()
}
