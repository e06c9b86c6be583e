package util

// Semaphore bounds concurrent access to a resource, grounded on the
// buffered-channel token pattern the original core.Engine/scheduler
// assume via util.NewSemaphore(concurrency).Acquire()/.Release().
type Semaphore struct {
	tokens chan struct{}
}

// NewSemaphore returns a Semaphore allowing up to n concurrent holders.
// n <= 0 is treated as 1.
func NewSemaphore(n int) *Semaphore {
	if n <= 0 {
		n = 1
	}
	return &Semaphore{tokens: make(chan struct{}, n)}
}

// Acquire blocks until a token is available.
func (s *Semaphore) Acquire() {
	s.tokens <- struct{}{}
}

// TryAcquire acquires a token without blocking, reporting whether it
// succeeded.
func (s *Semaphore) TryAcquire() bool {
	select {
	case s.tokens <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release returns a token to the pool. Releasing without a matching
// Acquire will deadlock a subsequent Acquire once the channel is full,
// so callers must pair every Acquire with exactly one Release.
func (s *Semaphore) Release() {
	<-s.tokens
}

// Cap returns the maximum number of concurrent holders.
func (s *Semaphore) Cap() int {
	return cap(s.tokens)
}
