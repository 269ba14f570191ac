package downloader

import (
	"container/list"
	"context"
	"sync"
)

// Semaphore bounds the number of concurrent downloads. Waiters are served in FIFO order, and the capacity
// can change while it is in use.
type Semaphore struct {
	mu       sync.Mutex
	capacity int
	inUse    int

	// waiters holds one chan struct{} per blocked Acquire, closed when its slot is granted.
	waiters list.List
}

// NewSemaphore returns a Semaphore with the given number of slots. capacity <= 0 means no limit.
func NewSemaphore(capacity int) *Semaphore {
	return &Semaphore{capacity: capacity}
}

func (s *Semaphore) hasFreeSlotLocked() bool {
	return s.capacity <= 0 || s.inUse < s.capacity
}

// grantLocked hands free slots to the oldest waiters.
func (s *Semaphore) grantLocked() {
	for s.waiters.Len() > 0 && s.hasFreeSlotLocked() {
		front := s.waiters.Front()
		s.waiters.Remove(front)
		s.inUse++
		close(front.Value.(chan struct{}))
	}
}

// Acquire takes a slot, waiting until one is free or ctx is done. On success it must be matched by one Release.
func (s *Semaphore) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.waiters.Len() == 0 && s.hasFreeSlotLocked() {
		s.inUse++
		s.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	elem := s.waiters.PushBack(ready)
	s.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		defer s.mu.Unlock()
		select {
		case <-ready:
			// Granted after ctx was done: give the slot back.
			s.inUse--
		default:
			s.waiters.Remove(elem)
		}
		s.grantLocked()
		return ctx.Err()
	}
}

// Release returns a slot taken by Acquire.
func (s *Semaphore) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inUse <= 0 {
		panic("downloader: Semaphore.Release without Acquire")
	}
	s.inUse--
	s.grantLocked()
}

// InUse returns the number of slots currently taken.
func (s *Semaphore) InUse() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inUse
}

// Resize changes the number of slots, <= 0 meaning no limit. Shrinking doesn't affect current holders.
func (s *Semaphore) Resize(capacity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capacity = capacity
	s.grantLocked()
}
