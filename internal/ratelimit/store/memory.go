package store

import (
	"context"
	"sync"
	"time"
)

// counter is the window state of one key.
type counter struct {
	mu        sync.Mutex
	count     int64
	expiresAt time.Time
	removed   bool
}

// MemoryStore implements Store in process memory. Expired windows are
// swept periodically.
type MemoryStore struct {
	data sync.Map
	now  func() time.Time

	cleanup *time.Ticker
	done    chan struct{}
	mu      sync.Mutex
	closed  bool
}

// MemoryOption is a functional option for the memory store.
type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	return NewMemoryStoreWithCleanupInterval(time.Minute, opts...)
}

// NewMemoryStoreWithCleanupInterval creates a new in-memory store with custom cleanup interval.
func NewMemoryStoreWithCleanupInterval(interval time.Duration, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		now:     time.Now,
		cleanup: time.NewTicker(interval),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.startCleanup()

	return s
}

// Take implements Store.
func (s *MemoryStore) Take(ctx context.Context, key string, limit int, window time.Duration) (Window, error) {
	if err := ctx.Err(); err != nil {
		return Window{}, err
	}
	if s.isClosed() {
		return Window{}, ErrClosed
	}

	for {
		value, _ := s.data.LoadOrStore(key, &counter{})
		c := value.(*counter)

		c.mu.Lock()
		if c.removed {
			// Swept between load and lock; pick up the replacement.
			c.mu.Unlock()
			continue
		}
		w := s.take(c, limit, window)
		c.mu.Unlock()
		return w, nil
	}
}

// take advances the counter. The caller holds c.mu.
func (s *MemoryStore) take(c *counter, limit int, window time.Duration) Window {
	now := s.now()
	if c.expiresAt.IsZero() || !now.Before(c.expiresAt) {
		c.count = 0
		c.expiresAt = now.Add(window)
	}

	allowed := c.count < int64(limit)
	if allowed {
		c.count++
	}

	return Window{
		Count:      c.count,
		Allowed:    allowed,
		ResetAfter: c.expiresAt.Sub(now),
	}
}

// Reset implements Store.
func (s *MemoryStore) Reset(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if value, ok := s.data.LoadAndDelete(key); ok {
		c := value.(*counter)
		c.mu.Lock()
		c.removed = true
		c.mu.Unlock()
	}
	return nil
}

// Len returns the number of tracked keys, expired or not.
func (s *MemoryStore) Len() int {
	n := 0
	s.data.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.cleanup.Stop()
	close(s.done)
	return nil
}

func (s *MemoryStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *MemoryStore) startCleanup() {
	for {
		select {
		case <-s.cleanup.C:
			s.removeExpired()
		case <-s.done:
			return
		}
	}
}

func (s *MemoryStore) removeExpired() {
	now := s.now()
	s.data.Range(func(key, value any) bool {
		c := value.(*counter)
		c.mu.Lock()
		expired := !c.expiresAt.IsZero() && !now.Before(c.expiresAt)
		if expired {
			c.removed = true
			s.data.CompareAndDelete(key, c)
		}
		c.mu.Unlock()
		return true
	})
}
