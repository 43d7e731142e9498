package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/bifrost/internal/observability"
)

// DefaultMaxEntries bounds the memory store when no capacity is configured.
const DefaultMaxEntries = 10000

// tracerName is the OpenTelemetry tracer name for cache operations.
const tracerName = "bifrost/cache"

// MemoryStore is an in-process LRU store with per-entry expiry.
type MemoryStore struct {
	logger     observability.Logger
	maxEntries int
	now        func() time.Time

	mu       sync.Mutex
	items    map[string]*list.Element
	eviction *list.List

	hits   int64
	misses int64

	stopCh    chan struct{}
	closeOnce sync.Once
}

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time
}

// NewMemoryStore creates a new in-memory store holding at most maxEntries
// entries; the least recently used entry is evicted first.
func NewMemoryStore(maxEntries int, logger observability.Logger) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	s := &MemoryStore{
		logger:     logger,
		maxEntries: maxEntries,
		now:        time.Now,
		items:      make(map[string]*list.Element),
		eviction:   list.New(),
		stopCh:     make(chan struct{}),
	}

	go s.cleanupLoop()

	logger.Info("memory verification cache initialized",
		observability.Int("maxEntries", maxEntries))

	return s
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, credential string) (*Entry, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "cache.Get",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.backend", "memory"),
			attribute.String("cache.key_fingerprint", Fingerprint(credential)),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		GetMetrics().operationDuration.WithLabelValues("memory", "get").Observe(time.Since(start).Seconds())
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	elem, exists := s.items[credential]
	if !exists {
		s.recordMiss(span)
		return nil, ErrCacheMiss
	}

	me := elem.Value.(*memoryEntry)
	if !s.now().Before(me.expiresAt) {
		s.removeElement(elem)
		s.recordMiss(span)
		return nil, ErrCacheMiss
	}

	s.eviction.MoveToFront(elem)

	atomic.AddInt64(&s.hits, 1)
	GetMetrics().hitsTotal.WithLabelValues("memory").Inc()
	span.SetAttributes(attribute.Bool("cache.hit", true))

	entry := me.entry
	return &entry, nil
}

func (s *MemoryStore) recordMiss(span trace.Span) {
	atomic.AddInt64(&s.misses, 1)
	GetMetrics().missesTotal.WithLabelValues("memory").Inc()
	span.SetAttributes(attribute.Bool("cache.hit", false))
}

// Put implements Store.
func (s *MemoryStore) Put(ctx context.Context, entry *Entry, ttl time.Duration) error {
	if err := validatePut(entry, ttl); err != nil {
		return err
	}

	_, span := otel.Tracer(tracerName).Start(ctx, "cache.Put",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("cache.backend", "memory"),
			attribute.String("cache.key_fingerprint", Fingerprint(entry.Credential)),
			attribute.Int("cache.value_size", len(entry.Result)),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		GetMetrics().operationDuration.WithLabelValues("memory", "put").Observe(time.Since(start).Seconds())
	}()

	me := &memoryEntry{
		entry:     *entry,
		expiresAt: s.now().Add(ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, exists := s.items[entry.Credential]; exists {
		elem.Value = me
		s.eviction.MoveToFront(elem)
		return nil
	}

	s.items[entry.Credential] = s.eviction.PushFront(me)

	for s.eviction.Len() > s.maxEntries {
		s.evictOldest()
	}

	GetMetrics().sizeGauge.WithLabelValues("memory").Set(float64(s.eviction.Len()))

	s.logger.Debug("verification cached",
		observability.String("credential", Fingerprint(entry.Credential)),
		observability.Duration("ttl", ttl),
		observability.Int("size", s.eviction.Len()))

	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, credential string) error {
	_, span := otel.Tracer(tracerName).Start(ctx, "cache.Delete",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("cache.backend", "memory")),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, exists := s.items[credential]; exists {
		s.removeElement(elem)
	}
	return nil
}

// Len returns the number of entries, including expired ones not yet swept.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eviction.Len()
}

// Stats implements StatsProvider.
func (s *MemoryStore) Stats() Stats {
	return Stats{
		Hits:   atomic.LoadInt64(&s.hits),
		Misses: atomic.LoadInt64(&s.misses),
		Size:   int64(s.Len()),
	}
}

// Close stops the cleanup goroutine and drops all entries.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)

		s.mu.Lock()
		s.items = make(map[string]*list.Element)
		s.eviction.Init()
		s.mu.Unlock()
	})
	return nil
}

// evictOldest removes the least recently used entry. Must be called with
// the lock held.
func (s *MemoryStore) evictOldest() {
	if elem := s.eviction.Back(); elem != nil {
		s.removeElement(elem)
		GetMetrics().evictionsTotal.WithLabelValues("memory").Inc()
	}
}

// removeElement must be called with the lock held.
func (s *MemoryStore) removeElement(elem *list.Element) {
	s.eviction.Remove(elem)
	me := elem.Value.(*memoryEntry)
	delete(s.items, me.entry.Credential)
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup removes expired entries.
func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for elem := s.eviction.Back(); elem != nil; {
		prev := elem.Prev()
		if !now.Before(elem.Value.(*memoryEntry).expiresAt) {
			s.removeElement(elem)
			removed++
		}
		elem = prev
	}

	if removed > 0 {
		GetMetrics().sizeGauge.WithLabelValues("memory").Set(float64(s.eviction.Len()))
		s.logger.Debug("verification cache cleanup completed",
			observability.Int("removed", removed))
	}
}
