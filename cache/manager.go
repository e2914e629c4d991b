// Package cache implements the two write-back caches described in spec
// section 4.5: pinning while an operation holds a reference, an eviction
// set of released-but-still-resident entries, and a periodic flush with a
// graceful final flush on shutdown.
package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/google/btree"
)

// Entry is anything a Manager can hold: pages and boards both
// implement it (via small adapter types in the persistence package).
type Entry interface {
	// Key is the entity's id, used as the cache key.
	Key() string
	// Flush persists the entry's current contents. Called on eviction and
	// on every periodic/graceful flush.
	Flush() error
	// Size estimates the entry's in-memory footprint in bytes, used only
	// for the console/log stats line.
	Size() int64
}

type resident[T Entry] struct {
	value T
	pins  int
	// evictSeq is set when pins drops to zero; it orders the eviction
	// set so the least-recently-released entry is flushed first. Zero
	// means "not currently in the eviction set" (pinned, or freshly
	// loaded and not yet released).
	evictSeq uint64
}

type evictionKey struct {
	seq uint64
	key string
}

func lessEvictionKey(a, b evictionKey) bool {
	if a.seq != b.seq {
		return a.seq < b.seq
	}
	return a.key < b.key
}

// Manager is a capacity-bounded write-back cache for a single kind of
// entity (pages or boards; spec section 4.5 calls for one instance of
// each, default capacity ~10).
type Manager[T Entry] struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*resident[T]
	eviction *btree.BTreeG[evictionKey]
	nextSeq  uint64

	flushInterval time.Duration
	stop          chan struct{}
	stopped       chan struct{}
}

// NewManager creates a manager with the given capacity and starts its
// periodic flush task at the given interval (spec section 4.5 defaults
// this to 10s; pass 0 to disable the periodic task, e.g. in tests).
func NewManager[T Entry](capacity int, flushInterval time.Duration) *Manager[T] {
	m := &Manager[T]{
		capacity:      capacity,
		entries:       make(map[string]*resident[T]),
		eviction:      btree.NewG(32, lessEvictionKey),
		flushInterval: flushInterval,
		stop:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	if flushInterval > 0 {
		go m.run()
	} else {
		close(m.stopped)
	}
	return m
}

func (m *Manager[T]) run() {
	defer close(m.stopped)
	ticker := time.NewTicker(m.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.FlushAll()
		case <-m.stop:
			return
		}
	}
}

// Acquire pins the entry for key, loading it via load if not already
// resident. The returned release func must be called exactly once when
// the caller is done; it is safe to call from any goroutine.
func (m *Manager[T]) Acquire(key string, load func() (T, error)) (value T, release func(), err error) {
	m.mu.Lock()
	if r, ok := m.entries[key]; ok {
		if r.evictSeq != 0 {
			m.eviction.Delete(evictionKey{seq: r.evictSeq, key: key})
			r.evictSeq = 0
		}
		r.pins++
		v := r.value
		m.mu.Unlock()
		return v, m.releaseFunc(key), nil
	}
	m.mu.Unlock()

	v, err := load()
	if err != nil {
		var zero T
		return zero, nil, err
	}

	m.mu.Lock()
	if r, ok := m.entries[key]; ok {
		// Lost a race against a concurrent Acquire for the same key;
		// keep the entry that won and discard the freshly loaded value.
		if r.evictSeq != 0 {
			m.eviction.Delete(evictionKey{seq: r.evictSeq, key: key})
			r.evictSeq = 0
		}
		r.pins++
		winner := r.value
		m.mu.Unlock()
		return winner, m.releaseFunc(key), nil
	}
	m.entries[key] = &resident[T]{value: v, pins: 1}
	m.mu.Unlock()
	return v, m.releaseFunc(key), nil
}

func (m *Manager[T]) releaseFunc(key string) func() {
	var once sync.Once
	return func() {
		once.Do(func() { m.release(key) })
	}
}

// release decrements the pin count; at zero the entry joins the eviction
// set, and if the cache is over capacity, least-recently-released entries
// are flushed to disk and dropped until capacity is restored.
func (m *Manager[T]) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.entries[key]
	if !ok {
		return
	}
	r.pins--
	if r.pins < 0 {
		panic(fmt.Sprintf("cache: release of %s without a matching pin", key))
	}
	if r.pins > 0 {
		return
	}

	m.nextSeq++
	r.evictSeq = m.nextSeq
	m.eviction.ReplaceOrInsert(evictionKey{seq: r.evictSeq, key: key})

	for len(m.entries) > m.capacity {
		oldest, ok := m.eviction.Min()
		if !ok {
			break
		}
		m.eviction.Delete(oldest)
		victim := m.entries[oldest.key]
		delete(m.entries, oldest.key)
		// Eviction writes are synchronous with respect to the evicting
		// operation (spec section 4.5's shared-resource policy).
		_ = victim.value.Flush()
	}
}

// FlushAll writes every currently resident entry to disk, pinned or not,
// without evicting any of them. Used by the periodic flush task and by
// graceful shutdown.
func (m *Manager[T]) FlushAll() {
	m.mu.Lock()
	values := make([]T, 0, len(m.entries))
	for _, r := range m.entries {
		values = append(values, r.value)
	}
	m.mu.Unlock()

	for _, v := range values {
		_ = v.Flush()
	}
}

// Shutdown stops the periodic flush task and performs one final flush of
// every resident entry (spec section 4.5's graceful-shutdown handler).
func (m *Manager[T]) Shutdown() {
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	<-m.stopped
	m.FlushAll()
}

// Stats reports a human-readable summary line for the console/log, sized
// with github.com/docker/go-units the way disk- and memory-budget figures
// are elsewhere in the teacher's stack.
func (m *Manager[T]) Stats() string {
	m.mu.Lock()
	resident := len(m.entries)
	pinned := 0
	var totalBytes int64
	for _, r := range m.entries {
		if r.pins > 0 {
			pinned++
		}
		totalBytes += r.value.Size()
	}
	m.mu.Unlock()
	return fmt.Sprintf("%d/%d resident (%s), %d pinned", resident, m.capacity, units.HumanSize(float64(totalBytes)), pinned)
}
