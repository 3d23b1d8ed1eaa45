// Package l1 is the in-process tier for user-state records: a sharded,
// typed LRU with per-entry TTL.
package l1

import (
	"container/list"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openedx/edx-platform-sub027/internal/clock"
)

const numShards = 64

// EvictionPolicy determines which entry is removed when a shard is full.
type EvictionPolicy int

const (
	LRU  EvictionPolicy = iota // Least Recently Used
	FIFO                       // First In, First Out
)

// Options configures a Store.
type Options[V any] struct {
	TTL time.Duration
	// MaxEntries bounds each shard; 0 is unbounded.
	MaxEntries    int
	Eviction      EvictionPolicy
	SweepInterval time.Duration
	Clock         clock.Clock
	OnEvict       func(key string, value V)
}

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
	elem      *list.Element
}

type shard[V any] struct {
	mu    sync.Mutex
	items map[string]*entry[V]
	order *list.List
}

// Store is a sharded in-memory cache of V.
type Store[V any] struct {
	shards [numShards]*shard[V]
	opts   Options[V]
	hits   atomic.Int64
	misses atomic.Int64
	stopCh chan struct{}
	closed atomic.Bool
	wg     sync.WaitGroup
}

// New creates a Store and starts its expiry sweeper.
func New[V any](opts Options[V]) *Store[V] {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.SweepInterval == 0 {
		opts.SweepInterval = 30 * time.Second
	}
	s := &Store[V]{opts: opts, stopCh: make(chan struct{})}
	for i := range s.shards {
		s.shards[i] = &shard[V]{items: make(map[string]*entry[V]), order: list.New()}
	}
	s.wg.Add(1)
	go s.sweepLoop()
	return s
}

func (s *Store[V]) shardFor(key string) *shard[V] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%numShards]
}

// Set stores value under key. A zero ttl uses Options.TTL; a negative one
// never expires.
func (s *Store[V]) Set(key string, value V, ttl time.Duration) {
	if ttl == 0 {
		ttl = s.opts.TTL
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = s.opts.Clock.Now().Add(ttl)
	}

	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e, ok := sh.items[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		if s.opts.Eviction == LRU {
			sh.order.MoveToFront(e.elem)
		}
		return
	}
	if s.opts.MaxEntries > 0 && len(sh.items) >= s.opts.MaxEntries {
		if back := sh.order.Back(); back != nil {
			s.remove(sh, back.Value.(*entry[V]))
		}
	}
	e := &entry[V]{key: key, value: value, expiresAt: expiresAt}
	e.elem = sh.order.PushFront(e)
	sh.items[key] = e
}

// Get returns the live value for key.
func (s *Store[V]) Get(key string) (V, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	var zero V
	e, ok := sh.items[key]
	if !ok {
		s.misses.Add(1)
		return zero, false
	}
	if clock.Expired(s.opts.Clock, e.expiresAt) {
		s.remove(sh, e)
		s.misses.Add(1)
		return zero, false
	}
	if s.opts.Eviction == LRU {
		sh.order.MoveToFront(e.elem)
	}
	s.hits.Add(1)
	return e.value, true
}

// Delete removes key.
func (s *Store[V]) Delete(key string) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e, ok := sh.items[key]; ok {
		s.remove(sh, e)
	}
}

// DeletePrefix removes every key starting with prefix.
func (s *Store[V]) DeletePrefix(prefix string) {
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, e := range sh.items {
			if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
				s.remove(sh, e)
			}
		}
		sh.mu.Unlock()
	}
}

// Flush removes every entry without calling OnEvict.
func (s *Store[V]) Flush() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.items = make(map[string]*entry[V])
		sh.order.Init()
		sh.mu.Unlock()
	}
}

// Stats holds hit/miss/entry counts.
type Stats struct {
	Hits    int64
	Misses  int64
	Entries int64
}

// Stats returns current statistics.
func (s *Store[V]) Stats() Stats {
	var total int64
	for _, sh := range s.shards {
		sh.mu.Lock()
		total += int64(len(sh.items))
		sh.mu.Unlock()
	}
	return Stats{Hits: s.hits.Load(), Misses: s.misses.Load(), Entries: total}
}

// Close stops the sweeper. Safe to call more than once.
func (s *Store[V]) Close() {
	if s.closed.Swap(true) {
		return
	}
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Store[V]) sweepLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stopCh:
			return
		}
	}
}

// Sweep drops every expired entry.
func (s *Store[V]) Sweep() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, e := range sh.items {
			if clock.Expired(s.opts.Clock, e.expiresAt) {
				s.remove(sh, e)
			}
		}
		sh.mu.Unlock()
	}
}

func (s *Store[V]) remove(sh *shard[V], e *entry[V]) {
	delete(sh.items, e.key)
	sh.order.Remove(e.elem)
	if s.opts.OnEvict != nil {
		s.opts.OnEvict(e.key, e.value)
	}
}
