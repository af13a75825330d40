package store

import (
	"context"
	"path"
	"sort"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

type delayedEntry struct {
	member string
	at     time.Time
}

// MemoryStore is an in-process Store used in tests and as a development
// fallback when Redis is not configured. TTLs are enforced lazily on read.
type MemoryStore struct {
	mu       sync.Mutex
	values   map[string]memoryEntry
	lists    map[string][]string
	delayed  map[string][]delayedEntry
	counters map[string]memoryCounter
}

type memoryCounter struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values:   make(map[string]memoryEntry),
		lists:    make(map[string][]string),
		delayed:  make(map[string][]delayedEntry),
		counters: make(map[string]memoryCounter),
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]memoryEntry)
	s.lists = make(map[string][]string)
	s.delayed = make(map[string][]delayedEntry)
	s.counters = make(map[string]memoryCounter)
	return nil
}

func (s *MemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(key, value, ttl)
	return nil
}

// put stores a copy; the caller may reuse its buffer.
func (s *MemoryStore) put(key string, value []byte, ttl time.Duration) {
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	s.values[key] = memoryEntry{value: append([]byte(nil), value...), expiresAt: expires}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.live(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), entry.value...), true, nil
}

// live returns the entry at key, evicting it first if its TTL passed.
func (s *MemoryStore) live(key string) (memoryEntry, bool) {
	entry, ok := s.values[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(s.values, key)
		return memoryEntry{}, false
	}
	return entry, true
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *MemoryStore) Update(_ context.Context, key string, ttl time.Duration, fn UpdateFunc) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(key)
	if !ok {
		return nil, false, nil
	}

	next, err := fn(append([]byte(nil), entry.value...))
	if err != nil {
		return nil, false, err
	}
	s.put(key, next, ttl)
	return next, true, nil
}

func (s *MemoryStore) ListPrepend(_ context.Context, key string, values ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// LPUSH semantics: each value ends up ahead of the previous one.
	for _, v := range values {
		s.lists[key] = append([]string{v}, s.lists[key]...)
	}
	return nil
}

func (s *MemoryStore) ListAppend(_ context.Context, key string, values ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[key] = append(s.lists[key], values...)
	return nil
}

func (s *MemoryStore) ListPopFront(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.lists[key]
	if len(list) == 0 {
		return "", false, nil
	}
	head := list[0]
	s.lists[key] = list[1:]
	return head, true, nil
}

func (s *MemoryStore) ListRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.lists[key]
	n := int64(len(list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n {
		return nil, nil
	}
	out := make([]string, stop-start+1)
	copy(out, list[start:stop+1])
	return out, nil
}

func (s *MemoryStore) ListLen(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.lists[key])), nil
}

func (s *MemoryStore) DelayedAdd(_ context.Context, key, member string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.delayed[key]
	// ZADD semantics: re-adding a member updates its score.
	for i := range entries {
		if entries[i].member == member {
			entries[i].at = at
			return nil
		}
	}
	s.delayed[key] = append(entries, delayedEntry{member: member, at: at})
	return nil
}

func (s *MemoryStore) PopDue(_ context.Context, key string, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []delayedEntry
	var remaining []delayedEntry
	for _, e := range s.delayed[key] {
		if !e.at.After(now) {
			due = append(due, e)
		} else {
			remaining = append(remaining, e)
		}
	}
	s.delayed[key] = remaining

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	members := make([]string, len(due))
	for i, e := range due {
		members[i] = e.member
	}
	if len(members) == 0 {
		return nil, nil
	}
	return members, nil
}

func (s *MemoryStore) IncrWithExpiry(_ context.Context, key string, expiry time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	c, ok := s.counters[key]
	if !ok || now.After(c.expiresAt) {
		c = memoryCounter{}
	}
	c.count++
	c.expiresAt = now.Add(expiry)
	s.counters[key] = c
	return c.count, nil
}

func (s *MemoryStore) Scan(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for k := range s.values {
		if _, ok := s.live(k); !ok {
			continue
		}
		matched, err := path.Match(pattern, k)
		if err != nil {
			return nil, err
		}
		if matched {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

var _ Store = (*MemoryStore)(nil)
