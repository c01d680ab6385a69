package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/Kocoro-lab/Shannon/go/microresearch/internal/metrics"
)

// LocalLRU is an in-process byte cache with TTL, used when Redis is not
// configured.
type LocalLRU struct {
	mu   sync.Mutex
	cap  int
	list *list.List // front = most recent
	m    map[string]*list.Element
	now  func() time.Time
}

type lruEntry struct {
	key string
	val []byte
	exp time.Time
}

func NewLocalLRU(capacity int) *LocalLRU {
	if capacity <= 0 {
		capacity = 256
	}
	return &LocalLRU{cap: capacity, list: list.New(), m: make(map[string]*list.Element, capacity), now: time.Now}
}

func (l *LocalLRU) Get(_ context.Context, key string) ([]byte, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.m[key]; ok {
		ent := el.Value.(lruEntry)
		if ent.exp.After(l.now()) {
			l.list.MoveToFront(el)
			metrics.SynthesisCacheResults.WithLabelValues("hit").Inc()
			return ent.val, true, nil
		}
		l.list.Remove(el)
		delete(l.m, key)
	}
	metrics.SynthesisCacheResults.WithLabelValues("miss").Inc()
	return nil, false, nil
}

func (l *LocalLRU) Set(_ context.Context, key string, v []byte, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	ent := lruEntry{key: key, val: v, exp: l.now().Add(ttl)}
	if el, ok := l.m[key]; ok {
		el.Value = ent
		l.list.MoveToFront(el)
		return nil
	}
	l.m[key] = l.list.PushFront(ent)
	if l.list.Len() > l.cap {
		if lru := l.list.Back(); lru != nil {
			delete(l.m, lru.Value.(lruEntry).key)
			l.list.Remove(lru)
		}
	}
	return nil
}

// Len returns the number of entries, expired ones included.
func (l *LocalLRU) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.list.Len()
}
