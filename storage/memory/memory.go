// Package memory provides the in-process storage backend, an LRU cache with
// TTL support backed by github.com/hashicorp/golang-lru/v2.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rfakhoury/wagate/storage"
)

// Store implements storage.Store in process memory.
type Store struct {
	mu    sync.RWMutex
	cache *lru.Cache[string, *storage.Item]

	stopCh   chan struct{}
	stopOnce sync.Once
}

var _ storage.Store = (*Store)(nil)

// New builds a memory store bounded to maxItems entries. A janitor goroutine
// drops expired entries so TTLs hold even without reads.
func New(maxItems int) (*Store, error) {
	cache, err := lru.New[string, *storage.Item](maxItems)
	if err != nil {
		return nil, fmt.Errorf("create LRU cache: %w", err)
	}
	s := &Store{cache: cache, stopCh: make(chan struct{})}
	go s.janitor()
	return s, nil
}

func (s *Store) Get(ctx context.Context, key string, opts ...storage.Option) (*storage.Item, error) {
	o := storage.Apply(opts)
	storageKey := buildKey(o.Namespace, key)

	s.mu.RLock()
	item, ok := s.cache.Get(storageKey)
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if item.IsExpired() {
		s.mu.Lock()
		s.cache.Remove(storageKey)
		s.mu.Unlock()
		return nil, nil
	}
	return item, nil
}

func (s *Store) Set(ctx context.Context, key string, data []byte, opts ...storage.Option) error {
	o := storage.Apply(opts)
	item := &storage.Item{
		Data:      append([]byte(nil), data...),
		CreatedAt: time.Now(),
	}
	if o.TTL != nil {
		exp := item.CreatedAt.Add(*o.TTL)
		item.ExpiresAt = &exp
	}
	s.mu.Lock()
	s.cache.Add(buildKey(o.Namespace, key), item)
	s.mu.Unlock()
	return nil
}

func (s *Store) Delete(ctx context.Context, opts ...storage.Option) error {
	o := storage.Apply(opts)
	if o.Key != nil {
		s.mu.Lock()
		s.cache.Remove(buildKey(o.Namespace, *o.Key))
		s.mu.Unlock()
		return nil
	}
	// Namespace-wide delete: sweep keys sharing the prefix.
	prefix := buildKey(o.Namespace, "")
	s.mu.Lock()
	for _, k := range s.cache.Keys() {
		if strings.HasPrefix(k, prefix) {
			s.cache.Remove(k)
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	return nil
}

func (s *Store) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.Lock()
			for _, k := range s.cache.Keys() {
				if item, ok := s.cache.Peek(k); ok && item.IsExpired() {
					s.cache.Remove(k)
				}
			}
			s.mu.Unlock()
		}
	}
}

func buildKey(ns storage.Namespace, key string) string {
	switch n := ns.(type) {
	case storage.TenantNamespace:
		return "tenant:" + n.TenantID + ":" + key
	case storage.JobNamespace:
		return "tenant:" + n.TenantID + ":job:" + n.JobID + ":" + key
	default:
		return "global:" + key
	}
}
