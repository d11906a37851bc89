package sessions

import (
	"hash/fnv"
	"sync"

	"github.com/rfakhoury/wagate/tenant"
)

const registryShards = 32

// Registry is the concurrency-safe mapping of tenant ID to session record.
// It is sharded so operations on unrelated tenants never contend on one
// process-wide lock; operations for the same tenant are atomic with respect
// to one another.
type Registry struct {
	shards [registryShards]registryShard
}

type registryShard struct {
	mu      sync.Mutex
	records map[tenant.ID]*Record
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].records = make(map[tenant.ID]*Record)
	}
	return r
}

func (r *Registry) shard(id tenant.ID) *registryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &r.shards[h.Sum32()%registryShards]
}

// Get returns the record for id, or nil if none exists.
func (r *Registry) Get(id tenant.ID) *Record {
	s := r.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id]
}

// GetOrCreate returns the existing record for id, or installs a fresh one in
// StateInitializing. The second return reports whether this call created it:
// under concurrent calls for an unseen tenant exactly one caller observes
// created=true and is responsible for constructing the driver handle; the
// others see the in-progress record.
func (r *Registry) GetOrCreate(id tenant.ID) (*Record, bool) {
	s := r.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok {
		return rec, false
	}
	rec := newRecord(id)
	s.records[id] = rec
	return rec, true
}

// Remove drops the record for id if it is still the registered one. Waiters
// on the record are woken and observe the eviction.
func (r *Registry) Remove(id tenant.ID, rec *Record) {
	s := r.shard(id)
	s.mu.Lock()
	if cur, ok := s.records[id]; ok && (rec == nil || cur == rec) {
		delete(s.records, id)
		rec = cur
	} else {
		rec = nil
	}
	s.mu.Unlock()

	if rec != nil {
		rec.mu.Lock()
		rec.evicted = true
		rec.broadcastLocked()
		rec.mu.Unlock()
	}
}

// removeEntry drops the map entry for id if rec is still the registered
// record, without touching rec itself. Callers that hold rec.mu use this to
// finish an eviction they have already marked on the record.
func (r *Registry) removeEntry(id tenant.ID, rec *Record) {
	s := r.shard(id)
	s.mu.Lock()
	if cur, ok := s.records[id]; ok && cur == rec {
		delete(s.records, id)
	}
	s.mu.Unlock()
}

// Len reports the number of live records.
func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		n += len(s.records)
		s.mu.Unlock()
	}
	return n
}

// Tenants lists every tenant with a live record, in no particular order.
func (r *Registry) Tenants() []tenant.ID {
	var out []tenant.ID
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for id := range s.records {
			out = append(out, id)
		}
		s.mu.Unlock()
	}
	return out
}
