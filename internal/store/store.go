package store

import (
	"PoolLedger/internal/entity"
	"sort"
	"sync"
)

// Reader is read access to committed entities. Returned entities are
// copies and may be mutated freely by the caller.
type Reader interface {
	Get(kind entity.Kind, id string) (entity.Entity, bool)
	List(kind entity.Kind) []entity.Entity
}

// Store is the committed entity state. The engine is its only writer.
type Store interface {
	Reader
	Apply(cs *ChangeSet)
	Dump() []entity.Entity
	Restore(entities []entity.Entity)
	Count() int
}

// MemoryStore keeps every entity in memory, keyed by kind and id.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[entity.Kind]map[string]entity.Entity
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: make(map[entity.Kind]map[string]entity.Entity),
	}
}

func (s *MemoryStore) Get(kind entity.Kind, id string) (entity.Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.tables[kind][id]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// List returns copies of every entity of kind, sorted by id.
func (s *MemoryStore) List(kind entity.Kind) []entity.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	table := s.tables[kind]
	out := make([]entity.Entity, 0, len(table))
	for _, e := range table {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EntityID() < out[j].EntityID()
	})
	return out
}

// Apply makes a committed change set visible. The change set's entities
// are handed over and must not be mutated afterwards.
func (s *MemoryStore) Apply(cs *ChangeSet) {
	if cs == nil || len(cs.Entities) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range cs.Entities {
		s.put(e)
	}
}

func (s *MemoryStore) put(e entity.Entity) {
	table, ok := s.tables[e.Kind()]
	if !ok {
		table = make(map[string]entity.Entity)
		s.tables[e.Kind()] = table
	}
	table[e.EntityID()] = e
}

// Dump returns copies of every entity ordered by kind then id.
func (s *MemoryStore) Dump() []entity.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]entity.Entity, 0, s.countLocked())
	for _, table := range s.tables {
		for _, e := range table {
			out = append(out, e.Clone())
		}
	}
	sortEntities(out)
	return out
}

// Restore replaces all state with entities, used when loading a checkpoint.
func (s *MemoryStore) Restore(entities []entity.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tables = make(map[entity.Kind]map[string]entity.Entity)
	for _, e := range entities {
		s.put(e.Clone())
	}
}

func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countLocked()
}

func (s *MemoryStore) countLocked() int {
	n := 0
	for _, table := range s.tables {
		n += len(table)
	}
	return n
}

func sortEntities(es []entity.Entity) {
	sort.Slice(es, func(i, j int) bool {
		if es[i].Kind() != es[j].Kind() {
			return es[i].Kind() < es[j].Kind()
		}
		return es[i].EntityID() < es[j].EntityID()
	})
}
