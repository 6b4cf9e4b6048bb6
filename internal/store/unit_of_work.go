package store

import (
	"PoolLedger/internal/entity"
)

// ChangeSet is the coalesced result of one event: at most one write per
// entity, ordered by kind then id.
type ChangeSet struct {
	Entities []entity.Entity
}

func (cs *ChangeSet) Len() int {
	if cs == nil {
		return 0
	}
	return len(cs.Entities)
}

// Record is the stored form of one entity.
type Record struct {
	Kind entity.Kind
	ID   string
	Data []byte
}

// Records encodes every entity in the change set.
func (cs *ChangeSet) Records() ([]Record, error) {
	return EncodeAll(cs.Entities)
}

func EncodeAll(es []entity.Entity) ([]Record, error) {
	out := make([]Record, 0, len(es))
	for _, e := range es {
		data, err := entity.Encode(e)
		if err != nil {
			return nil, err
		}
		out = append(out, Record{Kind: e.Kind(), ID: e.EntityID(), Data: data})
	}
	return out, nil
}

func DecodeAll(records []Record) ([]entity.Entity, error) {
	out := make([]entity.Entity, 0, len(records))
	for _, r := range records {
		e, err := entity.Decode(r.Kind, r.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// UnitOfWork stages all reads and writes of one event on top of committed
// state. Nothing reaches the store until Commit; a failed event simply
// drops its unit of work.
type UnitOfWork struct {
	base   Reader
	staged map[entity.Key]entity.Entity
	dirty  map[entity.Key]struct{}
}

func NewUnitOfWork(base Reader) *UnitOfWork {
	return &UnitOfWork{
		base:   base,
		staged: make(map[entity.Key]entity.Entity),
		dirty:  make(map[entity.Key]struct{}),
	}
}

// Get returns the staged copy of an entity, loading it from the base on
// first access. Repeated calls return the same pointer.
func (u *UnitOfWork) Get(kind entity.Kind, id string) (entity.Entity, bool) {
	key := entity.Key{Kind: kind, ID: id}
	if e, ok := u.staged[key]; ok {
		return e, true
	}

	e, ok := u.base.Get(kind, id)
	if !ok {
		return nil, false
	}
	u.staged[key] = e
	return e, true
}

// Put stages e and marks it for writing. Later mutations through the same
// pointer are captured as well.
func (u *UnitOfWork) Put(e entity.Entity) {
	key := entity.KeyOf(e)
	u.staged[key] = e
	u.dirty[key] = struct{}{}
}

// Written returns every entity marked for writing, ordered by kind then id.
func (u *UnitOfWork) Written() []entity.Entity {
	out := make([]entity.Entity, 0, len(u.dirty))
	for key := range u.dirty {
		out = append(out, u.staged[key])
	}
	sortEntities(out)
	return out
}

// Commit returns the coalesced change set. The unit must not be used
// afterwards.
func (u *UnitOfWork) Commit() *ChangeSet {
	return &ChangeSet{Entities: u.Written()}
}
