// Package registry owns the per-unit symbol sets that feed the completion index.
//
// Writers (Upsert, Remove) are serialized by a single coarse lock. Every write
// publishes a new immutable State, so readers take a consistent view of all
// units without locking.
package registry

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/teranos/texcomp/errors"
	"github.com/teranos/texcomp/logger"
	"github.com/teranos/texcomp/symbol"
	"go.uber.org/zap"
)

// UnitEntry is a published unit. Entries are never mutated after publication;
// an upsert replaces the entry wholesale.
type UnitEntry struct {
	ID       symbol.UnitID
	Symbols  []symbol.Record
	Revision uint64
}

// State is an immutable view of every registered unit.
type State struct {
	// Epoch increments on every unit removal
	Epoch uint64
	// Generation increments on every write
	Generation uint64
	Units      map[symbol.UnitID]*UnitEntry
}

// Revisions returns the (unit, revision) set of this state
func (s *State) Revisions() map[symbol.UnitID]uint64 {
	revs := make(map[symbol.UnitID]uint64, len(s.Units))
	for id, e := range s.Units {
		revs[id] = e.Revision
	}
	return revs
}

// Registry tracks unit lifecycle and per-unit revisions
type Registry struct {
	mu     sync.Mutex
	state  atomic.Pointer[State]
	closed bool
	logger *zap.SugaredLogger
}

// New creates an empty registry
func New(log *zap.SugaredLogger) *Registry {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	r := &Registry{logger: log}
	r.state.Store(&State{Units: map[symbol.UnitID]*UnitEntry{}})
	return r
}

// State returns the current published state. The result must not be modified.
func (r *Registry) State() *State {
	return r.state.Load()
}

// Upsert replaces the unit's entire symbol set and bumps its revision.
// Every record's origin is set to id; duplicate (name, kind) pairs collapse
// to the last one supplied.
func (r *Registry) Upsert(id symbol.UnitID, records []symbol.Record) (uint64, error) {
	table := symbol.NewTable(len(records))
	for _, rec := range records {
		if !rec.Kind.Valid() {
			return 0, errors.NewInvalidArgumentError("unit %q: symbol %q has unknown kind %d", id, rec.Name, rec.Kind)
		}
		rec.Origin = id
		table.Insert(rec)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, errors.Wrapf(errors.ErrClosed, "upsert unit %q", id)
	}

	prev := r.state.Load()
	revision := uint64(1)
	if old, ok := prev.Units[id]; ok {
		revision = old.Revision + 1
	}

	next := prev.clone()
	next.Generation++
	next.Units[id] = &UnitEntry{
		ID:       id,
		Symbols:  table.All(),
		Revision: revision,
	}
	r.state.Store(next)

	r.logger.Debugw("Unit updated",
		logger.FieldUnit, id,
		logger.FieldRevision, revision,
		logger.FieldCount, table.Len(),
	)
	return revision, nil
}

// Remove deletes the unit. Removing an unknown unit is a no-op.
func (r *Registry) Remove(id symbol.UnitID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.state.Load()
	if _, ok := prev.Units[id]; !ok {
		return
	}

	next := prev.clone()
	delete(next.Units, id)
	next.Epoch++
	next.Generation++
	r.state.Store(next)

	r.logger.Debugw("Unit removed", logger.FieldUnit, id, logger.FieldEpoch, next.Epoch)
}

// Revision returns the unit's current revision
func (r *Registry) Revision(id symbol.UnitID) (uint64, error) {
	e, ok := r.state.Load().Units[id]
	if !ok {
		return 0, errors.NewNotFoundError("unit %q", id)
	}
	return e.Revision, nil
}

// Get returns the published entry for a unit
func (r *Registry) Get(id symbol.UnitID) (*UnitEntry, error) {
	e, ok := r.state.Load().Units[id]
	if !ok {
		return nil, errors.NewNotFoundError("unit %q", id)
	}
	return e, nil
}

// Has reports whether the unit is registered
func (r *Registry) Has(id symbol.UnitID) bool {
	_, ok := r.state.Load().Units[id]
	return ok
}

// Units returns the registered unit ids in sorted order
func (r *Registry) Units() []symbol.UnitID {
	st := r.state.Load()
	ids := make([]symbol.UnitID, 0, len(st.Units))
	for id := range st.Units {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Close drops every unit. Later upserts fail with ErrClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true

	prev := r.state.Load()
	r.state.Store(&State{
		Epoch:      prev.Epoch + 1,
		Generation: prev.Generation + 1,
		Units:      map[symbol.UnitID]*UnitEntry{},
	})
	r.logger.Debugw("Registry closed", logger.FieldCount, len(prev.Units))
}

func (s *State) clone() *State {
	units := make(map[symbol.UnitID]*UnitEntry, len(s.Units)+1)
	for id, e := range s.Units {
		units[id] = e
	}
	return &State{Epoch: s.Epoch, Generation: s.Generation, Units: units}
}
