// Package index provides prefix lookup across every registered unit.
//
// The index keeps one immutable snapshot built from a registry State. A query
// whose snapshot no longer matches the registry's (unit, revision) set and
// epoch rebuilds the whole index, swaps the new snapshot in atomically, then
// serves from it. Readers never see a partially built snapshot.
package index

import (
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/tchap/go-patricia/v2/patricia"
	"github.com/teranos/texcomp/errors"
	"github.com/teranos/texcomp/logger"
	"github.com/teranos/texcomp/registry"
	"github.com/teranos/texcomp/symbol"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Source publishes registry states. *registry.Registry implements it.
type Source interface {
	State() *registry.State
}

// Index serves prefix queries from a cached snapshot
type Index struct {
	source   Source
	current  atomic.Pointer[snapshot]
	group    singleflight.Group
	rebuilds atomic.Uint64
	logger   *zap.SugaredLogger
}

// New creates an index over the given source. The first query builds the snapshot.
func New(source Source, log *zap.SugaredLogger) *Index {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Index{source: source, logger: log}
}

// Query returns every record of kind whose name starts with prefix, ordered by
// name, then user-defined before built-in, then origin.
func (ix *Index) Query(kind symbol.Kind, prefix string) ([]symbol.Record, error) {
	if !kind.Valid() {
		return nil, errors.NewInvalidArgumentError("unknown symbol kind %d", kind)
	}
	return ix.snapshot().lookup(kind, prefix), nil
}

// Len returns the number of records of kind in the current snapshot
func (ix *Index) Len(kind symbol.Kind) int {
	return ix.snapshot().counts[kind]
}

// Rebuilds returns how many snapshots have been built
func (ix *Index) Rebuilds() uint64 {
	return ix.rebuilds.Load()
}

// Fresh reports whether the cached snapshot matches the registry right now
func (ix *Index) Fresh() bool {
	cur := ix.current.Load()
	return cur != nil && cur.matches(ix.source.State())
}

// snapshot returns a snapshot consistent with the source's current state,
// rebuilding when stale. Concurrent stale callers for the same registry
// generation share one rebuild.
func (ix *Index) snapshot() *snapshot {
	st := ix.source.State()
	if cur := ix.current.Load(); cur != nil && cur.matches(st) {
		return cur
	}

	v, _, _ := ix.group.Do(strconv.FormatUint(st.Generation, 10), func() (interface{}, error) {
		if cur := ix.current.Load(); cur != nil && cur.matches(st) {
			return cur, nil
		}
		next := ix.build(st)
		ix.publish(next)
		return next, nil
	})
	return v.(*snapshot)
}

// publish swaps next in unless a snapshot of a newer generation is already current
func (ix *Index) publish(next *snapshot) {
	for {
		cur := ix.current.Load()
		if cur != nil && cur.generation > next.generation {
			return
		}
		if ix.current.CompareAndSwap(cur, next) {
			return
		}
	}
}

func (ix *Index) build(st *registry.State) *snapshot {
	start := time.Now()

	byKind := make(map[symbol.Kind]map[string][]symbol.Record, len(symbol.Kinds))
	for _, k := range symbol.Kinds {
		byKind[k] = make(map[string][]symbol.Record)
	}
	for _, entry := range st.Units {
		for _, rec := range entry.Symbols {
			if rec.Name == "" {
				continue
			}
			names := byKind[rec.Kind]
			if names == nil {
				continue
			}
			names[rec.Name] = append(names[rec.Name], rec)
		}
	}

	snap := &snapshot{
		state:      st,
		epoch:      st.Epoch,
		generation: st.Generation,
		revisions:  st.Revisions(),
		tries:      make(map[symbol.Kind]*patricia.Trie, len(byKind)),
		counts:     make(map[symbol.Kind]int, len(byKind)),
	}
	for kind, names := range byKind {
		trie := patricia.NewTrie()
		for name, recs := range names {
			sortRecords(recs)
			trie.Insert(patricia.Prefix(name), recs)
			snap.counts[kind] += len(recs)
		}
		snap.tries[kind] = trie
	}

	n := ix.rebuilds.Add(1)
	ix.logger.Debugw("Index rebuilt",
		"rebuild", n,
		logger.FieldEpoch, st.Epoch,
		"units", len(st.Units),
		"commands", snap.counts[symbol.Command],
		"environments", snap.counts[symbol.Environment],
		"files", snap.counts[symbol.FilePath],
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	return snap
}

// snapshot is immutable once published
type snapshot struct {
	state      *registry.State
	epoch      uint64
	generation uint64
	revisions  map[symbol.UnitID]uint64
	tries      map[symbol.Kind]*patricia.Trie
	counts     map[symbol.Kind]int
}

// matches reports whether the snapshot was built from exactly the units and
// revisions in st
func (s *snapshot) matches(st *registry.State) bool {
	if s.state == st {
		return true
	}
	if s.epoch != st.Epoch || len(s.revisions) != len(st.Units) {
		return false
	}
	for id, e := range st.Units {
		if rev, ok := s.revisions[id]; !ok || rev != e.Revision {
			return false
		}
	}
	return true
}

func (s *snapshot) lookup(kind symbol.Kind, prefix string) []symbol.Record {
	trie := s.tries[kind]
	if trie == nil {
		return nil
	}

	var groups [][]symbol.Record
	collect := func(_ patricia.Prefix, item patricia.Item) error {
		groups = append(groups, item.([]symbol.Record))
		return nil
	}
	if prefix == "" {
		_ = trie.Visit(collect)
	} else {
		_ = trie.VisitSubtree(patricia.Prefix(prefix), collect)
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i][0].Name < groups[j][0].Name })

	n := 0
	for _, g := range groups {
		n += len(g)
	}
	out := make([]symbol.Record, 0, n)
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// sortRecords orders same-name records: user-defined first by origin, built-in last
func sortRecords(recs []symbol.Record) {
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.IsBuiltin() != b.IsBuiltin() {
			return !a.IsBuiltin()
		}
		return a.Origin < b.Origin
	})
}
