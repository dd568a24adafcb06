// Package resolver turns index lookups into ranked completion candidates.
package resolver

import (
	"github.com/teranos/texcomp/errors"
	"github.com/teranos/texcomp/logger"
	"github.com/teranos/texcomp/symbol"
	"go.uber.org/zap"
)

// Querier is the lookup the resolver needs. *index.Index implements it.
type Querier interface {
	Query(kind symbol.Kind, prefix string) ([]symbol.Record, error)
}

// Candidate is a ranked symbol. Lower Rank is shown first.
type Candidate struct {
	Record symbol.Record `json:"record"`
	Rank   int           `json:"rank"`
}

// Visibility decides whether symbols of a unit may be offered.
// Built-in symbols are always visible.
type Visibility func(symbol.UnitID) bool

// Resolver ranks candidates for a prefix
type Resolver struct {
	index  Querier
	logger *zap.SugaredLogger
}

// New creates a resolver over the given index
func New(index Querier, log *zap.SugaredLogger) *Resolver {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Resolver{index: index, logger: log}
}

// Resolve returns candidates of kind starting with prefix. An empty prefix
// matches every symbol; limit <= 0 means unbounded.
func (r *Resolver) Resolve(kind symbol.Kind, prefix string, limit int) ([]Candidate, error) {
	return r.ResolveWithin(kind, prefix, limit, nil)
}

// ResolveWithin is Resolve restricted to units accepted by visible.
// A nil visibility accepts every unit.
//
// Same-name symbols from different units are all kept: a user definition
// and a built-in of the same name are different symbols. Ordering is by
// name; within one name user-defined symbols come first and the built-in last.
func (r *Resolver) ResolveWithin(kind symbol.Kind, prefix string, limit int, visible Visibility) ([]Candidate, error) {
	if !kind.Valid() {
		return nil, errors.NewInvalidArgumentError("unknown symbol kind %d", kind)
	}

	records, err := r.index.Query(kind, prefix)
	if err != nil {
		return nil, errors.Wrapf(err, "query %s %q", kind, prefix)
	}

	candidates := make([]Candidate, 0, len(records))
	seen := make(map[symbol.Record]struct{}, len(records))
	for _, rec := range records {
		if !rec.IsBuiltin() && visible != nil && !visible(rec.Origin) {
			continue
		}
		if _, dup := seen[rec]; dup {
			continue
		}
		seen[rec] = struct{}{}
		candidates = append(candidates, Candidate{Record: rec})
	}

	rank(candidates, prefix)

	total := len(candidates)
	if limit > 0 && total > limit {
		candidates = candidates[:limit]
	}

	r.logger.Debugw("Resolved candidates",
		logger.FieldKind, kind.String(),
		logger.FieldPrefix, prefix,
		logger.FieldLimit, limit,
		logger.FieldCount, len(candidates),
		"matched", total,
	)
	return candidates, nil
}
