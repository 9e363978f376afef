// Package runquery defines the typed search-filter IR used to query the
// tracking store.
//
// Filters are values, not strings: discovery tiers construct them
// directly, backends compile them (the sqlite store compiles to
// parameterized SQL). This is a sealed interface - only types in this
// package implement it - so backend compilers can type-switch
// exhaustively.
package runquery

// Filter represents a predicate over tracked runs.
//
// Filter types:
//   - TagEquals: run has tag key with exactly this value
//   - AttrEquals: run attribute (status, experiment id, ...) equals value
//   - And: all filters must hold
//
// The fragment is deliberately small: equality and conjunction cover
// every discovery tier, and keeping OR/negation out keeps every backend
// trivially compilable.
type Filter interface {
	filterNode() // Marker method - seals interface to this package
}

// Attr names a run attribute that can be filtered on.
type Attr string

const (
	AttrRunID        Attr = "run_id"
	AttrExperimentID Attr = "experiment_id"
	AttrStatus       Attr = "status"
)

// TagEquals matches runs carrying tag Key with exactly Value.
type TagEquals struct {
	Key   string
	Value string
}

func (TagEquals) filterNode() {}

// AttrEquals matches runs whose attribute Attr equals Value.
type AttrEquals struct {
	Attr  Attr
	Value string
}

func (AttrEquals) filterNode() {}

// And matches runs satisfying every element. An empty And is vacuously
// true (matches all runs).
type And struct {
	Filters []Filter
}

func (And) filterNode() {}
