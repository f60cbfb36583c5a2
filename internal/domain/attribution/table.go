// Package attribution is the categorical attribution engine: it turns sparse
// (entity, category, value) observations into dense, bucketed, ordered and
// colored tables ready for a chart backend. Nothing in this package performs
// I/O; the ColorRegistry is its only mutable shared state.
package attribution

import (
	"math"
	"sort"
)

// OthersCategory is the synthetic category absorbing folded categories.
const OthersCategory = "Others"

// Observation is one (entity, category, value) triple. Duplicates of the same
// (entity, category) pair are summed by Pivot.
type Observation struct {
	EntityID   string  `json:"entity_id"`
	CategoryID string  `json:"category_id"`
	Value      float64 `json:"value"`
}

// Table is a dense entity x category matrix with explicit row and column
// order. Every entity has a value for every category. A Table also remembers
// which cells came from real observations, so an observed zero differs from
// a densified one.
//
// Tables are treated as immutable once returned by a stage; every stage
// produces a new Table.
type Table struct {
	entities   []string
	categories []string
	entityIdx  map[string]int
	catIdx     map[string]int
	values     [][]float64
	observed   [][]bool
}

func newTable(entities, categories []string) *Table {
	t := &Table{
		entities:   append([]string(nil), entities...),
		categories: append([]string(nil), categories...),
		entityIdx:  make(map[string]int, len(entities)),
		catIdx:     make(map[string]int, len(categories)),
		values:     make([][]float64, len(entities)),
		observed:   make([][]bool, len(entities)),
	}
	for i, e := range t.entities {
		t.entityIdx[e] = i
		t.values[i] = make([]float64, len(categories))
		t.observed[i] = make([]bool, len(categories))
	}
	for j, c := range t.categories {
		t.catIdx[c] = j
	}
	return t
}

// Entities returns the row order.
func (t *Table) Entities() []string { return append([]string(nil), t.entities...) }

// Categories returns the column order.
func (t *Table) Categories() []string { return append([]string(nil), t.categories...) }

// Len is the number of entities.
func (t *Table) Len() int { return len(t.entities) }

// Width is the number of categories.
func (t *Table) Width() int { return len(t.categories) }

// IsEmpty reports whether the table has no rows or no columns.
func (t *Table) IsEmpty() bool { return t == nil || len(t.entities) == 0 || len(t.categories) == 0 }

// HasCategory reports whether c is a column of t.
func (t *Table) HasCategory(c string) bool {
	_, ok := t.catIdx[c]
	return ok
}

// HasEntity reports whether e is a row of t.
func (t *Table) HasEntity(e string) bool {
	_, ok := t.entityIdx[e]
	return ok
}

// Value returns the cell value, 0 for unknown entities or categories.
func (t *Table) Value(entity, category string) float64 {
	i, ok := t.entityIdx[entity]
	if !ok {
		return 0
	}
	j, ok := t.catIdx[category]
	if !ok {
		return 0
	}
	return t.values[i][j]
}

// Observed reports whether the cell was backed by at least one observation.
func (t *Table) Observed(entity, category string) bool {
	i, ok := t.entityIdx[entity]
	if !ok {
		return false
	}
	j, ok := t.catIdx[category]
	if !ok {
		return false
	}
	return t.observed[i][j]
}

// Row returns a copy of the entity's values in column order.
func (t *Table) Row(entity string) []float64 {
	i, ok := t.entityIdx[entity]
	if !ok {
		return nil
	}
	return append([]float64(nil), t.values[i]...)
}

// RowTotal sums an entity's values.
func (t *Table) RowTotal(entity string) float64 {
	i, ok := t.entityIdx[entity]
	if !ok {
		return 0
	}
	var sum float64
	for _, v := range t.values[i] {
		sum += v
	}
	return sum
}

// ColumnTotal sums a category's values across entities.
func (t *Table) ColumnTotal(category string) float64 {
	j, ok := t.catIdx[category]
	if !ok {
		return 0
	}
	var sum float64
	for i := range t.entities {
		sum += t.values[i][j]
	}
	return sum
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	c := newTable(t.entities, t.categories)
	for i := range t.values {
		copy(c.values[i], t.values[i])
		copy(c.observed[i], t.observed[i])
	}
	return c
}

// WithEntities returns a copy restricted to (and ordered by) the given
// entities. Unknown entities are skipped.
func (t *Table) WithEntities(entities []string) *Table {
	keep := make([]string, 0, len(entities))
	for _, e := range entities {
		if t.HasEntity(e) {
			keep = append(keep, e)
		}
	}
	out := newTable(keep, t.categories)
	for i, e := range keep {
		src := t.entityIdx[e]
		copy(out.values[i], t.values[src])
		copy(out.observed[i], t.observed[src])
	}
	return out
}

// Equal reports whether two tables have the same order, values and observed
// cells, comparing values within eps.
func (t *Table) Equal(o *Table, eps float64) bool {
	if t == nil || o == nil {
		return t == o
	}
	if !equalStrings(t.entities, o.entities) || !equalStrings(t.categories, o.categories) {
		return false
	}
	for i := range t.values {
		for j := range t.values[i] {
			if math.Abs(t.values[i][j]-o.values[i][j]) > eps || t.observed[i][j] != o.observed[i][j] {
				return false
			}
		}
	}
	return true
}

// Totals returns every category's column total.
func (t *Table) Totals() map[string]float64 {
	out := make(map[string]float64, len(t.categories))
	for _, c := range t.categories {
		out[c] = t.ColumnTotal(c)
	}
	return out
}

// SortedCategories returns the column names in ascending order.
func (t *Table) SortedCategories() []string {
	out := t.Categories()
	sort.Strings(out)
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
