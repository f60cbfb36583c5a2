package attribution

import "sort"

// OrderBy selects the entity ordering policy.
type OrderBy string

const (
	// ByReference sorts by the reference category's value, descending.
	ByReference OrderBy = "reference"
	// ByTotal sorts by the entity's total across all categories, descending.
	ByTotal OrderBy = "total"
)

// OrderOptions parameterizes Order and OrderTables.
type OrderOptions struct {
	Reference string
	// Ranking supplies the fallback key when Reference is missing, usually
	// BucketPlan.Ranking. When empty the tables are ranked here.
	Ranking []string
	By      OrderBy
}

// EntityOrder is the display order of entities. Key is the category that
// drove the order, empty when ordered by total.
type EntityOrder struct {
	Entities []string `json:"entities"`
	Key      string   `json:"key,omitempty"`
	By       OrderBy  `json:"by"`

	positions map[string]int
}

// Position returns the 1-based display ordinal of entity, or 0 when the
// entity is not part of the order.
func (o EntityOrder) Position(entity string) int {
	if o.positions != nil {
		return o.positions[entity]
	}
	for i, e := range o.Entities {
		if e == entity {
			return i + 1
		}
	}
	return 0
}

// Positions maps every entity to its 1-based display ordinal.
func (o EntityOrder) Positions() map[string]int {
	out := make(map[string]int, len(o.Entities))
	for i, e := range o.Entities {
		out[e] = i + 1
	}
	return out
}

// Len is the number of ordered entities.
func (o EntityOrder) Len() int { return len(o.Entities) }

// Order computes the display order of a single table.
func Order(t *Table, opts OrderOptions) (EntityOrder, []Warning) {
	return OrderTables([]*Table{t}, opts)
}

// OrderTables computes one shared display order for paired tables. The key
// of an entity is the sum of the key category over all tables; an entity
// counts as having the key when any table observed it.
//
// Entities with the key come first, by value descending, then the entities
// lacking it; ties are broken by entity id ascending. When the reference is
// absent from every table the first ranked category present is used instead
// and a MissingReferenceWarning is returned.
func OrderTables(tables []*Table, opts OrderOptions) (EntityOrder, []Warning) {
	var entities []string
	seen := make(map[string]struct{})
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, e := range t.entities {
			if _, ok := seen[e]; !ok {
				seen[e] = struct{}{}
				entities = append(entities, e)
			}
		}
	}

	by := opts.By
	if by == "" {
		by = ByReference
	}

	var warnings []Warning
	key := ""
	if by == ByReference {
		key = opts.Reference
		if key == "" || !anyHasCategory(tables, key) {
			fallback := firstPresent(tables, opts.Ranking)
			if fallback == "" {
				fallback = firstPresent(tables, combinedRanking(tables))
			}
			if opts.Reference != "" {
				warnings = append(warnings, Warning{
					Kind:     MissingReferenceWarning,
					Category: opts.Reference,
					Fallback: fallback,
				})
			}
			key = fallback
			if key == "" {
				by = ByTotal
			}
		}
	}

	values := make(map[string]float64, len(entities))
	has := make(map[string]bool, len(entities))
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, e := range t.entities {
			if by == ByTotal {
				values[e] += t.RowTotal(e)
				has[e] = true
				continue
			}
			values[e] += t.Value(e, key)
			has[e] = has[e] || t.Observed(e, key)
		}
	}

	sort.SliceStable(entities, func(a, b int) bool {
		ea, eb := entities[a], entities[b]
		if has[ea] != has[eb] {
			return has[ea]
		}
		if values[ea] != values[eb] {
			return values[ea] > values[eb]
		}
		return ea < eb
	})

	if by == ByTotal {
		key = ""
	}
	order := EntityOrder{Entities: entities, Key: key, By: by}
	order.positions = order.Positions()
	return order, warnings
}

func anyHasCategory(tables []*Table, c string) bool {
	for _, t := range tables {
		if t != nil && t.HasCategory(c) {
			return true
		}
	}
	return false
}

func firstPresent(tables []*Table, ranking []string) string {
	for _, c := range ranking {
		if c != OthersCategory && anyHasCategory(tables, c) {
			return c
		}
	}
	return ""
}

func combinedRanking(tables []*Table) []string {
	totals := make(map[string]float64)
	var cats []string
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, c := range t.categories {
			if c == OthersCategory {
				continue
			}
			if _, ok := totals[c]; !ok {
				cats = append(cats, c)
			}
			totals[c] += t.ColumnTotal(c)
		}
	}
	sort.SliceStable(cats, func(a, b int) bool {
		if totals[cats[a]] != totals[cats[b]] {
			return totals[cats[a]] > totals[cats[b]]
		}
		return cats[a] < cats[b]
	})
	return cats
}
