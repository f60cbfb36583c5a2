package attribution

import (
	"math"

	pkgerrors "github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

// Pivot densifies observations into a Table. Entities and categories appear
// in first-seen order, duplicates are summed and missing cells are 0.
//
// An empty slice returns an error for which IsEmptyInput is true. Negative,
// NaN or infinite values are rejected with ErrCodeInvalidObservation.
func Pivot(observations []Observation) (*Table, error) {
	if len(observations) == 0 {
		return nil, emptyInputError("pivot")
	}

	var entities, categories []string
	seenE := make(map[string]struct{})
	seenC := make(map[string]struct{})
	for i, o := range observations {
		if o.Value < 0 || math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
			return nil, pkgerrors.Newf(pkgerrors.ErrCodeInvalidObservation,
				"observation %d (%s, %s) has invalid value %v", i, o.EntityID, o.CategoryID, o.Value)
		}
		if _, ok := seenE[o.EntityID]; !ok {
			seenE[o.EntityID] = struct{}{}
			entities = append(entities, o.EntityID)
		}
		if _, ok := seenC[o.CategoryID]; !ok {
			seenC[o.CategoryID] = struct{}{}
			categories = append(categories, o.CategoryID)
		}
	}

	t := newTable(entities, categories)
	for _, o := range observations {
		i := t.entityIdx[o.EntityID]
		j := t.catIdx[o.CategoryID]
		t.values[i][j] += o.Value
		t.observed[i][j] = true
	}
	return t, nil
}

// DropEntitiesMissing returns a copy of t without the entities that have no
// observation for category. When category is not a column at all the table
// is returned unchanged.
func DropEntitiesMissing(t *Table, category string) *Table {
	if !t.HasCategory(category) {
		return t.Clone()
	}
	keep := make([]string, 0, t.Len())
	for _, e := range t.entities {
		if t.Observed(e, category) {
			keep = append(keep, e)
		}
	}
	return t.WithEntities(keep)
}
