package attribution

// Split is the column/index/data rendering of a Table, the layout used for
// the JSON data tables written next to each chart.
type Split struct {
	Columns []string    `json:"columns"`
	Index   []string    `json:"index"`
	Data    [][]float64 `json:"data"`
}

// ToSplit returns t in split orientation. Rows follow order when given; an
// empty order keeps the table's own row order.
func ToSplit(t *Table, order []string) Split {
	if t == nil {
		return Split{Columns: []string{}, Index: []string{}, Data: [][]float64{}}
	}
	rows := t.entities
	if len(order) > 0 {
		rows = t.WithEntities(order).entities
	}
	s := Split{
		Columns: t.Categories(),
		Index:   append([]string(nil), rows...),
		Data:    make([][]float64, 0, len(rows)),
	}
	for _, e := range rows {
		s.Data = append(s.Data, t.Row(e))
	}
	return s
}

// Records flattens t back into observations, one per cell, in row then
// column order. Pivot(Records(t)) reproduces the values of t.
func Records(t *Table) []Observation {
	if t == nil {
		return nil
	}
	out := make([]Observation, 0, t.Len()*t.Width())
	for i, e := range t.entities {
		for j, c := range t.categories {
			out = append(out, Observation{EntityID: e, CategoryID: c, Value: t.values[i][j]})
		}
	}
	return out
}
