package attribution

// Normalize rescales every row to percent of its total when enabled. Rows
// whose total is exactly zero stay zero and produce a DegenerateRowWarning.
// When disabled the result is an unchanged copy.
//
// Normalizing twice is not detected here.
func Normalize(t *Table, enabled bool) (*Table, []Warning) {
	out := t.Clone()
	if !enabled {
		return out, nil
	}

	var warnings []Warning
	for i, e := range out.entities {
		var total float64
		for _, v := range out.values[i] {
			total += v
		}
		if total == 0 {
			warnings = append(warnings, Warning{Kind: DegenerateRowWarning, Entity: e})
			continue
		}
		for j := range out.values[i] {
			out.values[i][j] = out.values[i][j] / total * 100
		}
	}
	return out, warnings
}
