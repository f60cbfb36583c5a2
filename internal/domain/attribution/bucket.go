package attribution

import "sort"

// DefaultTopK is the number of individually shown categories when
// BucketOptions.K is not set.
const DefaultTopK = 10

// BucketOptions parameterizes Bucket.
type BucketOptions struct {
	// K is the maximum number of individually shown categories. K <= 0 means
	// DefaultTopK.
	K int

	// Reference, when present in the table, is always kept.
	Reference string
}

// BucketPlan is the result of Bucket.
type BucketPlan struct {
	Table *Table `json:"-"`

	// Kept lists the individually shown categories in rank order. A present
	// reference is always among them.
	Kept []string `json:"kept"`

	// Folded lists the categories merged into OthersCategory, in rank order.
	Folded []string `json:"folded,omitempty"`

	// Ranking is every category except OthersCategory, by total descending
	// with ties broken by category id ascending.
	Ranking []string `json:"ranking"`
}

// HasOthers reports whether the bucketed table carries an Others column.
func (p *BucketPlan) HasOthers() bool {
	return p.Table != nil && p.Table.HasCategory(OthersCategory)
}

// Rank orders the categories of t, OthersCategory excluded, by column total
// descending; ties are broken by category id ascending.
func Rank(t *Table) []string {
	totals := make(map[string]float64, t.Width())
	ranked := make([]string, 0, t.Width())
	for _, c := range t.categories {
		if c == OthersCategory {
			continue
		}
		totals[c] = t.ColumnTotal(c)
		ranked = append(ranked, c)
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		ta, tb := totals[ranked[a]], totals[ranked[b]]
		if ta != tb {
			return ta > tb
		}
		return ranked[a] < ranked[b]
	})
	return ranked
}

// Bucket keeps at most K categories and folds the rest into OthersCategory,
// per entity, so that every row total is conserved.
//
// When the table has at most K categories (an existing Others column not
// counted) the table is returned unchanged and no Others column is created.
// An existing Others column receives the folded values, which makes Bucket
// idempotent for any K at least the current kept count.
func Bucket(t *Table, opts BucketOptions) *BucketPlan {
	k := opts.K
	if k <= 0 {
		k = DefaultTopK
	}

	ranking := Rank(t)
	withRef := opts.Reference != "" && opts.Reference != OthersCategory && t.HasCategory(opts.Reference)

	if len(ranking) <= k {
		return &BucketPlan{Table: t.Clone(), Kept: append([]string(nil), ranking...), Ranking: ranking}
	}

	// The top K-1 plus the reference when it is forced, else the top K;
	// either way kept stays in rank order.
	take := k
	if withRef {
		take = k - 1
	}
	kept := make([]string, 0, k)
	var folded []string
	for _, c := range ranking {
		switch {
		case withRef && c == opts.Reference:
			kept = append(kept, c)
		case take > 0:
			kept = append(kept, c)
			take--
		default:
			folded = append(folded, c)
		}
	}

	columns := append(append([]string(nil), kept...), OthersCategory)
	out := newTable(t.entities, columns)
	others := len(columns) - 1
	for i := range t.entities {
		for j, c := range kept {
			src := t.catIdx[c]
			out.values[i][j] = t.values[i][src]
			out.observed[i][j] = t.observed[i][src]
		}
		if src, ok := t.catIdx[OthersCategory]; ok {
			out.values[i][others] = t.values[i][src]
			out.observed[i][others] = t.observed[i][src]
		}
		for _, c := range folded {
			src := t.catIdx[c]
			out.values[i][others] += t.values[i][src]
			out.observed[i][others] = out.observed[i][others] || t.observed[i][src]
		}
	}

	return &BucketPlan{Table: out, Kept: kept, Folded: folded, Ranking: ranking}
}
