package attribution

import (
	"fmt"

	pkgerrors "github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

// Kind is the chart family a renderer should draw.
type Kind string

const (
	KindBar  Kind = "bar"
	KindLine Kind = "line"
)

// SideInput is the raw data of one side of a chart.
type SideInput struct {
	Name         string        `json:"name"`
	Group        string        `json:"group,omitempty"`
	Polarity     Polarity      `json:"polarity,omitempty"`
	Observations []Observation `json:"observations"`
}

// ChartSpec names the paired tables of one chart and how each stage treats
// them. A single-table chart has one side.
type ChartSpec struct {
	Name      string  `json:"name"`
	Title     string  `json:"title,omitempty"`
	Kind      Kind    `json:"kind,omitempty"`
	Normalize bool    `json:"normalize"`
	TopK      int     `json:"top_k,omitempty"`
	Reference string  `json:"reference,omitempty"`
	OrderBy   OrderBy `json:"order_by,omitempty"`

	// DropMissingReference removes entities without an observation of the
	// reference before normalizing and bucketing.
	DropMissingReference bool `json:"drop_missing_reference,omitempty"`
	PinFirst             bool `json:"pin_first,omitempty"`
	SkipZero             bool `json:"skip_zero,omitempty"`

	Sides []SideInput `json:"sides"`
}

// Validate checks the structural parts of a spec.
func (s ChartSpec) Validate() error {
	if s.Name == "" {
		return pkgerrors.New(pkgerrors.ErrCodeInvalidChartSpec, "chart name is required")
	}
	if len(s.Sides) == 0 {
		return pkgerrors.New(pkgerrors.ErrCodeInvalidChartSpec, "chart needs at least one side").WithDetail(s.Name)
	}
	switch s.Kind {
	case "", KindBar, KindLine:
	default:
		return pkgerrors.Newf(pkgerrors.ErrCodeInvalidChartSpec, "unknown chart kind %q", s.Kind)
	}
	switch s.OrderBy {
	case "", ByReference, ByTotal:
	default:
		return pkgerrors.Newf(pkgerrors.ErrCodeInvalidChartSpec, "unknown order %q", s.OrderBy)
	}
	if s.TopK < 0 {
		return pkgerrors.Newf(pkgerrors.ErrCodeInvalidChartSpec, "top_k must not be negative, got %d", s.TopK)
	}
	names := make(map[string]bool, len(s.Sides))
	for _, side := range s.Sides {
		if side.Name == "" || names[side.Name] {
			return pkgerrors.New(pkgerrors.ErrCodeInvalidChartSpec, "side names must be unique and non-empty").WithDetail(s.Name)
		}
		names[side.Name] = true
		switch side.Polarity {
		case "", Positive, Negative:
		default:
			return pkgerrors.Newf(pkgerrors.ErrCodeInvalidChartSpec, "unknown polarity %q", side.Polarity)
		}
	}
	return nil
}

// SideResult is one processed side.
type SideResult struct {
	Name     string      `json:"name"`
	Group    string      `json:"group,omitempty"`
	Polarity Polarity    `json:"polarity"`
	Plan     *BucketPlan `json:"plan,omitempty"`
	Empty    bool        `json:"empty"`
}

// Table returns the bucketed table of the side, nil when empty.
func (s SideResult) Table() *Table {
	if s.Plan == nil {
		return nil
	}
	return s.Plan.Table
}

// Chart is everything a renderer needs to draw one chart without deriving
// any aggregation decision itself.
type Chart struct {
	Spec     ChartSpec       `json:"-"`
	Sides    []SideResult    `json:"sides"`
	Order    EntityOrder     `json:"order"`
	Layout   *Layout         `json:"layout,omitempty"`
	Colors   map[string]Slot `json:"colors"`
	Warnings []Warning       `json:"warnings,omitempty"`
}

// Side returns the named side.
func (c *Chart) Side(name string) (SideResult, bool) {
	for _, s := range c.Sides {
		if s.Name == name {
			return s, true
		}
	}
	return SideResult{}, false
}

// Build runs one chart through pivot, optional reference filtering,
// normalization, bucketing, a shared entity order, color assignment and,
// for bar charts, the stacked layout.
//
// When every side is empty the error satisfies IsEmptyInput.
func Build(spec ChartSpec, registry *ColorRegistry) (*Chart, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if registry == nil {
		return nil, pkgerrors.New(pkgerrors.ErrCodeInvalidChartSpec, "color registry is required").WithDetail(spec.Name)
	}

	chart := &Chart{Spec: spec, Colors: make(map[string]Slot)}
	var tables []*Table
	var ranking []string

	for _, in := range spec.Sides {
		res := SideResult{Name: in.Name, Group: in.Group, Polarity: in.Polarity}
		if res.Polarity == "" {
			res.Polarity = Positive
		}

		t, err := Pivot(in.Observations)
		if err != nil && !IsEmptyInput(err) {
			return nil, pkgerrors.Wrap(err, pkgerrors.CodeUnknown, fmt.Sprintf("chart %s side %s", spec.Name, in.Name))
		}
		if t != nil && spec.DropMissingReference && spec.Reference != "" {
			t = DropEntitiesMissing(t, spec.Reference)
		}
		if t == nil || t.IsEmpty() {
			res.Empty = true
			chart.Sides = append(chart.Sides, res)
			continue
		}

		normalized, warnings := Normalize(t, spec.Normalize)
		for _, w := range warnings {
			w.Side = in.Name
			chart.Warnings = append(chart.Warnings, w)
		}

		res.Plan = Bucket(normalized, BucketOptions{K: spec.TopK, Reference: spec.Reference})
		if ranking == nil {
			ranking = res.Plan.Ranking
		}
		tables = append(tables, res.Plan.Table)
		chart.Sides = append(chart.Sides, res)
	}

	if len(tables) == 0 {
		return nil, emptyInputError(spec.Name)
	}

	order, warnings := OrderTables(tables, OrderOptions{Reference: spec.Reference, Ranking: ranking, By: spec.OrderBy})
	chart.Order = order
	chart.Warnings = append(chart.Warnings, warnings...)

	for _, s := range chart.Sides {
		if s.Empty {
			continue
		}
		for _, c := range s.Plan.Kept {
			chart.Colors[c] = registry.Assign(c)
		}
		if s.Plan.HasOthers() {
			chart.Colors[OthersCategory] = registry.Assign(OthersCategory)
		}
	}

	if spec.Kind == KindLine {
		return chart, nil
	}

	specs := make([]SideSpec, 0, len(chart.Sides))
	for _, s := range chart.Sides {
		specs = append(specs, SideSpec{
			Name:     s.Name,
			Group:    s.Group,
			Polarity: s.Polarity,
			Table:    s.Table(),
			Kept:     keptOf(s),
		})
	}
	layout, err := Compose(order, specs, LayoutOptions{
		Reference: spec.Reference,
		PinFirst:  spec.PinFirst,
		SkipZero:  spec.SkipZero,
	})
	if err != nil {
		return nil, err
	}
	chart.Layout = layout
	return chart, nil
}

func keptOf(s SideResult) []string {
	if s.Plan == nil {
		return nil
	}
	return s.Plan.Kept
}
