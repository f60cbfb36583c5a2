package attribution

import (
	pkgerrors "github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

// Polarity is the direction a side stacks in.
type Polarity string

const (
	Positive Polarity = "positive"
	Negative Polarity = "negative"
)

// SideSpec is one bucketed table placed on one side of a layout.
type SideSpec struct {
	Name     string
	Group    string
	Polarity Polarity
	Table    *Table
	Kept     []string
}

// LayoutOptions tunes segment order within a side.
type LayoutOptions struct {
	Reference string
	// PinFirst stacks the reference first on every side whose reference
	// total is positive and omits it on the others.
	PinFirst bool
	// SkipZero leaves out categories whose total on the side is zero.
	SkipZero bool
}

// Segment is one stacked piece of a bar. Value is a magnitude; Offset is the
// running base of the segment, negated on Negative sides. Label is true only
// on the first placement of Category in the whole layout.
type Segment struct {
	Category string  `json:"category"`
	Value    float64 `json:"value"`
	Offset   float64 `json:"offset"`
	Label    bool    `json:"label"`
}

// Stack is one side of one entity.
type Stack struct {
	Side     string    `json:"side"`
	Group    string    `json:"group,omitempty"`
	Polarity Polarity  `json:"polarity"`
	Segments []Segment `json:"segments"`
	Total    float64   `json:"total"`
}

// EntityLayout holds every side of one entity.
type EntityLayout struct {
	Entity   string  `json:"entity"`
	Position int     `json:"position"`
	Stacks   []Stack `json:"stacks"`
}

// Layout is the renderer-facing result of Compose. Legend lists each placed
// category once, in placement order.
type Layout struct {
	Entities []EntityLayout `json:"entities"`
	Legend   []string       `json:"legend"`
}

// ComposeSigned lays out a positive and a negative table sharing order.
func ComposeSigned(order EntityOrder, positive, negative SideSpec, opts LayoutOptions) (*Layout, error) {
	positive.Polarity = Positive
	negative.Polarity = Negative
	return Compose(order, []SideSpec{positive, negative}, opts)
}

// Compose builds stacked offsets for every entity of order on every side.
// Every side table must only contain entities of order; entities missing
// from a side get zero-valued segments.
func Compose(order EntityOrder, sides []SideSpec, opts LayoutOptions) (*Layout, error) {
	for _, s := range sides {
		if s.Table == nil {
			continue
		}
		for _, e := range s.Table.entities {
			if order.Position(e) == 0 {
				return nil, pkgerrors.New(pkgerrors.ErrCodeLayoutMismatch, "side entity missing from order").
					WithDetail("side=" + s.Name + " entity=" + e)
			}
		}
	}

	sequences := make([][]string, len(sides))
	for i, s := range sides {
		sequences[i] = segmentOrder(s, opts)
	}

	layout := &Layout{Entities: make([]EntityLayout, 0, order.Len())}
	labeled := make(map[string]bool)
	for idx, e := range order.Entities {
		el := EntityLayout{Entity: e, Position: idx + 1, Stacks: make([]Stack, 0, len(sides))}
		for i, s := range sides {
			polarity := s.Polarity
			if polarity == "" {
				polarity = Positive
			}
			st := Stack{Side: s.Name, Group: s.Group, Polarity: polarity, Segments: make([]Segment, 0, len(sequences[i]))}
			var cum float64
			for _, c := range sequences[i] {
				v := s.Table.Value(e, c)
				offset := cum
				if polarity == Negative && cum != 0 {
					offset = -cum
				}
				seg := Segment{Category: c, Value: v, Offset: offset}
				if !labeled[c] {
					labeled[c] = true
					seg.Label = true
					layout.Legend = append(layout.Legend, c)
				}
				st.Segments = append(st.Segments, seg)
				cum += v
			}
			st.Total = cum
			el.Stacks = append(el.Stacks, st)
		}
		layout.Entities = append(layout.Entities, el)
	}
	return layout, nil
}

// segmentOrder is the category sequence stacked on one side.
func segmentOrder(s SideSpec, opts LayoutOptions) []string {
	if s.Table == nil {
		return nil
	}
	kept := s.Kept
	if kept == nil {
		kept = s.Table.Categories()
	}

	var seq []string
	placed := make(map[string]bool)
	add := func(c string) {
		if placed[c] || !s.Table.HasCategory(c) {
			return
		}
		if opts.SkipZero && s.Table.ColumnTotal(c) == 0 {
			return
		}
		placed[c] = true
		seq = append(seq, c)
	}

	if opts.PinFirst && opts.Reference != "" {
		if s.Table.ColumnTotal(opts.Reference) > 0 {
			add(opts.Reference)
		} else {
			// a pinned reference with nothing to show is left off the side
			placed[opts.Reference] = true
		}
	}
	for _, c := range kept {
		if c != OthersCategory {
			add(c)
		}
	}
	add(OthersCategory)
	return seq
}
