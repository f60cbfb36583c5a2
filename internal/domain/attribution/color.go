package attribution

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// Palette names reported on a Slot.
const (
	PaletteSentinel = "sentinel"
	PalettePrimary  = "primary"
	PaletteOverflow = "overflow"
	PaletteDerived  = "derived"
)

// SentinelColor is the fixed color of sentinel categories.
const SentinelColor = "#808080"

// PrimaryPalette is a 20-color qualitative palette (tab20 ordering).
var PrimaryPalette = []string{
	"#1f77b4", "#aec7e8", "#ff7f0e", "#ffbb78", "#2ca02c",
	"#98df8a", "#d62728", "#ff9896", "#9467bd", "#c5b0d5",
	"#8c564b", "#c49c94", "#e377c2", "#f7b6d2", "#7f7f7f",
	"#c7c7c7", "#bcbd22", "#dbdb8d", "#17becf", "#9edae5",
}

// OverflowPalette extends PrimaryPalette once it is exhausted (tab20b ordering).
var OverflowPalette = []string{
	"#393b79", "#5254a3", "#6b6ecf", "#9c9ede", "#637939",
	"#8ca252", "#b5cf6b", "#cedb9c", "#8c6d31", "#bd9e39",
	"#e7ba52", "#e7cb94", "#843c39", "#ad494a", "#d6616b",
	"#e7969c", "#7b4173", "#a55194", "#ce6dbd", "#de9ed6",
}

// Slot is a category's display identity within a session.
type Slot struct {
	Index   int    `json:"index"`
	Color   string `json:"color"`
	Palette string `json:"palette"`
}

// Assignment pairs a category with its slot.
type Assignment struct {
	Category string `json:"category"`
	Slot     Slot   `json:"slot"`
}

// ColorRegistry maps categories to unique, stable slots for one analysis
// session. Slots never change once assigned and are never shared. Sentinel
// categories hold the first slots, reserved at construction.
//
// A registry is safe for concurrent use. Sessions must not share one.
type ColorRegistry struct {
	mu        sync.Mutex
	slots     map[string]Slot
	sentinels []string
	primary   []string
	overflow  []string
	ordinary  int
}

// RegistryOption configures a ColorRegistry.
type RegistryOption func(*ColorRegistry)

// WithSentinels replaces the default sentinel set ({OthersCategory}).
func WithSentinels(categories ...string) RegistryOption {
	return func(r *ColorRegistry) { r.sentinels = append([]string(nil), categories...) }
}

// WithPalettes replaces the primary and overflow palettes.
func WithPalettes(primary, overflow []string) RegistryOption {
	return func(r *ColorRegistry) {
		r.primary = append([]string(nil), primary...)
		r.overflow = append([]string(nil), overflow...)
	}
}

// NewColorRegistry creates a registry with its sentinels already reserved.
func NewColorRegistry(opts ...RegistryOption) *ColorRegistry {
	r := &ColorRegistry{
		slots:     make(map[string]Slot),
		sentinels: []string{OthersCategory},
		primary:   PrimaryPalette,
		overflow:  OverflowPalette,
	}
	for _, opt := range opts {
		opt(r)
	}
	for i, s := range r.sentinels {
		if _, dup := r.slots[s]; dup {
			continue
		}
		r.slots[s] = Slot{Index: i, Color: SentinelColor, Palette: PaletteSentinel}
	}
	return r
}

// Assign returns the slot of category, allocating the next free one on first
// sight.
func (r *ColorRegistry) Assign(category string) Slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.assignLocked(category)
}

// AssignAll assigns categories in the given order and returns their slots.
// Callers that build charts concurrently pre-assign the session's categories
// in a fixed order so slot numbers do not depend on scheduling.
func (r *ColorRegistry) AssignAll(categories []string) map[string]Slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Slot, len(categories))
	for _, c := range categories {
		out[c] = r.assignLocked(c)
	}
	return out
}

func (r *ColorRegistry) assignLocked(category string) Slot {
	if s, ok := r.slots[category]; ok {
		return s
	}
	n := r.ordinary
	r.ordinary++
	s := Slot{Index: len(r.sentinels) + n}
	switch {
	case n < len(r.primary):
		s.Color, s.Palette = r.primary[n], PalettePrimary
	case n < len(r.primary)+len(r.overflow):
		s.Color, s.Palette = r.overflow[n-len(r.primary)], PaletteOverflow
	default:
		s.Color, s.Palette = derivedColor(n), PaletteDerived
	}
	r.slots[category] = s
	return s
}

// Lookup returns the slot of category without assigning one.
func (r *ColorRegistry) Lookup(category string) (Slot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[category]
	return s, ok
}

// Len is the number of assigned slots, sentinels included.
func (r *ColorRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// Assignments returns a snapshot ordered by slot index.
func (r *ColorRegistry) Assignments() []Assignment {
	r.mu.Lock()
	out := make([]Assignment, 0, len(r.slots))
	for c, s := range r.slots {
		out = append(out, Assignment{Category: c, Slot: s})
	}
	r.mu.Unlock()
	sort.Slice(out, func(a, b int) bool { return out[a].Slot.Index < out[b].Slot.Index })
	return out
}

// derivedColor spreads hues by the golden angle for slots past both palettes.
func derivedColor(n int) string {
	hue := math.Mod(float64(n)*137.50776, 360)
	light := 0.45 + 0.1*float64((n/12)%3)
	return hslToHex(hue, 0.55, light)
}

func hslToHex(h, s, l float64) string {
	c := (1 - math.Abs(2*l-1)) * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := l - c/2
	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	to := func(v float64) int { return int(math.Round((v + m) * 255)) }
	return fmt.Sprintf("#%02x%02x%02x", to(r), to(g), to(b))
}
