package attribution

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColorRegistry_SentinelReserved(t *testing.T) {
	r := NewColorRegistry()

	s, ok := r.Lookup(OthersCategory)
	require.True(t, ok)
	assert.Equal(t, Slot{Index: 0, Color: SentinelColor, Palette: PaletteSentinel}, s)

	first := r.Assign("NO")
	assert.Equal(t, 1, first.Index)
	assert.Equal(t, PrimaryPalette[0], first.Color)
	assert.Equal(t, PalettePrimary, first.Palette)
}

func TestColorRegistry_StableAcrossCalls(t *testing.T) {
	r := NewColorRegistry()
	a := r.Assign("SE")
	r.Assign("DK")
	assert.Equal(t, a, r.Assign("SE"))
	assert.Equal(t, 3, r.Len())
}

func TestColorRegistry_UniqueSlotsThroughPalettes(t *testing.T) {
	r := NewColorRegistry()
	n := len(PrimaryPalette) + len(OverflowPalette) + 10

	indexes := make(map[int]string)
	colors := make(map[string]string)
	for i := 0; i < n; i++ {
		c := fmt.Sprintf("C%03d", i)
		s := r.Assign(c)
		_, dup := indexes[s.Index]
		assert.False(t, dup, "slot %d reused", s.Index)
		indexes[s.Index] = c

		switch {
		case i < len(PrimaryPalette):
			assert.Equal(t, PalettePrimary, s.Palette)
		case i < len(PrimaryPalette)+len(OverflowPalette):
			assert.Equal(t, PaletteOverflow, s.Palette)
		default:
			assert.Equal(t, PaletteDerived, s.Palette)
			assert.Regexp(t, `^#[0-9a-f]{6}$`, s.Color)
		}
		if s.Palette != PaletteDerived {
			prev, dup := colors[s.Color]
			assert.False(t, dup, "color %s shared by %s and %s", s.Color, prev, c)
			colors[s.Color] = c
		}
	}
}

func TestColorRegistry_CustomSentinels(t *testing.T) {
	r := NewColorRegistry(WithSentinels(OthersCategory, "Unknown"))
	s, ok := r.Lookup("Unknown")
	require.True(t, ok)
	assert.Equal(t, 1, s.Index)
	assert.Equal(t, 2, r.Assign("NO").Index)
}

func TestColorRegistry_ConcurrentAssign(t *testing.T) {
	r := NewColorRegistry()
	cats := make([]string, 60)
	for i := range cats {
		cats[i] = fmt.Sprintf("K%02d", i)
	}

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, c := range cats {
				r.Assign(c)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, len(cats)+1, r.Len())
	seen := make(map[int]bool)
	for _, a := range r.Assignments() {
		assert.False(t, seen[a.Slot.Index])
		seen[a.Slot.Index] = true
	}
}

func TestColorRegistry_AssignAllDeterministic(t *testing.T) {
	cats := []string{"DE", "NO", "SE", "US"}
	a := NewColorRegistry().AssignAll(cats)
	b := NewColorRegistry().AssignAll(cats)
	assert.Equal(t, a, b)
	assert.Equal(t, 1, a["DE"].Index)
	assert.Equal(t, 4, a["US"].Index)
}

func TestColorRegistry_AssignmentsSorted(t *testing.T) {
	r := NewColorRegistry()
	r.AssignAll([]string{"b", "a"})
	got := r.Assignments()
	require.Len(t, got, 3)
	assert.Equal(t, OthersCategory, got[0].Category)
	assert.Equal(t, "b", got[1].Category)
	assert.Equal(t, "a", got[2].Category)
}
