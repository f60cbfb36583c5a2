package attribution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_RowsSumToHundred(t *testing.T) {
	tbl := mustPivot(t, obs("F1", "NO", 5), obs("F1", "US", 3), obs("F2", "NO", 2), obs("F3", "DE", 1), obs("F3", "US", 2))

	out, warnings := Normalize(tbl, true)
	assert.Empty(t, warnings)
	assert.InDelta(t, 62.5, out.Value("F1", "NO"), 1e-9)
	assert.InDelta(t, 37.5, out.Value("F1", "US"), 1e-9)
	for _, e := range out.Entities() {
		assert.InDelta(t, 100, out.RowTotal(e), 1e-9, e)
	}
	assert.Equal(t, 5.0, tbl.Value("F1", "NO"), "input must not be modified")
}

func TestNormalize_ZeroRowStaysZero(t *testing.T) {
	tbl := mustPivot(t, obs("F1", "NO", 0), obs("F2", "NO", 4))

	out, warnings := Normalize(tbl, true)
	require.Len(t, warnings, 1)
	assert.Equal(t, DegenerateRowWarning, warnings[0].Kind)
	assert.Equal(t, "F1", warnings[0].Entity)
	assert.Equal(t, 0.0, out.Value("F1", "NO"))
	assert.Equal(t, 100.0, out.Value("F2", "NO"))
	assert.Contains(t, warnings[0].String(), "F1")
}

func TestNormalize_Disabled(t *testing.T) {
	tbl := mustPivot(t, obs("F1", "NO", 5), obs("F1", "US", 3))
	out, warnings := Normalize(tbl, false)
	assert.Nil(t, warnings)
	assert.True(t, out.Equal(tbl, 0))
	assert.NotSame(t, tbl, out)
}
