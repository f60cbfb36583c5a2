package attribution

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

func obs(entity, category string, value float64) Observation {
	return Observation{EntityID: entity, CategoryID: category, Value: value}
}

func mustPivot(t *testing.T, observations ...Observation) *Table {
	t.Helper()
	tbl, err := Pivot(observations)
	require.NoError(t, err)
	return tbl
}

func TestPivot_DensifiesInFirstSeenOrder(t *testing.T) {
	tbl := mustPivot(t, obs("F1", "NO", 5), obs("F1", "US", 3), obs("F2", "NO", 2))

	assert.Equal(t, []string{"F1", "F2"}, tbl.Entities())
	assert.Equal(t, []string{"NO", "US"}, tbl.Categories())
	assert.Equal(t, []float64{5, 3}, tbl.Row("F1"))
	assert.Equal(t, []float64{2, 0}, tbl.Row("F2"))
	assert.True(t, tbl.Observed("F2", "NO"))
	assert.False(t, tbl.Observed("F2", "US"))
}

func TestPivot_SumsDuplicates(t *testing.T) {
	tbl := mustPivot(t, obs("F1", "SE", 1), obs("F1", "SE", 2.5), obs("F1", "SE", 0))
	assert.Equal(t, 3.5, tbl.Value("F1", "SE"))
	assert.Equal(t, 1, tbl.Width())
}

func TestPivot_ObservedZeroIsKept(t *testing.T) {
	tbl := mustPivot(t, obs("F1", "NO", 0), obs("F2", "US", 1))
	assert.True(t, tbl.Observed("F1", "NO"))
	assert.Equal(t, 0.0, tbl.Value("F1", "NO"))
}

func TestPivot_EmptyInput(t *testing.T) {
	tbl, err := Pivot(nil)
	require.Error(t, err)
	assert.Nil(t, tbl)
	assert.True(t, IsEmptyInput(err))
	assert.Equal(t, pkgerrors.ErrCodeEmptyInput, pkgerrors.GetCode(err))
}

func TestPivot_RejectsInvalidValues(t *testing.T) {
	for name, v := range map[string]float64{
		"negative": -1,
		"nan":      math.NaN(),
		"inf":      math.Inf(1),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Pivot([]Observation{obs("F1", "NO", 1), obs("F2", "NO", v)})
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeInvalidObservation))
			assert.False(t, IsEmptyInput(err))
		})
	}
}

func TestDropEntitiesMissing(t *testing.T) {
	tbl := mustPivot(t,
		obs("F1", "NO", 0),
		obs("F1", "US", 1),
		obs("F2", "US", 4),
		obs("F3", "NO", 2),
	)

	got := DropEntitiesMissing(tbl, "NO")
	assert.Equal(t, []string{"F1", "F3"}, got.Entities())
	assert.Equal(t, tbl.Categories(), got.Categories())
	assert.Equal(t, 3, tbl.Len(), "input must not be modified")
}

func TestDropEntitiesMissing_UnknownCategory(t *testing.T) {
	tbl := mustPivot(t, obs("F1", "US", 1))
	got := DropEntitiesMissing(tbl, "NO")
	assert.True(t, got.Equal(tbl, 0))
}

func TestTable_CloneIsIndependent(t *testing.T) {
	tbl := mustPivot(t, obs("F1", "NO", 1))
	c := tbl.Clone()
	c.values[0][0] = 42
	assert.Equal(t, 1.0, tbl.Value("F1", "NO"))
}

func TestTable_Totals(t *testing.T) {
	tbl := mustPivot(t, obs("F1", "NO", 1), obs("F2", "NO", 2), obs("F2", "US", 4))
	assert.Equal(t, map[string]float64{"NO": 3, "US": 4}, tbl.Totals())
	assert.Equal(t, 6.0, tbl.RowTotal("F2"))
	assert.Equal(t, 0.0, tbl.RowTotal("missing"))
	assert.Equal(t, []string{"NO", "US"}, tbl.SortedCategories())
}
