package attribution

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSplit_FollowsOrder(t *testing.T) {
	tbl := mustPivot(t, obs("F1", "NO", 5), obs("F1", "US", 3), obs("F2", "NO", 2))

	s := ToSplit(tbl, []string{"F2", "F1"})
	assert.Equal(t, []string{"NO", "US"}, s.Columns)
	assert.Equal(t, []string{"F2", "F1"}, s.Index)
	assert.Equal(t, [][]float64{{2, 0}, {5, 3}}, s.Data)

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"columns":["NO","US"],"index":["F2","F1"],"data":[[2,0],[5,3]]}`, string(raw))
}

func TestToSplit_Nil(t *testing.T) {
	raw, err := json.Marshal(ToSplit(nil, nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"columns":[],"index":[],"data":[]}`, string(raw))
}

func TestRecords_PivotRestoresValues(t *testing.T) {
	tbl := mustPivot(t, obs("F1", "NO", 5), obs("F1", "US", 3), obs("F2", "NO", 2))

	recs := Records(tbl)
	assert.Len(t, recs, 4)
	back := mustPivot(t, recs...)
	for _, e := range tbl.Entities() {
		assert.Equal(t, tbl.Row(e), back.Row(e))
	}
}
