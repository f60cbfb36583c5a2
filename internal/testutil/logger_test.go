package testutil

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/monitoring/logging"
)

func TestRecordingLogger(t *testing.T) {
	root := NewRecordingLogger()
	child := root.Named("reporting").With(logging.String(logging.FieldRunID, "r1")).Named("charts")

	root.Info("started")
	child.Warn("chart warning", logging.Int("entities", 3))
	child.WithError(errors.New("boom")).Error("failed")

	entries := root.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "", entries[0].Logger)
	assert.Equal(t, "reporting.charts", entries[1].Logger)

	v, ok := entries[1].Field(logging.FieldRunID)
	require.True(t, ok)
	assert.Equal(t, "r1", v)
	v, _ = entries[1].Field("entities")
	assert.Equal(t, 3, v)
	v, _ = entries[2].Field("error")
	assert.Equal(t, "boom", v)

	assert.True(t, root.Has(logging.LevelWarn, "chart warning"))
	assert.False(t, root.Has(logging.LevelInfo, "chart warning"))
	assert.Len(t, root.Filter(logging.LevelError), 1)
}

func TestRecordingLogger_WithDoesNotAlias(t *testing.T) {
	base := NewRecordingLogger().With(logging.String("a", "1"))
	l1 := base.With(logging.String("b", "2"))
	l2 := base.With(logging.String("c", "3"))

	l1.Info("one")
	l2.Info("two")

	entries := base.(*RecordingLogger).Entries()
	require.Len(t, entries, 2)
	_, hasC := entries[0].Field("c")
	assert.False(t, hasC)
	_, hasB := entries[1].Field("b")
	assert.False(t, hasB)
}
