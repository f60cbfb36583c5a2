package run

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/KeyIP-Attribution/internal/domain/family"
)

func TestRun_Lifecycle(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	r := New(family.Query{Country: "NO", StartYear: 2020, EndYear: 2021}, start)

	assert.NotEqual(t, uuid.Nil, r.ID)
	assert.Equal(t, StatusRunning, r.Status)
	assert.False(t, r.Status.IsTerminal())
	assert.Zero(t, r.Duration())

	r.Succeed([]string{"applicants_ratio"}, []string{"individual_split"}, 12, start.Add(3*time.Second))
	require.NotNil(t, r.FinishedAt)
	assert.Equal(t, StatusSucceeded, r.Status)
	assert.True(t, r.Status.IsTerminal())
	assert.Equal(t, 3*time.Second, r.Duration())
	assert.Equal(t, 12, r.Families)
}

func TestRun_Fail(t *testing.T) {
	r := New(family.Query{Country: "SE", StartYear: 2020, EndYear: 2020}, time.Now())
	r.Fail(errors.New("source down"), time.Now())
	assert.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, "source down", r.Error)
	assert.True(t, r.Status.IsTerminal())
}
