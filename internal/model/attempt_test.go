package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttempt_LegalPath(t *testing.T) {
	a := &Attempt{ID: "a1", Status: AttemptStatusPending}

	require.NoError(t, a.Transition(AttemptStatusFetching))
	require.NoError(t, a.Transition(AttemptStatusExtracting))
	require.NoError(t, a.Transition(AttemptStatusCompleted))
	assert.True(t, a.Status.IsTerminal())
}

func TestAttempt_NoShortcutFromPending(t *testing.T) {
	// pending must pass through fetching, even on a full cache hit.
	for _, to := range []AttemptStatus{
		AttemptStatusCompleted,
		AttemptStatusFailed,
		AttemptStatusDeadLetter,
		AttemptStatusExtracting,
	} {
		a := &Attempt{ID: "a1", Status: AttemptStatusPending}
		err := a.Transition(to)
		assert.Error(t, err, "pending -> %s should be rejected", to)
		assert.Equal(t, AttemptStatusPending, a.Status)
	}
}

func TestAttempt_RetryCountIncrements(t *testing.T) {
	a := &Attempt{ID: "a1", Status: AttemptStatusFailed}

	require.NoError(t, a.Transition(AttemptStatusRetrying))
	assert.Equal(t, 1, a.RetryCount)

	require.NoError(t, a.Transition(AttemptStatusFetching))
	require.NoError(t, a.Transition(AttemptStatusFailed))
	require.NoError(t, a.Transition(AttemptStatusRetrying))
	assert.Equal(t, 2, a.RetryCount)
}

func TestAttempt_TerminalStatesHaveNoEdges(t *testing.T) {
	for _, s := range []AttemptStatus{AttemptStatusCompleted, AttemptStatusDeadLetter, AttemptStatusManual} {
		assert.True(t, s.IsTerminal(), "%s should be terminal", s)
	}
	assert.False(t, AttemptStatusFailed.IsTerminal())
}

func TestAttempt_Retryable(t *testing.T) {
	assert.True(t, (&Attempt{Status: AttemptStatusFailed}).Retryable())
	assert.True(t, (&Attempt{Status: AttemptStatusRetrying}).Retryable())
	assert.False(t, (&Attempt{Status: AttemptStatusExtracting}).Retryable())
	assert.False(t, (&Attempt{Status: AttemptStatusCompleted}).Retryable())
}

func TestExtractedFields_ApplyLeavesUnproducedUntouched(t *testing.T) {
	j := &JobPosting{
		Title:       "Old Title",
		CompanyName: "Acme",
		Location:    "NYC",
	}

	newTitle := "Senior Go Engineer"
	j.Apply(ExtractedFields{
		Title:  &newTitle,
		Salary: &Salary{Min: 120000, Max: 150000, Currency: "USD"},
	})

	assert.Equal(t, "Senior Go Engineer", j.Title)
	assert.Equal(t, "Acme", j.CompanyName)
	assert.Equal(t, "NYC", j.Location)
	require.NotNil(t, j.SalaryMin)
	assert.Equal(t, 120000.0, *j.SalaryMin)
	assert.Equal(t, "USD", j.SalaryCurrency)
}
