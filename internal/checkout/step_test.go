package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepStateStartsAtAddress(t *testing.T) {
	s := NewStepState()
	assert.Equal(t, StepAddress, s.Current())
	assert.Empty(t, s.Completed())
	assert.True(t, s.CanEnter(StepAddress))
	assert.False(t, s.CanEnter(StepShipping))
	assert.False(t, s.CanEnter(StepReview))
}

func TestStepStateNoSkipAhead(t *testing.T) {
	s := NewStepState()
	err := s.Complete(StepPayment)
	require.ErrorIs(t, err, ErrStepLocked)
	assert.Equal(t, StepAddress, s.Current())
	assert.Empty(t, s.Completed())
}

func TestStepStateLinearProgression(t *testing.T) {
	s := NewStepState()
	for _, step := range []Step{StepAddress, StepShipping, StepPayment} {
		require.NoError(t, s.Complete(step))
	}
	assert.Equal(t, StepReview, s.Current())
	assert.Equal(t, []Step{StepAddress, StepShipping, StepPayment}, s.Completed())
	assert.True(t, s.CanEnter(StepReview))
}

func TestStepStateResubmitNeverRewinds(t *testing.T) {
	s := NewStepState()
	require.NoError(t, s.Complete(StepAddress))
	require.NoError(t, s.Complete(StepShipping))

	require.NoError(t, s.Complete(StepAddress))
	assert.Equal(t, StepPayment, s.Current())
	assert.Equal(t, []Step{StepAddress, StepShipping}, s.Completed(), "a step is recorded at most once")
}

func TestStepStateUnknownStep(t *testing.T) {
	s := NewStepState()
	assert.False(t, s.CanEnter(Step("confirm")))
	assert.ErrorIs(t, s.Guard(Step("confirm")), ErrStepLocked)
}

func TestStepStateCompletedIsACopy(t *testing.T) {
	s := NewStepState()
	require.NoError(t, s.Complete(StepAddress))
	got := s.Completed()
	got[0] = StepReview
	assert.Equal(t, []Step{StepAddress}, s.Completed())
}
