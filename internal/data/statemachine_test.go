package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_BookingStatus_transitions(t *testing.T) {
	assert.True(t, BookingStatusDraft.CanTransitionTo(BookingStatusConfirmed))
	assert.True(t, BookingStatusDraft.CanTransitionTo(BookingStatusCancelled))
	assert.True(t, BookingStatusConfirmed.CanTransitionTo(BookingStatusCompleted))
	assert.True(t, BookingStatusConfirmed.CanTransitionTo(BookingStatusCancelled))

	assert.False(t, BookingStatusDraft.CanTransitionTo(BookingStatusCompleted), "bookings must be confirmed before completion")
	assert.False(t, BookingStatusCompleted.CanTransitionTo(BookingStatusCancelled), "completed is terminal")
	assert.False(t, BookingStatusCancelled.CanTransitionTo(BookingStatusConfirmed), "cancelled is terminal")
}

func Test_TaskStatus_transitions(t *testing.T) {
	assert.True(t, TaskStatusPending.CanTransitionTo(TaskStatusInProgress))
	assert.True(t, TaskStatusInProgress.CanTransitionTo(TaskStatusCompleted))
	assert.True(t, TaskStatusInProgress.CanTransitionTo(TaskStatusCancelled))

	assert.False(t, TaskStatusPending.CanTransitionTo(TaskStatusCompleted), "tasks must go through IN_PROGRESS")
	assert.False(t, TaskStatusCompleted.CanTransitionTo(TaskStatusInProgress))
	assert.False(t, TaskStatusCompleted.CanTransitionTo(TaskStatusCompleted), "no self loops")
}

func Test_PayoutStatus_transitions(t *testing.T) {
	assert.True(t, PayoutStatusPending.CanTransitionTo(PayoutStatusProcessing))
	assert.True(t, PayoutStatusPending.CanTransitionTo(PayoutStatusFailed), "a payout can fail before the gateway ever picks it up")
	assert.True(t, PayoutStatusProcessing.CanTransitionTo(PayoutStatusCompleted))
	assert.True(t, PayoutStatusProcessing.CanTransitionTo(PayoutStatusFailed))

	assert.False(t, PayoutStatusPending.CanTransitionTo(PayoutStatusCompleted))
	assert.False(t, PayoutStatusFailed.CanTransitionTo(PayoutStatusProcessing), "failed payouts are refunded, never replayed")
	assert.False(t, PayoutStatusCompleted.CanTransitionTo(PayoutStatusFailed))
}

func Test_StateMachine_TransitionTo(t *testing.T) {
	sm := bookingStateMachine(BookingStatusDraft)

	assert.NoError(t, sm.TransitionTo(State(BookingStatusConfirmed)))
	assert.Equal(t, State(BookingStatusConfirmed), sm.CurrentState)

	err := sm.TransitionTo(State(BookingStatusDraft))
	assert.EqualError(t, err, "cannot transition from CONFIRMED to DRAFT")
}
