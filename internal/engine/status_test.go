package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opensoc/soc_log_server/internal/model"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		name    string
		status  string
		event   TransitionEvent
		want    string
		wantErr bool
	}{
		{"queued start", model.JobStatusQueued, EventStart, model.JobStatusRunning, false},
		{"running pause", model.JobStatusRunning, EventPauseObserved, model.JobStatusPaused, false},
		{"running cancel", model.JobStatusRunning, EventCancelObserved, model.JobStatusCancelled, false},
		{"running exhausted", model.JobStatusRunning, EventExhausted, model.JobStatusCompleted, false},
		{"running fatal", model.JobStatusRunning, EventFatal, model.JobStatusError, false},
		{"paused resume", model.JobStatusPaused, EventResume, model.JobStatusQueued, false},
		{"paused cancel", model.JobStatusPaused, EventCancelObserved, model.JobStatusCancelled, false},
		{"queued pause illegal", model.JobStatusQueued, EventPauseObserved, "", true},
		{"queued cancel illegal", model.JobStatusQueued, EventCancelObserved, "", true},
		{"running start illegal", model.JobStatusRunning, EventStart, "", true},
		{"completed is terminal", model.JobStatusCompleted, EventStart, "", true},
		{"cancelled is terminal", model.JobStatusCancelled, EventResume, "", true},
		{"error is terminal", model.JobStatusError, EventStart, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Transition(tt.status, tt.event)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrIllegalTransition)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTerminalStatesHaveNoTransitions(t *testing.T) {
	terminals := []string{model.JobStatusCancelled, model.JobStatusCompleted, model.JobStatusError}
	events := []TransitionEvent{EventStart, EventPauseObserved, EventResume, EventCancelObserved, EventExhausted, EventFatal}

	for _, status := range terminals {
		for _, event := range events {
			_, err := Transition(status, event)
			assert.Error(t, err, "terminal status %s must reject event %s", status, event)
		}
	}
}

func TestCanHelpers(t *testing.T) {
	assert.True(t, CanPause(model.JobStatusRunning))
	assert.False(t, CanPause(model.JobStatusQueued))
	assert.False(t, CanPause(model.JobStatusPaused))

	assert.True(t, CanResume(model.JobStatusPaused))
	assert.False(t, CanResume(model.JobStatusRunning))

	assert.True(t, CanCancel(model.JobStatusRunning))
	assert.True(t, CanCancel(model.JobStatusPaused))
	assert.False(t, CanCancel(model.JobStatusCompleted))
}
