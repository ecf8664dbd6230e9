package events

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTaskRequestEvent(t *testing.T) {
	type payload struct {
		Service  string `json:"service"`
		Task     string `json:"task"`
		Priority int    `json:"priority"`
	}

	event, err := NewTaskRequestEvent("background_task",
		payload{Service: "ADMIN_SERVICE", Task: "MIC_CHECK", Priority: 100},
		WithSource("api"))
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, "background_task", event.Type)
	assert.Equal(t, "api", event.Source)
	assert.WithinDuration(t, time.Now(), event.CreatedAt, 2*time.Second)
	assert.Equal(t, time.UTC, event.CreatedAt.Location())
	assert.JSONEq(t, `{"service":"ADMIN_SERVICE","task":"MIC_CHECK","priority":100}`, string(event.Payload))

	var decoded payload
	require.NoError(t, event.UnmarshalPayload(&decoded))
	assert.Equal(t, 100, decoded.Priority)
}

func TestNewTaskRequestEventUnencodablePayload(t *testing.T) {
	_, err := NewTaskRequestEvent("background_task", map[string]any{"ch": make(chan int)})
	assert.ErrorContains(t, err, "failed to encode background_task payload")
}

func TestTaskRequestEventValidate(t *testing.T) {
	valid, err := NewTaskRequestEvent("background_task", map[string]any{"service": "S"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		event   *TaskRequestEvent
		wantErr bool
	}{
		{name: "valid", event: valid},
		{name: "nil", event: nil, wantErr: true},
		{name: "no type", event: &TaskRequestEvent{ID: uuid.New(), Payload: []byte(`{}`)}, wantErr: true},
		{name: "broken payload", event: &TaskRequestEvent{ID: uuid.New(), Type: "x", Payload: []byte(`{broken`)}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.event.Validate()
			if tc.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidEvent))
				return
			}
			assert.NoError(t, err)
		})
	}
}
