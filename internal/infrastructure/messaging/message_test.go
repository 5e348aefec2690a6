package messaging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-image-ai-api/internal/application/generation"
)

func TestNewMessage_RoundTripsPayload(t *testing.T) {
	msg, err := NewMessage("m1", MsgTypeRefineJob, "", &RefineJobMessage{RequestID: "req-1"})
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, MsgTypeRefineJob, msg.Type)
	assert.False(t, msg.CreatedAt.IsZero())

	var job RefineJobMessage
	require.NoError(t, msg.UnmarshalPayload(&job))
	assert.Equal(t, "req-1", job.RequestID)
}

func TestMessage_Metadata(t *testing.T) {
	msg := &Message{}
	assert.Empty(t, msg.GetMetadata("retry"))

	msg.SetMetadata("retry", "2")
	assert.Equal(t, "2", msg.GetMetadata("retry"))
}

func TestStream_DLQStream(t *testing.T) {
	assert.Equal(t, "dlq:stream:image:refine", StreamImageRefine.DLQStream())
}

func TestEventDedupKey(t *testing.T) {
	// Consecutive status changes of one iteration must get distinct keys
	optimizing := &generation.Event{RequestID: "r1", IterationNumber: 2, Type: generation.EventStatusChange, Status: "optimizing"}
	generating := &generation.Event{RequestID: "r1", IterationNumber: 2, Type: generation.EventStatusChange, Status: "generating"}
	assert.NotEqual(t, eventDedupKey(optimizing), eventDedupKey(generating))

	// Completion events stay keyed per iteration regardless of status
	done := &generation.Event{RequestID: "r1", IterationNumber: 2, Type: generation.EventCompleted, Status: "completed"}
	assert.Equal(t, "evt:r1:2:COMPLETED", eventDedupKey(done))
}

func TestCalculateBackoff(t *testing.T) {
	cfg := DefaultBackoffConfig()

	assert.Equal(t, time.Second, cfg.CalculateBackoff(0))
	assert.Equal(t, 2*time.Second, cfg.CalculateBackoff(1))
	assert.Equal(t, 8*time.Second, cfg.CalculateBackoff(3))
	// capped at Max once the exponential curve passes it
	assert.Equal(t, time.Minute, cfg.CalculateBackoff(10))
}
