package hub

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/apimetry/apimetry-go/pkg/metrics"
)

func testSnapshot() metrics.Snapshot {
	return metrics.Snapshot{
		Requests: []metrics.RequestsItem{{Method: "GET", Path: "/items", StatusCode: 200, RequestCount: 1}},
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "network error", err: errors.New("connection refused"), want: true},
		{name: "429", err: &HTTPError{StatusCode: 429}, want: true},
		{name: "500", err: &HTTPError{StatusCode: 500}, want: true},
		{name: "400", err: &HTTPError{StatusCode: 400}, want: false},
		{name: "422", err: &HTTPError{StatusCode: 422}, want: false},
		{name: "invalid client ID", err: ErrInvalidClientID, want: false},
		{name: "wrapped invalid client ID", err: fmt.Errorf("sync: %w", ErrInvalidClientID), want: false},
		{name: "suspension", err: &SuspendedError{RetryAfter: time.Hour}, want: false},
		{name: "cancelled", err: context.Canceled, want: false},
		{name: "deadline", err: fmt.Errorf("attempt: %w", context.DeadlineExceeded), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(tt.err))
		})
	}
}

func TestNewSyncPayloadEnvelope(t *testing.T) {
	payloadA := NewSyncPayload("instance-1", 1000, 2000, testSnapshot(), nil)
	payloadB := NewSyncPayload("instance-1", 1000, 2000, testSnapshot(), nil)

	assert.Equal(t, "instance-1", payloadA.InstanceUUID)
	assert.Equal(t, int64(1000), payloadA.WindowStart)
	assert.Equal(t, int64(2000), payloadA.WindowEnd)
	assert.NotEmpty(t, payloadA.MessageUUID)
	assert.NotEqual(t, payloadA.MessageUUID, payloadB.MessageUUID)
}
