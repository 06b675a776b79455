package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telloo/internal/types"
)

type mockLogger struct{}

func (m *mockLogger) Info(msg string, args ...any)  {}
func (m *mockLogger) Error(msg string, args ...any) {}
func (m *mockLogger) Warn(msg string, args ...any)  {}
func (m *mockLogger) With(args ...any) types.Logger { return m }

type mockDispatcher struct {
	result *types.DispatchResult
	errFor map[string]error
	events []types.DispatchEvent
}

func (m *mockDispatcher) Dispatch(ctx context.Context, event types.DispatchEvent) (*types.DispatchResult, error) {
	m.events = append(m.events, event)
	if err, ok := m.errFor[event.PostID]; ok {
		return nil, err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &types.DispatchResult{Sent: 1, Recipients: 1}, nil
}

func newTestHandler(d *mockDispatcher) *Handler {
	return &Handler{dispatcher: d, logger: &mockLogger{}}
}

func sqsRecord(t *testing.T, messageID string, msg types.DispatchMessage) events.SQSMessage {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	return events.SQSMessage{MessageId: messageID, Body: string(body)}
}

func TestHandle_AllSucceed(t *testing.T) {
	d := &mockDispatcher{}
	h := newTestHandler(d)

	event := events.SQSEvent{Records: []events.SQSMessage{
		sqsRecord(t, "m1", types.DispatchMessage{
			TraceID: "t1",
			Event:   types.DispatchEvent{Type: types.EventNewComment, PostID: "post_1"},
		}),
		sqsRecord(t, "m2", types.DispatchMessage{
			TraceID: "t2",
			Event:   types.DispatchEvent{Type: types.EventNewVote, PostID: "post_2"},
		}),
	}}

	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	require.Len(t, d.events, 2)
	assert.Equal(t, "post_1", d.events[0].PostID)
	assert.Equal(t, "post_2", d.events[1].PostID)
}

func TestHandle_TransientFailureReportsBatchItem(t *testing.T) {
	d := &mockDispatcher{errFor: map[string]error{
		"post_2": errors.New("database timeout"),
	}}
	h := newTestHandler(d)

	event := events.SQSEvent{Records: []events.SQSMessage{
		sqsRecord(t, "m1", types.DispatchMessage{
			Event: types.DispatchEvent{Type: types.EventNewComment, PostID: "post_1"},
		}),
		sqsRecord(t, "m2", types.DispatchMessage{
			Event: types.DispatchEvent{Type: types.EventNewComment, PostID: "post_2"},
		}),
	}}

	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "m2", resp.BatchItemFailures[0].ItemIdentifier)
}

func TestHandle_UnparseableMessageIsAcked(t *testing.T) {
	d := &mockDispatcher{}
	h := newTestHandler(d)

	event := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m1", Body: "not-json"},
	}}

	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Empty(t, d.events)
}

func TestHandle_TerminalErrorIsAcked(t *testing.T) {
	d := &mockDispatcher{errFor: map[string]error{
		"post_gone": types.NewAppError(types.ErrCodeNotFoundPost, "post not found", nil),
	}}
	h := newTestHandler(d)

	event := events.SQSEvent{Records: []events.SQSMessage{
		sqsRecord(t, "m1", types.DispatchMessage{
			Event: types.DispatchEvent{Type: types.EventNewComment, PostID: "post_gone"},
		}),
	}}

	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
}

func TestIsTerminalDispatchError(t *testing.T) {
	terminal := []error{
		types.NewAppError(types.ErrCodeNotFoundPost, "post not found", nil),
		types.NewAppError(types.ErrCodeNotFoundBoard, "board not found", nil),
		types.NewAppError(types.ErrCodeValidationMissingField, "postId is required", nil),
	}
	for _, err := range terminal {
		assert.True(t, isTerminalDispatchError(err), "expected terminal: %v", err)
	}

	transient := []error{
		errors.New("connection reset"),
		types.NewAppError(types.ErrCodeInternalDB, "query failed", nil),
		types.NewAppError(types.ErrCodeUpstreamEmailProvider, "provider 500", nil),
	}
	for _, err := range transient {
		assert.False(t, isTerminalDispatchError(err), "expected transient: %v", err)
	}
}
