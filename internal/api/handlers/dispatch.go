// Package handlers contains the HTTP handler implementations for the Telloo
// notification API.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"telloo/internal/core"
	"telloo/internal/types"
)

// --- Service Interfaces ---
//
// Defined locally following the handler injection pattern. The handler
// depends on abstractions so tests can substitute doubles for the dispatcher
// and the queue publisher.

// EventDispatcher runs a synchronous notification fan-out.
type EventDispatcher interface {
	Dispatch(ctx context.Context, event types.DispatchEvent) (*types.DispatchResult, error)
}

// --- Response Models ---

// dispatchResponse is the success body for the synchronous path. The shape is
// fixed: existing platform callers parse exactly {"sent": n}.
type dispatchResponse struct {
	Sent int `json:"sent"`
}

// dispatchErrorResponse is the failure body for the dispatch endpoint.
// Existing callers expect a flat {"error": "<message>"} rather than the
// chassis envelope.
type dispatchErrorResponse struct {
	Error string `json:"error"`
}

// queuedResponse is the body returned when the event was handed off to the
// asynchronous queue instead of dispatched inline.
type queuedResponse struct {
	Queued  bool   `json:"queued"`
	TraceID string `json:"trace_id"`
}

// --- Handler ---

// DispatchHandler serves POST /v1/notifications/dispatch.
type DispatchHandler struct {
	dispatcher EventDispatcher
	publisher  types.DispatchPublisher // optional; nil disables the async path
	logger     types.Logger
}

// NewDispatchHandler creates a DispatchHandler. publisher may be nil, in
// which case async requests fall back to inline dispatch.
func NewDispatchHandler(
	dispatcher EventDispatcher,
	publisher types.DispatchPublisher,
	logger types.Logger,
) *DispatchHandler {
	return &DispatchHandler{
		dispatcher: dispatcher,
		publisher:  publisher,
		logger:     logger,
	}
}

// RegisterRoutes mounts dispatch routes on the provided chi.Router.
func (h *DispatchHandler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Post("/dispatch", h.Dispatch)
	})
}

// Dispatch handles POST /v1/notifications/dispatch.
//
// The default path dispatches inline and returns 200 {"sent": n}, including
// when zero recipients were eligible. With ?async=true and a configured
// queue, the event is published for the worker to process and the response is
// 202 {"queued": true}. Unexpected dispatch failures, including a postId that
// resolves to no post, produce 500 {"error": "<message>"}.
func (h *DispatchHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var event types.DispatchEvent
	if err := core.DecodeJSON(w, r, &event); err != nil {
		core.Error(w, r, err)
		return
	}

	if event.PostID == "" {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"postId is required",
			nil,
		))
		return
	}

	if r.URL.Query().Get("async") == "true" && h.publisher != nil {
		h.dispatchAsync(w, r, event)
		return
	}

	result, err := h.dispatcher.Dispatch(r.Context(), event)
	if err != nil {
		h.writeDispatchError(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, dispatchResponse{Sent: result.Sent})
}

// dispatchAsync hands the event to the queue and returns immediately. The
// caller explicitly chose fire-and-forget, so it never learns the sent count.
// The publisher stamps the envelope with the request ID from the context.
func (h *DispatchHandler) dispatchAsync(w http.ResponseWriter, r *http.Request, event types.DispatchEvent) {
	if err := h.publisher.Publish(r.Context(), event); err != nil {
		h.logger.Error("failed to publish dispatch event",
			"post_id", event.PostID,
			"event_type", string(event.Type),
			"error", err.Error(),
		)
		h.writeDispatchError(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusAccepted, queuedResponse{
		Queued:  true,
		TraceID: types.GetRequestID(r.Context()),
	})
}

// writeDispatchError emits the flat error body this endpoint's callers
// expect. Validation failures keep their 400 status; everything else,
// post-not-found included, is a 500 because the dispatcher cannot proceed.
func (h *DispatchHandler) writeDispatchError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "notification dispatch failed"

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
		if appErr.HTTPStatus() == http.StatusBadRequest {
			status = http.StatusBadRequest
		}
	}

	core.JSON(w, r, status, dispatchErrorResponse{Error: message})
}
