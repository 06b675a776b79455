package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorImplementsError(t *testing.T) {
	var _ error = (*AppError)(nil)
}

func TestAppErrorErrorFormat(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeNotFoundPost,
		Message: "post not found",
	}

	expected := "not_found_post: post not found"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	underlying := errors.New("connection refused")
	appErr := NewAppError(ErrCodeInternalDB, "failed to load post", underlying)

	if !errors.Is(appErr, underlying) {
		t.Errorf("errors.Is should find the underlying error")
	}
	if appErr.Unwrap() != underlying {
		t.Errorf("Unwrap() = %v, want %v", appErr.Unwrap(), underlying)
	}
}

func TestAppErrorErrorsAs(t *testing.T) {
	appErr := NewAppError(ErrCodeAuthTokenRevoked, "API key has been revoked", nil)
	wrapped := fmt.Errorf("middleware: %w", appErr)

	var target *AppError
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As should extract AppError from the chain")
	}
	if target.Code != ErrCodeAuthTokenRevoked {
		t.Errorf("Code = %s, want %s", target.Code, ErrCodeAuthTokenRevoked)
	}
}

func TestErrorCodeHTTPStatus(t *testing.T) {
	cases := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationInvalidJSON, http.StatusBadRequest},
		{ErrCodeValidationMissingField, http.StatusBadRequest},
		{ErrCodeAuthTokenMissing, http.StatusUnauthorized},
		{ErrCodeAuthTokenInvalid, http.StatusUnauthorized},
		{ErrCodeAuthTokenRevoked, http.StatusUnauthorized},
		{ErrCodeNotFoundPost, http.StatusNotFound},
		{ErrCodeNotFoundBoard, http.StatusNotFound},
		{ErrCodeEmailBlocked, http.StatusForbidden},
		{ErrCodeUpstreamRateLimited, http.StatusTooManyRequests},
		{ErrCodeUpstreamEmailProvider, http.StatusBadGateway},
		{ErrCodeUpstreamUnavailable, http.StatusBadGateway},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrCodeInternalUnexpected, http.StatusInternalServerError},
		{ErrCodeTemplateRender, http.StatusInternalServerError},
		{ErrorCode("made_up_code"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		if got := tc.code.HTTPStatus(); got != tc.want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", tc.code, got, tc.want)
		}
	}
}

func TestNewAppErrorWithDetails(t *testing.T) {
	appErr := NewAppErrorWithDetails(
		ErrCodeValidationMissingField,
		"postId is required",
		nil,
		map[string]any{"field": "postId"},
	)

	if appErr.Details["field"] != "postId" {
		t.Errorf("Details[field] = %v, want postId", appErr.Details["field"])
	}
	if appErr.HTTPStatus() != http.StatusBadRequest {
		t.Errorf("HTTPStatus() = %d, want 400", appErr.HTTPStatus())
	}
}
