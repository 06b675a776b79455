package types

import (
	"context"
	"testing"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req_1")
	if got := GetRequestID(ctx); got != "req_1" {
		t.Errorf("GetRequestID = %q, want req_1", got)
	}
}

func TestRequestIDMissing(t *testing.T) {
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID on empty context = %q, want empty", got)
	}
}

func TestCallerRoundTrip(t *testing.T) {
	caller := Caller{ID: "key_1", Label: "backend", Internal: false}
	ctx := WithCaller(context.Background(), caller)

	got, ok := GetCaller(ctx)
	if !ok {
		t.Fatal("expected caller in context")
	}
	if got != caller {
		t.Errorf("GetCaller = %+v, want %+v", got, caller)
	}
}

func TestCallerMissing(t *testing.T) {
	if _, ok := GetCaller(context.Background()); ok {
		t.Error("GetCaller on empty context should report absence")
	}
}
