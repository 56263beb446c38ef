package llm

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsFatalAPIError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil error", nil, false},
		{"connection reset", errors.New("connection reset by peer"), false},
		{"timeout", errors.New("context deadline exceeded"), false},
		{"404", errors.New("HTTP 404: not found"), false},
		{"500", errors.New("HTTP 500: internal server error"), false},
		{"credit balance", errors.New("your credit balance is too low"), true},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"quota", errors.New("quota exceeded for model"), true},
		{"billing", errors.New("billing account inactive"), true},
		{"bad key", errors.New("invalid api key"), true},
		{"authentication", errors.New("authentication failed"), true},
		{"unauthorized", errors.New("unauthorized request"), true},
		{"401", errors.New("HTTP 401: not allowed"), true},
		{"403", errors.New("HTTP 403: forbidden"), true},
		{"wrapped", fmt.Errorf("embed batch: %w", errors.New("credit balance too low")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isFatalAPIError(tt.err); got != tt.fatal {
				t.Errorf("isFatalAPIError(%v) = %v, want %v", tt.err, got, tt.fatal)
			}
		})
	}
}

func TestWrapFatalError(t *testing.T) {
	t.Run("wraps fatal error", func(t *testing.T) {
		wrapped := wrapFatalError(errors.New("invalid api key provided"))
		if !errors.Is(wrapped, ErrFatalAPI) {
			t.Error("expected wrapped error to match ErrFatalAPI")
		}
	})

	t.Run("passes through retryable error", func(t *testing.T) {
		err := errors.New("network timeout")
		result := wrapFatalError(err)
		if errors.Is(result, ErrFatalAPI) {
			t.Error("retryable error should not be wrapped with ErrFatalAPI")
		}
		if result != err {
			t.Errorf("expected original error returned, got %v", result)
		}
	})

	t.Run("nil error", func(t *testing.T) {
		if result := wrapFatalError(nil); result != nil {
			t.Errorf("expected nil, got %v", result)
		}
	})
}
