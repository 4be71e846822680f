package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestCommonErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"ErrClosed", ErrClosed, "resource is closed"},
		{"ErrNotAccepting", ErrNotAccepting, "not accepting input"},
		{"ErrTimeout", ErrTimeout, "operation timed out"},
		{"ErrCapacityExceeded", ErrCapacityExceeded, "capacity exceeded"},
		{"ErrInvalidConfiguration", ErrInvalidConfiguration, "invalid configuration"},
		{"ErrRateLimited", ErrRateLimited, "rate limited"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ValidationError
		want string
	}{
		{
			name: "without hint",
			err: &ValidationError{
				Module: "dataflow",
				Field:  "MaxDegreeOfParallelism",
				Value:  0,
				Reason: "must be positive or Unbounded",
			},
			want: "dataflow: invalid MaxDegreeOfParallelism=0 (must be positive or Unbounded)",
		},
		{
			name: "with hint",
			err: &ValidationError{
				Module: "queue",
				Field:  "capacity",
				Value:  -7,
				Reason: "must be positive or Unbounded",
				Hint:   "use queue.Unbounded for no limit",
			},
			want: "queue: invalid capacity=-7 (must be positive or Unbounded) - use queue.Unbounded for no limit",
		},
		{
			name: "string value",
			err: &ValidationError{
				Module: "feed",
				Field:  "spec",
				Value:  "",
				Reason: "cannot be empty",
			},
			want: "feed: invalid spec= (cannot be empty)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidationError_Unwrap(t *testing.T) {
	verr := NewValidationError("dataflow", "BoundedCapacity", 0, "must be positive")

	if verr.Unwrap() != ErrInvalidConfiguration {
		t.Errorf("Unwrap() = %v, want ErrInvalidConfiguration", verr.Unwrap())
	}
	if !errors.Is(verr, ErrInvalidConfiguration) {
		t.Error("ValidationError should wrap ErrInvalidConfiguration")
	}
}

func TestValidationError_WithHint(t *testing.T) {
	err := NewValidationError("dataflow", "field", 0, "invalid").
		WithHint("try a positive value")

	if err.Hint != "try a positive value" {
		t.Errorf("Hint = %q, want %q", err.Hint, "try a positive value")
	}

	if result := err.WithHint("new hint"); result != err {
		t.Error("WithHint should return the same instance")
	}
}

func TestOperationError(t *testing.T) {
	cause := errors.New("buffer full")

	plain := NewOperationError("queue", "Enqueue", cause)
	if got, want := plain.Error(), "queue.Enqueue failed: buffer full"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	withCtx := NewOperationError("dataflow", "Route", cause).WithContext("target double-1a2b")
	if got, want := withCtx.Error(), "dataflow.Route failed: buffer full (target double-1a2b)"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	if !errors.Is(withCtx, cause) {
		t.Error("OperationError should wrap the cause error")
	}
}

func TestClassifiers(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		retryable    bool
		validation   bool
		notAccepting bool
	}{
		{"timeout", ErrTimeout, true, false, false},
		{"rate limited", ErrRateLimited, true, false, false},
		{"capacity", ErrCapacityExceeded, false, false, false},
		{"closed", ErrClosed, false, false, true},
		{"not accepting", ErrNotAccepting, false, false, true},
		{"wrapped not accepting", fmt.Errorf("send: %w", ErrNotAccepting), false, false, true},
		{"wrapped timeout", &OperationError{Cause: ErrTimeout}, true, false, false},
		{"validation", NewValidationError("m", "f", 0, "r"), false, true, false},
		{"wrapped validation", &OperationError{Cause: NewValidationError("m", "f", 0, "r")}, false, true, false},
		{"random", errors.New("random"), false, false, false},
		{"nil", nil, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
			if got := IsValidationError(tt.err); got != tt.validation {
				t.Errorf("IsValidationError() = %v, want %v", got, tt.validation)
			}
			if got := IsNotAccepting(tt.err); got != tt.notAccepting {
				t.Errorf("IsNotAccepting() = %v, want %v", got, tt.notAccepting)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	err := NewValidationError("dataflow", "BoundedCapacity", 0, "must be positive").
		WithHint("use dataflow.Unbounded for no limit")

	msg := err.Error()
	for _, part := range []string{"dataflow", "BoundedCapacity", "0", "must be positive", "Unbounded"} {
		if !strings.Contains(msg, part) {
			t.Errorf("error message should contain %q, got %q", part, msg)
		}
	}
}
