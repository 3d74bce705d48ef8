package message

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rbaliyan/message/store"
)

func TestErrorClassification(t *testing.T) {
	depErr := wrapDep("create record", errors.New("connection reset"))
	pubErr := &EventPublishError{Event: "composed", MessageID: 7, Err: errors.New("bus down")}

	tests := []struct {
		name       string
		err        error
		validation bool
		notFound   bool
		dependency bool
		retryable  bool
	}{
		{"nil", nil, false, false, false, false},
		{"missing title", ErrMissingTitle, true, false, false, false},
		{"missing recipient", ErrMissingRecipient, true, false, false, false},
		{"invalid status", ErrInvalidStatus, true, false, false, false},
		{"invalid attachment", ErrInvalidAttachment, true, false, false, false},
		{"recipient blocked", ErrRecipientBlocked, true, false, false, false},
		{"not allowed", ErrNotAllowed, true, false, false, false},
		{"field validation", &ValidationError{Field: "title", Message: "too long"}, true, false, false, false},
		{"not found", ErrNotFound, false, true, false, false},
		{"unknown recipient", ErrUnknownRecipient, false, true, false, false},
		{"status conflict", ErrStatusConflict, false, false, false, false},
		{"unauthorized", ErrUnauthorized, false, false, false, false},
		{"auto-reply loop", ErrAutoReplyLoop, false, false, false, false},
		{"dependency", depErr, false, false, true, true},
		{"event publish", pubErr, false, false, true, true},
		{"not connected", ErrNotConnected, false, false, true, true},
		{"store not connected", store.ErrNotConnected, false, false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidationFailure(tt.err); got != tt.validation {
				t.Errorf("IsValidationFailure = %v, want %v", got, tt.validation)
			}
			if got := IsNotFoundFailure(tt.err); got != tt.notFound {
				t.Errorf("IsNotFoundFailure = %v, want %v", got, tt.notFound)
			}
			if got := IsDependencyFailure(tt.err); got != tt.dependency {
				t.Errorf("IsDependencyFailure = %v, want %v", got, tt.dependency)
			}
			if got := IsRetryableError(tt.err); got != tt.retryable {
				t.Errorf("IsRetryableError = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{Field: "title", Message: "exceeds 128 characters"}

	if !errors.Is(err, ErrInvalidMessage) {
		t.Error("ValidationError should unwrap to ErrInvalidMessage")
	}

	wrapped := fmt.Errorf("compose: %w", err)
	var ve *ValidationError
	if !errors.As(wrapped, &ve) {
		t.Fatal("expected errors.As to find the ValidationError")
	}
	if ve.Field != "title" {
		t.Errorf("expected field 'title', got %q", ve.Field)
	}

	want := "message: invalid title: exceeds 128 characters"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestDependencyError(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := wrapDep("create record", cause)

	if !errors.Is(err, cause) {
		t.Error("DependencyError should preserve the cause chain")
	}
	var de *DependencyError
	if !errors.As(err, &de) {
		t.Fatal("expected errors.As to find the DependencyError")
	}
	if de.Op != "create record" {
		t.Errorf("expected op 'create record', got %q", de.Op)
	}
}

func TestEventPublishError(t *testing.T) {
	cause := errors.New("bus down")
	err := &EventPublishError{Event: "message.composed", MessageID: 42, Err: cause}

	if !errors.Is(err, cause) {
		t.Error("EventPublishError should preserve the cause chain")
	}
	want := "message: publish message.composed for message 42: bus down"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
