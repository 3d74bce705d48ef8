package message

import (
	"errors"
	"fmt"

	"github.com/rbaliyan/message/store"
)

// Service lifecycle and configuration errors.
var (
	// ErrStoreRequired is returned by NewService when no store is configured.
	ErrStoreRequired = errors.New("message: store is required")

	// ErrDirectoryRequired is returned by NewService when no user
	// directory is configured.
	ErrDirectoryRequired = errors.New("message: user directory is required")

	// ErrNotConnected indicates the service is not connected.
	ErrNotConnected = errors.New("message: service not connected")

	// ErrAlreadyConnected indicates Connect was called twice.
	ErrAlreadyConnected = errors.New("message: service already connected")

	// ErrInvalidUserID indicates a client was created for an invalid user ID.
	ErrInvalidUserID = errors.New("message: invalid user id")
)

// Validation errors. All of them unwrap to ErrInvalidMessage so callers
// can classify with a single errors.Is check.
var (
	// ErrInvalidMessage is the root of all validation failures.
	ErrInvalidMessage = errors.New("message: invalid message")

	// ErrMissingRecipient indicates a deliverable message without a recipient.
	ErrMissingRecipient = fmt.Errorf("%w: recipient is required", ErrInvalidMessage)

	// ErrMissingTitle indicates an empty title.
	ErrMissingTitle = fmt.Errorf("%w: title is required", ErrInvalidMessage)

	// ErrInvalidStatus indicates an unknown or non-composable status.
	ErrInvalidStatus = fmt.Errorf("%w: invalid status", ErrInvalidMessage)

	// ErrInvalidAttachment indicates an attachment reference whose file
	// extension is not allowed for its slot.
	ErrInvalidAttachment = fmt.Errorf("%w: unsupported attachment", ErrInvalidMessage)

	// ErrRecipientBlocked indicates the recipient has blocked the sender.
	ErrRecipientBlocked = fmt.Errorf("%w: recipient has blocked the sender", ErrInvalidMessage)

	// ErrNotAllowed indicates strict mode is on and the recipient has not
	// allowed the sender.
	ErrNotAllowed = fmt.Errorf("%w: sender is not an allowed contact of the recipient", ErrInvalidMessage)
)

// Lookup and state errors.
var (
	// ErrNotFound indicates the message does not exist or the viewer may
	// not see it. The two cases are deliberately indistinguishable.
	ErrNotFound = fmt.Errorf("message: not found: %w", store.ErrNotFound)

	// ErrUnknownRecipient indicates the directory has no such user.
	ErrUnknownRecipient = fmt.Errorf("message: unknown recipient: %w", store.ErrNotFound)

	// ErrStatusConflict indicates an illegal or raced status transition.
	ErrStatusConflict = errors.New("message: status conflict")

	// ErrUnauthorized indicates the viewer is neither sender nor recipient.
	ErrUnauthorized = errors.New("message: unauthorized")

	// ErrAutoReplyLoop indicates the auto-responder was asked to answer a
	// message that is itself an auto-reply. The guard refuses rather than
	// risking a reply storm.
	ErrAutoReplyLoop = errors.New("message: auto-reply loop detected")
)

// ValidationError describes a field-level validation failure. It unwraps
// to ErrInvalidMessage.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("message: invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidMessage
}

// DependencyError wraps a failure of a backing system (store, event
// bus, notifier). Op names the failed operation.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("message: %s: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// wrapDep wraps a backing-system error, preserving its chain.
func wrapDep(op string, err error) error {
	return &DependencyError{Op: op, Err: err}
}

// EventPublishError indicates an operation succeeded but publishing its
// event failed. Only returned when event errors are configured as fatal.
type EventPublishError struct {
	Event     string
	MessageID int64
	Err       error
}

func (e *EventPublishError) Error() string {
	return fmt.Sprintf("message: publish %s for message %d: %v", e.Event, e.MessageID, e.Err)
}

func (e *EventPublishError) Unwrap() error { return e.Err }

// IsValidationFailure reports whether err is a validation failure: the
// input was malformed or the send was refused by policy.
func IsValidationFailure(err error) bool {
	return errors.Is(err, ErrInvalidMessage)
}

// IsNotFoundFailure reports whether err is a missing-entity failure.
func IsNotFoundFailure(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

// IsDependencyFailure reports whether err is a backing-system failure.
func IsDependencyFailure(err error) bool {
	var de *DependencyError
	if errors.As(err, &de) {
		return true
	}
	var pe *EventPublishError
	if errors.As(err, &pe) {
		return true
	}
	return errors.Is(err, store.ErrNotConnected) || errors.Is(err, ErrNotConnected)
}

// IsRetryableError reports whether the operation that produced err may
// succeed if repeated. Validation and not-found failures are permanent;
// dependency failures are generally worth retrying.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if IsValidationFailure(err) || IsNotFoundFailure(err) {
		return false
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrStatusConflict) ||
		errors.Is(err, ErrAutoReplyLoop) || errors.Is(err, ErrInvalidUserID) {
		return false
	}
	return IsDependencyFailure(err)
}
