package smsbox

import (
	"errors"
	"fmt"

	"github.com/rbaliyan/smsbox/store"
)

// Sentinel errors for the smsbox package.
// Use errors.Is() to check for these errors.
//
// These errors wrap corresponding store-level errors where applicable,
// so errors.Is(err, smsbox.ErrNotFound) will match both smsbox-level
// and store-level "not found" errors.
var (
	// ErrNotFound is returned when a message cannot be found.
	// Wraps store.ErrNotFound for consistent error checking.
	ErrNotFound = fmt.Errorf("smsbox: %w", store.ErrNotFound)

	// ErrStoreRequired is returned when no store is configured.
	ErrStoreRequired = errors.New("smsbox: store is required")

	// ErrTransportRequired is returned when neither a transport nor a radio is configured.
	ErrTransportRequired = errors.New("smsbox: transport or radio is required")

	// ErrNotConnected is returned when operations are attempted before Connect().
	// Wraps store.ErrNotConnected for consistent error checking.
	ErrNotConnected = fmt.Errorf("smsbox: %w", store.ErrNotConnected)

	// ErrAlreadyConnected is returned when Connect() is called twice.
	// Wraps store.ErrAlreadyConnected for consistent error checking.
	ErrAlreadyConnected = fmt.Errorf("smsbox: %w", store.ErrAlreadyConnected)

	// ErrInvalidID is returned when an invalid ID is provided.
	// Wraps store.ErrInvalidID for consistent error checking.
	ErrInvalidID = fmt.Errorf("smsbox: %w", store.ErrInvalidID)

	// ErrInvalidTransition is returned when a folder move is not allowed.
	// Wraps store.ErrInvalidTransition for consistent error checking.
	ErrInvalidTransition = fmt.Errorf("smsbox: %w", store.ErrInvalidTransition)

	// ErrFilterInvalid is returned when a filter is invalid.
	// Wraps store.ErrFilterInvalid for consistent error checking.
	ErrFilterInvalid = fmt.Errorf("smsbox: %w", store.ErrFilterInvalid)

	// ErrInvalidMessage is returned for message validation failures.
	ErrInvalidMessage = errors.New("smsbox: invalid message")

	// ErrEmptyAddress is returned when an address is empty.
	// Wraps store.ErrEmptyAddress for consistent error checking.
	ErrEmptyAddress = fmt.Errorf("smsbox: %w", store.ErrEmptyAddress)

	// ErrAddressTooLong is returned when an address exceeds the maximum length.
	ErrAddressTooLong = errors.New("smsbox: address too long")

	// ErrBodyTooLarge is returned when body exceeds maximum size.
	ErrBodyTooLarge = errors.New("smsbox: body too large")

	// ErrInvalidContent is returned when message content contains invalid characters.
	ErrInvalidContent = errors.New("smsbox: invalid content")

	// ErrNoParts is returned when a received message carries no PDUs.
	ErrNoParts = errors.New("smsbox: received message has no parts")

	// ErrQueueFull is returned by Submit when the dispatcher queue is full.
	ErrQueueFull = errors.New("smsbox: event queue full")

	// ErrUnknownEvent is returned when the dispatcher receives an event type it cannot route.
	ErrUnknownEvent = errors.New("smsbox: unknown event")

	// ErrStorage is the category of StorageError.
	ErrStorage = errors.New("smsbox: storage error")

	// ErrDispatch is the category of DispatchError.
	ErrDispatch = errors.New("smsbox: dispatch rejected")

	// ErrIntegrity is the category of IntegrityWarning.
	ErrIntegrity = errors.New("smsbox: integrity warning")
)

// StorageError reports a failed row store operation.
// Reads that fail this way are treated as empty results; failed writes are
// abandoned and event processing continues.
type StorageError struct {
	Op  string // Store operation, e.g. "insert", "move"
	Err error  // Underlying store error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("smsbox: storage %s failed: %v", e.Op, e.Err)
}

// Unwrap returns both the category sentinel and the cause.
func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

// DispatchError reports that the transport rejected a send before accepting it.
// The queued record is left untouched and the next trigger retries it.
type DispatchError struct {
	MessageID string
	Err       error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("smsbox: dispatch of message %s rejected: %v", e.MessageID, e.Err)
}

// Unwrap returns both the category sentinel and the cause.
func (e *DispatchError) Unwrap() []error {
	return []error{ErrDispatch, e.Err}
}

// IntegrityWarning reports a write that touched an unexpected number of rows.
// It is logged and never returned from event processing.
type IntegrityWarning struct {
	Op        string
	MessageID string
	Expected  int64
	Affected  int64
}

func (e *IntegrityWarning) Error() string {
	return fmt.Sprintf("smsbox: %s of message %s affected %d rows, expected %d",
		e.Op, e.MessageID, e.Affected, e.Expected)
}

func (e *IntegrityWarning) Unwrap() error {
	return ErrIntegrity
}

// ValidationError provides details about a validation failure.
type ValidationError struct {
	Field   string // The field that failed validation
	Message string // Human-readable error message
	Err     error  // Specific sentinel, e.g. ErrBodyTooLarge
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("smsbox: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap returns ErrInvalidMessage and the specific sentinel when set.
func (e *ValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidMessage}
	}
	return []error{ErrInvalidMessage, e.Err}
}

// IsStorageError checks if the error is a storage error and returns details.
func IsStorageError(err error) (*StorageError, bool) {
	var se *StorageError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsDispatchError checks if the error is a dispatch error and returns details.
func IsDispatchError(err error) (*DispatchError, bool) {
	var de *DispatchError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsIntegrityWarning checks if the error is an integrity warning and returns details.
func IsIntegrityWarning(err error) (*IntegrityWarning, bool) {
	var iw *IntegrityWarning
	if errors.As(err, &iw) {
		return iw, true
	}
	return nil, false
}

// IsValidationError checks if the error is a validation error and returns details.
func IsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// IsRetryableError determines if an error is retryable.
// Returns true for temporary/transient errors, false for permanent errors.
// Handles both smsbox-level and store-level errors.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	permanentErrors := []error{
		store.ErrNotFound,
		store.ErrInvalidID,
		store.ErrInvalidTransition,
		store.ErrFilterInvalid,
		store.ErrEmptyAddress,
		store.ErrAlreadyConnected,
		ErrInvalidMessage,
		ErrAddressTooLong,
		ErrBodyTooLarge,
		ErrInvalidContent,
		ErrNoParts,
		ErrUnknownEvent,
		store.ErrDuplicateEntry,
		store.ErrInvalidFolder,
		store.ErrEmptyUpdate,
	}
	for _, permErr := range permanentErrors {
		if errors.Is(err, permErr) {
			return false
		}
	}

	// Everything else (lost connections, rejected dispatches, a full queue)
	// may succeed on a later attempt.
	return true
}
