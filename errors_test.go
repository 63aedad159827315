package smsbox

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rbaliyan/smsbox/store"
)

func TestSentinelsWrapStoreErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"not found", ErrNotFound, store.ErrNotFound},
		{"not connected", ErrNotConnected, store.ErrNotConnected},
		{"already connected", ErrAlreadyConnected, store.ErrAlreadyConnected},
		{"invalid id", ErrInvalidID, store.ErrInvalidID},
		{"invalid transition", ErrInvalidTransition, store.ErrInvalidTransition},
		{"filter invalid", ErrFilterInvalid, store.ErrFilterInvalid},
		{"empty address", ErrEmptyAddress, store.ErrEmptyAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.target) {
				t.Errorf("expected %v to wrap %v", tt.err, tt.target)
			}
		})
	}
}

func TestStorageError(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("drain: %w", &StorageError{Op: "insert", Err: cause})

	if !errors.Is(err, ErrStorage) {
		t.Error("expected errors.Is to match ErrStorage")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to match the cause")
	}
	se, ok := IsStorageError(err)
	if !ok || se.Op != "insert" {
		t.Errorf("expected StorageError for insert, got %v", err)
	}
	if !strings.Contains(err.Error(), "insert") {
		t.Errorf("expected op in message, got %q", err.Error())
	}
}

func TestDispatchError(t *testing.T) {
	cause := errors.New("radio off")
	err := &DispatchError{MessageID: "m1", Err: cause}

	if !errors.Is(err, ErrDispatch) || !errors.Is(err, cause) {
		t.Error("expected DispatchError to match ErrDispatch and its cause")
	}
	if _, ok := IsDispatchError(err); !ok {
		t.Error("expected IsDispatchError to match")
	}
	if _, ok := IsStorageError(err); ok {
		t.Error("dispatch error is not a storage error")
	}
	if !strings.Contains(err.Error(), "m1") {
		t.Errorf("expected message id in %q", err.Error())
	}
}

func TestIntegrityWarning(t *testing.T) {
	err := &IntegrityWarning{Op: "delete", MessageID: "m1", Expected: 1, Affected: 2}

	if !errors.Is(err, ErrIntegrity) {
		t.Error("expected errors.Is to match ErrIntegrity")
	}
	if !strings.Contains(err.Error(), "affected 2 rows") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{Field: "body", Message: "too large", Err: ErrBodyTooLarge}

	if !errors.Is(err, ErrInvalidMessage) || !errors.Is(err, ErrBodyTooLarge) {
		t.Error("expected ValidationError to match ErrInvalidMessage and ErrBodyTooLarge")
	}

	bare := &ValidationError{Field: "address", Message: "bad"}
	if !errors.Is(bare, ErrInvalidMessage) {
		t.Error("expected bare ValidationError to match ErrInvalidMessage")
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"store not found", store.ErrNotFound, false},
		{"smsbox not found", ErrNotFound, false},
		{"already connected", store.ErrAlreadyConnected, false},
		{"validation", &ValidationError{Field: "body", Err: ErrBodyTooLarge}, false},
		{"invalid transition", fmt.Errorf("move: %w", store.ErrInvalidTransition), false},
		{"storage", &StorageError{Op: "insert", Err: errors.New("timeout")}, true},
		{"dispatch", &DispatchError{MessageID: "m1", Err: errors.New("busy")}, true},
		{"queue full", ErrQueueFull, true},
		{"unknown", errors.New("something"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableError(tt.err); got != tt.want {
				t.Errorf("IsRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
