package store

import "errors"

// Sentinel errors for the store package.
var (
	// ErrNotFound is returned when a message cannot be found.
	ErrNotFound = errors.New("store: not found")

	// ErrInvalidID is returned when an invalid ID is provided.
	ErrInvalidID = errors.New("store: invalid id")

	// ErrDuplicateEntry is returned when a unique constraint is violated.
	ErrDuplicateEntry = errors.New("store: duplicate entry")

	// ErrNotConnected is returned when operations are attempted before Connect().
	ErrNotConnected = errors.New("store: not connected")

	// ErrAlreadyConnected is returned when Connect() is called twice.
	ErrAlreadyConnected = errors.New("store: already connected")

	// ErrFilterInvalid is returned when a filter is invalid, including an
	// empty filter list on bulk Update or Delete.
	ErrFilterInvalid = errors.New("store: invalid filter")

	// ErrInvalidFolder is returned when a folder is not one of the known folders.
	ErrInvalidFolder = errors.New("store: invalid folder")

	// ErrInvalidTransition is returned when a folder move is not allowed
	// from the message's current folder.
	ErrInvalidTransition = errors.New("store: invalid folder transition")

	// ErrEmptyAddress is returned when a message or thread has no address.
	ErrEmptyAddress = errors.New("store: empty address")

	// ErrEmptyUpdate is returned when an update carries no fields.
	ErrEmptyUpdate = errors.New("store: empty update")
)

// Error checking helpers.

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInvalidID(err error) bool {
	return errors.Is(err, ErrInvalidID)
}

func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected)
}

func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}
