package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownParty means a mutation targeted a party key with no
	// registered PartyData. A deployment problem, not an id typo.
	ErrUnknownParty = errors.New("unknown operating party")

	// ErrAlreadyExists means an Add hit an existing entity id.
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrNotFound means an Update/Patch/Remove missed.
	ErrNotFound = errors.New("entity not found")

	// ErrDowngrade means a write carried a LastUpdated not newer than the
	// stored entity while downgrades are disabled.
	ErrDowngrade = errors.New("timestamp not newer than stored entity")

	// ErrConcurrentModification means a compare-and-swap lost the race.
	ErrConcurrentModification = errors.New("entity changed concurrently")
)

// UnknownPartyError wraps ErrUnknownParty with the offending key.
func UnknownPartyError(key PartyKey) error {
	return fmt.Errorf("%w: %s", ErrUnknownParty, key)
}

// taggedError keeps a specific message while testing as a sentinel with
// errors.Is. Used where the sentinel text would read backwards in the
// formatted message.
type taggedError struct {
	msg string
	tag error
}

func (e *taggedError) Error() string { return e.msg }
func (e *taggedError) Unwrap() error { return e.tag }

// NotFoundErrorf formats a message that tests as ErrNotFound.
func NotFoundErrorf(format string, args ...any) error {
	return &taggedError{msg: fmt.Sprintf(format, args...), tag: ErrNotFound}
}

// AlreadyExistsErrorf formats a message that tests as ErrAlreadyExists.
func AlreadyExistsErrorf(format string, args ...any) error {
	return &taggedError{msg: fmt.Sprintf(format, args...), tag: ErrAlreadyExists}
}
