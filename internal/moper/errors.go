package moper

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to the HTTP boundary. Handlers match them with
// errors.Is; everything else is treated as a storage failure.
var (
	// ErrInvalidArgument flags malformed input (unknown slot, empty image,
	// bad payload).
	ErrInvalidArgument = errors.New("moper: invalid argument")
	// ErrUnauthorized is the parent of the two credential failures below.
	ErrUnauthorized = errors.New("moper: unauthorized")
	// ErrMissingCredential means no credential was supplied at all.
	ErrMissingCredential = fmt.Errorf("%w: missing credential", ErrUnauthorized)
	// ErrWrongCredential means a credential was supplied but does not match.
	ErrWrongCredential = fmt.Errorf("%w: wrong credential", ErrUnauthorized)
	// ErrForbidden means the authenticated role may not sign the slot.
	ErrForbidden = errors.New("moper: role not allowed for slot")
	// ErrNotFound means the record or access code does not exist.
	ErrNotFound = errors.New("moper: record not found")
)
