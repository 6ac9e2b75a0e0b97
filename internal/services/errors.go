package services

import (
	"errors"
	"fmt"

	"github.com/gramseva/backend/internal/models"
)

// ErrRequestNotFound is returned when the request id does not exist.
var ErrRequestNotFound = errors.New("service request not found")

// ErrNotNotified is returned when a provider that was never included in any
// notification wave tries to accept or decline.
var ErrNotNotified = errors.New("provider was not notified for this request")

// ErrNotRequestOwner is returned when someone other than the requesting
// seeker tries to cancel.
var ErrNotRequestOwner = errors.New("only the requesting seeker may cancel")

// ErrAlreadyAccepted is returned when a provider loses the accept race:
// another concurrent accept already won the conditional write.
var ErrAlreadyAccepted = errors.New("request already accepted")

// ErrAlreadyDeclined is returned when a provider that declined the request
// later tries to accept it.
var ErrAlreadyDeclined = errors.New("provider already declined this request")

// ErrRequestExpired is returned when acting on a request past its expiry.
var ErrRequestExpired = errors.New("request expired")

// ErrNoActiveListing is returned when the accepting provider has no active
// listing matching the request's category.
var ErrNoActiveListing = errors.New("no active listing matches the request category")

// StateError reports an operation that is invalid for the request's current
// status, carrying the status for client debuggability.
type StateError struct {
	Op     string
	Status models.RequestStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s not allowed: request status is %s", e.Op, e.Status)
}

// DiscoveryError wraps a failed candidate query. It signals a transient
// storage failure, never a genuine zero-result discovery, so wave processing
// must not treat it as provider exhaustion.
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string { return "discovery query failed: " + e.Err.Error() }
func (e *DiscoveryError) Unwrap() error { return e.Err }
