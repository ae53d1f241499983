package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoPendingOffer is returned when an answer arrives and no offer is
	// waiting for one.
	ErrNoPendingOffer = errors.New("no pending offer")
	// ErrCallInProgress is returned when a call is requested while a
	// negotiation session is still running.
	ErrCallInProgress = errors.New("call already in progress")
	// ErrNoTargets is returned when a call is requested with nobody selected.
	ErrNoTargets = errors.New("no participants selected")
	// ErrNotConnected is returned when sending on a relay that is not open.
	ErrNotConnected = errors.New("relay not connected")
)

// RelayError reports a failure of the relay channel. The session state is
// reset; nothing is retried.
type RelayError struct {
	Op  string
	Err error
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("relay %s: %v", e.Op, e.Err)
}

func (e *RelayError) Unwrap() error { return e.Err }

// MediaAcquisitionError reports that local media could not be acquired.
// It ends the current call attempt.
type MediaAcquisitionError struct {
	Err error
}

func (e *MediaAcquisitionError) Error() string {
	return fmt.Sprintf("acquire local media: %v", e.Err)
}

func (e *MediaAcquisitionError) Unwrap() error { return e.Err }

// NegotiationError reports malformed or out-of-order negotiation data, or a
// failure of the peer connection while negotiating. It ends the current
// negotiation session.
type NegotiationError struct {
	Op  string
	Err error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("negotiation %s: %v", e.Op, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }
