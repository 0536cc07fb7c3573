package gateway

import (
	"errors"
	"fmt"
)

// ErrorKind classifies gateway failures. Network-level failures are
// recoverable by the next cycle; server-reported errors are surfaced
// to the user.
type ErrorKind int

const (
	// ErrKindNetwork covers timeouts and unreachable hosts
	ErrKindNetwork ErrorKind = iota
	// ErrKindValidation covers server-side input rejection
	ErrKindValidation
	// ErrKindRateLimited covers 429 responses
	ErrKindRateLimited
	// ErrKindNotFound covers missing resources
	ErrKindNotFound
	// ErrKindServer covers all other server-reported errors
	ErrKindServer
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindNetwork:
		return "network"
	case ErrKindValidation:
		return "validation"
	case ErrKindRateLimited:
		return "rate_limited"
	case ErrKindNotFound:
		return "not_found"
	default:
		return "server"
	}
}

// Error is a gateway operation failure
type Error struct {
	Kind    ErrorKind
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("gateway %s: %s (%s)", e.Op, e.Message, e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("gateway %s: %v (%s)", e.Op, e.Err, e.Kind)
	}
	return fmt.Sprintf("gateway %s failed (%s)", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsNetwork reports whether err is a network-level gateway failure
func IsNetwork(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Kind == ErrKindNetwork
}

// IsRateLimited reports whether err is a rate-limit rejection
func IsRateLimited(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Kind == ErrKindRateLimited
}

// IsNotFound reports whether err is a missing-resource rejection
func IsNotFound(err error) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Kind == ErrKindNotFound
}
