package simulator

import (
	"errors"
	"fmt"

	"github.com/kegliz/ketqsim/qc/permute"
)

// ErrTooManyOperatedQubits is raised before any state mutation when a gate
// call's operand count exceeds MaxOperatedQubits or the engine's local
// qubit count.
type ErrTooManyOperatedQubits struct {
	Requested, Limit int
}

func (e ErrTooManyOperatedQubits) Error() string {
	return fmt.Sprintf("simulator: %d operated qubits requested, limit is %d", e.Requested, e.Limit)
}

// ErrInvalidInitialState is raised by the constructor when initial_integer,
// initial_permutation, or the local/total qubit counts are inconsistent.
type ErrInvalidInitialState struct{ Reason string }

func (e ErrInvalidInitialState) Error() string { return "simulator: invalid initial state: " + e.Reason }

// ErrTransportFailure wraps a failure from the process-group exchange
// during qubit interchange. Fatal: no partial-interchange recovery.
type ErrTransportFailure struct{ Cause error }

func (e ErrTransportFailure) Error() string { return fmt.Sprintf("simulator: transport failure: %v", e.Cause) }
func (e ErrTransportFailure) Unwrap() error  { return e.Cause }

// ErrPermutationInvariantViolated signals a programming-error-class
// failure in the permutation manager: chunk selection exhausted, or the
// bijection check failed.
type ErrPermutationInvariantViolated struct{ Detail string }

func (e ErrPermutationInvariantViolated) Error() string {
	return "simulator: permutation invariant violated: " + e.Detail
}

// wrapInterchangeErr translates qc/permute's internal error taxonomy into
// the driver-facing typed errors spec.md §7 names.
func wrapInterchangeErr(err error) error {
	if err == nil {
		return nil
	}
	var transport permute.ErrTransportFailure
	if errors.As(err, &transport) {
		return ErrTransportFailure{Cause: transport.Cause}
	}
	var invariant permute.ErrInvariantViolated
	if errors.As(err, &invariant) {
		return ErrPermutationInvariantViolated{Detail: invariant.Detail}
	}
	return err
}
