package permute

import (
	"context"
	"fmt"

	"github.com/kegliz/ketqsim/qc/qubit"
	"github.com/kegliz/ketqsim/qc/statevec"
)

// ErrTransportFailure wraps any failure from the process-group message
// layer. Per spec.md §4.4/§7 this is fatal for the simulation — there is
// no partial-interchange recovery.
type ErrTransportFailure struct{ Cause error }

func (e ErrTransportFailure) Error() string { return fmt.Sprintf("permute: transport failure: %v", e.Cause) }
func (e ErrTransportFailure) Unwrap() error  { return e.Cause }

// ErrInvariantViolated signals a programming-error-class failure: chunk
// selection exhausted, or the permutation failed its own bijection check.
type ErrInvariantViolated struct{ Detail string }

func (e ErrInvariantViolated) Error() string { return "permute: invariant violated: " + e.Detail }

// Manager owns the permutation and the local half of the interchange
// protocol for one rank.
type Manager struct {
	Perm           *Permutation
	Group          ProcessGroup
	NumLocalQubits int
	BufferSize     int // num_elements_in_buffer (spec.md §6); <=0 means unbounded
}

// NewManager builds a Manager for one rank.
func NewManager(perm *Permutation, group ProcessGroup, numLocalQubits, bufferSize int) *Manager {
	return &Manager{Perm: perm, Group: group, NumLocalQubits: numLocalQubits, BufferSize: bufferSize}
}

// MaybeInterchangeQubits guarantees that after it returns, every operand's
// physical position is < NumLocalQubits (local), per spec.md §4.4. It
// mutates sv.Amplitudes and mgr.Perm in place.
func (mgr *Manager) MaybeInterchangeQubits(ctx context.Context, sv *statevec.StateVector, opQubits []qubit.ID) error {
	reserved := make(map[int]bool, len(opQubits))
	for _, id := range opQubits {
		phys := mgr.Perm.LogicalToPhysical(int(id))
		if phys < mgr.NumLocalQubits {
			reserved[phys] = true
		}
	}

	for _, id := range opQubits {
		phys := mgr.Perm.LogicalToPhysical(int(id))
		if phys < mgr.NumLocalQubits {
			continue
		}

		local, err := mgr.pickFreeLocalPosition(reserved)
		if err != nil {
			return err
		}
		reserved[local] = true

		if err := mgr.interchangeOne(ctx, sv, phys, local); err != nil {
			return err
		}
	}

	for _, id := range opQubits {
		if mgr.Perm.LogicalToPhysical(int(id)) >= mgr.NumLocalQubits {
			return ErrInvariantViolated{Detail: fmt.Sprintf("qubit %d still non-local after interchange", id)}
		}
	}
	return nil
}

func (mgr *Manager) pickFreeLocalPosition(reserved map[int]bool) (int, error) {
	for pos := 0; pos < mgr.NumLocalQubits; pos++ {
		if !reserved[pos] {
			return pos, nil
		}
	}
	return 0, ErrInvariantViolated{Detail: "chunk selection exhausted: no free local position"}
}

// interchangeOne runs one paired block exchange swapping physical
// positions phys (off-local) and local (on-local), per spec.md §4.4 step
// 2-3.
func (mgr *Manager) interchangeOne(ctx context.Context, sv *statevec.StateVector, phys, local int) error {
	rank := mgr.Group.Rank()
	bitIndex := uint(phys - mgr.NumLocalQubits)
	ownBit := (rank >> bitIndex) & 1
	partner := rank ^ (1 << bitIndex)

	moveBit := 1 - ownBit // the local-bit value whose half must travel

	sendIdx := selectIndices(sv.Amplitudes, uint(local), moveBit)
	send := gather(sv.Amplitudes, sendIdx)
	recv := make([]complex128, len(send))

	if err := mgr.exchangeBuffered(ctx, partner, send, recv); err != nil {
		return ErrTransportFailure{Cause: err}
	}

	scatter(sv.Amplitudes, sendIdx, recv)
	mgr.Perm.SwapPhysical(phys, local)
	return nil
}

// exchangeBuffered slices a logical exchange into BufferSize-sized
// messages when it exceeds the configured I/O buffer, per spec.md §4.4
// step 2.
func (mgr *Manager) exchangeBuffered(ctx context.Context, partner int, send, recv []complex128) error {
	bufSize := mgr.BufferSize
	if bufSize <= 0 || bufSize > len(send) {
		bufSize = len(send)
	}
	if bufSize == 0 {
		return nil
	}
	for off := 0; off < len(send); off += bufSize {
		end := off + bufSize
		if end > len(send) {
			end = len(send)
		}
		if err := mgr.Group.ExchangeHalves(ctx, partner, send[off:end], recv[off:end]); err != nil {
			return err
		}
	}
	return nil
}

// selectIndices returns the local amplitude indices whose bit at position
// localBit equals value, in ascending order.
func selectIndices(amps []complex128, localBit uint, value int) []uint64 {
	mask := uint64(1) << localBit
	out := make([]uint64, 0, len(amps)/2)
	for i := uint64(0); i < uint64(len(amps)); i++ {
		bit := 0
		if i&mask != 0 {
			bit = 1
		}
		if bit == value {
			out = append(out, i)
		}
	}
	return out
}

func gather(amps []complex128, idx []uint64) []complex128 {
	out := make([]complex128, len(idx))
	for i, v := range idx {
		out[i] = amps[v]
	}
	return out
}

func scatter(amps []complex128, idx []uint64, values []complex128) {
	for i, v := range idx {
		amps[v] = values[i]
	}
}
