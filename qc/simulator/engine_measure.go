package simulator

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/kegliz/ketqsim/qc/qubit"
)

// probabilityOfOne sums |amplitude|^2 over every basis state with physical
// bit pos set, grounded on the teacher's Measure(qubit int) bool in
// qc/simulator/qsim/state.go, generalized from a fixed global RNG to the
// engine's own deterministic stream.
func (e *Engine) probabilityOfOne(pos int) float64 {
	mask := uint64(1) << uint(pos)
	var p float64
	for i, amp := range e.sv.Amplitudes {
		if uint64(i)&mask != 0 {
			p += real(amp)*real(amp) + imag(amp)*imag(amp)
		}
	}
	return p
}

// collapseAndRenormalize zeroes every amplitude disagreeing with outcome at
// physical position pos and renormalizes the survivors.
func (e *Engine) collapseAndRenormalize(pos int, outcome bool) {
	mask := uint64(1) << uint(pos)
	want := uint64(0)
	if outcome {
		want = mask
	}
	var norm float64
	for i, amp := range e.sv.Amplitudes {
		if uint64(i)&mask != want {
			e.sv.Amplitudes[i] = 0
			continue
		}
		norm += real(amp)*real(amp) + imag(amp)*imag(amp)
	}
	if norm <= 1e-300 {
		return
	}
	inv := complex(1/math.Sqrt(norm), 0)
	for i := range e.sv.Amplitudes {
		e.sv.Amplitudes[i] *= inv
	}
}

// Measure performs a random projective measurement of logical qubit q,
// collapsing and renormalizing the state, and returns the sampled outcome.
func (e *Engine) Measure(ctx context.Context, q qubit.ID) (bool, error) {
	phys, err := e.physicalOperands(ctx, []qubit.ID{q})
	if err != nil {
		return false, err
	}
	pos := int(phys[0])
	outcome := e.rng.Float64() < e.probabilityOfOne(pos)
	e.collapseAndRenormalize(pos, outcome)
	return outcome, nil
}

// ProjectiveMeasurement forces the given logical qubits to the supplied
// outcomes (rather than sampling), collapsing and renormalizing — used by
// callers replaying a previously observed trajectory.
func (e *Engine) ProjectiveMeasurement(ctx context.Context, qubits []qubit.ID, outcomes []bool) error {
	if len(qubits) != len(outcomes) {
		return fmt.Errorf("simulator: ProjectiveMeasurement got %d qubits but %d outcomes", len(qubits), len(outcomes))
	}
	phys, err := e.physicalOperands(ctx, qubits)
	if err != nil {
		return err
	}
	for i, p := range phys {
		e.collapseAndRenormalize(int(p), outcomes[i])
	}
	return nil
}

// GenerateEvents draws nEvents independent basis-state samples from the
// |amplitude|^2 distribution without mutating the state vector — the
// non-destructive event stream spec.md §6 names alongside Measure.
func (e *Engine) GenerateEvents(nEvents int) ([]uint64, error) {
	if nEvents < 0 {
		return nil, fmt.Errorf("simulator: GenerateEvents nEvents must be >= 0, got %d", nEvents)
	}
	cdf := make([]float64, len(e.sv.Amplitudes))
	var running float64
	for i, amp := range e.sv.Amplitudes {
		running += real(amp)*real(amp) + imag(amp)*imag(amp)
		cdf[i] = running
	}

	events := make([]uint64, nEvents)
	for k := 0; k < nEvents; k++ {
		target := e.rng.Float64() * running
		events[k] = uint64(searchCDF(cdf, target))
	}
	return events, nil
}

func searchCDF(cdf []float64, target float64) int {
	lo, hi := 0, len(cdf)-1
	for lo < hi {
		mid := (lo + hi) / 2
		if cdf[mid] < target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// PauliTerm is one weighted Pauli-string operand of an expectation-value
// query: Ops maps a logical qubit to one of 'I','X','Y','Z'.
type PauliTerm struct {
	Coefficient complex128
	Ops         map[qubit.ID]byte
}

// ExpectationValues computes Re(coeff_t <psi|P_t|psi>) separately for each
// term t, returning one value per term in input order — the spec.md §10 supplemented feature grounded on bra's Pauli-string
// expectation driver. It does not mutate the state vector.
func (e *Engine) ExpectationValues(ctx context.Context, terms []PauliTerm) ([]float64, error) {
	out := make([]float64, len(terms))
	for t, term := range terms {
		physOps := make(map[int]byte, len(term.Ops))
		for logical, op := range term.Ops {
			phys, err := e.physicalOperands(ctx, []qubit.ID{logical})
			if err != nil {
				return nil, err
			}
			physOps[int(phys[0])] = op
		}

		var acc complex128
		for i, amp := range e.sv.Amplitudes {
			if amp == 0 {
				continue
			}
			j, coeff, ok := applyPauliString(i, physOps)
			if !ok {
				continue
			}
			acc += cmplx.Conj(e.sv.Amplitudes[j]) * coeff * amp
		}
		out[t] = real(term.Coefficient * acc)
	}
	return out, nil
}

// applyPauliString applies the Pauli string physOps to basis index i,
// returning the resulting basis index j and the coefficient picked up. ok is
// false only when physOps holds a byte other than 'I', 'X', 'Y' or 'Z'.
func applyPauliString(i int, physOps map[int]byte) (j int, coeff complex128, ok bool) {
	j = i
	coeff = 1
	for pos, op := range physOps {
		bit := (i >> uint(pos)) & 1
		switch op {
		case 'I':
			// no-op
		case 'X':
			j ^= 1 << uint(pos)
		case 'Y':
			j ^= 1 << uint(pos)
			if bit == 0 {
				coeff *= 1i
			} else {
				coeff *= -1i
			}
		case 'Z':
			if bit == 1 {
				coeff *= -1
			}
		default:
			return 0, 0, false
		}
	}
	return j, coeff, true
}

// ShorBox applies the classical reversible permutation oracle
// |x>|y> -> |x>|y XOR (base^x mod modulus)>, the period-finding primitive
// spec.md §6 names as Shor-Box. controls form the exponent register x,
// targets the accumulator register y; both are resolved to physical
// positions first. Implemented as a direct amplitude permutation since the
// oracle is a bijection on the joint register, not a dense unitary worth
// materializing as a matrix.
func (e *Engine) ShorBox(ctx context.Context, controls, targets []qubit.ID, base, modulus uint64) error {
	if modulus == 0 {
		return fmt.Errorf("simulator: ShorBox modulus must be positive")
	}
	physControls, err := e.physicalOperands(ctx, controls)
	if err != nil {
		return err
	}
	physTargets, err := e.physicalOperands(ctx, targets)
	if err != nil {
		return err
	}

	out := make([]complex128, len(e.sv.Amplitudes))
	for i := range e.sv.Amplitudes {
		x := extractBits(i, physControls)
		y := extractBits(i, physTargets)
		fx := modPow(base, uint64(x), modulus)
		newY := y ^ int(fx)
		j := withBits(i, physTargets, newY)
		out[j] = e.sv.Amplitudes[i]
	}
	return e.sv.Set(out)
}

func extractBits(i int, positions []qubit.ID) int {
	v := 0
	for k, pos := range positions {
		if (i>>uint(pos))&1 != 0 {
			v |= 1 << uint(k)
		}
	}
	return v
}

func withBits(i int, positions []qubit.ID, v int) int {
	out := i
	for k, pos := range positions {
		bit := (v >> uint(k)) & 1
		if bit != 0 {
			out |= 1 << uint(pos)
		} else {
			out &^= 1 << uint(pos)
		}
	}
	return out
}

func modPow(base, exp, modulus uint64) uint64 {
	result := uint64(1)
	base %= modulus
	for exp > 0 {
		if exp&1 == 1 {
			result = (result * base) % modulus
		}
		exp >>= 1
		base = (base * base) % modulus
	}
	return result
}
