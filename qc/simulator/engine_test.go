package simulator

import (
	"context"
	"math"
	"math/cmplx"
	"testing"

	"github.com/kegliz/ketqsim/internal/randsrc"
	"github.com/kegliz/ketqsim/qc/gate"
	"github.com/kegliz/ketqsim/qc/permute"
	"github.com/kegliz/ketqsim/qc/qubit"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newTestEngine(t *testing.T, n int) *Engine {
	t.Helper()
	e, err := NewEngine(EngineOptions{TotalNumQubits: n, OnCacheQubits: n})
	require.NoError(t, err)
	return e
}

func TestNewEngineRejectsOutOfRangeInitialInteger(t *testing.T) {
	_, err := NewEngine(EngineOptions{TotalNumQubits: 2, InitialInteger: 7})
	require.Error(t, err)
	var invalid ErrInvalidInitialState
	require.ErrorAs(t, err, &invalid)
}

func TestHadamardOnBasisZeroProducesEqualSuperposition(t *testing.T) {
	e := newTestEngine(t, 1)
	ctx := context.Background()
	require.NoError(t, e.H(ctx, 0))

	amps := e.StateVector().Amplitudes
	want := 1 / math.Sqrt2
	require.InDelta(t, want, real(amps[0]), 1e-9)
	require.InDelta(t, want, real(amps[1]), 1e-9)
}

func TestCNOTFlipsTargetWhenControlSet(t *testing.T) {
	e := newTestEngine(t, 2)
	ctx := context.Background()
	require.NoError(t, e.X(ctx, 0))
	require.NoError(t, e.CNOT(ctx, 0, 1))

	amps := e.StateVector().Amplitudes
	require.Equal(t, complex(1, 0), amps[3])
}

func TestBellStateMeasurementsAgree(t *testing.T) {
	e := newTestEngine(t, 2)
	ctx := context.Background()
	require.NoError(t, e.H(ctx, 0))
	require.NoError(t, e.CNOT(ctx, 0, 1))

	a, err := e.Measure(ctx, 0)
	require.NoError(t, err)
	b, err := e.Measure(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestFusedHThenXMatchesSequentialOnEngine(t *testing.T) {
	ctx := context.Background()
	sequential := newTestEngine(t, 1)
	require.NoError(t, sequential.H(ctx, 0))
	require.NoError(t, sequential.X(ctx, 0))

	fused := newTestEngine(t, 1)
	require.NoError(t, fused.BeginFusion())
	require.NoError(t, fused.H(ctx, 0))
	require.NoError(t, fused.X(ctx, 0))
	require.NoError(t, fused.EndFusion(ctx))

	require.InDelta(t, real(sequential.StateVector().Amplitudes[0]), real(fused.StateVector().Amplitudes[0]), 1e-9)
	require.InDelta(t, real(sequential.StateVector().Amplitudes[1]), real(fused.StateVector().Amplitudes[1]), 1e-9)
}

func TestApplyUnitaryRejectsTooManyOperatedQubits(t *testing.T) {
	e, err := NewEngine(EngineOptions{TotalNumQubits: 8, OnCacheQubits: 8, MaxOperatedQubits: 2})
	require.NoError(t, err)
	ctx := context.Background()
	err = e.ApplyUnitary(ctx, []qubit.ID{0, 1, 2}, gate.IdentityMatrix(3))
	var tooMany ErrTooManyOperatedQubits
	require.ErrorAs(t, err, &tooMany)
}

func TestGenerateEventsStaysOnSupport(t *testing.T) {
	e := newTestEngine(t, 2)
	ctx := context.Background()
	require.NoError(t, e.H(ctx, 0))
	require.NoError(t, e.CNOT(ctx, 0, 1))

	events, err := e.GenerateEvents(50)
	require.NoError(t, err)
	for _, ev := range events {
		require.True(t, ev == 0 || ev == 3, "event %d must be basis 0 or 3", ev)
	}
}

func TestExpectationValueOfZOnBasisZeroIsOne(t *testing.T) {
	e := newTestEngine(t, 1)
	out, err := e.ExpectationValues(context.Background(), []PauliTerm{
		{Coefficient: 1, Ops: map[qubit.ID]byte{0: 'Z'}},
	})
	require.NoError(t, err)
	require.InDelta(t, 1.0, out[0], 1e-9)
}

func TestExpectationValueOfXOnBasisZeroIsZero(t *testing.T) {
	e := newTestEngine(t, 1)
	out, err := e.ExpectationValues(context.Background(), []PauliTerm{
		{Coefficient: 1, Ops: map[qubit.ID]byte{0: 'X'}},
	})
	require.NoError(t, err)
	require.InDelta(t, 0.0, out[0], 1e-9)
}

func TestShorBoxComputesModularExponentiation(t *testing.T) {
	// 2 control qubits (x in [0,4)), 3 target qubits (y, starts at 0).
	e := newTestEngine(t, 5)
	ctx := context.Background()
	require.NoError(t, e.X(ctx, 1)) // control register = binary 10 = 2 (bit0=q0,bit1=q1)

	controls := []qubit.ID{0, 1}
	targets := []qubit.ID{2, 3, 4}
	require.NoError(t, e.ShorBox(ctx, controls, targets, 3, 5)) // 3^2 mod 5 = 4

	amps := e.StateVector().Amplitudes
	// x=2 (bits0-1 = 10), y=4 (bits2-4 = 100) => index = 2 + 4*4 = 18
	idx := 2 + 4*4
	require.Equal(t, complex(1, 0), amps[idx])
}

// TestPhaseKickbackOnlyTouchesMarkedAmplitude mirrors scenario S3: on
// |11>, a phase_shift_coeff on q0 multiplies only the amplitude whose q0
// bit is set, leaving the rest of the (trivial, single-basis-state) vector
// untouched.
func TestPhaseKickbackOnlyTouchesMarkedAmplitude(t *testing.T) {
	e, err := NewEngine(EngineOptions{TotalNumQubits: 2, OnCacheQubits: 2, InitialInteger: 3})
	require.NoError(t, err)
	ctx := context.Background()

	coeff := cmplx.Exp(complex(0, math.Pi/3))
	require.NoError(t, e.PhaseShiftCoeff(ctx, 0, coeff))

	amps := e.StateVector().Amplitudes
	require.InDelta(t, real(coeff), real(amps[3]), 1e-12)
	require.InDelta(t, imag(coeff), imag(amps[3]), 1e-12)
	for i, amp := range amps {
		if i == 3 {
			continue
		}
		require.Equal(t, complex(0, 0), amp)
	}
}

// assertAdjointRoundTrip applies m then m.Adjoint() to an engine already
// placed into a non-trivial superposition (every qubit Hadamarded first)
// and checks the state returns to its pre-gate value, per §8 property 2:
// the adjoint law must hold for every gate in the catalog, not just the
// one or two spot-checked directly in qc/gate/unitary_test.go.
func assertAdjointRoundTrip(t *testing.T, n int, operands []qubit.ID, m gate.Matrix) {
	t.Helper()
	e, err := NewEngine(EngineOptions{TotalNumQubits: n, OnCacheQubits: n})
	require.NoError(t, err)
	ctx := context.Background()
	for q := 0; q < n; q++ {
		require.NoError(t, e.H(ctx, qubit.ID(q)))
	}

	before := append([]complex128(nil), e.StateVector().Amplitudes...)

	require.NoError(t, e.ApplyUnitary(ctx, operands, m))
	require.NoError(t, e.ApplyUnitary(ctx, operands, m.Adjoint()))

	after := e.StateVector().Amplitudes
	for i := range before {
		require.InDelta(t, real(before[i]), real(after[i]), 1e-9)
		require.InDelta(t, imag(before[i]), imag(after[i]), 1e-9)
	}
}

func TestAdjointLawHoldsForEveryCatalogGate(t *testing.T) {
	cases := []struct {
		name     string
		n        int
		operands []qubit.ID
		m        gate.Matrix
	}{
		{"Identity", 1, []qubit.ID{0}, gate.IdentityMatrix(1)},
		{"H", 1, []qubit.ID{0}, gate.HMatrix},
		{"X", 1, []qubit.ID{0}, gate.XMatrix},
		{"Y", 1, []qubit.ID{0}, gate.YMatrix},
		{"Z", 1, []qubit.ID{0}, gate.ZMatrix},
		{"S", 1, []qubit.ID{0}, gate.SMatrix},
		{"XHalfPi", 1, []qubit.ID{0}, gate.XHalfPiMatrix},
		{"YHalfPi", 1, []qubit.ID{0}, gate.YHalfPiMatrix},
		{"U1", 1, []qubit.ID{0}, gate.U1Matrix(0.37)},
		{"U2", 1, []qubit.ID{0}, gate.U2Matrix(0.2, 1.1)},
		{"U3", 1, []qubit.ID{0}, gate.U3Matrix(0.9, 0.2, -0.6)},
		{"PhaseShiftCoeff", 1, []qubit.ID{0}, gate.PhaseShiftCoeffMatrix(cmplx.Exp(complex(0, 0.8)))},
		{"ExponentialPauliX", 1, []qubit.ID{0}, gate.ExponentialPauliMatrix(0.5, gate.XMatrix)},
		{"ExponentialPauliY", 1, []qubit.ID{0}, gate.ExponentialPauliMatrix(0.5, gate.YMatrix)},
		{"ExponentialPauliZ", 1, []qubit.ID{0}, gate.ExponentialPauliMatrix(0.5, gate.ZMatrix)},
		{"ExponentialSwap", 2, []qubit.ID{0, 1}, gate.ExponentialSwapMatrix(0.4)},
		{"Swap", 2, []qubit.ID{0, 1}, gate.SwapMatrix},
		{"Toffoli", 3, []qubit.ID{0, 1, 2}, gate.Controlled(gate.XMatrix, 2)},
		{"Fredkin", 3, []qubit.ID{0, 1, 2}, gate.Controlled(gate.SwapMatrix, 1)},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assertAdjointRoundTrip(t, tc.n, tc.operands, tc.m)
		})
	}
}

// TestPermutationTransparencyOfMeasurementStatistics mirrors §8 property 3:
// running the same circuit from the same logical all-zero starting state
// must produce the same per-qubit expectation values regardless of the
// starting logical<->physical permutation, since the all-zero basis state
// is physically identical under every bijection.
func TestPermutationTransparencyOfMeasurementStatistics(t *testing.T) {
	ctx := context.Background()

	identity, err := NewEngine(EngineOptions{TotalNumQubits: 3, OnCacheQubits: 3})
	require.NoError(t, err)

	shuffled, err := NewEngine(EngineOptions{
		TotalNumQubits:     3,
		OnCacheQubits:      3,
		InitialPermutation: []int{2, 0, 1},
	})
	require.NoError(t, err)

	for _, e := range []*Engine{identity, shuffled} {
		require.NoError(t, e.H(ctx, 0))
		require.NoError(t, e.CNOT(ctx, 0, 1))
		require.NoError(t, e.U1(ctx, 2, 0.6))
	}

	terms := []PauliTerm{
		{Coefficient: 1, Ops: map[qubit.ID]byte{0: 'Z'}},
		{Coefficient: 1, Ops: map[qubit.ID]byte{1: 'Z'}},
		{Coefficient: 1, Ops: map[qubit.ID]byte{2: 'Z'}},
	}

	wantVals, err := identity.ExpectationValues(ctx, terms)
	require.NoError(t, err)
	gotVals, err := shuffled.ExpectationValues(ctx, terms)
	require.NoError(t, err)

	for i := range terms {
		require.InDelta(t, wantVals[i], gotVals[i], 1e-9)
	}
}

// TestEngineDistributedInterchangeRelocatesAmplitudes mirrors scenario S5
// at the Engine level (qc/permute/permute_test.go's
// TestDistributedInterchangeRelocatesAmplitudes exercises the same
// scenario against the raw permute.Manager only): n=4, P=2, L=3 so qubit 3
// starts non-local on a two-rank ChannelGroup. Applying an ApplyUnitary
// that touches qubits {3, 0} forces the interchange protocol to run before
// the gate executes, relocating amplitudes to the new permutation.
func TestEngineDistributedInterchangeRelocatesAmplitudes(t *testing.T) {
	const n, localQubits = 4, 3
	groups := permute.NewChannelGroups(2)

	engines := make([]*Engine, 2)
	for r := 0; r < 2; r++ {
		e, err := NewEngine(EngineOptions{
			TotalNumQubits: n,
			NumLocalQubits: localQubits,
			OnCacheQubits:  localQubits,
			ProcessGroup:   groups[r],
		})
		require.NoError(t, err)
		engines[r] = e
	}

	// Seed two basis states under the OLD (identity) permutation, mirroring
	// the raw-manager test: logical 0001 -> old physical 8 -> rank1 local0;
	// logical 0010 -> old physical 4 -> rank0 local4.
	rank1Values := make([]complex128, 1<<localQubits)
	rank1Values[0] = 1
	require.NoError(t, engines[1].Set(rank1Values))

	rank0Values := make([]complex128, 1<<localQubits)
	rank0Values[4] = 1
	require.NoError(t, engines[0].Set(rank0Values))

	g, ctx := errgroup.WithContext(context.Background())
	for r := 0; r < 2; r++ {
		r := r
		g.Go(func() error {
			return engines[r].ApplyUnitary(ctx, []qubit.ID{3, 0}, gate.IdentityMatrix(2))
		})
	}
	require.NoError(t, g.Wait())

	perm0 := engines[0].Permutation()
	for r := 1; r < 2; r++ {
		require.NoError(t, engines[r].Permutation().Validate())
	}
	require.NoError(t, perm0.Validate())

	readGlobal := func(logicalBits [4]int) complex128 {
		physInt := 0
		for logical, bit := range logicalBits {
			if bit == 0 {
				continue
			}
			physInt |= 1 << uint(perm0.LogicalToPhysical(logical))
		}
		rank := (physInt >> localQubits) & 1
		local := physInt & ((1 << localQubits) - 1)
		return engines[rank].StateVector().Amplitudes[local]
	}

	// q0q1q2q3 = 0,0,0,1 (old physical int 8)
	require.Equal(t, complex(1, 0), readGlobal([4]int{0, 0, 0, 1}))
	// q0q1q2q3 = 0,0,1,0 (old physical int 4)
	require.Equal(t, complex(1, 0), readGlobal([4]int{0, 0, 1, 0}))
}

// TestAdjointRoundTripFromSeededRandomState mirrors scenario S6: starting
// from a fixed deterministic random state, applying U3(0.7, 1.3, -0.4) on
// q1 followed by its adjoint must return the state to within 1e-12 per
// amplitude.
func TestAdjointRoundTripFromSeededRandomState(t *testing.T) {
	const n = 2
	e, err := NewEngine(EngineOptions{TotalNumQubits: n, OnCacheQubits: n})
	require.NoError(t, err)
	ctx := context.Background()

	rng := randsrc.NewRank(42, 0)
	values := make([]complex128, 1<<n)
	var norm float64
	for i := range values {
		re := rng.Float64()*2 - 1
		im := rng.Float64()*2 - 1
		values[i] = complex(re, im)
		norm += re*re + im*im
	}
	inv := complex(1/math.Sqrt(norm), 0)
	for i := range values {
		values[i] *= inv
	}
	require.NoError(t, e.Set(values))

	before := append([]complex128(nil), e.StateVector().Amplitudes...)

	u3 := gate.U3Matrix(0.7, 1.3, -0.4)
	require.NoError(t, e.ApplyUnitary(ctx, []qubit.ID{1}, u3))
	require.NoError(t, e.ApplyUnitary(ctx, []qubit.ID{1}, u3.Adjoint()))

	after := e.StateVector().Amplitudes
	var maxDiff float64
	for i := range before {
		diff := cmplx.Abs(before[i] - after[i])
		if diff > maxDiff {
			maxDiff = diff
		}
	}
	require.LessOrEqual(t, maxDiff, 1e-12)
}
