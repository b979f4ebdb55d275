// unitary.go gives every named gate in the catalog a numerical kernel: a
// small dense matrix plus the generic application loop that reduces any
// such matrix to a kernel.Func the dispatcher can drive. Grounded on
// original_source/ket/include/ket/gate/detail/gate_nobitmasks.hpp's usage
// convention (the kernel computes both addresses itself from the index
// pair the dispatcher hands it) and on the teacher's closed-form
// qc/simulator/qsim gate bodies, generalized here into one matrix-driven
// mechanism instead of one hand-written loop per gate.
package gate

import (
	"math"
	"math/cmplx"

	"github.com/kegliz/ketqsim/qc/index"
	"github.com/kegliz/ketqsim/qc/kernel"
	"github.com/kegliz/ketqsim/qc/qubit"
)

// Matrix is a dense, row-major 2^k x 2^k unitary. Entries are indexed by
// qubit.Pattern value directly: row/col p means "operand j is set iff bit j
// of p is set", the same convention index.WithQubits uses for its own p
// argument, so a kernel built from a Matrix never has to renumber anything.
type Matrix struct {
	Dim     int
	Entries []complex128
}

func (m Matrix) at(row, col int) complex128 { return m.Entries[row*m.Dim+col] }

// At returns the (row, col) entry, for callers outside this package that
// need to read a matrix without reimplementing row-major indexing (e.g.
// the fusion driver composing several gates' matrices into one span).
func (m Matrix) At(row, col int) complex128 { return m.at(row, col) }

// Adjoint returns the conjugate transpose, per spec.md's adjoint rule: the
// dagger of any gate in the catalog is itself expressible as a Matrix.
func (m Matrix) Adjoint() Matrix {
	out := make([]complex128, len(m.Entries))
	for r := 0; r < m.Dim; r++ {
		for c := 0; c < m.Dim; c++ {
			out[c*m.Dim+r] = cmplx.Conj(m.at(r, c))
		}
	}
	return Matrix{Dim: m.Dim, Entries: out}
}

// ApplyUnitary builds the kernel.Func that applies m to its operand qubits,
// in the caller's unsorted order. One invocation gathers m.Dim amplitudes,
// left-multiplies by m, and scatters the result back — this is the single
// mechanism every gate in the catalog reduces to.
func ApplyUnitary(m Matrix) kernel.Func {
	return func(amps []complex128, v uint64, unsorted, sorted []qubit.ID, _ int) {
		var idxBuf [8]uint64
		var vecBuf [8]complex128
		idx := idxBuf[:0]
		vec := vecBuf[:0]
		if m.Dim > len(idxBuf) {
			idx = make([]uint64, 0, m.Dim)
			vec = make([]complex128, 0, m.Dim)
		}
		for p := 0; p < m.Dim; p++ {
			i := index.WithQubits(v, qubit.Pattern(p), unsorted, sorted)
			idx = append(idx, i)
			vec = append(vec, amps[i])
		}
		for row := 0; row < m.Dim; row++ {
			var sum complex128
			for col := 0; col < m.Dim; col++ {
				sum += m.at(row, col) * vec[col]
			}
			amps[idx[row]] = sum
		}
	}
}

// Controlled builds the (numControls+baseK)-qubit matrix that applies base
// to its target bits only when every one of the first numControls operand
// bits is set, and passes every other basis state through unchanged. The
// caller must list control qubits before target qubits in the operand
// slice handed to the dispatcher, matching this bit ordering.
func Controlled(base Matrix, numControls int) Matrix {
	dim := base.Dim << uint(numControls)
	controlMask := dim/base.Dim - 1
	entries := make([]complex128, dim*dim)
	for row := 0; row < dim; row++ {
		for col := 0; col < dim; col++ {
			rowControls, colControls := row&controlMask, col&controlMask
			switch {
			case rowControls == controlMask && colControls == controlMask:
				entries[row*dim+col] = base.at(row>>uint(numControls), col>>uint(numControls))
			case row == col:
				entries[row*dim+col] = 1
			}
		}
	}
	return Matrix{Dim: dim, Entries: entries}
}

var invSqrt2 = complex(1/math.Sqrt2, 0)

// IdentityMatrix returns the 2^k x 2^k identity.
func IdentityMatrix(k int) Matrix {
	dim := 1 << uint(k)
	entries := make([]complex128, dim*dim)
	for i := 0; i < dim; i++ {
		entries[i*dim+i] = 1
	}
	return Matrix{Dim: dim, Entries: entries}
}

// HMatrix, XMatrix, ... are the fixed single- and two-qubit matrices behind
// the catalog's named gates.
var (
	HMatrix = Matrix{Dim: 2, Entries: []complex128{invSqrt2, invSqrt2, invSqrt2, -invSqrt2}}
	XMatrix = Matrix{Dim: 2, Entries: []complex128{0, 1, 1, 0}}
	YMatrix = Matrix{Dim: 2, Entries: []complex128{0, -1i, 1i, 0}}
	ZMatrix = Matrix{Dim: 2, Entries: []complex128{1, 0, 0, -1}}
	SMatrix = Matrix{Dim: 2, Entries: []complex128{1, 0, 0, 1i}}

	// SwapMatrix exchanges |01> and |10>, fixing |00> and |11>.
	SwapMatrix = Matrix{Dim: 4, Entries: []complex128{
		1, 0, 0, 0,
		0, 0, 1, 0,
		0, 1, 0, 0,
		0, 0, 0, 1,
	}}

	// XHalfPiMatrix, YHalfPiMatrix rotate by pi/2 about X and Y.
	XHalfPiMatrix = Matrix{Dim: 2, Entries: []complex128{invSqrt2, -1i * invSqrt2, -1i * invSqrt2, invSqrt2}}
	YHalfPiMatrix = Matrix{Dim: 2, Entries: []complex128{invSqrt2, -invSqrt2, invSqrt2, invSqrt2}}
)

// U1Matrix is the one-parameter phase gate diag(1, e^{i phi}).
func U1Matrix(phi float64) Matrix {
	return Matrix{Dim: 2, Entries: []complex128{1, 0, 0, cmplx.Exp(complex(0, phi))}}
}

// U2Matrix is the two-parameter single-qubit gate used for gates reachable
// with one pi/2 rotation.
func U2Matrix(phi, lambda float64) Matrix {
	eiPhi := cmplx.Exp(complex(0, phi))
	eiLambda := cmplx.Exp(complex(0, lambda))
	return Matrix{Dim: 2, Entries: []complex128{
		invSqrt2, -invSqrt2 * eiLambda,
		invSqrt2 * eiPhi, invSqrt2 * eiPhi * eiLambda,
	}}
}

// U3Matrix is the fully general single-qubit unitary up to global phase.
func U3Matrix(theta, phi, lambda float64) Matrix {
	cos := complex(math.Cos(theta/2), 0)
	sin := complex(math.Sin(theta/2), 0)
	eiPhi := cmplx.Exp(complex(0, phi))
	eiLambda := cmplx.Exp(complex(0, lambda))
	return Matrix{Dim: 2, Entries: []complex128{
		cos, -sin * eiLambda,
		sin * eiPhi, cos * eiPhi * eiLambda,
	}}
}

// PhaseShiftCoeffMatrix applies an arbitrary unit-modulus coefficient to
// the |1> amplitude, the coefficient-form phase shift of spec.md's catalog.
func PhaseShiftCoeffMatrix(coeff complex128) Matrix {
	return Matrix{Dim: 2, Entries: []complex128{1, 0, 0, coeff}}
}

// ExponentialPauliMatrix returns exp(-i*theta*P) for a single-qubit Pauli
// P in {X, Y, Z}, computed from its closed form cos(theta)I - i sin(theta)P.
func ExponentialPauliMatrix(theta float64, pauli Matrix) Matrix {
	cos := complex(math.Cos(theta), 0)
	sin := complex(math.Sin(theta), 0)
	entries := make([]complex128, 4)
	for i := range entries {
		var id complex128
		if i == 0 || i == 3 {
			id = 1
		}
		entries[i] = cos*id - 1i*sin*pauli.Entries[i]
	}
	return Matrix{Dim: 2, Entries: entries}
}

// ExponentialSwapMatrix returns exp(i*theta*SWAP) = cos(theta)I + i
// sin(theta)SWAP, using SWAP^2 = I.
func ExponentialSwapMatrix(theta float64) Matrix {
	cos := complex(math.Cos(theta), 0)
	sin := complex(math.Sin(theta), 0)
	entries := make([]complex128, 16)
	id := IdentityMatrix(2)
	for i := range entries {
		entries[i] = cos*id.Entries[i] + 1i*sin*SwapMatrix.Entries[i]
	}
	return Matrix{Dim: 4, Entries: entries}
}

// ToffoliMatrix, FredkinMatrix are the catalog's fixed 3-qubit gates,
// expressed via Controlled for consistency with the rest of the catalog.
var (
	ToffoliMatrix = Controlled(XMatrix, 2)
	FredkinMatrix = Controlled(SwapMatrix, 1)
)
