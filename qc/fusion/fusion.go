// Package fusion implements the fusion driver: it coalesces a run of
// single- and two-qubit gates queued between Begin-Fusion and End-Fusion
// into one combined unitary applied in a single dispatcher pass, trading
// kernel-invocation count for one larger matrix multiply per fused group,
// exactly as spec.md's fusion design note describes.
//
// Grounded on the teacher's closure-based gate application in
// qc/simulator/qsim (qs.ApplyGate dispatching by gate name) generalized to
// matrix composition, and on the cache-tiered dispatcher's own operand-
// count ceiling — a fused group's qubit span is capped by the on-cache
// boundary the way original_source/ket's fusion passes cap it by a
// configurable maximum.
package fusion

import (
	"fmt"

	"github.com/kegliz/ketqsim/qc/gate"
	"github.com/kegliz/ketqsim/qc/qubit"
)

// queuedGate is one gate queued while a fusion group is open.
type queuedGate struct {
	qubits []qubit.ID
	matrix gate.Matrix
}

// Driver accumulates queued gates between BeginFusion/EndFusion and
// produces one combined (qubits, matrix) pair per flushed group.
type Driver struct {
	maxFusedQubits int
	open           bool
	queue          []queuedGate
	fusedQubits    []qubit.ID // union of qubits touched by the open group, in first-seen order
}

// New builds a Driver capped at maxFusedQubits — typically the cache-tiered
// dispatcher's on-cache boundary, since a fused kernel's working set must
// still fit in one on-cache chunk to stay worth fusing.
func New(maxFusedQubits int) *Driver {
	return &Driver{maxFusedQubits: maxFusedQubits}
}

// ErrFusionAlreadyOpen/ErrFusionNotOpen/ErrFusedSpanExceeded are the
// typed failures of the fusion protocol (spec.md §7).
type ErrFusionAlreadyOpen struct{}
type ErrFusionNotOpen struct{}
type ErrFusedSpanExceeded struct{ MaxQubits, Requested int }

func (ErrFusionAlreadyOpen) Error() string { return "fusion: BeginFusion called while a group is already open" }
func (ErrFusionNotOpen) Error() string     { return "fusion: no fusion group is open" }
func (e ErrFusedSpanExceeded) Error() string {
	return fmt.Sprintf("fusion: fused group would span %d qubits, exceeding the %d-qubit cap", e.Requested, e.MaxQubits)
}

// BeginFusion opens a new fusion group.
func (d *Driver) BeginFusion() error {
	if d.open {
		return ErrFusionAlreadyOpen{}
	}
	d.open = true
	d.queue = d.queue[:0]
	d.fusedQubits = d.fusedQubits[:0]
	return nil
}

// IsOpen reports whether a fusion group is currently accumulating gates.
func (d *Driver) IsOpen() bool { return d.open }

// Queue adds one gate's (qubits, matrix) to the open group, in the order
// the caller applied it — fusion composes matrices in application order,
// not in the order a circuit lists them.
func (d *Driver) Queue(qubits []qubit.ID, m gate.Matrix) error {
	if !d.open {
		return ErrFusionNotOpen{}
	}

	span := unionSpan(d.fusedQubits, qubits)
	if len(span) > d.maxFusedQubits {
		return ErrFusedSpanExceeded{MaxQubits: d.maxFusedQubits, Requested: len(span)}
	}
	d.fusedQubits = span
	d.queue = append(d.queue, queuedGate{qubits: append([]qubit.ID(nil), qubits...), matrix: m})
	return nil
}

// EndFusion closes the group and returns the qubits the fused kernel spans
// (in first-seen order) and the single combined matrix, ready to hand to
// gate.ApplyUnitary and the dispatcher. An empty group (no gates queued)
// returns a zero-qubit identity and is a harmless no-op for the caller.
func (d *Driver) EndFusion() ([]qubit.ID, gate.Matrix, error) {
	if !d.open {
		return nil, gate.Matrix{}, ErrFusionNotOpen{}
	}
	d.open = false

	span := append([]qubit.ID(nil), d.fusedQubits...)
	if len(span) == 0 {
		return span, gate.Matrix{Dim: 1, Entries: []complex128{1}}, nil
	}

	combined := gate.IdentityMatrix(len(span))
	for _, qg := range d.queue {
		expanded := expandToSpan(qg.matrix, qg.qubits, span)
		combined = multiply(expanded, combined)
	}
	return span, combined, nil
}

func unionSpan(existing, add []qubit.ID) []qubit.ID {
	seen := make(map[qubit.ID]bool, len(existing)+len(add))
	out := append([]qubit.ID(nil), existing...)
	for _, id := range existing {
		seen[id] = true
	}
	for _, id := range add {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// expandToSpan embeds a gate's small matrix into the full fused-group span
// by treating every span qubit not in the gate's own operand list as an
// implicit identity factor, via the same Pattern-bit convention
// gate.ApplyUnitary relies on.
func expandToSpan(m gate.Matrix, qubits, span []qubit.ID) gate.Matrix {
	posInSpan := make(map[qubit.ID]int, len(qubits))
	for _, id := range qubits {
		posInSpan[id] = indexOf(span, id)
	}

	dim := 1 << uint(len(span))
	entries := make([]complex128, dim*dim)
	for row := 0; row < dim; row++ {
		for col := 0; col < dim; col++ {
			// Non-operand bits must agree between row and col, or the
			// entry is zero (identity elsewhere in the tensor product).
			agree := true
			for pos, id := range span {
				if _, isOperand := posInSpan[id]; isOperand {
					continue
				}
				if (row>>uint(pos))&1 != (col>>uint(pos))&1 {
					agree = false
					break
				}
			}
			if !agree {
				continue
			}

			gateRow, gateCol := 0, 0
			for j, id := range qubits {
				pos := posInSpan[id]
				if (row>>uint(pos))&1 != 0 {
					gateRow |= 1 << uint(j)
				}
				if (col>>uint(pos))&1 != 0 {
					gateCol |= 1 << uint(j)
				}
			}
			entries[row*dim+col] = m.At(gateRow, gateCol)
		}
	}
	return gate.Matrix{Dim: dim, Entries: entries}
}

func indexOf(ids []qubit.ID, target qubit.ID) int {
	for i, id := range ids {
		if id == target {
			return i
		}
	}
	return -1
}

func multiply(a, b gate.Matrix) gate.Matrix {
	dim := a.Dim
	entries := make([]complex128, dim*dim)
	for r := 0; r < dim; r++ {
		for c := 0; c < dim; c++ {
			var sum complex128
			for k := 0; k < dim; k++ {
				sum += a.Entries[r*dim+k] * b.Entries[k*dim+c]
			}
			entries[r*dim+c] = sum
		}
	}
	return gate.Matrix{Dim: dim, Entries: entries}
}
