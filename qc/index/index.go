// Package index implements the index algebra of the simulator core
// (component A of the design): computing a full amplitude address from an
// index-without-qubits value and a qubit pattern, given the operand
// positions.
//
// Two equivalent forms are provided, mirroring the sorted-with-sentinel and
// explicit-bit-mask forms of ket/include/ket/gate/utility/index_with_qubits.hpp
// (see original_source/ket/include/ket/gate/detail/gate_nobitmasks.hpp for
// the calling convention this package follows): both must return identical
// results for every (v, p) pair — that agreement is a tested property, not
// an assumption.
package index

import "github.com/kegliz/ketqsim/qc/qubit"

// WithQubits computes the amplitude index for outer loop variable v and
// qubit pattern p, given the operand positions in call order (unsorted)
// and the same positions sorted ascending with a trailing sentinel equal to
// N (the number of qubits spanned by the enclosing range).
//
// Contract: bijective in v for fixed p; the union over p in [0, 2^k)
// covers [0, 2^N) exactly once. Determined entirely by the two qubit
// arrays — no other state.
func WithQubits(v uint64, p qubit.Pattern, unsorted []qubit.ID, sortedWithSentinel []qubit.ID) uint64 {
	k := len(unsorted)
	if k == 0 {
		return v
	}

	lowerMask := (uint64(1) << uint(sortedWithSentinel[0])) - 1
	result := v & lowerMask
	vShifted := v >> uint(sortedWithSentinel[0])

	for j := 0; j < k; j++ {
		gapWidth := uint(sortedWithSentinel[j+1]) - uint(sortedWithSentinel[j]) - 1
		gapMask := (uint64(1) << gapWidth) - 1
		result |= (vShifted & gapMask) << (uint(sortedWithSentinel[j]) + 1)
		vShifted >>= gapWidth
	}

	// OR in the operand bits according to p, in unsorted (call) order —
	// this is what makes the map depend on the *caller's* bit assignment
	// for p rather than the sorted order used to interleave v.
	for j, qubitID := range unsorted {
		if p.Bit(j) {
			result |= uint64(1) << uint(qubitID)
		}
	}

	return result
}

// QubitMasks and IndexMasks precompute the per-operand and per-gap masks
// used by the bit-mask form (WithQubitsMasked), avoiding repeated shift
// amount arithmetic inside the inner loop. Build once per gate dispatch,
// reuse across every index-without-qubits value.
type Masks struct {
	QubitMasks []uint64 // one per operand, in unsorted (call) order: 1<<unsorted[j]
	IndexMasks []uint64 // len(sorted)+1 masks partitioning v's bits across the gaps
}

// BuildMasks precomputes the Masks for a fixed operand set, described by
// its unsorted (call order) and sorted-with-sentinel positions.
func BuildMasks(unsorted []qubit.ID, sortedWithSentinel []qubit.ID) Masks {
	qm := make([]uint64, len(unsorted))
	for j, id := range unsorted {
		qm[j] = uint64(1) << uint(id)
	}

	im := make([]uint64, len(sortedWithSentinel))
	lower := uint(sortedWithSentinel[0])
	im[0] = (uint64(1) << lower) - 1
	for j := 1; j < len(sortedWithSentinel); j++ {
		gapWidth := uint(sortedWithSentinel[j]) - uint(sortedWithSentinel[j-1]) - 1
		im[j] = (uint64(1) << gapWidth) - 1
	}
	return Masks{QubitMasks: qm, IndexMasks: im}
}

// WithQubitsMasked computes the same address as WithQubits using the
// precomputed Masks, by masked shifts instead of re-deriving gap widths.
// Must agree bit-for-bit with WithQubits for every (v, p) — this is
// property 5 of spec.md §8.
func WithQubitsMasked(v uint64, p qubit.Pattern, unsorted []qubit.ID, sortedWithSentinel []qubit.ID, m Masks) uint64 {
	k := len(unsorted)
	if k == 0 {
		return v
	}

	result := v & m.IndexMasks[0]
	vShifted := v >> uint(sortedWithSentinel[0])

	for j := 0; j < k; j++ {
		gapWidth := uint(sortedWithSentinel[j+1]) - uint(sortedWithSentinel[j]) - 1
		result |= (vShifted & m.IndexMasks[j+1]) << (uint(sortedWithSentinel[j]) + 1)
		vShifted >>= gapWidth
	}

	for j := range unsorted {
		if p.Bit(j) {
			result |= m.QubitMasks[j]
		}
	}

	return result
}

// SortedWithSentinel returns operand positions sorted ascending, with a
// trailing sentinel equal to spanWidth (N in spec.md §4.1 notation).
func SortedWithSentinel(operands []qubit.ID, spanWidth int) []qubit.ID {
	sorted := append([]qubit.ID(nil), operands...)
	insertionSort(sorted)
	return append(sorted, qubit.ID(spanWidth))
}

func insertionSort(ids []qubit.ID) {
	for i := 1; i < len(ids); i++ {
		key := ids[i]
		j := i - 1
		for j >= 0 && ids[j] > key {
			ids[j+1] = ids[j]
			j--
		}
		ids[j+1] = key
	}
}
