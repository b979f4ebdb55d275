// Package kernel defines the function shape every gate body implements
// (component E's calling convention into component C). A kernel is handed
// the index-without-qubits value for one outer-loop iteration and computes
// whatever index.WithQubits addresses it needs internally — the dispatcher
// never inspects amplitude values itself.
package kernel

import "github.com/kegliz/ketqsim/qc/qubit"

// Func is invoked once per outer-loop index by the cache-tiered dispatcher.
// amps is the slice the returned addresses are relative to (a whole chunk,
// a scratch buffer, or the full local state, depending on dispatch case);
// idxWoQubits is v; unsorted/sortedWithSentinel are the operand positions in
// the same span amps is addressed over. threadID identifies the calling
// worker for kernels that accumulate per-thread state (e.g. measurement).
type Func func(amps []complex128, idxWoQubits uint64, unsorted []qubit.ID, sortedWithSentinel []qubit.ID, threadID int)
