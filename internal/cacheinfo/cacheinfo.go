// Package cacheinfo probes the host's cache hierarchy to pick a default
// on-cache qubit-count boundary for qc/dispatch.Dispatcher: the largest
// number of low-order qubits whose full 2^k-amplitude working set still
// fits in one cache tier.
//
// klauspost/cpuid/v2 was already present in the teacher's dependency graph
// as an indirect pull-in; this package promotes it to a direct, exercised
// dependency rather than leaving it unused.
package cacheinfo

import "github.com/klauspost/cpuid/v2"

const bytesPerAmplitude = 16 // complex128

// PreferredTier names which cache level DetectOnCacheQubits sized against.
type PreferredTier int

const (
	TierL1 PreferredTier = iota
	TierL2
	TierL3
)

func (t PreferredTier) String() string {
	switch t {
	case TierL1:
		return "L1"
	case TierL2:
		return "L2"
	case TierL3:
		return "L3"
	default:
		return "unknown"
	}
}

// sizeBytes returns the detected byte size of the requested cache tier, or 0
// if cpuid could not determine it.
func sizeBytes(t PreferredTier) int {
	switch t {
	case TierL1:
		return cpuid.CPU.Cache.L1D
	case TierL2:
		return cpuid.CPU.Cache.L2
	case TierL3:
		return cpuid.CPU.Cache.L3
	default:
		return 0
	}
}

// DetectOnCacheQubits returns floor(log2(tierBytes / bytesPerAmplitude)),
// clamped to [minQubits, maxQubits]. When the requested tier can't be
// determined it falls back to the next tier down (L3 -> L2 -> L1), and
// finally to fallbackQubits if none are available.
func DetectOnCacheQubits(tier PreferredTier, minQubits, maxQubits, fallbackQubits int) int {
	for t := tier; t >= TierL1; t-- {
		if n := sizeBytes(t); n > 0 {
			return clamp(log2Floor(n/bytesPerAmplitude), minQubits, maxQubits)
		}
	}
	return clamp(fallbackQubits, minQubits, maxQubits)
}

// LogicalCores reports the number of logical CPUs cpuid detected, or 1 when
// cpuid reports none. Nothing in this module sizes a worker pool from it.
func LogicalCores() int {
	if n := cpuid.CPU.LogicalCores; n > 0 {
		return n
	}
	return 1
}

func log2Floor(n int) int {
	if n <= 1 {
		return 0
	}
	k := 0
	for n > 1 {
		n >>= 1
		k++
	}
	return k
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
