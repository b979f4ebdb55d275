// Package randsrc turns one int64 seed into the deterministic, reproducible
// random streams the simulator core needs for projective measurement and
// event generation: every rank of a distributed run must derive its own
// independent stream from the same top-level seed and still reproduce
// bit-for-bit across runs.
//
// Expansion is via blake3 keyed hashing (the corpus's own choice for
// deriving fixed-size key material from arbitrary input, see
// hydraresearch-qzkp's commitment hasher), feeding the 32-byte digest as the
// key to math/rand/v2's ChaCha8 source.
package randsrc

import (
	"encoding/binary"
	"math/rand/v2"
	"strconv"

	"lukechampine.com/blake3"
)

// Expand derives a 32-byte ChaCha8 key from seed and rankLabel, so that
// distinct labels (e.g. "rank-0", "rank-1", "events") produce independent,
// uncorrelated streams from the same top-level seed.
func Expand(seed int64, rankLabel string) [32]byte {
	// blake3's keyed mode takes a 32-byte key: the seed fills the low 8
	// bytes and the rest stay zero.
	var seedKey [32]byte
	binary.LittleEndian.PutUint64(seedKey[:8], uint64(seed))

	hasher := blake3.New(32, seedKey[:])
	hasher.Write([]byte(rankLabel))

	var key [32]byte
	copy(key[:], hasher.Sum(nil))
	return key
}

// New builds a *rand.ChaCha8 source seeded deterministically from seed and
// rankLabel. Equal (seed, rankLabel) pairs always yield identical streams.
func New(seed int64, rankLabel string) *rand.ChaCha8 {
	return rand.NewChaCha8(Expand(seed, rankLabel))
}

// NewRank is a convenience wrapper for the common per-process-rank case.
func NewRank(seed int64, rank int) *rand.Rand {
	return rand.New(New(seed, rankLabelFor(rank)))
}

func rankLabelFor(rank int) string {
	return "ketqsim-rank-" + strconv.Itoa(rank)
}
