package permute

import (
	"context"
	"fmt"
)

// ProcessGroup is the collective transport the interchange protocol uses
// to exchange amplitude halves between paired processes. A real
// deployment backs this with MPI or another message layer (an external
// collaborator per spec.md §1); this module ships two in-process stand-
// ins used by the default single-process driver and by tests that need to
// exercise genuine multi-rank behavior.
type ProcessGroup interface {
	Rank() int
	Size() int
	// ExchangeHalves sends send to partner and returns what partner sent
	// back in recv (len(recv) must equal len(send)). Every rank in the
	// group must call ExchangeHalves the same number of times, in the
	// same order, pairing up with the partner its own protocol step
	// computes — the exchange is collective, not a free-form RPC.
	ExchangeHalves(ctx context.Context, partner int, send []complex128, recv []complex128) error
}

// SingleRank is the degenerate P=1 process group: every qubit is always
// local, so the interchange protocol never calls ExchangeHalves against
// it in practice, but it is provided so code paths that always go through
// a ProcessGroup do not need a special case for the non-distributed mode.
type SingleRank struct{}

func (SingleRank) Rank() int { return 0 }
func (SingleRank) Size() int { return 1 }
func (SingleRank) ExchangeHalves(context.Context, int, []complex128, []complex128) error {
	return fmt.Errorf("permute: SingleRank has no partners to exchange with")
}

// ChannelGroup simulates P ranks in-process, each a logical participant
// identified by its index, exchanging data over per-pair unbuffered
// channels (each send is a rendezvous with the partner's receive). It is the supplemented, testable substitute for a real MPI
// transport mentioned in spec.md §4.4's design note.
type ChannelGroup struct {
	rank  int
	links [][]chan []complex128
}

// NewChannelGroups builds size ChannelGroup handles, one per rank, sharing
// the same link matrix so any pair can rendezvous.
func NewChannelGroups(size int) []*ChannelGroup {
	links := make([][]chan []complex128, size)
	for i := range links {
		links[i] = make([]chan []complex128, size)
		for j := range links[i] {
			if i != j {
				links[i][j] = make(chan []complex128)
			}
		}
	}
	groups := make([]*ChannelGroup, size)
	for r := 0; r < size; r++ {
		groups[r] = &ChannelGroup{rank: r, links: links}
	}
	return groups
}

func (g *ChannelGroup) Rank() int { return g.rank }
func (g *ChannelGroup) Size() int { return len(g.links) }

// ExchangeHalves sends send to partner on the (rank,partner) link while
// concurrently receiving on the (partner,rank) link, avoiding the
// classic both-sides-send-first deadlock.
func (g *ChannelGroup) ExchangeHalves(ctx context.Context, partner int, send []complex128, recv []complex128) error {
	if partner < 0 || partner >= len(g.links) || partner == g.rank {
		return fmt.Errorf("permute: invalid partner rank %d for rank %d", partner, g.rank)
	}

	errCh := make(chan error, 1)
	go func() {
		select {
		case g.links[g.rank][partner] <- send:
			errCh <- nil
		case <-ctx.Done():
			errCh <- ctx.Err()
		}
	}()

	select {
	case data := <-g.links[partner][g.rank]:
		if len(data) != len(recv) {
			return fmt.Errorf("permute: rank %d received %d amplitudes from rank %d, expected %d", g.rank, len(data), partner, len(recv))
		}
		copy(recv, data)
	case <-ctx.Done():
		return ctx.Err()
	}

	return <-errCh
}
