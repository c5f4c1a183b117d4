package bounty

import (
	"fmt"

	"AgentBounty/internal/escrow"
	"AgentBounty/internal/events"
	"AgentBounty/internal/registry"
	"AgentBounty/internal/storage"
	"AgentBounty/internal/types"
)

// Report lists every invariant violation found by Audit.
type Report struct {
	Bounties   uint64   `json:"bounties"`   // Bounties is the number of records scanned
	Escrowed   uint64   `json:"escrowed"`   // Escrowed is the custody currently held
	FeesDue    uint64   `json:"fees_due"`   // FeesDue is the fee total implied by completed bounties
	Events     uint64   `json:"events"`     // Events is the event log head
	Violations []string `json:"violations"` // Violations describes each broken invariant
}

// OK reports whether no violation was found.
func (r *Report) OK() bool {
	return len(r.Violations) == 0
}

func (r *Report) violate(format string, args ...any) {
	r.Violations = append(r.Violations, fmt.Sprintf(format, args...))
}

// Audit recomputes the marketplace invariants from stored state:
// per-bounty status and custody agreement, conservation of every escrow
// entry, protocol counters against the records, and the fee vault against
// the fees of completed bounties. Decoding failures are returned as errors;
// inconsistencies are collected in the report.
func Audit(r storage.Reader, feeVault types.Pubkey) (*Report, error) {
	report := &Report{Violations: make([]string, 0)}

	p, err := registry.Load(r)
	if err != nil {
		return nil, err
	}

	if p.TotalCompleted > p.TotalBounties {
		report.violate("total_completed %d exceeds total_bounties %d", p.TotalCompleted, p.TotalBounties)
	}

	var (
		volume    uint64
		completed uint64
		next      uint64
	)

	err = each(r, func(b *Bounty) error {
		report.Bounties++

		if b.ID != next {
			report.violate("bounty ids are not contiguous: expected %d, found %d", next, b.ID)
		}
		next = b.ID + 1

		volume += b.RewardLamports

		if err := b.Check(); err != nil {
			report.violate("%v", err)
		}
		if err := ValidateReward(b.RewardLamports); err != nil {
			report.violate("bounty %d: %v", b.ID, err)
		}
		if b.Deadline <= b.CreatedAt {
			report.violate("bounty %d: deadline %d not after created_at %d", b.ID, b.Deadline, b.CreatedAt)
		}
		if b.Claimer != nil && *b.Claimer == b.Poster {
			report.violate("bounty %d: poster is the claimer", b.ID)
		}

		if b.Status == StatusCompleted {
			completed++
			_, fee := p.Split(b.RewardLamports)
			report.FeesDue += fee
		}

		entry, err := escrow.GetEntry(r, b.ID)
		if err != nil {
			report.violate("bounty %d: %v", b.ID, err)
			return nil
		}

		if entry.Locked != b.RewardLamports {
			report.violate("bounty %d: escrow locked %d, reward %d", b.ID, entry.Locked, b.RewardLamports)
		}

		want := uint64(0)
		if b.Status.HoldsEscrow() {
			want = b.RewardLamports
		}
		if entry.Balance != want {
			report.violate("bounty %d: escrow balance %d in status %s, want %d", b.ID, entry.Balance, b.Status, want)
		}

		report.Escrowed += entry.Balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	if report.Bounties != p.TotalBounties {
		report.violate("total_bounties %d, stored bounties %d", p.TotalBounties, report.Bounties)
	}
	if volume != p.TotalVolume {
		report.violate("total_volume %d, sum of rewards %d", p.TotalVolume, volume)
	}
	if completed != p.TotalCompleted {
		report.violate("total_completed %d, completed bounties %d", p.TotalCompleted, completed)
	}

	escrowed, err := escrow.TotalEscrowed(r)
	if err != nil {
		return nil, err
	}
	if escrowed != report.Escrowed {
		report.violate("escrow entries hold %d, bounties account for %d", escrowed, report.Escrowed)
	}

	vault, err := escrow.Balance(r, feeVault)
	if err != nil {
		return nil, err
	}
	if vault != report.FeesDue {
		report.violate("fee vault holds %d, completed bounties owe %d", vault, report.FeesDue)
	}

	report.Events, err = events.Head(r)
	if err != nil {
		return nil, err
	}

	return report, nil
}
