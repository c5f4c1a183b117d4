package bounty

import (
	"errors"

	"AgentBounty/internal/escrow"
	"AgentBounty/internal/events"
	"AgentBounty/internal/registry"
	"AgentBounty/internal/storage"
	"AgentBounty/internal/types"
)

// Listing page sizes.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// errPageFull ends a listing scan once the page is filled.
var errPageFull = errors.New("page full")

// Filter selects bounties for List. Zero-valued fields match everything.
type Filter struct {
	Status  *Status       // Status keeps bounties in this status
	Poster  *types.Pubkey // Poster keeps bounties posted by this identity
	Claimer *types.Pubkey // Claimer keeps bounties claimed by this identity
	Offset  int           // Offset skips this many matches
	Limit   int           // Limit caps the page (DefaultListLimit when <= 0)
}

// match reports whether b passes every set criterion.
func (f *Filter) match(b *Bounty) bool {
	if f.Status != nil && b.Status != *f.Status {
		return false
	}
	if f.Poster != nil && b.Poster != *f.Poster {
		return false
	}
	if f.Claimer != nil && (b.Claimer == nil || *b.Claimer != *f.Claimer) {
		return false
	}
	return true
}

// Detail is a bounty together with its custody entry.
type Detail struct {
	Bounty *Bounty       `json:"bounty"`
	Escrow *escrow.Entry `json:"escrow"`
}

// Stats is the marketplace summary.
type Stats struct {
	Protocol        *registry.Protocol `json:"protocol"`
	FeeVault        types.Pubkey       `json:"fee_vault"`
	FeeVaultBalance uint64             `json:"fee_vault_balance"`
	Escrowed        uint64             `json:"escrowed"`
	ByStatus        map[string]uint64  `json:"by_status"`
}

// Get returns bounty id and its escrow entry.
func (m *Machine) Get(id uint64) (*Detail, error) {
	var d *Detail
	err := m.db.View(func(r storage.Reader) error {
		b, err := load(r, id)
		if err != nil {
			return err
		}

		entry, err := escrow.GetEntry(r, id)
		if err != nil {
			return err
		}

		d = &Detail{Bounty: b, Escrow: entry}
		return nil
	})

	return d, err
}

// List returns one page of bounties matching f, in id order.
func (m *Machine) List(f Filter) ([]*Bounty, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	skip := f.Offset
	out := make([]*Bounty, 0)

	err := m.db.View(func(r storage.Reader) error {
		return each(r, func(b *Bounty) error {
			if !f.match(b) {
				return nil
			}

			if skip > 0 {
				skip--
				return nil
			}

			out = append(out, b)
			if len(out) >= limit {
				return errPageFull
			}

			return nil
		})
	})

	if err != nil && !errors.Is(err, errPageFull) {
		return nil, err
	}

	return out, nil
}

// Stats summarizes the protocol counters and current custody.
func (m *Machine) Stats() (*Stats, error) {
	var s *Stats
	err := m.db.View(func(r storage.Reader) error {
		p, err := registry.Load(r)
		if err != nil {
			return err
		}

		vault, err := escrow.Balance(r, m.feeVault)
		if err != nil {
			return err
		}

		escrowed, err := escrow.TotalEscrowed(r)
		if err != nil {
			return err
		}

		byStatus := make(map[string]uint64, len(statusNames))
		for _, name := range statusNames {
			byStatus[name] = 0
		}

		err = each(r, func(b *Bounty) error {
			byStatus[b.Status.String()]++
			return nil
		})
		if err != nil {
			return err
		}

		s = &Stats{
			Protocol:        p,
			FeeVault:        m.feeVault,
			FeeVaultBalance: vault,
			Escrowed:        escrowed,
			ByStatus:        byStatus,
		}
		return nil
	})

	return s, err
}

// Balance returns the spendable balance of account.
func (m *Machine) Balance(account types.Pubkey) (uint64, error) {
	var balance uint64
	err := m.db.View(func(r storage.Reader) error {
		var err error
		balance, err = escrow.Balance(r, account)
		return err
	})

	return balance, err
}

// Events returns up to limit log records with sequence greater than after.
func (m *Machine) Events(after uint64, limit int) ([]*events.Record, error) {
	var recs []*events.Record
	err := m.db.View(func(r storage.Reader) error {
		var err error
		recs, err = events.Since(r, after, limit)
		return err
	})

	return recs, err
}

// Audit checks every custody invariant against a consistent snapshot.
func (m *Machine) Audit() (*Report, error) {
	var report *Report
	err := m.db.View(func(r storage.Reader) error {
		var err error
		report, err = Audit(r, m.feeVault)
		return err
	})

	return report, err
}
