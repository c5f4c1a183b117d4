// Package bounty implements the bounty lifecycle: Open, Claimed, Submitted,
// then Completed, with Cancelled reachable only from Open. Every operation
// runs in one storage transaction that touches the bounty, its escrow entry,
// the protocol singleton and the accounts value moves between, and appends
// exactly one event. A rejected operation writes nothing.
package bounty

import (
	"time"

	"AgentBounty/internal/escrow"
	"AgentBounty/internal/events"
	"AgentBounty/internal/logger"
	"AgentBounty/internal/registry"
	"AgentBounty/internal/storage"
	"AgentBounty/internal/types"
)

// Operation names, used for logs and metrics.
const (
	OpInitialize = "initialize"
	OpCreate     = "create"
	OpClaim      = "claim"
	OpSubmit     = "submit"
	OpApprove    = "approve"
	OpCancel     = "cancel"
	OpDeposit    = "deposit"
)

// Observer receives the outcome of every operation.
type Observer interface {
	// ObserveOperation is called once per operation, committed or rejected.
	ObserveOperation(op string, err error, elapsed time.Duration)
	// ObserveEvent is called after an event-emitting operation commits.
	ObserveEvent(rec *events.Record)
}

// Machine applies lifecycle operations against a store.
type Machine struct {
	db       *storage.Storage
	now      func() time.Time
	feeVault types.Pubkey
	observer Observer
	bus      *events.Bus
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock replaces the wall clock, used for deadlines and timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithFeeVault overrides the account credited with protocol fees.
func WithFeeVault(vault types.Pubkey) Option {
	return func(m *Machine) { m.feeVault = vault }
}

// WithObserver reports every operation to o.
func WithObserver(o Observer) Option {
	return func(m *Machine) { m.observer = o }
}

// WithBus publishes committed events to in-process subscribers.
func WithBus(bus *events.Bus) Option {
	return func(m *Machine) { m.bus = bus }
}

// New creates a Machine over db.
func New(db *storage.Storage, opts ...Option) *Machine {
	m := &Machine{
		db:       db,
		now:      time.Now,
		feeVault: registry.FeeVault,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// FeeVault returns the account credited with protocol fees.
func (m *Machine) FeeVault() types.Pubkey {
	return m.feeVault
}

// Receipt is the result of a committed lifecycle operation.
type Receipt struct {
	Bounty *Bounty        `json:"bounty"` // Bounty is the record after the operation
	Escrow *escrow.Entry  `json:"escrow"` // Escrow is the custody entry after the operation
	Event  *events.Record `json:"event"`  // Event is the appended notification
}

// CreateParams are the poster-supplied fields of a new bounty.
type CreateParams struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	RewardLamports uint64 `json:"reward_lamports"`
	Deadline       int64  `json:"deadline"`
}

// Initialize creates the protocol singleton with authority as its deployer.
// It emits no event.
func (m *Machine) Initialize(authority types.Pubkey) (*registry.Protocol, error) {
	start := time.Now()

	var p *registry.Protocol
	err := m.db.Update(func(txn *storage.Txn) error {
		var err error
		p, err = registry.Initialize(txn, authority)
		return err
	})

	m.finish(OpInitialize, start, err, nil)
	if err != nil {
		return nil, err
	}

	logger.Info("protocol initialized", "authority", authority.Short(), "fee_bps", p.FeeBPS)

	return p, nil
}

// Deposit credits amount to account. It stands in for native transfers
// into the marketplace and refuses the fee vault.
func (m *Machine) Deposit(account types.Pubkey, amount uint64) (uint64, error) {
	start := time.Now()

	var balance uint64
	err := m.db.Update(func(txn *storage.Txn) error {
		if err := RequireNotReserved(account, m.feeVault); err != nil {
			return err
		}

		var err error
		balance, err = escrow.Deposit(txn, account, amount)
		return err
	})

	m.finish(OpDeposit, start, err, nil)
	if err != nil {
		return 0, err
	}

	logger.Debug("account funded", "account", account.Short(), "amount", amount, "balance", balance)

	return balance, nil
}

// Create validates params, locks the reward from poster into a new escrow
// entry and opens the bounty under the next id.
func (m *Machine) Create(poster types.Pubkey, params CreateParams) (*Receipt, error) {
	return m.apply(OpCreate, func(txn *storage.Txn, now int64) (*Receipt, error) {
		if err := ValidateTitle(params.Title); err != nil {
			return nil, err
		}
		if err := ValidateDescription(params.Description); err != nil {
			return nil, err
		}
		if err := ValidateReward(params.RewardLamports); err != nil {
			return nil, err
		}
		if err := ValidateDeadline(params.Deadline, now); err != nil {
			return nil, err
		}
		if err := RequireNotReserved(poster, m.feeVault); err != nil {
			return nil, err
		}

		p, err := registry.Load(txn)
		if err != nil {
			return nil, err
		}

		id, err := p.RecordCreated(params.RewardLamports)
		if err != nil {
			return nil, err
		}

		entry, err := escrow.Lock(txn, id, poster, params.RewardLamports)
		if err != nil {
			return nil, err
		}

		b := &Bounty{
			ID:             id,
			Poster:         poster,
			Title:          params.Title,
			Description:    params.Description,
			RewardLamports: params.RewardLamports,
			CreatedAt:      now,
			Deadline:       params.Deadline,
			Status:         StatusOpen,
		}

		if err := save(txn, b); err != nil {
			return nil, err
		}
		if err := registry.Save(txn, p); err != nil {
			return nil, err
		}

		return &Receipt{
			Bounty: b,
			Escrow: entry,
			Event: &events.Record{
				Kind:     types.EventKindBountyCreated,
				BountyID: id,
				Actor:    poster,
				Amount:   params.RewardLamports,
				Deadline: params.Deadline,
			},
		}, nil
	})
}

// Claim assigns an Open bounty to caller. The poster cannot claim.
func (m *Machine) Claim(id uint64, caller types.Pubkey) (*Receipt, error) {
	return m.apply(OpClaim, func(txn *storage.Txn, now int64) (*Receipt, error) {
		b, err := load(txn, id)
		if err != nil {
			return nil, err
		}

		if err := RequireOpen(b); err != nil {
			return nil, err
		}
		if err := RequireBeforeDeadline(b, now); err != nil {
			return nil, err
		}
		if err := RequireNotPoster(b, caller); err != nil {
			return nil, err
		}
		if err := RequireNotReserved(caller, m.feeVault); err != nil {
			return nil, err
		}

		claimer := caller
		claimedAt := now
		b.Status = StatusClaimed
		b.Claimer = &claimer
		b.ClaimedAt = &claimedAt

		if err := save(txn, b); err != nil {
			return nil, err
		}

		entry, err := escrow.GetEntry(txn, id)
		if err != nil {
			return nil, err
		}

		return &Receipt{
			Bounty: b,
			Escrow: entry,
			Event: &events.Record{
				Kind:     types.EventKindBountyClaimed,
				BountyID: id,
				Actor:    caller,
			},
		}, nil
	})
}

// Submit records the claimer's evidence of completed work.
func (m *Machine) Submit(id uint64, caller types.Pubkey, submission string) (*Receipt, error) {
	return m.apply(OpSubmit, func(txn *storage.Txn, now int64) (*Receipt, error) {
		if err := ValidateSubmission(submission); err != nil {
			return nil, err
		}

		b, err := load(txn, id)
		if err != nil {
			return nil, err
		}

		if err := RequireClaimed(b); err != nil {
			return nil, err
		}
		if err := RequireClaimer(b, caller); err != nil {
			return nil, err
		}
		if err := RequireBeforeDeadline(b, now); err != nil {
			return nil, err
		}

		b.Status = StatusSubmitted
		b.Submission = &submission

		if err := save(txn, b); err != nil {
			return nil, err
		}

		entry, err := escrow.GetEntry(txn, id)
		if err != nil {
			return nil, err
		}

		return &Receipt{
			Bounty: b,
			Escrow: entry,
			Event: &events.Record{
				Kind:       types.EventKindWorkSubmitted,
				BountyID:   id,
				Actor:      caller,
				Submission: submission,
			},
		}, nil
	})
}

// Approve completes a Submitted bounty: the payout goes to the claimer and
// the fee to the fee vault, emptying the escrow. No deadline applies.
func (m *Machine) Approve(id uint64, caller types.Pubkey) (*Receipt, error) {
	return m.apply(OpApprove, func(txn *storage.Txn, now int64) (*Receipt, error) {
		b, err := load(txn, id)
		if err != nil {
			return nil, err
		}

		if err := RequireSubmitted(b); err != nil {
			return nil, err
		}
		if err := RequirePoster(b, caller); err != nil {
			return nil, err
		}

		p, err := registry.Load(txn)
		if err != nil {
			return nil, err
		}

		payout, fee := p.Split(b.RewardLamports)
		claimer := *b.Claimer

		entry, err := escrow.Release(txn, id,
			escrow.Split{To: claimer, Amount: payout},
			escrow.Split{To: m.feeVault, Amount: fee},
		)
		if err != nil {
			return nil, err
		}

		if err := p.RecordCompleted(); err != nil {
			return nil, err
		}

		completedAt := now
		b.Status = StatusCompleted
		b.CompletedAt = &completedAt

		if err := save(txn, b); err != nil {
			return nil, err
		}
		if err := registry.Save(txn, p); err != nil {
			return nil, err
		}

		return &Receipt{
			Bounty: b,
			Escrow: entry,
			Event: &events.Record{
				Kind:     types.EventKindWorkApproved,
				BountyID: id,
				Actor:    claimer,
				Amount:   payout,
				Fee:      fee,
			},
		}, nil
	})
}

// Cancel refunds the full reward of an Open bounty to its poster.
func (m *Machine) Cancel(id uint64, caller types.Pubkey) (*Receipt, error) {
	return m.apply(OpCancel, func(txn *storage.Txn, now int64) (*Receipt, error) {
		b, err := load(txn, id)
		if err != nil {
			return nil, err
		}

		if err := RequireCancellable(b); err != nil {
			return nil, err
		}
		if err := RequirePoster(b, caller); err != nil {
			return nil, err
		}

		entry, err := escrow.Release(txn, id, escrow.Split{To: b.Poster, Amount: b.RewardLamports})
		if err != nil {
			return nil, err
		}

		b.Status = StatusCancelled

		if err := save(txn, b); err != nil {
			return nil, err
		}

		return &Receipt{
			Bounty: b,
			Escrow: entry,
			Event: &events.Record{
				Kind:     types.EventKindBountyCancelled,
				BountyID: id,
				Actor:    b.Poster,
				Amount:   b.RewardLamports,
			},
		}, nil
	})
}

// apply runs fn in one transaction and appends the receipt's event to the
// log. The event is published after commit while writes are still
// serialized, so subscribers see events in sequence order.
func (m *Machine) apply(op string, fn func(txn *storage.Txn, now int64) (*Receipt, error)) (*Receipt, error) {
	start := time.Now()
	now := m.now().Unix()

	var receipt *Receipt
	err := m.db.Update(func(txn *storage.Txn) error {
		r, err := fn(txn, now)
		if err != nil {
			return err
		}

		r.Event.Timestamp = now
		if err := events.Append(txn, r.Event); err != nil {
			return err
		}

		if m.bus != nil {
			txn.OnCommit(func() { m.bus.Publish(r.Event) })
		}

		receipt = r
		return nil
	})

	m.finish(op, start, err, receipt)
	if err != nil {
		return nil, err
	}

	logger.Info("bounty "+op,
		"bounty", receipt.Bounty.ID,
		"status", receipt.Bounty.Status,
		"actor", receipt.Event.Actor.Short(),
		"seq", receipt.Event.Seq,
	)

	return receipt, nil
}

// finish reports the outcome to the observer and logs rejections.
func (m *Machine) finish(op string, start time.Time, err error, receipt *Receipt) {
	if m.observer != nil {
		m.observer.ObserveOperation(op, err, time.Since(start))
		if err == nil && receipt != nil {
			m.observer.ObserveEvent(receipt.Event)
		}
	}

	if err == nil {
		return
	}

	if code := CodeOf(err); code != "" {
		logger.Debug("operation rejected", "op", op, "code", code, "kind", KindOf(err))
		return
	}

	logger.Error("operation failed", "op", op, "error", err)
}
