// Package escrow keeps custody of locked value. Each bounty has one escrow
// entry, keyed by bounty id; spendable balances live in accounts keyed by
// identity. Only the bounty state machine moves value through this package.
package escrow

import (
	"encoding/binary"
	"errors"
	"fmt"

	"AgentBounty/internal/codec"
	"AgentBounty/internal/storage"
	"AgentBounty/internal/types"
)

var (
	// ErrInsufficientEscrow is returned when a release exceeds the entry balance.
	// Given the state machine's invariants this is unreachable.
	ErrInsufficientEscrow = errors.New("insufficient escrow balance")

	// ErrInsufficientFunds is returned when an account cannot fund a lock.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrEntryExists is returned when locking into an id that already has an entry.
	ErrEntryExists = errors.New("escrow entry already exists")

	// ErrEntryNotFound is returned when an id has no entry.
	ErrEntryNotFound = errors.New("escrow entry not found")

	// ErrBalanceOverflow is returned when a credit would wrap a balance.
	ErrBalanceOverflow = errors.New("balance overflow")

	// ErrZeroAmount is returned for a lock or deposit of zero.
	ErrZeroAmount = errors.New("amount must be positive")
)

// Storage key prefixes.
var (
	prefixEntry   = []byte("e:")
	prefixAccount = []byte("a:")
)

// entrySize is locked + balance + released.
const entrySize = 8 + 8 + 8

// Store is the transactional view the ledger mutates.
type Store interface {
	storage.Reader
	Set(key, value []byte) error
}

// Entry is the custody balance locked against one bounty.
// Invariant: Balance + Released == Locked.
type Entry struct {
	BountyID uint64 `json:"bounty_id"` // BountyID is the owning bounty
	Locked   uint64 `json:"locked"`    // Locked is the amount moved in at creation
	Balance  uint64 `json:"balance"`   // Balance is the amount still in custody
	Released uint64 `json:"released"`  // Released is the sum of every release
}

// Split is one destination of a release.
type Split struct {
	To     types.Pubkey // To is the credited account
	Amount uint64       // Amount is the value moved out of escrow
}

// Lock debits amount from the from account and creates the entry for bountyID.
func Lock(s Store, bountyID uint64, from types.Pubkey, amount uint64) (*Entry, error) {
	if amount == 0 {
		return nil, ErrZeroAmount
	}

	existing, err := s.Get(entryKey(bountyID))
	if err != nil {
		return nil, fmt.Errorf("read escrow entry:\n%w", err)
	}

	if existing != nil {
		return nil, fmt.Errorf("%w: bounty %d", ErrEntryExists, bountyID)
	}

	balance, err := Balance(s, from)
	if err != nil {
		return nil, err
	}

	if balance < amount {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, balance, amount)
	}

	entry := &Entry{
		BountyID: bountyID,
		Locked:   amount,
		Balance:  amount,
	}

	if err := setBalance(s, from, balance-amount); err != nil {
		return nil, err
	}

	if err := saveEntry(s, entry); err != nil {
		return nil, err
	}

	return entry, nil
}

// Release debits the entry by the sum of splits and credits each destination.
// Every split is checked before anything is written: either all land or none.
func Release(s Store, bountyID uint64, splits ...Split) (*Entry, error) {
	entry, err := GetEntry(s, bountyID)
	if err != nil {
		return nil, err
	}

	var total uint64
	for _, split := range splits {
		sum := total + split.Amount
		if sum < total {
			return nil, fmt.Errorf("%w: split total overflows", ErrInsufficientEscrow)
		}
		total = sum
	}

	if total > entry.Balance {
		return nil, fmt.Errorf("%w: bounty %d has %d, release %d", ErrInsufficientEscrow, bountyID, entry.Balance, total)
	}

	credits, order, err := plannedCredits(s, splits)
	if err != nil {
		return nil, err
	}

	for _, account := range order {
		if err := setBalance(s, account, credits[account]); err != nil {
			return nil, err
		}
	}

	entry.Balance -= total
	entry.Released += total

	if err := saveEntry(s, entry); err != nil {
		return nil, err
	}

	return entry, nil
}

// plannedCredits computes the post-release balance of every destination.
// A destination listed twice is credited with the sum of its splits.
func plannedCredits(s Store, splits []Split) (map[types.Pubkey]uint64, []types.Pubkey, error) {
	credits := make(map[types.Pubkey]uint64, len(splits))
	order := make([]types.Pubkey, 0, len(splits))

	for _, split := range splits {
		current, seen := credits[split.To]
		if !seen {
			balance, err := Balance(s, split.To)
			if err != nil {
				return nil, nil, err
			}
			current = balance
			order = append(order, split.To)
		}

		next := current + split.Amount
		if next < current {
			return nil, nil, fmt.Errorf("%w: account %s", ErrBalanceOverflow, split.To.Short())
		}

		credits[split.To] = next
	}

	return credits, order, nil
}

// Deposit credits amount to account and returns the new balance.
// It stands in for the host ledger's native transfers.
func Deposit(s Store, account types.Pubkey, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, ErrZeroAmount
	}

	balance, err := Balance(s, account)
	if err != nil {
		return 0, err
	}

	next := balance + amount
	if next < balance {
		return 0, fmt.Errorf("%w: account %s", ErrBalanceOverflow, account.Short())
	}

	if err := setBalance(s, account, next); err != nil {
		return 0, err
	}

	return next, nil
}

// Balance returns the spendable balance of account (zero if never funded).
func Balance(r storage.Reader, account types.Pubkey) (uint64, error) {
	data, err := r.Get(accountKey(account))
	if err != nil {
		return 0, fmt.Errorf("read account:\n%w", err)
	}

	if data == nil {
		return 0, nil
	}

	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt account %s: %d bytes", account.Short(), len(data))
	}

	return binary.LittleEndian.Uint64(data), nil
}

// GetEntry returns the escrow entry of bountyID.
func GetEntry(r storage.Reader, bountyID uint64) (*Entry, error) {
	data, err := r.Get(entryKey(bountyID))
	if err != nil {
		return nil, fmt.Errorf("read escrow entry:\n%w", err)
	}

	if data == nil {
		return nil, fmt.Errorf("%w: bounty %d", ErrEntryNotFound, bountyID)
	}

	return decodeEntry(bountyID, data)
}

// Entries visits every escrow entry in bounty id order.
func Entries(r storage.Reader, fn func(*Entry) error) error {
	return r.IteratePrefix(prefixEntry, func(key, value []byte) error {
		if len(key) != len(prefixEntry)+8 {
			return nil
		}

		entry, err := decodeEntry(binary.BigEndian.Uint64(key[len(prefixEntry):]), value)
		if err != nil {
			return err
		}

		return fn(entry)
	})
}

// TotalEscrowed sums the balance of every entry.
func TotalEscrowed(r storage.Reader) (uint64, error) {
	var total uint64

	err := Entries(r, func(e *Entry) error {
		total += e.Balance
		return nil
	})

	return total, err
}

// setBalance writes an account balance.
func setBalance(s Store, account types.Pubkey, balance uint64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, balance)

	if err := s.Set(accountKey(account), buf); err != nil {
		return fmt.Errorf("write account:\n%w", err)
	}

	return nil
}

// saveEntry writes an escrow entry.
func saveEntry(s Store, e *Entry) error {
	w := codec.NewWriter(entrySize)
	w.U64(e.Locked)
	w.U64(e.Balance)
	w.U64(e.Released)

	if err := s.Set(entryKey(e.BountyID), w.Finish()); err != nil {
		return fmt.Errorf("write escrow entry:\n%w", err)
	}

	return nil
}

// decodeEntry parses a stored entry and checks its conservation invariant.
func decodeEntry(bountyID uint64, data []byte) (*Entry, error) {
	r := codec.NewReader(data)

	e := &Entry{
		BountyID: bountyID,
		Locked:   r.Field("locked").U64(),
		Balance:  r.Field("balance").U64(),
		Released: r.Field("released").U64(),
	}

	if err := r.Finish(); err != nil {
		return nil, fmt.Errorf("decode escrow entry %d: %w", bountyID, err)
	}

	if e.Balance+e.Released != e.Locked || e.Balance > e.Locked {
		return nil, fmt.Errorf("escrow entry %d violates conservation: balance=%d released=%d locked=%d",
			bountyID, e.Balance, e.Released, e.Locked)
	}

	return e, nil
}

// entryKey builds "e:" + big-endian id so entries iterate in id order.
func entryKey(bountyID uint64) []byte {
	key := make([]byte, len(prefixEntry)+8)
	copy(key, prefixEntry)
	binary.BigEndian.PutUint64(key[len(prefixEntry):], bountyID)

	return key
}

// accountKey builds "a:" + identity.
func accountKey(account types.Pubkey) []byte {
	key := make([]byte, len(prefixAccount)+types.PubkeySize)
	copy(key, prefixAccount)
	copy(key[len(prefixAccount):], account[:])

	return key
}
