// Package registry holds the process-wide Protocol singleton: bounty and
// completion counters, cumulative escrowed volume and the fee rate.
package registry

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	"AgentBounty/internal/codec"
	"AgentBounty/internal/storage"
	"AgentBounty/internal/types"
)

const (
	// DefaultFeeBPS is the protocol fee applied to every payout (2.5%).
	DefaultFeeBPS uint16 = 250

	// bpsMax is the basis point denominator (100% = 10000).
	bpsMax = 10_000

	// protocolSize is authority + three u64 counters + u16 fee rate.
	protocolSize = types.PubkeySize + 8 + 8 + 8 + 2
)

var (
	// ErrAlreadyInitialized is returned by a second Initialize.
	ErrAlreadyInitialized = errors.New("protocol already initialized")

	// ErrNotInitialized is returned when the singleton does not exist yet.
	ErrNotInitialized = errors.New("protocol not initialized")

	// ErrCounterOverflow is returned when a counter would wrap.
	ErrCounterOverflow = errors.New("protocol counter overflow")
)

// protocolKey is the storage key of the singleton.
var protocolKey = []byte("p:protocol")

// FeeVault is the default fee sink: an identity derived from a fixed seed,
// owned by protocol logic only.
var FeeVault = types.Derive([]byte("fee_vault"))

// Protocol is the singleton aggregate state.
type Protocol struct {
	Authority      types.Pubkey `json:"authority"`       // Authority is the deployer (informational)
	TotalBounties  uint64       `json:"total_bounties"`  // TotalBounties counts created bounties and is the next id
	TotalCompleted uint64       `json:"total_completed"` // TotalCompleted counts bounties that reached Completed
	TotalVolume    uint64       `json:"total_volume"`    // TotalVolume sums every reward ever escrowed
	FeeBPS         uint16       `json:"fee_bps"`         // FeeBPS is the payout fee in basis points
}

// Initialize creates the singleton. It fails with ErrAlreadyInitialized if
// the singleton exists, so a deployment is initialized exactly once.
func Initialize(txn *storage.Txn, authority types.Pubkey) (*Protocol, error) {
	existing, err := txn.Get(protocolKey)
	if err != nil {
		return nil, fmt.Errorf("read protocol:\n%w", err)
	}

	if existing != nil {
		return nil, ErrAlreadyInitialized
	}

	p := &Protocol{
		Authority: authority,
		FeeBPS:    DefaultFeeBPS,
	}

	if err := Save(txn, p); err != nil {
		return nil, err
	}

	return p, nil
}

// Load reads the singleton.
func Load(r storage.Reader) (*Protocol, error) {
	data, err := r.Get(protocolKey)
	if err != nil {
		return nil, fmt.Errorf("read protocol:\n%w", err)
	}

	if data == nil {
		return nil, ErrNotInitialized
	}

	return Decode(data)
}

// Save writes the singleton.
func Save(txn *storage.Txn, p *Protocol) error {
	if err := txn.Set(protocolKey, p.Encode()); err != nil {
		return fmt.Errorf("write protocol:\n%w", err)
	}

	return nil
}

// RecordCreated assigns the next bounty id and adds reward to the volume.
// Nothing changes if either counter would overflow.
func (p *Protocol) RecordCreated(reward uint64) (uint64, error) {
	if p.TotalBounties == math.MaxUint64 {
		return 0, fmt.Errorf("%w: total_bounties", ErrCounterOverflow)
	}

	volume := p.TotalVolume + reward
	if volume < p.TotalVolume {
		return 0, fmt.Errorf("%w: total_volume", ErrCounterOverflow)
	}

	id := p.TotalBounties
	p.TotalBounties++
	p.TotalVolume = volume

	return id, nil
}

// RecordCompleted counts one more completed bounty.
func (p *Protocol) RecordCompleted() error {
	if p.TotalCompleted >= p.TotalBounties {
		return fmt.Errorf("%w: total_completed would exceed total_bounties", ErrCounterOverflow)
	}

	p.TotalCompleted++

	return nil
}

// Split divides reward into the claimer payout and the protocol fee.
// fee = floor(reward * fee_bps / 10000) and payout = reward - fee, so
// payout + fee == reward exactly; the rounding remainder stays with the payout.
func (p *Protocol) Split(reward uint64) (payout, fee uint64) {
	fee = feeFor(reward, p.FeeBPS)

	return reward - fee, fee
}

// feeFor computes floor(amount * bps / 10000) without intermediate overflow.
func feeFor(amount uint64, bps uint16) uint64 {
	if bps > bpsMax {
		bps = bpsMax
	}

	hi, lo := bits.Mul64(amount, uint64(bps))
	fee, _ := bits.Div64(hi, lo, bpsMax) // hi < bpsMax since bps <= bpsMax

	return fee
}

// Encode serializes the singleton in its fixed-width layout.
func (p *Protocol) Encode() []byte {
	w := codec.NewWriter(protocolSize)
	w.Fixed32(p.Authority)
	w.U64(p.TotalBounties)
	w.U64(p.TotalCompleted)
	w.U64(p.TotalVolume)
	w.U16(p.FeeBPS)

	return w.Finish()
}

// Decode parses a singleton record.
func Decode(data []byte) (*Protocol, error) {
	r := codec.NewReader(data)

	p := &Protocol{
		Authority:      r.Field("authority").Fixed32(),
		TotalBounties:  r.Field("total_bounties").U64(),
		TotalCompleted: r.Field("total_completed").U64(),
		TotalVolume:    r.Field("total_volume").U64(),
		FeeBPS:         r.Field("fee_bps").U16(),
	}

	if err := r.Finish(); err != nil {
		return nil, fmt.Errorf("decode protocol: %w", err)
	}

	if p.FeeBPS > bpsMax {
		return nil, fmt.Errorf("decode protocol: fee_bps %d exceeds %d", p.FeeBPS, bpsMax)
	}

	return p, nil
}
