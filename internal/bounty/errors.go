package bounty

import (
	"errors"

	"AgentBounty/internal/escrow"
	"AgentBounty/internal/registry"
)

// Kind classifies why an operation was rejected.
type Kind uint8

const (
	KindUnknown       Kind = iota
	KindValidation         // KindValidation is a malformed request
	KindState              // KindState is a bounty in the wrong status
	KindAuthorization      // KindAuthorization is the wrong actor
	KindTemporal           // KindTemporal is an elapsed deadline
	KindIntegrity          // KindIntegrity is a violated custody invariant
	KindNotFound           // KindNotFound is an unknown bounty
	KindFunds              // KindFunds is a poster who cannot fund the reward
	KindProtocol           // KindProtocol is a missing or duplicate singleton
)

var kindNames = map[Kind]string{
	KindUnknown:       "unknown",
	KindValidation:    "validation",
	KindState:         "state",
	KindAuthorization: "authorization",
	KindTemporal:      "temporal",
	KindIntegrity:     "integrity",
	KindNotFound:      "not_found",
	KindFunds:         "funds",
	KindProtocol:      "protocol",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Error is a named rejection. Every rejection aborts the whole operation.
type Error struct {
	Kind    Kind   // Kind is the rejection class
	Code    string // Code is the stable name clients switch on
	Message string // Message is the human-readable reason
}

func (e *Error) Error() string {
	return e.Message
}

// Named rejections.
var (
	ErrTitleTooLong       = &Error{KindValidation, "TitleTooLong", "title must be 100 bytes or less"}
	ErrDescriptionTooLong = &Error{KindValidation, "DescriptionTooLong", "description must be 1000 bytes or less"}
	ErrSubmissionTooLong  = &Error{KindValidation, "SubmissionTooLong", "submission URL must be 500 bytes or less"}
	ErrRewardTooLow       = &Error{KindValidation, "RewardTooLow", "reward must be at least 100000000 lamports"}
	ErrRewardTooHigh      = &Error{KindValidation, "RewardTooHigh", "reward cannot exceed 10000000000 lamports"}
	ErrInvalidDeadline    = &Error{KindValidation, "InvalidDeadline", "deadline must be in the future"}

	ErrBountyNotOpen       = &Error{KindState, "BountyNotOpen", "bounty is not open"}
	ErrBountyNotClaimed    = &Error{KindState, "BountyNotClaimed", "bounty is not claimed"}
	ErrWorkNotSubmitted    = &Error{KindState, "WorkNotSubmitted", "work has not been submitted"}
	ErrCannotCancelClaimed = &Error{KindState, "CannotCancelClaimed", "cannot cancel a claimed bounty"}

	ErrCannotClaimOwnBounty = &Error{KindAuthorization, "CannotClaimOwnBounty", "cannot claim your own bounty"}
	ErrNotBountyClaimer     = &Error{KindAuthorization, "NotBountyClaimer", "caller is not the claimer of this bounty"}
	ErrNotBountyPoster      = &Error{KindAuthorization, "NotBountyPoster", "caller is not the poster of this bounty"}
	ErrReservedAccount      = &Error{KindAuthorization, "ReservedAccount", "account is reserved for protocol custody"}

	ErrBountyExpired = &Error{KindTemporal, "BountyExpired", "bounty has expired"}

	ErrBountyNotFound = &Error{KindNotFound, "BountyNotFound", "bounty not found"}
)

// sentinelCodes classifies errors returned by the escrow and registry packages.
var sentinelCodes = []struct {
	err  error
	kind Kind
	code string
}{
	{escrow.ErrInsufficientEscrow, KindIntegrity, "InsufficientEscrow"},
	{escrow.ErrInsufficientFunds, KindFunds, "InsufficientFunds"},
	{escrow.ErrBalanceOverflow, KindIntegrity, "BalanceOverflow"},
	{escrow.ErrEntryExists, KindIntegrity, "EscrowEntryExists"},
	{escrow.ErrEntryNotFound, KindIntegrity, "EscrowEntryNotFound"},
	{escrow.ErrZeroAmount, KindValidation, "ZeroAmount"},
	{registry.ErrAlreadyInitialized, KindProtocol, "AlreadyInitialized"},
	{registry.ErrNotInitialized, KindProtocol, "NotInitialized"},
	{registry.ErrCounterOverflow, KindIntegrity, "CounterOverflow"},
}

// KindOf returns the rejection class of err, looking through wrapping.
func KindOf(err error) Kind {
	kind, _ := classify(err)
	return kind
}

// CodeOf returns the stable rejection name of err, or "" for infrastructure errors.
func CodeOf(err error) string {
	_, code := classify(err)
	return code
}

// classify resolves err to a kind and code.
func classify(err error) (Kind, string) {
	if err == nil {
		return KindUnknown, ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Kind, e.Code
	}

	for _, s := range sentinelCodes {
		if errors.Is(err, s.err) {
			return s.kind, s.code
		}
	}

	return KindUnknown, ""
}
