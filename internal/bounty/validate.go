package bounty

import "AgentBounty/internal/types"

// ValidateTitle checks the title length in bytes.
func ValidateTitle(title string) error {
	if len(title) > MaxTitleLen {
		return ErrTitleTooLong
	}
	return nil
}

// ValidateDescription checks the description length in bytes.
func ValidateDescription(description string) error {
	if len(description) > MaxDescriptionLen {
		return ErrDescriptionTooLong
	}
	return nil
}

// ValidateSubmission checks the submission URL length in bytes.
func ValidateSubmission(submission string) error {
	if len(submission) > MaxSubmissionLen {
		return ErrSubmissionTooLong
	}
	return nil
}

// ValidateReward checks the reward against both bounds.
func ValidateReward(reward uint64) error {
	if reward < MinRewardLamports {
		return ErrRewardTooLow
	}
	if reward > MaxRewardLamports {
		return ErrRewardTooHigh
	}
	return nil
}

// ValidateDeadline requires the deadline to be strictly after now.
func ValidateDeadline(deadline, now int64) error {
	if deadline <= now {
		return ErrInvalidDeadline
	}
	return nil
}

// RequireStatus returns rejection unless b is in status want.
func RequireStatus(b *Bounty, want Status, rejection error) error {
	if b.Status != want {
		return rejection
	}
	return nil
}

// RequireOpen rejects a bounty that is not Open.
func RequireOpen(b *Bounty) error {
	return RequireStatus(b, StatusOpen, ErrBountyNotOpen)
}

// RequireClaimed rejects a bounty that is not Claimed.
func RequireClaimed(b *Bounty) error {
	return RequireStatus(b, StatusClaimed, ErrBountyNotClaimed)
}

// RequireSubmitted rejects a bounty whose work is not awaiting approval.
func RequireSubmitted(b *Bounty) error {
	return RequireStatus(b, StatusSubmitted, ErrWorkNotSubmitted)
}

// RequireCancellable rejects a bounty that has left Open.
func RequireCancellable(b *Bounty) error {
	return RequireStatus(b, StatusOpen, ErrCannotCancelClaimed)
}

// RequireActor returns rejection unless caller is want.
func RequireActor(caller, want types.Pubkey, rejection error) error {
	if caller != want {
		return rejection
	}
	return nil
}

// RequirePoster rejects any caller other than the poster.
func RequirePoster(b *Bounty, caller types.Pubkey) error {
	return RequireActor(caller, b.Poster, ErrNotBountyPoster)
}

// RequireClaimer rejects any caller other than the recorded claimer.
func RequireClaimer(b *Bounty, caller types.Pubkey) error {
	if b.Claimer == nil {
		return ErrNotBountyClaimer
	}
	return RequireActor(caller, *b.Claimer, ErrNotBountyClaimer)
}

// RequireNotPoster rejects the poster claiming their own bounty.
func RequireNotPoster(b *Bounty, caller types.Pubkey) error {
	if caller == b.Poster {
		return ErrCannotClaimOwnBounty
	}
	return nil
}

// RequireNotReserved rejects protocol custody accounts acting as a
// depositor, poster or claimer.
func RequireNotReserved(account, reserved types.Pubkey) error {
	if account == reserved {
		return ErrReservedAccount
	}
	return nil
}

// RequireBeforeDeadline rejects once now has reached the deadline.
func RequireBeforeDeadline(b *Bounty, now int64) error {
	if now >= b.Deadline {
		return ErrBountyExpired
	}
	return nil
}
