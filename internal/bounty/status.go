package bounty

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a bounty.
type Status uint8

const (
	StatusOpen Status = iota
	StatusClaimed
	StatusSubmitted
	StatusCompleted
	StatusCancelled
)

var statusNames = [...]string{
	StatusOpen:      "open",
	StatusClaimed:   "claimed",
	StatusSubmitted: "submitted",
	StatusCompleted: "completed",
	StatusCancelled: "cancelled",
}

// ParseStatus parses a status name (case-insensitive).
func ParseStatus(s string) (Status, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range statusNames {
		if name == s {
			return Status(i), nil
		}
	}

	return 0, fmt.Errorf("unknown status %q", s)
}

// Valid reports whether s is a known status tag.
func (s Status) Valid() bool {
	return int(s) < len(statusNames)
}

// HoldsEscrow reports whether the reward is still in custody in status s.
func (s Status) HoldsEscrow() bool {
	return s == StatusOpen || s == StatusClaimed || s == StatusSubmitted
}

// HasClaimer reports whether a bounty in status s must carry a claimer.
func (s Status) HasClaimer() bool {
	return s == StatusClaimed || s == StatusSubmitted || s == StatusCompleted
}

// HasSubmission reports whether a bounty in status s must carry a submission.
func (s Status) HasSubmission() bool {
	return s == StatusSubmitted || s == StatusCompleted
}

func (s Status) String() string {
	if s.Valid() {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}

	*s = parsed

	return nil
}
