package domain

import (
	"fmt"
	"strings"
)

// Mode selects whether a resolution may write to the stores.
// It is passed explicitly on every call; there is no global switch.
type Mode int

const (
	// Persisting records visits and promotes values between tiers.
	Persisting Mode = iota
	// ReadOnly (incognito) never mutates the history. Network results may
	// still be cached.
	ReadOnly
)

func (m Mode) String() string {
	switch m {
	case Persisting:
		return "persisting"
	case ReadOnly:
		return "readonly"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode maps user input to a Mode. Empty input is Persisting.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "persisting", "default":
		return Persisting, nil
	case "readonly", "read-only", "incognito":
		return ReadOnly, nil
	default:
		return Persisting, fmt.Errorf("unknown resolution mode %q", s)
	}
}
