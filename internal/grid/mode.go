package grid

import (
	"fmt"
	"strings"
)

// Mode selects how the grid is brought up to date each tick.
type Mode int

const (
	// ModeRebuild clears every bucket and reinserts every entity each tick.
	ModeRebuild Mode = iota
	// ModeIncremental moves only the entities whose cell changed.
	ModeIncremental
)

func (m Mode) String() string {
	switch m {
	case ModeRebuild:
		return "rebuild"
	case ModeIncremental:
		return "incremental"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts "rebuild" or "incremental", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rebuild":
		return ModeRebuild, nil
	case "incremental":
		return ModeIncremental, nil
	}
	return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, s)
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
