package compiler

import (
	"fmt"
	"strings"
)

// OptLevel selects how much work the backend spends on the output.
type OptLevel int

const (
	OptNone OptLevel = iota
	OptSpeed
	OptSpeedAndSize
)

// DefaultOptLevel is used when no level is configured.
const DefaultOptLevel = OptSpeedAndSize

func (l OptLevel) String() string {
	switch l {
	case OptNone:
		return "none"
	case OptSpeed:
		return "speed"
	case OptSpeedAndSize:
		return "speed_and_size"
	default:
		return fmt.Sprintf("OptLevel(%d)", int(l))
	}
}

// Valid reports whether l is a known level.
func (l OptLevel) Valid() bool {
	return l >= OptNone && l <= OptSpeedAndSize
}

// ParseOptLevel accepts the level names as well as "0", "1", "2", "s"
// and "fast".
func ParseOptLevel(s string) (OptLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "0":
		return OptNone, nil
	case "speed", "1", "fast":
		return OptSpeed, nil
	case "speed_and_size", "speed-and-size", "2", "s":
		return OptSpeedAndSize, nil
	default:
		return 0, fmt.Errorf("unknown optimization level %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l OptLevel) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid optimization level %d", int(l))
	}
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *OptLevel) UnmarshalText(text []byte) error {
	v, err := ParseOptLevel(string(text))
	if err != nil {
		return err
	}
	*l = v
	return nil
}
