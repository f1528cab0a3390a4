package status

import (
	"fmt"
	"strings"
)

// Code is the severity of an item or step outcome. Codes are totally ordered:
// Started < OK < Warning < KO < Fatal.
type Code int

const (
	Started Code = iota
	OK
	Warning
	KO
	Fatal
)

var codeNames = [...]string{"STARTED", "OK", "WARNING", "KO", "FATAL"}

// Codes lists every code in ascending severity.
func Codes() []Code {
	return []Code{Started, OK, Warning, KO, Fatal}
}

func (c Code) String() string {
	if c < Started || c > Fatal {
		return fmt.Sprintf("Code(%d)", int(c))
	}
	return codeNames[c]
}

// Valid reports whether c is one of the declared codes.
func (c Code) Valid() bool {
	return c >= Started && c <= Fatal
}

// AtLeast reports whether c is as severe as other or more.
func (c Code) AtLeast(other Code) bool {
	return c >= other
}

// Max returns the more severe of two codes.
func Max(a, b Code) Code {
	if b > a {
		return b
	}
	return a
}

// ParseCode parses a code name, case-insensitively.
func ParseCode(value string) (Code, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for i, name := range codeNames {
		if name == normalized {
			return Code(i), nil
		}
	}
	return Started, fmt.Errorf("unknown status code %q", value)
}

// MarshalText encodes the code by name.
func (c Code) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid status code %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText decodes a code name.
func (c *Code) UnmarshalText(text []byte) error {
	parsed, err := ParseCode(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
