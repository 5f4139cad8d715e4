// Package priority defines the user-facing scheduling levels of a profile
// and their mapping to native OS scheduling classes.
package priority

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownLevel indicates a Level outside the closed set below.
var ErrUnknownLevel = errors.New("priority: unknown level")

// Level is a profile-level scheduling priority. The zero value is NoChange.
type Level int

const (
	NoChange Level = iota // leave the process priority alone
	Idle
	BelowNormal
	Normal
	AboveNormal
	High
	Realtime
)

// Levels lists every level in ascending order, NoChange first.
var Levels = []Level{NoChange, Idle, BelowNormal, Normal, AboveNormal, High, Realtime}

var names = map[Level]string{
	NoChange:    "NoChange",
	Idle:        "Idle",
	BelowNormal: "BelowNormal",
	Normal:      "Normal",
	AboveNormal: "AboveNormal",
	High:        "High",
	Realtime:    "Realtime",
}

// aliases accepted when decoding; "low" is the name older settings files use for Idle.
var aliases = map[string]Level{
	"":         NoChange,
	"nochange": NoChange,
	"none":     NoChange,
	"idle":     Idle,
	"low":      Idle,
}

func (l Level) String() string {
	if n, ok := names[l]; ok {
		return n
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// ParseLevel decodes a level name, case-insensitively.
func ParseLevel(s string) (Level, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if l, ok := aliases[key]; ok {
		return l, nil
	}
	for l, n := range names {
		if strings.ToLower(n) == key {
			return l, nil
		}
	}
	return NoChange, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
}

// Class is a native scheduling class. On Linux it is the nice value
// applied with setpriority(2); lower runs first.
type Class int

// classes holds the nice value for every level except NoChange.
var classes = map[Level]Class{
	Idle:        19,
	BelowNormal: 10,
	Normal:      0,
	AboveNormal: -5,
	High:        -10,
	Realtime:    -20,
}

// Class maps l to its native class. ok is false for NoChange, which
// never produces a priority change.
func (l Level) Class() (c Class, ok bool, err error) {
	if l == NoChange {
		return 0, false, nil
	}
	c, ok = classes[l]
	if !ok {
		return 0, false, fmt.Errorf("%w: %d", ErrUnknownLevel, int(l))
	}
	return c, true, nil
}

// Nice returns the class as a nice value.
func (c Class) Nice() int { return int(c) }

func (c Class) String() string {
	for l, cl := range classes {
		if cl == c {
			return fmt.Sprintf("%s(nice %d)", l, int(c))
		}
	}
	return fmt.Sprintf("nice %d", int(c))
}

func (l Level) MarshalText() ([]byte, error) {
	if _, ok := names[l]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLevel, int(l))
	}
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(b []byte) error {
	v, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

func (l Level) MarshalYAML() (any, error) {
	b, err := l.MarshalText()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *Level) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	return l.UnmarshalText([]byte(s))
}
