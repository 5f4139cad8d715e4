// Package profile compiles user-edited profiles into immutable, validated
// lookup tables, and reads and writes the settings files that hold them.
package profile

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ja7ad/coreration/pkg/mask"
	"github.com/ja7ad/coreration/pkg/priority"
)

// DefaultInterval is the monitor polling interval used when a profile
// does not set one.
const DefaultInterval = time.Second

// RawRule is one user-entered process rule.
type RawRule struct {
	Name     string         `yaml:"Name"`
	Cores    string         `yaml:"Cores,omitempty"`
	Priority priority.Level `yaml:"Priority,omitempty"`
}

// Raw is a profile as the user wrote it.
type Raw struct {
	Name       string    `yaml:"Name"`
	OtherCores string    `yaml:"OtherCores,omitempty"`
	Processes  []RawRule `yaml:"Processes,omitempty"`
	// IntervalMS is the monitor polling interval; 0 selects DefaultInterval.
	IntervalMS int `yaml:"Interval,omitempty"`
}

// Interval returns the polling interval of the profile.
func (r Raw) Interval() (time.Duration, error) {
	switch {
	case r.IntervalMS < 0:
		return 0, fmt.Errorf("%w: %dms", ErrBadInterval, r.IntervalMS)
	case r.IntervalMS == 0:
		return DefaultInterval, nil
	default:
		return time.Duration(r.IntervalMS) * time.Millisecond, nil
	}
}

// Rule is the compiled form of a RawRule.
type Rule struct {
	name        string
	affinity    mask.CoreMask
	class       priority.Class
	hasPriority bool
}

// Name returns the rule name as written in the profile.
func (r Rule) Name() string { return r.name }

// Affinity returns the rule's core mask; ok is false when the rule leaves
// affinity alone.
func (r Rule) Affinity() (m mask.CoreMask, ok bool) { return r.affinity, r.affinity.IsSet() }

// Priority returns the rule's class; ok is false for NoChange.
func (r Rule) Priority() (c priority.Class, ok bool) { return r.class, r.hasPriority }

// Compiled is an immutable, validated profile. The zero value is not usable;
// build one with Compile.
type Compiled struct {
	name     string
	numCores int
	other    mask.CoreMask
	rules    map[string]Rule
}

// Name returns the profile name.
func (c *Compiled) Name() string { return c.name }

// NumCores returns the core count the profile was compiled against.
func (c *Compiled) NumCores() int { return c.numCores }

// Default returns the mask for processes no rule matches; ok is false when
// unmatched processes are left alone.
func (c *Compiled) Default() (m mask.CoreMask, ok bool) { return c.other, c.other.IsSet() }

// Lookup finds the rule for a process name, case-insensitively.
func (c *Compiled) Lookup(process string) (Rule, bool) {
	r, ok := c.rules[key(process)]
	return r, ok
}

// Len returns the number of rules.
func (c *Compiled) Len() int { return len(c.rules) }

// Rules returns the rules sorted by name.
func (c *Compiled) Rules() []Rule {
	out := make([]Rule, 0, len(c.rules))
	for _, r := range c.rules {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b Rule) int { return strings.Compare(key(a.name), key(b.name)) })
	return out
}

// Compile validates raw against a host with numCores logical cores.
// It returns either a fully built profile or an error, never both.
//
// Mask errors come back as *mask.ParseError (wrapped with the rule name),
// duplicate rule names as *DuplicateNameError.
func Compile(raw Raw, numCores int) (*Compiled, error) {
	other, err := mask.Parse(raw.OtherCores, numCores)
	if err != nil {
		return nil, fmt.Errorf("other cores: %w", err)
	}

	rules := make(map[string]Rule, len(raw.Processes))
	for _, p := range raw.Processes {
		if strings.TrimSpace(p.Name) == "" {
			return nil, ErrEmptyName
		}
		k := key(p.Name)
		if _, dup := rules[k]; dup {
			return nil, &DuplicateNameError{Profile: raw.Name, Name: p.Name}
		}

		m, err := mask.Parse(p.Cores, numCores)
		if err != nil {
			return nil, fmt.Errorf("process %q: %w", p.Name, err)
		}
		class, ok, err := p.Priority.Class()
		if err != nil {
			return nil, fmt.Errorf("process %q: %w", p.Name, err)
		}

		rules[k] = Rule{name: p.Name, affinity: m, class: class, hasPriority: ok}
	}

	return &Compiled{
		name:     raw.Name,
		numCores: numCores,
		other:    other,
		rules:    rules,
	}, nil
}

func key(name string) string { return strings.ToLower(name) }
