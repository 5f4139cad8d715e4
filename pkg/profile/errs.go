package profile

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateName indicates two process rules with the same name
	// under case-insensitive comparison.
	ErrDuplicateName = errors.New("profile: duplicate process name")

	// ErrEmptyName indicates a process rule without a name.
	ErrEmptyName = errors.New("profile: empty process name")

	// ErrBadInterval indicates a negative polling interval. Zero selects
	// DefaultInterval.
	ErrBadInterval = errors.New("profile: interval must not be negative")

	// ErrNotFound indicates a profile name missing from a settings file.
	ErrNotFound = errors.New("profile: not found")
)

// DuplicateNameError names the profile and the rule that repeats an
// earlier rule's name.
type DuplicateNameError struct {
	Profile string
	Name    string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("profile %q has multiple processes named %q", e.Profile, e.Name)
}

func (e *DuplicateNameError) Unwrap() error { return ErrDuplicateName }
