// Package id defines moon's identifier grammar, shared by projects, tasks
// and tags.
package id

import (
	"fmt"
	"regexp"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Id is a non-empty string restricted to [A-Za-z0-9_.-]. Equality is
// case-sensitive byte-for-byte, so Id is just a named string type.
type Id string

// Validate returns an error if the id is empty or contains characters
// outside the allowed grammar.
func Validate(raw string) error {
	if raw == "" {
		return fmt.Errorf("id: empty identifier")
	}
	if !idPattern.MatchString(raw) {
		return fmt.Errorf("id: %q contains characters outside [A-Za-z0-9_.-]", raw)
	}
	return nil
}

// New validates and wraps raw as an Id.
func New(raw string) (Id, error) {
	if err := Validate(raw); err != nil {
		return "", err
	}
	return Id(raw), nil
}

// String implements fmt.Stringer.
func (i Id) String() string {
	return string(i)
}
