// Package coursekey parses structured course-run identifiers.
//
// The canonical form is "course-v1:Org+Course+Run". The legacy slash form
// "Org/Course/Run" is still accepted because older records carry it.
package coursekey

import (
	"strings"

	"github.com/pkg/errors"
)

const canonicalPrefix = "course-v1:"

// ErrInvalidKey is returned when a string cannot be parsed as a course key.
var ErrInvalidKey = errors.New("invalid course key")

// Key identifies a single course run.
type Key struct {
	Org    string
	Course string
	Run    string

	// deprecated is true for keys parsed from the legacy slash form. It only
	// affects String().
	deprecated bool
}

// Parse parses a course-run identifier in either the canonical or the legacy
// form.
func Parse(s string) (Key, error) {
	if rest, ok := strings.CutPrefix(s, canonicalPrefix); ok {
		parts := strings.Split(rest, "+")
		if len(parts) != 3 {
			return Key{}, errors.Wrapf(ErrInvalidKey, "%q", s)
		}
		k := Key{Org: parts[0], Course: parts[1], Run: parts[2]}
		if !k.valid() {
			return Key{}, errors.Wrapf(ErrInvalidKey, "%q", s)
		}
		return k, nil
	}

	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return Key{}, errors.Wrapf(ErrInvalidKey, "%q", s)
	}
	k := Key{Org: parts[0], Course: parts[1], Run: parts[2], deprecated: true}
	if !k.valid() {
		return Key{}, errors.Wrapf(ErrInvalidKey, "%q", s)
	}
	return k, nil
}

// MustParse is like Parse but panics on invalid input. Intended for tests and
// fixtures.
func MustParse(s string) Key {
	k, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return k
}

func (k Key) valid() bool {
	for _, part := range []string{k.Org, k.Course, k.Run} {
		if part == "" {
			return false
		}
		if strings.ContainsAny(part, "/+ ") {
			return false
		}
	}
	return true
}

// String renders the key in the form it was parsed from.
func (k Key) String() string {
	if k.deprecated {
		return k.Org + "/" + k.Course + "/" + k.Run
	}
	return canonicalPrefix + k.Org + "+" + k.Course + "+" + k.Run
}
