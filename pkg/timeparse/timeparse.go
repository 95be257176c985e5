// Package timeparse parses the free-form timestamps accepted by date flags.
package timeparse

import (
	"time"

	"github.com/araddon/dateparse"
	"github.com/pkg/errors"
)

// Parse parses a timestamp in any common layout. Timestamps without an
// explicit zone are taken as UTC.
func Parse(s string) (time.Time, error) {
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "cannot parse time %q", s)
	}
	return t, nil
}
