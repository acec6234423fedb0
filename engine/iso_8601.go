package engine

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/senseyeio/duration"
)

// P[nY][nM][nD][T[nH][nM][nS]] or PnW
var iso8601DurationRegexp = regexp.MustCompile(`^P(?:\d+W|(?:\d+Y)?(?:\d+M)?(?:\d+D)?(?:T(?:\d+H)?(?:\d+M)?(?:\d+S)?)?)$`)

// NewISO8601Duration validates v. An empty string is the zero duration.
func NewISO8601Duration(v string) (ISO8601Duration, error) {
	if v == "" {
		return "", nil
	}
	if !isISO8601Duration(v) {
		return "", fmt.Errorf("invalid ISO 8601 duration %q", v)
	}
	if _, err := duration.ParseISO8601(v); err != nil {
		return "", fmt.Errorf("invalid ISO 8601 duration %q: %v", v, err)
	}
	return ISO8601Duration(v), nil
}

// isISO8601Duration requires at least one designator - and one after T, if present.
func isISO8601Duration(v string) bool {
	if !iso8601DurationRegexp.MatchString(v) {
		return false
	}

	datePart, timePart, hasTime := strings.Cut(v[1:], "T")
	if hasTime {
		return timePart != ""
	}
	return datePart != ""
}

// ISO8601Duration is a duration like PT30S, P1DT12H or P2W, used for timers, timer retries and external task locks.
// Weeks cannot be combined with other designators.
type ISO8601Duration string

// Calculate returns t shifted by the duration. Years, months, weeks and days are calendar based.
// The zero duration, as well as an unparsable one, returns t.
func (d ISO8601Duration) Calculate(t time.Time) time.Time {
	if d.IsZero() {
		return t
	}
	if v, err := duration.ParseISO8601(string(d)); err == nil {
		return v.Shift(t)
	}
	return t
}

func (d ISO8601Duration) IsZero() bool {
	return d == ""
}

func (d ISO8601Duration) String() string {
	return string(d)
}
