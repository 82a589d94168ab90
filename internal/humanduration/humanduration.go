// Package humanduration parses the small duration grammar btdt's CLI
// and config accept: an integer followed by a unit word (days, day,
// d, hours, hour, h, min, minutes, m, s, seconds). No library in the
// corpus covers this exact grammar, so it's hand-rolled; see
// DESIGN.md for why.
package humanduration

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var units = map[string]time.Duration{
	"d": 24 * time.Hour, "day": 24 * time.Hour, "days": 24 * time.Hour,
	"h": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"s": time.Second, "sec": time.Second, "secs": time.Second, "second": time.Second, "seconds": time.Second,
}

// Parse converts s (e.g. "7d", "1day", "90min") into a Duration.
func Parse(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && (s[i] == '-' || (s[i] >= '0' && s[i] <= '9')) {
		i++
	}
	if i == 0 {
		return 0, fmt.Errorf("duration %q has no leading number", s)
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return 0, fmt.Errorf("duration %q: %w", s, err)
	}
	unit := strings.ToLower(strings.TrimSpace(s[i:]))
	scale, ok := units[unit]
	if !ok {
		return 0, fmt.Errorf("duration %q has unrecognized unit %q", s, unit)
	}
	return time.Duration(n) * scale, nil
}
