// Package humansize parses human-written byte sizes such as "512MB"
// or "1GiB 200MiB" into a plain byte count, building on
// github.com/docker/go-units for the binary/decimal unit grammar
// itself.
package humansize

import (
	"fmt"
	"strings"

	"github.com/docker/go-units"
)

// Parse sums every whitespace-separated size component in s. This
// lets a config value like "1GB 500MB" mean exactly what it looks
// like, which a single-component parser can't express.
func Parse(s string) (int64, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty size")
	}
	var total int64
	for _, f := range fields {
		parse := units.FromHumanSize
		if strings.ContainsAny(f, "iI") {
			// A "Ki"/"Mi"/"Gi"/... infix means a binary (1024-based)
			// multiplier; RAMInBytes is the go-units function that
			// applies those, while FromHumanSize treats every unit as
			// decimal (1000-based).
			parse = units.RAMInBytes
		}
		n, err := parse(f)
		if err != nil {
			return 0, fmt.Errorf("parsing size component %q: %w", f, err)
		}
		total += n
	}
	return total, nil
}
