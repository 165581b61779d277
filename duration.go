package keyedstore

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// expiresPattern matches "<integer><unit>" with optional whitespace
// before the unit, e.g. "30s", "10 min", "2H".
var expiresPattern = regexp.MustCompile(`^(\d+)\s*([A-Za-z]+)$`)

var unitMillis = map[string]int64{
	"s":   1000,
	"sec": 1000,
	"m":   60000,
	"min": 60000,
	"h":   3600000,
	"d":   86400000,
}

// ParseExpires converts an expires option into a duration.
//
// Accepted forms:
//   - a time.Duration, used as-is,
//   - a non-negative integer count of milliseconds (any integer kind, or
//     a float with no fractional part),
//   - a string "<integer><unit>" with unit one of s, sec, m, min, h, d
//     (case-insensitive, optional whitespace before the unit).
//
// Anything else fails with ErrConfiguration.
func ParseExpires(expires any) (time.Duration, error) {
	switch v := expires.(type) {
	case time.Duration:
		if v < 0 {
			return 0, fmt.Errorf("%w: expires must not be negative, got %v", ErrConfiguration, v)
		}
		return v, nil
	case string:
		return parseExpiresString(v)
	}

	ms, ok := asFloat(expires)
	if !ok {
		return 0, fmt.Errorf("%w: expires must be a number of milliseconds or a duration string, got %T", ErrConfiguration, expires)
	}
	if ms < 0 || ms != math.Trunc(ms) {
		return 0, fmt.Errorf("%w: expires must be a non-negative integer count of milliseconds, got %v", ErrConfiguration, ms)
	}
	if ms > float64(maxExpiresMillis) {
		return 0, fmt.Errorf("%w: expires %v ms overflows the representable duration", ErrConfiguration, ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// maxExpiresMillis bounds TTLs to what time.Duration can hold
// (about 292 years).
const maxExpiresMillis = int64(math.MaxInt64) / int64(time.Millisecond)

func parseExpiresString(s string) (time.Duration, error) {
	match := expiresPattern.FindStringSubmatch(s)
	if match == nil {
		return 0, fmt.Errorf("%w: malformed duration string %q", ErrConfiguration, s)
	}

	count, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed duration string %q: %v", ErrConfiguration, s, err)
	}

	multiplier, ok := unitMillis[strings.ToLower(match[2])]
	if !ok {
		return 0, fmt.Errorf("%w: unknown duration unit %q in %q", ErrConfiguration, match[2], s)
	}

	if count > maxExpiresMillis/multiplier {
		return 0, fmt.Errorf("%w: duration %q overflows the representable range", ErrConfiguration, s)
	}
	return time.Duration(count*multiplier) * time.Millisecond, nil
}
