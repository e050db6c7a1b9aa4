package config

import (
	"fmt"
	"strings"
	"time"
)

// Durations in the config file are Go duration strings ("1s", "250ms", "2m").
// path names the field in error messages, e.g. "status.refresh_interval".

// ParseDurationField parses raw, treating blank as 0. Negative values are rejected.
func ParseDurationField(path, raw string) (time.Duration, error) {
	d, _, err := ParseDurationOptional(path, raw)
	return d, err
}

// ParseDurationOptional also reports whether raw was set at all, so callers
// can tell an omitted field from an explicit "0s".
func ParseDurationOptional(path, raw string) (time.Duration, bool, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, true, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, true, fmt.Errorf("%s: duration must be >= 0, got %s", path, d)
	}
	return d, true, nil
}

// ParseDurationOrDefault returns def for a blank or zero value. Timeouts use
// it (call_timeout, monitor.timeout, busy_timeout) since zero would mean "no time at all".
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
