package config

import (
	"fmt"
	"time"
)

// Duration is a time.Duration that unmarshals from YAML as either a Go
// duration string ("1.5s", "200ms") or a bare number of seconds. The
// numeric form matches the DELAY environment variable, which is always
// seconds, so "delay: 2" and DELAY=2 configure the same pause.
type Duration struct {
	time.Duration
}

// DurationFrom wraps a standard time.Duration.
func DurationFrom(d time.Duration) Duration {
	return Duration{Duration: d}
}

// IsZero reports whether the duration is zero.
func (d Duration) IsZero() bool {
	return d.Duration == 0
}

// MarshalYAML emits the duration in Go string form.
func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}

// UnmarshalYAML accepts a duration string or numeric seconds.
func (d *Duration) UnmarshalYAML(value func(any) error) error {
	var raw any
	if err := value(&raw); err != nil {
		return err
	}
	parsed, err := parseDurationValue(raw)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func parseDurationValue(raw any) (time.Duration, error) {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return 0, nil
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", v, err)
		}
		return parsed, nil
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("unsupported duration value of type %T", raw)
	}
}
