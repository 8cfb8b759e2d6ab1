package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses either a Go duration string ("30s", "5m") or a plain
// number of seconds from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var seconds int64
	if err := value.Decode(&seconds); err != nil {
		return fmt.Errorf("invalid duration value: %w", err)
	}
	*d = Duration(time.Duration(seconds) * time.Second)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
