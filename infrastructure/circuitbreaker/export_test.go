package circuitbreaker

import "time"

// WithClock swaps the clock used by a breaker config.
func WithClock(cfg Config, now func() time.Time) Config {
	cfg.now = now
	return cfg
}
