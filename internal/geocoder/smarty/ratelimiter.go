package smarty

import (
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// LimiterConfig describes a leaky-bucket rate limiter: a bucket that
// starts at Initial tokens (not necessarily full), refills continuously
// at PerSecond, and never holds more than Max.
type LimiterConfig struct {
	Initial   int
	Max       int
	PerSecond float64
}

// NewLimiter builds a golang.org/x/time/rate.Limiter seeded at
// cfg.Initial tokens. rate.Limiter always starts at its burst (Max)
// capacity, so when Initial < Max this immediately drains the
// difference to bring the bucket down to the configured starting level.
// clock is injected so tests can assert on deterministic wait behavior
// with a clockwork.FakeClock instead of real time.
func NewLimiter(cfg LimiterConfig, clock clockwork.Clock) *rate.Limiter {
	l := rate.NewLimiter(rate.Limit(cfg.PerSecond), cfg.Max)
	if cfg.Max > cfg.Initial {
		l.AllowN(clock.Now(), cfg.Max-cfg.Initial)
	}
	return l
}
