package resilience

import (
	"math/rand/v2"
	"time"
)

// Backoff returns base doubled per attempt (attempt 1 == base) with a
// symmetric jitter of jitterPct, e.g. 0.2 for ±20%.
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base << min(max(attempt, 1)-1, 30)
	if jitterPct <= 0 {
		return d
	}
	spread := float64(d) * jitterPct
	return d + time.Duration((rand.Float64()*2-1)*spread)
}
