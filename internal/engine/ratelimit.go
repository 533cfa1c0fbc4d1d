package engine

import (
	"math"

	"golang.org/x/time/rate"
)

// NewOpsLimiter creates a rate.Limiter that caps native mutation calls to
// opsPerSec. The burst allows one second worth of calls. A non-positive
// rate returns nil, which the engine treats as unlimited.
func NewOpsLimiter(opsPerSec float64) *rate.Limiter {
	if opsPerSec <= 0 {
		return nil
	}
	burst := max(int(math.Ceil(opsPerSec)), 1)
	return rate.NewLimiter(rate.Limit(opsPerSec), burst)
}
