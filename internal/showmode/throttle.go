package showmode

import "golang.org/x/time/rate"

// throttleRate is 20 datagrams/s/lamp, the inverse of the 50 ms minimum
// inter-datagram interval from spec section 3. Burst of 1 means a lamp
// that was throttled does not accumulate credit — the next allowed send
// is whatever the mode policy produces at the first non-throttled tick,
// never a batch of queued updates.
const throttleRate = 20

// Throttle enforces the per-lamp 50 ms minimum command spacing.
type Throttle struct {
	limiters []*rate.Limiter
}

// NewThrottle returns a Throttle sized for n lamps.
func NewThrottle(n int) *Throttle {
	limiters := make([]*rate.Limiter, n)
	for i := range limiters {
		limiters[i] = rate.NewLimiter(throttleRate, 1)
	}
	return &Throttle{limiters: limiters}
}

// Allow reports whether lamp idx may send now, consuming its token if so.
func (t *Throttle) Allow(idx int) bool {
	if idx < 0 || idx >= len(t.limiters) {
		return false
	}
	return t.limiters[idx].Allow()
}

// ResetColor and ResetBrightness are the warm-white reset command sent
// to every lamp on stop (spec section 4.D). Reset bypasses the throttle.
var ResetColor = RGB{R: 255, G: 180, B: 100}

const ResetBrightness = 50
