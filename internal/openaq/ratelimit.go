package openaq

import (
	"net/http"
	"strconv"
)

// Rate-limit response headers sent by the upstream API on every response.
const (
	headerRateLimitUsed      = "X-Ratelimit-Used"
	headerRateLimitRemaining = "X-Ratelimit-Remaining"
	headerRateLimitReset     = "X-Ratelimit-Reset"
)

// remainingSafetyMargin is the request budget below which the client
// blocks until the quota window resets, so the pipeline never runs the
// quota all the way down and starts drawing 429s.
const remainingSafetyMargin = 4

// RateLimit is the normalized rate-limit header triple. Present is false
// when the response carried no rate-limit headers at all, in which case
// the other fields are meaningless and no sleep decision can be made.
type RateLimit struct {
	Used      int
	Remaining int
	Reset     int
	Present   bool
}

// rateLimitFrom extracts the rate-limit triple from response headers.
func rateLimitFrom(h http.Header) RateLimit {
	remaining := h.Get(headerRateLimitRemaining)
	reset := h.Get(headerRateLimitReset)
	if remaining == "" || reset == "" {
		return RateLimit{}
	}

	rl := RateLimit{Present: true}
	rl.Used, _ = strconv.Atoi(h.Get(headerRateLimitUsed))

	var err error
	if rl.Remaining, err = strconv.Atoi(remaining); err != nil {
		return RateLimit{}
	}
	if rl.Reset, err = strconv.Atoi(reset); err != nil {
		return RateLimit{}
	}
	return rl
}

// ShouldPause reports whether the remaining budget is under the safety
// margin and the caller must block until the reset.
func (rl RateLimit) ShouldPause() bool {
	return rl.Present && rl.Remaining < remainingSafetyMargin
}
