// Package ratelimit paces posting so the bot stays inside a comments-per-hour
// envelope.
package ratelimit

import "time"

// FallbackMaxSeconds is the upper bound used when the envelope is invalid.
const FallbackMaxSeconds = 70

// Envelope is the pacing configuration read from the bot settings.
type Envelope struct {
	MinDelaySeconds    int
	CommentsPerHourMin int
	CommentsPerHourMax int
}

// Window is the half-open range [Min, Max) a delay is drawn from.
type Window struct {
	Min time.Duration
	Max time.Duration
}

// Valid reports whether the per-hour bounds make sense.
func (e Envelope) Valid() bool {
	return e.CommentsPerHourMin > 0 && e.CommentsPerHourMin <= e.CommentsPerHourMax
}

// ComputeWindow turns an envelope into a delay window. The slowest allowed
// rate sets the upper bound and the fastest rate, floored by the minimum
// delay, sets the lower bound. An invalid envelope falls back to
// [min_delay, max(70, min_delay+1)).
func ComputeWindow(e Envelope) Window {
	minDelay := e.MinDelaySeconds
	if minDelay < 0 {
		minDelay = 0
	}

	if !e.Valid() {
		hi := FallbackMaxSeconds
		if minDelay+1 > hi {
			hi = minDelay + 1
		}
		return seconds(minDelay, hi)
	}

	hi := time.Hour / time.Duration(e.CommentsPerHourMin)
	lo := time.Hour / time.Duration(e.CommentsPerHourMax)
	if floor := time.Duration(minDelay) * time.Second; floor > lo {
		lo = floor
	}
	if lo >= hi {
		lo = hi - time.Second
	}
	if lo < 0 {
		lo = 0
	}
	if hi < lo+time.Second {
		hi = lo + time.Second
	}
	return Window{Min: lo, Max: hi}
}

func seconds(lo, hi int) Window {
	return Window{Min: time.Duration(lo) * time.Second, Max: time.Duration(hi) * time.Second}
}

// Sample draws a delay uniformly from w. randN must return a value in [0, n).
func (w Window) Sample(randN func(n int64) int64) time.Duration {
	span := int64(w.Max - w.Min)
	if span <= 0 {
		return w.Min
	}
	return w.Min + time.Duration(randN(span))
}
