// Package metrics provides the fire-and-forget counters and timers recorded around
// engine and interpreter operations.
package metrics

import "time"

// Sink records counters and timings. Implementations must never fail the caller.
type Sink interface {
	Increment(name string, value float64, tags map[string]string)
	RecordTiming(name string, d time.Duration, tags map[string]string)
}

// Noop discards everything.
type Noop struct{}

func (Noop) Increment(string, float64, map[string]string)        {}
func (Noop) RecordTiming(string, time.Duration, map[string]string) {}

// Tags is shorthand for building a tag map from key/value pairs.
func Tags(kv ...string) map[string]string {
	tags := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		tags[kv[i]] = kv[i+1]
	}

	return tags
}
