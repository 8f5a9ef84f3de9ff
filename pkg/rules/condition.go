package rules

import (
	"slices"
	"sync"
	"time"
)

// Event is an application signal submitted for rule evaluation.
type Event struct {
	Name       string
	Payload    map[string]any
	Recipients []string
	At         time.Time
}

// MetricSample is the latest observed value of a named metric.
type MetricSample struct {
	Name  string
	Value float64
	At    time.Time
}

// patternBuffer tracks recent occurrences for an event-pattern condition.
// It is a bounded ring: entries older than the window are pruned on every
// observation, and the buffer never holds more than the required count, so
// memory per rule stays constant regardless of event volume.
type patternBuffer struct {
	mu     sync.Mutex
	window time.Duration
	need   int
	stamps []time.Time
}

func newPatternBuffer(need int, window time.Duration) *patternBuffer {
	return &patternBuffer{
		window: window,
		need:   need,
		stamps: make([]time.Time, 0, need),
	}
}

// observe records one occurrence and reports whether the pattern completed:
// at least need occurrences within the trailing window. A completed pattern
// consumes its occurrences, so the next fire requires a fresh run of events.
func (b *patternBuffer) observe(at time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := at.Add(-b.window)
	kept := b.stamps[:0]
	for _, ts := range b.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	b.stamps = append(kept, at)

	if len(b.stamps) >= b.need {
		b.stamps = b.stamps[:0]
		return true
	}
	return false
}

// matchesEvent reports whether an event-pattern condition watches the given
// event name.
func (c Condition) matchesEvent(name string) bool {
	return slices.Contains(c.Events, name)
}
