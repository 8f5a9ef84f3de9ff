package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// ChannelStats aggregates delivery attempts for one channel. Read counts a
// read notification against the channel whose attempt succeeded.
type ChannelStats struct {
	Attempts  int `json:"attempts"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Read      int `json:"read"`
}

// Report is one aggregation window over the notification store.
type Report struct {
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`

	Total          int                                   `json:"total"`
	CountsByStatus map[notification.Status]int           `json:"counts_by_status"`
	CountsByType   map[string]int                        `json:"counts_by_type"`
	ByChannel      map[notification.Channel]ChannelStats `json:"by_channel"`

	// ReadInWindow counts notifications read during this window;
	// AvgTimeToRead averages their creation-to-read latency.
	ReadInWindow  int           `json:"read_in_window"`
	AvgTimeToRead time.Duration `json:"avg_time_to_read"`
}

// Aggregator computes reports from the notification store. Sweeps are
// read-only: the aggregator never mutates notification state, so running it
// against a live store is always safe.
type Aggregator struct {
	store notification.Store
	log   *slog.Logger

	// sweepMu serializes sweeps so two concurrent sweeps cannot share a
	// window and double-count its reads; mu guards the snapshot fields so
	// Latest never blocks behind a running sweep.
	sweepMu   sync.Mutex
	mu        sync.Mutex
	lastSweep time.Time
	latest    *Report
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithAggregatorLogger sets the aggregator's logger.
func WithAggregatorLogger(log *slog.Logger) AggregatorOption {
	return func(a *Aggregator) {
		if log != nil {
			a.log = log
		}
	}
}

// NewAggregator creates an aggregator over the given store. The first sweep
// window opens at construction time.
func NewAggregator(store notification.Store, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		store:     store,
		log:       slog.Default(),
		lastSweep: time.Now(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Sweep aggregates the store into a report for the window since the previous
// sweep and advances the window. Counts by status, type, and channel cover
// the whole store; read latency covers only the closing window, so two sweeps
// over the same closed window produce the same numbers.
func (a *Aggregator) Sweep(ctx context.Context, now time.Time) (*Report, error) {
	a.sweepMu.Lock()
	defer a.sweepMu.Unlock()

	a.mu.Lock()
	windowStart := a.lastSweep
	a.mu.Unlock()

	all, err := a.store.List(ctx, notification.Query{})
	if err != nil {
		return nil, err
	}

	report := &Report{
		WindowStart:    windowStart,
		WindowEnd:      now,
		Total:          len(all),
		CountsByStatus: make(map[notification.Status]int),
		CountsByType:   make(map[string]int),
		ByChannel:      make(map[notification.Channel]ChannelStats),
	}

	var totalTimeToRead time.Duration
	for _, n := range all {
		report.CountsByStatus[n.Status]++
		report.CountsByType[n.Type]++

		if n.ReadAt != nil && !n.ReadAt.Before(windowStart) && n.ReadAt.Before(now) {
			report.ReadInWindow++
			totalTimeToRead += n.ReadAt.Sub(n.CreatedAt)
		}

		attempts, err := a.store.ListAttempts(ctx, n.ID)
		if err != nil {
			return nil, err
		}
		for _, att := range attempts {
			stats := report.ByChannel[att.Channel]
			stats.Attempts++
			switch att.Outcome {
			case notification.OutcomeSuccess:
				stats.Delivered++
				if n.ReadAt != nil {
					stats.Read++
				}
			case notification.OutcomePermanentFailure:
				stats.Failed++
			}
			report.ByChannel[att.Channel] = stats
		}
	}
	if report.ReadInWindow > 0 {
		report.AvgTimeToRead = totalTimeToRead / time.Duration(report.ReadInWindow)
	}

	a.mu.Lock()
	a.lastSweep = now
	a.latest = report
	a.mu.Unlock()

	a.log.DebugContext(ctx, "analytics sweep finished",
		"total", report.Total, "read_in_window", report.ReadInWindow)
	return report, nil
}

// Latest returns the most recent report, or nil before the first sweep.
func (a *Aggregator) Latest() *Report {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.latest
}
