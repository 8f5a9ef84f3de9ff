package scorer

import (
	"slices"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// Profile describes what the engine knows about a recipient when deciding
// how and when to deliver. Identity and permission lookups live outside the
// engine; the profile is handed in by the caller.
type Profile struct {
	RecipientID       string
	Addresses         map[notification.Channel]string // channel -> deliverable address
	PreferredChannels []notification.Channel
	QuietHours        *QuietHours
	EngagementRates   map[string]float64 // notification type -> historical engagement [0,1]
}

// QuietHours is a daily window (UTC hours) during which non-critical
// notifications are deferred. The window may wrap midnight.
type QuietHours struct {
	Start int // inclusive, 0-23
	End   int // exclusive, 0-23
}

// Contains reports whether the given instant falls inside the window.
func (q QuietHours) Contains(at time.Time) bool {
	h := at.UTC().Hour()
	if q.Start == q.End {
		return false
	}
	if q.Start < q.End {
		return h >= q.Start && h < q.End
	}
	// Wraps midnight.
	return h >= q.Start || h < q.End
}

// Draft is the candidate notification before persistence.
type Draft struct {
	Type     string
	Priority notification.Priority
	Channels []notification.Channel // channels the template declares
}

// Result is the personalization decision for one recipient.
type Result struct {
	Relevance    float64
	ChannelOrder []notification.Channel
	OptimalTime  time.Time
}

// Scorer decides relevance, channel ordering, and delivery timing for a
// candidate notification. Implementations must be pure functions of their
// inputs - no external I/O - so they are trivially testable and replaceable.
type Scorer interface {
	Score(profile Profile, draft Draft, now time.Time) Result
}

// Func adapts a plain function to the Scorer interface.
type Func func(profile Profile, draft Draft, now time.Time) Result

func (f Func) Score(profile Profile, draft Draft, now time.Time) Result {
	return f(profile, draft, now)
}

// RuleBased is the default Scorer implementation: relevance from priority
// and historical engagement, channel order from recipient preference
// constrained to template compatibility, and timing shifted out of quiet
// hours for anything below high priority.
type RuleBased struct{}

// NewRuleBased creates the default rule-based scorer.
func NewRuleBased() RuleBased {
	return RuleBased{}
}

func (RuleBased) Score(profile Profile, draft Draft, now time.Time) Result {
	return Result{
		Relevance:    relevance(profile, draft),
		ChannelOrder: channelOrder(profile, draft),
		OptimalTime:  optimalTime(profile, draft, now),
	}
}

func relevance(profile Profile, draft Draft) float64 {
	base := map[notification.Priority]float64{
		notification.PriorityLow:      0.2,
		notification.PriorityMedium:   0.4,
		notification.PriorityHigh:     0.6,
		notification.PriorityCritical: 0.8,
		notification.PriorityUrgent:   0.95,
	}[draft.Priority]
	if base == 0 {
		base = 0.4
	}

	score := base
	if rate, ok := profile.EngagementRates[draft.Type]; ok {
		// Engagement nudges the priority baseline by up to ±0.2.
		score += (rate - 0.5) * 0.4
	}

	return min(max(score, 0), 1)
}

func channelOrder(profile Profile, draft Draft) []notification.Channel {
	reachable := func(c notification.Channel) bool {
		if c == notification.ChannelInApp {
			return true
		}
		_, ok := profile.Addresses[c]
		return ok
	}

	var order []notification.Channel
	for _, c := range profile.PreferredChannels {
		if slices.Contains(draft.Channels, c) && reachable(c) && !slices.Contains(order, c) {
			order = append(order, c)
		}
	}
	for _, c := range draft.Channels {
		if reachable(c) && !slices.Contains(order, c) {
			order = append(order, c)
		}
	}
	return order
}

func optimalTime(profile Profile, draft Draft, now time.Time) time.Time {
	// High and above always deliver immediately.
	if draft.Priority >= notification.PriorityHigh {
		return now
	}
	if profile.QuietHours == nil || !profile.QuietHours.Contains(now) {
		return now
	}

	// Defer to the end of the quiet window.
	end := time.Date(now.UTC().Year(), now.UTC().Month(), now.UTC().Day(),
		profile.QuietHours.End, 0, 0, 0, time.UTC)
	if !end.After(now) {
		end = end.AddDate(0, 0, 1)
	}
	return end
}
