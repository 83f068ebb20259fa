package history

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/plexwatch/histview/pkg/models"
)

// ErrInvalidFilter is returned for a query whose parameters are
// internally inconsistent, e.g. a date range with start after end.
// It is distinct from a valid query that happens to match nothing.
var ErrInvalidFilter = errors.New("invalid filter")

// ValidateFilter checks a FilterSpec for internal consistency. An empty
// user or media-type set is valid (it matches nothing); inconsistent
// bounds are not.
func ValidateFilter(spec models.FilterSpec) error {
	if !spec.StartDate.IsZero() && !spec.EndDate.IsZero() && spec.StartDate.After(spec.EndDate) {
		return fmt.Errorf("%w: start_date %s is after end_date %s",
			ErrInvalidFilter,
			spec.StartDate.Format("2006-01-02"),
			spec.EndDate.Format("2006-01-02"))
	}
	if spec.MinDurationMinutes < 0 {
		return fmt.Errorf("%w: min_duration_minutes must be >= 0, got %v",
			ErrInvalidFilter, spec.MinDurationMinutes)
	}
	return nil
}

// Filter returns the subsequence of events satisfying every predicate
// of the spec, preserving input order. It is pure and total: a
// well-formed spec never fails, and an empty user or media-type set
// simply yields no results.
//
// Events whose duration is undefined are excluded by the min-duration
// predicate even when the bound is zero: an unknown duration cannot be
// shown to satisfy ">= 0". Events whose start instant is unknown are
// excluded whenever the spec is date-bounded.
func Filter(events []models.WatchEvent, spec models.FilterSpec) []models.WatchEvent {
	users := toSet(spec.Users)
	mediaTypes := toSet(spec.MediaTypes)
	dateBounded := spec.DateBounded()

	out := make([]models.WatchEvent, 0, len(events))
	for _, e := range events {
		if _, ok := users[e.Username]; !ok {
			continue
		}
		if _, ok := mediaTypes[e.MediaType]; !ok {
			continue
		}
		if dateBounded {
			if !e.HasStart() {
				continue
			}
			d := dateOf(e.StartedAt)
			if !spec.StartDate.IsZero() && d.Before(dateOf(spec.StartDate)) {
				continue
			}
			if !spec.EndDate.IsZero() && d.After(dateOf(spec.EndDate)) {
				continue
			}
		}
		if !e.HasDuration || e.DurationMinutes < spec.MinDurationMinutes {
			continue
		}
		out = append(out, e)
	}
	return out
}

// SortByDurationDesc returns a copy of events ordered by duration
// descending, the presentation order of the history table. The sort is
// stable, so ties and events with undefined durations (which sort last)
// keep their relative input order.
func SortByDurationDesc(events []models.WatchEvent) []models.WatchEvent {
	out := make([]models.WatchEvent, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.HasDuration != b.HasDuration {
			return a.HasDuration
		}
		if !a.HasDuration {
			return false
		}
		return a.DurationMinutes > b.DurationMinutes
	})
	return out
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// dateOf truncates an instant to its UTC calendar date.
func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
