package models

import (
	"time"
)

// RawRow is one unparsed row of the watch history table, keyed by column
// name. Values are kept as raw strings; all parsing happens in the
// normalizer so that malformed fields degrade instead of aborting a run.
type RawRow map[string]string

// Column names required in the raw input. A column missing from the
// entire input is a structural error; a blank value in a single row is
// tolerated and degrades to an unknown field.
const (
	ColRatingKey        = "rating_key"
	ColUsername         = "username"
	ColMediaType        = "media_type"
	ColTitle            = "title"
	ColParentTitle      = "parent_title"
	ColGrandparentTitle = "grandparent_title"
	ColStarted          = "started"
	ColStopped          = "stopped"
)

// RequiredColumns lists every column the normalizer expects to find in
// the raw input, in canonical order.
var RequiredColumns = []string{
	ColRatingKey, ColUsername, ColMediaType, ColTitle,
	ColParentTitle, ColGrandparentTitle, ColStarted, ColStopped,
}

// WatchEvent is one normalized playback record: who watched what, when,
// for how long. Events are immutable once normalized. A zero StartedAt
// or StoppedAt means the source timestamp could not be parsed; derived
// fields that depend on an unknown instant are flagged invalid rather
// than guessed.
type WatchEvent struct {
	RatingKey        string    `json:"rating_key"`
	Username         string    `json:"username"`
	MediaType        string    `json:"media_type"`
	Title            string    `json:"title"`
	ParentTitle      string    `json:"parent_title,omitempty"`
	GrandparentTitle string    `json:"grandparent_title,omitempty"`
	StartedAt        time.Time `json:"started_at,omitempty"` // zero = unknown
	StoppedAt        time.Time `json:"stopped_at,omitempty"` // zero = unknown
	DurationMinutes  float64   `json:"duration_minutes"`     // valid only if HasDuration
	HasDuration      bool      `json:"has_duration"`
	HourOfDay        int       `json:"hour_of_day"`       // valid only if HasStart()
	Weekday          string    `json:"weekday,omitempty"` // valid only if HasStart()
}

// HasStart reports whether the start instant of the event is known.
func (e WatchEvent) HasStart() bool {
	return !e.StartedAt.IsZero()
}

// HasStop reports whether the stop instant of the event is known.
func (e WatchEvent) HasStop() bool {
	return !e.StoppedAt.IsZero()
}

// FilterSpec is the conjunctive predicate narrowing the event set before
// aggregation or display. All predicates must hold for an event to be
// retained. An empty Users or MediaTypes set matches nothing: callers
// that want "all" must enumerate the values explicitly.
type FilterSpec struct {
	Users              []string  `json:"users"`
	MediaTypes         []string  `json:"media_types"`
	StartDate          time.Time `json:"start_date,omitempty"` // zero = unbounded
	EndDate            time.Time `json:"end_date,omitempty"`   // zero = unbounded
	MinDurationMinutes float64   `json:"min_duration_minutes"`
}

// DateBounded reports whether the spec constrains the calendar date of
// the start instant. Events with an unknown start are excluded from any
// date-bounded query.
func (s FilterSpec) DateBounded() bool {
	return !s.StartDate.IsZero() || !s.EndDate.IsZero()
}

// GroupBy identifies the dimension along which events are aggregated.
type GroupBy string

const (
	GroupByMonth   GroupBy = "month"
	GroupByYear    GroupBy = "year"
	GroupByUser    GroupBy = "user"
	GroupByShow    GroupBy = "show" // grandparent_title
	GroupByHour    GroupBy = "hour"
	GroupByWeekday GroupBy = "weekday"
)

// WeekdayOrder is the canonical weekly order used by weekday
// aggregation. Weekday summaries always contain exactly these seven
// labels, in this order, zero-filled for days with no events.
var WeekdayOrder = []string{
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
}

// AggregateRow is one group's computed metrics: the number of events in
// the group and the sum of their defined durations. Events whose
// duration is unknown count toward ViewCount and contribute zero
// minutes.
type AggregateRow struct {
	Key          string  `json:"key"`
	ViewCount    int64   `json:"view_count"`
	TotalMinutes float64 `json:"total_minutes"`
}

// PairRow is one cell of the sparse user x show matrix: metrics for all
// events by one user on one show. Missing pairs are implicitly zero.
type PairRow struct {
	Username     string  `json:"username"`
	Show         string  `json:"show"`
	ViewCount    int64   `json:"view_count"`
	TotalMinutes float64 `json:"total_minutes"`
}

// CrossTab is the dense expansion of the pairwise aggregate: one row per
// user, one column per show, view counts filled with zero for
// unobserved pairs. Axes are sorted ascending so the expansion is
// reproducible regardless of input order.
type CrossTab struct {
	Users  []string  `json:"users"`
	Shows  []string  `json:"shows"`
	Counts [][]int64 `json:"counts"` // Counts[i][j] = views of Shows[j] by Users[i]
}

// Overview is the dashboard summary: headline totals plus the top-5
// ranked shows and users for the filtered set.
type Overview struct {
	TotalEntries int64          `json:"total_entries"`
	UniqueUsers  int64          `json:"unique_users"`
	TotalMinutes float64        `json:"total_minutes"`
	TopShows     []AggregateRow `json:"top_shows"`
	TopUsers     []AggregateRow `json:"top_users"`
}
