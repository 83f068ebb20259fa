package history

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/plexwatch/histview/pkg/models"
)

// ErrInvalidGrouping is returned when a caller asks for a grouping
// dimension outside the recognized set. This is a programming error on
// the caller's side, surfaced explicitly instead of being silently
// ignored.
var ErrInvalidGrouping = errors.New("invalid grouping key")

// Aggregate groups events along the requested dimension and computes
// view counts and summed minutes per group. Results are reproducible
// regardless of input order:
//
//   - month and year rows are ordered chronologically ascending;
//   - hour rows are ordered 0-23 ascending, absent hours omitted;
//   - weekday rows always contain all seven days in canonical
//     Monday..Sunday order, zero-filled for days with no events;
//   - user and show rows are ordered by key ascending (use TopN for
//     ranked output).
//
// Events with an unknown start instant contribute to no time-derived
// group. Events with an undefined duration count toward ViewCount and
// add zero minutes.
func Aggregate(events []models.WatchEvent, by models.GroupBy) ([]models.AggregateRow, error) {
	switch by {
	case models.GroupByMonth:
		return sortedRows(accumulate(events, func(e models.WatchEvent) (string, bool) {
			return e.StartedAt.Format("2006-01"), e.HasStart()
		})), nil
	case models.GroupByYear:
		return sortedRows(accumulate(events, func(e models.WatchEvent) (string, bool) {
			return e.StartedAt.Format("2006"), e.HasStart()
		})), nil
	case models.GroupByUser:
		return sortedRows(accumulate(events, func(e models.WatchEvent) (string, bool) {
			return e.Username, true
		})), nil
	case models.GroupByShow:
		return sortedRows(accumulate(events, func(e models.WatchEvent) (string, bool) {
			return e.GrandparentTitle, true
		})), nil
	case models.GroupByHour:
		return aggregateHours(events), nil
	case models.GroupByWeekday:
		return aggregateWeekdays(events), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidGrouping, by)
	}
}

// AggregateYears groups by calendar year, keeping only years within the
// inclusive [minYear, maxYear] range. A zero bound leaves that side
// unbounded. The year range is the extra predicate of the yearly
// summary, independent of the global date-range filter.
func AggregateYears(events []models.WatchEvent, minYear, maxYear int) ([]models.AggregateRow, error) {
	if minYear != 0 && maxYear != 0 && minYear > maxYear {
		return nil, fmt.Errorf("%w: year range [%d, %d] is empty", ErrInvalidFilter, minYear, maxYear)
	}

	return sortedRows(accumulate(events, func(e models.WatchEvent) (string, bool) {
		if !e.HasStart() {
			return "", false
		}
		year := e.StartedAt.Year()
		if minYear != 0 && year < minYear {
			return "", false
		}
		if maxYear != 0 && year > maxYear {
			return "", false
		}
		return strconv.Itoa(year), true
	})), nil
}

// TopN ranks aggregate rows by view count descending, breaking ties by
// key ascending, and truncates to the first n. The ranking is stable
// under any reordering of the input rows.
func TopN(rows []models.AggregateRow, n int) []models.AggregateRow {
	ranked := make([]models.AggregateRow, len(rows))
	copy(ranked, rows)
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].ViewCount != ranked[j].ViewCount {
			return ranked[i].ViewCount > ranked[j].ViewCount
		}
		return ranked[i].Key < ranked[j].Key
	})
	if n >= 0 && n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}

// AggregatePairs computes the sparse user x show matrix: one cell per
// observed (username, grandparent_title) pair, in order of first
// appearance, with per-cell counts and summed minutes. No pair occurs
// twice; missing pairs are implicitly zero.
func AggregatePairs(events []models.WatchEvent) []models.PairRow {
	index := make(map[[2]string]int)
	rows := make([]models.PairRow, 0)

	for _, e := range events {
		key := [2]string{e.Username, e.GrandparentTitle}
		i, ok := index[key]
		if !ok {
			i = len(rows)
			index[key] = i
			rows = append(rows, models.PairRow{Username: e.Username, Show: e.GrandparentTitle})
		}
		rows[i].ViewCount++
		if e.HasDuration {
			rows[i].TotalMinutes += e.DurationMinutes
		}
	}
	return rows
}

// ExpandCrossTab densifies the pairwise aggregate into a full matrix
// with both axes sorted ascending and zeroes for unobserved pairs.
func ExpandCrossTab(pairs []models.PairRow) *models.CrossTab {
	userIdx := make(map[string]int)
	showIdx := make(map[string]int)
	var users, shows []string

	for _, p := range pairs {
		if _, ok := userIdx[p.Username]; !ok {
			userIdx[p.Username] = 0
			users = append(users, p.Username)
		}
		if _, ok := showIdx[p.Show]; !ok {
			showIdx[p.Show] = 0
			shows = append(shows, p.Show)
		}
	}

	sort.Strings(users)
	sort.Strings(shows)
	for i, u := range users {
		userIdx[u] = i
	}
	for j, s := range shows {
		showIdx[s] = j
	}

	counts := make([][]int64, len(users))
	for i := range counts {
		counts[i] = make([]int64, len(shows))
	}
	for _, p := range pairs {
		counts[userIdx[p.Username]][showIdx[p.Show]] = p.ViewCount
	}

	return &models.CrossTab{Users: users, Shows: shows, Counts: counts}
}

// keyFunc derives the grouping key for an event; ok=false means the
// event belongs to no group along this dimension.
type keyFunc func(models.WatchEvent) (string, bool)

func accumulate(events []models.WatchEvent, key keyFunc) map[string]*models.AggregateRow {
	groups := make(map[string]*models.AggregateRow)
	for _, e := range events {
		k, ok := key(e)
		if !ok {
			continue
		}
		row, ok := groups[k]
		if !ok {
			row = &models.AggregateRow{Key: k}
			groups[k] = row
		}
		row.ViewCount++
		if e.HasDuration {
			row.TotalMinutes += e.DurationMinutes
		}
	}
	return groups
}

func sortedRows(groups map[string]*models.AggregateRow) []models.AggregateRow {
	rows := make([]models.AggregateRow, 0, len(groups))
	for _, row := range groups {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows
}

func aggregateHours(events []models.WatchEvent) []models.AggregateRow {
	var counts [24]int64
	var minutes [24]float64
	for _, e := range events {
		if !e.HasStart() {
			continue
		}
		h := e.HourOfDay
		counts[h]++
		if e.HasDuration {
			minutes[h] += e.DurationMinutes
		}
	}

	rows := make([]models.AggregateRow, 0, 24)
	for h := 0; h < 24; h++ {
		if counts[h] == 0 {
			continue
		}
		rows = append(rows, models.AggregateRow{
			Key:          strconv.Itoa(h),
			ViewCount:    counts[h],
			TotalMinutes: minutes[h],
		})
	}
	return rows
}

// aggregateWeekdays always emits all seven weekday rows in canonical
// order so downstream consumers can render a complete week.
func aggregateWeekdays(events []models.WatchEvent) []models.AggregateRow {
	groups := accumulate(events, func(e models.WatchEvent) (string, bool) {
		return e.Weekday, e.HasStart()
	})

	rows := make([]models.AggregateRow, 0, len(models.WeekdayOrder))
	for _, day := range models.WeekdayOrder {
		row := models.AggregateRow{Key: day}
		if g, ok := groups[day]; ok {
			row.ViewCount = g.ViewCount
			row.TotalMinutes = g.TotalMinutes
		}
		rows = append(rows, row)
	}
	return rows
}
