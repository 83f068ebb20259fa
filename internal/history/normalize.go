package history

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/plexwatch/histview/pkg/models"
)

// ErrMissingColumns is returned when the raw input is not shaped like a
// watch history table at all, i.e. one of the required columns is
// absent from every row. This is a single run-level error; blank or
// malformed values inside individual rows never abort a run.
var ErrMissingColumns = errors.New("input is missing required columns")

// Normalize converts raw history rows into typed WatchEvent values, one
// per input row, in input order. Rows are normalized best-effort: an
// unparseable epoch timestamp yields an unknown instant and the derived
// fields that depend on it stay undefined. The only failure mode is a
// structural one, when a required column is missing from the whole
// input.
func Normalize(rows []models.RawRow) ([]models.WatchEvent, error) {
	if len(rows) == 0 {
		return []models.WatchEvent{}, nil
	}

	if missing := missingColumns(rows); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	events := make([]models.WatchEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, normalizeRow(row))
	}
	return events, nil
}

// missingColumns returns the required columns that no row carries.
func missingColumns(rows []models.RawRow) []string {
	seen := make(map[string]bool)
	for _, row := range rows {
		for col := range row {
			seen[col] = true
		}
	}

	var missing []string
	for _, col := range models.RequiredColumns {
		if !seen[col] {
			missing = append(missing, col)
		}
	}
	return missing
}

// CountMalformed reports how many events carry at least one unknown
// instant, i.e. came from rows whose timestamps failed to parse.
func CountMalformed(events []models.WatchEvent) int {
	n := 0
	for _, e := range events {
		if !e.HasStart() || !e.HasStop() {
			n++
		}
	}
	return n
}

func normalizeRow(row models.RawRow) models.WatchEvent {
	event := models.WatchEvent{
		RatingKey:        strings.TrimSpace(row[models.ColRatingKey]),
		Username:         strings.TrimSpace(row[models.ColUsername]),
		MediaType:        strings.TrimSpace(row[models.ColMediaType]),
		Title:            strings.TrimSpace(row[models.ColTitle]),
		ParentTitle:      strings.TrimSpace(row[models.ColParentTitle]),
		GrandparentTitle: strings.TrimSpace(row[models.ColGrandparentTitle]),
		StartedAt:        parseEpoch(row[models.ColStarted]),
		StoppedAt:        parseEpoch(row[models.ColStopped]),
	}

	if event.HasStart() && event.HasStop() {
		event.DurationMinutes = event.StoppedAt.Sub(event.StartedAt).Minutes()
		event.HasDuration = true
	}

	if event.HasStart() {
		event.HourOfDay = event.StartedAt.Hour()
		event.Weekday = event.StartedAt.Weekday().String()
	}

	return event
}

// parseEpoch parses an epoch-seconds value, tolerating fractional
// seconds. A blank or malformed value yields the zero time, the
// unknown-instant sentinel. All instants are kept in UTC so derived
// dates, hours and weekdays do not depend on the host timezone.
func parseEpoch(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}

	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return time.Time{}
	}

	sec := int64(seconds)
	nsec := int64((seconds - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}
