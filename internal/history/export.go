package history

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/plexwatch/histview/pkg/models"
)

// Column names one exported CSV column: the field to read from each row
// and an optional header rename. An empty Header exports the field name
// itself.
type Column struct {
	Field  string
	Header string
}

func (c Column) header() string {
	if c.Header != "" {
		return c.Header
	}
	return c.Field
}

// timeLayout is the fixed layout for exported instants. Everything is
// rendered in UTC so repeated exports of the same data are identical
// byte for byte on any host.
const timeLayout = "2006-01-02 15:04:05"

// MarshalCSV serializes uniformly-shaped rows to RFC 4180 CSV: a UTF-8
// header line followed by one line per row in input order, with
// standard quoting for fields containing the delimiter, quotes or line
// breaks. Output is deterministic given the same rows and column spec.
// A field absent from a row exports as an empty value.
func MarshalCSV(columns []Column, rows []map[string]string) ([]byte, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("export requires at least one column")
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := make([]string, len(columns))
	for i, col := range columns {
		header[i] = col.header()
	}
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(columns))
	for _, row := range rows {
		for i, col := range columns {
			record[i] = row[col.Field]
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// EventRows flattens events into exportable rows. Unknown instants and
// undefined durations render as empty fields, matching how they appear
// in the raw table.
func EventRows(events []models.WatchEvent) []map[string]string {
	rows := make([]map[string]string, 0, len(events))
	for _, e := range events {
		rows = append(rows, map[string]string{
			models.ColRatingKey:        e.RatingKey,
			models.ColUsername:         e.Username,
			models.ColMediaType:        e.MediaType,
			models.ColTitle:            e.Title,
			models.ColParentTitle:      e.ParentTitle,
			models.ColGrandparentTitle: e.GrandparentTitle,
			"started_at":               formatInstant(e.StartedAt),
			"stopped_at":               formatInstant(e.StoppedAt),
			"duration_minutes":         formatDuration(e),
		})
	}
	return rows
}

// AggregateRows flattens aggregate rows for export, naming the key
// column after the grouping dimension.
func AggregateRows(keyField string, rows []models.AggregateRow) []map[string]string {
	out := make([]map[string]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, map[string]string{
			keyField:  r.Key,
			"views":   strconv.FormatInt(r.ViewCount, 10),
			"minutes": FormatMinutes(r.TotalMinutes),
		})
	}
	return out
}

// CrossTabRows flattens the dense user x show matrix: one row per user,
// one column per show. The returned columns start with the username
// column followed by one column per show, in the matrix's axis order.
// Show columns are keyed under a prefixed field name so a show that
// happens to be titled "username" cannot collide with the user column;
// the rendered headers are still the bare show titles.
func CrossTabRows(ct *models.CrossTab) ([]Column, []map[string]string) {
	columns := make([]Column, 0, len(ct.Shows)+1)
	columns = append(columns, Column{Field: models.ColUsername})
	for _, show := range ct.Shows {
		columns = append(columns, Column{Field: showField(show), Header: show})
	}

	rows := make([]map[string]string, 0, len(ct.Users))
	for i, user := range ct.Users {
		row := make(map[string]string, len(ct.Shows)+1)
		row[models.ColUsername] = user
		for j, show := range ct.Shows {
			row[showField(show)] = strconv.FormatInt(ct.Counts[i][j], 10)
		}
		rows = append(rows, row)
	}
	return columns, rows
}

func showField(show string) string {
	return "show:" + show
}

// FormatMinutes renders a minute total with the shortest exact decimal
// representation. Locale-independent by construction.
func FormatMinutes(minutes float64) string {
	return strconv.FormatFloat(minutes, 'f', -1, 64)
}

func formatInstant(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func formatDuration(e models.WatchEvent) string {
	if !e.HasDuration {
		return ""
	}
	return FormatMinutes(e.DurationMinutes)
}
