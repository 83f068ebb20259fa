package history

import (
	"context"

	"github.com/plexwatch/histview/pkg/models"
)

// Canonical export filenames, matching the downloads the original
// viewer offered.
const (
	ExportFileHistory = "history_filtered.csv"
	ExportFileMonthly = "monthly_summary.csv"
	ExportFileYearly  = "yearly_summary.csv"
	ExportFileUsers   = "user_summary.csv"
	ExportFileShows   = "show_summary.csv"
	ExportFileHeatmap = "user_show_heatmap.csv"
	ExportFileHourly  = "hourly_summary.csv"
	ExportFileWeekday = "weekday_summary.csv"
)

// historyColumns are the display columns of the history table, with the
// viewer's renames.
var historyColumns = []Column{
	{Field: models.ColUsername, Header: "User"},
	{Field: models.ColMediaType, Header: "Media Type"},
	{Field: models.ColTitle, Header: "Title"},
	{Field: models.ColParentTitle, Header: "Episode"},
	{Field: models.ColGrandparentTitle, Header: "Show"},
	{Field: "started_at", Header: "Start Time"},
	{Field: "stopped_at", Header: "Stop Time"},
	{Field: "duration_minutes", Header: "Duration (min)"},
}

// ExportHistory serializes the filtered history table to canonical CSV.
func (s *Service) ExportHistory(ctx context.Context, spec models.FilterSpec) ([]byte, error) {
	events, err := s.History(ctx, spec)
	if err != nil {
		return nil, err
	}
	return MarshalCSV(historyColumns, EventRows(events))
}

// ExportRaw serializes the entire unfiltered snapshot, including rows
// whose timestamps failed to parse; their derived fields export as
// empty values.
func (s *Service) ExportRaw(ctx context.Context) ([]byte, error) {
	cols := make([]Column, 0, len(historyColumns)+1)
	cols = append(cols, Column{Field: models.ColRatingKey})
	cols = append(cols, historyColumns...)
	return MarshalCSV(cols, EventRows(s.events))
}

// ExportMonthly serializes the monthly summary.
func (s *Service) ExportMonthly(ctx context.Context, spec models.FilterSpec) ([]byte, error) {
	rows, err := s.MonthlySummary(ctx, spec)
	if err != nil {
		return nil, err
	}
	return exportAggregate("month", rows)
}

// ExportYearly serializes the yearly summary.
func (s *Service) ExportYearly(ctx context.Context, spec models.FilterSpec, minYear, maxYear int) ([]byte, error) {
	rows, err := s.YearlySummary(ctx, spec, minYear, maxYear)
	if err != nil {
		return nil, err
	}
	return exportAggregate("year", rows)
}

// ExportUsers serializes the ranked user summary.
func (s *Service) ExportUsers(ctx context.Context, spec models.FilterSpec, topN int) ([]byte, error) {
	rows, err := s.UserSummary(ctx, spec, topN)
	if err != nil {
		return nil, err
	}
	return exportAggregate(models.ColUsername, rows)
}

// ExportShows serializes the ranked show summary.
func (s *Service) ExportShows(ctx context.Context, spec models.FilterSpec, topN int) ([]byte, error) {
	rows, err := s.ShowSummary(ctx, spec, topN)
	if err != nil {
		return nil, err
	}
	return exportAggregate(models.ColGrandparentTitle, rows)
}

// ExportHourly serializes the hour-of-day summary.
func (s *Service) ExportHourly(ctx context.Context, spec models.FilterSpec) ([]byte, error) {
	rows, err := s.HourlySummary(ctx, spec)
	if err != nil {
		return nil, err
	}
	return exportAggregate("hour", rows)
}

// ExportWeekday serializes the weekday summary.
func (s *Service) ExportWeekday(ctx context.Context, spec models.FilterSpec) ([]byte, error) {
	rows, err := s.WeekdaySummary(ctx, spec)
	if err != nil {
		return nil, err
	}
	return exportAggregate("weekday", rows)
}

// ExportHeatmap serializes the dense user x show matrix, one row per
// user and one column per show.
func (s *Service) ExportHeatmap(ctx context.Context, spec models.FilterSpec) ([]byte, error) {
	ct, err := s.UserShowMatrix(ctx, spec)
	if err != nil {
		return nil, err
	}
	cols, rows := CrossTabRows(ct)
	return MarshalCSV(cols, rows)
}

func exportAggregate(keyField string, rows []models.AggregateRow) ([]byte, error) {
	cols := []Column{
		{Field: keyField},
		{Field: "views"},
		{Field: "minutes"},
	}
	return MarshalCSV(cols, AggregateRows(keyField, rows))
}
