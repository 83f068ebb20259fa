package history

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/plexwatch/histview/internal/logging"
	"github.com/plexwatch/histview/internal/tracing"
	"github.com/plexwatch/histview/pkg/models"
)

// ResultCache memoizes computed query results. Caching is optional and
// must be invisible to correctness: a cached result for identical
// inputs equals the freshly computed one, which the deterministic core
// guarantees.
type ResultCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Service runs analytics queries over one immutable snapshot of the
// watch history. The snapshot is normalized once at construction time
// and read-only afterwards; every query takes its own FilterSpec and
// computes fresh result rows.
type Service struct {
	events    []models.WatchEvent
	datasetID string
	logger    *logging.Logger
	cache     ResultCache
	cacheTTL  time.Duration
}

// NewService creates an analytics service over a normalized snapshot.
// datasetID identifies the underlying dataset (the loader's content
// fingerprint) and prefixes every cache key.
func NewService(events []models.WatchEvent, datasetID string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Service{
		events:    events,
		datasetID: datasetID,
		logger:    logger,
	}
}

// EnableCache attaches a result cache. A nil cache leaves memoization
// disabled; queries always recompute.
func (s *Service) EnableCache(c ResultCache, ttl time.Duration) {
	s.cache = c
	s.cacheTTL = ttl
}

// Events returns the full normalized snapshot, unfiltered. Malformed
// source rows appear here with their undefined fields intact.
func (s *Service) Events() []models.WatchEvent {
	return s.events
}

// DatasetID returns the fingerprint of the underlying dataset.
func (s *Service) DatasetID() string {
	return s.datasetID
}

// Usernames returns the distinct viewers in the snapshot, sorted. The
// interactive surface uses this to expand an omitted user selection
// into "everyone".
func (s *Service) Usernames() []string {
	return s.distinct(func(e models.WatchEvent) string { return e.Username })
}

// MediaTypes returns the distinct media types in the snapshot, sorted.
func (s *Service) MediaTypes() []string {
	return s.distinct(func(e models.WatchEvent) string { return e.MediaType })
}

// DateRange returns the earliest and latest known start dates in the
// snapshot. Both are zero when no event has a known start.
func (s *Service) DateRange() (min, max time.Time) {
	for _, e := range s.events {
		if !e.HasStart() {
			continue
		}
		d := dateOf(e.StartedAt)
		if min.IsZero() || d.Before(min) {
			min = d
		}
		if max.IsZero() || d.After(max) {
			max = d
		}
	}
	return min, max
}

// YearRange returns the earliest and latest years with known starts,
// or zeros for an empty snapshot.
func (s *Service) YearRange() (min, max int) {
	lo, hi := s.DateRange()
	if lo.IsZero() {
		return 0, 0
	}
	return lo.Year(), hi.Year()
}

// History returns the filtered raw table in presentation order:
// duration descending, undefined durations last.
func (s *Service) History(ctx context.Context, spec models.FilterSpec) ([]models.WatchEvent, error) {
	span, _ := tracing.StartSpan(ctx, "history.table")
	defer tracing.FinishSpan(span)

	if err := ValidateFilter(spec); err != nil {
		return nil, err
	}
	return SortByDurationDesc(Filter(s.events, spec)), nil
}

// MonthlySummary aggregates the filtered set by calendar month,
// chronologically ascending.
func (s *Service) MonthlySummary(ctx context.Context, spec models.FilterSpec) ([]models.AggregateRow, error) {
	return s.summary(ctx, queryKey{Query: "monthly", Spec: spec}, func(filtered []models.WatchEvent) ([]models.AggregateRow, error) {
		return Aggregate(filtered, models.GroupByMonth)
	})
}

// YearlySummary aggregates the filtered set by calendar year,
// additionally restricted to the inclusive [minYear, maxYear] range
// (zero bounds are open). The year range applies only to this query.
func (s *Service) YearlySummary(ctx context.Context, spec models.FilterSpec, minYear, maxYear int) ([]models.AggregateRow, error) {
	return s.summary(ctx, queryKey{Query: "yearly", Spec: spec, MinYear: minYear, MaxYear: maxYear}, func(filtered []models.WatchEvent) ([]models.AggregateRow, error) {
		return AggregateYears(filtered, minYear, maxYear)
	})
}

// UserSummary ranks viewers by view count descending (ties broken by
// username ascending) and keeps the top n.
func (s *Service) UserSummary(ctx context.Context, spec models.FilterSpec, n int) ([]models.AggregateRow, error) {
	if err := validateTopN(n); err != nil {
		return nil, err
	}
	return s.summary(ctx, queryKey{Query: "users", Spec: spec, TopN: n}, func(filtered []models.WatchEvent) ([]models.AggregateRow, error) {
		rows, err := Aggregate(filtered, models.GroupByUser)
		if err != nil {
			return nil, err
		}
		return TopN(rows, n), nil
	})
}

// ShowSummary ranks shows (grandparent titles) by view count descending
// and keeps the top n.
func (s *Service) ShowSummary(ctx context.Context, spec models.FilterSpec, n int) ([]models.AggregateRow, error) {
	if err := validateTopN(n); err != nil {
		return nil, err
	}
	return s.summary(ctx, queryKey{Query: "shows", Spec: spec, TopN: n}, func(filtered []models.WatchEvent) ([]models.AggregateRow, error) {
		rows, err := Aggregate(filtered, models.GroupByShow)
		if err != nil {
			return nil, err
		}
		return TopN(rows, n), nil
	})
}

// HourlySummary aggregates the filtered set by hour of day, 0-23.
func (s *Service) HourlySummary(ctx context.Context, spec models.FilterSpec) ([]models.AggregateRow, error) {
	return s.summary(ctx, queryKey{Query: "hourly", Spec: spec}, func(filtered []models.WatchEvent) ([]models.AggregateRow, error) {
		return Aggregate(filtered, models.GroupByHour)
	})
}

// WeekdaySummary aggregates the filtered set by weekday. The result
// always has exactly seven rows in Monday..Sunday order.
func (s *Service) WeekdaySummary(ctx context.Context, spec models.FilterSpec) ([]models.AggregateRow, error) {
	return s.summary(ctx, queryKey{Query: "weekday", Spec: spec}, func(filtered []models.WatchEvent) ([]models.AggregateRow, error) {
		return Aggregate(filtered, models.GroupByWeekday)
	})
}

// UserShowMatrix computes the dense user x show view-count cross-tab
// for the heatmap consumer.
func (s *Service) UserShowMatrix(ctx context.Context, spec models.FilterSpec) (*models.CrossTab, error) {
	span, ctx := tracing.StartSpan(ctx, "history.user_show_matrix")
	defer tracing.FinishSpan(span)

	if err := ValidateFilter(spec); err != nil {
		return nil, err
	}

	key, err := s.cacheKey(queryKey{Query: "heatmap", Spec: spec})
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		var cached models.CrossTab
		if hit, err := s.cache.GetJSON(ctx, key, &cached); err == nil && hit {
			s.logger.LogCacheAccess(key, true)
			return &cached, nil
		}
		s.logger.LogCacheAccess(key, false)
	}

	ct := ExpandCrossTab(AggregatePairs(Filter(s.events, spec)))
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, ct, s.cacheTTL); err != nil {
			s.logger.ErrorWithErr("failed to cache cross-tab", err)
		}
	}
	return ct, nil
}

// Dashboard computes the overview: headline totals plus top-5 shows and
// users for the filtered set.
func (s *Service) Dashboard(ctx context.Context, spec models.FilterSpec) (*models.Overview, error) {
	span, _ := tracing.StartSpan(ctx, "history.dashboard")
	defer tracing.FinishSpan(span)

	if err := ValidateFilter(spec); err != nil {
		return nil, err
	}
	filtered := Filter(s.events, spec)

	users := make(map[string]struct{})
	var totalMinutes float64
	for _, e := range filtered {
		users[e.Username] = struct{}{}
		if e.HasDuration {
			totalMinutes += e.DurationMinutes
		}
	}

	byShow, err := Aggregate(filtered, models.GroupByShow)
	if err != nil {
		return nil, err
	}
	byUser, err := Aggregate(filtered, models.GroupByUser)
	if err != nil {
		return nil, err
	}

	return &models.Overview{
		TotalEntries: int64(len(filtered)),
		UniqueUsers:  int64(len(users)),
		TotalMinutes: totalMinutes,
		TopShows:     TopN(byShow, 5),
		TopUsers:     TopN(byUser, 5),
	}, nil
}

// summary runs the shared validate / cache / filter / aggregate path
// for every single-dimension summary query.
func (s *Service) summary(ctx context.Context, qk queryKey, compute func([]models.WatchEvent) ([]models.AggregateRow, error)) ([]models.AggregateRow, error) {
	span, ctx := tracing.StartSpan(ctx, "history."+qk.Query)
	defer tracing.FinishSpan(span)

	start := time.Now()
	if err := ValidateFilter(qk.Spec); err != nil {
		return nil, err
	}

	key, err := s.cacheKey(qk)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		var cached []models.AggregateRow
		if hit, err := s.cache.GetJSON(ctx, key, &cached); err == nil && hit {
			s.logger.LogCacheAccess(key, true)
			s.logger.LogQuery(qk.Query, len(cached), true, time.Since(start))
			return cached, nil
		}
		s.logger.LogCacheAccess(key, false)
	}

	rows, err := compute(Filter(s.events, qk.Spec))
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, rows, s.cacheTTL); err != nil {
			s.logger.ErrorWithErr("failed to cache summary", err)
		}
	}
	s.logger.LogQuery(qk.Query, len(rows), false, time.Since(start))
	return rows, nil
}

// queryKey is the canonical identity of a query against one dataset;
// its JSON form is hashed into the cache key.
type queryKey struct {
	Query   string            `json:"query"`
	Spec    models.FilterSpec `json:"spec"`
	TopN    int               `json:"top_n,omitempty"`
	MinYear int               `json:"min_year,omitempty"`
	MaxYear int               `json:"max_year,omitempty"`
}

func (s *Service) cacheKey(qk queryKey) (string, error) {
	payload, err := json.Marshal(qk)
	if err != nil {
		return "", fmt.Errorf("failed to build cache key: %w", err)
	}
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("histview:%s:%s:%x", s.datasetID, qk.Query, sum[:8]), nil
}

func validateTopN(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: top_n must be >= 1, got %d", ErrInvalidFilter, n)
	}
	return nil
}

func (s *Service) distinct(field func(models.WatchEvent) string) []string {
	seen := make(map[string]struct{})
	var values []string
	for _, e := range s.events {
		v := field(e)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}
