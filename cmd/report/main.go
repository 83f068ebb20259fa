package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/plexwatch/histview/internal/config"
	"github.com/plexwatch/histview/internal/history"
	"github.com/plexwatch/histview/internal/loader"
	"github.com/plexwatch/histview/internal/logging"
	"github.com/plexwatch/histview/internal/storage"
	"github.com/plexwatch/histview/pkg/models"
)

const dateLayout = "2006-01-02"

// report is a batch exporter: it loads one snapshot of the watch
// history, runs every summary against a single filter, and writes the
// full set of CSV files to an output directory. With -upload the files
// are also persisted to the export store under a fresh run ID.
func main() {
	var (
		configPath  = flag.String("config", "config.yaml", "path to config file")
		outputDir   = flag.String("output", "exports", "directory for the CSV files")
		users       = flag.String("users", "", "comma-separated usernames (default: all)")
		mediaTypes  = flag.String("media-types", "", "comma-separated media types (default: all)")
		startDate   = flag.String("start", "", "start date, YYYY-MM-DD")
		endDate     = flag.String("end", "", "end date, YYYY-MM-DD")
		minDuration = flag.Float64("min-duration", -1, "minimum duration in minutes (default: from config)")
		topUsers    = flag.Int("top-users", 0, "user ranking size (default: from config)")
		topShows    = flag.Int("top-shows", 0, "show ranking size (default: from config)")
		minYear     = flag.Int("min-year", 0, "lower bound for the yearly summary")
		maxYear     = flag.Int("max-year", 0, "upper bound for the yearly summary")
		includeRaw  = flag.Bool("raw", false, "also export the unfiltered snapshot")
		upload      = flag.Bool("upload", false, "upload the files to the export store")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewConsoleLogger()
	if err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}

	svc, err := loadService(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to load watch history: %v", err)
	}

	spec := models.FilterSpec{
		Users:              splitList(*users),
		MediaTypes:         splitList(*mediaTypes),
		MinDurationMinutes: cfg.History.DefaultMinDuration,
	}
	if len(spec.Users) == 0 {
		spec.Users = svc.Usernames()
	}
	if len(spec.MediaTypes) == 0 {
		spec.MediaTypes = svc.MediaTypes()
	}
	if *minDuration >= 0 {
		spec.MinDurationMinutes = *minDuration
	}
	if *startDate != "" {
		t, err := time.ParseInLocation(dateLayout, *startDate, time.UTC)
		if err != nil {
			logger.Fatalf("Invalid -start date: %v", err)
		}
		spec.StartDate = t
	}
	if *endDate != "" {
		t, err := time.ParseInLocation(dateLayout, *endDate, time.UTC)
		if err != nil {
			logger.Fatalf("Invalid -end date: %v", err)
		}
		spec.EndDate = t
	}

	nUsers := *topUsers
	if nUsers < 1 {
		nUsers = cfg.History.DefaultTopUsers
	}
	nShows := *topShows
	if nShows < 1 {
		nShows = cfg.History.DefaultTopShows
	}

	ctx := context.Background()

	exports := []struct {
		filename string
		build    func() ([]byte, error)
	}{
		{history.ExportFileHistory, func() ([]byte, error) { return svc.ExportHistory(ctx, spec) }},
		{history.ExportFileMonthly, func() ([]byte, error) { return svc.ExportMonthly(ctx, spec) }},
		{history.ExportFileYearly, func() ([]byte, error) { return svc.ExportYearly(ctx, spec, *minYear, *maxYear) }},
		{history.ExportFileUsers, func() ([]byte, error) { return svc.ExportUsers(ctx, spec, nUsers) }},
		{history.ExportFileShows, func() ([]byte, error) { return svc.ExportShows(ctx, spec, nShows) }},
		{history.ExportFileHourly, func() ([]byte, error) { return svc.ExportHourly(ctx, spec) }},
		{history.ExportFileWeekday, func() ([]byte, error) { return svc.ExportWeekday(ctx, spec) }},
		{history.ExportFileHeatmap, func() ([]byte, error) { return svc.ExportHeatmap(ctx, spec) }},
	}
	if *includeRaw {
		exports = append(exports, struct {
			filename string
			build    func() ([]byte, error)
		}{"history_raw.csv", func() ([]byte, error) { return svc.ExportRaw(ctx) }})
	}

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		logger.Fatalf("Failed to create output directory: %v", err)
	}

	var store *storage.Store
	runID := uuid.New().String()
	if *upload {
		if !cfg.Storage.Enabled {
			logger.Fatal("-upload requires storage.enabled in the config")
		}
		store, err = storage.New(cfg.Storage)
		if err != nil {
			logger.Fatalf("Failed to initialize export store: %v", err)
		}
	}

	for _, ex := range exports {
		start := time.Now()
		data, err := ex.build()
		if err != nil {
			logger.Fatalf("Failed to build %s: %v", ex.filename, err)
		}

		path := filepath.Join(*outputDir, ex.filename)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			logger.Fatalf("Failed to write %s: %v", path, err)
		}
		logger.LogExport(ex.filename, csvRows(data), len(data), time.Since(start))

		if store != nil {
			uploadStart := time.Now()
			objectName, err := store.UploadExport(ctx, runID, ex.filename, data)
			logger.LogStorageOperation("upload", cfg.Storage.BucketName, objectName, int64(len(data)), time.Since(uploadStart), err)
			if err != nil {
				logger.Fatalf("Failed to upload %s: %v", ex.filename, err)
			}
		}
	}

	if store != nil {
		fmt.Printf("Run %s uploaded to bucket %s\n", runID, cfg.Storage.BucketName)
	}
	fmt.Printf("Wrote %d exports to %s\n", len(exports), *outputDir)
}

// loadService materializes the snapshot from the configured source.
func loadService(cfg *config.Config, logger *logging.Logger) (*history.Service, error) {
	var (
		rows      []models.RawRow
		datasetID string
		err       error
	)

	switch cfg.History.Source {
	case "csv":
		rows, datasetID, err = loader.LoadCSV(cfg.History.CSVPath)
	case "postgres":
		var pg *loader.Postgres
		pg, err = loader.NewPostgres(cfg.Database)
		if err != nil {
			return nil, err
		}
		defer pg.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		rows, datasetID, err = pg.Load(ctx)
	default:
		err = fmt.Errorf("unknown history source %q", cfg.History.Source)
	}
	if err != nil {
		return nil, err
	}

	events, err := history.Normalize(rows)
	if err != nil {
		return nil, err
	}
	logger.LogDatasetLoad(cfg.History.Source, datasetID, len(rows), history.CountMalformed(events), 0)

	return history.NewService(events, datasetID, logger.WithDataset(datasetID)), nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// csvRows counts data rows in a rendered CSV payload, excluding the
// header line.
func csvRows(data []byte) int {
	n := bytes.Count(data, []byte("\n"))
	if n > 0 {
		n--
	}
	return n
}
