package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/plexwatch/histview/internal/history"
	"github.com/plexwatch/histview/internal/metrics"
	"github.com/plexwatch/histview/pkg/models"
)

const dateLayout = "2006-01-02"

// parseFilterSpec builds a FilterSpec from query parameters. Omitted
// user and media_type selections expand to every value present in the
// snapshot, matching the viewer's "everything selected" default; an
// explicitly empty selection is not expressible over HTTP.
func (api *API) parseFilterSpec(c *gin.Context) (models.FilterSpec, error) {
	spec := models.FilterSpec{
		Users:              c.QueryArray("user"),
		MediaTypes:         c.QueryArray("media_type"),
		MinDurationMinutes: api.cfg.History.DefaultMinDuration,
	}
	if len(spec.Users) == 0 {
		spec.Users = api.svc.Usernames()
	}
	if len(spec.MediaTypes) == 0 {
		spec.MediaTypes = api.svc.MediaTypes()
	}

	if raw := c.Query("min_duration"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return spec, fmt.Errorf("%w: invalid min_duration %q", history.ErrInvalidFilter, raw)
		}
		spec.MinDurationMinutes = v
	}

	if raw := c.Query("start_date"); raw != "" {
		t, err := time.ParseInLocation(dateLayout, raw, time.UTC)
		if err != nil {
			return spec, fmt.Errorf("%w: invalid start_date %q", history.ErrInvalidFilter, raw)
		}
		spec.StartDate = t
	}
	if raw := c.Query("end_date"); raw != "" {
		t, err := time.ParseInLocation(dateLayout, raw, time.UTC)
		if err != nil {
			return spec, fmt.Errorf("%w: invalid end_date %q", history.ErrInvalidFilter, raw)
		}
		spec.EndDate = t
	}

	return spec, history.ValidateFilter(spec)
}

func (api *API) parseIntParam(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", history.ErrInvalidFilter, name, raw)
	}
	return v, nil
}

// handleError maps domain errors to HTTP status codes. Invalid queries
// are the caller's fault; everything else is a server error.
func (api *API) handleError(c *gin.Context, query string, err error) {
	if errors.Is(err, history.ErrInvalidFilter) || errors.Is(err, history.ErrInvalidGrouping) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	metrics.RecordError("api", query)
	api.logger.ErrorWithErr("query failed", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

// serveCSV writes an export payload, optionally persisting a copy to
// the export store when store=true is requested.
func (api *API) serveCSV(c *gin.Context, export, filename string, data []byte) {
	if c.Query("store") == "true" && api.store != nil {
		runID := uuid.New().String()
		uploadStart := time.Now()
		objectName, err := api.store.UploadExport(c.Request.Context(), runID, filename, data)
		api.logger.LogStorageOperation("upload", api.cfg.Storage.BucketName, objectName, int64(len(data)), time.Since(uploadStart), err)
		if err != nil {
			metrics.RecordStorageOperation("upload", "error")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store export"})
			return
		}
		metrics.RecordStorageOperation("upload", "success")
		c.Header("X-Export-Object", objectName)
	}

	metrics.RecordExport(export, "success", len(data))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv", data)
}

// presignExpiry bounds how long a shared export link stays valid.
const presignExpiry = 15 * time.Minute

// requireStore rejects export-run requests when no store is configured.
func (api *API) requireStore(c *gin.Context) bool {
	if api.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Export store is not enabled"})
		return false
	}
	return true
}

// listExports returns the object names persisted under one export run,
// the run IDs being the X-Export-Object prefixes handed out by store=true.
func (api *API) listExports(c *gin.Context) {
	if !api.requireStore(c) {
		return
	}
	runID := c.Param("runID")

	start := time.Now()
	names, err := api.store.List(c.Request.Context(), runID)
	api.logger.LogStorageOperation("list", api.cfg.Storage.BucketName, runID, 0, time.Since(start), err)
	if err != nil {
		metrics.RecordStorageOperation("list", "error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list exports"})
		return
	}
	metrics.RecordStorageOperation("list", "success")
	c.JSON(http.StatusOK, gin.H{"run_id": runID, "objects": names, "count": len(names)})
}

// downloadExport streams one stored export back, or returns a
// time-limited link instead when presign=true.
func (api *API) downloadExport(c *gin.Context) {
	if !api.requireStore(c) {
		return
	}
	runID := c.Param("runID")
	filename := c.Param("filename")
	key := runID + "/" + filename

	if c.Query("presign") == "true" {
		url, err := api.store.PresignedURL(c.Request.Context(), runID, filename, presignExpiry)
		if err != nil {
			metrics.RecordStorageOperation("presign", "error")
			api.logger.ErrorWithErr("failed to presign export", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to presign export"})
			return
		}
		metrics.RecordStorageOperation("presign", "success")
		c.JSON(http.StatusOK, gin.H{"url": url, "expires_in": presignExpiry.String()})
		return
	}

	start := time.Now()
	object, err := api.store.DownloadExport(c.Request.Context(), runID, filename)
	if err != nil {
		metrics.RecordStorageOperation("download", "error")
		api.logger.LogStorageOperation("download", api.cfg.Storage.BucketName, key, 0, time.Since(start), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to download export"})
		return
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		// A missing object only surfaces on the first read.
		metrics.RecordStorageOperation("download", "error")
		api.logger.LogStorageOperation("download", api.cfg.Storage.BucketName, key, 0, time.Since(start), err)
		c.JSON(http.StatusNotFound, gin.H{"error": "Export not found"})
		return
	}
	metrics.RecordStorageOperation("download", "success")
	api.logger.LogStorageOperation("download", api.cfg.Storage.BucketName, key, int64(len(data)), time.Since(start), nil)

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv", data)
}

// deleteExport removes one stored export.
func (api *API) deleteExport(c *gin.Context) {
	if !api.requireStore(c) {
		return
	}
	runID := c.Param("runID")
	filename := c.Param("filename")

	start := time.Now()
	err := api.store.Delete(c.Request.Context(), runID, filename)
	api.logger.LogStorageOperation("delete", api.cfg.Storage.BucketName, runID+"/"+filename, 0, time.Since(start), err)
	if err != nil {
		metrics.RecordStorageOperation("delete", "error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete export"})
		return
	}
	metrics.RecordStorageOperation("delete", "success")
	c.Status(http.StatusNoContent)
}

// getFilterOptions returns the distinct filter values present in the
// snapshot, for populating selection widgets.
func (api *API) getFilterOptions(c *gin.Context) {
	minDate, maxDate := api.svc.DateRange()
	minYear, maxYear := api.svc.YearRange()

	resp := gin.H{
		"users":       api.svc.Usernames(),
		"media_types": api.svc.MediaTypes(),
		"min_year":    minYear,
		"max_year":    maxYear,
	}
	if !minDate.IsZero() {
		resp["min_date"] = minDate.Format(dateLayout)
		resp["max_date"] = maxDate.Format(dateLayout)
	}
	c.JSON(http.StatusOK, resp)
}

func (api *API) getHistory(c *gin.Context) {
	spec, err := api.parseFilterSpec(c)
	if err != nil {
		api.handleError(c, "history", err)
		return
	}

	if c.Query("format") == "csv" {
		data, err := api.svc.ExportHistory(c.Request.Context(), spec)
		if err != nil {
			api.handleError(c, "history", err)
			return
		}
		api.serveCSV(c, "history", history.ExportFileHistory, data)
		return
	}

	events, err := api.svc.History(c.Request.Context(), spec)
	if err != nil {
		api.handleError(c, "history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": events, "count": len(events)})
}

func (api *API) getDashboard(c *gin.Context) {
	spec, err := api.parseFilterSpec(c)
	if err != nil {
		api.handleError(c, "dashboard", err)
		return
	}

	overview, err := api.svc.Dashboard(c.Request.Context(), spec)
	if err != nil {
		api.handleError(c, "dashboard", err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

func (api *API) getMonthlySummary(c *gin.Context) {
	api.summaryHandler(c, "monthly", history.ExportFileMonthly,
		func(ctx context.Context, spec models.FilterSpec) ([]models.AggregateRow, error) {
			return api.svc.MonthlySummary(ctx, spec)
		},
		func(ctx context.Context, spec models.FilterSpec) ([]byte, error) {
			return api.svc.ExportMonthly(ctx, spec)
		})
}

func (api *API) getYearlySummary(c *gin.Context) {
	minYear, err := api.parseIntParam(c, "min_year", 0)
	if err != nil {
		api.handleError(c, "yearly", err)
		return
	}
	maxYear, err := api.parseIntParam(c, "max_year", 0)
	if err != nil {
		api.handleError(c, "yearly", err)
		return
	}

	api.summaryHandler(c, "yearly", history.ExportFileYearly,
		func(ctx context.Context, spec models.FilterSpec) ([]models.AggregateRow, error) {
			return api.svc.YearlySummary(ctx, spec, minYear, maxYear)
		},
		func(ctx context.Context, spec models.FilterSpec) ([]byte, error) {
			return api.svc.ExportYearly(ctx, spec, minYear, maxYear)
		})
}

func (api *API) getUserSummary(c *gin.Context) {
	topN, err := api.parseIntParam(c, "top_n", api.cfg.History.DefaultTopUsers)
	if err != nil {
		api.handleError(c, "users", err)
		return
	}

	api.summaryHandler(c, "users", history.ExportFileUsers,
		func(ctx context.Context, spec models.FilterSpec) ([]models.AggregateRow, error) {
			return api.svc.UserSummary(ctx, spec, topN)
		},
		func(ctx context.Context, spec models.FilterSpec) ([]byte, error) {
			return api.svc.ExportUsers(ctx, spec, topN)
		})
}

func (api *API) getShowSummary(c *gin.Context) {
	topN, err := api.parseIntParam(c, "top_n", api.cfg.History.DefaultTopShows)
	if err != nil {
		api.handleError(c, "shows", err)
		return
	}

	api.summaryHandler(c, "shows", history.ExportFileShows,
		func(ctx context.Context, spec models.FilterSpec) ([]models.AggregateRow, error) {
			return api.svc.ShowSummary(ctx, spec, topN)
		},
		func(ctx context.Context, spec models.FilterSpec) ([]byte, error) {
			return api.svc.ExportShows(ctx, spec, topN)
		})
}

func (api *API) getHourlySummary(c *gin.Context) {
	api.summaryHandler(c, "hourly", history.ExportFileHourly,
		func(ctx context.Context, spec models.FilterSpec) ([]models.AggregateRow, error) {
			return api.svc.HourlySummary(ctx, spec)
		},
		func(ctx context.Context, spec models.FilterSpec) ([]byte, error) {
			return api.svc.ExportHourly(ctx, spec)
		})
}

func (api *API) getWeekdaySummary(c *gin.Context) {
	api.summaryHandler(c, "weekday", history.ExportFileWeekday,
		func(ctx context.Context, spec models.FilterSpec) ([]models.AggregateRow, error) {
			return api.svc.WeekdaySummary(ctx, spec)
		},
		func(ctx context.Context, spec models.FilterSpec) ([]byte, error) {
			return api.svc.ExportWeekday(ctx, spec)
		})
}

func (api *API) getHeatmap(c *gin.Context) {
	spec, err := api.parseFilterSpec(c)
	if err != nil {
		api.handleError(c, "heatmap", err)
		return
	}

	if c.Query("format") == "csv" {
		data, err := api.svc.ExportHeatmap(c.Request.Context(), spec)
		if err != nil {
			api.handleError(c, "heatmap", err)
			return
		}
		api.serveCSV(c, "heatmap", history.ExportFileHeatmap, data)
		return
	}

	ct, err := api.svc.UserShowMatrix(c.Request.Context(), spec)
	if err != nil {
		api.handleError(c, "heatmap", err)
		return
	}
	c.JSON(http.StatusOK, ct)
}

// summaryHandler is the shared parse / compute / render path for the
// single-dimension summaries. JSON by default, CSV when format=csv.
func (api *API) summaryHandler(
	c *gin.Context,
	query, filename string,
	compute func(context.Context, models.FilterSpec) ([]models.AggregateRow, error),
	export func(context.Context, models.FilterSpec) ([]byte, error),
) {
	start := time.Now()
	spec, err := api.parseFilterSpec(c)
	if err != nil {
		api.handleError(c, query, err)
		return
	}

	if c.Query("format") == "csv" {
		data, err := export(c.Request.Context(), spec)
		if err != nil {
			api.handleError(c, query, err)
			return
		}
		api.serveCSV(c, query, filename, data)
		return
	}

	rows, err := compute(c.Request.Context(), spec)
	if err != nil {
		api.handleError(c, query, err)
		return
	}
	metrics.RecordQuery(query, "success", time.Since(start).Seconds())
	c.JSON(http.StatusOK, gin.H{"rows": rows, "count": len(rows)})
}
