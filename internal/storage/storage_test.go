package storage

import (
	"testing"

	"github.com/plexwatch/histview/internal/config"
)

func TestExportObjectName(t *testing.T) {
	tests := []struct {
		runID    string
		filename string
		want     string
	}{
		{"0f2d7a41", "history_filtered.csv", "0f2d7a41/history_filtered.csv"},
		{"0f2d7a41", "user_show_heatmap.csv", "0f2d7a41/user_show_heatmap.csv"},
		{"a", "b.csv", "a/b.csv"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := exportObjectName(tt.runID, tt.filename)
			if got != tt.want {
				t.Errorf("exportObjectName(%q, %q) = %q, want %q", tt.runID, tt.filename, got, tt.want)
			}
		})
	}
}

func TestRunPrefixCoversRunObjects(t *testing.T) {
	runID := "0f2d7a41"
	prefix := runPrefix(runID)

	if prefix != "0f2d7a41/" {
		t.Errorf("runPrefix(%q) = %q, want %q", runID, prefix, "0f2d7a41/")
	}

	// Every object name of the run must start with its listing prefix,
	// and a run whose ID merely shares a leading substring must not.
	name := exportObjectName(runID, "monthly_summary.csv")
	if name[:len(prefix)] != prefix {
		t.Errorf("object %q not covered by prefix %q", name, prefix)
	}
	other := exportObjectName("0f2d7a41b", "monthly_summary.csv")
	if other[:len(prefix)] == prefix {
		t.Errorf("object %q of a different run matches prefix %q", other, prefix)
	}
}

func TestNewRejectsInvalidEndpoint(t *testing.T) {
	_, err := New(config.StorageConfig{
		Endpoint:        "not a valid endpoint",
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
		BucketName:      "histview-exports",
	})
	if err == nil {
		t.Error("New() with an invalid endpoint should fail")
	}
}
