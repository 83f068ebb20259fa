package logging

import (
	"testing"
	"time"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name: "JSON format to stdout",
			config: Config{
				Level:  "info",
				Format: "json",
				Output: "stdout",
			},
			wantErr: false,
		},
		{
			name: "Console format to stderr",
			config: Config{
				Level:  "debug",
				Format: "console",
				Output: "stderr",
			},
			wantErr: false,
		},
		{
			name: "Invalid log level defaults to info",
			config: Config{
				Level:  "invalid",
				Format: "json",
				Output: "stdout",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewLogger() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && logger == nil {
				t.Error("Expected non-nil logger")
			}
		})
	}
}

func TestLoggerMethods(t *testing.T) {
	logger, err := NewLogger(Config{
		Level:  "debug",
		Format: "json",
		Output: "stdout",
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Debug("test debug message")
	logger.Info("test info message")
	logger.Warn("test warn message")
	logger.Error("test error message")
	logger.Infof("formatted %s", "message")

	// All methods should not panic
}

func TestLoggerWithFields(t *testing.T) {
	logger, err := NewLogger(Config{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	if logger.WithField("key", "value") == nil {
		t.Error("Expected non-nil logger from WithField")
	}

	if logger.WithFields(map[string]interface{}{"key1": "value1", "key2": 123}) == nil {
		t.Error("Expected non-nil logger from WithFields")
	}

	if logger.WithRequestID("req-123") == nil {
		t.Error("Expected non-nil logger from WithRequestID")
	}

	if logger.WithDataset("deadbeefcafe0123") == nil {
		t.Error("Expected non-nil logger from WithDataset")
	}

	if logger.WithQuery("monthly") == nil {
		t.Error("Expected non-nil logger from WithQuery")
	}
}

func TestLogHTTPRequest(t *testing.T) {
	logger, err := NewLogger(Config{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.LogHTTPRequest("GET", "/api/v1/history", "192.168.1.1", 200, 100*time.Millisecond)
	// Should not panic
}

func TestLogDomainEvents(t *testing.T) {
	logger, err := NewLogger(Config{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.LogDatasetLoad("csv", "deadbeefcafe0123", 1500, 3, 250*time.Millisecond)
	logger.LogQuery("monthly", 12, false, 5*time.Millisecond)
	logger.LogQuery("monthly", 12, true, 1*time.Millisecond)
	logger.LogExport("monthly_summary.csv", 12, 480, 2*time.Millisecond)
	logger.LogStorageOperation("upload", "histview-exports", "run-1/monthly_summary.csv", 480, 50*time.Millisecond, nil)
	logger.LogCacheAccess("histview:deadbeef:monthly:abc", true)
	// Should not panic
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	if logger == nil {
		t.Fatal("Expected non-nil nop logger")
	}

	logger.Info("discarded")
	logger.LogQuery("users", 5, false, time.Millisecond)
}

func TestDefaultAndConsoleLoggers(t *testing.T) {
	if _, err := NewDefaultLogger(); err != nil {
		t.Errorf("NewDefaultLogger() failed: %v", err)
	}
	if _, err := NewConsoleLogger(); err != nil {
		t.Errorf("NewConsoleLogger() failed: %v", err)
	}
}
