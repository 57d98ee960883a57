package gridlog_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	gridlog "github.com/Jdcabreradev/gridclash/logger"
)

// TestNewLogger tests logger creation with different modes
func TestNewLogger(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name    string
		mode    gridlog.LogMode
		wantErr bool
	}{
		{"DEV mode", gridlog.DEV, false},
		{"RELEASE mode", gridlog.RELEASE, false},
		{"VERBOSE mode", gridlog.VERBOSE, false},
		{"HIDDEN mode", gridlog.HIDDEN, false},
		{"Invalid mode", gridlog.LogMode(9), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := gridlog.NewLogger(tempDir, tt.mode)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewLogger() error = %v, wantErr %v", err, tt.wantErr)
			}
			if logger == nil && !tt.wantErr {
				t.Fatal("NewLogger() returned nil logger without error")
			}
			if logger != nil {
				logger.SetOutput(nil)
				logger.Close()
			}
		})
	}
}

// TestLoggerLevels checks which levels reach the console per mode
func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		mode gridlog.LogMode
		want map[string]bool
	}{
		{gridlog.DEV, map[string]bool{"INFO": true, "WARNING": true, "ERROR": true, "DEBUG": true}},
		{gridlog.RELEASE, map[string]bool{"INFO": true, "WARNING": true, "ERROR": true, "DEBUG": false}},
		{gridlog.VERBOSE, map[string]bool{"INFO": true, "WARNING": true, "ERROR": true, "DEBUG": true}},
		{gridlog.HIDDEN, map[string]bool{"INFO": true, "WARNING": false, "ERROR": true, "DEBUG": false}},
	}

	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			logger, err := gridlog.NewLogger(t.TempDir(), tt.mode)
			if err != nil {
				t.Fatalf("Failed to create logger: %v", err)
			}
			defer logger.Close()

			var buf bytes.Buffer
			logger.SetOutput(&buf)

			logger.Log("Arbiter", gridlog.INFO, "info line")
			logger.Log("Arbiter", gridlog.WARNING, "warning line")
			logger.Log("Arbiter", gridlog.ERROR, "error line")
			logger.Log("Arbiter", gridlog.DEBUG, "debug line")

			out := buf.String()
			for level, want := range tt.want {
				got := strings.Contains(out, "["+level+"]")
				if got != want {
					t.Errorf("%s present = %v, want %v\n%s", level, got, want, out)
				}
				if logger.Enabled(levelOf(level)) != want {
					t.Errorf("Enabled(%s) = %v, want %v", level, !want, want)
				}
			}
			if strings.Contains(out, "\033[") {
				t.Error("ANSI colors written to a non-terminal writer")
			}
		})
	}
}

func levelOf(name string) gridlog.LogType {
	switch name {
	case "WARNING":
		return gridlog.WARNING
	case "ERROR":
		return gridlog.ERROR
	case "DEBUG":
		return gridlog.DEBUG
	default:
		return gridlog.INFO
	}
}

// TestLoggerClose tests proper resource cleanup
func TestLoggerClose(t *testing.T) {
	logger, err := gridlog.NewLogger(t.TempDir(), gridlog.RELEASE)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	logger.SetOutput(nil)
	logger.Log("TestService", gridlog.INFO, "Test message")

	if err := logger.Close(); err != nil {
		t.Errorf("Close() returned error: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Second Close() returned error: %v", err)
	}
	logger.Log("TestService", gridlog.INFO, "This should be ignored")
}

// TestLogContent tests that file content carries consumer, level and message
func TestLogContent(t *testing.T) {
	tempDir := t.TempDir()
	logger, err := gridlog.NewLogger(tempDir, gridlog.VERBOSE)
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	logger.SetOutput(nil)

	logger.Logf("Server", gridlog.WARNING, "dropped datagram from %s: %s", "127.0.0.1:5000", "checksum mismatch")
	logger.Flush()
	logger.Close()

	files, err := filepath.Glob(filepath.Join(tempDir, "*.log"))
	if err != nil || len(files) == 0 {
		t.Fatalf("No log file found")
	}
	if files[0] != logger.Path() {
		t.Errorf("Path() = %q, file on disk %q", logger.Path(), files[0])
	}

	content, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	logContent := string(content)
	for _, want := range []string{"[WARNING]", "[GridClash]", "[Server]", "dropped datagram from 127.0.0.1:5000: checksum mismatch"} {
		if !strings.Contains(logContent, want) {
			t.Errorf("Log content missing %q: %s", want, logContent)
		}
	}
}

// TestNilLogger ensures components can run without a logger
func TestNilLogger(t *testing.T) {
	var logger *gridlog.Logger
	logger.Log("Nil", gridlog.ERROR, "ignored")
	logger.Logf("Nil", gridlog.INFO, "ignored %d", 1)
	logger.SetOutput(nil)
	if logger.Enabled(gridlog.ERROR) {
		t.Error("nil logger reports enabled")
	}
	if err := logger.Flush(); err != nil {
		t.Error(err)
	}
	if err := logger.Close(); err != nil {
		t.Error(err)
	}
}

func TestParseMode(t *testing.T) {
	for _, name := range []string{"dev", "RELEASE", "Verbose", "hidden"} {
		m, err := gridlog.ParseMode(name)
		if err != nil {
			t.Errorf("ParseMode(%q) error: %v", name, err)
		}
		if !strings.EqualFold(m.String(), name) {
			t.Errorf("ParseMode(%q) = %v", name, m)
		}
	}
	if _, err := gridlog.ParseMode("loud"); err == nil {
		t.Error("ParseMode accepted unknown mode")
	}
}

// BenchmarkLogger benchmarks logging performance
func BenchmarkLogger(b *testing.B) {
	logger, err := gridlog.NewLogger(b.TempDir(), gridlog.RELEASE)
	if err != nil {
		b.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Close()
	logger.SetOutput(nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Log("BenchService", gridlog.INFO, "Benchmark message")
	}
	logger.Flush()
}
