package logger

import (
	"bytes"
	"log/slog"
	"regexp"
	"strings"
	"testing"
)

// TestHandler_Format verifies the line layout and attribute rendering.
func TestHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, nil))

	log.Info("bounty created", "bounty", 7, "poster", "ab12")

	line := buf.String()
	pattern := regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{3} \[INF\] bounty created bounty=7 poster=ab12\n$`)

	if !pattern.MatchString(line) {
		t.Fatalf("unexpected line %q", line)
	}
}

// TestHandler_Level verifies records below the minimum level are dropped.
func TestHandler_Level(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	lvl.Set(slog.LevelWarn)

	log := slog.New(NewHandler(&buf, lvl))
	log.Info("hidden")
	log.Debug("hidden")
	log.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("records below WARN were written: %q", buf.String())
	}

	if !strings.Contains(buf.String(), "[WRN] shown") {
		t.Errorf("WARN record missing: %q", buf.String())
	}

	lvl.Set(slog.LevelDebug)
	log.Debug("now visible")

	if !strings.Contains(buf.String(), "[DBG] now visible") {
		t.Errorf("DEBUG record missing after lowering level: %q", buf.String())
	}
}

// TestHandler_WithAttrs verifies attributes bound with With appear on every line.
func TestHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, nil)).With("component", "api").WithGroup("req")

	log.Info("served", "status", 200)

	if !strings.Contains(buf.String(), "component=api req.status=200") {
		t.Fatalf("unexpected line %q", buf.String())
	}
}

// TestParseLevel verifies level names.
func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}

		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
