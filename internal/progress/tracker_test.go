package progress

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestTrackerReportsAndSummarizes(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	tr := NewTracker(log, 1000, 4, 10*time.Millisecond)
	tr.Start()
	tr.Add(250)
	tr.Add(250)

	time.Sleep(50 * time.Millisecond)
	tr.Stop()
	tr.Stop() // idempotent

	// Give the loop a moment to write the summary.
	time.Sleep(20 * time.Millisecond)

	out := buf.String()
	if !strings.Contains(out, "transfer progress") {
		t.Fatalf("no progress line in output:\n%s", out)
	}
	if !strings.Contains(out, "transfer finished") {
		t.Fatalf("no summary line in output:\n%s", out)
	}
	if !strings.Contains(out, "bytes=500") {
		t.Fatalf("summary missing byte count:\n%s", out)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{90 * time.Second, "1m 30s"},
		{3750 * time.Second, "1h 2m 30s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
