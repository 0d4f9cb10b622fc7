// Package progress tracks transfer throughput and emits periodic status
// lines through the structured logger, for runs without an interactive
// progress bar (logs piped to a file, cron jobs, CI).
package progress

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Tracker accumulates finished-chunk byte counts and logs a status line at a
// fixed interval: percentage, throughput since the last line, and an ETA
// estimated from it.
type Tracker struct {
	log         *slog.Logger
	totalBytes  int64
	totalChunks int
	interval    time.Duration

	bytes  atomic.Int64
	chunks atomic.Int64

	mu        sync.Mutex
	start     time.Time
	lastTime  time.Time
	lastBytes int64

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewTracker creates a tracker for a transfer of totalBytes across
// totalChunks chunks. Status lines go to log every interval; an interval of
// zero means every 5 seconds.
func NewTracker(log *slog.Logger, totalBytes int64, totalChunks int, interval time.Duration) *Tracker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Tracker{
		log:         log,
		totalBytes:  totalBytes,
		totalChunks: totalChunks,
		interval:    interval,
		stopCh:      make(chan struct{}),
	}
}

// Start begins the reporting loop.
func (t *Tracker) Start() {
	now := time.Now()
	t.mu.Lock()
	t.start = now
	t.lastTime = now
	t.mu.Unlock()
	go t.loop()
}

// Add records one finished chunk of n bytes. Safe for concurrent use by
// transfer workers.
func (t *Tracker) Add(n int64) {
	t.bytes.Add(n)
	t.chunks.Add(1)
}

// Stop ends the reporting loop and logs a final summary. Stop is idempotent.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

func (t *Tracker) loop() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			t.summary()
			return
		case <-ticker.C:
			t.report()
		}
	}
}

func (t *Tracker) report() {
	now := time.Now()
	done := t.bytes.Load()

	t.mu.Lock()
	elapsed := now.Sub(t.lastTime).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	speed := float64(done-t.lastBytes) / elapsed
	t.lastTime = now
	t.lastBytes = done
	t.mu.Unlock()

	attrs := []any{
		"done_bytes", done,
		"total_bytes", t.totalBytes,
		"chunks", fmt.Sprintf("%d/%d", t.chunks.Load(), t.totalChunks),
		"speed", fmt.Sprintf("%.0f B/s", speed),
	}
	if t.totalBytes > 0 {
		attrs = append(attrs, "percent", fmt.Sprintf("%.1f", float64(done)/float64(t.totalBytes)*100))
		if speed > 0 {
			eta := time.Duration(float64(t.totalBytes-done) / speed * float64(time.Second))
			attrs = append(attrs, "eta", formatDuration(eta))
		}
	}
	t.log.Info("transfer progress", attrs...)
}

func (t *Tracker) summary() {
	t.mu.Lock()
	duration := time.Since(t.start)
	t.mu.Unlock()

	done := t.bytes.Load()
	avg := float64(done) / duration.Seconds()
	t.log.Info("transfer finished",
		"bytes", done,
		"chunks", t.chunks.Load(),
		"duration", formatDuration(duration),
		"avg_speed", fmt.Sprintf("%.0f B/s", avg),
	)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm %ds", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}
