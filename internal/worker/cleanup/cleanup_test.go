package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/aira/internal/metrics"
)

// mockExpirer はPendingExpirerのモック実装。
type mockExpirer struct {
	mu        sync.Mutex
	calls     int
	olderThan time.Time
	expired   int64
	err       error
}

func (m *mockExpirer) ExpireStalePending(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.olderThan = olderThan
	return m.expired, m.err
}

func (m *mockExpirer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestNewCleanupJob_DefaultTTL(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockExpirer{}, nil, newTestLogger(&buf), 0)

	if job.TTL != 24*time.Hour {
		t.Errorf("TTL = %v, want 24h", job.TTL)
	}
}

func TestCleanupJob_Run_UsesCutoff(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockExpirer{expired: 4}
	reg := prometheus.NewRegistry()
	job := NewCleanupJob(repo, metrics.NewCollector(reg), newTestLogger(&buf), 2*time.Hour)

	fixed := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return fixed }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := fixed.Add(-2 * time.Hour); !repo.olderThan.Equal(want) {
		t.Errorf("olderThan = %v, want %v", repo.olderThan, want)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log: %v\nraw: %s", err, buf.String())
	}
	if entry["expired_count"] != float64(4) {
		t.Errorf("expired_count = %v, want 4", entry["expired_count"])
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "aira_pending_checkouts_expired_total" {
			found = true
			if v := mf.GetMetric()[0].GetCounter().GetValue(); v != 4 {
				t.Errorf("expired counter = %v, want 4", v)
			}
		}
	}
	if !found {
		t.Error("expired counter not registered")
	}
}

func TestCleanupJob_Run_ReturnsError(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockExpirer{err: errors.New("connection refused")}
	job := NewCleanupJob(repo, nil, newTestLogger(&buf), time.Hour)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, repo.err) {
		t.Errorf("error should wrap repository error, got %v", err)
	}
	if !strings.Contains(buf.String(), `"level":"ERROR"`) {
		t.Error("failure should be logged at ERROR level")
	}
}

func TestCleanupJob_Start_RunsImmediatelyAndStops(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockExpirer{}
	job := NewCleanupJob(repo, nil, slog.New(slog.NewJSONHandler(&safeBuffer{buf: &buf}, nil)), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for repo.callCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start should return after context cancellation")
	}
	if repo.callCount() < 2 {
		t.Errorf("calls = %d, want at least 2", repo.callCount())
	}
}

// safeBuffer はゴルーチンから書き込まれるログ用のバッファ。
type safeBuffer struct {
	mu  sync.Mutex
	buf *bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}
