package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type mockPruner struct {
	mu      sync.Mutex
	calls   int
	cutoffs []time.Time
	deleted int64
	err     error
}

func (m *mockPruner) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.cutoffs = append(m.cutoffs, cutoff)
	return m.deleted, m.err
}

func (m *mockPruner) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// logHasField はJSONログのいずれかの行にkey=wantが含まれるかを返す。
func logHasField(buf *bytes.Buffer, key string, want any) bool {
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if v, ok := entry[key]; ok && v == want {
			return true
		}
	}
	return false
}

func TestNewCleanupJob_DefaultRetention(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockPruner{}, newTestLogger(&buf))

	if job.RetentionDays != 90 {
		t.Errorf("RetentionDays = %d, want 90", job.RetentionDays)
	}
}

func TestCleanupJob_Run_UsesRetentionCutoff(t *testing.T) {
	var buf bytes.Buffer
	pruner := &mockPruner{deleted: 3}
	job := NewCleanupJob(pruner, newTestLogger(&buf))
	fixed := time.Date(2026, 6, 30, 3, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return fixed }
	job.RetentionDays = 30

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	want := time.Date(2026, 5, 31, 3, 0, 0, 0, time.UTC)
	if len(pruner.cutoffs) != 1 || !pruner.cutoffs[0].Equal(want) {
		t.Errorf("cutoffs = %v, want [%v]", pruner.cutoffs, want)
	}
}

func TestCleanupJob_Run_LogsDeletedCountAndRetention(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockPruner{deleted: 42}, newTestLogger(&buf))

	_ = job.Run(context.Background())

	if !logHasField(&buf, "deleted_count", float64(42)) {
		t.Errorf("ログに deleted_count=42 が記録されていない。ログ出力: %s", buf.String())
	}
	if !logHasField(&buf, "retention_days", float64(90)) {
		t.Errorf("ログに retention_days=90 が記録されていない。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Run_ReturnsErrorOnDBFailure(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockPruner{err: sql.ErrConnDone}, newTestLogger(&buf))

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("DBエラー時に Run() は nil でないエラーを返すべき")
	}
	if !strings.Contains(err.Error(), "sql: connection is already closed") {
		t.Errorf("エラーメッセージが期待と異なる: %v", err)
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("エラー時にERRORレベルのログが記録されていない。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Run_Idempotent_ZeroRows(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockPruner{}, newTestLogger(&buf))

	for i := 0; i < 2; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("%d回目の Run() がエラーを返した: %v", i+1, err)
		}
	}
}

func TestCleanupJob_RunEvery_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	pruner := &mockPruner{}
	job := NewCleanupJob(pruner, newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.RunEvery(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for pruner.callCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("RunEvery が繰り返し実行されなかった: calls=%d", pruner.callCount())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunEvery がキャンセル後に終了しなかった")
	}
}
