package livesync

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/hitoshi/rglive/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockRunner はRunnerのテスト用実装。同時実行数の最大値を記録する。
type mockRunner struct {
	mu        sync.Mutex
	calls     int
	running   atomic.Int32
	maxActive int32
	delay     time.Duration
	err       error
}

func (m *mockRunner) RunOnce(ctx context.Context) (model.ReconciliationResult, error) {
	active := m.running.Add(1)
	defer m.running.Add(-1)

	m.mu.Lock()
	m.calls++
	if active > m.maxActive {
		m.maxActive = active
	}
	m.mu.Unlock()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
		}
	}
	return model.ReconciliationResult{Errors: []string{}}, m.err
}

func (m *mockRunner) snapshot() (int, int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls, m.maxActive
}

func TestScheduler_Start_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	runner := &mockRunner{}
	s := NewScheduler(runner, newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx, time.Hour)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		if calls, _ := runner.snapshot(); calls >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("起動直後のサイクルが実行されない")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start がキャンセル後に終了しない")
	}

	if calls, _ := runner.snapshot(); calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

// サイクルが間隔より長くかかっても重複実行されないことを検証
func TestScheduler_Start_NeverOverlaps(t *testing.T) {
	var buf bytes.Buffer
	runner := &mockRunner{delay: 30 * time.Millisecond}
	s := NewScheduler(runner, newTestLogger(&buf))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	s.Start(ctx, time.Millisecond)

	calls, maxActive := runner.snapshot()
	if calls < 2 {
		t.Errorf("calls = %d, want >= 2", calls)
	}
	if maxActive != 1 {
		t.Errorf("max concurrent cycles = %d, want 1", maxActive)
	}
}

// 致命的エラーが発生しても次のサイクルへ進むことを検証
func TestScheduler_Start_ContinuesAfterError(t *testing.T) {
	var buf bytes.Buffer
	runner := &mockRunner{err: errors.New("member query failed")}
	s := NewScheduler(runner, newTestLogger(&buf))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	s.Start(ctx, 10*time.Millisecond)

	if calls, _ := runner.snapshot(); calls < 2 {
		t.Errorf("calls = %d, want >= 2", calls)
	}
	if !strings.Contains(buf.String(), "同期サイクルの実行に失敗しました") {
		t.Errorf("エラーログが出力されていない: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "ライブ状態同期スケジューラを停止しました") {
		t.Errorf("停止ログが出力されていない: %s", buf.String())
	}
}
