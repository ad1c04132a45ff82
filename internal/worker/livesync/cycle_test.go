package livesync

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hitoshi/rglive/internal/livestatus"
	"github.com/hitoshi/rglive/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// --- モック定義 ---

type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(ctx context.Context) error { return m.err }

type mockResolver struct {
	resolveFunc func(ctx context.Context) ([]model.Member, error)
}

func (m *mockResolver) ResolveMembers(ctx context.Context) ([]model.Member, error) {
	return m.resolveFunc(ctx)
}

type mockSource struct {
	calls   int
	records []model.LiveStreamRecord
}

func (m *mockSource) FetchAllLive(ctx context.Context) []model.LiveStreamRecord {
	m.calls++
	return m.records
}

type mockSink struct {
	writeFunc func(ctx context.Context, v model.LiveStatus) error
	written   []model.LiveStatus
}

func (m *mockSink) Write(ctx context.Context, v model.LiveStatus) error {
	m.written = append(m.written, v)
	if m.writeFunc != nil {
		return m.writeFunc(ctx, v)
	}
	return nil
}

type recordedCycle struct {
	outcome string
}

type mockMetrics struct {
	cycles          []recordedCycle
	membersResolved int
	liveMembers     int
	persistFailures int
}

func (m *mockMetrics) RecordStatusAPIRequest(string, time.Duration) {}
func (m *mockMetrics) RecordMembersResolved(n int)                  { m.membersResolved = n }
func (m *mockMetrics) RecordCycle(outcome string, _ time.Duration) {
	m.cycles = append(m.cycles, recordedCycle{outcome: outcome})
}
func (m *mockMetrics) SetLiveMembers(n int)        { m.liveMembers = n }
func (m *mockMetrics) RecordPersistFailures(n int) { m.persistFailures += n }

func membersOf(ms ...model.Member) *mockResolver {
	return &mockResolver{
		resolveFunc: func(ctx context.Context) ([]model.Member, error) { return ms, nil },
	}
}

type fixture struct {
	cycle   *Cycle
	source  *mockSource
	sink    *mockSink
	metrics *mockMetrics
	logs    *bytes.Buffer
	out     *bytes.Buffer
}

func newFixture(store *mockPinger, resolver MemberResolver, records []model.LiveStreamRecord) *fixture {
	f := &fixture{
		source:  &mockSource{records: records},
		sink:    &mockSink{},
		metrics: &mockMetrics{},
		logs:    &bytes.Buffer{},
		out:     &bytes.Buffer{},
	}
	logger := newTestLogger(f.logs)
	f.cycle = NewCycle(
		store,
		resolver,
		f.source,
		livestatus.NewPersister(f.sink, logger),
		f.metrics,
		logger,
		CycleConfig{Out: f.out, MaxErrors: 5},
	)
	f.cycle.newID = func() string { return "cycle-test-1" }
	return f
}

func TestCycle_RunOnce_EndToEnd(t *testing.T) {
	f := newFixture(&mockPinger{},
		membersOf(model.Member{ID: 1, ExternalAccountID: "a"}, model.Member{ID: 2, ExternalAccountID: "b"}),
		[]model.LiveStreamRecord{{ExternalAccountID: "a", ViewerCount: 42}},
	)

	got, err := f.cycle.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}

	want := model.ReconciliationResult{Total: 2, Updated: 2, Live: 1, Errors: []string{}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RunOnce() mismatch (-want +got):\n%s", diff)
	}
	if f.source.calls != 1 {
		t.Errorf("FetchAllLive calls = %d, want 1", f.source.calls)
	}
	if len(f.sink.written) != 2 || !f.sink.written[0].IsLive || f.sink.written[1].IsLive {
		t.Errorf("unexpected writes: %+v", f.sink.written)
	}

	if diff := cmp.Diff([]recordedCycle{{outcome: "success"}}, f.metrics.cycles, cmp.AllowUnexported(recordedCycle{})); diff != "" {
		t.Errorf("cycle metrics mismatch (-want +got):\n%s", diff)
	}
	if f.metrics.membersResolved != 2 || f.metrics.liveMembers != 1 {
		t.Errorf("metrics = %+v", f.metrics)
	}

	if !strings.Contains(f.logs.String(), `"cycle_id":"cycle-test-1"`) {
		t.Errorf("ログにcycle_idが含まれていない: %s", f.logs.String())
	}
	if !strings.Contains(f.out.String(), "Sync completed") {
		t.Errorf("集計表が出力されていない: %s", f.out.String())
	}
}

// ライブ一覧の取得失敗（空）では全員オフラインとして書き込まれ、エラーにならないことを検証
func TestCycle_RunOnce_DegradedFetch(t *testing.T) {
	f := newFixture(&mockPinger{},
		membersOf(model.Member{ID: 1, ExternalAccountID: "a", LastKnownLive: true}, model.Member{ID: 2, ExternalAccountID: "b"}),
		[]model.LiveStreamRecord{},
	)

	got, err := f.cycle.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}
	if got.Updated != 2 || got.Live != 0 {
		t.Errorf("got %+v, want updated=2 live=0", got)
	}
	for _, v := range f.sink.written {
		if v.IsLive {
			t.Errorf("%s should be written as offline", v.ExternalAccountID)
		}
	}
}

func TestCycle_RunOnce_PersistFailuresReported(t *testing.T) {
	f := newFixture(&mockPinger{},
		membersOf(
			model.Member{ID: 1, ExternalAccountID: "a"},
			model.Member{ID: 2, ExternalAccountID: "b"},
			model.Member{ID: 3, ExternalAccountID: "c"},
		),
		nil,
	)
	f.sink.writeFunc = func(ctx context.Context, v model.LiveStatus) error {
		if v.ExternalAccountID == "b" {
			return errors.New("constraint violation")
		}
		return nil
	}

	got, err := f.cycle.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}

	want := model.ReconciliationResult{Total: 3, Updated: 2, Errors: []string{"b: constraint violation"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RunOnce() mismatch (-want +got):\n%s", diff)
	}
	if f.metrics.persistFailures != 1 {
		t.Errorf("persistFailures = %d, want 1", f.metrics.persistFailures)
	}
}

func TestCycle_RunOnce_MemberQueryFailureAborts(t *testing.T) {
	resolver := &mockResolver{
		resolveFunc: func(ctx context.Context) ([]model.Member, error) {
			return nil, model.ErrMemberQuery
		},
	}
	f := newFixture(&mockPinger{}, resolver, nil)

	_, err := f.cycle.RunOnce(context.Background())
	if !errors.Is(err, model.ErrMemberQuery) {
		t.Fatalf("error = %v, want ErrMemberQuery", err)
	}
	if f.source.calls != 0 {
		t.Error("メンバー取得に失敗した場合はライブ一覧を取得しない")
	}
	if len(f.sink.written) != 0 {
		t.Error("メンバー取得に失敗した場合は書き込まない")
	}
	if diff := cmp.Diff([]recordedCycle{{outcome: "aborted"}}, f.metrics.cycles, cmp.AllowUnexported(recordedCycle{})); diff != "" {
		t.Errorf("cycle metrics mismatch (-want +got):\n%s", diff)
	}
}

func TestCycle_RunOnce_StoreUnavailableAborts(t *testing.T) {
	f := newFixture(&mockPinger{err: errors.New("dial tcp: connection refused")},
		membersOf(model.Member{ID: 1, ExternalAccountID: "a"}), nil)

	_, err := f.cycle.RunOnce(context.Background())
	if !errors.Is(err, model.ErrStoreUnavailable) {
		t.Fatalf("error = %v, want ErrStoreUnavailable", err)
	}
	if f.source.calls != 0 {
		t.Error("ストアが使えない場合はライブ一覧を取得しない")
	}
}

func TestCycle_RunOnce_NoMembersSkipsFetch(t *testing.T) {
	f := newFixture(&mockPinger{}, membersOf(), nil)

	got, err := f.cycle.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}
	if got.Total != 0 || len(got.Errors) != 0 {
		t.Errorf("got %+v, want empty result", got)
	}
	if f.source.calls != 0 {
		t.Error("対象メンバーがいない場合はライブ一覧を取得しない")
	}
}

func TestCycle_RunOnce_NewCycleIDEachRun(t *testing.T) {
	var buf bytes.Buffer
	c := NewCycle(nil, membersOf(), &mockSource{}, livestatus.NewPersister(&mockSink{}, newTestLogger(&buf)), nil, newTestLogger(&buf), CycleConfig{})

	c.RunOnce(context.Background())
	c.RunOnce(context.Background())

	ids := map[string]bool{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if i := strings.Index(line, `"cycle_id":"`); i >= 0 {
			rest := line[i+len(`"cycle_id":"`):]
			ids[rest[:strings.Index(rest, `"`)]] = true
		}
	}
	if len(ids) != 2 {
		t.Errorf("cycle_id count = %d, want 2 (%v)", len(ids), ids)
	}
}

func TestHead(t *testing.T) {
	s := []string{"a", "b", "c"}
	if got := head(s, 2); len(got) != 2 {
		t.Errorf("head(s, 2) = %v", got)
	}
	if got := head(s, 5); len(got) != 3 {
		t.Errorf("head(s, 5) = %v", got)
	}
}
