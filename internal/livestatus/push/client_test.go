package push

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hitoshi/rglive/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()

	var buf bytes.Buffer
	return NewClient(Config{
		Endpoint:    url,
		Secret:      "test-secret",
		MaxAttempts: 3,
		RetryDelay:  10 * time.Millisecond,
		Timeout:     2 * time.Second,
	}, newTestLogger(&buf))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func okResponse(memberID int64) map[string]any {
	return map[string]any{
		"success": true,
		"updated": 1,
		"failed":  0,
		"results": []map[string]any{{"member_id": memberID, "success": true}},
	}
}

func TestClient_ImplementsSinkShape(t *testing.T) {
	var _ interface {
		Write(ctx context.Context, v model.LiveStatus) error
	} = (*Client)(nil)
}

func TestClient_Write_SendsPayloadAndAPIKey(t *testing.T) {
	var got updateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("HTTPメソッド = %s, want POST", r.Method)
		}
		if key := r.Header.Get("x-api-key"); key != "test-secret" {
			t.Errorf("x-api-key = %q, want %q", key, "test-secret")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("リクエストボディのデコードに失敗: %v", err)
		}
		writeJSON(w, http.StatusOK, okResponse(1))
	}))
	defer server.Close()

	viewers := 42
	title := "합방"
	v := model.LiveStatus{MemberID: 1, ExternalAccountID: "a", IsLive: true, ViewerCount: &viewers, Title: &title}

	if err := newTestClient(t, server.URL).Write(context.Background(), v); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	want := updateRequest{Updates: []update{{MemberID: 1, IsLive: true, StreamTitle: &title, ViewerCount: &viewers}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_Write_OfflineOmitsOptionalFields(t *testing.T) {
	var raw map[string][]map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		writeJSON(w, http.StatusOK, okResponse(2))
	}))
	defer server.Close()

	if err := newTestClient(t, server.URL).Write(context.Background(), model.LiveStatus{MemberID: 2, ExternalAccountID: "b"}); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	u := raw["updates"][0]
	for _, k := range []string{"stream_title", "viewer_count", "thumbnail_url"} {
		if _, ok := u[k]; ok {
			t.Errorf("offline update should not contain %q: %v", k, u)
		}
	}
	if u["is_live"] != false {
		t.Errorf("is_live = %v, want false", u["is_live"])
	}
}

func TestClient_Write_RetriesOn5xxThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "busy"})
			return
		}
		writeJSON(w, http.StatusOK, okResponse(1))
	}))
	defer server.Close()

	if err := newTestClient(t, server.URL).Write(context.Background(), model.LiveStatus{MemberID: 1, ExternalAccountID: "a"}); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestClient_Write_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "boom"})
	}))
	defer server.Close()

	err := newTestClient(t, server.URL).Write(context.Background(), model.LiveStatus{MemberID: 1, ExternalAccountID: "a"})
	if err == nil {
		t.Fatal("expected error after retries, got nil")
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestClient_Write_DoesNotRetryOn4xx(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}))
	defer server.Close()

	if err := newTestClient(t, server.URL).Write(context.Background(), model.LiveStatus{MemberID: 1}); err == nil {
		t.Fatal("expected error for 401, got nil")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestClient_Write_PerMemberFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"updated": 0,
			"failed":  1,
			"results": []map[string]any{{"member_id": 5, "success": false, "error": "row not found"}},
		})
	}))
	defer server.Close()

	err := newTestClient(t, server.URL).Write(context.Background(), model.LiveStatus{MemberID: 5, ExternalAccountID: "e"})
	if err == nil {
		t.Fatal("expected error for success=false, got nil")
	}
	if !bytes.Contains([]byte(err.Error()), []byte("row not found")) {
		t.Errorf("error should contain server message, got: %v", err)
	}
}

func TestClient_Write_TransportErrorRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	start := time.Now()
	err := newTestClient(t, url).Write(context.Background(), model.LiveStatus{MemberID: 1})
	if err == nil {
		t.Fatal("expected transport error, got nil")
	}
	// 3回試行 = 2回の待機
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("retry delay not applied: elapsed %v", elapsed)
	}
}
