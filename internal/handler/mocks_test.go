package handler

import (
	"context"
	"io"
	"log/slog"

	"github.com/hitoshi/rglive/internal/model"
)

// --- モック定義 ---

type mockPinger struct {
	pingFn func(ctx context.Context) error
}

func (m *mockPinger) PingContext(ctx context.Context) error {
	if m.pingFn != nil {
		return m.pingFn(ctx)
	}
	return nil
}

type mockLiveStatusRepo struct {
	listOverviewFn func(ctx context.Context, platform model.Platform) ([]model.MemberOverview, error)
}

func (m *mockLiveStatusRepo) Apply(ctx context.Context, row *model.LiveStatusRow) error {
	return nil
}

func (m *mockLiveStatusRepo) ListOverview(ctx context.Context, platform model.Platform) ([]model.MemberOverview, error) {
	if m.listOverviewFn != nil {
		return m.listOverviewFn(ctx, platform)
	}
	return nil, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }
