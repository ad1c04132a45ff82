package livestatus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/rglive/internal/model"
)

// Sink は判定結果1件の書き込み先。
// 実装はメンバー単位で完結し、他メンバーの書き込みに影響してはならない。
type Sink interface {
	Write(ctx context.Context, verdict model.LiveStatus) error
}

// Outcome は判定結果1件の書き込み結果。Errがnilなら成功。
type Outcome struct {
	Status model.LiveStatus
	Err    error
}

// errUpstream は上流で解決に失敗した判定結果を示す。
var errUpstream = errors.New("upstream lookup failed")

// Persister は判定結果を1件ずつSinkへ書き込む。
type Persister struct {
	sink   Sink
	logger *slog.Logger
}

// NewPersister はPersisterを生成する。
func NewPersister(sink Sink, logger *slog.Logger) *Persister {
	return &Persister{sink: sink, logger: logger}
}

// Persist は全ての判定結果を書き込み、集計結果を返す。
// メンバー単位の失敗は集計結果のErrorsに "{アカウントID}: {メッセージ}" の形で記録し、
// 残りのメンバーの処理を継続する。
// 書き込み先が無い場合のみmodel.ErrStoreUnavailableを返す。
func (p *Persister) Persist(ctx context.Context, verdicts []model.LiveStatus) (model.ReconciliationResult, error) {
	if p == nil || p.sink == nil {
		return model.ReconciliationResult{}, fmt.Errorf("%w: 書き込み先が設定されていません", model.ErrStoreUnavailable)
	}

	outcomes := make([]Outcome, 0, len(verdicts))
	for _, v := range verdicts {
		outcomes = append(outcomes, p.persistOne(ctx, v))
	}
	return Summarize(outcomes), nil
}

func (p *Persister) persistOne(ctx context.Context, v model.LiveStatus) (out Outcome) {
	out.Status = v

	if v.Error != "" {
		out.Err = fmt.Errorf("%w: %s", errUpstream, v.Error)
		return out
	}

	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("書き込み中にpanicが発生しました: %v", r)
		}
	}()

	if err := p.sink.Write(ctx, v); err != nil {
		out.Err = err
		p.logger.Warn("ライブ状態の書き込みに失敗しました",
			slog.Int64("member_id", v.MemberID),
			slog.String("account_id", v.ExternalAccountID),
			slog.String("error", err.Error()),
		)
		return out
	}

	p.logger.Debug("ライブ状態を書き込みました",
		slog.Int64("member_id", v.MemberID),
		slog.String("account_id", v.ExternalAccountID),
		slog.Bool("is_live", v.IsLive),
	)
	return out
}

// Summarize はOutcomeの列を集計する。Errorsは発生順。
func Summarize(outcomes []Outcome) model.ReconciliationResult {
	res := model.ReconciliationResult{
		Total:  len(outcomes),
		Errors: []string{},
	}
	for _, o := range outcomes {
		if o.Err != nil {
			res.Errors = append(res.Errors, formatError(o))
			continue
		}
		res.Updated++
		if o.Status.IsLive {
			res.Live++
		}
	}
	return res
}

func formatError(o Outcome) string {
	msg := o.Err.Error()
	if errors.Is(o.Err, errUpstream) {
		msg = o.Status.Error
	}
	return fmt.Sprintf("%s: %s", o.Status.ExternalAccountID, msg)
}
