// Package match は試合一覧・参加・管理者向け参加一覧のサービスを提供する。
package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/chatpadel/internal/membership"
	"github.com/hitoshi/chatpadel/internal/metrics"
	"github.com/hitoshi/chatpadel/internal/model"
	"github.com/hitoshi/chatpadel/internal/notify"
	"github.com/hitoshi/chatpadel/internal/repository"
)

// Joiner は試合への参加と作成を行うインターフェース。
type Joiner interface {
	Join(ctx context.Context, matchID int64, token model.IdentityToken) (*membership.JoinResult, error)
	Provision(ctx context.Context, in model.NewMatch) (*model.Match, error)
}

// UserResolver はidentity tokenをユーザーに解決するインターフェース。
type UserResolver interface {
	Resolve(ctx context.Context, token model.IdentityToken) (*model.User, error)
}

// MembershipView は管理者向け参加一覧の1行。
// Userはtokenに対応するユーザーがいない場合nil。
type MembershipView struct {
	Membership model.Membership
	Match      model.Match
	User       *model.User
}

// Service は試合のクエリと参加フローを提供する。
type Service struct {
	matchRepo repository.MatchRepository
	joiner    Joiner
	users     UserResolver
	notifier  notify.Enqueuer
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	matchRepo repository.MatchRepository,
	joiner Joiner,
	users UserResolver,
	notifier notify.Enqueuer,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		matchRepo: matchRepo,
		joiner:    joiner,
		users:     users,
		notifier:  notifier,
		metrics:   mc,
		logger:    logger,
	}
}

// ListAvailable は全試合を作成順で返す。満員の試合も含む。
func (s *Service) ListAvailable(ctx context.Context) ([]*model.Match, error) {
	matches, err := s.matchRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("試合一覧の取得に失敗しました: %w", err)
	}
	if matches == nil {
		matches = []*model.Match{}
	}
	return matches, nil
}

// ListMembershipsWithUsers は全membershipを参加順で返す。
// 各行には試合と、tokenから解決したユーザー（いなければnil）を付与する。
func (s *Service) ListMembershipsWithUsers(ctx context.Context) ([]MembershipView, error) {
	rows, err := s.matchRepo.ListMembershipsWithMatch(ctx)
	if err != nil {
		return nil, fmt.Errorf("参加一覧の取得に失敗しました: %w", err)
	}

	resolved := make(map[string]*model.User)
	views := make([]MembershipView, 0, len(rows))
	for _, row := range rows {
		u, ok := resolved[row.IdentityToken]
		if !ok {
			u, err = s.users.Resolve(ctx, model.ParseIdentityToken(row.IdentityToken))
			if err != nil {
				return nil, fmt.Errorf("参加者の解決に失敗しました: %w", err)
			}
			resolved[row.IdentityToken] = u
		}
		views = append(views, MembershipView{
			Membership: row.Membership,
			Match:      row.Match,
			User:       u,
		})
	}
	return views, nil
}

// Join はtokenを試合に参加させる。
// 新規参加の場合のみ参加確認通知をキューに積む。通知の送信完了は待たない。
func (s *Service) Join(ctx context.Context, matchID int64, rawToken string) (*membership.JoinResult, error) {
	token := model.ParseIdentityToken(rawToken)

	result, err := s.joiner.Join(ctx, matchID, token)
	if err != nil {
		s.metrics.RecordJoin(joinOutcome(err))
		return nil, err
	}
	if !result.Created {
		s.metrics.RecordJoin(metrics.JoinOutcomeRejoined)
		return result, nil
	}
	s.metrics.RecordJoin(metrics.JoinOutcomeJoined)

	s.notifyJoined(ctx, token, result.Match)
	return result, nil
}

// notifyJoined は参加者を解決して参加確認通知をキューに積む。
// 解決に失敗しても参加結果には影響させない。
func (s *Service) notifyJoined(ctx context.Context, token model.IdentityToken, m *model.Match) {
	if s.notifier == nil {
		return
	}
	u, err := s.users.Resolve(ctx, token)
	if err != nil {
		s.logger.Warn("参加者の解決に失敗したため通知をスキップしました",
			slog.Int64("match_id", m.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if u == nil {
		s.logger.Info("参加者に対応するユーザーがいないため通知をスキップしました",
			slog.Int64("match_id", m.ID),
		)
		return
	}
	s.notifier.Enqueue(notify.MatchJoined(u, m))
}

// Provision は管理者による試合作成。
func (s *Service) Provision(ctx context.Context, in model.NewMatch) (*model.Match, error) {
	m, err := s.joiner.Provision(ctx, in)
	if err != nil {
		return nil, err
	}
	s.logger.Info("試合を作成しました", slog.Int64("match_id", m.ID), slog.String("location", m.Location))
	return m, nil
}

func joinOutcome(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case model.ErrCodeMatchFull:
			return metrics.JoinOutcomeFull
		case model.ErrCodeMatchNotFound:
			return metrics.JoinOutcomeNotFound
		}
	}
	return metrics.JoinOutcomeError
}
