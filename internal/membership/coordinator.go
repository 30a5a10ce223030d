// Package membership は試合への参加と定員管理を担う。
// 試合の参加人数とmembershipを変更するのはCoordinatorのみ。
package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/chatpadel/internal/model"
	"github.com/hitoshi/chatpadel/internal/repository"
)

// lockStripes は試合IDごとの排他に使うロックの本数。
const lockStripes = 64

// JoinResult は参加処理の結果。
type JoinResult struct {
	// Match は参加処理後の試合のスナップショット。
	Match *model.Match
	// Created は新しいmembershipが作成された場合にtrue。再参加の場合はfalse。
	Created bool
}

// Coordinator は試合の定員と重複参加の不変条件を守る。
// 同一試合への参加は試合IDで選ばれるストライプロックで直列化される。
type Coordinator struct {
	matches repository.MatchRepository
	locks   [lockStripes]sync.Mutex
	now     func() time.Time
	logger  *slog.Logger
}

// NewCoordinator はCoordinatorを生成する。
func NewCoordinator(matches repository.MatchRepository, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		matches: matches,
		now:     time.Now,
		logger:  logger,
	}
}

func (c *Coordinator) lockFor(matchID int64) *sync.Mutex {
	idx := matchID % lockStripes
	if idx < 0 {
		idx = -idx
	}
	return &c.locks[idx]
}

// Join はtokenを試合に参加させる。
//
//  1. 試合が存在しなければ MATCH_NOT_FOUND
//  2. 既に参加済みなら Created=false で成功（参加人数は変えない）
//  3. 定員に達していれば MATCH_FULL
//  4. membership作成と参加人数のインクリメントを不可分に行う
//
// ストレージの失敗はラップしたエラーとして返し、呼び出し側で内部エラーとして扱う。
func (c *Coordinator) Join(ctx context.Context, matchID int64, token model.IdentityToken) (*JoinResult, error) {
	if token.IsEmpty() {
		return nil, model.NewValidationError("sessionId is required")
	}
	key := token.String()

	mu := c.lockFor(matchID)
	mu.Lock()
	defer mu.Unlock()

	match, err := c.matches.FindByID(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load match %d: %w", matchID, err)
	}
	if match == nil {
		return nil, model.NewMatchNotFoundError(matchID)
	}

	member, err := c.matches.HasMember(ctx, matchID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}
	if member {
		return &JoinResult{Match: match, Created: false}, nil
	}

	if match.IsFull() {
		return nil, model.NewMatchFullError(matchID)
	}

	updated, err := c.matches.AddMember(ctx, matchID, key, c.now())
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrAlreadyMember):
		// 別プロセスが先に同じmembershipを作成した
		current, findErr := c.matches.FindByID(ctx, matchID)
		if findErr != nil || current == nil {
			current = match
		}
		return &JoinResult{Match: current, Created: false}, nil
	case errors.Is(err, repository.ErrMatchFull):
		return nil, model.NewMatchFullError(matchID)
	case errors.Is(err, repository.ErrMatchNotFound):
		return nil, model.NewMatchNotFoundError(matchID)
	default:
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	c.logger.Info("試合に参加しました",
		slog.Int64("match_id", matchID),
		slog.Int("current_players", updated.CurrentPlayers),
		slog.Int("max_players", updated.MaxPlayers),
	)

	return &JoinResult{Match: updated, Created: true}, nil
}

// Provision は入力を検証して試合を作成する。
// シード・管理者による作成・スケジュールインポートで使用する。
func (c *Coordinator) Provision(ctx context.Context, in model.NewMatch) (*model.Match, error) {
	m, err := buildMatch(in)
	if err != nil {
		return nil, err
	}
	if err := c.matches.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to create match: %w", err)
	}
	return m, nil
}

// ProvisionIfAbsent はExternalRefが未登録の場合のみ試合を作成する。作成した場合はtrueを返す。
func (c *Coordinator) ProvisionIfAbsent(ctx context.Context, in model.NewMatch) (*model.Match, bool, error) {
	if strings.TrimSpace(in.ExternalRef) == "" {
		return nil, false, model.NewValidationError("externalRef is required")
	}
	m, err := buildMatch(in)
	if err != nil {
		return nil, false, err
	}
	created, err := c.matches.CreateIfAbsent(ctx, m)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create match: %w", err)
	}
	return m, created, nil
}

// buildMatch はNewMatchを検証してMatchに変換する。
// MaxPlayersが0の場合はDefaultMaxPlayersを使う。
func buildMatch(in model.NewMatch) (*model.Match, error) {
	location := strings.TrimSpace(in.Location)
	if location == "" {
		return nil, model.NewValidationError("location is required")
	}
	if strings.TrimSpace(in.Date) == "" || strings.TrimSpace(in.Time) == "" {
		return nil, model.NewValidationError("date and time are required")
	}
	level, err := model.ParseSkillLevel(string(in.Level))
	if err != nil {
		return nil, model.NewValidationError("level must be one of beginner, intermediate, advanced, pro")
	}

	maxPlayers := in.MaxPlayers
	if maxPlayers == 0 {
		maxPlayers = model.DefaultMaxPlayers
	}
	if maxPlayers < 1 {
		return nil, model.NewValidationError("maxPlayers must be at least 1")
	}
	if in.CurrentPlayers < 0 || in.CurrentPlayers > maxPlayers {
		return nil, model.NewValidationError("currentPlayers must be between 0 and maxPlayers")
	}

	return &model.Match{
		Location:       location,
		Date:           strings.TrimSpace(in.Date),
		Time:           strings.TrimSpace(in.Time),
		Level:          level,
		CurrentPlayers: in.CurrentPlayers,
		MaxPlayers:     maxPlayers,
		ExternalRef:    strings.TrimSpace(in.ExternalRef),
	}, nil
}
