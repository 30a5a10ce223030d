// Package waitlist はランディングページのウェイトリスト登録を扱う。
package waitlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/chatpadel/internal/model"
	"github.com/hitoshi/chatpadel/internal/repository"
)

// TextCleaner は自由入力欄からHTMLを除去するインターフェース。
type TextCleaner interface {
	Clean(s string) string
}

// Service はウェイトリストのサービス層。
type Service struct {
	repo    repository.WaitlistRepository
	cleaner TextCleaner
	logger  *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.WaitlistRepository, cleaner TextCleaner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cleaner: cleaner, logger: logger}
}

// Join はウェイトリストに登録する。
// 登録済みのメールアドレスはWAITLIST_CONFLICT、不正な入力はVALIDATION_FAILEDを返す。
func (s *Service) Join(ctx context.Context, email, name, level string) (*model.WaitlistEntry, error) {
	normalized, err := model.NormalizeEmail(email)
	if err != nil {
		return nil, model.NewValidationError("Invalid email")
	}
	skill, err := model.ParseSkillLevel(level)
	if err != nil {
		return nil, model.NewValidationError("Invalid skill level")
	}
	cleanName := strings.TrimSpace(name)
	if s.cleaner != nil {
		cleanName = s.cleaner.Clean(name)
	}
	if cleanName == "" {
		return nil, model.NewValidationError("Name is required")
	}

	exists, err := s.repo.ExistsByEmail(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("ウェイトリストの検索に失敗しました: %w", err)
	}
	if exists {
		return nil, model.NewWaitlistConflictError()
	}

	entry := &model.WaitlistEntry{
		Email:      normalized,
		Name:       cleanName,
		SkillLevel: skill,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewWaitlistConflictError()
		}
		return nil, fmt.Errorf("ウェイトリストへの登録に失敗しました: %w", err)
	}

	s.logger.Info("ウェイトリストに登録しました",
		slog.Int64("entry_id", entry.ID),
		slog.String("skill_level", string(skill)),
	)
	return entry, nil
}

// List は全エントリを登録順で返す。
func (s *Service) List(ctx context.Context) ([]*model.WaitlistEntry, error) {
	entries, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ウェイトリストの取得に失敗しました: %w", err)
	}
	return entries, nil
}
