// Package auth はパスワードログイン、セッション管理、パスワード再設定の受付を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/hitoshi/chatpadel/internal/model"
	"github.com/hitoshi/chatpadel/internal/notify"
	"github.com/hitoshi/chatpadel/internal/repository"
)

// UserDirectory は認証に必要なユーザー検索と照合のインターフェース。
type UserDirectory interface {
	VerifyPassword(ctx context.Context, email, password string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id int64) (*model.User, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int    // セッション有効期間（秒）
	BaseURL       string // パスワード再設定リンクの生成に使用
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	users       UserDirectory
	sessionRepo repository.SessionRepository
	notifier    notify.Enqueuer
	config      ServiceConfig
	logger      *slog.Logger
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	users UserDirectory,
	sessionRepo repository.SessionRepository,
	notifier notify.Enqueuer,
	config ServiceConfig,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:       users,
		sessionRepo: sessionRepo,
		notifier:    notifier,
		config:      config,
		logger:      logger,
		now:         time.Now,
	}
}

// Login はメールアドレスとパスワードを照合し、セッションを発行する。
// 照合に失敗した場合はINVALID_CREDENTIALSを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*model.Session, *model.User, error) {
	user, err := s.users.VerifyPassword(ctx, email, password)
	if err != nil {
		return nil, nil, err
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.Info("ユーザーがログインしました", slog.Int64("user_id", user.ID))
	return session, user, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.logger.Info("ユーザーがログアウトしました")
	return nil
}

// CurrentUser はセッションから現在のユーザーを取得する。
// セッションが無い・期限切れ・ユーザー削除済みの場合はUNAUTHORIZEDを返す。
func (s *Service) CurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, model.NewUnauthorizedError()
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil || !session.ExpiresAt.After(s.now()) {
		return nil, model.NewUnauthorizedError()
	}

	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUnauthorizedError()
	}

	return user, nil
}

// ForgotPassword はパスワード再設定の依頼を受け付ける。
// アカウントの有無を呼び出し側に漏らさないため、ユーザーが存在しない場合もnilを返す。
// ユーザーが存在する場合のみ再設定リンクのメールをキューに積む。
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		s.logger.Info("未登録のメールアドレスに対するパスワード再設定依頼")
		return nil
	}

	token, err := generateSessionID()
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}
	link := s.config.BaseURL + "/reset-password?token=" + url.QueryEscape(token)

	if s.notifier != nil {
		s.notifier.Enqueue(notify.PasswordReset(user.Email, link))
	}
	s.logger.Info("パスワード再設定メールをキューに追加しました", slog.Int64("user_id", user.ID))
	return nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID int64) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
