// Package user はユーザーディレクトリのドメインロジックを提供する。
// 登録、検索、参加リクエストのidentity tokenからのユーザー解決を扱う。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hitoshi/chatpadel/internal/model"
	"github.com/hitoshi/chatpadel/internal/notify"
	"github.com/hitoshi/chatpadel/internal/repository"
)

const (
	minPasswordLength = 8
	minAge            = 5
	maxAge            = 100
	minPhoneLength    = 6
)

// PasswordHasher はパスワードハッシュのインターフェース。
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// TextCleaner は自由入力欄からHTMLを除去するインターフェース。
type TextCleaner interface {
	Clean(s string) string
}

// Service はユーザーディレクトリのサービス層。
type Service struct {
	userRepo repository.UserRepository
	hasher   PasswordHasher
	cleaner  TextCleaner
	notifier notify.Enqueuer
	logger   *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
// notifierがnilの場合は登録完了メールを送らない。
func NewService(
	userRepo repository.UserRepository,
	hasher PasswordHasher,
	cleaner TextCleaner,
	notifier notify.Enqueuer,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		userRepo: userRepo,
		hasher:   hasher,
		cleaner:  cleaner,
		notifier: notifier,
		logger:   logger,
	}
}

// Register はユーザーを登録する。
// メールアドレスが登録済みの場合はEMAIL_CONFLICTを返し、既存ユーザーは変更しない。
// 管理者フラグは常にfalseで作成する。
func (s *Service) Register(ctx context.Context, in model.NewUser) (*model.User, error) {
	u, err := s.build(in)
	if err != nil {
		return nil, err
	}

	existing, err := s.userRepo.FindByEmail(ctx, u.Email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailConflictError()
	}

	if err := s.userRepo.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewEmailConflictError()
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	s.logger.Info("ユーザーを登録しました", slog.Int64("user_id", u.ID))

	if s.notifier != nil {
		s.notifier.Enqueue(notify.Welcome(u))
	}
	return u, nil
}

// EnsureAdmin は管理者ユーザーが存在しなければ作成する。既存の場合は何もしない。
// 管理者フラグを立てられるのはこの経路のみ。
func (s *Service) EnsureAdmin(ctx context.Context, in model.NewUser) (*model.User, bool, error) {
	u, err := s.build(in)
	if err != nil {
		return nil, false, err
	}
	existing, err := s.userRepo.FindByEmail(ctx, u.Email)
	if err != nil {
		return nil, false, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if existing != nil {
		if !existing.IsAdmin {
			s.logger.Warn("既存ユーザーは管理者ではありません", slog.Int64("user_id", existing.ID))
		}
		return existing, false, nil
	}

	u.IsAdmin = true
	if err := s.userRepo.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			existing, findErr := s.userRepo.FindByEmail(ctx, u.Email)
			if findErr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("管理者ユーザーの作成に失敗しました: %w", err)
	}
	s.logger.Info("管理者ユーザーを作成しました", slog.Int64("user_id", u.ID))
	return u, true, nil
}

// build は入力を検証し、パスワードをハッシュ化したUserを返す。
func (s *Service) build(in model.NewUser) (*model.User, error) {
	email, err := model.NormalizeEmail(in.Email)
	if err != nil {
		return nil, model.NewValidationError("Invalid email")
	}
	fullName := s.clean(in.FullName)
	if fullName == "" {
		return nil, model.NewValidationError("Full name is required")
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	if in.Age < minAge {
		return nil, model.NewValidationError("You must be at least 5 years old")
	}
	if in.Age > maxAge {
		return nil, model.NewValidationError("Age must be at most 100")
	}
	phone := strings.TrimSpace(in.PhoneNumber)
	if utf8.RuneCountInString(phone) < minPhoneLength {
		return nil, model.NewValidationError("Invalid phone number")
	}
	country := s.clean(in.Country)
	if country == "" {
		return nil, model.NewValidationError("Country is required")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	return &model.User{
		FullName:     fullName,
		Email:        email,
		PasswordHash: hash,
		Age:          in.Age,
		PhoneNumber:  phone,
		Country:      country,
	}, nil
}

func (s *Service) clean(v string) string {
	if s.cleaner == nil {
		return strings.TrimSpace(v)
	}
	return s.cleaner.Clean(v)
}

func validatePassword(pw string) error {
	if utf8.RuneCountInString(pw) < minPasswordLength {
		return model.NewValidationError("Password must be at least 8 characters long")
	}
	var upper, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper {
		return model.NewValidationError("Password must contain at least one uppercase letter")
	}
	if !digit {
		return model.NewValidationError("Password must contain at least one number")
	}
	return nil
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (s *Service) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	normalized, err := model.NormalizeEmail(email)
	if err != nil {
		return nil, nil
	}
	u, err := s.userRepo.FindByEmail(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	return u, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (s *Service) FindByID(ctx context.Context, id int64) (*model.User, error) {
	u, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	return u, nil
}

// ListAll は全ユーザーをID順で返す。
func (s *Service) ListAll(ctx context.Context) ([]*model.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// Resolve はidentity tokenをユーザーに解決する。
// アカウントIDとして解釈されたtokenはIDで、それ以外はメールアドレスで検索する。
// 該当するユーザーがいない場合はnilを返す。
func (s *Service) Resolve(ctx context.Context, token model.IdentityToken) (*model.User, error) {
	if token.IsEmpty() {
		return nil, nil
	}
	switch token.Kind {
	case model.IdentityKindAccountID:
		return s.FindByID(ctx, token.AccountID)
	default:
		return s.FindByEmail(ctx, token.Email)
	}
}

// VerifyPassword はメールアドレスとパスワードを照合する。
// 一致しない場合はINVALID_CREDENTIALSを返す。
func (s *Service) VerifyPassword(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil || password == "" {
		return nil, model.NewInvalidCredentialsError()
	}
	if err := s.hasher.Compare(u.PasswordHash, password); err != nil {
		return nil, model.NewInvalidCredentialsError()
	}
	return u, nil
}
