// Package repository はデータ永続化のインターフェースを定義する。
// PostgreSQL実装とインメモリ実装の2系統を提供する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/chatpadel/internal/model"
)

var (
	// ErrMatchNotFound はAddMember対象の試合が存在しないことを示す。
	ErrMatchNotFound = errors.New("match not found")
	// ErrMatchFull はAddMember時に定員に達していたことを示す。
	ErrMatchFull = errors.New("match is full")
	// ErrAlreadyMember は(match, identity token)のmembershipが既に存在することを示す。
	ErrAlreadyMember = errors.New("membership already exists")
	// ErrDuplicateEmail はメールアドレスの一意制約違反を示す。
	ErrDuplicateEmail = errors.New("email already registered")
)

// MatchRepository は試合とmembershipの永続化インターフェース。
// AddMemberを呼び出してよいのはmembership.Coordinatorのみ。
type MatchRepository interface {
	// FindByID は指定IDの試合を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Match, error)

	// List は全試合を作成順で返す。
	List(ctx context.Context) ([]*model.Match, error)

	// Create は試合を作成し、採番したIDとCreatedAtを設定する。
	Create(ctx context.Context, match *model.Match) error

	// CreateIfAbsent はExternalRefが未登録の場合のみ試合を作成する。
	// 作成した場合はtrueを返す。既存の試合は更新しない。
	CreateIfAbsent(ctx context.Context, match *model.Match) (bool, error)

	// HasMember は(matchID, token)のmembershipが存在するかを返す。
	HasMember(ctx context.Context, matchID int64, token string) (bool, error)

	// AddMember はmembershipの作成とcurrent_playersのインクリメントを不可分に行い、
	// 更新後の試合を返す。どちらか一方だけが観測されることはない。
	// 既存membershipの場合はErrAlreadyMember、定員到達の場合はErrMatchFullを返す。
	AddMember(ctx context.Context, matchID int64, token string, joinedAt time.Time) (*model.Match, error)

	// ListMembershipsWithMatch は全membershipを参加順で、所属する試合と結合して返す。
	ListMembershipsWithMatch(ctx context.Context) ([]MembershipWithMatch, error)
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成し、採番したIDとCreatedAtを設定する。
	// メールアドレスが登録済みの場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// List は全ユーザーをID順で返す。
	List(ctx context.Context) ([]*model.User, error)
}

// SessionRepository はログインセッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired はnow時点で期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// WaitlistRepository はウェイトリストの永続化インターフェース。
type WaitlistRepository interface {
	// ExistsByEmail はメールアドレスが登録済みかを返す。
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	// Create はエントリを作成する。重複時はErrDuplicateEmailを返す。
	Create(ctx context.Context, entry *model.WaitlistEntry) error
	// List は全エントリを登録順で返す。
	List(ctx context.Context) ([]*model.WaitlistEntry, error)
}

// ChatMessageRepository はAIコーチとの会話ログの永続化インターフェース。
type ChatMessageRepository interface {
	// Create はメッセージを保存する。
	Create(ctx context.Context, msg *model.ChatMessage) error
	// ListByConversation は会話のメッセージを古い順に最大limit件返す。
	ListByConversation(ctx context.Context, conversationID string, limit int) ([]*model.ChatMessage, error)
	// DeleteOlderThan はcutoffより前に作成されたメッセージを削除し、削除件数を返す。
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// MembershipWithMatch はmembershipと所属する試合を結合した構造体。
type MembershipWithMatch struct {
	model.Membership
	Match model.Match
}
