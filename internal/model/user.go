package model

import "time"

// User はサービス利用ユーザーを表す。
// PasswordHashはbcryptハッシュで、APIレスポンスには含めない。
type User struct {
	ID           int64
	FullName     string
	Email        string
	PasswordHash string
	Age          int
	PhoneNumber  string
	Country      string
	IsAdmin      bool
	CreatedAt    time.Time
}

// NewUser はユーザー登録時の入力。
type NewUser struct {
	FullName    string
	Email       string
	Password    string
	Age         int
	PhoneNumber string
	Country     string
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// WaitlistEntry はランディングページのウェイトリスト登録。
type WaitlistEntry struct {
	ID         int64
	Email      string
	Name       string
	SkillLevel SkillLevel
	CreatedAt  time.Time
}

// ChatRole はチャットメッセージの発言者。
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage はAIコーチとの会話ログ1件。
type ChatMessage struct {
	ID             int64
	ConversationID string
	Role           ChatRole
	Content        string
	CreatedAt      time.Time
}
