package model

import (
	"strconv"
	"strings"
)

// IdentityKind はidentity tokenの種別。
type IdentityKind int

const (
	// IdentityKindAccountID は数値のアカウントIDとして解釈されたtoken。
	IdentityKindAccountID IdentityKind = iota
	// IdentityKindEmail はメールアドレス（またはその他の文字列）として解釈されたtoken。
	IdentityKindEmail
)

// IdentityToken は参加リクエストで送られる識別子。
// 境界で一度だけ解釈し、以降は正規化済みの値のみを使う。
type IdentityToken struct {
	Kind      IdentityKind
	AccountID int64
	// Email は前後の空白を除いた小文字表記。
	Email string
}

// ParseIdentityToken は生のtokenを解釈する。
// 整数としてパースできればアカウントID、できなければメールアドレスとして扱う。
// "7", " 7", "07", "+7" はすべて同じアカウントIDになる。
func ParseIdentityToken(raw string) IdentityToken {
	trimmed := strings.TrimSpace(raw)
	if id, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return IdentityToken{Kind: IdentityKindAccountID, AccountID: id}
	}
	email, err := NormalizeEmail(trimmed)
	if err != nil {
		// メール形式でないゲストtokenも大文字小文字を区別しない
		email = strings.ToLower(trimmed)
	}
	return IdentityToken{Kind: IdentityKindEmail, Email: email}
}

// String はmembershipのキーとして保存される正規化済みのtokenを返す。
func (t IdentityToken) String() string {
	if t.Kind == IdentityKindAccountID {
		return strconv.FormatInt(t.AccountID, 10)
	}
	return t.Email
}

// IsEmpty はtokenが空かどうかを返す。
func (t IdentityToken) IsEmpty() bool {
	return t.Kind == IdentityKindEmail && t.Email == ""
}
