package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// ドメインエラーはこの型で返し、メッセージはそのままユーザーに表示される。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, match, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeMatchNotFound      = "MATCH_NOT_FOUND"
	ErrCodeMatchFull          = "MATCH_FULL"
	ErrCodeEmailConflict      = "EMAIL_CONFLICT"
	ErrCodeWaitlistConflict   = "WAITLIST_CONFLICT"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewMatchNotFoundError は試合未検出エラーを生成する。
func NewMatchNotFoundError(matchID int64) *APIError {
	return &APIError{
		Code:     ErrCodeMatchNotFound,
		Message:  fmt.Sprintf("Match %d does not exist.", matchID),
		Category: "match",
		Action:   "Refresh the match list and pick another session.",
	}
}

// NewMatchFullError は定員到達エラーを生成する。
func NewMatchFullError(matchID int64) *APIError {
	return &APIError{
		Code:     ErrCodeMatchFull,
		Message:  fmt.Sprintf("Match %d is already full.", matchID),
		Category: "match",
		Action:   "Pick another session with free spots.",
	}
}

// NewEmailConflictError はメールアドレス重複エラーを生成する。
func NewEmailConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailConflict,
		Message:  "User already exists with this email",
		Category: "validation",
		Action:   "Sign in with this email or register with another one.",
	}
}

// NewWaitlistConflictError はウェイトリスト重複エラーを生成する。
func NewWaitlistConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeWaitlistConflict,
		Message:  "Email already in waitlist",
		Category: "validation",
		Action:   "We will contact you at this address soon.",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Unauthorized",
		Category: "auth",
		Action:   "Sign in and retry.",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "Forbidden: Admin access required",
		Category: "auth",
		Action:   "Sign in with an administrator account.",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password",
		Category: "auth",
		Action:   "Check your email and password.",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  message,
		Category: "validation",
		Action:   "Fix the highlighted field and submit again.",
	}
}

// NewInvalidRequestError はリクエストボディ不正エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "Request body could not be parsed.",
		Category: "validation",
		Action:   "Send a valid JSON body.",
	}
}

// NewInternalError は内部エラーの汎用レスポンスを生成する。詳細はログにのみ残す。
func NewInternalError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  message,
		Category: "system",
		Action:   "Please wait a moment and try again.",
	}
}
