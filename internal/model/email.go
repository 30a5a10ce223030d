package model

import (
	"fmt"
	"net/mail"
	"strings"
)

// NormalizeEmail はメールアドレスを検証し、前後の空白を除いた小文字表記を返す。
// 表示名付きの形式（"Ana <ana@example.com>"）は受け付けない。
func NormalizeEmail(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || !strings.Contains(s[strings.LastIndex(s, "@")+1:], ".") {
		return "", fmt.Errorf("invalid email address: %q", raw)
	}
	return strings.ToLower(s), nil
}
