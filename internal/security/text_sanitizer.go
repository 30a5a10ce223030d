package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はユーザー入力やAIコーチの応答からHTMLを取り除く。
type TextSanitizer interface {
	// Clean は全てのタグを除去し、エンティティを戻したプレーンテキストを返す。
	// script/styleの中身は残さない。前後の空白は除去する。
	Clean(s string) string
}

// textSanitizer はbluemondayのStrictPolicyによるTextSanitizer実装。
// bluemonday.Policyは並行利用可能。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Clean はHTMLを除去したプレーンテキストを返す。
func (s *textSanitizer) Clean(in string) string {
	if in == "" {
		return ""
	}
	// StrictPolicyは&や<をエスケープするため、JSONで返す前に戻す
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(in)))
}
