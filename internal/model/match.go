// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strings"
	"time"
)

// SkillLevel は試合・ウェイトリストで扱うプレイヤーレベル。
type SkillLevel string

const (
	SkillLevelBeginner     SkillLevel = "beginner"
	SkillLevelIntermediate SkillLevel = "intermediate"
	SkillLevelAdvanced     SkillLevel = "advanced"
	SkillLevelPro          SkillLevel = "pro"
)

// ParseSkillLevel は文字列をSkillLevelに変換する。大文字小文字は区別しない。
func ParseSkillLevel(s string) (SkillLevel, error) {
	switch SkillLevel(strings.ToLower(strings.TrimSpace(s))) {
	case SkillLevelBeginner:
		return SkillLevelBeginner, nil
	case SkillLevelIntermediate:
		return SkillLevelIntermediate, nil
	case SkillLevelAdvanced:
		return SkillLevelAdvanced, nil
	case SkillLevelPro:
		return SkillLevelPro, nil
	default:
		return "", fmt.Errorf("unknown skill level: %q", s)
	}
}

const (
	// DefaultMaxPlayers は試合の定員のデフォルト値。
	DefaultMaxPlayers = 4
	// DefaultCurrentPlayers は作成時の参加人数のデフォルト値（主催者の1名）。
	DefaultCurrentPlayers = 1
)

// Match は定員付きの予定試合を表す。
// CurrentPlayersはmembership.Coordinator経由でのみ増加する。
// 常に 0 <= CurrentPlayers <= MaxPlayers を満たす。
type Match struct {
	ID             int64
	Location       string
	Date           string // 表示用の文字列。日時計算は行わない
	Time           string
	Level          SkillLevel
	CurrentPlayers int
	MaxPlayers     int
	ExternalRef    string // スケジュールフィード由来の場合のみ設定される
	CreatedAt      time.Time
}

// IsFull は定員に達しているかを返す。
func (m *Match) IsFull() bool {
	return m.CurrentPlayers >= m.MaxPlayers
}

// NewMatch は試合作成時の入力。
type NewMatch struct {
	Location       string
	Date           string
	Time           string
	Level          SkillLevel
	CurrentPlayers int
	MaxPlayers     int
	ExternalRef    string
}

// Membership は特定のidentity tokenが試合の1枠を占有した記録。
// (MatchID, IdentityToken) の組で一意。作成後は変更・削除されない。
type Membership struct {
	MatchID       int64
	IdentityToken string
	JoinedAt      time.Time
}
