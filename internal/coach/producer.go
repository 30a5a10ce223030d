// Package coach はAIコーチの応答生成と会話ログの保存を提供する。
package coach

import (
	"context"
	"strings"

	"github.com/hitoshi/chatpadel/internal/model"
)

// MatchFinderMarker は応答に含まれると試合一覧を添付するマーカー。
const MatchFinderMarker = "[MATCH_FINDER]"

// 応答モードのラベル値
const (
	ModeOpenAI = "openai"
	ModeDemo   = "demo"
)

// systemPrompt はコーチのペルソナと試合検索マーカーの規則を指示する。
const systemPrompt = `You are an elite, all-knowing Padel Coach AI named "ChatPadel Pro".
Your personality is sophisticated, encouraging, and extremely knowledgeable.
While your primary expertise is Padel strategy, rules, and technique, you are capable of answering ANY question the user asks with professional grace.
Always try to subtly relate the answer back to Padel if possible, but don't force it if the topic is completely different.

Matchmaking Rules:
If the user wants to "find a match", "join a session", "play tomorrow", or any intent related to finding a game, you MUST:
1. Respond enthusiastically.
2. Include the EXACT keyword "[MATCH_FINDER]" in your response.

Example: "I'd love to help you find a match! Here are some sessions available: [MATCH_FINDER]"`

// Producer はユーザーのメッセージに対するコーチの応答を生成する。
// historyは同じ会話の直近のメッセージ（古い順）で、今回のmessageは含まない。
type Producer interface {
	Advise(ctx context.Context, history []*model.ChatMessage, message string) (string, error)
	// Mode はメトリクスのラベルに使うモード名を返す。
	Mode() string
}

// デモモードの定型応答
const (
	replyMatchFinder = "I've found some excellent matches for you! As your coach, I recommend joining one of these to keep your momentum going. 🎾 " + MatchFinderMarker
	replyGreeting    = "Hello! I'm ChatPadel Pro, your elite Padel coach. I'm here to help you master the court, whether it's perfecting your bandeja or finding your next match. How can I assist you today?"
	replyTip         = "Improving your game is all about consistency. My top tip for today: Focus on your 'split step' just before your opponent hits the ball. It improves your reaction time significantly. Would you like more specific tactical advice?"
	replyDefault     = "That's a great question. As an elite coach, I always say that the mental game is just as important as the physical. I'm currently running in a specialized performance mode, but I can certainly help you find a match or give you some quick tactical tips! What are you looking to achieve today?"
)

// KeywordProducer はAPIキー未設定時に使うキーワードベースの応答生成。
// 判定は上から順に、試合検索・挨拶・戦術相談・その他。
type KeywordProducer struct{}

// NewKeywordProducer はKeywordProducerを生成する。
func NewKeywordProducer() *KeywordProducer {
	return &KeywordProducer{}
}

// Advise はメッセージに含まれるキーワードから定型応答を選ぶ。
func (p *KeywordProducer) Advise(_ context.Context, _ []*model.ChatMessage, message string) (string, error) {
	msg := strings.ToLower(message)
	switch {
	case containsAny(msg, "match", "session", "join", "play"):
		return replyMatchFinder, nil
	case containsAny(msg, "hello", "hi ", "hey") || msg == "hi":
		return replyGreeting, nil
	case containsAny(msg, "tactic", "help", "tip", "improve"):
		return replyTip, nil
	default:
		return replyDefault, nil
	}
}

// Mode はModeDemoを返す。
func (p *KeywordProducer) Mode() string {
	return ModeDemo
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
