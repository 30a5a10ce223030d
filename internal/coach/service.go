package coach

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/chatpadel/internal/metrics"
	"github.com/hitoshi/chatpadel/internal/model"
	"github.com/hitoshi/chatpadel/internal/repository"
)

// historyLimit はモデルに渡す会話履歴の最大件数。
const historyLimit = 10

// MatchLister は試合一覧を返すインターフェース。
type MatchLister interface {
	ListAvailable(ctx context.Context) ([]*model.Match, error)
}

// TextCleaner はHTMLを除去するインターフェース。
type TextCleaner interface {
	Clean(s string) string
}

// ChatResult はChatの戻り値。
type ChatResult struct {
	Message        string
	ConversationID string
	// Matches は応答にMatchFinderMarkerが含まれる場合のみ設定される。
	Matches []*model.Match
}

// Service はAIコーチとの会話を処理する。
type Service struct {
	producer Producer
	chatRepo repository.ChatMessageRepository
	matches  MatchLister
	cleaner  TextCleaner
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	producer Producer,
	chatRepo repository.ChatMessageRepository,
	matches MatchLister,
	cleaner TextCleaner,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		producer: producer,
		chatRepo: chatRepo,
		matches:  matches,
		cleaner:  cleaner,
		metrics:  mc,
		logger:   logger,
	}
}

// Chat はユーザーのメッセージに応答する。
// conversationIDが空の場合は新しい会話IDを発行する。
// 応答生成・保存に失敗した場合は内部エラー "Failed to reach the AI Coach" を返す。
func (s *Service) Chat(ctx context.Context, conversationID, message string) (*ChatResult, error) {
	message = s.clean(message)
	if message == "" {
		return nil, model.NewValidationError("message is required")
	}
	conversationID = strings.TrimSpace(conversationID)
	var history []*model.ChatMessage
	if conversationID == "" {
		conversationID = uuid.New().String()
	} else {
		h, err := s.chatRepo.ListByConversation(ctx, conversationID, historyLimit)
		if err != nil {
			return nil, s.fail(conversationID, fmt.Errorf("会話履歴の取得に失敗しました: %w", err))
		}
		history = h
	}

	if err := s.save(ctx, conversationID, model.ChatRoleUser, message); err != nil {
		return nil, s.fail(conversationID, err)
	}

	reply, err := s.producer.Advise(ctx, history, message)
	s.metrics.RecordAdvice(s.producer.Mode(), err == nil)
	if err != nil {
		return nil, s.fail(conversationID, err)
	}
	reply = s.clean(reply)

	if err := s.save(ctx, conversationID, model.ChatRoleAssistant, reply); err != nil {
		return nil, s.fail(conversationID, err)
	}

	result := &ChatResult{Message: reply, ConversationID: conversationID}
	if strings.Contains(reply, MatchFinderMarker) {
		matches, err := s.matches.ListAvailable(ctx)
		if err != nil {
			return nil, s.fail(conversationID, err)
		}
		result.Matches = matches
	}
	return result, nil
}

func (s *Service) save(ctx context.Context, conversationID string, role model.ChatRole, content string) error {
	if err := s.chatRepo.Create(ctx, &model.ChatMessage{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	}); err != nil {
		return fmt.Errorf("会話ログの保存に失敗しました: %w", err)
	}
	return nil
}

func (s *Service) fail(conversationID string, err error) error {
	s.logger.Error("AIコーチの応答に失敗しました",
		slog.String("conversation_id", conversationID),
		slog.String("mode", s.producer.Mode()),
		slog.String("error", err.Error()),
	)
	return model.NewInternalError("Failed to reach the AI Coach")
}

func (s *Service) clean(v string) string {
	if s.cleaner == nil {
		return strings.TrimSpace(v)
	}
	return s.cleaner.Clean(v)
}
