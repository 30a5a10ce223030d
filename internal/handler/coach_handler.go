package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/chatpadel/internal/coach"
)

// CoachServiceInterface はAIコーチハンドラーが必要とするサービスインターフェース。
type CoachServiceInterface interface {
	Chat(ctx context.Context, conversationID, message string) (*coach.ChatResult, error)
}

// CoachHandler はAIコーチのHTTPハンドラー。
type CoachHandler struct {
	service CoachServiceInterface
}

// NewCoachHandler はCoachHandlerを生成する。
func NewCoachHandler(service CoachServiceInterface) *CoachHandler {
	return &CoachHandler{service: service}
}

// chatRequest はチャットリクエストのボディ。sessionIdは会話ID。
type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

type chatResponse struct {
	Message   string          `json:"message"`
	SessionID string          `json:"sessionId"`
	Matches   []matchResponse `json:"matches,omitempty"`
}

// Chat はAIコーチへのメッセージを処理する。
// POST /api/ai-coach/chat
func (h *CoachHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Request body could not be parsed."})
		return
	}

	res, err := h.service.Chat(r.Context(), req.SessionID, req.Message)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := chatResponse{Message: res.Message, SessionID: res.ConversationID}
	if res.Matches != nil {
		resp.Matches = toMatchResponses(res.Matches)
	}
	writeJSON(w, http.StatusOK, resp)
}
