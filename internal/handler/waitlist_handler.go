package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/chatpadel/internal/model"
)

// WaitlistServiceInterface はウェイトリストハンドラーが必要とするサービスインターフェース。
type WaitlistServiceInterface interface {
	Join(ctx context.Context, email, name, level string) (*model.WaitlistEntry, error)
	List(ctx context.Context) ([]*model.WaitlistEntry, error)
}

// WaitlistHandler はウェイトリストのHTTPハンドラー。
type WaitlistHandler struct {
	service WaitlistServiceInterface
}

// NewWaitlistHandler はWaitlistHandlerを生成する。
func NewWaitlistHandler(service WaitlistServiceInterface) *WaitlistHandler {
	return &WaitlistHandler{service: service}
}

type joinWaitlistRequest struct {
	Email      string `json:"email"`
	Name       string `json:"name"`
	SkillLevel string `json:"skillLevel"`
}

// Join はウェイトリスト登録を処理する。
// POST /api/waitlist
func (h *WaitlistHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinWaitlistRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, model.NewInvalidRequestError())
		return
	}

	if _, err := h.service.Join(r.Context(), req.Email, req.Name, req.SkillLevel); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resultResponse{Success: true, Message: "Successfully joined waitlist!"})
}

// List は全エントリを返す。
// GET /api/admin/waitlist
func (h *WaitlistHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]waitlistResponse, len(entries))
	for i, e := range entries {
		resp[i] = toWaitlistResponse(e)
	}
	writeJSON(w, http.StatusOK, resp)
}
