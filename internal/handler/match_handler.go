package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/chatpadel/internal/match"
	"github.com/hitoshi/chatpadel/internal/membership"
	"github.com/hitoshi/chatpadel/internal/model"
)

// joinSuccessMessage は参加成功時のメッセージ。通知の送信結果とは無関係に返す。
const joinSuccessMessage = "Joined match successfully! Notifications sent."

// MatchServiceInterface は試合ハンドラーが必要とするサービスインターフェース。
type MatchServiceInterface interface {
	ListAvailable(ctx context.Context) ([]*model.Match, error)
	Join(ctx context.Context, matchID int64, rawToken string) (*membership.JoinResult, error)
	ListMembershipsWithUsers(ctx context.Context) ([]match.MembershipView, error)
	Provision(ctx context.Context, in model.NewMatch) (*model.Match, error)
}

// MatchHandler は試合一覧・参加のHTTPハンドラー。
type MatchHandler struct {
	service MatchServiceInterface
}

// NewMatchHandler はMatchHandlerを生成する。
func NewMatchHandler(service MatchServiceInterface) *MatchHandler {
	return &MatchHandler{service: service}
}

// joinMatchRequest は参加リクエストのボディ。
// SessionIDは参加者のidentity token（ユーザーIDまたはメールアドレス）。
type joinMatchRequest struct {
	MatchID   flexString `json:"matchId"`
	SessionID flexString `json:"sessionId"`
}

// createMatchRequest は管理者による試合作成リクエストのボディ。
type createMatchRequest struct {
	Location       string `json:"location"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	Level          string `json:"level"`
	CurrentPlayers *int   `json:"currentPlayers"`
	MaxPlayers     int    `json:"maxPlayers"`
}

// ListMatches は全試合を返す。満員の試合も含む。
// GET /api/matches
func (h *MatchHandler) ListMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := h.service.ListAvailable(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMatchResponses(matches))
}

// JoinMatch は試合への参加を処理する。
// POST /api/matches/join
func (h *MatchHandler) JoinMatch(w http.ResponseWriter, r *http.Request) {
	var req joinMatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, resultResponse{Success: false, Message: model.NewInvalidRequestError().Message})
		return
	}

	matchID, ok := req.MatchID.int64()
	if !ok {
		writeJSON(w, http.StatusBadRequest, resultResponse{Success: false, Message: "matchId must be a number"})
		return
	}

	if _, err := h.service.Join(r.Context(), matchID, string(req.SessionID)); err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code != model.ErrCodeInternal {
			writeJSON(w, http.StatusBadRequest, resultResponse{Success: false, Message: apiErr.Message})
			return
		}
		slog.Error("試合への参加に失敗しました",
			slog.Int64("match_id", matchID),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, resultResponse{Success: false, Message: "Internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, resultResponse{Success: true, Message: joinSuccessMessage})
}

// ListMemberships は全参加記録を試合情報と参加者付きで返す。
// GET /api/admin/user-matches
func (h *MatchHandler) ListMemberships(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.ListMembershipsWithUsers(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]membershipResponse, len(views))
	for i, v := range views {
		resp[i] = toMembershipResponse(v)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateMatch は試合を作成する。
// POST /api/admin/matches
func (h *MatchHandler) CreateMatch(w http.ResponseWriter, r *http.Request) {
	var req createMatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, model.NewInvalidRequestError())
		return
	}

	current := model.DefaultCurrentPlayers
	if req.CurrentPlayers != nil {
		current = *req.CurrentPlayers
	}

	m, err := h.service.Provision(r.Context(), model.NewMatch{
		Location:       req.Location,
		Date:           req.Date,
		Time:           req.Time,
		Level:          model.SkillLevel(req.Level),
		CurrentPlayers: current,
		MaxPlayers:     req.MaxPlayers,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMatchResponse(m))
}
