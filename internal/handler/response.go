// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/chatpadel/internal/match"
	"github.com/hitoshi/chatpadel/internal/middleware"
	"github.com/hitoshi/chatpadel/internal/model"
)

// maxRequestBodyBytes はJSONリクエストボディの上限。
const maxRequestBodyBytes = 1 << 20

// matchResponse は試合情報のAPIレスポンス。
type matchResponse struct {
	ID             int64     `json:"id"`
	Location       string    `json:"location"`
	Date           string    `json:"date"`
	Time           string    `json:"time"`
	Level          string    `json:"level"`
	CurrentPlayers int       `json:"currentPlayers"`
	MaxPlayers     int       `json:"maxPlayers"`
	CreatedAt      time.Time `json:"createdAt"`
}

// userResponse はユーザー情報のAPIレスポンス。パスワードハッシュは含めない。
type userResponse struct {
	ID          int64     `json:"id"`
	FullName    string    `json:"fullName"`
	Email       string    `json:"email"`
	Age         int       `json:"age"`
	PhoneNumber string    `json:"phoneNumber"`
	Country     string    `json:"country"`
	IsAdmin     bool      `json:"isAdmin"`
	CreatedAt   time.Time `json:"createdAt"`
}

// membershipResponse は管理者向け参加一覧の1行。試合のフィールドに参加者情報を加える。
type membershipResponse struct {
	matchResponse
	IdentityToken string        `json:"identityToken"`
	JoinedAt      time.Time     `json:"joinedAt"`
	User          *userResponse `json:"user"`
}

// waitlistResponse はウェイトリストエントリのAPIレスポンス。
type waitlistResponse struct {
	ID         int64     `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	SkillLevel string    `json:"skillLevel"`
	CreatedAt  time.Time `json:"createdAt"`
}

// resultResponse は成否とメッセージのみのレスポンス。
type resultResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func toMatchResponse(m *model.Match) matchResponse {
	return matchResponse{
		ID:             m.ID,
		Location:       m.Location,
		Date:           m.Date,
		Time:           m.Time,
		Level:          string(m.Level),
		CurrentPlayers: m.CurrentPlayers,
		MaxPlayers:     m.MaxPlayers,
		CreatedAt:      m.CreatedAt,
	}
}

func toMatchResponses(matches []*model.Match) []matchResponse {
	out := make([]matchResponse, len(matches))
	for i, m := range matches {
		out[i] = toMatchResponse(m)
	}
	return out
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:          u.ID,
		FullName:    u.FullName,
		Email:       u.Email,
		Age:         u.Age,
		PhoneNumber: u.PhoneNumber,
		Country:     u.Country,
		IsAdmin:     u.IsAdmin,
		CreatedAt:   u.CreatedAt,
	}
}

func toMembershipResponse(v match.MembershipView) membershipResponse {
	resp := membershipResponse{
		matchResponse: toMatchResponse(&v.Match),
		IdentityToken: v.Membership.IdentityToken,
		JoinedAt:      v.Membership.JoinedAt,
	}
	if v.User != nil {
		u := toUserResponse(v.User)
		resp.User = &u
	}
	return resp
}

func toWaitlistResponse(e *model.WaitlistEntry) waitlistResponse {
	return waitlistResponse{
		ID:         e.ID,
		Email:      e.Email,
		Name:       e.Name,
		SkillLevel: string(e.SkillLevel),
		CreatedAt:  e.CreatedAt,
	}
}

// flexString は文字列・数値どちらのJSON値も文字列として受け取る。
// 参加リクエストのmatchIdとsessionIdはクライアントによって型が揺れる。
type flexString string

// UnmarshalJSON は文字列・数値・nullを受け付ける。
func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// int64 は整数として解釈した値を返す。
func (f flexString) int64() (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(string(f)), 10, 64)
	return id, err == nil
}

// decodeJSON はリクエストボディを上限付きでデコードする。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// APIError以外のエラーは詳細をログのみに記録し、一般的なメッセージを返す。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, middleware.StatusForError(apiErr), apiErr)
		return
	}

	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}
