package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/chatpadel/internal/metrics"
	"github.com/hitoshi/chatpadel/internal/middleware"
)

// HealthChecker はストレージの疎通確認を行う。
type HealthChecker func(ctx context.Context) error

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.CurrentUserFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	MetricsHandler    http.Handler
	HealthCheck       HealthChecker

	// 認証・ユーザー
	AuthService AuthServiceInterface
	UserService UserServiceInterface
	AuthConfig  AuthHandlerConfig

	// 試合
	MatchService MatchServiceInterface

	// ウェイトリスト
	WaitlistService WaitlistServiceInterface

	// AIコーチ
	CoachService CoachServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Recovery → Logging → Metrics → SecurityHeaders → CORS → RateLimit(General)
//
// 書き込み系の公開エンドポイントにはStrictのレート制限を追加する。
// 管理者ルート（/api/admin/*）は Session → Admin → CSRF を通す。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mc := deps.Metrics
	if mc == nil {
		mc = metrics.Nop{}
	}

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(mc))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.UserService, deps.AuthConfig)
	matchHandler := NewMatchHandler(deps.MatchService)
	waitlistHandler := NewWaitlistHandler(deps.WaitlistService)
	coachHandler := NewCoachHandler(deps.CoachService)

	// 運用エンドポイントはレート制限の対象外
	r.Get("/health", healthHandler(deps.HealthCheck))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())
		strict := r.With(deps.RateLimiter.StrictMiddleware())
		csrf := middleware.NewCSRFMiddleware(deps.CSRFConfig)

		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

		// --- 認証不要のルート ---
		r.Get("/matches", matchHandler.ListMatches)
		strict.Post("/matches/join", matchHandler.JoinMatch)

		strict.Post("/register", authHandler.Register)
		strict.Post("/login", authHandler.Login)
		strict.Post("/forgot-password", authHandler.ForgotPassword)
		r.With(csrf).Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)

		strict.Post("/waitlist", waitlistHandler.Join)
		strict.Post("/ai-coach/chat", coachHandler.Chat)

		// --- 管理者ルート ---
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
			r.Use(middleware.NewAdminMiddleware())
			r.Use(csrf)

			r.Get("/users", authHandler.ListUsers)
			r.Get("/user-matches", matchHandler.ListMemberships)
			r.Get("/waitlist", waitlistHandler.List)
			r.Post("/matches", matchHandler.CreateMatch)
		})
	})

	return r
}

// healthHandler はストレージの疎通を確認して結果を返す。
// GET /health
func healthHandler(check HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				slog.Error("ヘルスチェックに失敗しました", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
