package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/chatpadel/internal/auth"
	"github.com/hitoshi/chatpadel/internal/coach"
	"github.com/hitoshi/chatpadel/internal/config"
	"github.com/hitoshi/chatpadel/internal/database"
	"github.com/hitoshi/chatpadel/internal/handler"
	"github.com/hitoshi/chatpadel/internal/match"
	"github.com/hitoshi/chatpadel/internal/membership"
	"github.com/hitoshi/chatpadel/internal/metrics"
	"github.com/hitoshi/chatpadel/internal/middleware"
	"github.com/hitoshi/chatpadel/internal/model"
	"github.com/hitoshi/chatpadel/internal/notify"
	"github.com/hitoshi/chatpadel/internal/repository"
	"github.com/hitoshi/chatpadel/internal/security"
	"github.com/hitoshi/chatpadel/internal/user"
	"github.com/hitoshi/chatpadel/internal/waitlist"
	"github.com/hitoshi/chatpadel/internal/worker/cleanup"
	"github.com/hitoshi/chatpadel/internal/worker/importer"
)

// seedMatches は空のストアに投入する初期の試合。
var seedMatches = []model.NewMatch{
	{Location: "Padel Club Central", Date: "Tomorrow", Time: "18:00", Level: model.SkillLevelIntermediate, CurrentPlayers: 3, MaxPlayers: 4, ExternalRef: "seed:padel-club-central"},
	{Location: "Main Arena", Date: "Friday", Time: "10:00", Level: model.SkillLevelBeginner, CurrentPlayers: 2, MaxPlayers: 4, ExternalRef: "seed:main-arena"},
	{Location: "Olympic Court", Date: "Saturday", Time: "16:00", Level: model.SkillLevelAdvanced, CurrentPlayers: 1, MaxPlayers: 4, ExternalRef: "seed:olympic-court"},
}

// storage はリポジトリ一式と、その接続の後始末・疎通確認をまとめたもの。
type storage struct {
	store  *repository.Store
	db     *sql.DB
	memory bool
}

// openStorage はDATABASE_URLが設定されていればPostgreSQL、なければインメモリのストアを開く。
func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	if cfg.UsesMemoryStore() {
		slog.Warn("DATABASE_URLが未設定のためインメモリストアで起動します。再起動でデータは失われます")
		return &storage{store: repository.NewMemoryStore(), memory: true}, nil
	}

	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")

	return &storage{store: repository.NewPostgresStore(db), db: db}, nil
}

// Ping はストレージの疎通を確認する。
func (s *storage) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

// Close はDB接続を閉じる。
func (s *storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// services は起動モード共通のドメインサービス一式。
type services struct {
	metrics     *metrics.Collector
	registry    *prometheus.Registry
	guard       security.OutboundGuard
	sanitizer   security.TextSanitizer
	dispatcher  *notify.Dispatcher
	coordinator *membership.Coordinator
	users       *user.Service
	auth        *auth.Service
	matches     *match.Service
	waitlist    *waitlist.Service
	coach       *coach.Service
}

// newServices は設定とストアから全サービスを組み立てる。
// 通知ディスパッチャーは生成のみ行い、Startは呼び出し側の責務とする。
func newServices(cfg *config.Config, store *repository.Store, logger *slog.Logger) (*services, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mc := metrics.NewCollector(registry)

	guard := security.NewSSRFGuard()
	sanitizer := security.NewTextSanitizer()

	// 通知チャネル（未設定の場合はログ出力のみ）
	var mailer notify.Mailer = notify.NewLogMailer(logger)
	if cfg.SMTPEnabled() {
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.FromEmail,
		})
	}
	var sms notify.SMSSender = notify.NewLogSMSSender(logger)
	if cfg.SMSWebhookURL != "" {
		if err := guard.ValidateURL(cfg.SMSWebhookURL); err != nil {
			return nil, fmt.Errorf("invalid SMS_WEBHOOK_URL: %w", err)
		}
		sms = notify.NewWebhookSMSSender(cfg.SMSWebhookURL, guard.NewSafeClient(cfg.NotificationTimeout))
	}
	dispatcher := notify.NewDispatcher(mailer, sms, mc, logger, notify.DispatcherConfig{
		Workers:     cfg.NotificationWorkers,
		QueueSize:   cfg.NotificationQueue,
		SendTimeout: cfg.NotificationTimeout,
	})

	coordinator := membership.NewCoordinator(store.Matches, logger)
	users := user.NewService(store.Users, security.NewPasswordHasher(cfg.BcryptCost), sanitizer, dispatcher, logger)
	authService := auth.NewService(users, store.Sessions, dispatcher, auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
		BaseURL:       cfg.BaseURL,
	}, logger)
	matchService := match.NewService(store.Matches, coordinator, users, dispatcher, mc, logger)
	waitlistService := waitlist.NewService(store.Waitlist, sanitizer, logger)

	// AIコーチ（APIキー未設定の場合はキーワード応答）
	var producer coach.Producer = coach.NewKeywordProducer()
	if cfg.OpenAIAPIKey != "" {
		producer = coach.NewOpenAIClient(&http.Client{Timeout: cfg.CoachTimeout}, logger,
			cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel)
	}
	coachService := coach.NewService(producer, store.Chat, matchService, sanitizer, mc, logger)

	slog.Info("services initialized",
		slog.Bool("smtp_enabled", cfg.SMTPEnabled()),
		slog.Bool("sms_webhook_enabled", cfg.SMSWebhookURL != ""),
		slog.String("coach_mode", producer.Mode()),
	)

	return &services{
		metrics:     mc,
		registry:    registry,
		guard:       guard,
		sanitizer:   sanitizer,
		dispatcher:  dispatcher,
		coordinator: coordinator,
		users:       users,
		auth:        authService,
		matches:     matchService,
		waitlist:    waitlistService,
		coach:       coachService,
	}, nil
}

// newRouter はHTTPルーターを組み立てる。
func newRouter(cfg *config.Config, st *storage, svc *services, rl *middleware.RateLimiter, logger *slog.Logger) http.Handler {
	return handler.NewRouter(&handler.RouterDeps{
		SessionFinder:     svc.auth,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rl,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Logger:         logger,
		Metrics:        svc.metrics,
		MetricsHandler: metrics.Handler(svc.registry),
		HealthCheck:    st.Ping,

		AuthService: svc.auth,
		UserService: svc.users,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		MatchService:    svc.matches,
		WaitlistService: svc.waitlist,
		CoachService:    svc.coach,
	})
}

// newBackgroundJobs は取り込みスケジューラとクリーンアップジョブを組み立てる。
// 取り込み対象のフィードがない場合、スケジューラはnil。
func newBackgroundJobs(cfg *config.Config, store *repository.Store, svc *services, logger *slog.Logger) (*importer.Scheduler, *cleanup.CleanupJob) {
	job := cleanup.NewCleanupJob(store.Sessions, store.Chat, logger)
	job.RetentionDays = cfg.ChatRetentionDays

	if len(cfg.ImportFeedURLs) == 0 {
		return nil, job
	}
	fetcher := importer.NewFetcher(svc.coordinator, svc.guard, svc.sanitizer, svc.metrics, logger,
		cfg.FetchTimeout, cfg.FetchMaxSize)
	return importer.NewScheduler(cfg.ImportFeedURLs, fetcher, logger, cfg.ImportMaxConcurrent), job
}

// seed は初期の試合と管理者アカウントを投入する。何度実行しても重複しない。
func seed(ctx context.Context, cfg *config.Config, svc *services) error {
	created := 0
	for _, in := range seedMatches {
		_, ok, err := svc.coordinator.ProvisionIfAbsent(ctx, in)
		if err != nil {
			return fmt.Errorf("failed to seed match %q: %w", in.Location, err)
		}
		if ok {
			created++
		}
	}
	slog.Info("seed matches provisioned", slog.Int("created", created))

	if cfg.AdminEmail == "" {
		return nil
	}
	_, ok, err := svc.users.EnsureAdmin(ctx, model.NewUser{
		FullName:    "ChatPadel Admin",
		Email:       cfg.AdminEmail,
		Password:    cfg.AdminPassword,
		Age:         30,
		PhoneNumber: "+0000000000",
		Country:     "N/A",
	})
	if err != nil {
		return fmt.Errorf("failed to ensure admin account: %w", err)
	}
	slog.Info("admin account ensured", slog.Bool("created", ok))
	return nil
}
