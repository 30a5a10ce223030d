package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/chatpadel/internal/metrics"
	"github.com/hitoshi/chatpadel/internal/model"
)

// MatchProvisioner は参照キーが未登録の場合のみ試合を作成する。
type MatchProvisioner interface {
	ProvisionIfAbsent(ctx context.Context, in model.NewMatch) (*model.Match, bool, error)
}

// OutboundGuard はSSRF防止付きのHTTPクライアントを提供する。
type OutboundGuard interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration) *http.Client
}

// Fetcher は個別のスケジュールフィードのHTTP取得とパースを行う。
// ETag/Last-Modifiedを使用した条件付きGET、SSRF検証、
// gofeedによるパース、Coordinator経由の試合作成を実行する。
type Fetcher struct {
	provisioner MatchProvisioner
	guard       OutboundGuard
	cleaner     TextCleaner
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
	location    *time.Location
	states      *stateTable
	now         func() time.Time
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
func NewFetcher(
	provisioner MatchProvisioner,
	guard OutboundGuard,
	cleaner TextCleaner,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
	timeout time.Duration,
	maxBodySize int64,
) *Fetcher {
	if mc == nil {
		mc = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		provisioner: provisioner,
		guard:       guard,
		cleaner:     cleaner,
		metrics:     mc,
		logger:      logger,
		timeout:     timeout,
		maxBodySize: maxBodySize,
		location:    time.UTC,
		states:      newStateTable(),
		now:         time.Now,
	}
}

// Due はフィードが停止・バックオフ中でないかを返す。
func (f *Fetcher) Due(feedURL string) bool {
	return f.states.snapshot(feedURL).due(f.now())
}

// Fetch はフィードを取得し、未登録のエントリを試合として作成する。
// 作成した試合の件数を返す。
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) (int, error) {
	start := f.now()
	created, err := f.fetch(ctx, feedURL)
	f.metrics.RecordImportFetch(err == nil, time.Since(start))
	if created > 0 {
		f.metrics.RecordMatchesImported(created)
	}
	return created, err
}

func (f *Fetcher) fetch(ctx context.Context, feedURL string) (int, error) {
	// SSRF検証
	if err := f.guard.ValidateURL(feedURL); err != nil {
		f.logger.Error("SSRF検証に失敗しました",
			slog.String("feed_url", feedURL),
			slog.String("error", err.Error()),
		)
		f.states.update(feedURL, func(s *feedState) {
			s.applyStop(fmt.Sprintf("SSRF検証失敗: %s", err.Error()))
		})
		return 0, fmt.Errorf("SSRF検証に失敗: %w", err)
	}

	state := f.states.snapshot(feedURL)
	target := feedURL
	if state.resolvedURL != "" {
		target = state.resolvedURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", "ChatPadel/1.0 Schedule Importer")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")
	if state.etag != "" {
		req.Header.Set("If-None-Match", state.etag)
	}
	if state.lastModified != "" {
		req.Header.Set("If-Modified-Since", state.lastModified)
	}

	resp, err := f.guard.NewSafeClient(f.timeout).Do(req)
	if err != nil {
		f.logger.Error("HTTPリクエストに失敗しました",
			slog.String("feed_url", feedURL),
			slog.String("error", err.Error()),
		)
		f.states.update(feedURL, func(s *feedState) {
			s.applyBackoff(f.now(), fmt.Sprintf("HTTPリクエスト失敗: %s", err.Error()))
		})
		return 0, fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	switch ClassifyHTTPStatus(resp.StatusCode) {
	case FetchResultNotModified:
		f.logger.Info("スケジュールフィードは未変更です（304）",
			slog.String("feed_url", feedURL),
		)
		f.states.update(feedURL, func(s *feedState) { s.applySuccess() })
		return 0, nil

	case FetchResultStop:
		reason := fmt.Sprintf("HTTPステータス %d により取得を停止しました", resp.StatusCode)
		f.logger.Warn("スケジュールフィードの取得を停止します",
			slog.String("feed_url", feedURL),
			slog.Int("http_status", resp.StatusCode),
		)
		f.states.update(feedURL, func(s *feedState) { s.applyStop(reason) })
		return 0, errors.New(reason)

	case FetchResultBackoff, FetchResultUnknown:
		reason := fmt.Sprintf("HTTPステータス %d によりバックオフを適用しました", resp.StatusCode)
		f.logger.Warn("スケジュールフィードの取得にバックオフを適用します",
			slog.String("feed_url", feedURL),
			slog.Int("http_status", resp.StatusCode),
			slog.Int("consecutive_errors", state.consecutiveErrors+1),
		)
		f.states.update(feedURL, func(s *feedState) { s.applyBackoff(f.now(), reason) })
		return 0, errors.New(reason)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		f.states.update(feedURL, func(s *feedState) {
			s.applyBackoff(f.now(), fmt.Sprintf("レスポンス読み取り失敗: %s", err.Error()))
		})
		return 0, fmt.Errorf("レスポンス読み取り失敗: %w", err)
	}

	// クラブのWebページが登録されている場合は<link rel="alternate">からフィードを検出する。検出は1回のみ。
	if state.resolvedURL == "" && isHTMLPage(resp.Header.Get("Content-Type"), body) {
		if discovered, ok := discoverFeedURL(body, feedURL); ok {
			if err := f.guard.ValidateURL(discovered); err != nil {
				f.logger.Warn("検出したフィードURLがSSRF検証に失敗しました",
					slog.String("feed_url", feedURL),
					slog.String("discovered_url", discovered),
					slog.String("error", err.Error()),
				)
				f.states.update(feedURL, func(s *feedState) {
					s.applyStop(fmt.Sprintf("検出URLのSSRF検証失敗: %s", err.Error()))
				})
				return 0, fmt.Errorf("検出URLのSSRF検証に失敗: %w", err)
			}
			f.logger.Info("WebページからスケジュールフィードURLを検出しました",
				slog.String("feed_url", feedURL),
				slog.String("discovered_url", discovered),
			)
			f.states.update(feedURL, func(s *feedState) {
				s.resolvedURL = discovered
				s.etag = ""
				s.lastModified = ""
			})
			return f.fetch(ctx, feedURL)
		}
	}

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		f.logger.Error("スケジュールフィードのパースに失敗しました",
			slog.String("feed_url", feedURL),
			slog.String("error", err.Error()),
		)
		f.states.update(feedURL, func(s *feedState) { s.applyParseFailure(err.Error()) })
		return 0, fmt.Errorf("フィードのパースに失敗: %w", err)
	}

	created := 0
	for _, in := range convertItems(feedURL, parsed.Items, f.cleaner, f.location) {
		_, ok, err := f.provisioner.ProvisionIfAbsent(ctx, in)
		if err != nil {
			// 1件の失敗で残りのエントリを捨てない
			f.logger.Warn("試合の取り込みに失敗しました",
				slog.String("feed_url", feedURL),
				slog.String("external_ref", in.ExternalRef),
				slog.String("error", err.Error()),
			)
			continue
		}
		if ok {
			created++
		}
	}

	f.states.update(feedURL, func(s *feedState) {
		s.applySuccess()
		if etag := resp.Header.Get("ETag"); etag != "" {
			s.etag = etag
		}
		if lastMod := resp.Header.Get("Last-Modified"); lastMod != "" {
			s.lastModified = lastMod
		}
	})

	f.logger.Info("スケジュールフィードの取り込みが完了しました",
		slog.String("feed_url", feedURL),
		slog.Int("items_total", len(parsed.Items)),
		slog.Int("matches_created", created),
	)

	return created, nil
}
