// Package importer はクラブのスケジュールフィード（RSS/Atom）から試合を取り込む
// バックグラウンド処理を提供する。
package importer

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// FeedFetcher はスケジュールフィード1件の取り込みを行う。
type FeedFetcher interface {
	Due(feedURL string) bool
	Fetch(ctx context.Context, feedURL string) (int, error)
}

// Scheduler は取り込みのスケジューリングと並列制御を行う。
// ティッカーの間隔ごとに全フィードを対象とし、
// semaphoreパターンで最大並列数を制御しながら取り込みを実行する。
type Scheduler struct {
	feedURLs       []string
	fetcher        FeedFetcher
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値4を使用する。
func NewScheduler(feedURLs []string, fetcher FeedFetcher, logger *slog.Logger, maxConcurrency int) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		feedURLs:       feedURLs,
		fetcher:        fetcher,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start はinterval間隔でスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("取り込みスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("feed_count", len(s.feedURLs)),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("取り込みスケジューラを停止しました")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce は取得対象のフィードを並列で取り込み、作成した試合の合計件数を返す。
// 停止中・バックオフ中のフィードはスキップする。
func (s *Scheduler) RunOnce(ctx context.Context) int {
	start := time.Now()

	due := make([]string, 0, len(s.feedURLs))
	for _, u := range s.feedURLs {
		if s.fetcher.Due(u) {
			due = append(due, u)
		}
	}
	if len(due) == 0 {
		s.logger.Info("取り込み対象のフィードはありません")
		return 0
	}

	sem := make(chan struct{}, s.maxConcurrency)
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)

	for _, feedURL := range due {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(u string) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			n, err := s.fetcher.Fetch(ctx, u)
			if err != nil {
				s.logger.Error("スケジュールフィードの取り込みに失敗しました",
					slog.String("feed_url", u),
					slog.String("error", err.Error()),
				)
				return
			}
			mu.Lock()
			total += n
			mu.Unlock()
		}(feedURL)
	}

	wg.Wait()

	s.logger.Info("取り込みサイクルが完了しました",
		slog.Int("feed_count", len(due)),
		slog.Int("matches_created", total),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return total
}
