// Package cleanup は不要データの自動削除ジョブを提供する。
// 期限切れのログインセッションと、保持期間（デフォルト90日）を超過した
// AIコーチの会話ログを日次バッチで削除する。
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// SessionPurger は期限切れセッションを削除する。
type SessionPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// ChatPurger は古い会話ログを削除する。
type ChatPurger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupJob は期限切れデータの自動削除ジョブ。
// 削除対象がない場合もエラーにならず、何度実行しても結果は変わらない。
type CleanupJob struct {
	sessions      SessionPurger
	chats         ChatPurger
	logger        *slog.Logger
	now           func() time.Time
	RetentionDays int // 会話ログの保持日数（デフォルト: 90）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(sessions SessionPurger, chats ChatPurger, logger *slog.Logger) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		sessions:      sessions,
		chats:         chats,
		logger:        logger,
		now:           time.Now,
		RetentionDays: 90,
	}
}

// Run は期限切れセッションと保持期間を超過した会話ログを削除する。
// 片方が失敗しても、もう片方は実行する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()

	sessions, sessionErr := j.sessions.DeleteExpired(ctx, start)
	if sessionErr != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", sessionErr.Error()),
		)
		sessionErr = fmt.Errorf("セッションクリーンアップの実行に失敗: %w", sessionErr)
	}

	cutoff := start.AddDate(0, 0, -j.RetentionDays)
	chats, chatErr := j.chats.DeleteOlderThan(ctx, cutoff)
	if chatErr != nil {
		j.logger.Error("会話ログの削除に失敗しました",
			slog.String("error", chatErr.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		chatErr = fmt.Errorf("会話ログクリーンアップの実行に失敗: %w", chatErr)
	}

	if err := errors.Join(sessionErr, chatErr); err != nil {
		return err
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_sessions", sessions),
		slog.Int64("deleted_chat_messages", chats),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start はinterval間隔でジョブを実行する。起動直後に1回実行する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := j.Run(ctx); err != nil {
		j.logger.Error("クリーンアップジョブの実行に失敗しました", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("クリーンアップジョブの実行に失敗しました", slog.String("error", err.Error()))
			}
		}
	}
}
