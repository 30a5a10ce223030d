package app

import (
	"context"
	"sync"

	"github.com/hitoshi/chatpadel/internal/config"
	"github.com/hitoshi/chatpadel/internal/worker/cleanup"
	"github.com/hitoshi/chatpadel/internal/worker/importer"
)

// startJobs はバックグラウンドジョブをgoroutineで起動する。
// ctxのキャンセルで停止し、wgで終了を待てる。schedulerはnil可。
func startJobs(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, scheduler *importer.Scheduler, cleanupJob *cleanup.CleanupJob) {
	if scheduler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scheduler.Start(ctx, cfg.ImportInterval)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		cleanupJob.Start(ctx, cfg.CleanupInterval)
	}()
}
