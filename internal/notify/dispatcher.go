package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/chatpadel/internal/metrics"
)

// Mailer はメール送信のインターフェース。
type Mailer interface {
	Send(ctx context.Context, email *Email) error
}

// SMSSender はSMS送信のインターフェース。
type SMSSender interface {
	Send(ctx context.Context, sms *SMS) error
}

// Enqueuer は通知ジョブを受け付けるインターフェース。
// サービス層はこのインターフェースにのみ依存する。
type Enqueuer interface {
	// Enqueue はジョブをキューに積む。ブロックせず、積めなかった場合はfalseを返す。
	Enqueue(job Job) bool
}

// DispatcherConfig はDispatcherの設定。
type DispatcherConfig struct {
	Workers   int
	QueueSize int
	// SendTimeout は1チャネルあたりの送信タイムアウト。
	SendTimeout time.Duration
}

// Dispatcher は有界キューと固定数のワーカーで通知を送信する。
// 再送は行わない。
type Dispatcher struct {
	mailer  Mailer
	sms     SMSSender
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	cfg     DispatcherConfig

	queue  chan Job
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewDispatcher はDispatcherを生成する。Startを呼ぶまでジョブは処理されない。
func NewDispatcher(mailer Mailer, sms SMSSender, mc metrics.MetricsCollector, logger *slog.Logger, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		mailer:  mailer,
		sms:     sms,
		metrics: mc,
		logger:  logger,
		cfg:     cfg,
		queue:   make(chan Job, cfg.QueueSize),
	}
}

// Start はワーカーを起動する。ワーカーはShutdownでキューが閉じられるまで動作する。
func (d *Dispatcher) Start() {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.logger.Info("通知ディスパッチャを開始しました",
		slog.Int("workers", d.cfg.Workers),
		slog.Int("queue_size", d.cfg.QueueSize),
	)
}

// Enqueue はジョブをキューに積む。キューが満杯または停止済みの場合は破棄してfalseを返す。
func (d *Dispatcher) Enqueue(job Job) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("停止済みのため通知を破棄しました", slog.String("kind", string(job.Kind)))
		d.metrics.RecordNotificationDropped()
		return false
	}

	select {
	case d.queue <- job:
		return true
	default:
		d.logger.Warn("通知キューが満杯のため通知を破棄しました", slog.String("kind", string(job.Kind)))
		d.metrics.RecordNotificationDropped()
		return false
	}
}

// Shutdown は新規受付を停止し、キューに残ったジョブの処理完了を待つ。
// ctxが先に終了した場合はctx.Err()を返す。
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("通知ディスパッチャを停止しました")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.queue {
		d.process(job)
	}
}

// process は1件のジョブを送信する。panicも含めて失敗はログに記録して握りつぶす。
func (d *Dispatcher) process(job Job) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("通知送信中にpanicが発生しました",
				slog.String("kind", string(job.Kind)),
				slog.Any("panic", r),
			)
		}
	}()

	email, sms, err := job.Render()
	if err != nil {
		d.logger.Error("通知の組み立てに失敗しました",
			slog.String("kind", string(job.Kind)),
			slog.String("error", err.Error()),
		)
		return
	}

	if email != nil {
		d.send("email", job.Kind, func(ctx context.Context) error { return d.mailer.Send(ctx, email) })
	}
	if sms != nil {
		d.send("sms", job.Kind, func(ctx context.Context) error { return d.sms.Send(ctx, sms) })
	}
}

func (d *Dispatcher) send(channel string, kind Kind, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()

	start := time.Now()
	if err := fn(ctx); err != nil {
		d.metrics.RecordNotification(channel, "failure")
		d.logger.Error("通知の送信に失敗しました",
			slog.String("channel", channel),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		return
	}
	d.metrics.RecordNotification(channel, "success")
	d.logger.Info("通知を送信しました",
		slog.String("channel", channel),
		slog.String("kind", string(kind)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
}

var _ Enqueuer = (*Dispatcher)(nil)
