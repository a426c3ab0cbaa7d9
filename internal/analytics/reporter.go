package analytics

import (
	"context"
	"sync"
	"time"

	"storeledger/internal/config"
	"storeledger/internal/notification"
	"storeledger/internal/repository"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

// Waker nudges the dispatcher after report jobs have been enqueued.
type Waker interface {
	Wake()
}

// Reporter is the scheduled analytics-report path: on a cron schedule it
// snapshots every seller active the previous day and enqueues an
// ANALYTICS_REPORT email per seller. It only enqueues; delivery belongs to
// the dispatcher.
type Reporter struct {
	scheduler  *gocron.Scheduler
	aggregator *Aggregator
	stats      repository.StatsRepository
	users      repository.UserRepository
	emails     repository.EmailLogRepository
	waker      Waker
	cfg        config.ReportConfig
	logger     *zap.Logger

	runMutex   sync.Mutex
	runRunning bool
	lastRunAt  time.Time
}

// NewReporter creates a new scheduled report service
func NewReporter(
	aggregator *Aggregator,
	stats repository.StatsRepository,
	users repository.UserRepository,
	emails repository.EmailLogRepository,
	waker Waker,
	cfg config.ReportConfig,
	logger *zap.Logger,
) *Reporter {
	return &Reporter{
		scheduler:  gocron.NewScheduler(time.UTC),
		aggregator: aggregator,
		stats:      stats,
		users:      users,
		emails:     emails,
		waker:      waker,
		cfg:        cfg,
		logger:     logger,
	}
}

// Start schedules the report job and stops it when ctx is cancelled.
func (r *Reporter) Start(ctx context.Context) error {
	if !r.cfg.Enabled {
		r.logger.Info("Analytics report scheduler disabled by configuration")
		return nil
	}

	r.logger.Info("Starting analytics report scheduler", zap.String("cron", r.cfg.Cron))

	_, err := r.scheduler.Cron(r.cfg.Cron).Do(func() {
		if err := r.RunOnce(context.Background()); err != nil {
			r.logger.Error("Analytics report run failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	r.scheduler.StartAsync()

	go func() {
		<-ctx.Done()
		r.logger.Info("Stopping analytics report scheduler")
		r.scheduler.Stop()
	}()

	return nil
}

// RunOnce enqueues a report for every seller with sales yesterday. Safe to
// trigger manually; overlapping runs are skipped.
func (r *Reporter) RunOnce(ctx context.Context) error {
	r.runMutex.Lock()
	if r.runRunning {
		r.runMutex.Unlock()
		r.logger.Warn("Analytics report run already in progress, skipping")
		return nil
	}
	r.runRunning = true
	r.lastRunAt = time.Now()
	r.runMutex.Unlock()

	defer func() {
		r.runMutex.Lock()
		r.runRunning = false
		r.runMutex.Unlock()
	}()

	to := time.Now().UTC().Truncate(24 * time.Hour)
	from := to.AddDate(0, 0, -1)

	sellerIDs, err := r.stats.ActiveSellers(ctx, from, to)
	if err != nil {
		return err
	}

	if len(sellerIDs) == 0 {
		r.logger.Info("No sellers with sales in report window")
		return nil
	}

	enqueued := 0
	for _, sellerID := range sellerIDs {
		seller, err := r.users.FindByID(ctx, nil, sellerID)
		if err != nil {
			r.logger.Error("Failed to resolve seller for report",
				zap.String("seller_id", sellerID.String()),
				zap.Error(err),
			)
			continue
		}

		snapshot, err := r.aggregator.SellerSnapshot(ctx, sellerID, from, to)
		if err != nil {
			r.logger.Error("Failed to build report snapshot",
				zap.String("seller_id", sellerID.String()),
				zap.Error(err),
			)
			continue
		}

		job := notification.ComposeAnalyticsReport(seller, snapshot)
		if err := r.emails.Enqueue(ctx, nil, job); err != nil {
			r.logger.Error("Failed to enqueue report email",
				zap.String("seller_id", sellerID.String()),
				zap.Error(err),
			)
			continue
		}
		enqueued++
	}

	r.logger.Info("Analytics reports enqueued",
		zap.Int("sellers", len(sellerIDs)),
		zap.Int("enqueued", enqueued),
	)

	if enqueued > 0 && r.waker != nil {
		r.waker.Wake()
	}
	return nil
}
