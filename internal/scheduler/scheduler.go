package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/example/cscsync/internal/logger"
	"github.com/example/cscsync/pkg/models"
)

// Notifier delivers the daily digest.
type Notifier interface {
	SendDigest(ctx context.Context, day models.Day) error
}

// Pruner deletes merge receipts older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config holds the job settings.
type Config struct {
	// ReceiptRetention is how long submission ids are remembered. Zero
	// disables pruning.
	ReceiptRetention time.Duration
	// DigestHour is the local hour the digest goes out.
	DigestHour int
	Location   *time.Location
}

// Scheduler manages scheduled tasks for the application
type Scheduler struct {
	scheduler *gocron.Scheduler
	receipts  Pruner
	notifier  Notifier
	cfg       Config
	now       func() time.Time
	log       *zap.SugaredLogger
}

// New creates a new scheduler instance. notifier may be nil.
func New(receipts Pruner, notifier Notifier, cfg Config, log *zap.SugaredLogger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(cfg.Location),
		receipts:  receipts,
		notifier:  notifier,
		cfg:       cfg,
		now:       time.Now,
		log:       logger.Named(log, "scheduler"),
	}
}

// Start begins running all scheduled tasks
func (s *Scheduler) Start() error {
	if s.cfg.ReceiptRetention > 0 {
		if _, err := s.scheduler.Every(1).Hour().Do(s.pruneJob); err != nil {
			return errors.Wrap(err, "failed to schedule receipt pruning")
		}
	}
	if s.notifier != nil {
		at := fmt.Sprintf("%02d:00", s.cfg.DigestHour)
		if _, err := s.scheduler.Every(1).Day().At(at).Do(s.digestJob); err != nil {
			return errors.Wrap(err, "failed to schedule digest")
		}
		s.log.Infow("Digest scheduled", "at", at, "timezone", s.cfg.Location.String())
	}

	// Start the scheduler in a non-blocking manner
	s.scheduler.StartAsync()
	return nil
}

// Stop terminates all scheduled tasks
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// PruneReceipts deletes receipts past the retention window.
func (s *Scheduler) PruneReceipts(ctx context.Context) (int64, error) {
	if s.cfg.ReceiptRetention <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.cfg.ReceiptRetention)
	n, err := s.receipts.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Infow("Pruned merge receipts", logger.FieldCount, n, "cutoff", cutoff)
	}
	return n, nil
}

// RunDigest sends the digest of the current day now.
func (s *Scheduler) RunDigest(ctx context.Context) error {
	if s.notifier == nil {
		return errors.New("no digest notifier configured")
	}
	return s.notifier.SendDigest(ctx, models.DayOf(s.now(), s.cfg.Location))
}

func (s *Scheduler) pruneJob() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := s.PruneReceipts(ctx); err != nil {
		s.log.Errorw("Receipt pruning failed", logger.FieldError, err)
	}
}

func (s *Scheduler) digestJob() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := s.RunDigest(ctx); err != nil {
		s.log.Errorw("Digest failed", logger.FieldError, err)
	}
}
