package services

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"

	"github.com/akinalp/messenger/pkg/metrics"
	"github.com/akinalp/messenger/repository"
)

// RetentionService hard-deletes messages that have been soft-deleted for
// longer than the retention period, on a cron schedule.
type RetentionService interface {
	Start(ctx context.Context) error
	RunOnce(ctx context.Context) (int64, error)
}

type retentionService struct {
	messageRepo repository.MessageRepository
	cron        string
	period      time.Duration
	now         func() time.Time
	log         *zap.SugaredLogger
}

func NewRetentionService(messageRepo repository.MessageRepository, cronExpr string, days int) RetentionService {
	return &retentionService{
		messageRepo: messageRepo,
		cron:        cronExpr,
		period:      time.Duration(days) * 24 * time.Hour,
		now:         time.Now,
		log:         zap.S().Named("retention"),
	}
}

// Start validates the schedule and runs the scheduler until ctx is done.
func (s *retentionService) Start(ctx context.Context) error {
	if !gronx.IsValid(s.cron) {
		return fmt.Errorf("invalid retention cron expression: %s", s.cron)
	}
	if s.period <= 0 {
		return fmt.Errorf("retention period must be positive")
	}

	s.log.Infow("retention scheduler started", "cron", s.cron, "period", s.period)
	go s.runScheduler(ctx)
	return nil
}

// runScheduler sleeps until the next cron tick, purges, and repeats.
func (s *retentionService) runScheduler(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(s.cron, s.now().UTC(), false)
		if err != nil {
			s.log.Errorw("failed to compute next tick", "cron", s.cron, "error", err)
			next = s.now().Add(time.Minute)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Infow("retention scheduler stopping")
			return
		case <-timer.C:
		}

		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Errorw("retention run failed", "error", err)
		}
	}
}

// RunOnce purges everything soft-deleted before now minus the period.
func (s *retentionService) RunOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.period)

	n, err := s.messageRepo.PurgeDeleted(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	metrics.MessagesPurged.Add(float64(n))
	s.log.Infow("purged deleted messages", "count", n, "cutoff", cutoff)
	return n, nil
}
