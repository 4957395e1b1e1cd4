package service

import (
	"context"
	"time"

	"waflow/internal/constants"

	"github.com/sirupsen/logrus"
)

// Scheduler periodically prunes old session log snapshots
type Scheduler struct {
	logs          SessionLogStore
	retentionDays int
	interval      time.Duration
	logger        *logrus.Logger
}

func NewScheduler(logs SessionLogStore, retentionDays, intervalHours int, logger *logrus.Logger) *Scheduler {
	if retentionDays <= 0 {
		retentionDays = constants.DefaultRetentionDays
	}
	if intervalHours <= 0 {
		intervalHours = constants.DefaultCleanupIntervalHours
	}
	return &Scheduler{
		logs:          logs,
		retentionDays: retentionDays,
		interval:      time.Duration(intervalHours) * time.Hour,
		logger:        logger,
	}
}

// Start runs the cleanup loop until the context is cancelled
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.WithFields(logrus.Fields{
		"retention_days": s.retentionDays,
		"interval":       s.interval,
	}).Info("Session log cleanup scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Session log cleanup scheduler stopped")
			return
		case <-ticker.C:
			if err := s.logs.CleanupOldSessionLogs(ctx, s.retentionDays); err != nil {
				s.logger.WithError(err).Warn("Session log cleanup failed")
			} else {
				s.logger.Debug("Session log cleanup completed")
			}
		}
	}
}
