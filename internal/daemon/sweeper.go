package daemon

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/harun/kurir/internal/config"
	"github.com/harun/kurir/internal/metrics"
	"github.com/harun/kurir/pkg/session"
)

// Sweeper removes long-idle sessions from the registry on a cron
// schedule.
type Sweeper struct {
	registry *session.Registry
	age      time.Duration
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	cron    *cron.Cron
	entryID cron.EntryID
}

// NewSweeper creates a sweeper. The schedule is a standard five-field
// cron expression.
func NewSweeper(registry *session.Registry, cfg config.SessionsConfig, m *metrics.Metrics, logger zerolog.Logger) (*Sweeper, error) {
	s := &Sweeper{
		registry: registry,
		age:      cfg.SweepAgeDuration(),
		metrics:  m,
		logger:   logger,
		cron:     cron.New(),
	}

	entryID, err := s.cron.AddFunc(cfg.SweepSchedule, s.sweep)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule sweep %q: %w", cfg.SweepSchedule, err)
	}
	s.entryID = entryID

	return s, nil
}

// Start begins the schedule
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the schedule. Does not interrupt a sweep in progress.
func (s *Sweeper) Stop() {
	s.cron.Stop()
}

// NextRun returns the next scheduled sweep time
func (s *Sweeper) NextRun() time.Time {
	return s.cron.Entry(s.entryID).Next
}

func (s *Sweeper) sweep() {
	removed := s.registry.Sweep(s.age)
	s.metrics.RecordSessionsSwept(removed)
	s.metrics.SetSessionsKnown(s.registry.Len())

	if removed > 0 {
		s.logger.Info().
			Int("removed", removed).
			Int("remaining", s.registry.Len()).
			Msg("Swept idle sessions")
	} else {
		s.logger.Debug().Msg("Sweep found nothing to remove")
	}
}
