package sweeper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron"
	"github.com/rs/zerolog"

	"github.com/nurpe/agro-contracts/internal/metrics"
	"github.com/nurpe/agro-contracts/internal/model"
)

const lockKey = "agro-contracts:sweeper"

// Dissolver is the slice of the contract state machine the sweeper drives.
type Dissolver interface {
	ListDissolutionCandidates(ctx context.Context, cutoff time.Time) ([]model.Contract, error)
	Dissolve(ctx context.Context, id uuid.UUID) error
}

// Locker keeps concurrent replicas from sweeping the same tick.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

type Options struct {
	Schedule string
	MaxAge   time.Duration
	LockTTL  time.Duration
}

type RunReport struct {
	Cutoff    time.Time
	Examined  int
	Dissolved int
	Skipped   int
	Failed    int
}

// Sweeper dissolves contracts that have waited too long for payment.
type Sweeper struct {
	contracts Dissolver
	locker    Locker
	opts      Options
	log       zerolog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

func New(contracts Dissolver, locker Locker, opts Options, log zerolog.Logger, m *metrics.Metrics) *Sweeper {
	if opts.Schedule == "" {
		opts.Schedule = "@midnight"
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 7 * 24 * time.Hour
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Minute
	}
	return &Sweeper{
		contracts: contracts,
		locker:    locker,
		opts:      opts,
		log:       log.With().Str("component", "sweeper").Logger(),
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RunOnce dissolves every AWAITING_PAYMENT contract created at or before now minus the max age.
// A failing record is logged and counted; it never aborts the batch.
func (s *Sweeper) RunOnce(ctx context.Context, now time.Time) (report RunReport, err error) {
	defer func() { s.metrics.SweepRun(err) }()

	report.Cutoff = now.UTC().Add(-s.opts.MaxAge)
	candidates, err := s.contracts.ListDissolutionCandidates(ctx, report.Cutoff)
	if err != nil {
		return report, fmt.Errorf("list dissolution candidates: %w", err)
	}

	for _, contract := range candidates {
		report.Examined++
		if contract.CreatedAt == nil || contract.CreatedAt.IsZero() || strings.TrimSpace(contract.ContractNumber) == "" {
			s.log.Warn().Str("contract_id", contract.ID.String()).Msg("skipping malformed contract")
			report.Skipped++
			s.metrics.SweepSkipped()
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if err := s.contracts.Dissolve(ctx, contract.ID); err != nil {
			s.log.Error().Err(err).Str("contract_number", contract.ContractNumber).Msg("dissolve contract failed")
			report.Failed++
			continue
		}
		report.Dissolved++
		s.metrics.SweepDissolved()
		s.log.Info().Str("contract_number", contract.ContractNumber).Msg("contract dissolved")
	}

	s.log.Info().
		Int("examined", report.Examined).
		Int("dissolved", report.Dissolved).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("dissolution sweep finished")
	return report, nil
}

// Tick runs one scheduled sweep under the lock. Panics are recovered so the schedule survives.
func (s *Sweeper) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("dissolution sweep panicked")
			s.metrics.SweepRun(errors.New("panic"))
		}
	}()

	if s.locker != nil {
		release, acquired, err := s.locker.Acquire(ctx, lockKey, s.opts.LockTTL)
		if err != nil {
			s.log.Error().Err(err).Msg("acquire sweeper lock failed")
			return
		}
		if !acquired {
			s.log.Debug().Msg("sweeper lock held elsewhere; skipping tick")
			return
		}
		defer release()
	}

	if _, err := s.RunOnce(ctx, s.now()); err != nil {
		s.log.Error().Err(err).Msg("dissolution sweep failed")
	}
}

// Start schedules Tick in UTC. The first run happens at the next scheduled instant, not immediately.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("sweeper already started")
	}

	c := cron.NewWithLocation(time.UTC)
	if err := c.AddFunc(s.opts.Schedule, func() { s.Tick(ctx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", s.opts.Schedule, err)
	}
	c.Start()
	s.cron = c
	s.log.Info().Str("schedule", s.opts.Schedule).Dur("max_age", s.opts.MaxAge).Msg("dissolution sweeper started")
	return nil
}

func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return
	}
	s.cron.Stop()
	s.cron = nil
	s.log.Info().Msg("dissolution sweeper stopped")
}
