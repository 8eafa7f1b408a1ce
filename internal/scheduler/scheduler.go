// Package scheduler drives the reconciliation loop: pick the stalest
// account, open a terminal session, extract and reconstruct its history,
// publish the report, and write the outcome back to the roster.
package scheduler

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/okorotkov/fleetsync/internal/domain"
	"github.com/okorotkov/fleetsync/internal/journal"
	"github.com/okorotkov/fleetsync/internal/reconstruct"
	"github.com/okorotkov/fleetsync/internal/terminal"
)

// ErrMalformedCandidate marks a roster row whose login field is not an
// integer. The candidate is skipped, never retried within the cycle.
var ErrMalformedCandidate = errors.New("candidate login is not numeric")

// SessionGateway is the slice of the terminal gateway the scheduler needs.
type SessionGateway interface {
	Acquire(ctx context.Context, account domain.Account) (*terminal.Session, error)
	Release(ctx context.Context, s *terminal.Session)
}

// HistoryFetcher extracts raw deals through an open session.
type HistoryFetcher interface {
	Fetch(ctx context.Context, s *terminal.Session, from, to time.Time) []domain.RawDeal
}

// RosterStore is the roster surface used by the loop.
type RosterStore interface {
	Snapshot(ctx context.Context) ([]domain.Account, error)
	FindRows(ctx context.Context, login int64, server string) ([]int, error)
	UpdateAccountStatus(ctx context.Context, rows []int, status domain.AccountStatus, at time.Time, counter int, tries int, pause time.Duration) bool
}

// ReportSink publishes reconstructed report rows.
type ReportSink interface {
	Publish(ctx context.Context, login int64, rows []domain.ReportRow) error
}

// OutcomeJournal records completed cycles locally.
type OutcomeJournal interface {
	Append(rec journal.CycleRecord) error
}

// Config bounds the loop. Defaults mirror the production timings.
type Config struct {
	StaleAfter      time.Duration // staleness threshold for selection
	Attempts        int           // session attempts per selected account
	AttemptPause    time.Duration // pause after a failed attempt
	IdleSleep       time.Duration // pause when nothing is stale
	BetweenAccounts time.Duration // pause after finishing an account
	ConfirmTries    int           // confirmed-write attempts per cell
	ConfirmPause    time.Duration // pause inside a confirmed write
	RestartPause    time.Duration // base pause after a failed cycle
	MaxRestartPause time.Duration // cap for the growing restart pause
	WindowMonth     time.Month    // report window start month
	WindowDay       int           // report window start day
}

// DefaultConfig matches the production loop.
func DefaultConfig() Config {
	return Config{
		StaleAfter:      5 * time.Minute,
		Attempts:        2,
		AttemptPause:    2 * time.Second,
		IdleSleep:       20 * time.Second,
		BetweenAccounts: 2 * time.Second,
		ConfirmTries:    3,
		ConfirmPause:    800 * time.Millisecond,
		RestartPause:    10 * time.Second,
		MaxRestartPause: 2 * time.Minute,
		WindowMonth:     time.September,
		WindowDay:       1,
	}
}

// Scheduler is the single sequential worker of the service.
type Scheduler struct {
	roster  RosterStore
	reports ReportSink
	gateway SessionGateway
	fetcher HistoryFetcher
	journal OutcomeJournal
	cfg     Config
	logger  *zap.Logger
	clock   func() time.Time
}

// New wires a scheduler.
func New(roster RosterStore, reports ReportSink, gateway SessionGateway, fetcher HistoryFetcher, jnl OutcomeJournal, cfg Config, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		roster:  roster,
		reports: reports,
		gateway: gateway,
		fetcher: fetcher,
		journal: jnl,
		cfg:     cfg,
		logger:  logger,
		clock:   time.Now,
	}
}

// Run loops forever, supervising the cycle: any cycle error is logged and
// followed by a pause that grows with consecutive failures and resets on the
// first clean cycle. Only context cancellation exits.
func (s *Scheduler) Run(ctx context.Context) error {
	consecutive := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.ProcessOnce(ctx)
		if err == nil {
			consecutive = 0
			continue
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		consecutive++
		pause := time.Duration(consecutive) * s.cfg.RestartPause
		if s.cfg.MaxRestartPause > 0 && pause > s.cfg.MaxRestartPause {
			pause = s.cfg.MaxRestartPause
		}
		s.logger.Error("cycle failed, restarting",
			zap.Int("consecutive_failures", consecutive),
			zap.Duration("pause", pause),
			zap.Error(err))
		if err := wait(ctx, pause); err != nil {
			return err
		}
	}
}

// ProcessOnce runs one full cycle: select, process, write back.
func (s *Scheduler) ProcessOnce(ctx context.Context) error {
	accounts, err := s.roster.Snapshot(ctx)
	if err != nil {
		return errors.Wrap(err, "roster snapshot")
	}

	now := s.clock()
	candidate := Pick(accounts, now, s.cfg.StaleAfter)
	if candidate == nil {
		s.logger.Info("nothing stale, sleeping", zap.Duration("sleep", s.cfg.IdleSleep))
		return wait(ctx, s.cfg.IdleSleep)
	}

	if candidate.Login == 0 {
		s.logger.Warn("skipping candidate",
			zap.String("login_raw", candidate.LoginRaw),
			zap.String("server", candidate.Server),
			zap.Error(ErrMalformedCandidate))
		return wait(ctx, s.cfg.BetweenAccounts)
	}

	rows, err := s.roster.FindRows(ctx, candidate.Login, candidate.Server)
	if err != nil {
		return errors.Wrap(err, "find roster rows")
	}
	if len(rows) == 0 {
		s.logger.Warn("no roster rows for candidate",
			zap.Int64("login", candidate.Login),
			zap.String("server", candidate.Server))
		return wait(ctx, s.cfg.BetweenAccounts)
	}

	s.logger.Info("processing account",
		zap.Int64("login", candidate.Login),
		zap.String("server", candidate.Server),
		zap.String("status", candidate.Status.String()),
		zap.Int("attempts", s.cfg.Attempts))

	outcome := s.processAccount(ctx, *candidate, now)

	status := domain.StatusConnectedNoData
	counter := candidate.SuccessCount
	switch {
	case outcome.published:
		status = domain.StatusSuccess
		counter++
	case !outcome.connected:
		status = domain.StatusInvalidLogins
	}

	confirmed := s.roster.UpdateAccountStatus(ctx, rows, status, s.clock(), counter, s.cfg.ConfirmTries, s.cfg.ConfirmPause)
	if !confirmed {
		s.logger.Warn("status write-back did not fully confirm",
			zap.Int64("login", candidate.Login),
			zap.Ints("rows", rows))
	}

	rec := journal.CycleRecord{
		Login:     candidate.Login,
		Server:    candidate.Server,
		Status:    status,
		Attempts:  outcome.attempts,
		Published: outcome.published,
		Rows:      outcome.rowsPublished,
	}
	if outcome.lastErr != nil {
		rec.Error = outcome.lastErr.Error()
	}
	if err := s.journal.Append(rec); err != nil {
		s.logger.Warn("cycle journal append failed", zap.Error(err))
	}

	s.logger.Info("account processed",
		zap.Int64("login", candidate.Login),
		zap.String("status", status.String()),
		zap.Int("counter", counter),
		zap.Bool("confirmed", confirmed))

	return wait(ctx, s.cfg.BetweenAccounts)
}

type attemptOutcome struct {
	connected     bool
	published     bool
	attempts      int
	rowsPublished int
	lastErr       error
}

// processAccount runs the bounded attempt loop: acquire, extract,
// reconstruct, publish, release. It stops early on the first attempt that
// publishes.
func (s *Scheduler) processAccount(ctx context.Context, account domain.Account, now time.Time) attemptOutcome {
	var out attemptOutcome

	windowStart := s.windowStart(now)
	epoch := time.Unix(0, 0)

	for attempt := 1; attempt <= s.cfg.Attempts; attempt++ {
		out.attempts = attempt
		s.logger.Info("attempt",
			zap.Int64("login", account.Login),
			zap.Int("n", attempt),
			zap.Int("of", s.cfg.Attempts))

		session, err := s.gateway.Acquire(ctx, account)
		if err != nil {
			out.lastErr = err
			s.logger.Warn("session acquire failed", zap.Int64("login", account.Login), zap.Error(err))
			if werr := wait(ctx, s.cfg.AttemptPause); werr != nil {
				return out
			}
			continue
		}
		out.connected = true

		deals := s.fetcher.Fetch(ctx, session, epoch, now)
		report := reconstruct.Reconstruct(deals, windowStart, now)

		err = s.reports.Publish(ctx, account.Login, report)
		s.gateway.Release(ctx, session)
		if err == nil {
			out.published = true
			out.rowsPublished = len(report)
			return out
		}

		out.lastErr = errors.Wrap(err, "publish report")
		s.logger.Warn("publish failed", zap.Int64("login", account.Login), zap.Error(err))
		if werr := wait(ctx, s.cfg.AttemptPause); werr != nil {
			return out
		}
	}

	return out
}

// windowStart computes the fixed report window start for the current year.
func (s *Scheduler) windowStart(now time.Time) time.Time {
	month := s.cfg.WindowMonth
	if month == 0 {
		month = time.September
	}
	day := s.cfg.WindowDay
	if day == 0 {
		day = 1
	}
	start := time.Date(now.Year(), month, day, 0, 0, 0, 0, time.Local)
	if start.After(now) {
		start = start.AddDate(-1, 0, 0)
	}
	return start
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
