package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/avalon-platform/identity-service/internal/infra/config"
	"github.com/avalon-platform/identity-service/internal/infra/telemetry"
)

// InitState names a phase of the one-shot store initialization sequence.
type InitState string

const (
	StateNotStarted       InitState = "not_started"
	StateEnsuringDatabase InitState = "ensuring_database"
	StateEnsuringSchema   InitState = "ensuring_schema"
	StateMigrating        InitState = "migrating"
	StateCommitted        InitState = "committed"
	StateFaulted          InitState = "faulted"
	StateCanceled         InitState = "canceled"
)

// Health is the coarse verdict a probe reports without waiting on the
// initialization sequence.
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthDegraded  Health = "degraded"
	HealthUnhealthy Health = "unhealthy"
)

// InitStatus is a point-in-time snapshot of the initializer. Reading it never
// blocks behind the sequence itself.
type InitStatus struct {
	State      InitState
	Attempt    int
	StartedAt  time.Time
	FinishedAt time.Time
	Detail     string
}

// Health maps the snapshot onto a probe verdict: committed work is healthy,
// terminal failure is unhealthy, anything still in flight is degraded.
func (s InitStatus) Health() Health {
	switch s.State {
	case StateCommitted:
		return HealthHealthy
	case StateFaulted, StateCanceled:
		return HealthUnhealthy
	default:
		return HealthDegraded
	}
}

var stateGaugeValues = map[InitState]float64{
	StateNotStarted:       0,
	StateEnsuringDatabase: 1,
	StateEnsuringSchema:   2,
	StateMigrating:        3,
	StateCommitted:        4,
	StateFaulted:          5,
	StateCanceled:         6,
}

// ErrInitFailed is returned by Run when the sequence ends in a terminal
// failure state.
var ErrInitFailed = errors.New("store initialization failed")

type initStep func(ctx context.Context) error

// Initializer drives the store through database creation, schema creation,
// and migrations exactly once per process. Every consumer observes the same
// outcome through Ready and Status.
type Initializer struct {
	cfg     config.PostgresSettings
	logger  *zap.Logger
	metrics *telemetry.IdentityMetrics

	ensureDatabase initStep
	ensureSchema   initStep
	migrate        initStep

	mu      sync.Mutex
	started bool
	status  InitStatus
	runErr  error
	ready   chan struct{}
}

// NewInitializer builds the production initializer. The pool must already be
// configured against the target database; database creation goes through a
// short-lived admin connection instead.
func NewInitializer(cfg config.PostgresSettings, pool *pgxpool.Pool, logger *zap.Logger, metrics *telemetry.IdentityMetrics) *Initializer {
	ini := &Initializer{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		ready:   make(chan struct{}),
		status:  InitStatus{State: StateNotStarted},
	}

	ini.ensureDatabase = func(ctx context.Context) error {
		return ensureDatabaseExists(ctx, cfg, logger)
	}
	ini.ensureSchema = func(ctx context.Context) error {
		_, err := pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", identitySchema))
		if err != nil {
			return fmt.Errorf("create schema %s: %w", identitySchema, err)
		}
		return nil
	}
	ini.migrate = func(ctx context.Context) error {
		if !cfg.AutoMigrate {
			logger.Info("auto-migrate disabled, skipping migrations")
			return nil
		}
		return runMigrations(cfg, logger)
	}

	return ini
}

// Ready is closed when the sequence reaches a terminal state, successful or
// not. Callers gate data-plane startup on it.
func (i *Initializer) Ready() <-chan struct{} {
	return i.ready
}

// Status returns the current snapshot without blocking on the sequence.
func (i *Initializer) Status() InitStatus {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status
}

// Run executes the initialization sequence. Repeated calls after the first
// do not re-run anything; they report the recorded outcome.
func (i *Initializer) Run(ctx context.Context) error {
	i.mu.Lock()
	if i.started {
		i.mu.Unlock()
		<-i.ready
		i.mu.Lock()
		defer i.mu.Unlock()
		return i.runErr
	}
	i.started = true
	i.status.StartedAt = time.Now()
	i.mu.Unlock()

	err := i.run(ctx)

	i.mu.Lock()
	i.runErr = err
	i.status.FinishedAt = time.Now()
	i.mu.Unlock()

	if i.metrics != nil {
		i.metrics.InitDuration.Observe(time.Since(i.Status().StartedAt).Seconds())
	}
	close(i.ready)
	return err
}

func (i *Initializer) run(ctx context.Context) error {
	steps := []struct {
		state InitState
		step  initStep
	}{
		{StateEnsuringDatabase, i.ensureDatabase},
		{StateEnsuringSchema, i.ensureSchema},
		{StateMigrating, i.migrate},
	}

	maxAttempts := i.cfg.InitMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	backoff := i.cfg.InitRetryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		i.setAttempt(attempt)

		lastErr = i.runAttempt(ctx, steps)
		if lastErr == nil {
			i.setState(StateCommitted, "")
			i.logger.Info("store initialization committed", zap.Int("attempt", attempt))
			return nil
		}

		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			i.setState(StateCanceled, fmt.Sprintf("initialization canceled: %v", lastErr))
			i.logger.Warn("store initialization canceled", zap.Error(lastErr))
			return fmt.Errorf("%w: %v", ErrInitFailed, lastErr)
		}

		i.logger.Warn("store initialization attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(lastErr),
		)

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				i.setState(StateCanceled, fmt.Sprintf("initialization canceled: %v", ctx.Err()))
				return fmt.Errorf("%w: %v", ErrInitFailed, ctx.Err())
			case <-time.After(backoff):
			}
		}
	}

	i.setState(StateFaulted, lastErr.Error())
	i.logger.Error("store initialization faulted", zap.Error(lastErr))
	return fmt.Errorf("%w: %v", ErrInitFailed, lastErr)
}

func (i *Initializer) runAttempt(ctx context.Context, steps []struct {
	state InitState
	step  initStep
}) error {
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		i.setState(s.state, "")
		if err := s.step(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (i *Initializer) setState(state InitState, detail string) {
	i.mu.Lock()
	i.status.State = state
	i.status.Detail = detail
	i.mu.Unlock()

	if i.metrics != nil {
		i.metrics.InitState.Set(stateGaugeValues[state])
	}
}

func (i *Initializer) setAttempt(attempt int) {
	i.mu.Lock()
	i.status.Attempt = attempt
	i.mu.Unlock()
}

// ensureDatabaseExists connects to the maintenance database and creates the
// target database when missing. CREATE DATABASE cannot run inside a
// transaction, so the check-then-create race is absorbed by treating the
// duplicate error as success.
func ensureDatabaseExists(ctx context.Context, cfg config.PostgresSettings, logger *zap.Logger) error {
	conn, err := pgx.Connect(ctx, cfg.AdminDSN())
	if err != nil {
		return fmt.Errorf("connect admin database: %w", err)
	}
	defer conn.Close(ctx)

	var exists bool
	err = conn.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)",
		cfg.Database,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check database existence: %w", err)
	}
	if exists {
		return nil
	}

	_, err = conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", pgx.Identifier{cfg.Database}.Sanitize()))
	if err != nil {
		if isDuplicateDatabase(err) {
			return nil
		}
		return fmt.Errorf("create database %s: %w", cfg.Database, err)
	}

	logger.Info("created database", zap.String("database", cfg.Database))
	return nil
}
