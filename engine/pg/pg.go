package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/engine/internal"
)

func New(databaseUrl string, customizers ...func(*Options)) (engine.Engine, error) {
	if databaseUrl == "" {
		return nil, errors.New("database URL is empty")
	}

	options := NewOptions()
	for _, customizer := range customizers {
		customizer(&options)
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}

	pgPoolConfig, err := pgxpool.ParseConfig(databaseUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %v", err)
	}

	if _, ok := pgPoolConfig.ConnConfig.RuntimeParams["application_name"]; !ok {
		pgPoolConfig.ConnConfig.RuntimeParams["application_name"] = options.Common.EngineId
	}

	if databaseSchema, ok := pgPoolConfig.ConnConfig.RuntimeParams["search_path"]; ok {
		options.databaseSchema = databaseSchema
	}

	if options.MaxConns > 0 {
		pgPoolConfig.MaxConns = options.MaxConns
	}

	ctx, cancel := context.WithTimeout(context.Background(), options.Timeout)
	defer cancel()

	pgPool, err := pgxpool.NewWithConfig(ctx, pgPoolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %v", err)
	}

	store := pgStore{pool: pgPool, timeout: options.Timeout}

	if err := store.migrate(ctx, options.databaseSchema); err != nil {
		pgPool.Close()
		return nil, fmt.Errorf("failed to migrate database: %v", err)
	}

	e, err := internal.New(ctx, &store, options.Common)
	if err != nil {
		pgPool.Close()
		return nil, fmt.Errorf("failed to create pg engine: %v", err)
	}
	return e, nil
}

func NewOptions() Options {
	common := engine.NewOptions()
	common.TimerSchedulerEnabled = true

	return Options{
		Common: common,

		Timeout: 30 * time.Second,

		databaseSchema: "public",
	}
}

type Options struct {
	Common engine.Options // Common engine options.

	MaxConns int32         // Maximum size of the connection pool. If 0, the pgxpool default is used.
	Timeout  time.Duration // Time limit for database statements, utilized when no deadline is set.

	databaseSchema string // derived from database URL - see runtime parameter "search_path"
}

func (o Options) Validate() error {
	if err := o.Common.Validate(); err != nil {
		return err
	}
	if o.MaxConns < 0 {
		return errors.New("max conns must be greater than or equal to 0")
	}
	if o.Timeout.Milliseconds() < 1000 {
		return errors.New("timeout must be greater than or equal to 1000 ms")
	}
	return nil
}

// db is implemented by [pgxpool.Pool] and [pgx.Tx].
type db interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgStore implements [internal.Store].
type pgStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func (s *pgStore) ActivityInstances() internal.ActivityInstanceRepository {
	return activityInstanceRepository{db: s.pool}
}

func (s *pgStore) ExternalTasks() internal.ExternalTaskRepository {
	return externalTaskRepository{db: s.pool}
}

func (s *pgStore) Incidents() internal.IncidentRepository {
	return incidentRepository{db: s.pool}
}

func (s *pgStore) Messages() internal.MessageRepository {
	return messageRepository{db: s.pool}
}

func (s *pgStore) ProcessDefinitions() internal.ProcessDefinitionRepository {
	return processDefinitionRepository{db: s.pool}
}

func (s *pgStore) ProcessInstances() internal.ProcessInstanceRepository {
	return processInstanceRepository{db: s.pool}
}

func (s *pgStore) Signals() internal.SignalRepository {
	return signalRepository{db: s.pool}
}

func (s *pgStore) TimerJobs() internal.TimerJobRepository {
	return timerJobRepository{db: s.pool}
}

func (s *pgStore) UserTasks() internal.UserTaskRepository {
	return userTaskRepository{db: s.pool}
}

// Flush upserts all entities of a batch within a single transaction.
// A unique violation results in an error of type [engine.ErrorConflict], which is not retried.
func (s *pgStore) Flush(ctx context.Context, batch *internal.Batch) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}

	if err := flush(ctx, tx, batch); err != nil {
		_ = tx.Rollback(ctx)

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return engine.Error{
				Type:   engine.ErrorConflict,
				Title:  "failed to flush batch",
				Detail: pgErr.Detail,
			}
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}
	return nil
}

func flush(ctx context.Context, tx pgx.Tx, batch *internal.Batch) error {
	for _, e := range internal.Sorted(batch.ProcessDefinitions) {
		if err := upsertProcessDefinition(ctx, tx, e); err != nil {
			return err
		}
	}
	for _, e := range internal.Sorted(batch.ProcessInstances) {
		if err := upsertProcessInstance(ctx, tx, e); err != nil {
			return err
		}
	}
	for _, e := range internal.Sorted(batch.ActivityInstances) {
		if err := upsertActivityInstance(ctx, tx, e); err != nil {
			return err
		}
	}
	for _, e := range internal.Sorted(batch.UserTasks) {
		if err := upsertUserTask(ctx, tx, e); err != nil {
			return err
		}
	}
	for _, e := range internal.Sorted(batch.TimerJobs) {
		if err := upsertTimerJob(ctx, tx, e); err != nil {
			return err
		}
	}
	for _, e := range internal.Sorted(batch.ExternalTasks) {
		if err := upsertExternalTask(ctx, tx, e); err != nil {
			return err
		}
	}
	for _, e := range internal.Sorted(batch.Incidents) {
		if err := upsertIncident(ctx, tx, e); err != nil {
			return err
		}
	}
	for _, e := range internal.Sorted(batch.Messages) {
		if err := upsertMessage(ctx, tx, e); err != nil {
			return err
		}
	}
	for _, e := range internal.Sorted(batch.Signals) {
		if err := upsertSignal(ctx, tx, e); err != nil {
			return err
		}
	}
	return nil
}

func (s *pgStore) Close() {
	s.pool.Close()
}

// withTimeout applies the store timeout, if ctx has no deadline.
func (s *pgStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}
