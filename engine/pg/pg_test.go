package pg

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/engine/internal"
)

// mustCreateSchema creates a new database schema and returns a database URL, which points to it.
func mustCreateSchema(t *testing.T) (string, string) {
	if testing.Short() {
		t.Skip()
	}

	databaseUrl := os.Getenv("PG_DATABASE_URL")
	if databaseUrl == "" {
		t.Skip("PG_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, databaseUrl)
	if err != nil {
		t.Fatalf("failed to establish database connection: %v", err)
	}

	defer conn.Close(ctx)

	databaseSchema := fmt.Sprintf("test_pg_%s", strings.Replace(time.Now().Format("20060102150405.000000"), ".", "", 1))
	if _, err := conn.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", databaseSchema)); err != nil {
		t.Fatalf("failed to create database schema: %v", err)
	}

	return fmt.Sprintf("%s?search_path=%s", databaseUrl, databaseSchema), databaseSchema
}

func mustCreateStore(t *testing.T) *pgStore {
	databaseUrl, databaseSchema := mustCreateSchema(t)

	ctx := context.Background()

	pgPool, err := pgxpool.New(ctx, databaseUrl)
	if err != nil {
		t.Fatalf("failed to create database connection pool: %v", err)
	}

	s := &pgStore{pool: pgPool, timeout: 15 * time.Second}
	if err := s.migrate(ctx, databaseSchema); err != nil {
		pgPool.Close()
		t.Fatalf("failed to migrate database: %v", err)
	}

	t.Cleanup(s.Close)
	return s
}

func mustFlush(t *testing.T, s *pgStore, fn func(*internal.Batch)) {
	var batch internal.Batch
	fn(&batch)
	if err := s.Flush(context.Background(), &batch); err != nil {
		t.Fatalf("failed to flush batch: %v", err)
	}
}

func TestMigrate(t *testing.T) {
	assert := assert.New(t)

	s := mustCreateStore(t)

	ctx := context.Background()

	t.Run("sets schema version", func(t *testing.T) {
		b, err := resources.ReadFile("migration/version.txt")
		require.NoError(t, err)

		var databaseSchema string
		require.NoError(t, s.pool.QueryRow(ctx, "SELECT current_schema()").Scan(&databaseSchema))

		tx, err := s.pool.Begin(ctx)
		require.NoError(t, err)
		defer tx.Rollback(ctx)

		schemaVersion, err := selectSchemaVersion(ctx, tx, databaseSchema)
		assert.NoError(err)
		assert.Equal(strings.TrimSpace(string(b)), schemaVersion)
	})

	t.Run("is idempotent", func(t *testing.T) {
		var databaseSchema string
		require.NoError(t, s.pool.QueryRow(ctx, "SELECT current_schema()").Scan(&databaseSchema))

		assert.NoError(s.migrate(ctx, databaseSchema))
	})
}

func TestFlush(t *testing.T) {
	assert := assert.New(t)

	s := mustCreateStore(t)

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	mustFlush(t, s, func(batch *internal.Batch) {
		batch.PutProcessDefinition(&internal.ProcessDefinitionEntity{Id: 1, Key: "order", TenantId: "", Version: 1, CreatedAt: now, Source: "id: order"})
		batch.PutProcessDefinition(&internal.ProcessDefinitionEntity{Id: 2, Key: "order", TenantId: "", Version: 2, CreatedAt: now, Source: "id: order"})
		batch.PutProcessDefinition(&internal.ProcessDefinitionEntity{Id: 3, Key: "order", TenantId: "acme", Version: 1, CreatedAt: now, Source: "id: order"})
	})

	t.Run("select latest and by version", func(t *testing.T) {
		latest, err := s.ProcessDefinitions().SelectLatest(ctx, "order", "")
		require.NoError(t, err)
		assert.Equal(int64(2), latest.Id)

		version, err := s.ProcessDefinitions().SelectByVersion(ctx, "order", "acme", 1)
		require.NoError(t, err)
		assert.Equal(int64(3), version.Id)
		assert.Equal(now, version.CreatedAt)

		_, err = s.ProcessDefinitions().SelectLatest(ctx, "invoice", "")
		assert.Equal(pgx.ErrNoRows, err)
	})

	t.Run("returns conflict when process definition version exists", func(t *testing.T) {
		// when
		err := s.Flush(ctx, &internal.Batch{
			ProcessDefinitions: map[int64]*internal.ProcessDefinitionEntity{
				4: {Id: 4, Key: "order", TenantId: "", Version: 2, CreatedAt: now},
			},
			ProcessInstances: map[int64]*internal.ProcessInstanceEntity{
				5: {Id: 5, ProcessDefinitionId: 4, StartedAt: now, State: engine.InstanceActive},
			},
		})

		// then
		assert.True(engine.IsErrorType(err, engine.ErrorConflict))

		_, err = s.ProcessInstances().Select(ctx, 5)
		assert.Equal(pgx.ErrNoRows, err, "should roll back")
	})

	t.Run("returns conflict when message unique key exists", func(t *testing.T) {
		mustFlush(t, s, func(batch *internal.Batch) {
			batch.PutMessage(&internal.MessageEventEntity{Id: 10, Name: "paid", UniqueKey: pgtype.Text{String: "order-1", Valid: true}, CreatedAt: now})
		})

		err := s.Flush(ctx, &internal.Batch{
			Messages: map[int64]*internal.MessageEventEntity{
				11: {Id: 11, Name: "paid", UniqueKey: pgtype.Text{String: "order-1", Valid: true}, CreatedAt: now},
			},
		})
		assert.True(engine.IsErrorType(err, engine.ErrorConflict))

		message, err := s.Messages().SelectByUniqueKey(ctx, "paid", "order-1")
		require.NoError(t, err)
		assert.Equal(int64(10), message.Id)
	})

	t.Run("updates entities", func(t *testing.T) {
		processInstance := internal.ProcessInstanceEntity{
			Id:                  20,
			ProcessDefinitionId: 1,
			BusinessKey:         pgtype.Text{String: "order-20", Valid: true},
			DefinitionKey:       "order",
			DefinitionVersion:   1,
			StartedAt:           now,
			State:               engine.InstanceActive,
			Variables:           map[string]any{"amount": 10.0},
		}
		userTask := internal.UserTaskEntity{
			Id:                 21,
			ProcessInstanceId:  20,
			ActivityInstanceId: 22,
			ActivityId:         "approve",
			CandidateGroups:    []string{"managers"},
			CreatedAt:          now,
			State:              engine.UserTaskReady,
		}

		mustFlush(t, s, func(batch *internal.Batch) {
			batch.PutProcessInstance(&processInstance)
			batch.PutUserTask(&userTask)
		})

		processInstance.State = engine.InstanceCompleted
		processInstance.EndedAt = pgtype.Timestamp{Time: now, Valid: true}
		processInstance.Variables = map[string]any{"amount": 20.0, "approved": true}

		userTask.State = engine.UserTaskCompleted
		userTask.CompletedBy = pgtype.Text{String: "anna", Valid: true}

		mustFlush(t, s, func(batch *internal.Batch) {
			batch.PutProcessInstance(&processInstance)
			batch.PutUserTask(&userTask)
		})

		selectedProcessInstance, err := s.ProcessInstances().Select(ctx, 20)
		require.NoError(t, err)
		assert.Equal(processInstance, *selectedProcessInstance)

		selectedUserTask, err := s.UserTasks().Select(ctx, 21)
		require.NoError(t, err)
		assert.Equal(engine.UserTaskCompleted, selectedUserTask.State)
		assert.Equal([]string{"managers"}, selectedUserTask.CandidateGroups)
		assert.Equal("anna", selectedUserTask.CompletedBy.String)

		open, err := s.UserTasks().SelectOpen(ctx, 20)
		assert.NoError(err)
		assert.Empty(open)
	})
}

func TestTimerJobLock(t *testing.T) {
	assert := assert.New(t)

	s := mustCreateStore(t)

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	mustFlush(t, s, func(batch *internal.Batch) {
		batch.PutTimerJob(&internal.TimerJobEntity{Id: 1, ProcessInstanceId: 10, DueAt: now.Add(-time.Minute), CreatedAt: now, State: engine.TimerWaiting, Type: engine.TimerDuration})
		batch.PutTimerJob(&internal.TimerJobEntity{Id: 2, ProcessInstanceId: 20, DueAt: now.Add(-time.Hour), CreatedAt: now, State: engine.TimerWaiting, Type: engine.TimerDuration})
		batch.PutTimerJob(&internal.TimerJobEntity{Id: 3, ProcessInstanceId: 10, DueAt: now.Add(time.Minute), CreatedAt: now, State: engine.TimerWaiting, Type: engine.TimerDuration})
		batch.PutTimerJob(&internal.TimerJobEntity{Id: 4, ProcessInstanceId: 10, DueAt: now.Add(-time.Hour), CreatedAt: now, State: engine.TimerCompleted, Type: engine.TimerDuration})
	})

	// when
	locked, err := s.TimerJobs().Lock(ctx, internal.TimerJobLock{Limit: 10, Now: now, EngineId: "a"})

	// then
	require.NoError(t, err)
	require.Len(t, locked, 2)

	assert.Equal(int64(2), locked[0].Id)
	assert.Equal(int64(1), locked[1].Id)

	for _, timerJob := range locked {
		assert.Equal(engine.TimerLocked, timerJob.State)
		assert.Equal("a", timerJob.LockedBy.String)
		assert.Equal(now, timerJob.LockedAt.Time)
	}

	// when locked again
	locked, err = s.TimerJobs().Lock(ctx, internal.TimerJobLock{Limit: 10, Now: now.Add(time.Hour), EngineId: "b"})

	// then
	require.NoError(t, err)
	require.Len(t, locked, 1)
	assert.Equal(int64(3), locked[0].Id)
}

func TestExternalTaskLock(t *testing.T) {
	assert := assert.New(t)

	s := mustCreateStore(t)

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	mustFlush(t, s, func(batch *internal.Batch) {
		batch.PutExternalTask(&internal.ExternalTaskEntity{Id: 1, Topic: "mail", CreatedAt: now, State: engine.ExternalTaskCreated})
		batch.PutExternalTask(&internal.ExternalTaskEntity{Id: 2, Topic: "sms", CreatedAt: now, State: engine.ExternalTaskCreated})
		batch.PutExternalTask(&internal.ExternalTaskEntity{
			Id:            3,
			Topic:         "mail",
			CreatedAt:     now,
			State:         engine.ExternalTaskLocked,
			LockedBy:      pgtype.Text{String: "worker-a", Valid: true},
			LockExpiresAt: pgtype.Timestamp{Time: now.Add(-time.Second), Valid: true},
		})
		batch.PutExternalTask(&internal.ExternalTaskEntity{
			Id:            4,
			Topic:         "mail",
			CreatedAt:     now,
			State:         engine.ExternalTaskLocked,
			LockedBy:      pgtype.Text{String: "worker-a", Valid: true},
			LockExpiresAt: pgtype.Timestamp{Time: now.Add(time.Minute), Valid: true},
		})
	})

	locked, err := s.ExternalTasks().Lock(ctx, internal.ExternalTaskLock{
		Topic:         "mail",
		Limit:         10,
		Now:           now,
		LockExpiresAt: now.Add(5 * time.Minute),
		WorkerId:      "worker-b",
	})
	require.NoError(t, err)
	require.Len(t, locked, 2)

	assert.Equal(int64(1), locked[0].Id)
	assert.Equal(int64(3), locked[1].Id)

	for _, externalTask := range locked {
		assert.Equal("worker-b", externalTask.LockedBy.String)
		assert.Equal(now.Add(5*time.Minute), externalTask.LockExpiresAt.Time)
	}
}

func TestQuery(t *testing.T) {
	assert := assert.New(t)

	s := mustCreateStore(t)

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	mustFlush(t, s, func(batch *internal.Batch) {
		for i := int64(1); i <= 5; i++ {
			state := engine.InstanceActive
			if i%2 == 0 {
				state = engine.InstanceCompleted
			}
			batch.PutProcessInstance(&internal.ProcessInstanceEntity{
				Id:            i,
				DefinitionKey: "order",
				StartedAt:     now,
				State:         state,
				TenantId:      "it's",
			})
		}
	})

	t.Run("criteria", func(t *testing.T) {
		results, err := s.ProcessInstances().Query(ctx, engine.ProcessInstanceCriteria{State: engine.InstanceActive}, engine.QueryOptions{})
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(int64(1), results[0].Id)
		assert.Equal(int64(3), results[1].Id)
		assert.Equal(int64(5), results[2].Id)

		results, err = s.ProcessInstances().Query(ctx, engine.ProcessInstanceCriteria{TenantId: "it's"}, engine.QueryOptions{})
		require.NoError(t, err)
		assert.Len(results, 5, "should quote string")
	})

	t.Run("offset and limit", func(t *testing.T) {
		results, err := s.ProcessInstances().Query(ctx, engine.ProcessInstanceCriteria{}, engine.QueryOptions{Offset: 1, Limit: 2})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(int64(2), results[0].Id)
		assert.Equal(int64(3), results[1].Id)
	})
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	t.Run("returns error when database URL is empty", func(t *testing.T) {
		_, err := New("")
		assert.Error(err)
	})

	t.Run("returns error when options are invalid", func(t *testing.T) {
		_, err := New("postgres://localhost:5432/test", func(o *Options) {
			o.Timeout = time.Millisecond
		})
		assert.Error(err)
	})

	t.Run("creates engine", func(t *testing.T) {
		databaseUrl, _ := mustCreateSchema(t)

		e, err := New(databaseUrl, func(o *Options) {
			o.Common.TimerSchedulerEnabled = false
		})
		require.NoError(t, err)
		defer e.Shutdown()

		processDefinition, err := e.DeployProcess(context.Background(), engine.DeployProcessCmd{
			Source:    "id: greeting\nnodes:\n  - id: start\n    type: startEvent\n  - id: end\n    type: endEvent\nflows:\n  - source: start\n    target: end\n",
			CreatedBy: "test",
		})
		require.NoError(t, err)
		assert.Equal(1, processDefinition.Version)

		processInstance, err := e.StartProcess(context.Background(), engine.StartProcessCmd{DefinitionKey: "greeting", CreatedBy: "test"})
		require.NoError(t, err)
		assert.Equal(engine.InstanceCompleted, processInstance.State)
	})
}
