package internal

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/engine/expr"
	"github.com/zensgit/metasheet2-sub006/model"
)

var repeatingIntervalRegexp = regexp.MustCompile(`^R(\d*)/(P.+)$`)

type TimerJobEntity struct {
	Id int64

	ProcessInstanceId  int64
	ActivityInstanceId int64

	ActivityId  string
	CompletedAt pgtype.Timestamp
	CreatedAt   time.Time
	Definition  string
	DueAt       time.Time
	Error       pgtype.Text
	LockedAt    pgtype.Timestamp
	LockedBy    pgtype.Text
	Repetitions int
	RetryCount  int
	Retries     int
	State       engine.TimerState
	Type        engine.TimerType
}

func (e TimerJobEntity) TimerJob() engine.TimerJob {
	return engine.TimerJob{
		Id: e.Id,

		ProcessInstanceId:  e.ProcessInstanceId,
		ActivityInstanceId: e.ActivityInstanceId,

		ActivityId:  e.ActivityId,
		CompletedAt: timeOrNil(e.CompletedAt),
		CreatedAt:   e.CreatedAt,
		Definition:  e.Definition,
		DueAt:       e.DueAt,
		Error:       e.Error.String,
		LockedAt:    timeOrNil(e.LockedAt),
		LockedBy:    e.LockedBy.String,
		Repetitions: e.Repetitions,
		RetryCount:  e.RetryCount,
		Retries:     e.Retries,
		State:       e.State,
		Type:        e.Type,
	}
}

func (e *TimerJobEntity) unlock() {
	e.LockedAt = pgtype.Timestamp{}
	e.LockedBy = pgtype.Text{}
}

type TimerJobRepository interface {
	Select(ctx context.Context, id int64) (*TimerJobEntity, error)
	// SelectOpen selects all WAITING or LOCKED timer jobs of a process instance.
	SelectOpen(ctx context.Context, processInstanceId int64) ([]*TimerJobEntity, error)

	// Lock locks WAITING timer jobs, which are due, ordered by due time.
	// Locking is a compare-and-set operation: a timer job is locked by one engine only.
	Lock(context.Context, TimerJobLock) ([]*TimerJobEntity, error)

	Query(context.Context, engine.TimerJobCriteria, engine.QueryOptions) ([]engine.TimerJob, error)
}

// timer is a parsed timer value.
type timer struct {
	Type       engine.TimerType
	Definition string

	date        time.Time
	duration    engine.ISO8601Duration
	repetitions int // -1, if unbounded
}

// next returns the point in time, when the timer is due, if it is started at t.
func (v timer) next(t time.Time) (time.Time, error) {
	switch v.Type {
	case engine.TimerDate:
		return v.date, nil
	case engine.TimerDuration:
		return v.duration.Calculate(t), nil
	case engine.TimerCycle:
		if !v.duration.IsZero() {
			return v.duration.Calculate(t), nil
		}
		next, err := gronx.NextTickAfter(v.Definition, t, false)
		if err != nil {
			return time.Time{}, err
		}
		return next.UTC().Truncate(time.Millisecond), nil
	default:
		return time.Time{}, errors.New("must specify a time date, time cycle or time duration")
	}
}

// parseTimer parses a timer value of the given type:
//   - date: RFC 3339 time, e.g. 2025-01-01T12:00:00Z
//   - duration: ISO 8601 duration, e.g. PT1H
//   - cycle: CRON expression, e.g. 0 * * * *, or repeating interval, e.g. R3/PT10M
func parseTimer(timerType engine.TimerType, value string) (timer, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return timer{}, fmt.Errorf("%s timer has no value", strings.ToLower(timerType.String()))
	}

	v := timer{Type: timerType, Definition: value}
	switch timerType {
	case engine.TimerDate:
		date, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return timer{}, fmt.Errorf("failed to parse time date %s: %v", value, err)
		}
		// must be UTC and truncated to millis, like every other engine time
		v.date = date.UTC().Truncate(time.Millisecond)
	case engine.TimerDuration:
		duration, err := engine.NewISO8601Duration(value)
		if err != nil {
			return timer{}, err
		}
		v.duration = duration
	case engine.TimerCycle:
		if m := repeatingIntervalRegexp.FindStringSubmatch(value); m != nil {
			duration, err := engine.NewISO8601Duration(m[2])
			if err != nil {
				return timer{}, fmt.Errorf("failed to parse time cycle %s: %v", value, err)
			}
			if duration.Calculate(time.Time{}).IsZero() {
				return timer{}, fmt.Errorf("failed to parse time cycle %s: interval must not be empty", value)
			}

			v.duration = duration
			v.repetitions = -1

			if m[1] != "" {
				n, err := strconv.Atoi(m[1])
				if err != nil || n < 1 {
					return timer{}, fmt.Errorf("failed to parse time cycle %s: repetitions must be greater than 0", value)
				}
				v.repetitions = n
			}
		} else if gronx.IsValid(value) {
			v.repetitions = -1
		} else {
			return timer{}, fmt.Errorf("failed to parse time cycle %s: neither a CRON expression nor a repeating interval", value)
		}
	default:
		return timer{}, fmt.Errorf("unsupported timer type %d", timerType)
	}
	return v, nil
}

// timerValue returns type and raw value of a timer definition.
func timerValue(definition *model.TimerDefinition) (engine.TimerType, string) {
	switch {
	case strings.TrimSpace(definition.TimeDate) != "":
		return engine.TimerDate, definition.TimeDate
	case strings.TrimSpace(definition.TimeDuration) != "":
		return engine.TimerDuration, definition.TimeDuration
	default:
		return engine.TimerCycle, definition.TimeCycle
	}
}

// resolveTimer resolves the value of a timer definition, which can be an expression, and parses it.
func resolveTimer(evaluator *expr.Evaluator, definition *model.TimerDefinition, variables map[string]any) (timer, error) {
	timerType, value := timerValue(definition)

	resolved, err := evaluator.ResolveString(value, variables)
	if err != nil {
		return timer{}, err
	}
	return parseTimer(timerType, resolved)
}

func (e *Engine) ExecuteTimers(ctx context.Context, cmd engine.ExecuteTimersCmd) ([]engine.TimerJob, []engine.TimerJob, error) {
	if err := e.validateCmd("failed to execute timers", cmd); err != nil {
		return nil, nil, err
	}

	limit := cmd.Limit
	if limit == 0 {
		limit = e.options.TimerSchedulerLimit
	}

	lockedJobs, err := e.store.TimerJobs().Lock(ctx, TimerJobLock{
		ProcessInstanceId: cmd.ProcessInstanceId,
		Limit:             limit,
		Now:               e.now(),
		EngineId:          e.options.EngineId,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock timer jobs: %v", err)
	}

	var (
		completed []engine.TimerJob
		failed    []engine.TimerJob
	)

	for _, lockedJob := range lockedJobs {
		timerJob, fired, err := e.executeTimer(ctx, lockedJob)
		if err != nil {
			return completed, failed, err
		}
		if timerJob == nil {
			continue
		}

		if fired {
			completed = append(completed, timerJob.TimerJob())
		} else if timerJob.Error.Valid && (timerJob.State == engine.TimerWaiting || timerJob.State == engine.TimerFailed) {
			failed = append(failed, timerJob.TimerJob())
		}
	}

	return completed, failed, nil
}

// executeTimer fires a locked timer job under the lock of its process instance.
//
// It returns the resulting timer job and reports whether the bound activity was continued.
// An error is only returned, when the outcome of a failed execution cannot be written.
func (e *Engine) executeTimer(ctx context.Context, lockedJob *TimerJobEntity) (*TimerJobEntity, bool, error) {
	var (
		result *TimerJobEntity
		fired  bool
	)

	err := e.instances.Execute(ctx, lockedJob.ProcessInstanceId, func(state *instanceState, batch *Batch) error {
		timerJob, err := e.store.TimerJobs().Select(ctx, lockedJob.Id)
		if err != nil {
			return fmt.Errorf("failed to select timer job %d: %v", lockedJob.Id, err)
		}
		if timerJob.State != engine.TimerLocked || timerJob.LockedBy.String != e.options.EngineId {
			return nil // changed, while waiting for the lock
		}

		now := e.now()

		if state.instance.isEnded() {
			timerJob.CompletedAt = timestamp(now)
			timerJob.State = engine.TimerCanceled
			batch.PutTimerJob(timerJob)
			result = timerJob
			return nil
		}
		if state.instance.State == engine.InstanceSuspended {
			timerJob.State = engine.TimerWaiting
			timerJob.unlock()
			batch.PutTimerJob(timerJob)
			result = timerJob
			return nil
		}

		activityInstance := state.openById(timerJob.ActivityInstanceId)
		if activityInstance == nil {
			timerJob.CompletedAt = timestamp(now)
			timerJob.State = engine.TimerCanceled
			batch.PutTimerJob(timerJob)
			result = timerJob
			return nil
		}

		g, err := e.graphs.Get(ctx, e.store, state.instance.ProcessDefinitionId)
		if err != nil {
			return err
		}

		timerJob.CompletedAt = timestamp(now)
		timerJob.Error = pgtype.Text{}
		timerJob.State = engine.TimerCompleted

		ec := e.newExecution(ctx, g, state, batch, e.options.EngineId)
		ec.firingTimer = timerJob

		if err := ec.continueActivity(activityInstance); err != nil {
			return err
		}

		// put after the continuation, which rebinds a cycle timer job, when its catch event is entered again
		batch.PutTimerJob(timerJob)
		result = timerJob
		fired = true
		return nil
	})

	if err == pgx.ErrNoRows {
		return e.cancelTimer(ctx, lockedJob)
	}
	if err != nil {
		return e.failTimer(ctx, lockedJob, err)
	}

	if fired {
		e.logger.Debug("timer fired", "id", result.Id, "activityId", result.ActivityId, "processInstanceId", result.ProcessInstanceId)
	}
	return result, fired, nil
}

// cancelTimer cancels a timer job, whose process instance does not exist.
func (e *Engine) cancelTimer(ctx context.Context, lockedJob *TimerJobEntity) (*TimerJobEntity, bool, error) {
	timerJob, err := e.store.TimerJobs().Select(ctx, lockedJob.Id)
	if err != nil {
		return nil, false, fmt.Errorf("failed to select timer job %d: %v", lockedJob.Id, err)
	}

	timerJob.CompletedAt = timestamp(e.now())
	timerJob.State = engine.TimerCanceled

	var batch Batch
	batch.PutTimerJob(timerJob)
	if err := e.flush(ctx, &batch); err != nil {
		return nil, false, err
	}
	return timerJob, false, nil
}

// failTimer records a failed timer job execution.
// While retries remain, the timer job becomes due again after the retry delay. Otherwise it fails - without an incident.
func (e *Engine) failTimer(ctx context.Context, lockedJob *TimerJobEntity, cause error) (*TimerJobEntity, bool, error) {
	var result *TimerJobEntity

	err := e.instances.Execute(ctx, lockedJob.ProcessInstanceId, func(_ *instanceState, batch *Batch) error {
		timerJob, err := e.store.TimerJobs().Select(ctx, lockedJob.Id)
		if err != nil {
			return fmt.Errorf("failed to select timer job %d: %v", lockedJob.Id, err)
		}
		if timerJob.State != engine.TimerLocked || timerJob.LockedBy.String != e.options.EngineId {
			return nil
		}

		now := e.now()

		timerJob.Error = text(cause.Error())
		timerJob.RetryCount++

		if timerJob.Retries > 0 {
			timerJob.DueAt = e.options.TimerRetryDelay.Calculate(now)
			timerJob.Retries--
			timerJob.State = engine.TimerWaiting
			timerJob.unlock()
		} else {
			timerJob.CompletedAt = timestamp(now)
			timerJob.State = engine.TimerFailed
		}

		batch.PutTimerJob(timerJob)
		result = timerJob
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to update timer job %d after failed execution: %v", lockedJob.Id, err)
	}
	if result == nil {
		return nil, false, nil
	}

	e.logger.Error("failed to execute timer job",
		"id", result.Id,
		"activityId", result.ActivityId,
		"processInstanceId", result.ProcessInstanceId,
		"retryCount", result.RetryCount,
		"state", result.State,
		"err", cause,
	)

	if e.options.OnTimerExecutionFailure != nil {
		e.options.OnTimerExecutionFailure(result.TimerJob(), engine.Error{
			Type:   engine.ErrorTimerExecution,
			Title:  "failed to execute timer job",
			Detail: cause.Error(),
		})
	}

	return result, false, nil
}
