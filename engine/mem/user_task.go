package mem

import (
	"context"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/engine/internal"
)

type userTaskRepository struct {
	s *memStore
}

func (r userTaskRepository) Select(_ context.Context, id int64) (*internal.UserTaskEntity, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	e, ok := r.s.userTasks[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return copyUserTask(e), nil
}

func (r userTaskRepository) SelectOpen(_ context.Context, processInstanceId int64) ([]*internal.UserTaskEntity, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	var results []*internal.UserTaskEntity
	for _, id := range sortedIds(r.s.userTasks) {
		e := r.s.userTasks[id]
		if e.ProcessInstanceId != processInstanceId {
			continue
		}
		if e.State == engine.UserTaskReady || e.State == engine.UserTaskReserved {
			results = append(results, copyUserTask(e))
		}
	}
	return results, nil
}

func (r userTaskRepository) Query(_ context.Context, c engine.UserTaskCriteria, o engine.QueryOptions) ([]engine.UserTask, error) {
	r.s.mutex.RLock()
	defer r.s.mutex.RUnlock()

	return query(r.s.userTasks, o, func(e internal.UserTaskEntity) bool {
		if c.Id != 0 && c.Id != e.Id {
			return false
		}
		if c.Assignee != "" && c.Assignee != e.Assignee.String {
			return false
		}
		if c.CandidateGroup != "" && !slices.Contains(e.CandidateGroups, c.CandidateGroup) {
			return false
		}
		if c.CandidateUser != "" && !slices.Contains(e.CandidateUsers, c.CandidateUser) {
			return false
		}
		if c.ProcessInstanceId != 0 && c.ProcessInstanceId != e.ProcessInstanceId {
			return false
		}
		if c.State != 0 && c.State != e.State {
			return false
		}
		return true
	}, internal.UserTaskEntity.UserTask), nil
}

func copyUserTask(e internal.UserTaskEntity) *internal.UserTaskEntity {
	e.CandidateGroups = slices.Clone(e.CandidateGroups)
	e.CandidateUsers = slices.Clone(e.CandidateUsers)
	e.Variables = internal.CopyVariables(e.Variables)
	return &e
}
