package internal

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/model"
)

type ProcessDefinitionEntity struct {
	Id int64

	Checksum  string
	CreatedAt time.Time
	CreatedBy string
	Key       string
	Name      string
	Source    string
	TenantId  string
	Version   int
}

func (e ProcessDefinitionEntity) ProcessDefinition() engine.ProcessDefinition {
	return engine.ProcessDefinition{
		Id: e.Id,

		Checksum:  e.Checksum,
		CreatedAt: e.CreatedAt,
		CreatedBy: e.CreatedBy,
		Key:       e.Key,
		Name:      e.Name,
		TenantId:  e.TenantId,
		Version:   e.Version,
	}
}

type ProcessDefinitionRepository interface {
	Select(ctx context.Context, id int64) (*ProcessDefinitionEntity, error)
	// SelectByVersion selects a specific version of a process definition.
	SelectByVersion(ctx context.Context, key string, tenantId string, version int) (*ProcessDefinitionEntity, error)
	// SelectLatest selects the process definition with the highest version.
	SelectLatest(ctx context.Context, key string, tenantId string) (*ProcessDefinitionEntity, error)

	Query(context.Context, engine.ProcessDefinitionCriteria, engine.QueryOptions) ([]engine.ProcessDefinition, error)
}

// parseSource parses BPMN 2.0 XML or a graph document and returns the executable process.
func parseSource(source string) (*model.Process, error) {
	var (
		m   *model.Model
		err error
	)

	trimmed := bytes.TrimSpace([]byte(source))
	if len(trimmed) != 0 && trimmed[0] == '<' {
		m, err = model.New(bytes.NewReader(trimmed))
	} else {
		m, err = model.NewDocument(trimmed)
	}
	if err != nil {
		return nil, engine.Error{
			Type:   engine.ErrorDefinition,
			Title:  "failed to parse process definition",
			Detail: err.Error(),
		}
	}

	process := m.ExecutableProcess()
	if process == nil {
		return nil, engine.Error{
			Type:   engine.ErrorDefinition,
			Title:  "failed to parse process definition",
			Detail: "no process found",
		}
	}

	if err := process.Validate(); err != nil {
		validationErr, ok := err.(*model.ValidationError)
		if !ok {
			return nil, err
		}

		causes := make([]engine.ErrorCause, len(validationErr.Problems))
		for i, problem := range validationErr.Problems {
			causes[i] = engine.ErrorCause{
				Pointer: "/" + problem.Pointer,
				Type:    problem.Type,
				Detail:  problem.Detail,
			}
		}

		return nil, engine.Error{
			Type:   engine.ErrorDefinition,
			Title:  "failed to parse process definition",
			Detail: fmt.Sprintf("process %s is invalid", process.Id),
			Causes: causes,
		}
	}

	return process, nil
}

func (e *Engine) DeployProcess(ctx context.Context, cmd engine.DeployProcessCmd) (engine.ProcessDefinition, error) {
	if err := e.validateCmd("failed to deploy process", cmd); err != nil {
		return engine.ProcessDefinition{}, err
	}

	process, err := parseSource(cmd.Source)
	if err != nil {
		return engine.ProcessDefinition{}, err
	}

	checksum := sha256.Sum256([]byte(cmd.Source))

	name := cmd.Name
	if name == "" {
		name = process.Name
	}

	definition := ProcessDefinitionEntity{
		Id: e.nextId(),

		Checksum:  hex.EncodeToString(checksum[:]),
		CreatedAt: e.now(),
		CreatedBy: cmd.CreatedBy,
		Key:       process.Id,
		Name:      name,
		Source:    cmd.Source,
		TenantId:  cmd.TenantId,
		Version:   1,
	}

	// compilation validates all expressions
	g, err := compileGraph(&definition, process, e.evaluator)
	if err != nil {
		return engine.ProcessDefinition{}, err
	}

	e.deployMutex.Lock()
	defer e.deployMutex.Unlock()

	latest, err := e.store.ProcessDefinitions().SelectLatest(ctx, definition.Key, definition.TenantId)
	if err != nil && err != pgx.ErrNoRows {
		return engine.ProcessDefinition{}, fmt.Errorf("failed to select latest process definition %s: %v", definition.Key, err)
	}
	if latest != nil {
		if latest.Checksum == definition.Checksum {
			return latest.ProcessDefinition(), nil
		}
		definition.Version = latest.Version + 1
	}

	var batch Batch
	batch.PutProcessDefinition(&definition)

	if err := e.flush(ctx, &batch); err != nil {
		return engine.ProcessDefinition{}, err
	}

	e.graphs.Add(g)

	e.logger.Info("process definition deployed", "key", definition.Key, "version", definition.Version, "id", definition.Id)

	return definition.ProcessDefinition(), nil
}

func (e *Engine) StartProcess(ctx context.Context, cmd engine.StartProcessCmd) (engine.ProcessInstance, error) {
	if err := e.validateCmd("failed to start process", cmd); err != nil {
		return engine.ProcessInstance{}, err
	}

	var (
		definition *ProcessDefinitionEntity
		err        error
	)
	if cmd.Version != 0 {
		definition, err = e.store.ProcessDefinitions().SelectByVersion(ctx, cmd.DefinitionKey, cmd.TenantId, cmd.Version)
	} else {
		definition, err = e.store.ProcessDefinitions().SelectLatest(ctx, cmd.DefinitionKey, cmd.TenantId)
	}
	if err == pgx.ErrNoRows {
		detail := fmt.Sprintf("process definition %s could not be found", cmd.DefinitionKey)
		if cmd.Version != 0 {
			detail = fmt.Sprintf("process definition %s:%d could not be found", cmd.DefinitionKey, cmd.Version)
		}
		return engine.ProcessInstance{}, engine.Error{
			Type:   engine.ErrorNotFound,
			Title:  "failed to start process",
			Detail: detail,
		}
	}
	if err != nil {
		return engine.ProcessInstance{}, fmt.Errorf("failed to select process definition %s: %v", cmd.DefinitionKey, err)
	}

	g, err := e.graphs.Get(ctx, e.store, definition.Id)
	if err != nil {
		return engine.ProcessInstance{}, err
	}

	variables, err := normalizeVariables(cmd.Variables)
	if err != nil {
		return engine.ProcessInstance{}, engine.Error{
			Type:   engine.ErrorValidation,
			Title:  "failed to start process",
			Detail: fmt.Sprintf("variables are invalid: %v", err),
		}
	}

	processInstance := ProcessInstanceEntity{
		Id: e.nextId(),

		ProcessDefinitionId: definition.Id,

		BusinessKey:       text(cmd.BusinessKey),
		CreatedBy:         cmd.CreatedBy,
		DefinitionKey:     definition.Key,
		DefinitionVersion: definition.Version,
		StartedAt:         e.now(),
		State:             engine.InstanceActive,
		TenantId:          definition.TenantId,
		Variables:         variables,
	}

	var result engine.ProcessInstance
	err = e.instances.Create(ctx, &instanceState{instance: &processInstance}, func(state *instanceState, batch *Batch) error {
		batch.PutProcessInstance(state.instance)

		ec := e.newExecution(ctx, g, state, batch, cmd.CreatedBy)
		if err := ec.executeActivity(g.start, ""); err != nil {
			return err
		}

		result = state.instance.ProcessInstance()
		return nil
	})
	if err != nil {
		return engine.ProcessInstance{}, err
	}

	e.logger.Debug("process instance started", "key", definition.Key, "version", definition.Version, "id", processInstance.Id)

	return result, nil
}
