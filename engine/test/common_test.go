package test

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/jackc/pgx/v5"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/engine/mem"
	"github.com/zensgit/metasheet2-sub006/engine/pg"
)

const (
	testUserId   = "test-user"
	testWorkerId = "test-worker"
)

var databaseSchema string

// mustCreateEngines creates a mem engine and, if PG_DATABASE_URL is set, a pg engine.
func mustCreateEngines(t *testing.T, customizers ...func(*engine.Options)) ([]engine.Engine, []string) {
	var engines []engine.Engine
	var engineTypes []string

	memEngine, err := mem.New(func(o *mem.Options) {
		o.Common.Logger = hclog.NewNullLogger()
		for _, customizer := range customizers {
			customizer(&o.Common)
		}
	})
	if err != nil {
		t.Fatalf("failed to create mem engine: %v", err)
	}

	engines = append(engines, memEngine)
	engineTypes = append(engineTypes, "mem")

	databaseUrl := os.Getenv("PG_DATABASE_URL")
	if testing.Short() || databaseUrl == "" {
		return engines, engineTypes
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, databaseUrl)
	if err != nil {
		t.Fatalf("failed to establish database connection: %v", err)
	}

	defer conn.Close(ctx)

	if databaseSchema == "" {
		databaseSchema = fmt.Sprintf("test_%s", strings.Replace(time.Now().Format("20060102150405.000"), ".", "", 1))
		if _, err := conn.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", databaseSchema)); err != nil {
			t.Fatalf("failed to create database schema: %v", err)
		}
	} else {
		for _, table := range pg.Tables {
			if _, err := conn.Exec(ctx, fmt.Sprintf("TRUNCATE %s.%s", databaseSchema, table)); err != nil {
				t.Fatalf("failed to truncate table %s: %v", table, err)
			}
		}
	}

	pgEngine, err := pg.New(fmt.Sprintf("%s?search_path=%s", databaseUrl, databaseSchema), func(o *pg.Options) {
		o.Common.Logger = hclog.NewNullLogger()
		o.Common.TimerSchedulerEnabled = false
		for _, customizer := range customizers {
			customizer(&o.Common)
		}
	})
	if err != nil {
		t.Fatalf("failed to create pg engine: %v", err)
	}

	engines = append(engines, pgEngine)
	engineTypes = append(engineTypes, "pg")

	return engines, engineTypes
}

func mustDeploy(t *testing.T, e engine.Engine, source string) engine.ProcessDefinition {
	processDefinition, err := e.DeployProcess(context.Background(), engine.DeployProcessCmd{
		Source:    source,
		CreatedBy: testUserId,
	})
	if err != nil {
		t.Fatalf("failed to deploy process: %v", err)
	}
	return processDefinition
}

func mustDeployFile(t *testing.T, e engine.Engine, fileName string) engine.ProcessDefinition {
	return mustDeploy(t, e, mustReadFile(t, fileName))
}

func mustStart(t *testing.T, e engine.Engine, processDefinition engine.ProcessDefinition, variables map[string]any) *engine.ProcessInstanceAssert {
	processInstance, err := e.StartProcess(context.Background(), engine.StartProcessCmd{
		DefinitionKey: processDefinition.Key,
		Version:       processDefinition.Version,
		TenantId:      processDefinition.TenantId,
		Variables:     variables,
		CreatedBy:     testUserId,
	})
	if err != nil {
		t.Fatalf("failed to start process: %v", err)
	}
	return engine.Assert(t, e, processInstance)
}

func mustReadFile(t *testing.T, fileName string) string {
	b, err := os.ReadFile("../../test/bpmn/" + fileName)
	if err != nil {
		t.Fatalf("failed to read file %s: %v", fileName, err)
	}
	return string(b)
}

func mustQueryOne[T any](t *testing.T, results []T) T {
	if len(results) != 1 {
		t.Fatalf("expected one result, but got %d", len(results))
	}
	return results[0]
}
