package daemon

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/http/client"
	"github.com/zensgit/metasheet2-sub006/http/common"
)

func mustCreateConfig(t *testing.T) Config {
	config, err := ReadConfig("")
	require.NoError(t, err)

	config.Server.Address = "127.0.0.1:0"
	config.Server.ShutdownDelay = 0
	return config
}

func TestDaemon(t *testing.T) {
	assert := assert.New(t)

	// given
	d, err := New(mustCreateConfig(t), hclog.NewNullLogger())
	require.NoError(t, err)

	addr, err := d.Start()
	require.NoError(t, err)

	baseUrl := "http://" + addr.String()

	// when
	res, err := http.Get(baseUrl + common.PathReadiness)
	require.NoError(t, err)
	res.Body.Close()

	// then
	assert.Equal(http.StatusNoContent, res.StatusCode)

	t.Run("engine is accessible via HTTP", func(t *testing.T) {
		c, err := client.New(baseUrl)
		require.NoError(t, err)
		defer c.Shutdown()

		ctx := context.Background()

		_, err = c.DeployProcess(ctx, engine.DeployProcessCmd{
			Source:    "id: ping\nnodes:\n  - id: start\n    type: startEvent\n  - id: end\n    type: endEvent\nflows:\n  - source: start\n    target: end\n",
			CreatedBy: "test",
		})
		require.NoError(t, err)

		processInstance, err := c.StartProcess(ctx, engine.StartProcessCmd{DefinitionKey: "ping", CreatedBy: "test"})
		require.NoError(t, err)
		assert.Equal(engine.InstanceCompleted, processInstance.State)

		results, err := d.Engine().CreateQuery().QueryProcessInstances(ctx, engine.ProcessInstanceCriteria{DefinitionKey: "ping"})
		require.NoError(t, err)
		assert.Len(results, 1)
	})

	d.Stop()

	_, err = http.Get(baseUrl + common.PathReadiness)
	assert.Error(err)
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	t.Run("returns error when config is invalid", func(t *testing.T) {
		config := mustCreateConfig(t)
		config.Store.Type = "unknown"

		_, err := New(config, hclog.NewNullLogger())
		assert.Error(err)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := New(mustCreateConfig(t), nil)
		assert.Error(err)
	})

	t.Run("returns error when engine options are invalid", func(t *testing.T) {
		config := mustCreateConfig(t)
		config.Engine.GraphCacheSize = 0

		_, err := New(config, hclog.NewNullLogger())
		assert.Error(err)
	})
}

func TestRun(t *testing.T) {
	assert := assert.New(t)

	ctx, cancel := context.WithCancel(context.Background())

	errC := make(chan error, 1)
	go func() {
		errC <- Run(ctx, mustCreateConfig(t), hclog.NewNullLogger())
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errC:
		assert.NoError(err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}

	t.Run("returns error when address is in use", func(t *testing.T) {
		d, err := New(mustCreateConfig(t), hclog.NewNullLogger())
		require.NoError(t, err)

		addr, err := d.Start()
		require.NoError(t, err)
		defer d.Stop()

		config := mustCreateConfig(t)
		config.Server.Address = addr.String()

		err = Run(context.Background(), config, hclog.NewNullLogger())
		assert.Error(err)
	})
}

func TestMigrate(t *testing.T) {
	assert := assert.New(t)

	t.Run("returns error when store is mem", func(t *testing.T) {
		err := Migrate(mustCreateConfig(t), hclog.NewNullLogger())
		assert.ErrorContains(err, "migration requires store type pg")
	})

	t.Run("pg", func(t *testing.T) {
		databaseUrl := os.Getenv("PG_DATABASE_URL")
		if databaseUrl == "" {
			t.Skip("PG_DATABASE_URL not set")
		}

		config := mustCreateConfig(t)
		config.Store.Type = StorePg
		config.Store.DatabaseUrl = databaseUrl

		assert.NoError(Migrate(config, hclog.NewNullLogger()))
		assert.NoError(Migrate(config, hclog.NewNullLogger()))
	})
}
