// Package daemon runs a process engine, which is accessible via HTTP.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/engine/mem"
	"github.com/zensgit/metasheet2-sub006/engine/pg"
	"github.com/zensgit/metasheet2-sub006/http/server"
)

// New creates the engine, selected by the store type, and a HTTP server for it.
func New(config Config, logger hclog.Logger) (*Daemon, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		return nil, errors.New("logger is nil")
	}

	engineStartTime := time.Now()

	e, err := newEngine(config, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("engine started", "store", config.Store.Type, "durationMs", time.Since(engineStartTime).Milliseconds())

	s, err := server.New(e, func(o *server.Options) {
		config.applyServerOptions(o, logger)
	})
	if err != nil {
		e.Shutdown()
		return nil, fmt.Errorf("failed to create HTTP server: %v", err)
	}

	daemon := Daemon{
		e:      e,
		logger: logger,
		server: s,
	}

	return &daemon, nil
}

// Migrate creates or updates the database schema of a pg store, without starting the timer scheduler.
func Migrate(config Config, logger hclog.Logger) error {
	if config.Store.Type != StorePg {
		return fmt.Errorf("migration requires store type %s, but is %s", StorePg, config.Store.Type)
	}

	config.Engine.TimerScheduler.Disabled = true

	e, err := newEngine(config, logger)
	if err != nil {
		return err
	}

	e.Shutdown()

	logger.Info("database migrated")
	return nil
}

// Run starts a daemon and blocks until the context is done.
func Run(ctx context.Context, config Config, logger hclog.Logger) error {
	d, err := New(config, logger)
	if err != nil {
		return err
	}

	if _, err := d.Start(); err != nil {
		d.engineShutdown()
		return err
	}

	<-ctx.Done()

	d.Stop()
	return nil
}

type Daemon struct {
	e      engine.Engine
	logger hclog.Logger
	server *server.Server
}

func (d *Daemon) Engine() engine.Engine {
	return d.e
}

// Start starts the HTTP server and returns the address it is listening on.
func (d *Daemon) Start() (net.Addr, error) {
	addr, err := d.server.ListenAndServe()
	if err != nil {
		return nil, fmt.Errorf("failed to start HTTP server: %v", err)
	}
	return addr, nil
}

// Stop shuts the HTTP server down gracefully, before the engine is shut down.
func (d *Daemon) Stop() {
	d.server.Shutdown()
	d.engineShutdown()
}

func (d *Daemon) engineShutdown() {
	d.e.Shutdown()
	d.logger.Info("engine shut down")
}

func newEngine(config Config, logger hclog.Logger) (engine.Engine, error) {
	switch config.Store.Type {
	case StorePg:
		e, err := pg.New(config.Store.DatabaseUrl, func(o *pg.Options) {
			config.applyPgOptions(o, logger)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create pg engine: %v", err)
		}
		return e, nil
	default:
		e, err := mem.New(func(o *mem.Options) {
			config.applyEngineOptions(&o.Common, logger)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create mem engine: %v", err)
		}
		return e, nil
	}
}
