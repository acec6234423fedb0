package daemon

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/zensgit/metasheet2-sub006/engine"
	"github.com/zensgit/metasheet2-sub006/engine/pg"
	"github.com/zensgit/metasheet2-sub006/http/server"
)

const (
	StoreMem = "mem"
	StorePg  = "pg"
)

// Config is read from an optional YAML or JSON file. Environment variables take precedence.
type Config struct {
	Engine EngineConfig `yaml:"engine" json:"engine"`
	Log    LogConfig    `yaml:"log" json:"log"`
	Server ServerConfig `yaml:"server" json:"server"`
	Store  StoreConfig  `yaml:"store" json:"store"`
}

type EngineConfig struct {
	// ID of the engine. If empty, the store specific default is used.
	Id                string               `yaml:"id" json:"id" env:"WORKFLOW_ENGINE_ID"`
	GraphCacheSize    int                  `yaml:"graphCacheSize" json:"graphCacheSize" env:"WORKFLOW_GRAPH_CACHE_SIZE" env-default:"256"`
	HttpTimeout       time.Duration        `yaml:"httpTimeout" json:"httpTimeout" env:"WORKFLOW_HTTP_TASK_TIMEOUT" env-default:"30s"`
	MaxSteps          int                  `yaml:"maxSteps" json:"maxSteps" env:"WORKFLOW_MAX_STEPS" env-default:"1000"`
	StoreRetryLimit   int                  `yaml:"storeRetryLimit" json:"storeRetryLimit" env:"WORKFLOW_STORE_RETRY_LIMIT" env-default:"3"`
	TimerRetryDelay   string               `yaml:"timerRetryDelay" json:"timerRetryDelay" env:"WORKFLOW_TIMER_RETRY_DELAY" env-default:"PT1M"`
	TimerRetryLimit   int                  `yaml:"timerRetryLimit" json:"timerRetryLimit" env:"WORKFLOW_TIMER_RETRY_LIMIT" env-default:"3"`
	TimerScheduler    TimerSchedulerConfig `yaml:"timerScheduler" json:"timerScheduler"`
	DefaultQueryLimit int                  `yaml:"defaultQueryLimit" json:"defaultQueryLimit" env:"WORKFLOW_DEFAULT_QUERY_LIMIT" env-default:"1000"`
}

// TimerSchedulerConfig configures the polling of due timer jobs. The scheduler runs, unless it is disabled.
type TimerSchedulerConfig struct {
	Disabled bool          `yaml:"disabled" json:"disabled" env:"WORKFLOW_TIMER_SCHEDULER_DISABLED"`
	Interval time.Duration `yaml:"interval" json:"interval" env:"WORKFLOW_TIMER_SCHEDULER_INTERVAL" env-default:"1s"`
	Limit    int           `yaml:"limit" json:"limit" env:"WORKFLOW_TIMER_SCHEDULER_LIMIT" env-default:"100"`
}

type LogConfig struct {
	Level string `yaml:"level" json:"level" env:"WORKFLOW_LOG_LEVEL" env-default:"info"`
	Json  bool   `yaml:"json" json:"json" env:"WORKFLOW_LOG_JSON"`
}

type ServerConfig struct {
	Address        string        `yaml:"address" json:"address" env:"WORKFLOW_HTTP_ADDRESS" env-default:"127.0.0.1:8080"`
	ReadTimeout    time.Duration `yaml:"readTimeout" json:"readTimeout" env:"WORKFLOW_HTTP_READ_TIMEOUT" env-default:"5s"`
	WriteTimeout   time.Duration `yaml:"writeTimeout" json:"writeTimeout" env:"WORKFLOW_HTTP_WRITE_TIMEOUT" env-default:"35s"`
	SetTimeEnabled bool          `yaml:"setTimeEnabled" json:"setTimeEnabled" env:"WORKFLOW_SET_TIME_ENABLED"`
	ShutdownDelay  time.Duration `yaml:"shutdownDelay" json:"shutdownDelay" env:"WORKFLOW_HTTP_SHUTDOWN_DELAY" env-default:"5s"`
}

type StoreConfig struct {
	Type        string        `yaml:"type" json:"type" env:"WORKFLOW_STORE" env-default:"mem"`
	DatabaseUrl string        `yaml:"databaseUrl" json:"databaseUrl" env:"WORKFLOW_DATABASE_URL"`
	MaxConns    int32         `yaml:"maxConns" json:"maxConns" env:"WORKFLOW_DATABASE_MAX_CONNS"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout" env:"WORKFLOW_DATABASE_TIMEOUT" env-default:"30s"`
}

// ReadConfig reads the configuration from a file and the environment.
// If the file name is empty, only the environment is read.
func ReadConfig(fileName string) (Config, error) {
	var config Config

	if fileName == "" {
		if err := cleanenv.ReadEnv(&config); err != nil {
			return Config{}, fmt.Errorf("failed to read configuration from environment: %v", err)
		}
	} else {
		if _, err := os.Stat(fileName); err != nil {
			return Config{}, fmt.Errorf("failed to read configuration file: %v", err)
		}
		if err := cleanenv.ReadConfig(fileName, &config); err != nil {
			return Config{}, fmt.Errorf("failed to read configuration file %s: %v", fileName, err)
		}
	}

	return config, config.Validate()
}

// Usage returns a description of all environment variables.
func Usage() string {
	var config Config

	var sb strings.Builder
	usage := cleanenv.FUsage(&sb, &config, nil)
	usage()

	return sb.String()
}

func (c Config) Validate() error {
	switch c.Store.Type {
	case StoreMem:
	case StorePg:
		if c.Store.DatabaseUrl == "" {
			return errors.New("store: database URL is required, when type is pg")
		}
	default:
		return fmt.Errorf("store: type must be %s or %s, but is %q", StoreMem, StorePg, c.Store.Type)
	}

	if hclog.LevelFromString(c.Log.Level) == hclog.NoLevel {
		return fmt.Errorf("log: invalid level %q", c.Log.Level)
	}

	if _, err := engine.NewISO8601Duration(c.Engine.TimerRetryDelay); err != nil {
		return fmt.Errorf("engine: timer retry delay is invalid: %v", err)
	}

	return nil
}

// NewLogger creates the root logger.
func (c Config) NewLogger() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       "workflowd",
		Level:      hclog.LevelFromString(c.Log.Level),
		JSONFormat: c.Log.Json,
		Output:     os.Stderr,
	})
}

func (c Config) applyEngineOptions(o *engine.Options, logger hclog.Logger) {
	if c.Engine.Id != "" {
		o.EngineId = c.Engine.Id
	}

	o.DefaultQueryLimit = c.Engine.DefaultQueryLimit
	o.GraphCacheSize = c.Engine.GraphCacheSize
	o.HttpClient = &http.Client{Timeout: c.Engine.HttpTimeout}
	o.Logger = logger.Named("process-engine")
	o.MaxStepsPerTrigger = c.Engine.MaxSteps
	o.StoreRetryLimit = c.Engine.StoreRetryLimit
	o.TimerRetryDelay = engine.ISO8601Duration(c.Engine.TimerRetryDelay)
	o.TimerRetryLimit = c.Engine.TimerRetryLimit
	o.TimerSchedulerEnabled = !c.Engine.TimerScheduler.Disabled
	o.TimerSchedulerInterval = c.Engine.TimerScheduler.Interval
	o.TimerSchedulerLimit = c.Engine.TimerScheduler.Limit
}

func (c Config) applyPgOptions(o *pg.Options, logger hclog.Logger) {
	c.applyEngineOptions(&o.Common, logger)

	o.MaxConns = c.Store.MaxConns
	o.Timeout = c.Store.Timeout
}

func (c Config) applyServerOptions(o *server.Options, logger hclog.Logger) {
	o.BindAddress = c.Server.Address
	o.Logger = logger.Named("http-server")
	o.ReadTimeout = c.Server.ReadTimeout
	o.SetTimeEnabled = c.Server.SetTimeEnabled
	o.ShutdownDelay = c.Server.ShutdownDelay
	o.WriteTimeout = c.Server.WriteTimeout
}
