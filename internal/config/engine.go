package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EngineConfig tunes the reconciliation pipeline. It lives in engine.yml so
// operators can adjust parallelism without restarting a worker.
type EngineConfig struct {
	// Workers caps the number of concurrent order partitions. Zero or
	// negative means one worker per available CPU.
	Workers int `mapstructure:"workers"`
	// PartitionSize is the number of orders handed to one worker pass.
	PartitionSize int `mapstructure:"partitionSize"`
	// RunClaimLimit bounds how many pending runs one scheduler tick claims.
	RunClaimLimit int `mapstructure:"runClaimLimit"`
	// ScheduleInterval enqueues a reconciliation run periodically when > 0.
	ScheduleInterval time.Duration `mapstructure:"scheduleInterval"`
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Workers:          0,
		PartitionSize:    256,
		RunClaimLimit:    5,
		ScheduleInterval: 0,
	}
}

type EngineConfigHolder struct {
	current atomic.Value // holds EngineConfig
}

func NewEngineConfigHolder() (*EngineConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("engine")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/tally/config") // Volume-mounted config
	v.AddConfigPath("/etc/tally")            // System config
	v.AddConfigPath(".")                     // Current directory (dev mode)

	v.SetEnvPrefix("TALLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults first so a partial engine.yml merges instead of zeroing the
	// keys it leaves out.
	defaults := DefaultEngineConfig()
	v.SetDefault("engine.workers", defaults.Workers)
	v.SetDefault("engine.partitionSize", defaults.PartitionSize)
	v.SetDefault("engine.runClaimLimit", defaults.RunClaimLimit)
	v.SetDefault("engine.scheduleInterval", defaults.ScheduleInterval)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg EngineConfig
	if err := v.UnmarshalKey("engine", &cfg); err != nil {
		return nil, err
	}
	if err := validateEngineConfig(cfg); err != nil {
		return nil, err
	}

	holder := &EngineConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated EngineConfig
		if err := v.UnmarshalKey("engine", &updated); err != nil {
			log.Printf("[engine-config] reload failed: %v", err)
			return
		}
		if err := validateEngineConfig(updated); err != nil {
			log.Printf("[engine-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[engine-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *EngineConfigHolder) Get() EngineConfig {
	return h.current.Load().(EngineConfig)
}

// StaticEngineConfigHolder wraps a fixed config with no file watching, for
// tests and one-shot commands.
func StaticEngineConfigHolder(cfg EngineConfig) *EngineConfigHolder {
	holder := &EngineConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func validateEngineConfig(cfg EngineConfig) error {
	if cfg.PartitionSize <= 0 {
		return errors.New("engine.partitionSize must be positive")
	}
	if cfg.RunClaimLimit <= 0 {
		return errors.New("engine.runClaimLimit must be positive")
	}
	if cfg.ScheduleInterval < 0 {
		return errors.New("engine.scheduleInterval cannot be negative")
	}
	return nil
}
