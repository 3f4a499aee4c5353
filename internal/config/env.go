// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Env variable names. MEDIAFLOW_ prefix throughout.
const (
	EnvStorageRoot     = "MEDIAFLOW_STORAGE_ROOT"
	EnvDBPath          = "MEDIAFLOW_DB_PATH"
	EnvListenAddr      = "MEDIAFLOW_LISTEN_ADDR"
	EnvLogLevel        = "MEDIAFLOW_LOG_LEVEL"
	EnvSoftDeleteTTL   = "MEDIAFLOW_SOFT_DELETE_TTL"
	EnvInitializedTTL  = "MEDIAFLOW_INITIALIZED_TTL"
	EnvJanitorInterval = "MEDIAFLOW_JANITOR_INTERVAL"
	EnvSchedulerTick   = "MEDIAFLOW_SCHEDULER_TICK"
	EnvWorkerCount     = "MEDIAFLOW_WORKER_COUNT"
)

// FromEnv layers environment overrides over Defaults and validates the result.
func FromEnv() (Config, error) {
	cfg := Defaults()

	if v := os.Getenv(EnvStorageRoot); v != "" {
		cfg.StorageRoot = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}

	var err error
	if cfg.SoftDeleteTTL, err = envDuration(EnvSoftDeleteTTL, cfg.SoftDeleteTTL); err != nil {
		return cfg, err
	}
	if cfg.InitializedTTL, err = envDuration(EnvInitializedTTL, cfg.InitializedTTL); err != nil {
		return cfg, err
	}
	if cfg.JanitorInterval, err = envDuration(EnvJanitorInterval, cfg.JanitorInterval); err != nil {
		return cfg, err
	}
	if cfg.SchedulerTick, err = envDuration(EnvSchedulerTick, cfg.SchedulerTick); err != nil {
		return cfg, err
	}
	if cfg.WorkerCount, err = envInt(EnvWorkerCount, cfg.WorkerCount); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, v, err)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, v, err)
	}
	return n, nil
}
