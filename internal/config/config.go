// SPDX-License-Identifier: MIT

// Package config loads the daemon configuration from the environment.
// The core boundary is env-only: storage root, database path, retention TTLs,
// loop intervals and default quotas.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/ManuGH/mediaflow/internal/model"
)

// Config is the fully resolved daemon configuration.
type Config struct {
	StorageRoot string
	DBPath      string
	ListenAddr  string
	LogLevel    string

	SoftDeleteTTL   time.Duration // soft delete -> hard delete grace
	InitializedTTL  time.Duration // INITIALIZED -> EXPIRED idle window
	JanitorInterval time.Duration
	SchedulerTick   time.Duration
	WorkerCount     int

	DefaultQuotas model.QuotaSet
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	recordings := 50
	storage := 20
	concurrent := 2
	jobs := 3
	interval := 6
	return Config{
		StorageRoot:     "/var/lib/mediaflow/storage",
		DBPath:          "/var/lib/mediaflow/mediaflow.db",
		ListenAddr:      ":8088",
		LogLevel:        "info",
		SoftDeleteTTL:   7 * 24 * time.Hour,
		InitializedTTL:  30 * 24 * time.Hour,
		JanitorInterval: 15 * time.Minute,
		SchedulerTick:   30 * time.Second,
		WorkerCount:     4,
		DefaultQuotas: model.QuotaSet{
			MaxRecordingsPerMonth:      &recordings,
			MaxStorageGB:               &storage,
			MaxConcurrentTasks:         &concurrent,
			MaxAutomationJobs:          &jobs,
			MinAutomationIntervalHours: &interval,
		},
	}
}

// Validate checks cross-field invariants before the daemon starts.
func (c Config) Validate() error {
	if c.StorageRoot == "" || !filepath.IsAbs(c.StorageRoot) {
		return fmt.Errorf("storage root must be an absolute path, got %q", c.StorageRoot)
	}
	if c.DBPath == "" {
		return fmt.Errorf("database path is required")
	}
	if c.SoftDeleteTTL <= 0 {
		return fmt.Errorf("soft delete TTL must be positive")
	}
	if c.InitializedTTL <= 0 {
		return fmt.Errorf("initialized TTL must be positive")
	}
	if c.JanitorInterval < time.Minute {
		return fmt.Errorf("janitor interval must be at least 1m")
	}
	if c.SchedulerTick < time.Second {
		return fmt.Errorf("scheduler tick must be at least 1s")
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}
	return nil
}
