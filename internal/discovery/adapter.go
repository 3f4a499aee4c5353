// SPDX-License-Identifier: MIT

// Package discovery lists candidate recordings from external sources and
// turns new ones into recording rows.
package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/mediaflow/internal/model"
)

// SourceAdapter lists candidates from one external source kind. Adapters are
// read-only: they never create recordings themselves.
type SourceAdapter interface {
	// Type names the source kind this adapter serves.
	Type() model.SourceType

	// List returns candidates whose start time falls in [since, until).
	// filters is the job's opaque filter config; adapters ignore keys they
	// do not understand.
	List(ctx context.Context, src *model.InputSource, since, until time.Time, filters model.JSON) ([]model.CandidateRecording, error)
}

// Registry maps source types to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[model.SourceType]SourceAdapter
}

// NewRegistry returns an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[model.SourceType]SourceAdapter)}
}

// Register binds an adapter to its source type, replacing any previous one.
func (r *Registry) Register(a SourceAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Type()] = a
}

// Lookup resolves the adapter for a source type.
func (r *Registry) Lookup(t model.SourceType) (SourceAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[t]
	if !ok {
		return nil, model.Validation(fmt.Sprintf("no adapter registered for source type %s", t))
	}
	return a, nil
}
