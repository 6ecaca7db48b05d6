package trace

import (
	"context"
	"fmt"

	"github.com/misteriosai/agent-memory/internal/model"
)

// DefaultListLimit caps ListByTask when the caller does not.
const DefaultListLimit = 50

// TraceStore appends procedural traces and lists them per task.
type TraceStore interface {
	// Insert persists one trace. The caller assigns ID and CreatedAt.
	Insert(ctx context.Context, t model.ProceduralTrace) error
	// ListByTask returns the task's traces, newest first, capped at limit.
	// A non-empty userID further restricts the result to that user.
	ListByTask(ctx context.Context, taskID, userID string, limit int) ([]model.ProceduralTrace, error)
	Name() string
	Close() error
}

// Loader creates a TraceStore from config.
type Loader func(ctx context.Context) (TraceStore, error)

// Plugin represents a trace store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a trace store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered trace store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named trace store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown trace store %q; valid: %v", name, Names())
}

// EffectiveLimit applies DefaultListLimit to non-positive limits.
func EffectiveLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
