package memory

import (
	"context"
	"errors"
	"maps"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/misteriosai/agent-memory/internal/model"
	registrytrace "github.com/misteriosai/agent-memory/internal/registry/trace"
	"github.com/misteriosai/agent-memory/internal/telemetry"
)

// Step describes one executed step of an agent task.
type Step struct {
	UserID     string         `json:"user_id,omitempty"`
	AgentID    string         `json:"agent_id,omitempty"`
	TaskID     string         `json:"task_id,omitempty"`
	Step       int            `json:"step"`
	Input      string         `json:"input"`
	Output     string         `json:"output"`
	ToolsUsed  map[string]any `json:"tools_used,omitempty"`
	DurationMS int64          `json:"duration_ms"`
}

// ProceduralMemory appends step traces and lists them per task.
type ProceduralMemory struct {
	store  registrytrace.TraceStore
	now    func() time.Time
	closed atomic.Bool
}

// NewProceduralMemory wires a logger. A nil store disables logging.
func NewProceduralMemory(store registrytrace.TraceStore) *ProceduralMemory {
	return &ProceduralMemory{store: store, now: time.Now}
}

// Close disables the logger: later LogStep calls are skipped and listings are
// empty. The store is not closed.
func (p *ProceduralMemory) Close() {
	if p != nil {
		p.closed.Store(true)
	}
}

func (p *ProceduralMemory) enabled() bool {
	return p != nil && p.store != nil && !p.closed.Load()
}

// LogStep records one step. It never fails the caller: problems are logged at
// warn level and returned in the Outcome. The Outcome value is the trace id.
func (p *ProceduralMemory) LogStep(ctx context.Context, s Step) (out Outcome[uuid.UUID]) {
	if !p.enabled() {
		telemetry.CountMemoryOperation("log_step", telemetry.ResultSkipped)
		return Outcome[uuid.UUID]{Skipped: true}
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn("Failed to log procedural step", "task_id", s.TaskID, "panic", r)
			telemetry.CountMemoryOperation("log_step", telemetry.ResultError)
			out = Outcome[uuid.UUID]{Err: errors.New("procedural memory: store panicked")}
		}
	}()

	tools := s.ToolsUsed
	if tools == nil {
		tools = map[string]any{}
	}
	trace := model.ProceduralTrace{
		ID:         uuid.New(),
		UserID:     s.UserID,
		AgentID:    s.AgentID,
		TaskID:     s.TaskID,
		Step:       s.Step,
		InputText:  s.Input,
		OutputText: s.Output,
		ToolsUsed:  tools,
		DurationMS: s.DurationMS,
		CreatedAt:  p.now().UTC(),
	}
	if err := p.store.Insert(ctx, trace); err != nil {
		log.Warn("Failed to log procedural step", "task_id", s.TaskID, "step", s.Step, "err", err)
		telemetry.CountMemoryOperation("log_step", telemetry.ResultError)
		return Outcome[uuid.UUID]{Err: err}
	}
	telemetry.CountMemoryOperation("log_step", telemetry.ResultOK)
	return Outcome[uuid.UUID]{Value: trace.ID}
}

// ListByTask returns a task's traces newest first, optionally restricted to a
// user. A non-positive limit means registrytrace.DefaultListLimit.
func (p *ProceduralMemory) ListByTask(ctx context.Context, taskID, userID string, limit int) ([]model.ProceduralTrace, error) {
	if !p.enabled() {
		return []model.ProceduralTrace{}, nil
	}
	traces, err := p.store.ListByTask(ctx, taskID, userID, registrytrace.EffectiveLimit(limit))
	if err != nil {
		return nil, err
	}
	if traces == nil {
		traces = []model.ProceduralTrace{}
	}
	return traces, nil
}

// Track runs fn, then logs s with fn's output (or error text) and the measured
// duration. fn's result is returned unchanged; logging never alters it.
func (p *ProceduralMemory) Track(ctx context.Context, s Step, fn func(context.Context) (string, error)) (string, error) {
	start := p.clock()()
	result, err := fn(ctx)
	s.DurationMS = p.clock()().Sub(start).Milliseconds()
	if err != nil {
		s.Output = err.Error()
		tools := maps.Clone(s.ToolsUsed)
		if tools == nil {
			tools = map[string]any{}
		}
		tools["error"] = true
		s.ToolsUsed = tools
	} else {
		s.Output = result
	}
	p.LogStep(ctx, s)
	return result, err
}

func (p *ProceduralMemory) clock() func() time.Time {
	if p == nil || p.now == nil {
		return time.Now
	}
	return p.now
}
