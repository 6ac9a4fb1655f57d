// Package sensor turns a flat Asana task list into the counters and lists of
// one monitored entity.
package sensor

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dotcommander/asanasense/internal/asana"
	"github.com/dotcommander/asanasense/internal/bucket"
	"github.com/dotcommander/asanasense/internal/rules"
)

// DefaultName is the entity name used when none is configured.
const DefaultName = "asana"

// TaskSource fetches every task assigned to the caller in a workspace.
type TaskSource interface {
	FetchTasks(ctx context.Context, workspace string, since time.Time) ([]asana.Task, error)
}

// Recorder receives every finished cycle. Errors are logged, never returned.
type Recorder interface {
	Record(ctx context.Context, o Outcome, snap Snapshot) error
}

// Config is supplied once by the host.
type Config struct {
	Name      string
	Workspace string
	Variables []string
}

// Sensor owns the parsed rules and the last good snapshot.
type Sensor struct {
	name      string
	workspace string
	rules     *rules.Set
	source    TaskSource

	now      func() time.Time
	logger   *slog.Logger
	recorder Recorder

	mu         sync.RWMutex
	state      any
	attributes map[string]Value
	updated    bool
}

// Option configures a Sensor.
type Option func(*Sensor)

// WithClock pins "today" for boundary and fetch-horizon math.
func WithClock(now func() time.Time) Option {
	return func(s *Sensor) { s.now = now }
}

// WithLogger sets the logger for rule drops and cycle results.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sensor) { s.logger = l }
}

// WithRecorder journals every cycle outcome.
func WithRecorder(r Recorder) Option {
	return func(s *Sensor) { s.recorder = r }
}

// New parses cfg.Variables once. Dropped variables are logged and returned so
// the host can surface them; they never prevent construction.
func New(cfg Config, source TaskSource, opts ...Option) (*Sensor, []*rules.DroppedRule) {
	s := &Sensor{
		name:      cfg.Name,
		workspace: cfg.Workspace,
		source:    source,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.name == "" {
		s.name = DefaultName
	}

	var dropped []*rules.DroppedRule
	s.rules, dropped = rules.Parse(cfg.Variables, s.logger)
	if s.rules.StateRule() == "" {
		s.state = PlaceholderState
	}
	return s, dropped
}

// Name is the entity name, DefaultName when none was configured.
func (s *Sensor) Name() string { return s.name }

// Rules exposes the accepted rule set.
func (s *Sensor) Rules() *rules.Set { return s.rules }

// FetchSince is the completed_since date used by the next fetch.
func (s *Sensor) FetchSince() time.Time {
	return s.now().AddDate(0, 0, -s.rules.FetchHorizon())
}

// State is the state rule's value (int or []string), PlaceholderState when no
// rule parsed, or nil before the first successful update.
func (s *Sensor) State() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

// Attributes returns a copy of every rule's current value keyed by rule name.
// Values are nil until the first successful update.
func (s *Sensor) Attributes() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attributesLocked()
}

// Snapshot reads name, state and attributes under one lock, so both come from
// the same cycle.
func (s *Sensor) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Name: s.name, State: s.stateLocked(), Attributes: s.attributesLocked()}
}

func (s *Sensor) stateLocked() any {
	if items, ok := s.state.([]string); ok {
		return slices.Clone(items)
	}
	return s.state
}

func (s *Sensor) attributesLocked() map[string]any {
	out := make(map[string]any, s.rules.Len())
	for _, r := range s.rules.Rules() {
		if v, ok := s.attributes[r.Name]; ok {
			out[r.Name] = v.Any()
		} else {
			out[r.Name] = nil
		}
	}
	return out
}

// Update runs one full cycle: fetch every page, bucket, evaluate every rule
// and swap in the new snapshot. On fetch failure the previous snapshot is kept.
func (s *Sensor) Update(ctx context.Context) Outcome {
	o := Outcome{RunID: uuid.NewString(), StartedAt: s.now()}
	today := o.StartedAt
	since := today.AddDate(0, 0, -s.rules.FetchHorizon())

	tasks, err := s.source.FetchTasks(ctx, s.workspace, since)
	if err != nil {
		o.Status = StatusFetchFailed
		o.Err = &FetchError{Workspace: s.workspace, Err: err}
		o.FinishedAt = s.now()
		s.logger.Error("error fetching asana api data", "run_id", o.RunID, "error", err.Error())
		s.record(ctx, o)
		return o
	}

	attrs := evaluate(s.rules, bucket.Build(tasks), today)

	s.mu.Lock()
	s.attributes = attrs
	if name := s.rules.StateRule(); name != "" {
		s.state = attrs[name].Any()
	} else {
		s.state = PlaceholderState
	}
	s.updated = true
	s.mu.Unlock()

	o.Status = StatusUpdated
	o.TaskCount = len(tasks)
	o.FinishedAt = s.now()
	s.logger.Info("sensor updated", "run_id", o.RunID, "sensor", s.name, "tasks", len(tasks))
	s.record(ctx, o)
	return o
}

// Updated reports whether any cycle has succeeded yet.
func (s *Sensor) Updated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updated
}

func (s *Sensor) record(ctx context.Context, o Outcome) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, o, s.Snapshot()); err != nil {
		s.logger.Warn("cycle not journaled", "run_id", o.RunID, "error", err.Error())
	}
}

// evaluate resolves each rule's boundary against today and projects the
// matching bucket entries.
func evaluate(set *rules.Set, b bucket.Buckets, today time.Time) map[string]Value {
	out := make(map[string]Value, set.Len())
	for _, r := range set.Rules() {
		items := b.Select(r.Timeframe, rules.Boundary(r, today))
		out[r.Name] = project(r.Kind, items)
	}
	return out
}
