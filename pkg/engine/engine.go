// Package engine dispatches keywords. It binds named parameters to
// descriptor positions, expands fallback groups, substitutes variables,
// resolves locators and invokes the bound capability, normalizing every
// outcome into a terminal Execution Record.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/devicelab-dev/keyflow/pkg/core"
	"github.com/devicelab-dev/keyflow/pkg/data"
	"github.com/devicelab-dev/keyflow/pkg/keyword"
	"github.com/devicelab-dev/keyflow/pkg/locator"
	"github.com/devicelab-dev/keyflow/pkg/suite"
	"github.com/devicelab-dev/keyflow/pkg/vars"
)

// ModuleSource exposes named modules to flow-control keywords.
type ModuleSource interface {
	Module(name string) *suite.Module
}

// Capability executes one concrete keyword invocation. On failure it may
// still return a partial result whose attachments are kept for debugging.
type Capability func(ctx context.Context, sc *Scope, inv *Invocation) (*core.Result, error)

// Scope bundles the per-session state a capability touches. Dispatch
// within one session is serialized, so Scope needs no locking of its own.
type Scope struct {
	SessionID string
	Driver    core.Driver
	Resolver  *locator.Resolver
	Vars      *vars.Store
	Modules   ModuleSource
	Data      *data.Loader
	Artifacts core.ArtifactConfig
	Logger    *zap.Logger

	// Emit observes every terminal Execution Record, including records
	// of nested module steps.
	Emit func(*core.ExecutionRecord)

	stack []string
}

func (sc *Scope) onStack(name string) bool {
	for _, entry := range sc.stack {
		if entry == name {
			return true
		}
	}
	return false
}

func (sc *Scope) push(name string) { sc.stack = append(sc.stack, name) }
func (sc *Scope) pop()             { sc.stack = sc.stack[:len(sc.stack)-1] }

// Stack returns a copy of the active module call stack.
func (sc *Scope) Stack() []string {
	out := make([]string, len(sc.stack))
	copy(out, sc.stack)
	return out
}

func (sc *Scope) log(fallback *zap.Logger) *zap.Logger {
	if sc.Logger != nil {
		return sc.Logger
	}
	return fallback
}

// Config carries engine-level resolution defaults.
type Config struct {
	DefaultTimeout time.Duration
	PollInterval   time.Duration
	StrategyOrder  []locator.Kind
}

func (c Config) withDefaults() Config {
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = locator.DefaultTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = locator.DefaultInterval
	}
	if len(c.StrategyOrder) == 0 {
		c.StrategyOrder = locator.DefaultOrder
	}
	return c
}

// Engine owns the keyword registry and the capability bindings behind it.
// The registry is built once here and never changes afterwards.
type Engine struct {
	registry *keyword.Registry
	impls    map[string]Capability
	cfg      Config
	logger   *zap.Logger
}

// New builds an engine with the full builtin keyword catalog registered.
func New(cfg Config, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		impls:  map[string]Capability{},
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
	registry, err := keyword.NewRegistry(e.builtins()...)
	if err != nil {
		return nil, err
	}
	e.registry = registry
	return e, nil
}

// Registry returns the immutable keyword registry.
func (e *Engine) Registry() *keyword.Registry {
	return e.registry
}

// Dispatch runs one keyword invocation against a session scope. The
// returned record is terminal and has been handed to sc.Emit.
func (e *Engine) Dispatch(ctx context.Context, sc *Scope, name string, params []interface{}, named map[string]interface{}) *core.ExecutionRecord {
	rec := e.dispatch(ctx, sc, name, params, named)
	if sc.Emit != nil {
		sc.Emit(rec)
	}
	return rec
}

func (e *Engine) dispatch(ctx context.Context, sc *Scope, name string, params []interface{}, named map[string]interface{}) *core.ExecutionRecord {
	rec := &core.ExecutionRecord{
		ID:        uuid.New().String(),
		SessionID: sc.SessionID,
		Keyword:   name,
		Params:    recordParams(params, named),
		Status:    core.StatusRunning,
		StartTime: time.Now(),
	}
	log := sc.log(e.logger).With(
		zap.String("keyword", name),
		zap.String("execution_id", rec.ID),
	)

	desc, ok := e.registry.Lookup(name)
	if !ok {
		e.fail(sc, rec, log, core.ErrKeywordNotFound.WithMessagef("keyword %q is not registered", name))
		return rec
	}
	rec.Keyword = desc.Name

	impl := e.impls[desc.Slug]
	if impl == nil {
		e.fail(sc, rec, log, core.ErrUnimplemented.WithMessagef("keyword %q has no capability bound", desc.Name))
		return rec
	}

	bound, err := bind(desc, params, named)
	if err != nil {
		e.fail(sc, rec, log, err)
		return rec
	}

	combos := expand(desc, bound)
	failures := make([]comboFailure, 0, 1)
	for i, combo := range combos {
		if err := ctx.Err(); err != nil {
			e.fail(sc, rec, log, core.ErrCancelled.WithCause(err))
			return rec
		}
		inv := &Invocation{Desc: desc, Args: sc.Vars.ExpandValue(combo).([]interface{})}
		res, err := impl(ctx, sc, inv)
		if err == nil {
			rec.Complete(res)
			log.Debug("keyword succeeded",
				zap.Int("combination", i),
				zap.Duration("duration", rec.Duration),
			)
			return rec
		}
		if res != nil {
			rec.Attachments = append(rec.Attachments, res.Attachments...)
		}
		if core.AsExecutionError(err).Code == core.ErrCancelled.Code {
			e.fail(sc, rec, log, err)
			return rec
		}
		failures = append(failures, comboFailure{args: inv.Args, err: err})
	}
	e.fail(sc, rec, log, aggregate(desc, failures))
	return rec
}

// fail finalizes a record, captures failure artifacts when configured
// and logs the outcome.
func (e *Engine) fail(sc *Scope, rec *core.ExecutionRecord, log *zap.Logger, err error) {
	rec.Fail(err)
	if sc.Artifacts.ShouldCapture(rec.Status) && sc.Driver != nil {
		rec.Attachments = append(rec.Attachments, e.captureArtifacts(sc)...)
	}
	log.Warn("keyword failed",
		zap.String("code", rec.ErrorCode),
		zap.Duration("duration", rec.Duration),
		zap.String("error", rec.Error),
	)
}

func (e *Engine) captureArtifacts(sc *Scope) []core.Attachment {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out []core.Attachment
	if shot, err := sc.Driver.Screenshot(ctx); err == nil {
		out = append(out, core.NewScreenshotAttachment(shot))
	}
	if src, err := sc.Driver.PageSource(ctx); err == nil && src != "" {
		out = append(out, core.NewSourceAttachment(src))
	}
	return out
}

func recordParams(params []interface{}, named map[string]interface{}) []interface{} {
	if len(named) > 0 {
		return []interface{}{named}
	}
	return params
}
