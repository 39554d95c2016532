// Package session owns the per-session aggregates: variable store, driver
// handle, detection backends, uploaded templates and streams. Sessions are
// isolated; the manager is the only shared structure and it is keyed by id.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devicelab-dev/keyflow/pkg/core"
	"github.com/devicelab-dev/keyflow/pkg/data"
	"github.com/devicelab-dev/keyflow/pkg/engine"
	"github.com/devicelab-dev/keyflow/pkg/locator"
	"github.com/devicelab-dev/keyflow/pkg/stream"
	"github.com/devicelab-dev/keyflow/pkg/suite"
	"github.com/devicelab-dev/keyflow/pkg/vars"
)

const closeAppTimeout = 5 * time.Second

// Session is one isolated execution context. Keyword dispatch within a
// session is serialized: a second Execute while one is in flight is
// rejected with SessionBusy rather than queued, so the engine never
// accumulates hidden backlog.
type Session struct {
	id       string
	driverID string

	eng       *engine.Engine
	driver    core.Driver
	resolver  *locator.Resolver
	store     *vars.Store
	loader    *data.Loader
	feed      *stream.Feed
	workspace *stream.Workspace
	artifacts core.ArtifactConfig
	logger    *zap.Logger

	// ctx ends when the session terminates; every blocking wait inside a
	// dispatch selects on it.
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     core.SessionState
	busy      bool
	templates map[string][]byte
	modules   *suite.Suite

	releaseOnce sync.Once
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// DriverID returns the backend driver's own session identifier.
func (s *Session) DriverID() string { return s.driverID }

// State returns the current lifecycle state.
func (s *Session) State() core.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LoadSuite binds a parsed suite to the session: initial variables,
// template images and the module table flow keywords resolve against.
func (s *Session) LoadSuite(st *suite.Suite) {
	if st == nil {
		return
	}
	s.store.SetAll(st.Vars)
	s.mu.Lock()
	for name, img := range st.Templates {
		s.templates[name] = img
	}
	s.modules = st
	s.mu.Unlock()
}

// Module implements engine.ModuleSource.
func (s *Session) Module(name string) *suite.Module {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modules.Module(name)
}

// Template implements locator.TemplateSource over uploaded and
// suite-supplied images.
func (s *Session) Template(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	img, ok := s.templates[name]
	return img, ok
}

// UploadTemplate registers image bytes under a logical name. Uploading an
// existing name replaces it.
func (s *Session) UploadTemplate(name string, img []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == core.SessionTerminated {
		return core.ErrSessionNotFound.WithMessagef("session %s is terminated", s.id)
	}
	s.templates[name] = img
	return nil
}

// Vars returns the session's variable store.
func (s *Session) Vars() *vars.Store { return s.store }

// Execute dispatches one keyword. Inline templates register before the
// dispatch runs. The returned record is terminal; session-level refusals
// (terminated, busy) return an error and no record.
func (s *Session) Execute(ctx context.Context, keyword string, params []interface{}, named map[string]interface{}, templates map[string][]byte) (*core.ExecutionRecord, error) {
	s.mu.Lock()
	if s.state == core.SessionTerminated {
		s.mu.Unlock()
		return nil, core.ErrSessionNotFound.WithMessagef("session %s is terminated", s.id)
	}
	if s.busy {
		s.mu.Unlock()
		return nil, core.ErrSessionBusy.WithMessagef("session %s already has a keyword in flight", s.id)
	}
	s.busy = true
	s.state = core.SessionRunning
	for name, img := range templates {
		s.templates[name] = img
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		if s.state == core.SessionRunning {
			s.state = core.SessionReady
		}
		s.mu.Unlock()
	}()

	// The dispatch context ends with the caller or with the session,
	// whichever comes first; termination interrupts polls and sleeps.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	return s.eng.Dispatch(runCtx, s.scope(), keyword, params, named), nil
}

// RunEntry executes the loaded suite's entry module.
func (s *Session) RunEntry(ctx context.Context) (*core.ExecutionRecord, error) {
	s.mu.Lock()
	entry := ""
	if s.modules != nil {
		entry = s.modules.Entry
	}
	s.mu.Unlock()
	if entry == "" {
		return nil, core.ErrKeywordNotFound.WithMessage("suite has no entry module")
	}
	return s.Execute(ctx, "Execute Module", []interface{}{entry}, nil, nil)
}

func (s *Session) scope() *engine.Scope {
	return &engine.Scope{
		SessionID: s.id,
		Driver:    s.driver,
		Resolver:  s.resolver,
		Vars:      s.store,
		Modules:   s,
		Data:      s.loader,
		Artifacts: s.artifacts,
		Logger:    s.logger,
		Emit:      s.feed.Publish,
	}
}

// Events subscribes to the session's ordered record feed.
func (s *Session) Events() (<-chan stream.Event, func()) {
	return s.feed.Subscribe()
}

// WorkspaceStream subscribes to deduplicated workspace snapshots. The
// stream ends when ctx ends or the session terminates.
func (s *Session) WorkspaceStream(ctx context.Context, opts stream.WorkspaceOptions) <-chan stream.WorkspaceSnapshot {
	runCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)

	out := make(chan stream.WorkspaceSnapshot, 1)
	inner := s.workspace.Stream(runCtx, opts)
	go func() {
		defer close(out)
		defer stop()
		defer cancel()
		for snap := range inner {
			select {
			case out <- snap:
			case <-runCtx.Done():
				return
			}
		}
	}()
	return out
}

// CaptureWorkspace fetches one snapshot on demand.
func (s *Session) CaptureWorkspace(ctx context.Context, includeSource bool) (*stream.WorkspaceSnapshot, error) {
	if s.State() == core.SessionTerminated {
		return nil, core.ErrSessionNotFound.WithMessagef("session %s is terminated", s.id)
	}
	return s.workspace.Capture(ctx, includeSource)
}

// Screenshot fetches the current screen as PNG bytes.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	if s.State() == core.SessionTerminated {
		return nil, core.ErrSessionNotFound.WithMessagef("session %s is terminated", s.id)
	}
	shot, err := s.driver.Screenshot(ctx)
	if err != nil {
		return nil, core.ErrBackend.WithCause(err)
	}
	return shot, nil
}

// Elements fetches the current element list.
func (s *Session) Elements(ctx context.Context) ([]core.ElementInfo, error) {
	if s.State() == core.SessionTerminated {
		return nil, core.ErrSessionNotFound.WithMessagef("session %s is terminated", s.id)
	}
	elements, err := s.driver.Elements(ctx)
	if err != nil {
		return nil, core.ErrBackend.WithCause(err)
	}
	return elements, nil
}

// Source fetches the current page source.
func (s *Session) Source(ctx context.Context) (string, error) {
	if s.State() == core.SessionTerminated {
		return "", core.ErrSessionNotFound.WithMessagef("session %s is terminated", s.id)
	}
	source, err := s.driver.PageSource(ctx)
	if err != nil {
		return "", core.ErrBackend.WithCause(err)
	}
	return source, nil
}

// Terminate ends the session: in-flight dispatches observe cancellation,
// the app is closed best-effort, and owned resources release exactly once.
// Terminate is idempotent.
func (s *Session) Terminate() {
	s.mu.Lock()
	if s.state == core.SessionTerminated {
		s.mu.Unlock()
		return
	}
	s.state = core.SessionTerminated
	s.mu.Unlock()

	s.cancel()
	s.releaseOnce.Do(s.release)
}

func (s *Session) release() {
	ctx, cancel := context.WithTimeout(context.Background(), closeAppTimeout)
	defer cancel()
	if err := s.driver.TerminateApp(ctx); err != nil {
		s.logger.Warn("close app failed during terminate", zap.Error(err))
	}

	s.feed.Close()

	s.mu.Lock()
	s.templates = map[string][]byte{}
	s.mu.Unlock()

	s.logger.Info("session terminated")
}
