package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/devicelab-dev/keyflow/pkg/config"
	"github.com/devicelab-dev/keyflow/pkg/core"
	"github.com/devicelab-dev/keyflow/pkg/data"
	"github.com/devicelab-dev/keyflow/pkg/driver/mock"
	"github.com/devicelab-dev/keyflow/pkg/engine"
	"github.com/devicelab-dev/keyflow/pkg/locator"
	"github.com/devicelab-dev/keyflow/pkg/stream"
	"github.com/devicelab-dev/keyflow/pkg/vars"
)

// DriverFactory builds a driver handle and its detection backends from
// the driver configuration. The default factory only knows the mock
// backend; real backends register their own factory.
type DriverFactory func(cfg config.Driver) (core.Driver, map[locator.Kind]locator.Detector, error)

// MockFactory builds the in-tree simulated driver.
func MockFactory(cfg config.Driver) (core.Driver, map[locator.Kind]locator.Detector, error) {
	drv := mock.New(mock.Config{
		Platform:     cfg.Platform,
		DeviceID:     cfg.DeviceID,
		AppVersion:   cfg.AppVersion,
		ScreenWidth:  cfg.ScreenWidth,
		ScreenHeight: cfg.ScreenHeight,
	})
	return drv, drv.Detectors(), nil
}

// Manager is the concurrency-safe session registry. Sessions share
// nothing but the engine's immutable keyword registry.
type Manager struct {
	cfg     *config.Config
	eng     *engine.Engine
	factory DriverFactory
	logger  *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager builds a manager. A nil factory uses MockFactory.
func NewManager(cfg *config.Config, factory DriverFactory, logger *zap.Logger) (*Manager, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if factory == nil {
		factory = MockFactory
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	eng, err := engine.New(engine.Config{
		DefaultTimeout: cfg.Engine.DefaultTimeout.Std(),
		PollInterval:   cfg.Engine.PollInterval.Std(),
		StrategyOrder:  strategyOrder(cfg.Engine.StrategyOrder),
	}, logger)
	if err != nil {
		return nil, err
	}

	return &Manager{
		cfg:      cfg,
		eng:      eng,
		factory:  factory,
		logger:   logger,
		sessions: make(map[string]*Session),
	}, nil
}

// Engine exposes the shared engine, mainly for its keyword registry.
func (m *Manager) Engine() *engine.Engine { return m.eng }

// Create allocates a session, builds its driver and detectors, and runs
// the implicit launch step. A launch failure terminates the half-built
// session and is returned to the caller; it is never retried.
func (m *Manager) Create(ctx context.Context, overrides *config.Driver) (*Session, error) {
	driverCfg := m.cfg.Driver
	if overrides != nil {
		driverCfg = *overrides
	}

	driver, detectors, err := m.factory(driverCfg)
	if err != nil {
		return nil, core.ErrBackend.WithMessage("driver construction failed").WithCause(err)
	}

	id := uuid.New().String()
	logger := m.logger.With(zap.String("session_id", id))
	sessionCtx, cancel := context.WithCancel(context.Background())

	s := &Session{
		id:        id,
		driverID:  driver.SessionID(),
		eng:       m.eng,
		driver:    driver,
		store:     vars.NewStore(),
		loader:    &data.Loader{},
		feed:      stream.NewFeed(m.cfg.Stream.Heartbeat.Std(), m.cfg.Stream.BufferSize, logger),
		workspace: stream.NewWorkspace(driver, logger),
		artifacts: m.cfg.Artifacts,
		logger:    logger,
		ctx:       sessionCtx,
		cancel:    cancel,
		state:     core.SessionCreated,
		templates: map[string][]byte{},
	}
	s.resolver = locator.NewResolver(driver, detectors, s, logger)
	s.resolver.SetAnnotate(m.cfg.Artifacts.AnnotateROI)

	if err := driver.LaunchApp(ctx); err != nil {
		s.Terminate()
		return nil, core.ErrBackend.WithMessage("app launch failed").WithCause(err)
	}

	s.mu.Lock()
	s.state = core.SessionReady
	s.mu.Unlock()

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	logger.Info("session created", zap.String("driver_id", s.driverID))
	return s, nil
}

// Get returns the live session with the given id. Absent and terminated
// sessions both report SessionNotFound.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok || s.State() == core.SessionTerminated {
		return nil, core.ErrSessionNotFound.WithMessagef("session %s not found", id)
	}
	return s, nil
}

// Execute dispatches a keyword against the named session.
func (m *Manager) Execute(ctx context.Context, id, keyword string, params []interface{}, named map[string]interface{}, templates map[string][]byte) (*core.ExecutionRecord, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, keyword, params, named, templates)
}

// Terminate ends the named session and removes it from the registry.
func (m *Manager) Terminate(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return core.ErrSessionNotFound.WithMessagef("session %s not found", id)
	}
	s.Terminate()
	return nil
}

// Shutdown terminates every live session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	for _, s := range sessions {
		s.Terminate()
	}
}

// strategyOrder maps configured strategy names onto locator kinds,
// skipping unknown names. An empty result falls back to the default.
func strategyOrder(names []string) []locator.Kind {
	var out []locator.Kind
	for _, name := range names {
		switch name {
		case "text":
			out = append(out, locator.KindText)
		case "path":
			out = append(out, locator.KindPath)
		case "image":
			out = append(out, locator.KindImage)
		}
	}
	return out
}
