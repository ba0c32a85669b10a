// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/internal/config"
)

// Launcher starts a browser and returns a driver for it. LaunchChrome is the
// production launcher.
type Launcher func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (Driver, error)

// Manager opens isolated sessions and tracks them until they are closed.
type Manager struct {
	cfg      *config.Config
	launcher Launcher
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLauncher replaces the Chrome launcher, mostly for tests.
func WithLauncher(l Launcher) ManagerOption {
	return func(m *Manager) { m.launcher = l }
}

func NewManager(cfg *config.Config, logger *zap.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:      cfg,
		launcher: LaunchChrome,
		logger:   logger.Named("browser_manager"),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open launches a fresh browser, navigates it to baseURL and returns the
// session. Any failure along the way is a *SessionStartError and leaves no
// browser behind.
func (m *Manager) Open(ctx context.Context, baseURL string) (*Session, error) {
	launchCtx := ctx
	if timeout := m.cfg.Browser.LaunchTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		launchCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	id := uuid.New().String()
	logger := m.logger.With(zap.String("session_id", id))

	driver, err := m.launcher(launchCtx, m.cfg.Browser, logger)
	if err != nil {
		return nil, &SessionStartError{BaseURL: baseURL, Cause: err}
	}

	if err := driver.Navigate(launchCtx, baseURL); err != nil {
		if cerr := driver.Close(); cerr != nil {
			logger.Debug("Error closing browser after failed navigation.", zap.Error(cerr))
		}
		return nil, &SessionStartError{BaseURL: baseURL, Cause: err}
	}

	s := &Session{
		id:             id,
		baseURL:        baseURL,
		defaultTimeout: m.cfg.Target.DefaultTimeout(),
		pollInterval:   m.cfg.Target.PollInterval(),
		driver:         driver,
		logger:         logger,
	}
	s.onClose = func() { m.release(id) }

	m.mu.Lock()
	m.sessions[id] = s
	m.wg.Add(1)
	m.mu.Unlock()

	logger.Info("Browser session opened.", zap.String("base_url", baseURL))
	return s, nil
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; ok {
		delete(m.sessions, id)
		m.wg.Done()
	}
}

// Active reports how many sessions are open.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown closes every session still open and waits for them to finish,
// giving up when ctx is done.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	if len(open) > 0 {
		m.logger.Info("Shutting down open browser sessions.", zap.Int("count", len(open)))
	}
	for _, s := range open {
		_ = s.Close()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for browser sessions to close: %w", ctx.Err())
	}
}

// WithSession opens a session, runs fn with it and closes it on every exit
// path, panics included. A close error is reported only if fn succeeded.
func WithSession(ctx context.Context, m *Manager, baseURL string, fn func(*Session) error) (err error) {
	s, err := m.Open(ctx, baseURL)
	if err != nil {
		return err
	}

	start := time.Now()
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close browser session: %w", cerr)
		}
		s.logger.Debug("Browser session released.", zap.Duration("duration", time.Since(start)))
	}()

	return fn(s)
}
