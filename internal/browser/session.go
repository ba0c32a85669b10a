// internal/browser/session.go
package browser

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Session is one isolated browser instance bound to a base URL. It is used by
// a single scenario at a time and released exactly once.
type Session struct {
	id             string
	baseURL        string
	defaultTimeout time.Duration
	pollInterval   time.Duration
	driver         Driver
	logger         *zap.Logger

	onClose   func()
	closeOnce sync.Once
	closed    atomic.Bool
}

func (s *Session) ID() string                    { return s.id }
func (s *Session) BaseURL() string               { return s.baseURL }
func (s *Session) DefaultTimeout() time.Duration { return s.defaultTimeout }
func (s *Session) PollInterval() time.Duration   { return s.pollInterval }
func (s *Session) Driver() Driver                { return s.driver }
func (s *Session) Logger() *zap.Logger           { return s.logger }
func (s *Session) Closed() bool                  { return s.closed.Load() }

// Close releases the browser. Only the first call does any work and reports
// the driver's error; later calls are no-ops returning nil.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.logger.Debug("Closing browser session.")
		if err = s.driver.Close(); err != nil {
			s.logger.Warn("Browser did not close cleanly.", zap.Error(err))
		}
		if s.onClose != nil {
			s.onClose()
		}
	})
	return err
}
