// Package wait resolves locators to live elements through bounded polling.
// Every suspension in a scenario happens inside this package, and every wait
// names the condition it is waiting for.
package wait

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/internal/browser"
	"github.com/xkilldash9x/flowcheck/internal/locator"
)

const (
	defaultPollInterval = 100 * time.Millisecond
	maxPollInterval     = 999 * time.Millisecond
	minPollInterval     = time.Millisecond
)

// Engine polls a driver for element conditions.
type Engine struct {
	driver         browser.Driver
	defaultTimeout time.Duration
	interval       time.Duration
	logger         *zap.Logger
}

// New creates an Engine. A non-positive interval selects the default.
func New(driver browser.Driver, defaultTimeout, interval time.Duration, logger *zap.Logger) *Engine {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if interval > maxPollInterval {
		interval = maxPollInterval
	}
	return &Engine{
		driver:         driver,
		defaultTimeout: defaultTimeout,
		interval:       interval,
		logger:         logger.Named("wait"),
	}
}

// ForSession creates an Engine using the session's driver and timing settings.
func ForSession(s *browser.Session) *Engine {
	return New(s.Driver(), s.DefaultTimeout(), s.PollInterval(), s.Logger())
}

// Timeout resolves the effective timeout for a call: non-positive means the
// engine default.
func (e *Engine) Timeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return e.defaultTimeout
	}
	return timeout
}

// intervalFor keeps the poll interval strictly below the timeout.
func (e *Engine) intervalFor(timeout time.Duration) time.Duration {
	interval := e.interval
	if interval >= timeout {
		interval = timeout / 4
	}
	if interval < minPollInterval {
		interval = minPollInterval
	}
	return interval
}

// poll runs attempt until it reports done or timeout elapses. Each attempt is
// bounded by the remaining time but always gets at least one interval, so
// poll returns within timeout plus one interval. lastErr is the error of the
// final attempt. abort is set when polling cannot continue: the caller's
// context ended or the browser session is gone.
func (e *Engine) poll(ctx context.Context, timeout time.Duration, attempt func(ctx context.Context) (bool, error)) (waited time.Duration, done bool, lastErr, abort error) {
	start := time.Now()
	deadline := start.Add(timeout)
	interval := e.intervalFor(timeout)

	for {
		attemptStart := time.Now()
		attemptDeadline := deadline
		if floor := attemptStart.Add(interval); attemptDeadline.Before(floor) {
			attemptDeadline = floor
		}

		attemptCtx, cancel := context.WithDeadline(ctx, attemptDeadline)
		ok, err := attempt(attemptCtx)
		cancel()

		if ok {
			return time.Since(start), true, nil, nil
		}
		if ctx.Err() != nil {
			return time.Since(start), false, err, ctx.Err()
		}
		if errors.Is(err, browser.ErrSessionClosed) {
			return time.Since(start), false, err, err
		}
		lastErr = err

		now := time.Now()
		if !now.Before(deadline) {
			return now.Sub(start), false, lastErr, nil
		}

		sleep := interval
		if remaining := deadline.Sub(now); remaining < sleep {
			sleep = remaining
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return time.Since(start), false, lastErr, ctx.Err()
		case <-timer.C:
		}
	}
}

// match returns the first element matching ref whose state satisfies cond.
func (e *Engine) match(ctx context.Context, ref locator.Ref, cond Condition) (browser.Element, bool, error) {
	els, err := e.driver.Find(ctx, ref)
	if err != nil {
		return browser.Element{}, false, err
	}
	var lastErr error
	for _, el := range els {
		state, err := e.driver.Inspect(ctx, el)
		if err != nil {
			// The node went away between query and inspection.
			lastErr = err
			continue
		}
		if cond.Holds(state) {
			return el, true, nil
		}
	}
	return browser.Element{}, false, lastErr
}

// WaitFor polls until some element matching ref satisfies cond. It fails with
// *ElementNotFoundError when timeout elapses first.
func (e *Engine) WaitFor(ctx context.Context, ref locator.Ref, cond Condition, timeout time.Duration) (browser.Element, error) {
	timeout = e.Timeout(timeout)

	var found browser.Element
	waited, ok, lastErr, abort := e.poll(ctx, timeout, func(ctx context.Context) (bool, error) {
		el, ok, err := e.match(ctx, ref, cond)
		if ok {
			found = el
		}
		return ok, err
	})
	if ok {
		e.logger.Debug("Element resolved.",
			zap.Stringer("locator", ref),
			zap.Stringer("condition", cond),
			zap.Duration("waited", waited))
		return found, nil
	}
	if abort != nil {
		return browser.Element{}, fmt.Errorf("waiting for %s to be %s: %w", ref, cond, abort)
	}

	e.logger.Debug("Element wait timed out.",
		zap.Stringer("locator", ref),
		zap.Stringer("condition", cond),
		zap.Duration("timeout", timeout),
		zap.Error(lastErr))
	return browser.Element{}, &ElementNotFoundError{
		Locator:   ref.String(),
		Condition: cond.String(),
		Waited:    waited,
		LastErr:   lastErr,
	}
}

// Optional is WaitFor for elements that may legitimately never appear.
// Absence is reported as found == false with a nil error. A wait whose attempts
// kept failing is not absence; its error is returned.
func (e *Engine) Optional(ctx context.Context, ref locator.Ref, cond Condition, timeout time.Duration) (browser.Element, bool, error) {
	if ref.IsZero() {
		return browser.Element{}, false, nil
	}
	el, err := e.WaitFor(ctx, ref, cond, timeout)
	if err != nil {
		if IsAbsent(err) {
			return browser.Element{}, false, nil
		}
		return browser.Element{}, false, err
	}
	return el, true, nil
}

// WaitForAbsent polls until no element matching ref is visible.
func (e *Engine) WaitForAbsent(ctx context.Context, ref locator.Ref, timeout time.Duration) error {
	if ref.IsZero() {
		return nil
	}
	timeout = e.Timeout(timeout)

	waited, ok, lastErr, abort := e.poll(ctx, timeout, func(ctx context.Context) (bool, error) {
		_, shown, err := e.match(ctx, ref, Visibility)
		if err != nil && !errors.Is(err, browser.ErrStaleElement) {
			return false, err
		}
		return !shown, nil
	})
	if ok {
		return nil
	}
	if abort != nil {
		return fmt.Errorf("waiting for %s to disappear: %w", ref, abort)
	}
	return &ElementNotFoundError{
		Locator:   ref.String(),
		Condition: "absence",
		Waited:    waited,
		LastErr:   lastErr,
	}
}

// WaitForAny polls a set of expectations and returns the index and element of
// the first one to hold. Expectations with a zero locator are skipped. Earlier
// expectations win when several hold in the same poll.
func (e *Engine) WaitForAny(ctx context.Context, timeout time.Duration, expectations ...Expectation) (int, browser.Element, error) {
	timeout = e.Timeout(timeout)

	var (
		index = -1
		found browser.Element
	)
	waited, ok, lastErr, abort := e.poll(ctx, timeout, func(ctx context.Context) (bool, error) {
		var attemptErr error
		for i, x := range expectations {
			if x.Ref.IsZero() {
				continue
			}
			el, ok, err := e.match(ctx, x.Ref, x.Condition)
			if ok {
				index, found = i, el
				return true, nil
			}
			if errors.Is(err, browser.ErrSessionClosed) {
				return false, err
			}
			if err != nil {
				attemptErr = err
			}
		}
		return false, attemptErr
	})

	names := make([]string, 0, len(expectations))
	for _, x := range expectations {
		if !x.Ref.IsZero() {
			names = append(names, x.String())
		}
	}
	if ok {
		e.logger.Debug("Expectation met.",
			zap.String("expectation", describe(expectations, index)),
			zap.Duration("waited", waited))
		return index, found, nil
	}
	if abort != nil {
		return -1, browser.Element{}, fmt.Errorf("waiting for any of [%s]: %w", strings.Join(names, "; "), abort)
	}
	return -1, browser.Element{}, &ElementNotFoundError{
		Locator:   "any of [" + strings.Join(names, "; ") + "]",
		Condition: "first match",
		Waited:    waited,
		LastErr:   lastErr,
	}
}

func describe(expectations []Expectation, i int) string {
	if i < 0 || i >= len(expectations) {
		return ""
	}
	return expectations[i].String()
}

// Until polls predicate until it returns true. what names the awaited state
// in logs and in the *TimeoutError returned when timeout elapses.
func (e *Engine) Until(ctx context.Context, what string, timeout time.Duration, predicate func(ctx context.Context) (bool, error)) error {
	timeout = e.Timeout(timeout)

	waited, ok, lastErr, abort := e.poll(ctx, timeout, predicate)
	if ok {
		e.logger.Debug("Condition reached.", zap.String("what", what), zap.Duration("waited", waited))
		return nil
	}
	if abort != nil {
		return fmt.Errorf("waiting for %s: %w", what, abort)
	}
	return &TimeoutError{What: what, Waited: waited, LastErr: lastErr}
}
