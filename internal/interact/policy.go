// Package interact wraps element actions with a bounded recovery rule: a click
// that lands on an overlay is retried once as a script click, and nothing is
// ever attempted a third time. Locating elements is the wait package's job.
package interact

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/internal/browser"
	"github.com/xkilldash9x/flowcheck/internal/observability"
)

// Action names used in InteractionError.
const (
	ActionClick    = "click"
	ActionType     = "type"
	ActionFocus    = "focus"
	ActionActivate = "activate"
)

// InteractionError reports an action that failed after the policy ran out of
// options.
type InteractionError struct {
	Action       string
	Element      string
	Cause        error
	FallbackUsed bool
}

func (e *InteractionError) Error() string {
	msg := fmt.Sprintf("%s on %s failed", e.Action, e.Element)
	if e.FallbackUsed {
		msg += " after script fallback"
	}
	return fmt.Sprintf("%s: %v", msg, e.Cause)
}

func (e *InteractionError) Unwrap() error { return e.Cause }

// Policy applies the recovery rules over a driver.
type Policy struct {
	driver browser.Driver
	logger *zap.Logger
}

func New(driver browser.Driver, logger *zap.Logger) *Policy {
	return &Policy{driver: driver, logger: logger.Named("interact")}
}

// ForSession creates a Policy over the session's driver.
func ForSession(s *browser.Session) *Policy {
	return New(s.Driver(), s.Logger())
}

// Click clicks el. When the click is intercepted by another element it falls
// back once to a script click; any other failure is returned as is.
func (p *Policy) Click(ctx context.Context, el browser.Element) error {
	err := p.driver.Click(ctx, el)
	if err == nil {
		return nil
	}
	if !errors.Is(err, browser.ErrClickIntercepted) {
		return &InteractionError{Action: ActionClick, Element: el.String(), Cause: err}
	}

	p.logger.Info("Click intercepted, falling back to script click.",
		zap.Stringer("element", el), zap.Error(err))

	if ferr := p.driver.ScriptClick(ctx, el); ferr != nil {
		return &InteractionError{
			Action:       ActionClick,
			Element:      el.String(),
			Cause:        fmt.Errorf("%w; fallback: %w", err, ferr),
			FallbackUsed: true,
		}
	}
	return nil
}

// Type replaces the content of el with text. The field is cleared first when
// it holds a value. A detached element fails with browser.ErrStaleElement as
// the cause.
func (p *Policy) Type(ctx context.Context, el browser.Element, text string) error {
	fail := func(cause error) error {
		return &InteractionError{Action: ActionType, Element: el.String(), Cause: cause}
	}

	state, err := p.driver.Inspect(ctx, el)
	if err != nil {
		return fail(err)
	}
	if !state.Attached {
		return fail(browser.ErrStaleElement)
	}

	if state.Value != "" {
		if err := p.driver.Clear(ctx, el); err != nil {
			return fail(fmt.Errorf("clearing field: %w", err))
		}
	}
	if err := p.driver.SendKeys(ctx, el, text); err != nil {
		return fail(err)
	}

	p.logger.Debug("Typed into field.", zap.Stringer("element", el), observability.Secret("text", text))
	return nil
}

// FocusByKeyboard presses Tab until el holds focus, at most maxTabs times.
// It reports whether focus was reached.
func (p *Policy) FocusByKeyboard(ctx context.Context, el browser.Element, maxTabs int) (bool, error) {
	fail := func(cause error) (bool, error) {
		return false, &InteractionError{Action: ActionFocus, Element: el.String(), Cause: cause}
	}

	focused, err := p.driver.IsFocused(ctx, el)
	if err != nil {
		return fail(err)
	}
	for presses := 0; !focused && presses < maxTabs; presses++ {
		if err := p.driver.PressKey(ctx, browser.KeyTab); err != nil {
			return fail(err)
		}
		if focused, err = p.driver.IsFocused(ctx, el); err != nil {
			return fail(err)
		}
		if focused {
			p.logger.Debug("Focus reached by keyboard.", zap.Stringer("element", el), zap.Int("tabs", presses+1))
		}
	}
	return focused, nil
}

// Activate presses Enter on whatever element holds focus.
func (p *Policy) Activate(ctx context.Context) error {
	if err := p.driver.PressKey(ctx, browser.KeyEnter); err != nil {
		return &InteractionError{Action: ActionActivate, Element: "focused element", Cause: err}
	}
	return nil
}
