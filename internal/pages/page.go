// Package pages binds the screens of the application under test to their
// locators and exposes the actions scenarios are written in. Locators are
// parsed once, when a page is constructed; no page touches the DOM before one
// of its actions is called.
package pages

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/internal/browser"
	"github.com/xkilldash9x/flowcheck/internal/interact"
	"github.com/xkilldash9x/flowcheck/internal/locator"
	"github.com/xkilldash9x/flowcheck/internal/wait"
)

// Page is the contract every page object satisfies.
type Page interface {
	Name() string
	Locators() []locator.Ref
}

// Toolkit is what a page needs to act on one session.
type Toolkit struct {
	Driver browser.Driver
	Wait   *wait.Engine
	Act    *interact.Policy
	Logger *zap.Logger
}

// ToolkitFor builds a Toolkit over a session.
func ToolkitFor(s *browser.Session) Toolkit {
	return Toolkit{
		Driver: s.Driver(),
		Wait:   wait.ForSession(s),
		Act:    interact.ForSession(s),
		Logger: s.Logger(),
	}
}

// parser collects locator parse errors so a constructor can report them all
// at once.
type parser struct {
	page string
	errs []error
}

func (p *parser) ref(name, raw string) locator.Ref {
	r, err := locator.Parse(name, raw)
	if err != nil {
		p.errs = append(p.errs, err)
	}
	return r
}

func (p *parser) required(name, raw string) locator.Ref {
	r := p.ref(name, raw)
	if r.IsZero() {
		p.errs = append(p.errs, fmt.Errorf("locator %q is required", name))
	}
	return r
}

func (p *parser) err() error {
	if len(p.errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s page: invalid locators: %w", p.page, errors.Join(p.errs...))
}

// nonZero drops unset optional locators.
func nonZero(refs ...locator.Ref) []locator.Ref {
	out := make([]locator.Ref, 0, len(refs))
	for _, r := range refs {
		if !r.IsZero() {
			out = append(out, r)
		}
	}
	return out
}
