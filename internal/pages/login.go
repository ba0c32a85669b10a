// internal/pages/login.go
package pages

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/internal/browser"
	"github.com/xkilldash9x/flowcheck/internal/config"
	"github.com/xkilldash9x/flowcheck/internal/locator"
	"github.com/xkilldash9x/flowcheck/internal/observability"
	"github.com/xkilldash9x/flowcheck/internal/wait"
)

// LoginPage is the sign-in form.
type LoginPage struct {
	kit Toolkit

	identifier       locator.Ref
	secret           locator.Ref
	submit           locator.Ref
	errorIndicator   locator.Ref
	successIndicator locator.Ref

	authCheckTimeout time.Duration
}

var _ Page = (*LoginPage)(nil)

// NewLoginPage parses the login locators. authCheckTimeout bounds the check
// for an error indicator when no success indicator is configured.
func NewLoginPage(kit Toolkit, locs config.LoginLocators, authCheckTimeout time.Duration) (*LoginPage, error) {
	p := &parser{page: "login"}
	page := &LoginPage{
		kit:              kit,
		identifier:       p.required("identifier_field", locs.Identifier),
		secret:           p.required("secret_field", locs.Secret),
		submit:           p.required("submit", locs.Submit),
		errorIndicator:   p.ref("login_error", locs.ErrorIndicator),
		successIndicator: p.ref("login_success", locs.SuccessIndicator),
		authCheckTimeout: authCheckTimeout,
	}
	if err := p.err(); err != nil {
		return nil, err
	}
	return page, nil
}

func (p *LoginPage) Name() string { return "login" }

func (p *LoginPage) Locators() []locator.Ref {
	return nonZero(p.identifier, p.secret, p.submit, p.errorIndicator, p.successIndicator)
}

// Login fills in the form and submits it. It does not judge the result; call
// Outcome for that.
func (p *LoginPage) Login(ctx context.Context, identifier, secret string) error {
	field, err := p.kit.Wait.WaitFor(ctx, p.identifier, wait.Visibility, 0)
	if err != nil {
		return err
	}
	if err := p.kit.Act.Type(ctx, field, identifier); err != nil {
		return err
	}

	field, err = p.kit.Wait.WaitFor(ctx, p.secret, wait.Visibility, 0)
	if err != nil {
		return err
	}
	if err := p.kit.Act.Type(ctx, field, secret); err != nil {
		return err
	}

	button, err := p.kit.Wait.WaitFor(ctx, p.submit, wait.Actionable, 0)
	if err != nil {
		return err
	}
	if err := p.kit.Act.Click(ctx, button); err != nil {
		return err
	}

	p.kit.Logger.Debug("Login form submitted.", zap.Stringer("submit", button), observability.Secret("identifier", identifier))
	return nil
}

// Outcome decides whether the submitted login was accepted. A rejected login
// is an *AuthenticationError carrying the error indicator's text.
func (p *LoginPage) Outcome(ctx context.Context) error {
	if p.successIndicator.IsZero() {
		el, found, err := p.kit.Wait.Optional(ctx, p.errorIndicator, wait.Visibility, p.authCheckTimeout)
		if err != nil {
			return fmt.Errorf("checking login outcome: %w", err)
		}
		if found {
			return &AuthenticationError{Message: p.indicatorText(ctx, el)}
		}
		return nil
	}

	i, el, err := p.kit.Wait.WaitForAny(ctx, 0,
		wait.Expect(p.errorIndicator, wait.Visibility),
		wait.Expect(p.successIndicator, wait.Visibility))
	if err != nil {
		if !wait.IsAbsent(err) {
			return fmt.Errorf("checking login outcome: %w", err)
		}
		return &AuthenticationError{Message: "login could not be confirmed", Cause: err}
	}
	if i == 0 {
		return &AuthenticationError{Message: p.indicatorText(ctx, el)}
	}
	return nil
}

func (p *LoginPage) indicatorText(ctx context.Context, el browser.Element) string {
	state, err := p.kit.Driver.Inspect(ctx, el)
	if err != nil || state.Text == "" {
		return "error indicator shown"
	}
	return state.Text
}

// FormVisible reports whether the identifier field is shown within the auth
// check timeout.
func (p *LoginPage) FormVisible(ctx context.Context) (bool, error) {
	_, found, err := p.kit.Wait.Optional(ctx, p.identifier, wait.Visibility, p.authCheckTimeout)
	return found, err
}
