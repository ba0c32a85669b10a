// internal/pages/account.go
package pages

import (
	"context"
	"fmt"
	"time"

	"github.com/xkilldash9x/flowcheck/internal/browser"
	"github.com/xkilldash9x/flowcheck/internal/config"
	"github.com/xkilldash9x/flowcheck/internal/locator"
	"github.com/xkilldash9x/flowcheck/internal/wait"
)

// AccountPage is the account section a guest reaches before logging in.
type AccountPage struct {
	kit         Toolkit
	link        locator.Ref
	loginButton locator.Ref
	check       time.Duration
}

var _ Page = (*AccountPage)(nil)

// NewAccountPage parses the account locators. Both are optional; check bounds
// the waits for them.
func NewAccountPage(kit Toolkit, locs config.AccountLocators, check time.Duration) (*AccountPage, error) {
	p := &parser{page: "account"}
	page := &AccountPage{
		kit:         kit,
		link:        p.ref("account_link", locs.Link),
		loginButton: p.ref("account_login_button", locs.LoginButton),
		check:       check,
	}
	if err := p.err(); err != nil {
		return nil, err
	}
	return page, nil
}

func (p *AccountPage) Name() string { return "account" }

func (p *AccountPage) Locators() []locator.Ref { return nonZero(p.link, p.loginButton) }

// Open follows the account link when the page shows one. It reports whether
// the link was there.
func (p *AccountPage) Open(ctx context.Context) (bool, error) {
	el, found, err := p.kit.Wait.Optional(ctx, p.link, wait.Actionable, p.check)
	if err != nil || !found {
		return false, err
	}
	if err := p.kit.Act.Click(ctx, el); err != nil {
		return true, err
	}
	return true, nil
}

// LoginButton looks for the guest login button.
func (p *AccountPage) LoginButton(ctx context.Context) (browser.Element, bool, error) {
	return p.kit.Wait.Optional(ctx, p.loginButton, wait.Visibility, p.check)
}

// FocusLoginButton tabs to the login button, pressing Tab at most maxTabs
// times. It reports whether the button took focus.
func (p *AccountPage) FocusLoginButton(ctx context.Context, maxTabs int) (bool, error) {
	el, found, err := p.LoginButton(ctx)
	if err != nil {
		return false, err
	}
	if !found {
		return false, fmt.Errorf("login button %s not shown", p.loginButton)
	}
	return p.kit.Act.FocusByKeyboard(ctx, el, maxTabs)
}

// ActivateFocused presses Enter on the focused element.
func (p *AccountPage) ActivateFocused(ctx context.Context) error {
	return p.kit.Act.Activate(ctx)
}

// ExpireSession drops the session cookies and reloads, as if the server-side
// session had timed out.
func (p *AccountPage) ExpireSession(ctx context.Context) error {
	if err := p.kit.Driver.DeleteCookies(ctx); err != nil {
		return fmt.Errorf("deleting cookies: %w", err)
	}
	if err := p.kit.Driver.Reload(ctx); err != nil {
		return fmt.Errorf("reloading after cookie deletion: %w", err)
	}
	return nil
}
