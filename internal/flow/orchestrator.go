// Package flow sequences page-object actions into one end-to-end workflow.
// A run is driven by a declarative list of steps; the orchestrator checks each
// step against the allowed-transition table, performs it, and records the
// resulting state. Optional outcomes (an absent modal, an empty or failed
// device list, rejected credentials) become states. Everything else is an
// error returned from Run.
package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/internal/browser"
	"github.com/xkilldash9x/flowcheck/internal/config"
	"github.com/xkilldash9x/flowcheck/internal/pages"
	"github.com/xkilldash9x/flowcheck/internal/wait"
)

// Options tune an Orchestrator.
type Options struct {
	Credentials      Credentials
	AuthCheckTimeout time.Duration
	ModalTimeout     time.Duration
	StablePolls      int
	FocusMaxTabs     int
	// SessionToken is the token source checked after login and expiry.
	SessionToken string
}

// OptionsFromConfig reads the options out of the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Credentials:      Credentials{Identifier: cfg.Target.Identifier, Secret: cfg.Target.Secret},
		AuthCheckTimeout: cfg.Target.AuthCheckTimeout(),
		ModalTimeout:     cfg.Target.ModalTimeout(),
		StablePolls:      cfg.Target.StablePolls,
		FocusMaxTabs:     cfg.Runner.FocusMaxTabs,
		SessionToken:     cfg.Target.SessionToken,
	}
}

// stepHandler performs one step and moves the result to its next state.
type stepHandler func(ctx context.Context, res *Result, step Step) error

// Orchestrator runs step sequences against one session's pages.
type Orchestrator struct {
	kit     pages.Toolkit
	login   *pages.LoginPage
	modal   *pages.WelcomeModalPage
	manage  *pages.ManagePage
	account *pages.AccountPage
	token   *pages.SessionTokenCheck
	opts    Options
	logger  *zap.Logger

	handlers map[StepKind]stepHandler
}

// New builds the page objects for kit and an Orchestrator over them.
func New(kit pages.Toolkit, locs config.LocatorConfig, opts Options) (*Orchestrator, error) {
	login, err := pages.NewLoginPage(kit, locs.Login, opts.AuthCheckTimeout)
	if err != nil {
		return nil, err
	}
	modal, err := pages.NewWelcomeModalPage(kit, locs.Modal, opts.ModalTimeout)
	if err != nil {
		return nil, err
	}
	manage, err := pages.NewManagePage(kit, locs.Manage, opts.StablePolls)
	if err != nil {
		return nil, err
	}
	account, err := pages.NewAccountPage(kit, locs.Account, opts.AuthCheckTimeout)
	if err != nil {
		return nil, err
	}
	token, err := pages.NewSessionTokenCheck(kit, opts.SessionToken)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		kit:     kit,
		login:   login,
		modal:   modal,
		manage:  manage,
		account: account,
		token:   token,
		opts:    opts,
		logger:  kit.Logger.Named("flow"),
	}
	o.registerHandlers()
	return o, nil
}

// ForSession builds an Orchestrator over a session using the loaded configuration.
func ForSession(s *browser.Session, cfg *config.Config) (*Orchestrator, error) {
	return New(pages.ToolkitFor(s), cfg.Locators, OptionsFromConfig(cfg))
}

func (o *Orchestrator) registerHandlers() {
	o.handlers = map[StepKind]stepHandler{
		StepLogin:           o.doLogin,
		StepDismissModal:    o.doDismissModal,
		StepOpenManage:      o.doOpenManage,
		StepOpenDeviceUsers: o.doOpenDeviceUsers,
		StepLoadDevices:     o.doLoadDevices,
		StepOpenAccount:     o.doOpenAccount,
		StepExpireSession:   o.doExpireSession,
		StepFailRequests:    o.doFailRequests,
	}
}

// Run executes steps in order from StateStart. Reaching a terminal state
// ends the run and skips the remaining steps; that is not an error. A failed
// required step stops the run with a *StepError, and an out-of-order step
// with a *TransitionError. The Result is returned in every case.
func (o *Orchestrator) Run(ctx context.Context, steps []Step) (*Result, error) {
	res := &Result{State: StateStart}

	for i, step := range steps {
		if res.Terminal() {
			o.logger.Info("Terminal state reached, skipping remaining steps.",
				zap.Stringer("state", res.State),
				zap.Int("skipped", len(steps)-i))
			break
		}
		if err := step.Validate(); err != nil {
			return res, &StepError{Index: i, Kind: step.Kind, Err: err}
		}
		handler, ok := o.handlers[step.Kind]
		if !ok {
			return res, &StepError{Index: i, Kind: step.Kind, Err: errors.New("no handler registered")}
		}

		res.Steps++
		from := res.State
		if err := handler(ctx, res, step); err != nil {
			res.LastErr = err
			o.logger.Warn("Workflow step failed.",
				zap.Int("step", i+1),
				zap.String("kind", string(step.Kind)),
				zap.Stringer("state", res.State),
				zap.Error(err))
			return res, &StepError{Index: i, Kind: step.Kind, Err: err}
		}
		if res.State != from {
			o.logger.Info("State transition.",
				zap.String("step", string(step.Kind)),
				zap.Stringer("from", from),
				zap.Stringer("to", res.State))
		}
	}
	return res, nil
}

func (o *Orchestrator) doLogin(ctx context.Context, res *Result, step Step) error {
	if err := res.moveTo(StateAuthenticating, step.Kind); err != nil {
		return err
	}
	creds := o.opts.Credentials
	if step.Identifier != "" {
		creds = Credentials{Identifier: step.Identifier, Secret: step.Secret}
	}
	o.logger.Debug("Logging in.", zap.Stringer("credentials", creds))

	err := o.login.Login(ctx, creds.Identifier, creds.Secret)
	if err == nil {
		err = o.login.Outcome(ctx)
	}
	if err == nil {
		res.Token, err = o.token.Confirm(ctx)
	}
	if err != nil {
		// A form that never rendered is a failed login; a browser that
		// stopped answering is not.
		var authErr *pages.AuthenticationError
		if errors.As(err, &authErr) || wait.IsAbsent(err) {
			res.LastErr = err
			return res.moveTo(StateAuthenticationFailed, step.Kind)
		}
		return err
	}
	return res.moveTo(StateModalCheck, step.Kind)
}

func (o *Orchestrator) doDismissModal(ctx context.Context, res *Result, step Step) error {
	if res.State != StateModalCheck {
		return &TransitionError{From: res.State, To: StateModalCheck, Step: step.Kind}
	}
	outcome, err := o.modal.Dismiss(ctx)
	res.Modal = &outcome
	return err
}

func (o *Orchestrator) doOpenManage(ctx context.Context, res *Result, step Step) error {
	if err := res.moveTo(StateNavigating, step.Kind); err != nil {
		return err
	}
	return o.manage.OpenManage(ctx)
}

func (o *Orchestrator) doOpenDeviceUsers(ctx context.Context, res *Result, step Step) error {
	if err := res.moveTo(StateNavigating, step.Kind); err != nil {
		return err
	}
	return o.manage.OpenDeviceUsers(ctx)
}

func (o *Orchestrator) doLoadDevices(ctx context.Context, res *Result, step Step) error {
	if err := res.moveTo(StateDataLoading, step.Kind); err != nil {
		return err
	}

	status, err := o.manage.AwaitDevices(ctx)
	var failure *pages.DataLoadFailure
	switch {
	case errors.As(err, &failure):
		res.LastErr = err
		return res.moveTo(StateDataLoadFailed, step.Kind)
	case err != nil:
		return err
	case status == pages.LoadEmpty:
		res.Devices = []pages.Device{}
		return res.moveTo(StateDataEmpty, step.Kind)
	}

	devices, err := o.manage.ReadDevices(ctx)
	if err != nil {
		return err
	}
	res.Devices = devices
	if len(devices) == 0 {
		return res.moveTo(StateDataEmpty, step.Kind)
	}
	return res.moveTo(StateDataLoaded, step.Kind)
}

func (o *Orchestrator) doOpenAccount(ctx context.Context, res *Result, step Step) error {
	if err := res.moveTo(StateAccount, step.Kind); err != nil {
		return err
	}

	check := &AccountCheck{}
	res.Account = check
	found, err := o.account.Open(ctx)
	check.LinkFound = found
	if err != nil {
		return err
	}
	_, check.LoginButtonShown, err = o.account.LoginButton(ctx)
	if err != nil {
		return err
	}

	needButton := step.RequireLoginButton || step.Focus || step.Activate
	if needButton && !check.LoginButtonShown {
		return errors.New("login button not shown on the account page")
	}
	if !step.Focus && !step.Activate {
		return nil
	}

	focused, err := o.account.FocusLoginButton(ctx, o.opts.FocusMaxTabs)
	check.LoginButtonFocused = focused
	if err != nil {
		return err
	}
	if !focused {
		return fmt.Errorf("login button not reached within %d tab presses", o.opts.FocusMaxTabs)
	}
	if step.Activate {
		return o.account.ActivateFocused(ctx)
	}
	return nil
}

func (o *Orchestrator) doExpireSession(ctx context.Context, res *Result, step Step) error {
	if !CanTransition(res.State, StateSessionExpired) {
		return &TransitionError{From: res.State, To: StateSessionExpired, Step: step.Kind}
	}
	if err := o.token.Clear(ctx); err != nil {
		return err
	}
	if err := o.account.ExpireSession(ctx); err != nil {
		return err
	}
	visible, err := o.login.FormVisible(ctx)
	if err != nil {
		return err
	}
	if !visible {
		return errors.New("login form not shown after the session was expired")
	}
	revoked, err := o.token.Revoked(ctx)
	if err != nil {
		return err
	}
	if !revoked {
		return errors.New("session token still live after the session was expired")
	}
	return res.moveTo(StateSessionExpired, step.Kind)
}

func (o *Orchestrator) doFailRequests(ctx context.Context, res *Result, step Step) error {
	if err := o.kit.Driver.FailRequests(ctx, step.Patterns); err != nil {
		return fmt.Errorf("installing request failures: %w", err)
	}
	o.logger.Info("Requests will fail.", zap.Strings("patterns", step.Patterns))
	return nil
}
