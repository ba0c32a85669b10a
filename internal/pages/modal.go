// internal/pages/modal.go
package pages

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/internal/config"
	"github.com/xkilldash9x/flowcheck/internal/locator"
	"github.com/xkilldash9x/flowcheck/internal/wait"
)

// ModalOutcome is the result of handling the optional welcome modal.
type ModalOutcome int

const (
	// ModalAbsent means no modal appeared within the modal timeout.
	ModalAbsent ModalOutcome = iota
	// ModalDismissed means the modal appeared and was closed.
	ModalDismissed
	// ModalFailed means the modal appeared but could not be closed.
	ModalFailed
)

func (o ModalOutcome) String() string {
	switch o {
	case ModalAbsent:
		return "absent"
	case ModalDismissed:
		return "dismissed"
	case ModalFailed:
		return "failed"
	default:
		return fmt.Sprintf("ModalOutcome(%d)", int(o))
	}
}

// MarshalText renders the outcome by name in reports.
func (o ModalOutcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// WelcomeModalPage is the welcome dialog some accounts see after logging in.
type WelcomeModalPage struct {
	kit       Toolkit
	container locator.Ref
	accept    locator.Ref
	timeout   time.Duration
}

var _ Page = (*WelcomeModalPage)(nil)

// NewWelcomeModalPage parses the modal locators. An empty container locator
// means the application has no welcome modal; Dismiss then always reports
// ModalAbsent.
func NewWelcomeModalPage(kit Toolkit, locs config.ModalLocators, timeout time.Duration) (*WelcomeModalPage, error) {
	p := &parser{page: "welcome_modal"}
	page := &WelcomeModalPage{
		kit:       kit,
		container: p.ref("modal", locs.Container),
		timeout:   timeout,
	}
	if page.container.IsZero() {
		page.accept = p.ref("modal_accept", locs.Accept)
	} else {
		page.accept = p.required("modal_accept", locs.Accept)
	}
	if err := p.err(); err != nil {
		return nil, err
	}
	return page, nil
}

func (p *WelcomeModalPage) Name() string { return "welcome_modal" }

func (p *WelcomeModalPage) Locators() []locator.Ref { return nonZero(p.container, p.accept) }

// Dismiss closes the modal if it shows up within the modal timeout. Absence is
// a normal outcome. Only a modal that is shown but cannot be closed yields
// ModalFailed together with a *ModalError.
func (p *WelcomeModalPage) Dismiss(ctx context.Context) (ModalOutcome, error) {
	_, shown, err := p.kit.Wait.Optional(ctx, p.container, wait.Visibility, p.timeout)
	if err != nil {
		return ModalFailed, err
	}
	if !shown {
		p.kit.Logger.Info("Welcome modal not displayed, continuing.")
		return ModalAbsent, nil
	}

	button, err := p.kit.Wait.WaitFor(ctx, p.accept, wait.Actionable, 0)
	if err != nil {
		return ModalFailed, &ModalError{Cause: err}
	}
	if err := p.kit.Act.Click(ctx, button); err != nil {
		return ModalFailed, &ModalError{Cause: err}
	}
	if err := p.kit.Wait.WaitForAbsent(ctx, p.container, 0); err != nil {
		return ModalFailed, &ModalError{Cause: err}
	}

	p.kit.Logger.Info("Welcome modal dismissed.", zap.Stringer("button", button))
	return ModalDismissed, nil
}
