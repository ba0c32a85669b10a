// internal/flow/app_test.go
package flow

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/flowcheck/internal/browser/browsertest"
	"github.com/xkilldash9x/flowcheck/internal/config"
	"github.com/xkilldash9x/flowcheck/internal/interact"
	"github.com/xkilldash9x/flowcheck/internal/locator"
	"github.com/xkilldash9x/flowcheck/internal/pages"
	"github.com/xkilldash9x/flowcheck/internal/wait"
)

const (
	testTimeout  = 300 * time.Millisecond
	testInterval = 5 * time.Millisecond
	testCheckTimeout    = 40 * time.Millisecond
	loadDelay    = 15 * time.Millisecond

	validUser = "operator@example.test"
	validPass = "s3cret"
)

var testLocators = config.LocatorConfig{
	Login: config.LoginLocators{
		Identifier:       "css=#email",
		Secret:           "css=#password",
		Submit:           "css=button[type=submit]",
		ErrorIndicator:   "css=.login-error",
		SuccessIndicator: "css=nav .user-menu",
	},
	Modal: config.ModalLocators{
		Container: "css=.welcome-modal",
		Accept:    "text=Accept",
	},
	Manage: config.ManageLocators{
		Menu:             "text=Manage",
		DeviceUsers:      "text=Device Users",
		ListContainer:    "css=table.devices tbody",
		Row:              "tr",
		NameField:        ".device-name",
		Fields:           map[string]string{"status": ".device-status"},
		LoadingIndicator: "css=.spinner",
		EmptyIndicator:   "text=No Device Users",
		ErrorIndicator:   "css=.device-list-error",
	},
	Account: config.AccountLocators{
		Link:        "xpath=//a[contains(@href, 'account')]",
		LoginButton: "text=LOG IN",
	},
}

func ref(raw string) locator.Ref { return locator.MustParse("", raw) }

// fakeApp scripts the application under test on top of the in-memory driver.
type fakeApp struct {
	d *browsertest.Driver

	// modal shows the welcome modal after login; stuckModal ignores Accept.
	modal      bool
	stuckModal bool
	devices    []string
	// noLoginForm leaves the login page blank.
	noLoginForm bool
	noMenu      bool

	failing bool

	// issueToken is stored as the session token on a successful login;
	// stickyToken ignores attempts to clear it.
	issueToken  string
	stickyToken bool
	token       string
}

func newFakeApp(t *testing.T, configure func(a *fakeApp)) *fakeApp {
	t.Helper()
	a := &fakeApp{d: browsertest.New()}
	if configure != nil {
		configure(a)
	}
	a.d.OnFailRequests = func(_ *browsertest.Driver, patterns []string) { a.failing = true }
	a.d.OnEvaluate = func(script string, res interface{}) error {
		switch out := res.(type) {
		case *string:
			*out = a.token
		case *bool:
			if !a.stickyToken {
				a.token = ""
			}
			*out = true
		}
		return nil
	}
	a.d.OnReload = func(d *browsertest.Driver) error {
		if d.CookiesDeleted() > 0 {
			d.Remove(ref(testLocators.Login.SuccessIndicator))
			d.Remove(ref(testLocators.Manage.Menu))
			a.showLoginForm()
		}
		return nil
	}
	a.showLoginForm()
	a.showAccountLink()
	return a
}

func (a *fakeApp) showLoginForm() {
	if a.noLoginForm {
		return
	}
	locs := testLocators.Login
	identifier, secret := browsertest.Visible(""), browsertest.Visible("")
	submit := browsertest.Visible("Login")
	submit.OnClick = func(d *browsertest.Driver) {
		var user, pass string
		d.Update(func() { user, pass = identifier.State.Value, secret.State.Value })
		if user != validUser || pass != validPass {
			d.Set(ref(locs.ErrorIndicator), browsertest.Visible("Invalid username or password"))
			return
		}
		a.token = a.issueToken
		d.Remove(ref(locs.Identifier))
		d.Remove(ref(locs.Secret))
		d.Remove(ref(locs.Submit))
		d.Remove(ref(testLocators.Account.Link))
		d.Remove(ref(testLocators.Account.LoginButton))
		a.showHome()
	}
	a.d.Set(ref(locs.Identifier), identifier)
	a.d.Set(ref(locs.Secret), secret)
	a.d.Set(ref(locs.Submit), submit)
}

func (a *fakeApp) showAccountLink() {
	link := browsertest.Visible("Account")
	link.OnClick = func(d *browsertest.Driver) {
		button := browsertest.Visible("LOG IN")
		d.Set(ref(testLocators.Account.LoginButton), button)
		d.SetTabOrder(browsertest.Visible("Home"), link, button)
	}
	a.d.Set(ref(testLocators.Account.Link), link)
}

func (a *fakeApp) showHome() {
	d := a.d
	d.Set(ref(testLocators.Login.SuccessIndicator), browsertest.Visible("operator"))
	if a.modal {
		modalLocs := testLocators.Modal
		d.Set(ref(modalLocs.Container), browsertest.Visible("Welcome!"))
		accept := browsertest.Visible("Accept")
		if !a.stuckModal {
			accept.OnClick = func(d *browsertest.Driver) {
				d.Remove(ref(modalLocs.Container))
				d.Remove(ref(modalLocs.Accept))
			}
		}
		d.Set(ref(modalLocs.Accept), accept)
	}
	if a.noMenu {
		return
	}

	locs := testLocators.Manage
	menu := browsertest.Visible("Manage")
	menu.OnClick = func(d *browsertest.Driver) {
		users := browsertest.Visible("Device Users")
		users.OnClick = a.loadDevices
		d.Set(ref(locs.DeviceUsers), users)
	}
	d.Set(ref(locs.Menu), menu)
}

func (a *fakeApp) loadDevices(d *browsertest.Driver) {
	locs := testLocators.Manage
	d.Set(ref(locs.LoadingIndicator), browsertest.Visible(""))
	d.Schedule(loadDelay, func(d *browsertest.Driver) {
		d.Remove(ref(locs.LoadingIndicator))
		switch {
		case a.failing:
			d.Set(ref(locs.ErrorIndicator), browsertest.Visible("Unable to load devices"))
		case len(a.devices) == 0:
			d.Set(ref(locs.EmptyIndicator), browsertest.Visible("No Device Users"))
		default:
			d.Set(ref(locs.ListContainer), browsertest.Container(deviceRows(a.devices...)))
		}
	})
}

func deviceRows(names ...string) string {
	var b strings.Builder
	b.WriteString("<tbody>")
	for _, name := range names {
		fmt.Fprintf(&b, `<tr><td class="device-name">%s</td><td class="device-status">Online</td></tr>`, name)
	}
	b.WriteString("</tbody>")
	return b.String()
}

func (a *fakeApp) orchestrator(t *testing.T, mutate ...func(*Options)) *Orchestrator {
	t.Helper()
	logger := zaptest.NewLogger(t)
	kit := pages.Toolkit{
		Driver: a.d,
		Wait:   wait.New(a.d, testTimeout, testInterval, logger),
		Act:    interact.New(a.d, logger),
		Logger: logger,
	}
	opts := Options{
		Credentials:      Credentials{Identifier: validUser, Secret: validPass},
		AuthCheckTimeout: testCheckTimeout,
		ModalTimeout:     testCheckTimeout,
		StablePolls:      2,
		FocusMaxTabs:     5,
	}
	for _, m := range mutate {
		m(&opts)
	}
	o, err := New(kit, testLocators, opts)
	require.NoError(t, err)
	return o
}

// touched reports whether any driver call mentioned the named locator.
func (a *fakeApp) touched(name string) bool {
	for _, call := range a.d.Calls() {
		if strings.Contains(call, name+"(") {
			return true
		}
	}
	return false
}
