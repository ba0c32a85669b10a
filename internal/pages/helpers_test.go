// internal/pages/helpers_test.go
package pages

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/flowcheck/internal/browser/browsertest"
	"github.com/xkilldash9x/flowcheck/internal/config"
	"github.com/xkilldash9x/flowcheck/internal/interact"
	"github.com/xkilldash9x/flowcheck/internal/locator"
	"github.com/xkilldash9x/flowcheck/internal/wait"
)

const (
	testTimeout  = 300 * time.Millisecond
	testInterval = 5 * time.Millisecond
	testCheckTimeout    = 40 * time.Millisecond
)

func testLocators() config.LocatorConfig {
	return config.LocatorConfig{
		Login: config.LoginLocators{
			Identifier:       "css=#email",
			Secret:           "css=#password",
			Submit:           "css=button[type=submit]",
			ErrorIndicator:   "css=.login-error",
			SuccessIndicator: "text=Manage",
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
			Fields:           map[string]string{"status": ".device-status", "last_seen": ".device-last-seen"},
			LoadingIndicator: "css=.spinner",
			EmptyIndicator:   "text=No Device Users",
			ErrorIndicator:   "css=.device-list-error",
		},
		Account: config.AccountLocators{
			Link:        "xpath=//a[contains(@href, 'account')]",
			LoginButton: "text=LOG IN",
		},
	}
}

// ref parses raw the way the pages do. The fake driver matches on strategy
// and value only, so the name is irrelevant.
func ref(raw string) locator.Ref {
	return locator.MustParse("", raw)
}

func newKit(t *testing.T) (Toolkit, *browsertest.Driver) {
	t.Helper()
	d := browsertest.New()
	logger := zaptest.NewLogger(t)
	return Toolkit{
		Driver: d,
		Wait:   wait.New(d, testTimeout, testInterval, logger),
		Act:    interact.New(d, logger),
		Logger: logger,
	}, d
}

func newLoginPage(t *testing.T, kit Toolkit, mutate ...func(*config.LoginLocators)) *LoginPage {
	t.Helper()
	locs := testLocators().Login
	for _, m := range mutate {
		m(&locs)
	}
	page, err := NewLoginPage(kit, locs, testCheckTimeout)
	require.NoError(t, err)
	return page
}

func newManagePage(t *testing.T, kit Toolkit) *ManagePage {
	t.Helper()
	page, err := NewManagePage(kit, testLocators().Manage, 2)
	require.NoError(t, err)
	return page
}
