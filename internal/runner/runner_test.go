// internal/runner/runner_test.go
package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/flowcheck/internal/browser"
	"github.com/xkilldash9x/flowcheck/internal/browser/browsertest"
	"github.com/xkilldash9x/flowcheck/internal/config"
	"github.com/xkilldash9x/flowcheck/internal/flow"
	"github.com/xkilldash9x/flowcheck/internal/locator"
)

func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Target.BaseURL = "https://app.example.test/login"
	cfg.Target.Identifier = "operator@example.test"
	cfg.Target.Secret = "s3cret"
	cfg.Target.DefaultTimeoutMs = 300
	cfg.Target.PollIntervalMs = 5
	cfg.Target.AuthCheckTimeoutMs = 40
	cfg.Target.ModalTimeoutMs = 40
	cfg.Runner.LaunchRate = 1000
	cfg.Runner.Parallelism = 2
	return cfg
}

// loginApp launches drivers that render only a login form.
type loginApp struct {
	cfg *config.Config
	err error

	mu      sync.Mutex
	drivers []*browsertest.Driver
}

func (a *loginApp) ref(raw string) locator.Ref { return locator.MustParse("", raw) }

func (a *loginApp) launch(ctx context.Context, _ config.BrowserConfig, _ *zap.Logger) (browser.Driver, error) {
	if a.err != nil {
		return nil, a.err
	}
	locs := a.cfg.Locators.Login
	d := browsertest.New()
	identifier, secret := browsertest.Visible(""), browsertest.Visible("")
	submit := browsertest.Visible("Login")
	submit.OnClick = func(d *browsertest.Driver) {
		var user, pass string
		d.Update(func() { user, pass = identifier.State.Value, secret.State.Value })
		if user == a.cfg.Target.Identifier && pass == a.cfg.Target.Secret {
			d.Set(a.ref(locs.SuccessIndicator), browsertest.Visible("Manage"))
			return
		}
		d.Set(a.ref(locs.ErrorIndicator), browsertest.Visible("Invalid username or password"))
	}
	d.Set(a.ref(locs.Identifier), identifier)
	d.Set(a.ref(locs.Secret), secret)
	d.Set(a.ref(locs.Submit), submit)

	a.mu.Lock()
	a.drivers = append(a.drivers, d)
	a.mu.Unlock()
	return d, nil
}

func (a *loginApp) closes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, d := range a.drivers {
		n += d.Closes()
	}
	return n
}

func newTestRunner(t *testing.T, cfg *config.Config, app *loginApp) (*Runner, *browser.Manager) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	m := browser.NewManager(cfg, logger, browser.WithLauncher(app.launch))
	return New(cfg, m, logger), m
}

var loginScenarios = []flow.Scenario{
	{Name: "valid", Steps: flow.Steps(flow.StepLogin), Expect: []flow.State{flow.StateModalCheck}},
	{
		Name:   "invalid",
		Steps:  []flow.Step{{Kind: flow.StepLogin, Identifier: "invalid_user", Secret: "invalid_pass"}},
		Expect: []flow.State{flow.StateAuthenticationFailed},
	},
	{Name: "wrong expectation", Steps: flow.Steps(flow.StepLogin), Expect: []flow.State{flow.StateDataLoaded}},
}

func TestRun(t *testing.T) {
	cfg := testConfig()
	app := &loginApp{cfg: cfg}
	r, m := newTestRunner(t, cfg, app)

	report, err := r.Run(context.Background(), loginScenarios)
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, cfg.Target.BaseURL, report.BaseURL)
	require.Len(t, report.Outcomes, 3)
	assert.Equal(t, 2, report.Passed)
	assert.Equal(t, 1, report.Failed)
	assert.False(t, report.OK())

	valid, invalid, wrong := report.Outcomes[0], report.Outcomes[1], report.Outcomes[2]
	assert.Equal(t, "valid", valid.Scenario)
	assert.True(t, valid.Passed)
	assert.Equal(t, flow.StateModalCheck, valid.State)
	assert.NotEmpty(t, valid.SessionID)

	assert.True(t, invalid.Passed, invalid.Error)
	assert.Equal(t, flow.StateAuthenticationFailed, invalid.State)

	assert.False(t, wrong.Passed)
	assert.Contains(t, wrong.Error, "ended in modal_check")

	assert.NotEqual(t, valid.SessionID, invalid.SessionID, "every scenario gets its own session")
	assert.Equal(t, 3, app.closes(), "every session is closed exactly once")
	assert.Zero(t, m.Active())
}

func TestRunSessionStartFailure(t *testing.T) {
	cfg := testConfig()
	app := &loginApp{cfg: cfg, err: errors.New("chrome not found")}
	r, _ := newTestRunner(t, cfg, app)

	report, err := r.Run(context.Background(), loginScenarios[:1])
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	out := report.Outcomes[0]
	assert.False(t, out.Passed)
	assert.Contains(t, out.Error, "chrome not found")
	assert.Equal(t, flow.StateStart, out.State)
}

func TestRunStepFailureStillClosesSession(t *testing.T) {
	cfg := testConfig()
	app := &loginApp{cfg: cfg}
	r, m := newTestRunner(t, cfg, app)

	scenario := flow.Scenario{
		Name:  "device users missing",
		Steps: flow.Steps(flow.StepLogin, flow.StepOpenManage, flow.StepOpenDeviceUsers),
	}
	report, err := r.Run(context.Background(), []flow.Scenario{scenario})
	require.NoError(t, err)

	out := report.Outcomes[0]
	assert.False(t, out.Passed)
	assert.Equal(t, flow.StateNavigating, out.State)
	assert.Contains(t, out.Error, "device_users")
	assert.Equal(t, 1, app.closes())
	assert.Zero(t, m.Active())
}

func TestRunCancelled(t *testing.T) {
	cfg := testConfig()
	app := &loginApp{cfg: cfg}
	r, m := newTestRunner(t, cfg, app)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := r.Run(ctx, loginScenarios)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, 3, report.Failed)
	assert.Zero(t, m.Active())
}

func TestReportEncode(t *testing.T) {
	report := &Report{
		RunID:   "run-1",
		BaseURL: "https://app.example.test",
		Outcomes: []Outcome{
			{Scenario: "valid", Passed: true, State: flow.StateDataEmpty},
			{Scenario: "broken", State: flow.StateDataLoadFailed, Error: "device list never rendered"},
		},
	}
	report.tally()

	var jsonOut bytes.Buffer
	require.NoError(t, report.Encode(&jsonOut, FormatJSON))
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(jsonOut.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.EqualValues(t, 1, decoded["failed"])
	outcomes := decoded["outcomes"].([]interface{})
	assert.Equal(t, "data_empty", outcomes[0].(map[string]interface{})["state"])

	var yamlOut bytes.Buffer
	require.NoError(t, report.Encode(&yamlOut, FormatYAML))
	var back struct {
		Passed   int `yaml:"passed"`
		Outcomes []struct {
			State flow.State `yaml:"state"`
			Error string     `yaml:"error"`
		} `yaml:"outcomes"`
	}
	require.NoError(t, yaml.Unmarshal(yamlOut.Bytes(), &back))
	assert.Equal(t, 1, back.Passed)
	assert.Equal(t, flow.StateDataLoadFailed, back.Outcomes[1].State)
	assert.Equal(t, "device list never rendered", back.Outcomes[1].Error)

	assert.Error(t, report.Encode(&yamlOut, Format("xml")))
}

func TestReportWriteFile(t *testing.T) {
	report := &Report{RunID: "run-2"}
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "reports", "run.json")
	require.NoError(t, report.WriteFile(jsonPath))
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_id": "run-2"`)

	yamlPath := filepath.Join(dir, "run.yaml")
	require.NoError(t, report.WriteFile(yamlPath))
	data, err = os.ReadFile(yamlPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "run_id: run-2")
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatFor("out/report.JSON"))
	assert.Equal(t, FormatYAML, FormatFor("report.yml"))
	assert.Equal(t, FormatYAML, FormatFor("report"))
}
