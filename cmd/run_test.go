package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/flowcheck/internal/observability"
)

const loginScenarios = `
scenarios:
  - name: valid-login
    description: Operator credentials reach the welcome modal check.
    steps: [login]
    expect: [modal_check]
  - name: bad-login
    steps:
      - kind: login
        identifier: invalid_user
        secret: invalid_pass
    expect: [authentication_failed]
  - name: exploratory
    manual: true
    steps: [login]
    expect: [data_loaded]
`

func TestRunCmd_AllPass(t *testing.T) {
	resetForTest(t)
	setTarget(t)
	app := useFakeBrowser(t)
	scenarios := writeFile(t, "scenarios.yaml", loginScenarios)
	report := filepath.Join(t.TempDir(), "out", "report.json")

	out, err := executeCommand(t, "run", "--scenarios", scenarios, "--parallel", "2", "--report", report)
	require.NoError(t, err, out)

	assert.Contains(t, out, "✓ valid-login")
	assert.Contains(t, out, "✓ bad-login")
	assert.NotContains(t, out, "exploratory", "manual scenarios only run when named")
	assert.Contains(t, out, "2 passed, 0 failed")
	assert.Equal(t, 2, app.count())

	data, err := os.ReadFile(report)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario": "valid-login"`)
	assert.Contains(t, string(data), `"state": "authentication_failed"`)
	assert.NotContains(t, string(data), testPass)
}

func TestRunCmd_FailedScenario(t *testing.T) {
	resetForTest(t)
	setTarget(t)
	useFakeBrowser(t)
	scenarios := writeFile(t, "scenarios.yaml", loginScenarios)

	out, err := executeCommand(t, "run", "--scenarios", scenarios, "--scenario", "exploratory")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errScenariosFailed))
	assert.Contains(t, out, "✗ exploratory")
	assert.Contains(t, out, "ended in modal_check")
	assert.Contains(t, out, "0 passed, 1 failed")
}

func TestRunCmd_UnknownScenario(t *testing.T) {
	resetForTest(t)
	setTarget(t)
	app := useFakeBrowser(t)

	_, err := executeCommand(t, "run", "--scenario", "does-not-exist")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown scenario "does-not-exist"`)
	assert.Zero(t, app.count(), "nothing launches before the selection is valid")
}

func TestRunCmd_BadScenarioFile(t *testing.T) {
	resetForTest(t)
	setTarget(t)
	useFakeBrowser(t)
	scenarios := writeFile(t, "scenarios.yaml", "scenarios:\n  - name: a\n    steps: [teleport]\n")

	_, err := executeCommand(t, "run", "--scenarios", scenarios)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading scenarios")
}

func TestScenariosCmd(t *testing.T) {
	resetForTest(t)

	out, err := executeCommand(t, "scenarios")
	require.NoError(t, err, "listing needs no target configuration")
	assert.Contains(t, out, "invalid-credentials")
	assert.Contains(t, out, "no-devices (manual)")
	assert.Contains(t, out, "authentication_failed")

	scenarios := writeFile(t, "scenarios.yaml", loginScenarios)
	observability.ResetForTest()
	out, err = executeCommand(t, "scenarios", "--scenarios", scenarios)
	require.NoError(t, err)
	assert.Contains(t, out, "valid-login")
	assert.Contains(t, out, "Operator credentials reach the welcome modal check.")
	assert.NotContains(t, out, "invalid-credentials")
}
