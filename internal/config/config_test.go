// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns the defaults plus the four required target inputs.
func validConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Target.BaseURL = "https://app.example.test"
	cfg.Target.Identifier = "operator@example.test"
	cfg.Target.Secret = "s3cret"
	return cfg
}

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "flowcheck", cfg.Logger.ServiceName)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 10*time.Second, cfg.Target.DefaultTimeout())
	assert.Equal(t, 100*time.Millisecond, cfg.Target.PollInterval())
	assert.Equal(t, 2, cfg.Target.StablePolls)
	assert.Equal(t, 1366, cfg.Browser.Viewport["width"])
	assert.Equal(t, ".device-status", cfg.Locators.Manage.Fields["status"])
	assert.Equal(t, "xpath=//h4[normalize-space()='No Device Users']", cfg.Locators.Manage.EmptyIndicator)
	assert.Equal(t, 1, cfg.Runner.Parallelism)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("Required target inputs", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Target.DefaultTimeoutMs = 0
		err := cfg.Validate()
		require.Error(t, err)
		for _, key := range []string{"target.base_url", "target.identifier", "target.secret", "target.default_timeout_ms"} {
			assert.Contains(t, err.Error(), key)
		}
	})

	t.Run("Poll interval must be sub-second", func(t *testing.T) {
		cfg := validConfig()
		cfg.Target.PollIntervalMs = 1500
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "target.poll_interval_ms")
	})

	t.Run("Runner parallelism", func(t *testing.T) {
		cfg := validConfig()
		cfg.Runner.Parallelism = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "runner.parallelism must be a positive integer")
	})

	t.Run("Required locators", func(t *testing.T) {
		cfg := validConfig()
		cfg.Locators.Manage.ListContainer = " "
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "locators.manage.list_container is a required configuration field")
	})

	t.Run("Session token source", func(t *testing.T) {
		cfg := validConfig()
		for _, ok := range []string{"", "localStorage=access_token", "sessionStorage=jwt", "cookie=session"} {
			cfg.Target.SessionToken = ok
			assert.NoError(t, cfg.Validate(), ok)
		}
		for _, bad := range []string{"indexedDB=token", "cookie=", "access_token"} {
			cfg.Target.SessionToken = bad
			err := cfg.Validate()
			require.Error(t, err, bad)
			assert.Contains(t, err.Error(), "target.session_token")
		}
	})

	t.Run("Optional locators may be empty", func(t *testing.T) {
		cfg := validConfig()
		cfg.Locators.Modal = ModalLocators{}
		cfg.Locators.Manage.LoadingIndicator = ""
		cfg.Locators.Login.SuccessIndicator = ""
		assert.NoError(t, cfg.Validate())
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
target:
  base_url: "https://devices.example.test"
  identifier: "admin"
  secret: "from-file"
  default_timeout_ms: 2500
locators:
  manage:
    fields:
      firmware: ".fw"
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "https://devices.example.test", cfg.Target.BaseURL)
		assert.Equal(t, 2500*time.Millisecond, cfg.Target.DefaultTimeout())
		assert.Equal(t, ".fw", cfg.Locators.Manage.Fields["firmware"])
		// Defaults survive alongside file values.
		assert.Equal(t, "info", cfg.Logger.Level)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), "target.base_url")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		t.Setenv("FLOWCHECK_TARGET_BASE_URL", "https://env.example.test")
		t.Setenv("FLOWCHECK_TARGET_IDENTIFIER", "env-user")
		t.Setenv("FLOWCHECK_TARGET_SECRET", "env-secret")

		v := viper.New()
		SetDefaults(v)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "https://env.example.test", cfg.Target.BaseURL)
		assert.Equal(t, "env-user", cfg.Target.Identifier)
		assert.Equal(t, "env-secret", cfg.Target.Secret)
	})
}

func TestUnmarshalSkipsValidation(t *testing.T) {
	t.Setenv("FLOWCHECK_RUNNER_SCENARIO_FILE", "~/scenarios.yaml")
	v := viper.New()
	SetDefaults(v)

	cfg, err := Unmarshal(v)
	require.NoError(t, err)
	assert.Empty(t, cfg.Target.BaseURL)
	assert.Equal(t, "~/scenarios.yaml", cfg.Runner.ScenarioFile)
	assert.Error(t, cfg.Validate())
}
