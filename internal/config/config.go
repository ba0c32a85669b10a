// File: internal/config/config.go
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides (FLOWCHECK_TARGET_SECRET, ...).
const EnvPrefix = "FLOWCHECK"

// Config holds the entire application configuration. It is loaded once before
// any browser session opens and treated as read-only afterwards.
type Config struct {
	Logger   LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Target   TargetConfig  `mapstructure:"target" yaml:"target"`
	Locators LocatorConfig `mapstructure:"locators" yaml:"locators"`
	Runner   RunnerConfig  `mapstructure:"runner" yaml:"runner"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the Chrome instances driven by the sessions.
type BrowserConfig struct {
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	DisableCache    bool           `mapstructure:"disable_cache" yaml:"disable_cache"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ExecPath        string         `mapstructure:"exec_path" yaml:"exec_path"`
	Args            []string       `mapstructure:"args" yaml:"args"`
	Viewport        map[string]int `mapstructure:"viewport" yaml:"viewport"`
	// LaunchTimeoutMs bounds browser start-up plus the first navigation.
	LaunchTimeoutMs int  `mapstructure:"launch_timeout_ms" yaml:"launch_timeout_ms"`
	Debug           bool `mapstructure:"debug" yaml:"debug"`
}

// LaunchTimeout returns LaunchTimeoutMs as a duration.
func (b BrowserConfig) LaunchTimeout() time.Duration {
	return time.Duration(b.LaunchTimeoutMs) * time.Millisecond
}

// TargetConfig describes the application under test. BaseURL, Identifier,
// Secret and DefaultTimeoutMs are all required.
type TargetConfig struct {
	BaseURL          string `mapstructure:"base_url" yaml:"base_url"`
	Identifier       string `mapstructure:"identifier" yaml:"identifier"`
	Secret           string `mapstructure:"secret" yaml:"-"`
	DefaultTimeoutMs int    `mapstructure:"default_timeout_ms" yaml:"default_timeout_ms"`
	PollIntervalMs   int    `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
	// AuthCheckTimeoutMs bounds the post-submit check for a login error
	// indicator when no success indicator is configured.
	AuthCheckTimeoutMs int `mapstructure:"auth_check_timeout_ms" yaml:"auth_check_timeout_ms"`
	// ModalTimeoutMs bounds the wait for the optional welcome modal.
	ModalTimeoutMs int `mapstructure:"modal_timeout_ms" yaml:"modal_timeout_ms"`
	// StablePolls is how many consecutive identical row counts mark the device list as settled.
	StablePolls int `mapstructure:"stable_polls" yaml:"stable_polls"`
	// SessionToken is where the application keeps its session JWT, as
	// "localStorage=<key>", "sessionStorage=<key>" or "cookie=<name>".
	// Empty disables the token checks.
	SessionToken string `mapstructure:"session_token" yaml:"session_token"`
}

// DefaultTimeout returns DefaultTimeoutMs as a duration.
func (t TargetConfig) DefaultTimeout() time.Duration {
	return time.Duration(t.DefaultTimeoutMs) * time.Millisecond
}

// PollInterval returns PollIntervalMs as a duration.
func (t TargetConfig) PollInterval() time.Duration {
	return time.Duration(t.PollIntervalMs) * time.Millisecond
}

// AuthCheckTimeout returns AuthCheckTimeoutMs as a duration.
func (t TargetConfig) AuthCheckTimeout() time.Duration {
	return time.Duration(t.AuthCheckTimeoutMs) * time.Millisecond
}

// ModalTimeout returns ModalTimeoutMs as a duration.
func (t TargetConfig) ModalTimeout() time.Duration {
	return time.Duration(t.ModalTimeoutMs) * time.Millisecond
}

// LocatorConfig holds the locator strings for every page object, in the
// "strategy=value" form understood by locator.Parse. Empty values mark an
// optional element the page does not render.
type LocatorConfig struct {
	Login   LoginLocators   `mapstructure:"login" yaml:"login"`
	Modal   ModalLocators   `mapstructure:"modal" yaml:"modal"`
	Manage  ManageLocators  `mapstructure:"manage" yaml:"manage"`
	Account AccountLocators `mapstructure:"account" yaml:"account"`
}

// LoginLocators covers the login form.
type LoginLocators struct {
	Identifier       string `mapstructure:"identifier" yaml:"identifier"`
	Secret           string `mapstructure:"secret" yaml:"secret"`
	Submit           string `mapstructure:"submit" yaml:"submit"`
	ErrorIndicator   string `mapstructure:"error_indicator" yaml:"error_indicator"`
	SuccessIndicator string `mapstructure:"success_indicator" yaml:"success_indicator"`
}

// ModalLocators covers the optional welcome modal.
type ModalLocators struct {
	Container string `mapstructure:"container" yaml:"container"`
	Accept    string `mapstructure:"accept" yaml:"accept"`
}

// ManageLocators covers the Manage section and its device list.
type ManageLocators struct {
	Menu             string            `mapstructure:"menu" yaml:"menu"`
	DeviceUsers      string            `mapstructure:"device_users" yaml:"device_users"`
	ListContainer    string            `mapstructure:"list_container" yaml:"list_container"`
	Row              string            `mapstructure:"row" yaml:"row"`
	NameField        string            `mapstructure:"name_field" yaml:"name_field"`
	Fields           map[string]string `mapstructure:"fields" yaml:"fields"`
	LoadingIndicator string            `mapstructure:"loading_indicator" yaml:"loading_indicator"`
	EmptyIndicator   string            `mapstructure:"empty_indicator" yaml:"empty_indicator"`
	ErrorIndicator   string            `mapstructure:"error_indicator" yaml:"error_indicator"`
}

// AccountLocators covers the account section and its guest login button.
type AccountLocators struct {
	Link        string `mapstructure:"link" yaml:"link"`
	LoginButton string `mapstructure:"login_button" yaml:"login_button"`
}

// RunnerConfig tunes how the CLI runs scenarios.
type RunnerConfig struct {
	ScenarioFile string `mapstructure:"scenario_file" yaml:"scenario_file"`
	ReportFile   string `mapstructure:"report_file" yaml:"report_file"`
	Parallelism  int    `mapstructure:"parallelism" yaml:"parallelism"`
	// LaunchRate is the maximum number of browser launches per second.
	LaunchRate        float64 `mapstructure:"launch_rate" yaml:"launch_rate"`
	ScenarioTimeoutMs int     `mapstructure:"scenario_timeout_ms" yaml:"scenario_timeout_ms"`
	FocusMaxTabs      int     `mapstructure:"focus_max_tabs" yaml:"focus_max_tabs"`
}

// ScenarioTimeout returns ScenarioTimeoutMs as a duration.
func (r RunnerConfig) ScenarioTimeout() time.Duration {
	return time.Duration(r.ScenarioTimeoutMs) * time.Millisecond
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "flowcheck")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_cache", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.launch_timeout_ms", 60000)
	v.SetDefault("browser.viewport", map[string]int{"width": 1366, "height": 900})
	v.SetDefault("browser.debug", false)

	// -- Target --
	v.SetDefault("target.default_timeout_ms", 10000)
	v.SetDefault("target.poll_interval_ms", 100)
	v.SetDefault("target.auth_check_timeout_ms", 3000)
	v.SetDefault("target.modal_timeout_ms", 5000)
	v.SetDefault("target.stable_polls", 2)
	v.SetDefault("target.session_token", "")

	// -- Locators --
	v.SetDefault("locators.login.identifier", "css=input[name='email'], input[type='email'], input[name='username']")
	v.SetDefault("locators.login.secret", "css=input[type='password']")
	v.SetDefault("locators.login.submit", "xpath=//button[@type='submit' or normalize-space()='Login' or normalize-space()='LOG IN']")
	v.SetDefault("locators.login.error_indicator", "css=.error, .alert-danger, [role='alert']")
	v.SetDefault("locators.login.success_indicator", "xpath=//a[normalize-space()='Manage']")
	v.SetDefault("locators.modal.container", "css=[role='dialog'], .modal")
	v.SetDefault("locators.modal.accept", "xpath=//*[@role='dialog' or contains(@class,'modal')]//button[normalize-space()='Accept' or normalize-space()='OK' or normalize-space()='Close']")
	v.SetDefault("locators.manage.menu", "xpath=//a[normalize-space()='Manage']")
	v.SetDefault("locators.manage.device_users", "xpath=//a[normalize-space()='Device Users']")
	v.SetDefault("locators.manage.list_container", "css=table.devices tbody, ul.device-list")
	v.SetDefault("locators.manage.row", "tr, li")
	v.SetDefault("locators.manage.name_field", ".device-name, td:first-child")
	v.SetDefault("locators.manage.fields", map[string]string{
		"status":    ".device-status",
		"last_seen": ".device-last-seen",
	})
	v.SetDefault("locators.manage.loading_indicator", "css=.spinner, .loading, [aria-busy='true']")
	v.SetDefault("locators.manage.empty_indicator", "xpath=//h4[normalize-space()='No Device Users']")
	v.SetDefault("locators.manage.error_indicator", "css=.device-list-error")
	v.SetDefault("locators.account.link", "xpath=//a[contains(@href, 'account') or contains(text(), 'Account')]")
	v.SetDefault("locators.account.login_button", "xpath=//button[text()='LOG IN' or text()='Login']")

	// -- Runner --
	v.SetDefault("runner.scenario_file", "")
	v.SetDefault("runner.report_file", "")
	v.SetDefault("runner.parallelism", 1)
	v.SetDefault("runner.launch_rate", 2.0)
	v.SetDefault("runner.scenario_timeout_ms", 180000)
	v.SetDefault("runner.focus_max_tabs", 10)
}

// NewConfigFromViper creates a new configuration instance from a viper object
// and validates it.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	cfg, err := Unmarshal(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Unmarshal reads the configuration with environment overrides applied but
// does not validate it.
func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Credentials normally come from the environment; bind them explicitly so
	// Unmarshal sees them even when no config file mentions the keys.
	_ = v.BindEnv("target.base_url")
	_ = v.BindEnv("target.identifier")
	_ = v.BindEnv("target.secret")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Target.Validate(); err != nil {
		return err
	}
	if c.Runner.Parallelism <= 0 {
		return fmt.Errorf("runner.parallelism must be a positive integer")
	}
	if c.Runner.LaunchRate <= 0 {
		return fmt.Errorf("runner.launch_rate must be positive")
	}
	return c.Locators.Validate()
}

// Validate checks the target section. All four core inputs are required.
func (t *TargetConfig) Validate() error {
	var missing []string
	if t.BaseURL == "" {
		missing = append(missing, "target.base_url")
	}
	if t.Identifier == "" {
		missing = append(missing, "target.identifier")
	}
	if t.Secret == "" {
		missing = append(missing, "target.secret")
	}
	if t.DefaultTimeoutMs <= 0 {
		missing = append(missing, "target.default_timeout_ms")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required configuration missing: %s", strings.Join(missing, ", "))
	}
	if t.PollIntervalMs <= 0 || t.PollIntervalMs >= 1000 {
		return fmt.Errorf("target.poll_interval_ms must be between 1 and 999")
	}
	if t.StablePolls < 1 {
		return fmt.Errorf("target.stable_polls must be at least 1")
	}
	if t.SessionToken != "" {
		store, key, ok := strings.Cut(t.SessionToken, "=")
		if !ok || key == "" || !slices.Contains(tokenStores, store) {
			return fmt.Errorf("target.session_token must be one of %s followed by =<key>, got %q",
				strings.Join(tokenStores, ", "), t.SessionToken)
		}
	}
	return nil
}

var tokenStores = []string{"localStorage", "sessionStorage", "cookie"}

// Validate checks that every locator a workflow cannot do without is present.
func (l *LocatorConfig) Validate() error {
	required := []struct{ key, val string }{
		{"locators.login.identifier", l.Login.Identifier},
		{"locators.login.secret", l.Login.Secret},
		{"locators.login.submit", l.Login.Submit},
		{"locators.manage.menu", l.Manage.Menu},
		{"locators.manage.device_users", l.Manage.DeviceUsers},
		{"locators.manage.list_container", l.Manage.ListContainer},
		{"locators.manage.row", l.Manage.Row},
	}
	for _, r := range required {
		if strings.TrimSpace(r.val) == "" {
			return fmt.Errorf("%s is a required configuration field", r.key)
		}
	}
	return nil
}
