// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/internal/config"
	"github.com/xkilldash9x/flowcheck/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

// skipConfig marks commands that run without a complete configuration, so
// listing scenarios works before any credentials are set up.
const skipConfig = "flowcheck/skip-config"

// Allows mocking os.Exit in tests.
var osExit = os.Exit

// flagBindings maps command flags onto the configuration keys they override.
var flagBindings = map[string]string{
	"parallel":  "runner.parallelism",
	"report":    "runner.report_file",
	"scenarios": "runner.scenario_file",
	"headless":  "browser.headless",
	"base-url":  "target.base_url",
}

type rootOptions struct {
	cfgFile string
	envFile string
}

// NewRootCommand builds a fresh command tree. Every invocation gets its own
// viper instance, so flags never leak between runs.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "flowcheck",
		Short: "flowcheck drives a real browser through the device management workflows.",
		Long: `flowcheck logs into the device management application, dismisses the
welcome modal when it shows, opens Manage > Device Users and reports what the
device list held. Each scenario runs in its own browser session.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initialize(cmd, v, opts)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "", "config file (default is ./flowcheck.yaml or ~/.flowcheck/flowcheck.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the configuration; missing files are ignored")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newRunCmd(), newScenariosCmd(), newVersionCmd())
	return rootCmd
}

// Execute runs the root command with a signal-aware context and exits
// non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	observability.Sync()
	if err == nil {
		return
	}

	if !errors.Is(err, errScenariosFailed) {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
	}
	stop()
	osExit(1)
}

// initialize loads the dotenv file, the config file and the bound flags, then
// starts the logger and stores the validated config in the command context.
func initialize(cmd *cobra.Command, v *viper.Viper, opts *rootOptions) error {
	if err := loadDotEnv(opts.envFile); err != nil {
		return err
	}

	config.SetDefaults(v)
	if err := readConfigFile(v, opts.cfgFile); err != nil {
		return err
	}
	if err := bindFlags(cmd, v); err != nil {
		return err
	}

	load := config.NewConfigFromViper
	if cmd.Annotations[skipConfig] == "true" {
		load = config.Unmarshal
	}
	cfg, err := load(v)
	if err != nil {
		observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "flowcheck"})
		return fmt.Errorf("failed to load or validate config: %w", err)
	}

	observability.InitializeLogger(cfg.Logger)
	observability.GetLogger().Info("Starting flowcheck",
		zap.String("version", Version),
		zap.String("config_file", v.ConfigFileUsed()),
		zap.String("base_url", cfg.Target.BaseURL))

	cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
	return nil
}

// loadDotEnv loads path into the environment without overriding variables
// that are already set.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("expanding env file path: %w", err)
	}
	err = godotenv.Load(expanded)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading env file %s: %w", expanded, err)
	}
	return nil
}

func readConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return fmt.Errorf("expanding config path: %w", err)
		}
		v.SetConfigFile(expanded)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.flowcheck")
		v.SetConfigName("flowcheck")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			// No config file; defaults, env and flags are enough.
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// bindFlags binds the flags the running command defines. Only flags the user
// set take precedence over the file and environment.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	for name, key := range flagBindings {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding --%s: %w", name, err)
		}
	}
	return nil
}

// configFrom returns the configuration stored by initialize.
func configFrom(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not initialized")
	}
	return cfg, nil
}
