package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/internal/browser"
	"github.com/xkilldash9x/flowcheck/internal/config"
	"github.com/xkilldash9x/flowcheck/internal/flow"
	"github.com/xkilldash9x/flowcheck/internal/observability"
	"github.com/xkilldash9x/flowcheck/internal/runner"
)

// errScenariosFailed is returned by run when at least one scenario failed.
// The summary already says which, so Execute does not print it again.
var errScenariosFailed = errors.New("one or more scenarios failed")

// managerOptions are passed to every browser.Manager the run command creates.
// Tests swap in a fake launcher.
var managerOptions []browser.ManagerOption

const shutdownTimeout = 10 * time.Second

func newRunCmd() *cobra.Command {
	var names []string

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Runs scenarios against the configured target",
		Long: `Runs the selected scenarios, each in its own browser session, prints a
summary and optionally writes a JSON or YAML report.

Without --scenario every scenario not marked manual runs.`,
		Example: `  flowcheck run
  flowcheck run --scenario invalid-credentials --scenario no-devices
  flowcheck run --scenarios ./scenarios.yaml --parallel 4 --report out/report.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			return runScenarios(cmd, cfg, names)
		},
	}

	runCmd.Flags().StringSliceVarP(&names, "scenario", "s", nil, "scenario to run; repeat for several (default: all non-manual)")
	runCmd.Flags().String("scenarios", "", "YAML scenario file (default: the built-in scenarios)")
	runCmd.Flags().IntP("parallel", "p", 1, "number of scenarios to run at once")
	runCmd.Flags().StringP("report", "o", "", "write a report to this file; .json selects JSON, anything else YAML")
	runCmd.Flags().Bool("headless", true, "run Chrome without a window")
	runCmd.Flags().String("base-url", "", "URL of the application's login page")
	return runCmd
}

func runScenarios(cmd *cobra.Command, cfg *config.Config, names []string) error {
	ctx := cmd.Context()
	logger := observability.GetLogger()

	all, err := loadScenarios(cfg)
	if err != nil {
		return err
	}
	selected, err := flow.Select(all, names...)
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		return errors.New("no scenarios selected")
	}

	manager := browser.NewManager(cfg, logger, managerOptions...)
	defer func() {
		// The run context may already be cancelled; shutdown gets its own.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Browser sessions did not shut down cleanly.", zap.Error(err))
		}
	}()

	report, runErr := runner.New(cfg, manager, logger).Run(ctx, selected)
	printSummary(cmd.OutOrStdout(), report)

	if path := cfg.Runner.ReportFile; path != "" {
		if err := report.WriteFile(path); err != nil {
			return err
		}
		logger.Info("Report written.", zap.String("path", path), zap.String("run_id", report.RunID))
	}

	if runErr != nil {
		return runErr
	}
	if !report.OK() {
		return errScenariosFailed
	}
	return nil
}

// loadScenarios reads runner.scenario_file, or the built-in scenarios when
// it is unset.
func loadScenarios(cfg *config.Config) ([]flow.Scenario, error) {
	if cfg.Runner.ScenarioFile == "" {
		return flow.BuiltinScenarios(), nil
	}
	scenarios, err := flow.LoadScenarios(cfg.Runner.ScenarioFile)
	if err != nil {
		return nil, fmt.Errorf("loading scenarios: %w", err)
	}
	return scenarios, nil
}
