// Package runner executes scenarios, each in its own browser session, and
// collects the outcomes into a report.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/flowcheck/internal/browser"
	"github.com/xkilldash9x/flowcheck/internal/config"
	"github.com/xkilldash9x/flowcheck/internal/flow"
)

// Runner runs scenarios against the configured target.
type Runner struct {
	cfg     *config.Config
	manager *browser.Manager
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New creates a Runner. Browser launches are paced by runner.launch_rate.
func New(cfg *config.Config, manager *browser.Manager, logger *zap.Logger) *Runner {
	return &Runner{
		cfg:     cfg,
		manager: manager,
		limiter: rate.NewLimiter(rate.Limit(cfg.Runner.LaunchRate), 1),
		logger:  logger.Named("runner"),
	}
}

// Run executes scenarios with at most runner.parallelism in flight. A failing
// scenario never stops the others; its failure is recorded in its Outcome.
// Run itself only fails when ctx ends before every scenario finished.
func (r *Runner) Run(ctx context.Context, scenarios []flow.Scenario) (*Report, error) {
	report := &Report{
		RunID:    uuid.New().String(),
		BaseURL:  r.cfg.Target.BaseURL,
		Started:  time.Now(),
		Outcomes: make([]Outcome, len(scenarios)),
	}
	logger := r.logger.With(zap.String("run_id", report.RunID))
	logger.Info("Starting scenario run.",
		zap.Int("scenarios", len(scenarios)),
		zap.Int("parallelism", r.cfg.Runner.Parallelism))

	var g errgroup.Group
	g.SetLimit(r.cfg.Runner.Parallelism)
	for i, s := range scenarios {
		g.Go(func() error {
			report.Outcomes[i] = r.runScenario(ctx, s, logger)
			return nil
		})
	}
	_ = g.Wait()

	report.Finished = time.Now()
	report.tally()
	logger.Info("Scenario run finished.",
		zap.Int("passed", report.Passed),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Finished.Sub(report.Started)))

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("scenario run interrupted: %w", err)
	}
	return report, nil
}

func (r *Runner) runScenario(ctx context.Context, s flow.Scenario, logger *zap.Logger) Outcome {
	out := Outcome{Scenario: s.Name, Started: time.Now()}
	logger = logger.With(zap.String("scenario", s.Name))

	if err := r.limiter.Wait(ctx); err != nil {
		out.fail(fmt.Errorf("waiting for a launch slot: %w", err))
		return out
	}

	if timeout := r.cfg.Runner.ScenarioTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var res *flow.Result
	runErr := browser.WithSession(ctx, r.manager, r.cfg.Target.BaseURL, func(sess *browser.Session) error {
		out.SessionID = sess.ID()
		o, err := flow.ForSession(sess, r.cfg)
		if err != nil {
			return err
		}
		res, err = o.Run(ctx, s.Steps)
		return err
	})
	out.Duration = time.Since(out.Started)

	switch {
	case res == nil && runErr != nil:
		// The session never started or the orchestrator could not be built.
		out.fail(runErr)
	case res == nil:
		out.fail(errors.New("scenario produced no result"))
	default:
		out.record(res)
		if err := s.Check(res, runErr); err != nil {
			out.fail(err)
		} else {
			out.Passed = true
		}
	}

	if out.Passed {
		logger.Info("Scenario passed.", zap.Stringer("state", out.State), zap.Duration("duration", out.Duration))
	} else {
		logger.Warn("Scenario failed.", zap.Stringer("state", out.State), zap.String("error", out.Error))
	}
	return out
}
