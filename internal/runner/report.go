// internal/runner/report.go
package runner

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/flowcheck/internal/flow"
	"github.com/xkilldash9x/flowcheck/internal/pages"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Outcome is the result of one scenario.
type Outcome struct {
	Scenario  string              `json:"scenario" yaml:"scenario"`
	SessionID string              `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Passed    bool                `json:"passed" yaml:"passed"`
	State     flow.State          `json:"state" yaml:"state"`
	Error     string              `json:"error,omitempty" yaml:"error,omitempty"`
	Devices   []pages.Device      `json:"devices,omitempty" yaml:"devices,omitempty"`
	Modal     *pages.ModalOutcome `json:"modal,omitempty" yaml:"modal,omitempty"`
	Account   *flow.AccountCheck  `json:"account,omitempty" yaml:"account,omitempty"`
	Token     *pages.SessionToken `json:"token,omitempty" yaml:"token,omitempty"`
	History   []flow.Transition   `json:"history,omitempty" yaml:"history,omitempty"`
	Started   time.Time           `json:"started" yaml:"started"`
	Duration  time.Duration       `json:"duration" yaml:"duration"`
}

func (o *Outcome) record(res *flow.Result) {
	o.State = res.State
	o.Devices = res.Devices
	o.Modal = res.Modal
	o.Account = res.Account
	o.Token = res.Token
	o.History = res.History
}

func (o *Outcome) fail(err error) {
	o.Passed = false
	o.Error = err.Error()
}

// Report collects the outcomes of one run, in scenario order.
type Report struct {
	RunID    string    `json:"run_id" yaml:"run_id"`
	BaseURL  string    `json:"base_url" yaml:"base_url"`
	Started  time.Time `json:"started" yaml:"started"`
	Finished time.Time `json:"finished" yaml:"finished"`
	Passed   int       `json:"passed" yaml:"passed"`
	Failed   int       `json:"failed" yaml:"failed"`
	Outcomes []Outcome `json:"outcomes" yaml:"outcomes"`
}

func (r *Report) tally() {
	r.Passed, r.Failed = 0, 0
	for _, o := range r.Outcomes {
		if o.Passed {
			r.Passed++
		} else {
			r.Failed++
		}
	}
}

// OK reports whether every scenario passed.
func (r *Report) OK() bool { return r.Failed == 0 }

// Format is a report encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFor picks the encoding from a file extension; YAML unless it is .json.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Encode writes the report to w.
func (r *Report) Encode(w io.Writer, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported report format %q", format)
	}
}

// WriteFile writes the report to path, creating parent directories. A
// leading "~" is expanded and the extension picks the format.
func (r *Report) WriteFile(path string) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("expanding report path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	f, err := os.Create(expanded)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	if err := r.Encode(f, FormatFor(expanded)); err != nil {
		f.Close()
		return fmt.Errorf("writing report: %w", err)
	}
	return f.Close()
}
