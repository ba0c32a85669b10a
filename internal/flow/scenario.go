// internal/flow/scenario.go
package flow

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

//go:embed scenarios.yaml
var builtinScenarios []byte

// Scenario is a named step sequence and the final states that count as a pass.
type Scenario struct {
	Name        string  `yaml:"name" json:"name"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
	Steps       []Step  `yaml:"steps" json:"steps"`
	Expect      []State `yaml:"expect,omitempty" json:"expect,omitempty"`
	// Manual scenarios only run when selected by name.
	Manual bool `yaml:"manual,omitempty" json:"manual,omitempty"`
}

type scenarioFile struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// Validate checks the name and every step.
func (s Scenario) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("scenario name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("scenario %q has no steps", s.Name)
	}
	for i, step := range s.Steps {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("scenario %q, step %d: %w", s.Name, i+1, err)
		}
	}
	return nil
}

// Check judges a finished run. A run error always fails. Without an expect
// list any error-free run passes; otherwise the final state must be listed.
func (s Scenario) Check(res *Result, runErr error) error {
	if runErr != nil {
		return runErr
	}
	if len(s.Expect) == 0 {
		return nil
	}
	for _, want := range s.Expect {
		if res.State == want {
			return nil
		}
	}
	names := make([]string, len(s.Expect))
	for i, st := range s.Expect {
		names[i] = st.String()
	}
	if res.LastErr != nil {
		return fmt.Errorf("ended in %s, expected one of [%s]: %w", res.State, strings.Join(names, ", "), res.LastErr)
	}
	return fmt.Errorf("ended in %s, expected one of [%s]", res.State, strings.Join(names, ", "))
}

// ParseScenarios decodes a scenario document. Unknown keys are rejected and
// names must be unique.
func ParseScenarios(r io.Reader) ([]Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file scenarioFile
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("scenario document is empty")
		}
		return nil, fmt.Errorf("decoding scenarios: %w", err)
	}

	seen := make(map[string]bool, len(file.Scenarios))
	for _, s := range file.Scenarios {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("duplicate scenario name %q", s.Name)
		}
		seen[s.Name] = true
	}
	return file.Scenarios, nil
}

// LoadScenarios reads a scenario file. A leading "~" is expanded.
func LoadScenarios(path string) ([]Scenario, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expanding scenario path: %w", err)
	}
	f, err := os.Open(expanded)
	if err != nil {
		return nil, fmt.Errorf("opening scenario file: %w", err)
	}
	defer f.Close()
	return ParseScenarios(f)
}

// BuiltinScenarios returns the scenarios shipped with the binary.
func BuiltinScenarios() []Scenario {
	scenarios, err := ParseScenarios(bytes.NewReader(builtinScenarios))
	if err != nil {
		panic(fmt.Sprintf("built-in scenarios are invalid: %v", err))
	}
	return scenarios
}

// Select picks scenarios by name, in the order given. With no names it
// returns every scenario not marked manual.
func Select(all []Scenario, names ...string) ([]Scenario, error) {
	if len(names) == 0 {
		var out []Scenario
		for _, s := range all {
			if !s.Manual {
				out = append(out, s)
			}
		}
		return out, nil
	}

	byName := make(map[string]Scenario, len(all))
	for _, s := range all {
		byName[s.Name] = s
	}
	out := make([]Scenario, 0, len(names))
	for _, name := range names {
		s, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown scenario %q", name)
		}
		out = append(out, s)
	}
	return out, nil
}
