// internal/flow/step.go
package flow

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// StepKind names one workflow action.
type StepKind string

const (
	StepLogin           StepKind = "login"
	StepDismissModal    StepKind = "dismiss_modal"
	StepOpenManage      StepKind = "open_manage"
	StepOpenDeviceUsers StepKind = "open_device_users"
	StepLoadDevices     StepKind = "load_devices"
	StepOpenAccount     StepKind = "open_account"
	StepExpireSession   StepKind = "expire_session"
	StepFailRequests    StepKind = "fail_requests"
)

// Step is one declarative workflow action. Fields other than Kind only apply
// to the kinds noted on them.
type Step struct {
	Kind StepKind `json:"kind" yaml:"kind"`

	// login: credentials overriding the configured ones.
	Identifier string `json:"identifier,omitempty" yaml:"identifier,omitempty"`
	Secret     string `json:"-" yaml:"secret,omitempty"`

	// open_account: require the guest login button, tab to it, press Enter on it.
	RequireLoginButton bool `json:"require_login_button,omitempty" yaml:"require_login_button,omitempty"`
	Focus              bool `json:"focus,omitempty" yaml:"focus,omitempty"`
	Activate           bool `json:"activate,omitempty" yaml:"activate,omitempty"`

	// fail_requests: URL patterns whose requests fail from now on.
	Patterns []string `json:"patterns,omitempty" yaml:"patterns,omitempty"`
}

// Steps builds a plain step sequence from kinds.
func Steps(kinds ...StepKind) []Step {
	steps := make([]Step, len(kinds))
	for i, k := range kinds {
		steps[i] = Step{Kind: k}
	}
	return steps
}

func (s Step) String() string { return string(s.Kind) }

// Validate checks the kind and the fields the kind depends on.
func (s Step) Validate() error {
	switch s.Kind {
	case StepLogin:
		if (s.Identifier == "") != (s.Secret == "") {
			return fmt.Errorf("login step: identifier and secret must be overridden together")
		}
	case StepFailRequests:
		if len(s.Patterns) == 0 {
			return fmt.Errorf("fail_requests step: at least one pattern is required")
		}
	case StepDismissModal, StepOpenManage, StepOpenDeviceUsers, StepLoadDevices, StepOpenAccount, StepExpireSession:
	default:
		return fmt.Errorf("unknown step kind %q", s.Kind)
	}
	return nil
}

// UnmarshalYAML accepts a bare kind ("- login") as well as a mapping.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*s = Step{Kind: StepKind(node.Value)}
		return nil
	}
	type plain Step
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*s = Step(p)
	return nil
}

// Credentials are the login inputs of a run. String never reveals the secret.
type Credentials struct {
	Identifier string
	Secret     string
}

func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{identifier: %q, secret: [REDACTED]}", c.Identifier)
}

// GoString keeps %#v from printing the secret as well.
func (c Credentials) GoString() string { return c.String() }
