// internal/flow/state.go
package flow

import (
	"fmt"
	"time"

	"github.com/xkilldash9x/flowcheck/internal/pages"
)

// State is a position in the workflow state machine.
type State int

const (
	StateStart State = iota
	StateAuthenticating
	StateAuthenticationFailed
	StateModalCheck
	StateNavigating
	StateDataLoading
	StateDataLoaded
	StateDataEmpty
	StateDataLoadFailed
	StateAccount
	StateSessionExpired
)

var stateNames = map[State]string{
	StateStart:                "start",
	StateAuthenticating:       "authenticating",
	StateAuthenticationFailed: "authentication_failed",
	StateModalCheck:           "modal_check",
	StateNavigating:           "navigating",
	StateDataLoading:          "data_loading",
	StateDataLoaded:           "data_loaded",
	StateDataEmpty:            "data_empty",
	StateDataLoadFailed:       "data_load_failed",
	StateAccount:              "account",
	StateSessionExpired:       "session_expired",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText renders the state by name in reports and scenario files.
func (s State) MarshalText() ([]byte, error) {
	if _, ok := stateNames[s]; !ok {
		return nil, fmt.Errorf("unknown workflow state %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown workflow state %q", text)
}

// Terminal reports whether no further step may run from s.
func (s State) Terminal() bool {
	switch s {
	case StateAuthenticationFailed, StateDataLoaded, StateDataEmpty, StateDataLoadFailed, StateSessionExpired:
		return true
	}
	return false
}

// transitions is the allowed-transition table. A step whose target state is
// not listed for the current state is rejected before it touches the page.
var transitions = map[State][]State{
	StateStart:          {StateAuthenticating, StateAccount},
	StateAuthenticating: {StateAuthenticationFailed, StateModalCheck},
	StateModalCheck:     {StateNavigating, StateAccount, StateSessionExpired},
	StateNavigating:     {StateNavigating, StateDataLoading, StateAccount, StateSessionExpired},
	StateDataLoading:    {StateDataLoaded, StateDataEmpty, StateDataLoadFailed},
	StateAccount:        {StateAuthenticating, StateNavigating, StateSessionExpired},
}

// CanTransition reports whether the table allows moving from one state to another.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition is one entry of a run's history.
type Transition struct {
	From State     `json:"from" yaml:"from"`
	To   State     `json:"to" yaml:"to"`
	Step StepKind  `json:"step" yaml:"step"`
	At   time.Time `json:"at" yaml:"at"`
}

// AccountCheck records what an open_account step observed.
type AccountCheck struct {
	LinkFound          bool `json:"link_found" yaml:"link_found"`
	LoginButtonShown   bool `json:"login_button_shown" yaml:"login_button_shown"`
	LoginButtonFocused bool `json:"login_button_focused" yaml:"login_button_focused"`
}

// Result is the workflow state of one run together with the data gathered on
// the way. Only the orchestrator mutates it.
type Result struct {
	State   State               `json:"state" yaml:"state"`
	LastErr error               `json:"-" yaml:"-"`
	Devices []pages.Device      `json:"devices,omitempty" yaml:"devices,omitempty"`
	Modal   *pages.ModalOutcome `json:"modal,omitempty" yaml:"modal,omitempty"`
	Account *AccountCheck       `json:"account,omitempty" yaml:"account,omitempty"`
	// Token holds the claims of the session token issued at login, when a
	// token source is configured.
	Token   *pages.SessionToken `json:"token,omitempty" yaml:"token,omitempty"`
	History []Transition        `json:"history" yaml:"history"`
	// Steps counts the steps that ran. Steps after a terminal state are skipped.
	Steps int `json:"steps" yaml:"steps"`
}

// Terminal reports whether the run ended in a terminal state.
func (r *Result) Terminal() bool { return r.State.Terminal() }

func (r *Result) moveTo(to State, step StepKind) error {
	if !CanTransition(r.State, to) {
		return &TransitionError{From: r.State, To: to, Step: step}
	}
	r.History = append(r.History, Transition{From: r.State, To: to, Step: step, At: time.Now()})
	r.State = to
	return nil
}
