// Package callspec defines the JSON payload describing an outbound call.
// The API service serializes it into the calls table and the spooler
// service turns it back into a callfile.JobFile.
package callspec

import (
	"fmt"
	"time"

	"github.com/hoangnt/dialout/internal/callfile"
)

// Action type discriminators.
const (
	ActionApplication = "application"
	ActionDialplan    = "dialplan"
)

// Spec is the full description of one outbound call request.
type Spec struct {
	Channel    string            `json:"channel"`
	CallerID   string            `json:"caller_id,omitempty"`
	Account    string            `json:"account,omitempty"`
	MaxRetries *int              `json:"max_retries,omitempty"`
	RetryTime  *int              `json:"retry_time,omitempty"`
	WaitTime   *int              `json:"wait_time,omitempty"`
	Variables  map[string]string `json:"variables,omitempty"`
	Action     Action            `json:"action"`
	Archive    bool              `json:"archive,omitempty"`

	// ScheduledAt defers the dial: the spooler delivers the call file with
	// this modification time and the telephony server waits for it.
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`

	// Owner overrides the spooler's configured run-as user for this call.
	Owner string `json:"owner,omitempty"`
}

// Action is the tagged post-connect directive.
type Action struct {
	Type        string `json:"type"`
	Application string `json:"application,omitempty"`
	Data        string `json:"data,omitempty"`
	Context     string `json:"context,omitempty"`
	Extension   string `json:"extension,omitempty"`
	Priority    int    `json:"priority,omitempty"`
}

// Endpoint converts the spec's dial target into the call file form.
func (s Spec) Endpoint() callfile.Endpoint {
	return callfile.Endpoint{
		Channel:    s.Channel,
		CallerID:   s.CallerID,
		Account:    s.Account,
		MaxRetries: s.MaxRetries,
		RetryTime:  s.RetryTime,
		WaitTime:   s.WaitTime,
		Variables:  s.Variables,
	}
}

// CallfileAction converts the tagged action into its call file form.
// An unknown type is a validation failure, not a render-time surprise.
func (a Action) CallfileAction() (callfile.Action, error) {
	switch a.Type {
	case ActionApplication:
		return callfile.NewApplication(a.Application, a.Data), nil
	case ActionDialplan:
		return callfile.NewDialplan(a.Context, a.Extension, a.Priority), nil
	default:
		return nil, fmt.Errorf("%w: unknown action type %q", callfile.ErrValidation, a.Type)
	}
}

// Validate runs the call file constraints over the spec so bad requests are
// rejected before they are persisted or queued.
func (s Spec) Validate() error {
	if err := s.Endpoint().Validate(); err != nil {
		return err
	}
	action, err := s.Action.CallfileAction()
	if err != nil {
		return err
	}
	return action.Validate()
}
