package callfile

import (
	"fmt"
	"sort"
	"strings"
)

// Endpoint is the channel to dial plus its per-call dialing parameters.
// The zero value is invalid; Channel is the only required field.
type Endpoint struct {
	Channel    string
	CallerID   string
	Account    string
	MaxRetries *int
	RetryTime  *int
	WaitTime   *int
	Variables  map[string]string
}

// Int is a convenience for filling the optional numeric Endpoint fields.
func Int(n int) *int { return &n }

// Validate checks the endpoint against the call file format constraints.
// It is a pure predicate with no side effects.
func (e Endpoint) Validate() error {
	if strings.TrimSpace(e.Channel) == "" {
		return fmt.Errorf("%w: channel is required", ErrValidation)
	}

	for _, f := range []struct {
		name  string
		value *int
	}{
		{"max_retries", e.MaxRetries},
		{"retry_time", e.RetryTime},
		{"wait_time", e.WaitTime},
	} {
		if f.value != nil && *f.value < 0 {
			return fmt.Errorf("%w: %s must be a non-negative integer, got %d", ErrValidation, f.name, *f.value)
		}
	}

	// The telephony server rejects an inverted retry schedule, so catch it
	// here before anything is written. Equal values are invalid too.
	if e.RetryTime != nil {
		if e.WaitTime == nil {
			return fmt.Errorf("%w: retry_time requires wait_time", ErrValidation)
		}
		if *e.RetryTime <= *e.WaitTime {
			return fmt.Errorf("%w: retry_time (%d) must be greater than wait_time (%d)",
				ErrValidation, *e.RetryTime, *e.WaitTime)
		}
	}

	return nil
}

// Render produces the endpoint's call file lines in the fixed order the
// telephony server expects: Channel first, then any set optional fields.
// Variables are emitted in sorted key order so output is deterministic.
func (e Endpoint) Render() []string {
	lines := []string{"Channel: " + e.Channel}

	if e.CallerID != "" {
		lines = append(lines, "CallerID: "+e.CallerID)
	}
	if e.MaxRetries != nil {
		lines = append(lines, fmt.Sprintf("MaxRetries: %d", *e.MaxRetries))
	}
	if e.RetryTime != nil {
		lines = append(lines, fmt.Sprintf("RetryTime: %d", *e.RetryTime))
	}
	if e.WaitTime != nil {
		lines = append(lines, fmt.Sprintf("WaitTime: %d", *e.WaitTime))
	}
	if e.Account != "" {
		lines = append(lines, "Account: "+e.Account)
	}

	if len(e.Variables) > 0 {
		keys := make([]string, 0, len(e.Variables))
		for k := range e.Variables {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("Set: %s=%s", k, e.Variables[k]))
		}
	}

	return lines
}
