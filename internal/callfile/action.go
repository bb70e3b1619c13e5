package callfile

import (
	"fmt"
	"strconv"
	"strings"
)

// Action tells the telephony server what to do once the call is answered.
// Exactly two implementations exist: Application and Dialplan.
type Action interface {
	// Validate checks the action's own constraints without side effects.
	Validate() error
	// Render produces the action's call file lines.
	Render() []string
}

// Application runs a dialplan application with optional argument data
// once the call connects.
type Application struct {
	Name string
	Data string
}

// NewApplication returns an Application action. An empty data string means
// the application is invoked without arguments.
func NewApplication(name, data string) *Application {
	return &Application{Name: name, Data: data}
}

func (a *Application) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: application name is required", ErrValidation)
	}
	return nil
}

func (a *Application) Render() []string {
	lines := []string{"Application: " + a.Name}
	if a.Data != "" {
		lines = append(lines, "Data: "+a.Data)
	}
	return lines
}

// Dialplan drops the answered call into the dialplan at the given
// context, extension and priority.
type Dialplan struct {
	Context   string
	Extension string
	Priority  int
}

// NewDialplan returns a Dialplan action.
func NewDialplan(context, extension string, priority int) *Dialplan {
	return &Dialplan{Context: context, Extension: extension, Priority: priority}
}

func (d *Dialplan) Validate() error {
	if strings.TrimSpace(d.Context) == "" {
		return fmt.Errorf("%w: dialplan context is required", ErrValidation)
	}
	if strings.TrimSpace(d.Extension) == "" {
		return fmt.Errorf("%w: dialplan extension is required", ErrValidation)
	}
	if d.Priority < 1 {
		return fmt.Errorf("%w: dialplan priority must be >= 1, got %d", ErrValidation, d.Priority)
	}
	return nil
}

func (d *Dialplan) Render() []string {
	return []string{
		"Context: " + d.Context,
		"Extension: " + d.Extension,
		"Priority: " + strconv.Itoa(d.Priority),
	}
}
