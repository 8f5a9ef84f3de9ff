package template

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// Template is a named message pattern keyed by notification type.
// Subject and body contain {{name}} placeholders filled by literal
// substitution - template text never executes code.
type Template struct {
	ID                uuid.UUID              `json:"id" yaml:"id"`
	Type              string                 `json:"type" yaml:"type"`
	Subject           string                 `json:"subject" yaml:"subject"`
	Body              string                 `json:"body" yaml:"body"`
	RequiredVariables []string               `json:"required_variables" yaml:"required_variables"`
	Channels          []notification.Channel `json:"channels" yaml:"channels"`
	CreatedAt         time.Time              `json:"created_at" yaml:"-"`
}

// SupportsChannel reports whether the template declares compatibility with
// the given channel.
func (t *Template) SupportsChannel(c notification.Channel) bool {
	return slices.Contains(t.Channels, c)
}

// Render substitutes the supplied variables into subject and body.
// Every required variable must be present; placeholders for variables that
// are neither required nor supplied are left intact.
func (t *Template) Render(vars map[string]string) (subject, body string, err error) {
	for _, name := range t.RequiredVariables {
		if _, ok := vars[name]; !ok {
			return "", "", &MissingVariableError{Name: name}
		}
	}

	if len(vars) == 0 {
		return t.Subject, t.Body, nil
	}

	pairs := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		pairs = append(pairs, "{{"+name+"}}", value)
	}
	r := strings.NewReplacer(pairs...)
	return r.Replace(t.Subject), r.Replace(t.Body), nil
}
