package template

import (
	"errors"
	"fmt"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

var (
	// ErrTemplateNotFound is returned when no template exists for the given ID.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrTemplateImmutable is returned when updating a template already
	// referenced by a sent notification. New versions get new template IDs.
	ErrTemplateImmutable = errors.New("template is referenced by sent notifications and cannot be modified")

	// ErrMissingType is returned when storing a template without a
	// notification type.
	ErrMissingType = errors.New("template type is required")

	// ErrNoChannels is returned when storing a template that declares no
	// compatible channels.
	ErrNoChannels = errors.New("template must declare at least one compatible channel")
)

// MissingVariableError indicates a required placeholder had no supplied value.
type MissingVariableError struct {
	Name string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("missing required template variable %q", e.Name)
}

// IsMissingVariable reports whether err is a MissingVariableError.
func IsMissingVariable(err error) bool {
	var e *MissingVariableError
	return errors.As(err, &e)
}

// IncompatibleChannelError indicates a requested channel the template does
// not declare.
type IncompatibleChannelError struct {
	TemplateID string
	Channel    notification.Channel
}

func (e *IncompatibleChannelError) Error() string {
	return fmt.Sprintf("template %s does not support channel %q", e.TemplateID, e.Channel)
}

// IsIncompatibleChannel reports whether err is an IncompatibleChannelError.
func IsIncompatibleChannel(err error) bool {
	var e *IncompatibleChannelError
	return errors.As(err, &e)
}
