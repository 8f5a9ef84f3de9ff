package rules

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/dmitrymomot/notifykit/pkg/template"
)

// Validator checks rules against the template catalog before they are stored,
// so a misconfigured rule is rejected at write time instead of failing
// silently at fire time.
type Validator struct {
	templates template.Store
}

// NewValidator creates a validator backed by the given template catalog.
func NewValidator(templates template.Store) *Validator {
	return &Validator{templates: templates}
}

// Validate checks the rule's structure, its cron expression when present, and
// every send_template action against the catalog: the template must exist and
// must declare each requested channel.
func (v *Validator) Validate(ctx context.Context, rule Rule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	if rule.Condition.Kind == ConditionSchedule {
		if _, err := cron.ParseStandard(rule.Condition.Cron); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidCron, rule.Condition.Cron, err)
		}
	}

	for i, action := range rule.Actions {
		if action.Kind != ActionSendTemplate {
			continue
		}
		tmpl, err := v.templates.Get(ctx, action.TemplateID)
		if err != nil {
			if errors.Is(err, template.ErrTemplateNotFound) {
				return fmt.Errorf("%w: action %d references %s", ErrUnknownTemplate, i, action.TemplateID)
			}
			return err
		}
		for _, ch := range action.Channels {
			if !tmpl.SupportsChannel(ch) {
				return fmt.Errorf("%w: action %d requests %s for template %s", ErrChannelNotSupported, i, ch, tmpl.ID)
			}
		}
	}
	return nil
}
