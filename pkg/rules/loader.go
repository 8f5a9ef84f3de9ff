package rules

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/notifykit/pkg/template"
)

// ConfigFile is the on-disk YAML layout for declarative setup: a template
// catalog plus the rules that reference it.
type ConfigFile struct {
	Templates []template.Template `yaml:"templates"`
	Rules     []Rule              `yaml:"rules"`
}

// LoadFile reads a YAML config file and populates the template catalog and
// rule store. Templates load first so rule validation can resolve them; the
// first invalid entry aborts the load with its position in the file.
func LoadFile(ctx context.Context, path string, templates template.Store, rules Store) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read rules config: %w", err)
	}
	return Load(ctx, raw, templates, rules)
}

// Load parses raw YAML and populates the given stores. See LoadFile.
func Load(ctx context.Context, raw []byte, templates template.Store, rules Store) error {
	var file ConfigFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse rules config: %w", err)
	}

	for i, tmpl := range file.Templates {
		if err := templates.Put(ctx, tmpl); err != nil {
			return fmt.Errorf("template %d (%s): %w", i, tmpl.Type, err)
		}
	}

	validator := NewValidator(templates)
	for i, rule := range file.Rules {
		if err := validator.Validate(ctx, rule); err != nil {
			return fmt.Errorf("rule %d (%s): %w", i, rule.Name, err)
		}
		if _, err := rules.Create(ctx, rule); err != nil {
			return fmt.Errorf("rule %d (%s): %w", i, rule.Name, err)
		}
	}
	return nil
}
