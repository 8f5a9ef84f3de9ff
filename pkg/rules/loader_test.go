package rules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/notifykit/pkg/template"
)

const validConfig = `
templates:
  - id: "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
    type: security_alert
    subject: "Suspicious activity on {{account}}"
    body: "We noticed {{count}} failed logins on {{account}}."
    required_variables: [account]
    channels: [email, in_app]

rules:
  - name: login failure burst
    enabled: true
    priority: 50
    condition:
      kind: event_pattern
      events: [login_failed]
      count: 3
      window: 60s
    actions:
      - kind: send_template
        template_id: "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
        channels: [email]
      - kind: log
        message: burst detected
    recipients: [security-team]
`

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("valid config populates both stores", func(t *testing.T) {
		templates := template.NewMemoryStore()
		rules := NewMemoryStore()

		require.NoError(t, Load(ctx, []byte(validConfig), templates, rules))

		all, err := rules.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "login failure burst", all[0].Name)
		assert.Equal(t, ConditionEventPattern, all[0].Condition.Kind)
		assert.Equal(t, time.Minute, all[0].Condition.Window.StdDuration())

		byType, err := templates.ByType(ctx, "security_alert")
		require.NoError(t, err)
		assert.Len(t, byType, 1)
	})

	t.Run("unknown template reference aborts the load", func(t *testing.T) {
		cfg := `
rules:
  - name: dangling
    enabled: true
    condition:
      kind: event_match
      event: boom
    actions:
      - kind: send_template
        template_id: "00000000-0000-0000-0000-000000000001"
        channels: [email]
`
		err := Load(ctx, []byte(cfg), template.NewMemoryStore(), NewMemoryStore())
		assert.ErrorIs(t, err, ErrUnknownTemplate)
	})

	t.Run("unsupported channel aborts the load", func(t *testing.T) {
		cfg := `
templates:
  - id: "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
    type: t
    body: hi
    channels: [in_app]
rules:
  - name: wrong channel
    enabled: true
    condition:
      kind: event_match
      event: boom
    actions:
      - kind: send_template
        template_id: "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
        channels: [sms]
`
		err := Load(ctx, []byte(cfg), template.NewMemoryStore(), NewMemoryStore())
		assert.ErrorIs(t, err, ErrChannelNotSupported)
	})

	t.Run("invalid cron aborts the load", func(t *testing.T) {
		cfg := `
rules:
  - name: bad schedule
    enabled: true
    condition:
      kind: schedule
      cron: "every full moon"
    actions:
      - kind: log
        message: hi
`
		err := Load(ctx, []byte(cfg), template.NewMemoryStore(), NewMemoryStore())
		assert.ErrorIs(t, err, ErrInvalidCron)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		err := Load(ctx, []byte("rules: [}"), template.NewMemoryStore(), NewMemoryStore())
		assert.Error(t, err)
	})
}

func TestDuration_YAML(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"seconds", `"60s"`, time.Minute, false},
		{"composite", `"1h30m"`, 90 * time.Minute, false},
		{"integer nanoseconds", `5000000000`, 5 * time.Second, false},
		{"garbage string", `"soon"`, 0, true},
		{"wrong type", `[1, 2]`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := yaml.Unmarshal([]byte(tt.input), &d)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.StdDuration())
		})
	}
}

func TestDuration_MarshalYAML(t *testing.T) {
	out, err := yaml.Marshal(Duration(90 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, "1m30s\n", string(out))
}
