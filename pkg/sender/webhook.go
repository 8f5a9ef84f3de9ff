package sender

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// WebhookConfig holds the signing secret and outbound rate limit.
type WebhookConfig struct {
	SigningSecret string        `env:"WEBHOOK_SIGNING_SECRET"`
	RatePerSecond float64       `env:"WEBHOOK_RATE_PER_SECOND" envDefault:"10"`
	Timeout       time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"10s"`
}

// Webhook posts notifications as signed JSON to per-recipient URLs. Payloads
// carry an HMAC-SHA256 signature bound to a timestamp so receivers can verify
// authenticity and reject replays. Outbound calls share a token-bucket rate
// limit to protect receivers from bursts.
type Webhook struct {
	secret  string
	client  *http.Client
	limiter *rate.Limiter
	resolve AddressFunc
}

// NewWebhook creates a signing webhook sender.
func NewWebhook(cfg WebhookConfig, resolve AddressFunc) (*Webhook, error) {
	if cfg.SigningSecret == "" {
		return nil, fmt.Errorf("%w: SigningSecret is required", ErrInvalidConfig)
	}
	if resolve == nil {
		return nil, fmt.Errorf("%w: address resolver is required", ErrInvalidConfig)
	}
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 10
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{
		secret:  cfg.SigningSecret,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		resolve: resolve,
	}, nil
}

func (s *Webhook) Channel() notification.Channel { return notification.ChannelWebhook }

// webhookPayload is the wire format posted to receivers.
type webhookPayload struct {
	ID          string         `json:"id"`
	RecipientID string         `json:"recipient_id"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Payload     map[string]any `json:"payload,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

func (s *Webhook) Send(ctx context.Context, n notification.Notification) (notification.Outcome, error) {
	url, err := s.resolve(ctx, n.RecipientID, notification.ChannelWebhook)
	if err != nil {
		return notification.OutcomePermanentFailure, err
	}

	body, err := json.Marshal(webhookPayload{
		ID:          n.ID.String(),
		RecipientID: n.RecipientID,
		Type:        n.Type,
		Title:       n.Title,
		Body:        n.Body,
		Payload:     n.Payload,
		CreatedAt:   n.CreatedAt,
	})
	if err != nil {
		return notification.OutcomePermanentFailure, err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return notification.OutcomeTransientFailure, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return notification.OutcomePermanentFailure, err
	}
	req.Header.Set("Content-Type", "application/json")

	ts := time.Now().Unix()
	req.Header.Set("X-Webhook-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Webhook-Signature", Sign(s.secret, ts, body))

	resp, err := s.client.Do(req)
	if err != nil {
		return notification.OutcomeTransientFailure, errors.Join(ErrSendFailed, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	return classifyStatus(resp.StatusCode)
}

// classifyStatus maps an HTTP response to a delivery outcome: 2xx succeeds,
// 408/429 and 5xx are worth retrying, any other 4xx is permanent.
func classifyStatus(code int) (notification.Outcome, error) {
	switch {
	case code >= 200 && code < 300:
		return notification.OutcomeSuccess, nil
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500:
		return notification.OutcomeTransientFailure, fmt.Errorf("%w: receiver returned %d", ErrSendFailed, code)
	default:
		return notification.OutcomePermanentFailure, fmt.Errorf("%w: receiver returned %d", ErrSendFailed, code)
	}
}

// Sign computes the HMAC-SHA256 signature over "timestamp.payload", the same
// scheme receivers must use to verify.
func Sign(secret string, timestamp int64, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(h, "%d.", timestamp)
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySignature checks a received signature with constant-time comparison
// and an optional timestamp window.
func VerifySignature(secret string, timestamp int64, payload []byte, signature string, maxAge time.Duration) bool {
	if maxAge > 0 {
		age := time.Since(time.Unix(timestamp, 0))
		if age > maxAge || age < -time.Minute {
			return false
		}
	}
	expected := Sign(secret, timestamp, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}
