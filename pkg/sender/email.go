package sender

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"

	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// EmailConfig holds Postmark credentials and sender identity.
type EmailConfig struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL"`
}

// postmarkAPI is the slice of the Postmark client the sender uses, extracted
// so tests can stub the transport.
type postmarkAPI interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// Email delivers notifications over Postmark's transactional API. Transport
// errors are transient; API-level rejections (bad address, suppressed
// recipient) are permanent.
type Email struct {
	client  postmarkAPI
	from    string
	resolve AddressFunc
}

// NewEmail creates a Postmark-backed email sender.
func NewEmail(cfg EmailConfig, resolve AddressFunc) (*Email, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: PostmarkServerToken is required", ErrInvalidConfig)
	}
	if cfg.SenderEmail == "" {
		return nil, fmt.Errorf("%w: SenderEmail is required", ErrInvalidConfig)
	}
	if resolve == nil {
		return nil, fmt.Errorf("%w: address resolver is required", ErrInvalidConfig)
	}
	return &Email{
		client:  postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		from:    cfg.SenderEmail,
		resolve: resolve,
	}, nil
}

func (s *Email) Channel() notification.Channel { return notification.ChannelEmail }

func (s *Email) Send(ctx context.Context, n notification.Notification) (notification.Outcome, error) {
	addr, err := s.resolve(ctx, n.RecipientID, notification.ChannelEmail)
	if err != nil {
		return notification.OutcomePermanentFailure, err
	}

	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:     s.from,
		To:       addr,
		Subject:  n.Title,
		TextBody: n.Body,
		Tag:      n.Type,
	})
	if err != nil {
		return notification.OutcomeTransientFailure, errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return notification.OutcomePermanentFailure,
			fmt.Errorf("%w: postmark error %d: %s", ErrSendFailed, resp.ErrorCode, resp.Message)
	}
	return notification.OutcomeSuccess, nil
}
