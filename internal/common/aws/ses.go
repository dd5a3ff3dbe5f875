// internal/common/aws/ses.go
package aws

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESMailer sends operational alert mail. The scheduler uses it when the
// agent trips into the error state.
type SESMailer struct {
	client *ses.Client
	from   string
	to     string
}

func NewSESMailer(ctx context.Context, region, from, to string) (*SESMailer, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &SESMailer{client: ses.NewFromConfig(cfg), from: from, to: to}, nil
}

// SendErrorAlert emails a short description of a scheduler failure.
// Failures here are the caller's to log; alerting never blocks the agent.
func (m *SESMailer) SendErrorAlert(ctx context.Context, subject, body string) error {
	_, err := m.client.SendEmail(ctx, &ses.SendEmailInput{
		Source: &m.from,
		Destination: &types.Destination{
			ToAddresses: []string{m.to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: &subject},
			Body: &types.Body{
				Text: &types.Content{Data: &body},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}
	return nil
}
