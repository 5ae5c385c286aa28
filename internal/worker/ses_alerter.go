package worker

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"
)

// SESAlerter emails audit alerts to the operations inbox via AWS SES.
type SESAlerter struct {
	client *ses.Client
	from   string
	to     string
	logger *zap.Logger
}

type SESConfig struct {
	Region    string
	FromEmail string
	ToEmail   string
}

func NewSESAlerter(ctx context.Context, cfg SESConfig, logger *zap.Logger) (*SESAlerter, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config: %w", err)
	}
	return &SESAlerter{
		client: ses.NewFromConfig(awsCfg),
		from:   cfg.FromEmail,
		to:     cfg.ToEmail,
		logger: logger,
	}, nil
}

// Notify sends the alert email.
func (s *SESAlerter) Notify(ctx context.Context, alert *Alert) error {
	if s.to == "" {
		return fmt.Errorf("ses alerter has no destination email configured")
	}

	subject := fmt.Sprintf("Audit disagreement: %s (%s)", alert.Reason, alert.SourceApp)
	body := fmt.Sprintf(
		"Notification %s from device %s failed server-side validation.\n\nReason: %s\n\n%s\n\nThe record is flagged for review; its status was not changed.",
		alert.NotificationID, alert.DeviceID, alert.Reason, alert.Summary,
	)

	input := &ses.SendEmailInput{
		Source: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{s.to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(body),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}

	s.logger.Info("audit alert emailed via SES",
		zap.String("notification_id", alert.NotificationID.String()),
		zap.String("to", s.to),
		zap.String("message_id", *result.MessageId),
	)

	return nil
}

// Name identifies the channel in logs.
func (s *SESAlerter) Name() string {
	return "ses-email"
}
