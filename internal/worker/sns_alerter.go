package worker

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"
)

// SNSAlerter texts audit alerts to the on-call phone via AWS SNS.
type SNSAlerter struct {
	client      *sns.Client
	phoneNumber string
	logger      *zap.Logger
}

type SNSConfig struct {
	Region      string
	PhoneNumber string
}

// NewSNSAlerter creates an SMS alert channel.
func NewSNSAlerter(ctx context.Context, cfg SNSConfig, logger *zap.Logger) (*SNSAlerter, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config for SNS: %w", err)
	}

	return &SNSAlerter{
		client:      sns.NewFromConfig(awsCfg),
		phoneNumber: cfg.PhoneNumber,
		logger:      logger,
	}, nil
}

// Notify sends the alert SMS.
func (s *SNSAlerter) Notify(ctx context.Context, alert *Alert) error {
	if s.phoneNumber == "" {
		return fmt.Errorf("sns alerter has no phone number configured")
	}

	message := fmt.Sprintf("Audit disagreement %s: record %s from device %s (%s)",
		alert.Reason, alert.NotificationID, alert.DeviceID, alert.SourceApp)

	input := &sns.PublishInput{
		PhoneNumber: aws.String(s.phoneNumber),
		Message:     aws.String(message),
	}

	result, err := s.client.Publish(ctx, input)
	if err != nil {
		return fmt.Errorf("sns publish failed: %w", err)
	}

	s.logger.Info("audit alert texted via SNS",
		zap.String("notification_id", alert.NotificationID.String()),
		zap.String("message_id", *result.MessageId),
	)

	return nil
}

// Name identifies the channel in logs.
func (s *SNSAlerter) Name() string {
	return "sns-sms"
}
