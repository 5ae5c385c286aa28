// Package sqs moves audit jobs between the gateway and the audit
// worker. Every persisted record gets a job; the worker re-checks the
// capture-side admission decision asynchronously so ingestion never
// blocks on classification.
package sqs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"github.com/camiloreynaga/yape-notifier-sub000/internal/db"
)

// Config holds SQS configuration.
type Config struct {
	Region   string
	QueueURL string
	DLQURL   string
}

// AuditJob is the queue payload. The worker reloads the record by id,
// so the job carries only what routing and logging need.
type AuditJob struct {
	NotificationID string `json:"notification_id"`
	DeviceID       string `json:"device_id"`
	SourceApp      string `json:"source_app"`
	Attempt        int    `json:"attempt"`
	EnqueuedAt     int64  `json:"enqueued_at"`
}

// Producer enqueues audit jobs for persisted records.
type Producer struct {
	client   *sqs.Client
	queueURL string
	logger   *zap.Logger
}

// NewProducer creates a new SQS producer.
func NewProducer(ctx context.Context, cfg Config, logger *zap.Logger) (*Producer, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg)

	logger.Info("sqs producer initialized",
		zap.String("queue_url", cfg.QueueURL),
	)

	return &Producer{
		client:   client,
		queueURL: cfg.QueueURL,
		logger:   logger,
	}, nil
}

// Enqueue submits a persisted record for asynchronous audit.
// Returns the message ID for tracking.
func (p *Producer) Enqueue(ctx context.Context, rec *db.NotificationRecord) (string, error) {
	job := AuditJob{
		NotificationID: rec.ID.String(),
		DeviceID:       rec.DeviceID.String(),
		SourceApp:      rec.SourceApp,
		EnqueuedAt:     time.Now().UnixNano(),
	}

	body, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to marshal audit job: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	}

	result, err := p.client.SendMessage(ctx, input)
	if err != nil {
		p.logger.Error("failed to send audit job to sqs",
			zap.Error(err),
			zap.String("notification_id", rec.ID.String()),
		)
		return "", fmt.Errorf("sqs send failed: %w", err)
	}

	return *result.MessageId, nil
}

// EnqueueBatch submits jobs for a batch upload. Individual failures are
// logged and skipped; the worker's poll fallback picks up anything
// missed here.
func (p *Producer) EnqueueBatch(ctx context.Context, records []*db.NotificationRecord) ([]string, error) {
	if len(records) == 0 {
		return []string{}, nil
	}

	messageIDs := make([]string, 0, len(records))
	for _, rec := range records {
		msgID, err := p.Enqueue(ctx, rec)
		if err != nil {
			p.logger.Warn("failed to enqueue audit job", zap.Error(err))
			continue
		}
		messageIDs = append(messageIDs, msgID)
	}

	return messageIDs, nil
}

// Close closes the SQS producer.
func (p *Producer) Close() {
	// AWS SDK v2 clients don't require explicit Close()
}

// Consumer reads audit jobs from SQS.
type Consumer struct {
	client   *sqs.Client
	queueURL string
	logger   *zap.Logger
}

// NewConsumer creates a new SQS consumer.
func NewConsumer(ctx context.Context, cfg Config, logger *zap.Logger) (*Consumer, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg)

	logger.Info("sqs consumer initialized",
		zap.String("queue_url", cfg.QueueURL),
	)

	return &Consumer{
		client:   client,
		queueURL: cfg.QueueURL,
		logger:   logger,
	}, nil
}

// ReceiveJob retrieves one audit job with long polling.
func (c *Consumer) ReceiveJob(ctx context.Context) (*AuditJob, string, error) {
	input := &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     20,
		VisibilityTimeout:   60,
	}

	result, err := c.client.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, "", fmt.Errorf("sqs receive failed: %w", err)
	}

	if len(result.Messages) == 0 {
		return nil, "", nil
	}

	msgData := result.Messages[0]

	var job AuditJob
	if err := json.Unmarshal([]byte(*msgData.Body), &job); err != nil {
		c.logger.Error("failed to unmarshal audit job", zap.Error(err))
		return nil, "", fmt.Errorf("invalid job format: %w", err)
	}

	return &job, *msgData.ReceiptHandle, nil
}

// DeleteMessage removes a job from SQS after successful processing.
func (c *Consumer) DeleteMessage(ctx context.Context, receiptHandle string) error {
	input := &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	}

	_, err := c.client.DeleteMessage(ctx, input)
	if err != nil {
		return fmt.Errorf("sqs delete failed: %w", err)
	}

	return nil
}

// ChangeVisibility extends the visibility timeout for a job.
func (c *Consumer) ChangeVisibility(ctx context.Context, receiptHandle string, seconds int32) error {
	input := &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(c.queueURL),
		ReceiptHandle:     aws.String(receiptHandle),
		VisibilityTimeout: seconds,
	}

	_, err := c.client.ChangeMessageVisibility(ctx, input)
	if err != nil {
		return fmt.Errorf("sqs change visibility failed: %w", err)
	}

	return nil
}

// Close closes the SQS consumer.
func (c *Consumer) Close() {
	// AWS SDK v2 clients don't require explicit Close()
}
