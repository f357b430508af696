package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gofiber/fiber/v2/log"

	"github.com/FelixHartmann/Zahlwerk/app/repository"
)

// Client uploads processed webhook payloads to an S3-compatible bucket
// for long-term audit storage.
type Client struct {
	s3Client *s3.Client
	config   *Config
	webhooks repository.WebhookRepository
}

// NewClient creates a new archive client
func NewClient(cfg *Config, webhooks repository.WebhookRepository) (*Client, error) {
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("webhook archiving is disabled")
	}

	// Create AWS config
	awsConfig, err := config.LoadDefaultConfig(context.TODO(),
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Create S3 client
	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// S3-compatible services need path-style URLs
			o.UsePathStyle = true
			o.UseAccelerate = false
		}
	})

	client := &Client{
		s3Client: s3Client,
		config:   cfg,
		webhooks: webhooks,
	}

	if err := client.testConnection(); err != nil {
		return nil, fmt.Errorf("failed to connect to S3: %w", err)
	}

	log.Infof("[Archive] Successfully initialized S3 client for bucket: %s", cfg.BucketName)
	return client, nil
}

// testConnection checks bucket access, creating the bucket in
// dev/staging environments.
func (c *Client) testConnection() error {
	ctx := context.Background()

	_, err := c.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.config.BucketName),
	})
	if err != nil {
		if GetAppEnv() != "prod" {
			log.Warnf("[Archive] Bucket %s not found, attempting to create it", c.config.BucketName)
			return c.createBucket(c.config.BucketName)
		}
		return fmt.Errorf("bucket %s not accessible: %w", c.config.BucketName, err)
	}
	return nil
}

func (c *Client) createBucket(bucketName string) error {
	ctx := context.Background()

	input := &s3.CreateBucketInput{
		Bucket: aws.String(bucketName),
	}
	// For AWS regions other than us-east-1 the location constraint is
	// required; S3-compatible endpoints reject it.
	if c.config.EndpointURL == "" && c.config.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(c.config.Region),
		}
	}

	if _, err := c.s3Client.CreateBucket(ctx, input); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucketName, err)
	}

	log.Infof("[Archive] Successfully created bucket: %s", bucketName)
	return nil
}

// archiveDocument is the stored JSON envelope. The raw provider payload
// is embedded untouched so the archive is usable for replay and audit.
type archiveDocument struct {
	TrackingID string          `json:"tracking_id"`
	Kind       string          `json:"kind"`
	Provider   string          `json:"provider"`
	Event      string          `json:"event"`
	EventKey   string          `json:"event_key"`
	Status     string          `json:"status"`
	ReceivedAt time.Time       `json:"received_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Archive uploads one webhook record. Keys are deterministic per
// tracking id, so a retried archive job overwrites its own object.
func (c *Client) Archive(ctx context.Context, webhookID uint) error {
	record, err := c.webhooks.GetByID(webhookID)
	if err != nil {
		return fmt.Errorf("loading webhook %d: %w", webhookID, err)
	}

	doc := archiveDocument{
		TrackingID: record.TrackingID,
		Kind:       record.Kind,
		Provider:   record.Provider,
		Event:      record.Event,
		EventKey:   record.EventKey,
		Status:     string(record.Status),
		ReceivedAt: record.CreatedAt,
		Payload:    rawOrQuoted(record.Payload),
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling archive document: %w", err)
	}

	objectKey := c.config.ObjectKey(record.Provider, record.TrackingID, record.CreatedAt)
	_, err = c.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.config.BucketName),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(body))),
		Metadata: map[string]string{
			"tracking-id": record.TrackingID,
			"provider":    record.Provider,
		},
	})
	if err != nil {
		return fmt.Errorf("uploading webhook %s: %w", record.TrackingID, err)
	}

	log.Infof("[Archive] Uploaded webhook %s -> s3://%s/%s", record.TrackingID, c.config.BucketName, objectKey)
	return nil
}

// rawOrQuoted embeds valid JSON payloads as-is and falls back to a JSON
// string for anything malformed.
func rawOrQuoted(payload string) json.RawMessage {
	if json.Valid([]byte(payload)) {
		return json.RawMessage(payload)
	}
	quoted, _ := json.Marshal(payload)
	return quoted
}
