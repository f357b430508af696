package archive

import (
	"errors"
	"fmt"
	"time"

	"github.com/FelixHartmann/Zahlwerk/internal/pkg/env"
)

// Config holds webhook archive configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Enabled         bool
}

// LoadConfig loads archive configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("WEBHOOK_ARCHIVE_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("WEBHOOK_ARCHIVE_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("WEBHOOK_ARCHIVE_REGION", "eu-central-1"),
		BucketName:      env.GetEnv("WEBHOOK_ARCHIVE_BUCKET", ""),
		EndpointURL:     env.GetEnv("WEBHOOK_ARCHIVE_ENDPOINT_URL", ""),
		Enabled:         env.GetEnv("WEBHOOK_ARCHIVE_ENABLED", "false") == "true",
	}

	// Validate required fields if archiving is enabled
	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("WEBHOOK_ARCHIVE_ACCESS_KEY_ID is required when webhook archiving is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("WEBHOOK_ARCHIVE_SECRET_ACCESS_KEY is required when webhook archiving is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("WEBHOOK_ARCHIVE_BUCKET is required when webhook archiving is enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if webhook archiving is enabled
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// ObjectKey generates the standardized object key for an archived
// webhook. Format: webhooks/<provider>/YYYY/MM/<tracking>.json
func (c *Config) ObjectKey(provider, trackingID string, receivedAt time.Time) string {
	return fmt.Sprintf("webhooks/%s/%04d/%02d/%s.json", provider, receivedAt.Year(), int(receivedAt.Month()), trackingID)
}

// GetAppEnv returns the current application environment
func GetAppEnv() string {
	return env.GetEnv("APP_ENV", "dev")
}
