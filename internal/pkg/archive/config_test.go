package archive

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_ObjectKey(t *testing.T) {
	cfg := &Config{BucketName: "zahlwerk-webhooks"}
	receivedAt := time.Date(2026, 3, 7, 9, 30, 0, 0, time.UTC)

	key := cfg.ObjectKey("stripe", "3f0e8a12-0000-0000-0000-000000000000", receivedAt)
	assert.Equal(t, "webhooks/stripe/2026/03/3f0e8a12-0000-0000-0000-000000000000.json", key)
}

func TestLoadConfig_ValidationWhenEnabled(t *testing.T) {
	t.Setenv("WEBHOOK_ARCHIVE_ENABLED", "true")
	t.Setenv("WEBHOOK_ARCHIVE_ACCESS_KEY_ID", "key")
	t.Setenv("WEBHOOK_ARCHIVE_SECRET_ACCESS_KEY", "secret")
	t.Setenv("WEBHOOK_ARCHIVE_BUCKET", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WEBHOOK_ARCHIVE_BUCKET")

	t.Setenv("WEBHOOK_ARCHIVE_BUCKET", "zahlwerk-webhooks")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsEnabled())
}

func TestLoadConfig_DisabledNeedsNothing(t *testing.T) {
	t.Setenv("WEBHOOK_ARCHIVE_ENABLED", "false")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.IsEnabled())
}

func TestRawOrQuoted(t *testing.T) {
	valid := rawOrQuoted(`{"id":"evt_1"}`)
	assert.Equal(t, json.RawMessage(`{"id":"evt_1"}`), valid)

	invalid := rawOrQuoted(`not json`)
	assert.Equal(t, json.RawMessage(`"not json"`), invalid)
}
