package counter

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	processedKey = "webhook:counters:processed"
	failedKey    = "webhook:counters:failed"

	dayLayout = "2006-01-02"
)

// Counter buffers per-provider webhook outcome counts in Redis hashes
// and flushes them to the webhook_stats table in batches. Increments on
// the hot path never touch the database.
type Counter struct {
	client *redis.Client
	db     *gorm.DB
}

func NewCounter(client *redis.Client, db *gorm.DB) *Counter {
	return &Counter{client: client, db: db}
}

func field(provider string, day time.Time) string {
	return provider + ":" + day.UTC().Format(dayLayout)
}

// AddProcessed increments the pending processed counter for a provider.
func (c *Counter) AddProcessed(provider string) {
	ctx := context.Background()
	if err := c.client.HIncrBy(ctx, processedKey, field(provider, time.Now()), 1).Err(); err != nil {
		log.Errorf("[Counter] Failed to increment processed for %s: %v", provider, err)
	}
}

// AddFailed increments the pending failed counter for a provider.
func (c *Counter) AddFailed(provider string) {
	ctx := context.Background()
	if err := c.client.HIncrBy(ctx, failedKey, field(provider, time.Now()), 1).Err(); err != nil {
		log.Errorf("[Counter] Failed to increment failed for %s: %v", provider, err)
	}
}

// FlushAll flushes both counters to the database
func (c *Counter) FlushAll() error {
	if err := c.flushHashToColumn(processedKey, "processed"); err != nil {
		return err
	}
	return c.flushHashToColumn(failedKey, "failed")
}

// flushHashToColumn drains a Redis hash atomically and applies batched
// upserts to webhook_stats. Uses RENAME to a temporary key for atomic
// drain without losing in-flight increments.
func (c *Counter) flushHashToColumn(redisKey, column string) error {
	ctx := context.Background()

	// Atomically move the hash to a temp key for draining
	tmpKey := fmt.Sprintf("%s:tmp:%d", redisKey, time.Now().UnixNano())
	if err := c.client.Do(ctx, "RENAME", redisKey, tmpKey).Err(); err != nil {
		// If key does not exist, nothing to flush
		if strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
		if err == redis.Nil || err.Error() == "redis: nil" {
			return nil
		}
		return err
	}

	// Ensure cleanup of tmpKey even if later steps fail
	defer c.client.Del(ctx, tmpKey)

	data, err := c.client.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	type row struct {
		provider string
		day      string
		count    int64
	}
	rows := make([]row, 0, len(data))
	for k, v := range data {
		provider, day, ok := strings.Cut(k, ":")
		if !ok || provider == "" || day == "" {
			continue
		}
		var count int64
		if _, err := fmt.Sscanf(v, "%d", &count); err != nil || count == 0 {
			continue
		}
		rows = append(rows, row{provider: provider, day: day, count: count})
	}
	if len(rows) == 0 {
		return nil
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].provider != rows[j].provider {
			return rows[i].provider < rows[j].provider
		}
		return rows[i].day < rows[j].day
	})

	// Compose one multi-row upsert:
	// INSERT INTO webhook_stats (provider, day, <column>, created_at, updated_at)
	// VALUES (?,?,?,NOW(),NOW()),... ON DUPLICATE KEY UPDATE <column> = <column> + VALUES(<column>)
	var builder strings.Builder
	args := make([]interface{}, 0, len(rows)*3)
	builder.WriteString("INSERT INTO webhook_stats (provider, day, ")
	builder.WriteString(column)
	builder.WriteString(", created_at, updated_at) VALUES ")
	for i, r := range rows {
		if i > 0 {
			builder.WriteString(",")
		}
		builder.WriteString("(?, ?, ?, NOW(), NOW())")
		args = append(args, r.provider, r.day, r.count)
	}
	builder.WriteString(" ON DUPLICATE KEY UPDATE ")
	builder.WriteString(column)
	builder.WriteString(" = ")
	builder.WriteString(column)
	builder.WriteString(" + VALUES(")
	builder.WriteString(column)
	builder.WriteString("), updated_at = NOW()")

	return c.db.Exec(builder.String(), args...).Error
}
