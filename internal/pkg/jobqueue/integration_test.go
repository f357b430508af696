package jobqueue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FelixHartmann/Zahlwerk/app/models"
	"github.com/FelixHartmann/Zahlwerk/internal/pkg/env"
)

const integrationTestRedisDB = 14

// newTestRedis connects to the Redis configured for tests and skips the
// test when none is reachable.
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       integrationTestRedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available at %s:%s: %v", host, port, err)
	}

	require.NoError(t, client.FlushDB(context.Background()).Err())
	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	return client
}

type recordingProcessor struct {
	mu        sync.Mutex
	processed []uint
	failFor   map[uint]int
}

func (p *recordingProcessor) Process(_ context.Context, webhookID uint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if remaining, ok := p.failFor[webhookID]; ok && remaining > 0 {
		p.failFor[webhookID] = remaining - 1
		return fmt.Errorf("transient failure for %d", webhookID)
	}
	p.processed = append(p.processed, webhookID)
	return nil
}

func (p *recordingProcessor) processedIDs() []uint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint(nil), p.processed...)
}

func TestQueue_ProcessesWebhookJobs(t *testing.T) {
	client := newTestRedis(t)
	processor := &recordingProcessor{}
	queue := NewQueue(client, 2, processor, nil)

	queue.Start()
	defer queue.Stop()

	require.NoError(t, queue.EnqueueWebhook(context.Background(), models.WebhookKindPayment, 42, "stripe"))
	require.NoError(t, queue.EnqueueWebhook(context.Background(), models.WebhookKindVerification, 43, "sumsub"))

	require.Eventually(t, func() bool {
		return len(processor.processedIDs()) == 2
	}, 10*time.Second, 100*time.Millisecond)

	assert.ElementsMatch(t, []uint{42, 43}, processor.processedIDs())

	stats, err := queue.GetJobStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats[JobStatusCompleted])
}

func TestQueue_StatsAndSizes(t *testing.T) {
	client := newTestRedis(t)
	queue := NewQueue(client, 1, &recordingProcessor{}, nil)

	// Enqueue without starting workers so the job stays pending.
	job, err := queue.EnqueueJob(JobTypeProcessPaymentWebhook, WebhookJobPayload{WebhookID: 1, Provider: "stripe"}.ToMap())
	require.NoError(t, err)

	size, err := queue.GetQueueSize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)

	loaded, err := queue.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, loaded.Status)
	assert.Equal(t, job.Type, loaded.Type)
}
