package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// CounterFlusher drains buffered Redis counters into the database.
type CounterFlusher interface {
	FlushAll() error
}

// VerificationSweeper degrades verifications past their renewal or
// expiry timestamps.
type VerificationSweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// Manager owns the job queue plus the periodic background tasks around
// it: counter flushing and the verification timeout sweep.
type Manager struct {
	queue              *Queue
	counters           CounterFlusher
	sweeper            VerificationSweeper
	counterFlushTicker *time.Ticker
	sweepTicker        *time.Ticker
	stopCh             chan struct{}
	wg                 sync.WaitGroup
	mu                 sync.Mutex
	running            bool
}

// NewManager creates a job queue manager. counters and sweeper may be
// nil; the corresponding background task is then skipped.
func NewManager(queue *Queue, counters CounterFlusher, sweeper VerificationSweeper) *Manager {
	return &Manager{
		queue:    queue,
		counters: counters,
		sweeper:  sweeper,
		stopCh:   make(chan struct{}),
	}
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// EnqueueWebhook forwards to the managed queue so the manager satisfies
// the ingestion service's queue contract.
func (m *Manager) EnqueueWebhook(ctx context.Context, kind string, webhookID uint, provider string) error {
	return m.queue.EnqueueWebhook(ctx, kind, webhookID, provider)
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	// Start the job queue
	m.queue.Start()

	// Start counter flush worker (Redis -> DB) every 15 seconds
	if m.counters != nil {
		m.counterFlushTicker = time.NewTicker(15 * time.Second)
		m.wg.Add(1)
		go m.counterFlushWorker()
	}

	// Verification timeout sweep, hourly
	if m.sweeper != nil {
		m.sweepTicker = time.NewTicker(time.Hour)
		m.wg.Add(1)
		go m.sweepWorker()
	}

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.counterFlushTicker != nil {
		m.counterFlushTicker.Stop()
	}
	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}

	// Signal workers to stop
	close(m.stopCh)
	m.running = false

	// Wait for background workers to finish
	m.wg.Wait()

	// Stop the job queue
	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// counterFlushWorker periodically flushes buffered counters from Redis to DB
func (m *Manager) counterFlushWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Counter flush worker stopping")
			return
		case <-m.counterFlushTicker.C:
			if err := m.counters.FlushAll(); err != nil {
				log.Errorf("[JobQueue Manager] Counter flush error: %v", err)
			}
		}
	}
}

// sweepWorker periodically degrades verifications whose renewal or expiry
// timestamps have passed.
func (m *Manager) sweepWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			log.Info("[JobQueue Manager] Verification sweep worker stopping")
			return
		case <-m.sweepTicker.C:
			if _, err := m.sweeper.Sweep(context.Background()); err != nil {
				log.Errorf("[JobQueue Manager] Verification sweep error: %v", err)
			}
		}
	}
}

// RunSweepOnce exposes a manual trigger for a single verification sweep (admin use).
func (m *Manager) RunSweepOnce(ctx context.Context) (int64, error) {
	if m.sweeper == nil {
		return 0, nil
	}
	return m.sweeper.Sweep(ctx)
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
