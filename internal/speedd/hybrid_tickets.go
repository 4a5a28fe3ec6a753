package speedd

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"speedprobe/internal/wire"
)

// HybridTicketArchive combines Redis and PostgreSQL.
// Redis: fast write on the ticketing path.
// PostgreSQL: durable storage, filled by a background batch writer.
type HybridTicketArchive struct {
	redis     *TicketRedisArchive
	postgres  *TicketPostgresArchive
	writeChan chan *wire.Ticket
	logger    *slog.Logger
	closed    atomic.Bool // to prevent writes after Close
}

// NewHybridTicketArchive creates a new hybrid ticket archive
func NewHybridTicketArchive(redis *TicketRedisArchive, postgres *TicketPostgresArchive) *HybridTicketArchive {
	return &HybridTicketArchive{
		redis:     redis,
		postgres:  postgres,
		writeChan: make(chan *wire.Ticket, 10000),
		logger:    slog.Default(),
	}
}

// SaveTicket writes to Redis immediately and queues the ticket for the
// PostgreSQL batch writer. A full queue falls back to a short synchronous
// write so tickets are never dropped silently.
func (r *HybridTicketArchive) SaveTicket(t *wire.Ticket) error {
	if r.closed.Load() {
		return fmt.Errorf("archive is closed")
	}

	if err := r.redis.SaveTicket(t); err != nil {
		r.logger.Error("redis_save_failed",
			"plate", t.Plate,
			"road", t.Road,
			"error", err,
		)
		return fmt.Errorf("redis write failed: %w", err)
	}

	queueDepth := len(r.writeChan)
	if queueDepth > cap(r.writeChan)/2 {
		r.logger.Warn("write_queue_high_watermark",
			"queue_depth", queueDepth,
		)
	}

	select {
	case r.writeChan <- t:
		// Successfully queued
	default:
		r.logger.Warn("write_queue_full, attempting direct postgres write",
			"plate", t.Plate,
		)

		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()

		if err := r.postgres.SaveTicketCtx(ctx, t); err != nil {
			r.logger.Error("postgres_direct_write_failed", "error", err)
			// The ticket is safely in Redis
			return fmt.Errorf("postgres direct write failed: %w", err)
		}
	}
	return nil
}

// StartBatchWriter runs the background worker for batch writes to
// PostgreSQL. Call it in a goroutine when the server starts.
func (r *HybridTicketArchive) StartBatchWriter(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	batch := make([]*wire.Ticket, 0, 500)

	r.logger.Info("batch_writer_started", "interval", "1m", "batch_size", 500)

	for {
		select {
		case <-ctx.Done():
			// Shutdown requested - flush remaining batch
			r.logger.Info("batch_writer_shutting_down", "remaining", len(batch))
			if len(batch) > 0 {
				r.flushBatch(batch)
			}
			return

		case t := <-r.writeChan:
			batch = append(batch, t)
			if len(batch) >= 500 {
				r.flushBatch(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				r.logger.Info("periodic_batch_flush", "count", len(batch))
				r.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

// flushBatch writes a batch of tickets to PostgreSQL
func (r *HybridTicketArchive) flushBatch(batch []*wire.Ticket) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	if err := r.postgres.BatchInsert(ctx, batch); err != nil {
		r.logger.Error("batch_insert_failed",
			"count", len(batch),
			"error", err,
		)
	} else {
		r.logger.Info("batch_insert_success",
			"count", len(batch),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// Close stops accepting tickets and closes both stores.
func (r *HybridTicketArchive) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := r.redis.Close(); err != nil {
		r.logger.Error("redis_close_failed", "error", err)
	}
	return r.postgres.Close()
}
