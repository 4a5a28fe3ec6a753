package speedd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"speedprobe/internal/wire"
)

// TicketRedisArchive keeps issued tickets in Redis, one hash per ticket.
type TicketRedisArchive struct {
	client *redis.Client
	ctx    context.Context
}

// constructor for TicketRedisArchive
func NewTicketRedisArchive(redisAddr string) (*TicketRedisArchive, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         redisAddr,
		Password:     "",
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &TicketRedisArchive{
		client: rdb,
		ctx:    context.Background(),
	}, nil
}

// SaveTicket stores the ticket as a hash keyed by plate, road and the
// observation pair.
func (r *TicketRedisArchive) SaveTicket(t *wire.Ticket) error {
	if r == nil || r.client == nil {
		// No-op for testing/mock mode
		return nil
	}
	key := fmt.Sprintf("ticket:plate:%s:road:%d:ts:%d-%d", t.Plate, t.Road, t.Timestamp1, t.Timestamp2)

	fields := map[string]any{
		"plate":      t.Plate,
		"road":       int64(t.Road),
		"mile1":      int64(t.Mile1),
		"timestamp1": int64(t.Timestamp1),
		"mile2":      int64(t.Mile2),
		"timestamp2": int64(t.Timestamp2),
		"speed":      int64(t.Speed),
		"issued_at":  time.Now().Format(time.RFC3339Nano),
	}

	if err := r.client.HSet(r.ctx, key, fields).Err(); err != nil {
		return err
	}

	// Tickets age out after 90 days
	return r.client.Expire(r.ctx, key, 90*24*time.Hour).Err()
}

// GetPlateTickets returns every archived ticket for a plate.
func (r *TicketRedisArchive) GetPlateTickets(plate string) ([]*wire.Ticket, error) {
	if r == nil || r.client == nil {
		return []*wire.Ticket{}, nil
	}
	pattern := fmt.Sprintf("ticket:plate:%s:*", plate)
	var results []*wire.Ticket
	var cursor uint64

	for {
		// SCAN returns keys in batches without blocking
		keys, nextCursor, err := r.client.Scan(r.ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}

		for _, key := range keys {
			fields, err := r.client.HGetAll(r.ctx, key).Result()
			if err != nil {
				continue
			}
			results = append(results, ticketFromFields(fields))
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return results, nil
}

func ticketFromFields(fields map[string]string) *wire.Ticket {
	t := &wire.Ticket{Plate: fields["plate"]}
	t.Road = uint16(parseUint(fields["road"]))
	t.Mile1 = uint16(parseUint(fields["mile1"]))
	t.Timestamp1 = uint32(parseUint(fields["timestamp1"]))
	t.Mile2 = uint16(parseUint(fields["mile2"]))
	t.Timestamp2 = uint32(parseUint(fields["timestamp2"]))
	t.Speed = uint16(parseUint(fields["speed"]))
	return t
}

func parseUint(s string) uint64 {
	v, _ := strconv.ParseUint(s, 10, 64)
	return v
}

func (r *TicketRedisArchive) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
