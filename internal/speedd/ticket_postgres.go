package speedd

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver

	"speedprobe/internal/wire"
)

// TicketPostgresArchive handles PostgreSQL persistence for issued tickets
type TicketPostgresArchive struct {
	db *sql.DB
}

// OpenPostgres opens a ticket database via the pgx stdlib driver.
func OpenPostgres(url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return db, nil
}

// NewTicketPostgresArchive creates a new PostgreSQL ticket archive
func NewTicketPostgresArchive(db *sql.DB) *TicketPostgresArchive {
	return &TicketPostgresArchive{db: db}
}

// EnsureSchema creates the tickets table if it does not exist yet.
func (r *TicketPostgresArchive) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS tickets (
			plate      TEXT        NOT NULL,
			road       BIGINT      NOT NULL,
			mile1      BIGINT      NOT NULL,
			timestamp1 BIGINT      NOT NULL,
			mile2      BIGINT      NOT NULL,
			timestamp2 BIGINT      NOT NULL,
			speed      BIGINT      NOT NULL,
			issued_at  TIMESTAMPTZ NOT NULL,
			UNIQUE (plate, road, timestamp1, timestamp2)
		)
	`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create tickets table: %w", err)
	}
	return nil
}

// SaveTicketCtx inserts one ticket. Re-archiving the same observation pair
// is a no-op.
func (r *TicketPostgresArchive) SaveTicketCtx(ctx context.Context, t *wire.Ticket) error {
	query := `
		INSERT INTO tickets (plate, road, mile1, timestamp1, mile2, timestamp2, speed, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (plate, road, timestamp1, timestamp2)
		DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		t.Plate,
		int64(t.Road),
		int64(t.Mile1),
		int64(t.Timestamp1),
		int64(t.Mile2),
		int64(t.Timestamp2),
		int64(t.Speed),
		time.Now(),
	)

	if err != nil {
		return fmt.Errorf("failed to save ticket to postgres: %w", err)
	}

	return nil
}

// SaveTicket implements TicketArchive with a bounded write timeout.
func (r *TicketPostgresArchive) SaveTicket(t *wire.Ticket) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return r.SaveTicketCtx(ctx, t)
}

// BatchInsert inserts multiple tickets in a single transaction
func (r *TicketPostgresArchive) BatchInsert(ctx context.Context, batch []*wire.Ticket) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tickets (plate, road, mile1, timestamp1, mile2, timestamp2, speed, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (plate, road, timestamp1, timestamp2)
		DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, t := range batch {
		_, err = stmt.ExecContext(ctx,
			t.Plate,
			int64(t.Road),
			int64(t.Mile1),
			int64(t.Timestamp1),
			int64(t.Mile2),
			int64(t.Timestamp2),
			int64(t.Speed),
			now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert ticket for plate %s: %w", t.Plate, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	return nil
}

func (r *TicketPostgresArchive) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
