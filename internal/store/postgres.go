package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rezonia/nfe-entry/internal/model"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS suppliers (
	id       uuid PRIMARY KEY,
	name     text NOT NULL,
	document text NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS purchase_entries (
	id             uuid PRIMARY KEY,
	invoice_key    text UNIQUE,
	invoice_number text NOT NULL DEFAULT '',
	supplier_id    text NOT NULL DEFAULT '',
	entry_date     date,
	payload        jsonb NOT NULL,
	created_at     timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS purchase_entries_created_at_idx ON purchase_entries (created_at DESC);
`

// Postgres is a Store backed by a pgx connection pool. The submission is
// kept as a JSON document next to the columns used for lookups.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn and creates the tables when missing
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// Migrate creates the tables used by the store
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// SaveEntry implements Store
func (p *Postgres) SaveEntry(ctx context.Context, sub model.Submission) (model.Entry, error) {
	payload, err := json.Marshal(sub)
	if err != nil {
		return model.Entry{}, fmt.Errorf("encode submission: %w", err)
	}

	e := model.Entry{ID: uuid.NewString(), Submission: sub}

	var key *string
	if sub.InvoiceKey != "" {
		key = &sub.InvoiceKey
	}
	var entryDate *time.Time
	if !sub.EntryDate.IsZero() {
		entryDate = &sub.EntryDate
	}

	err = p.pool.QueryRow(ctx, `
		INSERT INTO purchase_entries (id, invoice_key, invoice_number, supplier_id, entry_date, payload)
		VALUES ($1::uuid, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		e.ID, key, sub.InvoiceNumber, sub.SupplierID, entryDate, payload,
	).Scan(&e.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return model.Entry{}, ErrDuplicateKey
		}
		return model.Entry{}, fmt.Errorf("insert entry: %w", err)
	}
	return e, nil
}

// GetEntry implements Store
func (p *Postgres) GetEntry(ctx context.Context, id string) (model.Entry, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Entry{}, ErrNotFound
	}

	row := p.pool.QueryRow(ctx, `
		SELECT id::text, payload, created_at FROM purchase_entries WHERE id = $1::uuid`, id)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Entry{}, ErrNotFound
	}
	return e, err
}

// ListEntries implements Store
func (p *Postgres) ListEntries(ctx context.Context, limit int) ([]model.Entry, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id::text, payload, created_at FROM purchase_entries
		ORDER BY created_at DESC, id DESC LIMIT $1`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	out := make([]model.Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveSupplier implements Store
func (p *Postgres) SaveSupplier(ctx context.Context, s model.Supplier) (model.Supplier, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	err := p.pool.QueryRow(ctx, `
		INSERT INTO suppliers (id, name, document) VALUES ($1::uuid, $2, $3)
		ON CONFLICT (document) DO UPDATE SET name = EXCLUDED.name
		RETURNING id::text`, s.ID, s.Name, s.Document).Scan(&s.ID)
	if err != nil {
		return model.Supplier{}, fmt.Errorf("save supplier: %w", err)
	}
	return s, nil
}

// FindSupplierByDocument implements Store
func (p *Postgres) FindSupplierByDocument(ctx context.Context, document string) (model.Supplier, error) {
	var s model.Supplier
	err := p.pool.QueryRow(ctx, `
		SELECT id::text, name, document FROM suppliers WHERE document = $1`, document,
	).Scan(&s.ID, &s.Name, &s.Document)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Supplier{}, ErrNotFound
	}
	if err != nil {
		return model.Supplier{}, fmt.Errorf("find supplier: %w", err)
	}
	return s, nil
}

// Close releases the pool
func (p *Postgres) Close() {
	p.pool.Close()
}

func scanEntry(row pgx.Row) (model.Entry, error) {
	var (
		e       model.Entry
		payload []byte
	)
	if err := row.Scan(&e.ID, &payload, &e.CreatedAt); err != nil {
		return model.Entry{}, err
	}
	if err := json.Unmarshal(payload, &e.Submission); err != nil {
		return model.Entry{}, fmt.Errorf("decode entry %s: %w", e.ID, err)
	}
	return e, nil
}
