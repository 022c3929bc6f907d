package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mr1hm/go-disaster-nearby/internal/geo"
	"github.com/mr1hm/go-disaster-nearby/internal/models"
)

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(ctx context.Context, dsn string) (*PostgresDB, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	p := &PostgresDB{
		pool: pool,
	}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return p, nil
}

func (p *PostgresDB) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS disasters (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    name TEXT NOT NULL,
    type TEXT NOT NULL,
    latitude DOUBLE PRECISION NOT NULL,
    longitude DOUBLE PRECISION NOT NULL,
    occurred_at TIMESTAMPTZ NOT NULL,
    county TEXT,
    state TEXT,
    country TEXT,
    raw BYTEA,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_disasters_occurred_at ON disasters (occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_disasters_type ON disasters (type);`

	_, err := p.pool.Exec(ctx, schema)
	return err
}

func (p *PostgresDB) Append(ctx context.Context, d *models.DisasterEvent) error {
	tag, err := p.pool.Exec(ctx, `
INSERT INTO disasters (id, source, name, type, latitude, longitude, occurred_at, county, state, country, raw, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO NOTHING`,
		d.ID, d.Source, d.Name, d.Type,
		d.Coordinate.Latitude, d.Coordinate.Longitude,
		d.OccurredAt.UTC(),
		d.County, d.State, d.Country,
		d.Raw,
		d.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("error inserting disaster %s: %w", d.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, d.ID)
	}
	return nil
}

const pgSelectColumns = `SELECT id, source, name, type, latitude, longitude, occurred_at, county, state, country, raw, created_at FROM disasters`

func (p *PostgresDB) Latest(ctx context.Context) (*models.DisasterEvent, error) {
	row := p.pool.QueryRow(ctx, pgSelectColumns+` ORDER BY occurred_at DESC, created_at DESC LIMIT 1`)
	d, err := scanPgDisaster(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading latest disaster: %w", err)
	}
	return d, nil
}

func (p *PostgresDB) GetByID(ctx context.Context, id string) (*models.DisasterEvent, error) {
	row := p.pool.QueryRow(ctx, pgSelectColumns+` WHERE id = $1`, id)
	d, err := scanPgDisaster(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("error reading disaster %s: %w", id, err)
	}
	return d, nil
}

func (p *PostgresDB) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM disasters WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking disaster %s: %w", id, err)
	}
	return exists, nil
}

func (p *PostgresDB) ListDisasters(ctx context.Context, opts Filter) ([]models.DisasterEvent, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if opts.Since != nil {
		where = append(where, "occurred_at >= "+arg(opts.Since.UTC()))
	}
	if opts.Source != "" {
		where = append(where, "source = "+arg(opts.Source))
	}
	if opts.Type != "" {
		where = append(where, "type = "+arg(opts.Type))
	}

	query := pgSelectColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY occurred_at DESC, created_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT " + arg(opts.Limit) + " OFFSET " + arg(opts.Offset)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing disasters: %w", err)
	}
	defer rows.Close()

	var out []models.DisasterEvent
	for rows.Next() {
		d, err := scanPgDisaster(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning disaster: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (p *PostgresDB) Close() error {
	p.pool.Close()
	return nil
}

func scanPgDisaster(row pgx.Row) (*models.DisasterEvent, error) {
	var (
		d                      models.DisasterEvent
		lat, lon               float64
		county, state, country *string
	)
	err := row.Scan(&d.ID, &d.Source, &d.Name, &d.Type, &lat, &lon, &d.OccurredAt,
		&county, &state, &country, &d.Raw, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	d.Coordinate = geo.Coordinate{Latitude: lat, Longitude: lon}
	d.OccurredAt = d.OccurredAt.UTC()
	d.CreatedAt = d.CreatedAt.UTC()
	d.County, d.State, d.Country = deref(county), deref(state), deref(country)
	return &d, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
