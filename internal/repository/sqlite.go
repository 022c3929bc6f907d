package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mr1hm/go-disaster-nearby/internal/geo"
	"github.com/mr1hm/go-disaster-nearby/internal/models"
)

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// :memory: databases are per connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

// Timestamps are unix microseconds so ordering is numeric, not lexical, and any year fits.
func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS disasters (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			occurred_at INTEGER NOT NULL,
			county TEXT,
			state TEXT,
			country TEXT,
			raw BLOB,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_disasters_occurred_at ON disasters(occurred_at);
		CREATE INDEX IF NOT EXISTS idx_disasters_type ON disasters(type);
  	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Append(ctx context.Context, d *models.DisasterEvent) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO disasters (id, source, name, type, latitude, longitude, occurred_at, county, state, country, raw, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		d.ID, d.Source, d.Name, d.Type,
		d.Coordinate.Latitude, d.Coordinate.Longitude,
		d.OccurredAt.UnixMicro(),
		d.County, d.State, d.Country,
		d.Raw,
		d.CreatedAt.UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("error inserting disaster %s: %w", d.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, d.ID)
	}
	return nil
}

const selectColumns = `SELECT id, source, name, type, latitude, longitude, occurred_at, county, state, country, raw, created_at FROM disasters`

func (s *SQLiteDB) Latest(ctx context.Context) (*models.DisasterEvent, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` ORDER BY occurred_at DESC, created_at DESC LIMIT 1`)
	d, err := scanDisaster(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading latest disaster: %w", err)
	}
	return d, nil
}

func (s *SQLiteDB) GetByID(ctx context.Context, id string) (*models.DisasterEvent, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	d, err := scanDisaster(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("error reading disaster %s: %w", id, err)
	}
	return d, nil
}

func (s *SQLiteDB) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM disasters WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("error checking disaster %s: %w", id, err)
	}
	return n > 0, nil
}

func (s *SQLiteDB) ListDisasters(ctx context.Context, opts Filter) ([]models.DisasterEvent, error) {
	var (
		where []string
		args  []any
	)
	if opts.Since != nil {
		where = append(where, "occurred_at >= ?")
		args = append(args, opts.Since.UnixMicro())
	}
	if opts.Source != "" {
		where = append(where, "source = ?")
		args = append(args, opts.Source)
	}
	if opts.Type != "" {
		where = append(where, "type = ?")
		args = append(args, opts.Type)
	}

	query := selectColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY occurred_at DESC, created_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing disasters: %w", err)
	}
	defer rows.Close()

	var out []models.DisasterEvent
	for rows.Next() {
		d, err := scanDisaster(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning disaster: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDisaster(row scanner) (*models.DisasterEvent, error) {
	var (
		d                      models.DisasterEvent
		lat, lon               float64
		occurredAt, createdAt  int64
		county, state, country sql.NullString
	)
	err := row.Scan(&d.ID, &d.Source, &d.Name, &d.Type, &lat, &lon, &occurredAt,
		&county, &state, &country, &d.Raw, &createdAt)
	if err != nil {
		return nil, err
	}
	d.Coordinate = geo.Coordinate{Latitude: lat, Longitude: lon}
	d.OccurredAt = time.UnixMicro(occurredAt).UTC()
	d.CreatedAt = time.UnixMicro(createdAt).UTC()
	d.County, d.State, d.Country = county.String, state.String, country.String
	return &d, nil
}
