package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mr1hm/go-disaster-nearby/internal/models"
)

var (
	ErrNotFound      = errors.New("disaster not found")
	ErrAlreadyExists = errors.New("disaster already exists")
)

type Filter struct {
	Limit  int
	Offset int
	Since  *time.Time // occurred at or after
	Source string
	Type   string
}

// DisasterRepository is the canonical store: an append-only log of events keyed by id.
// The sync pipeline is its only writer.
type DisasterRepository interface {
	// Append stores d. It never overwrites; an existing id yields ErrAlreadyExists.
	Append(ctx context.Context, d *models.DisasterEvent) error
	// Latest returns the most recent event by OccurredAt, or nil when the store is empty.
	Latest(ctx context.Context) (*models.DisasterEvent, error)
	GetByID(ctx context.Context, id string) (*models.DisasterEvent, error)
	Exists(ctx context.Context, id string) (bool, error)
	// ListDisasters returns events newest first.
	ListDisasters(ctx context.Context, opts Filter) ([]models.DisasterEvent, error)
	Close() error
}
