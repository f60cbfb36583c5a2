package run

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists runs.
type Repository interface {
	Create(ctx context.Context, r *Run) error
	Finish(ctx context.Context, r *Run) error
	Get(ctx context.Context, id uuid.UUID) (*Run, error)
	List(ctx context.Context, limit, offset int) ([]*Run, error)
}
