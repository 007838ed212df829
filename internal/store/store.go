// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"holdings-tracker/internal/models"
)

// RunLog records and lists pipeline passes.
type RunLog interface {
	RecordRun(ctx context.Context, run *models.RefreshRun) error
	Runs(ctx context.Context, filter RunFilter) ([]models.RefreshRun, error)
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
	LastRun(ctx context.Context) (*models.RefreshRun, error)
	Close() error
}

// RunFilter narrows a run listing.
type RunFilter struct {
	BasketKey  string
	FailedOnly bool
	Limit      int
}

var _ RunLog = (*SQLiteStore)(nil)
