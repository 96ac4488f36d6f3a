// Package storage defines the persistence interface for served predictions.
package storage

import (
	"context"
	"time"

	"github.com/hyperjump/fmrank/internal/models"
)

// PredictionRecord is one served prediction.
type PredictionRecord struct {
	ID         string              `json:"id"`
	Handle     string              `json:"handle"`
	Candidates int                 `json:"candidates"`
	Facts      int                 `json:"facts"`
	K          int                 `json:"k"`
	Results    models.RankedResult `json:"results"`
	TookMs     int64               `json:"took_ms"`
	CreatedAt  time.Time           `json:"created_at"`
}

// Storage defines prediction log operations.
type Storage interface {
	RecordPrediction(ctx context.Context, rec *PredictionRecord) error
	GetPrediction(ctx context.Context, id string) (*PredictionRecord, error)
	ListPredictions(ctx context.Context, offset, limit int) ([]*PredictionRecord, error)
	CountPredictions(ctx context.Context) (int64, error)
	Close() error
}
