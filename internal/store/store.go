// Package store persists application records.
package store

import (
	"context"

	"citizen-portal/internal/models"
)

// Store is the persistence collaborator behind every workflow mutation.
// Missing records surface as RESOURCE_NOT_FOUND.
type Store interface {
	Create(ctx context.Context, rec *models.ApplicationRecord) error
	Get(ctx context.Context, kind models.Kind, id string) (*models.ApplicationRecord, error)
	Update(ctx context.Context, rec *models.ApplicationRecord) error
	Delete(ctx context.Context, kind models.Kind, id string) error
	List(ctx context.Context, kind models.Kind) ([]*models.ApplicationRecord, error)
}

func clone(rec *models.ApplicationRecord) *models.ApplicationRecord {
	out := *rec
	if rec.Fields != nil {
		out.Fields = make(map[string]string, len(rec.Fields))
		for k, v := range rec.Fields {
			out.Fields[k] = v
		}
	}
	return &out
}
