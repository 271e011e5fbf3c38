// Package workflow runs the create/update/resolve/delete/download actions
// of every resource kind: persist, then notify the owner, then refresh the
// acknowledgment.
package workflow

import (
	"context"
	"time"

	perrors "citizen-portal/internal/common/errors"
	"citizen-portal/internal/common/logger"
	"citizen-portal/internal/models"
	"citizen-portal/internal/notifier"
	"citizen-portal/internal/store"

	"github.com/google/uuid"
)

// Notifier delivers one event, best-effort.
type Notifier interface {
	Emit(ctx context.Context, ev models.NotificationEvent) notifier.Result
}

// Artifacts is the acknowledgment cache.
type Artifacts interface {
	Get(ctx context.Context, rec *models.ApplicationRecord, format models.Format) (models.Artifact, error)
	Regenerate(ctx context.Context, rec *models.ApplicationRecord) (models.Artifact, error)
	Remove(ctx context.Context, kind models.Kind, resourceID string) error
}

type CreateInput struct {
	Kind        models.Kind
	OwnerUserID string
	Title       string
	Status      string // empty means the kind's initial status
	Fields      map[string]string
}

// UpdateInput carries a partial update. Nil pointers leave the value
// unchanged; a field set to "" is removed.
type UpdateInput struct {
	Status *string
	Title  *string
	Fields map[string]string
}

func (in UpdateInput) empty() bool {
	return in.Status == nil && in.Title == nil && len(in.Fields) == 0
}

type Service struct {
	store     store.Store
	notifier  Notifier
	artifacts Artifacts
	logger    logger.Logger
	now       func() time.Time
	newID     func() string
}

func NewService(st store.Store, n Notifier, a Artifacts, log logger.Logger) *Service {
	return &Service{
		store:     st,
		notifier:  n,
		artifacts: a,
		logger:    logger.ForComponent(log, "workflow"),
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

func kindSpec(kind models.Kind) (models.KindSpec, error) {
	spec, ok := kind.Spec()
	if !ok {
		return models.KindSpec{}, perrors.NewInvalidKindError(string(kind))
	}
	return spec, nil
}

// Get returns one record.
func (s *Service) Get(ctx context.Context, kind models.Kind, id string) (*models.ApplicationRecord, error) {
	if _, err := kindSpec(kind); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, kind, id)
}

// List returns every record of kind.
func (s *Service) List(ctx context.Context, kind models.Kind) ([]*models.ApplicationRecord, error) {
	if _, err := kindSpec(kind); err != nil {
		return nil, err
	}
	return s.store.List(ctx, kind)
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*models.ApplicationRecord, error) {
	spec, err := kindSpec(in.Kind)
	if err != nil {
		return nil, err
	}
	if in.OwnerUserID == "" {
		return nil, perrors.NewInvalidInputError("owner user id is required")
	}

	now := s.timestamp()
	rec := &models.ApplicationRecord{
		ID:          s.newID(),
		OwnerUserID: in.OwnerUserID,
		Kind:        in.Kind,
		Status:      in.Status,
		Title:       in.Title,
		Fields:      copyFields(in.Fields),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if rec.Status == "" {
		rec.Status = spec.InitialStatus
	}

	if err := s.store.Create(ctx, rec); err != nil {
		return nil, err
	}

	s.emit(ctx, rec, rec.Status, models.ActionCreated, createdMessage(spec, rec))
	s.regenerate(ctx, rec)
	return rec, nil
}

func (s *Service) Update(ctx context.Context, kind models.Kind, id string, in UpdateInput) (*models.ApplicationRecord, error) {
	spec, err := kindSpec(kind)
	if err != nil {
		return nil, err
	}
	if in.empty() {
		return nil, perrors.NewInvalidInputError("update must change status, title or fields")
	}

	rec, err := s.store.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	statusChanged := false
	if in.Status != nil && *in.Status != rec.Status {
		rec.Status = *in.Status
		statusChanged = true
	}
	if in.Title != nil {
		rec.Title = *in.Title
	}
	for k, v := range in.Fields {
		if rec.Fields == nil {
			rec.Fields = make(map[string]string)
		}
		if v == "" {
			delete(rec.Fields, k)
			continue
		}
		rec.Fields[k] = v
	}
	rec.UpdatedAt = s.timestamp()

	if err := s.store.Update(ctx, rec); err != nil {
		return nil, err
	}

	s.emit(ctx, rec, rec.Status, models.ActionUpdated, updatedMessage(spec, rec, statusChanged))
	s.regenerate(ctx, rec)
	return rec, nil
}

// Resolve moves a record to its terminal status. An empty outcome means
// the kind's default resolved status.
func (s *Service) Resolve(ctx context.Context, kind models.Kind, id, outcome string) (*models.ApplicationRecord, error) {
	spec, err := kindSpec(kind)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	if outcome == "" {
		outcome = spec.ResolvedStatus
	}
	rec.Status = outcome
	rec.UpdatedAt = s.timestamp()

	if err := s.store.Update(ctx, rec); err != nil {
		return nil, err
	}

	s.emit(ctx, rec, rec.Status, models.ActionResolved, resolvedMessage(spec, rec))
	s.regenerate(ctx, rec)
	return rec, nil
}

// Delete removes the record and its cached acknowledgments, then tells the
// owner with a terminal Deleted event.
func (s *Service) Delete(ctx context.Context, kind models.Kind, id string) error {
	spec, err := kindSpec(kind)
	if err != nil {
		return err
	}
	rec, err := s.store.Get(ctx, kind, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, kind, id); err != nil {
		return err
	}

	if s.artifacts != nil {
		if err := s.artifacts.Remove(ctx, kind, id); err != nil {
			s.logger.Warn("failed to remove cached artifacts", map[string]interface{}{
				"resourceId": id,
				"kind":       string(kind),
				"error":      err,
			})
		}
	}

	s.emit(ctx, rec, models.StatusDeleted, models.ActionDeleted, deletedMessage(spec, rec))
	return nil
}

// Download serves the acknowledgment in format and records the access.
func (s *Service) Download(ctx context.Context, kind models.Kind, id string, format models.Format) (models.Artifact, *models.ApplicationRecord, error) {
	spec, err := kindSpec(kind)
	if err != nil {
		return models.Artifact{}, nil, err
	}
	if s.artifacts == nil {
		return models.Artifact{}, nil, perrors.NewInternalError(errNoArtifacts)
	}
	rec, err := s.store.Get(ctx, kind, id)
	if err != nil {
		return models.Artifact{}, nil, err
	}

	art, err := s.artifacts.Get(ctx, rec, format)
	if err != nil {
		return models.Artifact{}, nil, err
	}

	s.emit(ctx, rec, rec.Status, models.ActionDownloaded, downloadedMessage(spec, rec, format))
	return art, rec, nil
}

// timestamp is the record clock. Postgres keeps microseconds, so anything
// finer would not survive a round trip through the store.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Service) emit(ctx context.Context, rec *models.ApplicationRecord, status string, action models.Action, message string) {
	if s.notifier == nil {
		return
	}
	_ = s.notifier.Emit(ctx, models.NotificationEvent{
		TargetUserID: rec.OwnerUserID,
		ResourceID:   rec.ID,
		Kind:         rec.Kind,
		Status:       status,
		Message:      message,
		Action:       action,
		Timestamp:    s.now().UTC(),
	})
}

// regenerate refreshes the PDF. Failure never fails the mutation.
func (s *Service) regenerate(ctx context.Context, rec *models.ApplicationRecord) {
	if s.artifacts == nil {
		return
	}
	if _, err := s.artifacts.Regenerate(ctx, rec); err != nil {
		s.logger.Warn("acknowledgment regeneration failed", map[string]interface{}{
			"resourceId": rec.ID,
			"kind":       string(rec.Kind),
			"errorCode":  string(perrors.CodeOf(err)),
			"error":      err,
		})
	}
}

func copyFields(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		if v != "" {
			out[k] = v
		}
	}
	return out
}
