// Package artifacts caches rendered acknowledgments on disk and serializes
// their generation per (kind, resource, format).
package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	perrors "citizen-portal/internal/common/errors"
	"citizen-portal/internal/common/logger"
	"citizen-portal/internal/common/metrics"
	"citizen-portal/internal/common/observability"
	"citizen-portal/internal/models"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

// Renderer writes a PDF acknowledgment for rec at path.
type Renderer interface {
	Render(ctx context.Context, rec *models.ApplicationRecord, path string) error
}

// Converter rasterizes pdfPath into jpgPath.
type Converter interface {
	Convert(ctx context.Context, pdfPath, jpgPath string) error
}

type Pipeline struct {
	dir       string
	renderer  Renderer
	converter Converter
	stamps    StampStore
	obs       *observability.Observability
	logger    logger.Logger
	group     singleflight.Group
	now       func() time.Time
}

// NewPipeline creates dir if needed. A nil stamp store or observability
// falls back to in-memory stamps and a no-op recorder.
func NewPipeline(dir string, renderer Renderer, converter Converter, stamps StampStore, obs *observability.Observability, log logger.Logger) (*Pipeline, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, perrors.NewArtifactIOError(dir, err)
	}
	if stamps == nil {
		stamps = NewMemoryStampStore()
	}
	if obs == nil {
		obs = observability.Nop()
	}
	return &Pipeline{
		dir:       dir,
		renderer:  renderer,
		converter: converter,
		stamps:    stamps,
		obs:       obs,
		logger:    logger.ForComponent(log, "artifacts"),
		now:       time.Now,
	}, nil
}

func (p *Pipeline) Dir() string { return p.dir }

// Path is the deterministic location of an artifact.
func (p *Pipeline) Path(kind models.Kind, resourceID string, format models.Format) string {
	return filepath.Join(p.dir, models.FileName(kind, resourceID, format))
}

// Get returns an artifact for rec's current version, generating it when the
// cached file is missing or was built from an older version. Concurrent
// callers for the same artifact share one generation.
func (p *Pipeline) Get(ctx context.Context, rec *models.ApplicationRecord, format models.Format) (models.Artifact, error) {
	if err := ValidateResourceID(rec.ID); err != nil {
		return models.Artifact{}, err
	}
	if format != models.FormatPDF && format != models.FormatJPG {
		return models.Artifact{}, perrors.NewInvalidFormatError(string(format))
	}

	art, err := p.load(ctx, rec, format)
	result := "generated"
	switch {
	case err != nil:
		result = "failed"
	case art.Cached:
		result = "hit"
	}
	metrics.ArtifactRequests.WithLabelValues(string(format), result).Inc()
	return art, err
}

func (p *Pipeline) load(ctx context.Context, rec *models.ApplicationRecord, format models.Format) (models.Artifact, error) {
	key := StampKey(rec.Kind, rec.ID, format)
	// Generation outlives any single waiter; a cancelled caller must not
	// fail the others sharing this flight.
	flightCtx := context.WithoutCancel(ctx)
	snapshot := *rec

	v, err, _ := p.group.Do(key, func() (interface{}, error) {
		return p.ensure(flightCtx, &snapshot, format)
	})
	if err != nil {
		return models.Artifact{}, err
	}
	return v.(models.Artifact), nil
}

func (p *Pipeline) ensure(ctx context.Context, rec *models.ApplicationRecord, format models.Format) (models.Artifact, error) {
	ctx, span := p.obs.StartSpan(ctx, "artifacts.ensure",
		attribute.String("kind", string(rec.Kind)),
		attribute.String("resource.id", rec.ID),
		attribute.String("format", string(format)),
	)
	defer span.End()

	key := StampKey(rec.Kind, rec.ID, format)
	stamp := VersionStamp(rec)
	art := models.Artifact{
		ResourceID: rec.ID,
		Kind:       rec.Kind,
		Format:     format,
		Path:       p.Path(rec.Kind, rec.ID, format),
	}

	if p.fresh(ctx, key, art.Path, stamp) {
		art.Cached = true
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return art, nil
	}

	start := time.Now()
	var err error
	switch format {
	case models.FormatPDF:
		err = p.renderer.Render(ctx, rec, art.Path)
	case models.FormatJPG:
		err = p.convert(ctx, rec, art.Path)
	}
	elapsed := time.Since(start)

	fields := map[string]interface{}{
		"resourceId": rec.ID,
		"kind":       string(rec.Kind),
		"format":     string(format),
		"durationMs": elapsed.Milliseconds(),
	}
	if err != nil {
		p.obs.RecordGeneration(ctx, string(format), "failed", elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		fields["error"] = err
		p.logger.Error("artifact generation failed", fields)
		return models.Artifact{}, err
	}

	if err := p.stamps.Set(ctx, key, stamp); err != nil {
		// The file is good; the next request will just rebuild it.
		fields["error"] = err
		p.logger.Warn("failed to record artifact stamp", fields)
	}
	p.obs.RecordGeneration(ctx, string(format), "generated", elapsed)
	p.logger.Info("artifact generated", fields)
	return art, nil
}

func (p *Pipeline) convert(ctx context.Context, rec *models.ApplicationRecord, jpgPath string) error {
	pdf, err := p.load(ctx, rec, models.FormatPDF)
	if err != nil {
		return err
	}
	if err := p.converter.Convert(ctx, pdf.Path, jpgPath); err != nil {
		return perrors.NewConversionFailedError(rec.ID, err)
	}
	return nil
}

// fresh reports whether path exists and was built from stamp. A file with
// no recorded stamp is stale.
func (p *Pipeline) fresh(ctx context.Context, key, path, stamp string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	got, ok, err := p.stamps.Get(ctx, key)
	if err != nil {
		p.logger.Warn("stamp lookup failed, treating artifact as stale", map[string]interface{}{
			"key":   key,
			"error": err,
		})
		return false
	}
	return ok && got == stamp
}

// Invalidate forgets every cached format of a resource. Files stay on disk
// until regenerated or removed, but are never served again as fresh.
func (p *Pipeline) Invalidate(ctx context.Context, kind models.Kind, resourceID string) error {
	keys := make([]string, 0, len(Formats()))
	for _, f := range Formats() {
		keys = append(keys, StampKey(kind, resourceID, f))
	}
	if err := p.stamps.Delete(ctx, keys...); err != nil {
		return perrors.NewArtifactIOError(p.Path(kind, resourceID, models.FormatPDF), err)
	}
	return nil
}

// Regenerate invalidates all formats and renders a fresh PDF.
func (p *Pipeline) Regenerate(ctx context.Context, rec *models.ApplicationRecord) (models.Artifact, error) {
	if err := ValidateResourceID(rec.ID); err != nil {
		return models.Artifact{}, err
	}
	if err := p.Invalidate(ctx, rec.Kind, rec.ID); err != nil {
		return models.Artifact{}, err
	}
	return p.load(ctx, rec, models.FormatPDF)
}

// Remove deletes every cached file of a resource. Absent files are not an
// error.
func (p *Pipeline) Remove(ctx context.Context, kind models.Kind, resourceID string) error {
	if err := ValidateResourceID(resourceID); err != nil {
		return err
	}

	var firstErr error
	for _, f := range Formats() {
		path := p.Path(kind, resourceID, f)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			p.logger.Warn("failed to remove artifact", map[string]interface{}{"path": path, "error": err})
			if firstErr == nil {
				firstErr = perrors.NewArtifactIOError(path, err)
			}
		}
	}
	if err := p.Invalidate(ctx, kind, resourceID); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// List returns every artifact file currently in the directory.
func (p *Pipeline) List() ([]Entry, error) {
	entries, err := scan(p.dir)
	if err != nil {
		return nil, perrors.NewArtifactIOError(p.dir, err)
	}
	return entries, nil
}

// Purge removes artifacts last written more than olderThan ago.
func (p *Pipeline) Purge(ctx context.Context, olderThan time.Duration) ([]Entry, error) {
	entries, err := p.List()
	if err != nil {
		return nil, err
	}
	cutoff := p.now().Add(-olderThan)

	var removed []Entry
	for _, e := range entries {
		if !e.ModTime.Before(cutoff) {
			continue
		}
		if err := os.Remove(e.Path); err != nil && !os.IsNotExist(err) {
			return removed, perrors.NewArtifactIOError(e.Path, err)
		}
		if err := p.stamps.Delete(ctx, StampKey(e.Kind, e.ResourceID, e.Format)); err != nil {
			return removed, perrors.NewArtifactIOError(e.Path, fmt.Errorf("delete stamp: %w", err))
		}
		removed = append(removed, e)
	}
	return removed, nil
}
