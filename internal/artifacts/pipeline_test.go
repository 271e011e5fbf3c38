// internal/artifacts/pipeline_test.go
package artifacts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	perrors "citizen-portal/internal/common/errors"
	"citizen-portal/internal/common/logger"
	"citizen-portal/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Fakes
// ==========================

type countingRenderer struct {
	calls   atomic.Int32
	err     error
	release chan struct{}
}

func (r *countingRenderer) Render(_ context.Context, rec *models.ApplicationRecord, path string) error {
	r.calls.Add(1)
	if r.release != nil {
		<-r.release
	}
	if r.err != nil {
		return r.err
	}
	return os.WriteFile(path, []byte("%PDF-1.3 "+rec.Status), 0o644)
}

type countingConverter struct {
	calls atomic.Int32
	err   error
}

func (c *countingConverter) Convert(_ context.Context, pdfPath, jpgPath string) error {
	c.calls.Add(1)
	if c.err != nil {
		return c.err
	}
	src, err := os.ReadFile(pdfPath)
	if err != nil {
		return err
	}
	return os.WriteFile(jpgPath, append([]byte("JPEG of "), src...), 0o644)
}

func newTestPipeline(t *testing.T) (*Pipeline, *countingRenderer, *countingConverter) {
	t.Helper()
	r := &countingRenderer{}
	c := &countingConverter{}
	p, err := NewPipeline(t.TempDir(), r, c, NewMemoryStampStore(), nil, logger.NewTestLogger(t))
	require.NoError(t, err)
	return p, r, c
}

func record() *models.ApplicationRecord {
	return &models.ApplicationRecord{
		ID:          "G42",
		OwnerUserID: "u1",
		Kind:        models.KindGrievance,
		Status:      "open",
		Title:       "Streetlight",
		UpdatedAt:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

// ==========================
// Idempotence
// ==========================

func TestPipeline_CachedPDFIsServedTwice(t *testing.T) {
	p, r, _ := newTestPipeline(t)
	ctx := context.Background()

	first, err := p.Get(ctx, record(), models.FormatPDF)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, filepath.Join(p.Dir(), "grievance-G42.pdf"), first.Path)

	second, err := p.Get(ctx, record(), models.FormatPDF)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Path, second.Path)
	assert.EqualValues(t, 1, r.calls.Load())
}

func TestPipeline_CachedJPGIsServedTwice(t *testing.T) {
	p, r, c := newTestPipeline(t)
	ctx := context.Background()

	art, err := p.Get(ctx, record(), models.FormatJPG)
	require.NoError(t, err)
	assert.Equal(t, "grievance-G42.jpg", art.FileName())
	assert.FileExists(t, p.Path(models.KindGrievance, "G42", models.FormatPDF))

	again, err := p.Get(ctx, record(), models.FormatJPG)
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.EqualValues(t, 1, r.calls.Load())
	assert.EqualValues(t, 1, c.calls.Load())
}

// ==========================
// Staleness
// ==========================

func TestPipeline_UpdateInvalidatesEveryFormat(t *testing.T) {
	p, r, c := newTestPipeline(t)
	ctx := context.Background()

	_, err := p.Get(ctx, record(), models.FormatJPG)
	require.NoError(t, err)

	updated := record()
	updated.Status = "resolved"
	updated.UpdatedAt = updated.UpdatedAt.Add(time.Hour)

	_, err = p.Regenerate(ctx, updated)
	require.NoError(t, err)
	assert.EqualValues(t, 2, r.calls.Load())

	art, err := p.Get(ctx, updated, models.FormatJPG)
	require.NoError(t, err)
	assert.False(t, art.Cached)
	assert.EqualValues(t, 2, c.calls.Load())

	data, err := os.ReadFile(art.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "resolved")
}

func TestPipeline_ChangedRecordIsStaleWithoutRegenerate(t *testing.T) {
	p, r, _ := newTestPipeline(t)
	ctx := context.Background()

	_, err := p.Get(ctx, record(), models.FormatPDF)
	require.NoError(t, err)

	changed := record()
	changed.Fields = map[string]string{"location": "4th Cross"}
	art, err := p.Get(ctx, changed, models.FormatPDF)
	require.NoError(t, err)
	assert.False(t, art.Cached)
	assert.EqualValues(t, 2, r.calls.Load())
}

func TestPipeline_FileWithoutStampIsStale(t *testing.T) {
	p, r, _ := newTestPipeline(t)
	path := p.Path(models.KindGrievance, "G42", models.FormatPDF)
	require.NoError(t, os.WriteFile(path, []byte("%PDF stale"), 0o644))

	art, err := p.Get(context.Background(), record(), models.FormatPDF)
	require.NoError(t, err)
	assert.False(t, art.Cached)
	assert.EqualValues(t, 1, r.calls.Load())
}

// ==========================
// Single-flight
// ==========================

func TestPipeline_ConcurrentFirstDownloadsRenderOnce(t *testing.T) {
	p, r, c := newTestPipeline(t)
	r.release = make(chan struct{})

	const callers = 12
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Get(context.Background(), record(), models.FormatJPG)
			errs <- err
		}()
	}

	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(r.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, r.calls.Load())
	assert.EqualValues(t, 1, c.calls.Load())
}

func TestPipeline_CancelledWaiterDoesNotAbortGeneration(t *testing.T) {
	p, r, _ := newTestPipeline(t)
	r.release = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.Get(ctx, record(), models.FormatPDF)
		done <- err
	}()

	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	close(r.release)
	require.NoError(t, <-done)
	assert.FileExists(t, p.Path(models.KindGrievance, "G42", models.FormatPDF))
}

// ==========================
// Failures
// ==========================

func TestPipeline_Failures(t *testing.T) {
	t.Run("render failure", func(t *testing.T) {
		p, r, _ := newTestPipeline(t)
		r.err = perrors.NewRenderFailedError("G42", errors.New("font missing"))

		_, err := p.Get(context.Background(), record(), models.FormatPDF)
		assert.True(t, perrors.Is(err, perrors.ErrCodeRenderFailed))
		assert.NoFileExists(t, p.Path(models.KindGrievance, "G42", models.FormatPDF))
	})

	t.Run("conversion failure hints at pdf", func(t *testing.T) {
		p, _, c := newTestPipeline(t)
		c.err = errors.New("all strategies failed")

		_, err := p.Get(context.Background(), record(), models.FormatJPG)
		require.True(t, perrors.Is(err, perrors.ErrCodeConversionFailed))
		stdErr, _ := perrors.As(err)
		assert.Contains(t, stdErr.Message, "download the PDF instead")
		assert.ErrorIs(t, err, c.err)

		// The PDF is still available.
		art, err := p.Get(context.Background(), record(), models.FormatPDF)
		require.NoError(t, err)
		assert.True(t, art.Cached)
	})

	t.Run("path traversal id", func(t *testing.T) {
		p, r, _ := newTestPipeline(t)
		rec := record()
		rec.ID = "../../etc/passwd"

		_, err := p.Get(context.Background(), rec, models.FormatPDF)
		assert.True(t, perrors.Is(err, perrors.ErrCodeInvalidInput))
		assert.EqualValues(t, 0, r.calls.Load())
	})

	t.Run("unknown format", func(t *testing.T) {
		p, _, _ := newTestPipeline(t)
		_, err := p.Get(context.Background(), record(), models.Format("png"))
		assert.True(t, perrors.Is(err, perrors.ErrCodeInvalidFormat))
	})
}

// ==========================
// Remove / List / Purge
// ==========================

func TestPipeline_RemoveIgnoresAbsentFiles(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	ctx := context.Background()

	require.NoError(t, p.Remove(ctx, models.KindGrievance, "G42"))

	_, err := p.Get(ctx, record(), models.FormatJPG)
	require.NoError(t, err)
	require.NoError(t, p.Remove(ctx, models.KindGrievance, "G42"))

	assert.NoFileExists(t, p.Path(models.KindGrievance, "G42", models.FormatPDF))
	assert.NoFileExists(t, p.Path(models.KindGrievance, "G42", models.FormatJPG))
}

func TestPipeline_ListAndPurge(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	ctx := context.Background()

	land := &models.ApplicationRecord{ID: "LR-7", Kind: models.KindLandRecord, Status: "pending"}
	_, err := p.Get(ctx, land, models.FormatPDF)
	require.NoError(t, err)
	_, err = p.Get(ctx, record(), models.FormatPDF)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(p.Dir(), "notes.txt"), []byte("x"), 0o644))

	entries, err := p.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byID := map[string]Entry{}
	for _, e := range entries {
		byID[e.ResourceID] = e
	}
	assert.Equal(t, models.KindLandRecord, byID["LR-7"].Kind)
	assert.Equal(t, models.KindGrievance, byID["G42"].Kind)

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(byID["LR-7"].Path, old, old))

	removed, err := p.Purge(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "LR-7", removed[0].ResourceID)
	assert.NoFileExists(t, byID["LR-7"].Path)
	assert.FileExists(t, byID["G42"].Path)
}

func TestParseFileName(t *testing.T) {
	tests := []struct {
		name   string
		kind   models.Kind
		id     string
		format models.Format
		ok     bool
	}{
		{"grievance-G42.pdf", models.KindGrievance, "G42", models.FormatPDF, true},
		{"land-record-7.jpg", models.KindLandRecord, "7", models.FormatJPG, true},
		{"scheme-a-b-c.pdf", models.KindSchemeApplication, "a-b-c", models.FormatPDF, true},
		{"grievance-G42.jpg.tmp.png", "", "", "", false},
		{"passport-1.pdf", "", "", "", false},
		{"grievance-.pdf", "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, id, format, ok := parseFileName(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.format, format)
		})
	}
}
