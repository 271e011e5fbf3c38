// internal/workflow/service_test.go
package workflow

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"citizen-portal/internal/artifacts"
	perrors "citizen-portal/internal/common/errors"
	"citizen-portal/internal/common/logger"
	"citizen-portal/internal/models"
	"citizen-portal/internal/notifier"
	"citizen-portal/internal/presence"
	"citizen-portal/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type recordingConn struct {
	mu     sync.Mutex
	handle string
	sent   []models.ApplicationUpdatePayload
}

func (c *recordingConn) Handle() string { return c.handle }

func (c *recordingConn) Send(_ context.Context, event string, payload interface{}) error {
	if event != models.EventApplicationUpdate {
		return errors.New("unexpected event " + event)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, payload.(models.ApplicationUpdatePayload))
	return nil
}

func (c *recordingConn) payloads() []models.ApplicationUpdatePayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.ApplicationUpdatePayload(nil), c.sent...)
}

type stubRenderer struct {
	err   error
	calls atomic.Int32
}

func (r *stubRenderer) Render(_ context.Context, rec *models.ApplicationRecord, path string) error {
	r.calls.Add(1)
	if r.err != nil {
		return r.err
	}
	return os.WriteFile(path, []byte("%PDF "+rec.Status), 0o644)
}

type stubConverter struct{ err error }

func (c *stubConverter) Convert(_ context.Context, _, jpgPath string) error {
	if c.err != nil {
		return c.err
	}
	return os.WriteFile(jpgPath, []byte("jpeg"), 0o644)
}

type fixture struct {
	svc      *Service
	registry *presence.Registry
	pipeline *artifacts.Pipeline
	renderer *stubRenderer
	conv     *stubConverter
	store    *store.MemoryStore
}

var fixedNow = time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.NewTestLogger(t)
	reg := presence.NewRegistry()
	r := &stubRenderer{}
	c := &stubConverter{}
	p, err := artifacts.NewPipeline(t.TempDir(), r, c, artifacts.NewMemoryStampStore(), nil, log)
	require.NoError(t, err)
	st := store.NewMemoryStore()

	svc := NewService(st, notifier.New(reg, log, time.Second), p, log)
	svc.now = func() time.Time { return fixedNow }
	ids := 0
	svc.newID = func() string {
		ids++
		return []string{"G42", "G43", "G44"}[ids-1]
	}
	return &fixture{svc: svc, registry: reg, pipeline: p, renderer: r, conv: c, store: st}
}

// microsecondStore returns timestamps the way Postgres TIMESTAMPTZ does.
type microsecondStore struct {
	*store.MemoryStore
}

func (m microsecondStore) Get(ctx context.Context, kind models.Kind, id string) (*models.ApplicationRecord, error) {
	rec, err := m.MemoryStore.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = rec.CreatedAt.Truncate(time.Microsecond)
	rec.UpdatedAt = rec.UpdatedAt.Truncate(time.Microsecond)
	return rec, nil
}

func (f *fixture) join(userID, handle string) *recordingConn {
	conn := &recordingConn{handle: handle}
	f.registry.Register(userID, conn)
	return conn
}

func (f *fixture) createStreetlight(t *testing.T) *models.ApplicationRecord {
	t.Helper()
	rec, err := f.svc.Create(context.Background(), CreateInput{
		Kind:        models.KindGrievance,
		OwnerUserID: "u1",
		Title:       "Streetlight",
		Fields:      map[string]string{"category": "Electricity", "description": "Out for a week"},
	})
	require.NoError(t, err)
	return rec
}

// ==========================
// Scenarios
// ==========================

func TestService_CreateNotifiesOnlineOwner(t *testing.T) {
	f := newFixture(t)
	s1 := f.join("u1", "s1")

	rec := f.createStreetlight(t)
	assert.Equal(t, "G42", rec.ID)
	assert.Equal(t, "open", rec.Status)

	require.Len(t, s1.payloads(), 1)
	assert.Equal(t, models.ApplicationUpdatePayload{
		ApplicationID: "G42",
		ServiceType:   "Grievances",
		Status:        "open",
		Message:       `Grievance "Streetlight" filed successfully`,
		Action:        "created",
		Timestamp:     "2026-05-06T07:08:09Z",
	}, s1.payloads()[0])

	assert.FileExists(t, f.pipeline.Path(models.KindGrievance, "G42", models.FormatPDF))
}

func TestService_UpdateAfterDisconnectDeliversToNobody(t *testing.T) {
	f := newFixture(t)
	s1 := f.join("u1", "s1")
	f.createStreetlight(t)

	f.registry.Unregister("s1")

	status := "in-progress"
	rec, err := f.svc.Update(context.Background(), models.KindGrievance, "G42", UpdateInput{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, "in-progress", rec.Status)
	assert.Len(t, s1.payloads(), 1, "only the create event was delivered")
}

func TestService_DeleteCascades(t *testing.T) {
	f := newFixture(t)
	s1 := f.join("u1", "s1")
	ctx := context.Background()
	f.createStreetlight(t)

	_, _, err := f.svc.Download(ctx, models.KindGrievance, "G42", models.FormatJPG)
	require.NoError(t, err)
	pdf := f.pipeline.Path(models.KindGrievance, "G42", models.FormatPDF)
	jpg := f.pipeline.Path(models.KindGrievance, "G42", models.FormatJPG)
	require.FileExists(t, pdf)
	require.FileExists(t, jpg)

	require.NoError(t, f.svc.Delete(ctx, models.KindGrievance, "G42"))
	assert.NoFileExists(t, pdf)
	assert.NoFileExists(t, jpg)

	got := s1.payloads()
	last := got[len(got)-1]
	assert.Equal(t, models.StatusDeleted, last.Status)
	assert.Equal(t, "deleted", last.Action)
	assert.Equal(t, `Grievance "Streetlight" has been deleted`, last.Message)

	_, err = f.svc.Get(ctx, models.KindGrievance, "G42")
	assert.True(t, perrors.Is(err, perrors.ErrCodeResourceNotFound))
}

func TestService_DeleteWithoutCachedFiles(t *testing.T) {
	f := newFixture(t)
	s1 := f.join("u1", "s1")
	ctx := context.Background()
	f.createStreetlight(t)
	require.NoError(t, f.pipeline.Remove(ctx, models.KindGrievance, "G42"))

	require.NoError(t, f.svc.Delete(ctx, models.KindGrievance, "G42"))
	got := s1.payloads()
	assert.Equal(t, models.StatusDeleted, got[len(got)-1].Status)
}

// ==========================
// Messages per action
// ==========================

func TestService_Messages(t *testing.T) {
	f := newFixture(t)
	s1 := f.join("u1", "s1")
	ctx := context.Background()
	f.createStreetlight(t)

	status := "in-progress"
	_, err := f.svc.Update(ctx, models.KindGrievance, "G42", UpdateInput{Status: &status})
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, models.KindGrievance, "G42", UpdateInput{Fields: map[string]string{"location": "4th Cross"}})
	require.NoError(t, err)
	_, err = f.svc.Resolve(ctx, models.KindGrievance, "G42", "")
	require.NoError(t, err)
	_, _, err = f.svc.Download(ctx, models.KindGrievance, "G42", models.FormatPDF)
	require.NoError(t, err)

	var messages []string
	for _, p := range s1.payloads() {
		messages = append(messages, p.Message)
	}
	assert.Equal(t, []string{
		`Grievance "Streetlight" filed successfully`,
		`Grievance "Streetlight" status updated to in-progress`,
		`Grievance "Streetlight" has been updated`,
		`Grievance "Streetlight" has been resolved`,
		`Grievance "Streetlight" acknowledgment downloaded as PDF`,
	}, messages)
}

func TestService_CreatedMessagePerKind(t *testing.T) {
	tests := []struct {
		kind   models.Kind
		fields map[string]string
		want   string
		status string
	}{
		{models.KindCertificate, map[string]string{"certificateType": "Income"}, `Certificate application "Income" submitted successfully`, "Submitted"},
		{models.KindSchemeApplication, map[string]string{"schemeName": "PM-KISAN"}, `Scheme application "PM-KISAN" submitted successfully`, "pending"},
		{models.KindLandRecord, map[string]string{"surveyNumber": "123/4"}, `Land record "123/4" registered successfully`, "pending"},
		{models.KindProperty, map[string]string{"propertyNumber": "P-9"}, `Property tax record "P-9" registered successfully`, "pending"},
		{models.KindMutation, map[string]string{"surveyNumber": "77"}, `Mutation request "77" submitted successfully`, "pending"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			f := newFixture(t)
			s1 := f.join("u1", "s1")

			rec, err := f.svc.Create(context.Background(), CreateInput{Kind: tt.kind, OwnerUserID: "u1", Fields: tt.fields})
			require.NoError(t, err)
			assert.Equal(t, tt.status, rec.Status)
			require.Len(t, s1.payloads(), 1)
			assert.Equal(t, tt.want, s1.payloads()[0].Message)
		})
	}
}

func TestService_ResolveWithOutcome(t *testing.T) {
	f := newFixture(t)
	s1 := f.join("u1", "s1")
	_, err := f.svc.Create(context.Background(), CreateInput{
		Kind: models.KindSchemeApplication, OwnerUserID: "u1", Fields: map[string]string{"schemeName": "PM-KISAN"},
	})
	require.NoError(t, err)

	rec, err := f.svc.Resolve(context.Background(), models.KindSchemeApplication, "G42", "rejected")
	require.NoError(t, err)
	assert.Equal(t, "rejected", rec.Status)
	assert.Equal(t, `Scheme application "PM-KISAN" has been rejected`, s1.payloads()[1].Message)
}

// ==========================
// Failure handling
// ==========================

func TestService_RenderFailureDoesNotFailMutation(t *testing.T) {
	f := newFixture(t)
	s1 := f.join("u1", "s1")
	f.renderer.err = perrors.NewRenderFailedError("G42", errors.New("disk full"))

	rec := f.createStreetlight(t)
	assert.Equal(t, "G42", rec.ID)
	assert.Len(t, s1.payloads(), 1)

	_, _, err := f.svc.Download(context.Background(), models.KindGrievance, "G42", models.FormatPDF)
	assert.True(t, perrors.Is(err, perrors.ErrCodeRenderFailed))
	assert.Len(t, s1.payloads(), 1, "failed downloads are not announced")
}

func TestService_ConversionFailureSurfacesWithPDFHint(t *testing.T) {
	f := newFixture(t)
	f.createStreetlight(t)
	f.conv.err = errors.New("no rasterizer available")

	_, _, err := f.svc.Download(context.Background(), models.KindGrievance, "G42", models.FormatJPG)
	require.True(t, perrors.Is(err, perrors.ErrCodeConversionFailed))
	stdErr, _ := perrors.As(err)
	assert.Contains(t, stdErr.Message, "PDF")
}

func TestService_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateInput{Kind: "passport", OwnerUserID: "u1"})
	assert.True(t, perrors.Is(err, perrors.ErrCodeInvalidKind))

	_, err = f.svc.Create(ctx, CreateInput{Kind: models.KindGrievance})
	assert.True(t, perrors.Is(err, perrors.ErrCodeInvalidInput))

	_, err = f.svc.Update(ctx, models.KindGrievance, "G42", UpdateInput{})
	assert.True(t, perrors.Is(err, perrors.ErrCodeInvalidInput))

	status := "closed"
	_, err = f.svc.Update(ctx, models.KindGrievance, "missing", UpdateInput{Status: &status})
	assert.True(t, perrors.Is(err, perrors.ErrCodeResourceNotFound))

	assert.True(t, perrors.Is(f.svc.Delete(ctx, models.KindGrievance, "missing"), perrors.ErrCodeResourceNotFound))

	_, _, err = f.svc.Download(ctx, models.KindGrievance, "missing", models.FormatPDF)
	assert.True(t, perrors.Is(err, perrors.ErrCodeResourceNotFound))
}

func TestService_OfflineOwnerStillSucceeds(t *testing.T) {
	f := newFixture(t)
	rec := f.createStreetlight(t)
	require.NoError(t, f.svc.Delete(context.Background(), rec.Kind, rec.ID))
}

func TestService_RegeneratedPDFSurvivesStoreRoundTrip(t *testing.T) {
	log := logger.NewTestLogger(t)
	r := &stubRenderer{}
	p, err := artifacts.NewPipeline(t.TempDir(), r, &stubConverter{}, artifacts.NewMemoryStampStore(), nil, log)
	require.NoError(t, err)

	svc := NewService(microsecondStore{store.NewMemoryStore()}, nil, p, log)
	svc.now = func() time.Time { return time.Date(2026, 5, 6, 7, 8, 9, 123456789, time.UTC) }
	svc.newID = func() string { return "G42" }

	ctx := context.Background()
	rec, err := svc.Create(ctx, CreateInput{
		Kind:        models.KindGrievance,
		OwnerUserID: "u1",
		Title:       "Streetlight",
		Fields:      map[string]string{"category": "Electricity", "description": "Out for a week"},
	})
	require.NoError(t, err)
	assert.Equal(t, 123456000, rec.UpdatedAt.Nanosecond())
	require.EqualValues(t, 1, r.calls.Load())

	for i := 0; i < 2; i++ {
		_, _, err := svc.Download(ctx, models.KindGrievance, "G42", models.FormatPDF)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, r.calls.Load(), "unmodified record must not render again")

	_, err = svc.Update(ctx, models.KindGrievance, "G42", UpdateInput{Fields: map[string]string{"location": "Ward 9"}})
	require.NoError(t, err)
	_, _, err = svc.Download(ctx, models.KindGrievance, "G42", models.FormatPDF)
	require.NoError(t, err)
	assert.EqualValues(t, 2, r.calls.Load())
}
