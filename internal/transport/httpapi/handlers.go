// internal/transport/httpapi/handlers.go
package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	perrors "citizen-portal/internal/common/errors"
	"citizen-portal/internal/common/validation"
	"citizen-portal/internal/models"
	"citizen-portal/internal/workflow"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

var payloadSchema = validation.MustCompile("application-payload", validation.ApplicationPayloadSchema)

type applicationPayload struct {
	Title  *string           `json:"title"`
	Status *string           `json:"status"`
	Fields map[string]string `json:"fields"`
}

func (s *Server) kind(r *http.Request) (models.Kind, error) {
	raw := chi.URLParam(r, "kind")
	kind, err := models.ParseKind(raw)
	if err != nil {
		return "", perrors.NewInvalidKindError(raw)
	}
	return kind, nil
}

// decodePayload validates the body against the payload schema. An empty
// body decodes to the zero payload.
func decodePayload(w http.ResponseWriter, r *http.Request) (applicationPayload, error) {
	var p applicationPayload
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return p, perrors.NewInvalidInputError(fmt.Sprintf("read body: %v", err))
	}
	if len(body) == 0 {
		return p, nil
	}

	result, err := payloadSchema.ValidateBytes(body)
	if err != nil {
		return p, perrors.NewInvalidInputError("body is not valid JSON")
	}
	if !result.Valid {
		return p, perrors.NewInvalidInputError(result.Error())
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return p, perrors.NewInvalidInputError(err.Error())
	}
	return p, nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	kind, err := s.kind(r)
	if err != nil {
		s.errors.WriteHTTP(w, r, err)
		return
	}
	recs, err := s.workflow.List(r.Context(), kind)
	if err != nil {
		s.errors.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": recs, "count": len(recs)})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	kind, err := s.kind(r)
	if err != nil {
		s.errors.WriteHTTP(w, r, err)
		return
	}
	owner := r.Header.Get(UserIDHeader)
	if owner == "" {
		s.errors.WriteHTTP(w, r, perrors.NewForbiddenError(UserIDHeader+" header is required"))
		return
	}
	p, err := decodePayload(w, r)
	if err != nil {
		s.errors.WriteHTTP(w, r, err)
		return
	}

	in := workflow.CreateInput{Kind: kind, OwnerUserID: owner, Fields: p.Fields}
	if p.Title != nil {
		in.Title = *p.Title
	}
	if p.Status != nil {
		in.Status = *p.Status
	}

	rec, err := s.workflow.Create(r.Context(), in)
	if err != nil {
		s.errors.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	kind, err := s.kind(r)
	if err != nil {
		s.errors.WriteHTTP(w, r, err)
		return
	}
	rec, err := s.workflow.Get(r.Context(), kind, chi.URLParam(r, "id"))
	if err != nil {
		s.errors.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	kind, err := s.kind(r)
	if err != nil {
		s.errors.WriteHTTP(w, r, err)
		return
	}
	p, err := decodePayload(w, r)
	if err != nil {
		s.errors.WriteHTTP(w, r, err)
		return
	}

	rec, err := s.workflow.Update(r.Context(), kind, chi.URLParam(r, "id"), workflow.UpdateInput{
		Status: p.Status,
		Title:  p.Title,
		Fields: p.Fields,
	})
	if err != nil {
		s.errors.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	kind, err := s.kind(r)
	if err != nil {
		s.errors.WriteHTTP(w, r, err)
		return
	}
	p, err := decodePayload(w, r)
	if err != nil {
		s.errors.WriteHTTP(w, r, err)
		return
	}
	outcome := ""
	if p.Status != nil {
		outcome = *p.Status
	}

	rec, err := s.workflow.Resolve(r.Context(), kind, chi.URLParam(r, "id"), outcome)
	if err != nil {
		s.errors.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	kind, err := s.kind(r)
	if err != nil {
		s.errors.WriteHTTP(w, r, err)
		return
	}
	if err := s.workflow.Delete(r.Context(), kind, chi.URLParam(r, "id")); err != nil {
		s.errors.WriteHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	kind, err := s.kind(r)
	if err != nil {
		s.errors.WriteHTTP(w, r, err)
		return
	}
	rawFormat := r.URL.Query().Get("format")
	format, err := models.ParseFormat(rawFormat)
	if err != nil {
		s.errors.WriteHTTP(w, r, perrors.NewInvalidFormatError(rawFormat))
		return
	}

	art, _, err := s.workflow.Download(r.Context(), kind, chi.URLParam(r, "id"), format)
	if err != nil {
		s.errors.WriteHTTP(w, r, err)
		return
	}

	f, err := os.Open(art.Path)
	if err != nil {
		s.errors.WriteHTTP(w, r, perrors.NewArtifactIOError(art.Path, err))
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		s.errors.WriteHTTP(w, r, perrors.NewArtifactIOError(art.Path, err))
		return
	}

	cache := "miss"
	if art.Cached {
		cache = "hit"
	}
	w.Header().Set("Content-Type", format.MIMEType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, art.FileName()))
	w.Header().Set("X-Artifact-Cache", cache)
	http.ServeContent(w, r, art.FileName(), info.ModTime(), f)
}
