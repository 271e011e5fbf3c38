// Package render writes single-page acknowledgment PDFs.
package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	perrors "citizen-portal/internal/common/errors"
	"citizen-portal/internal/common/logger"
	"citizen-portal/internal/common/metrics"
	"citizen-portal/internal/models"

	"github.com/go-pdf/fpdf"
)

// A4 portrait, millimetres.
const (
	pageWidth    = 210.0
	pageHeight   = 297.0
	margin       = 20.0
	contentWidth = pageWidth - 2*margin
	labelWidth   = 55.0
	lineHeight   = 7.0
	footerTop    = pageHeight - 62.0
	maxValueLen  = 600
)

type Renderer struct {
	portalTitle string
	logger      logger.Logger
	now         func() time.Time
}

func New(portalTitle string, log logger.Logger) *Renderer {
	return &Renderer{
		portalTitle: portalTitle,
		logger:      logger.ForComponent(log, "render"),
		now:         time.Now,
	}
}

// Render writes rec's acknowledgment to path. The file is built beside
// path and renamed into place, so readers never see a partial PDF.
func (r *Renderer) Render(ctx context.Context, rec *models.ApplicationRecord, path string) error {
	start := time.Now()
	defer func() {
		metrics.RenderDuration.WithLabelValues(string(rec.Kind)).Observe(time.Since(start).Seconds())
	}()

	if err := ctx.Err(); err != nil {
		return perrors.NewRenderFailedError(rec.ID, err)
	}
	spec, ok := rec.Kind.Spec()
	if !ok {
		return perrors.NewInvalidKindError(string(rec.Kind))
	}

	sheet := Compose(r.portalTitle, spec, rec, r.now().UTC())
	pdf := draw(sheet)
	if err := pdf.Error(); err != nil {
		return perrors.NewRenderFailedError(rec.ID, err)
	}

	if err := writeAtomic(pdf, path); err != nil {
		return perrors.NewRenderFailedError(rec.ID, err)
	}

	r.logger.Debug("acknowledgment rendered", map[string]interface{}{
		"resourceId": rec.ID,
		"kind":       string(rec.Kind),
		"path":       path,
		"durationMs": time.Since(start).Milliseconds(),
	})
	return nil
}

func writeAtomic(pdf *fpdf.Fpdf, path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".render-*.pdf")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := pdf.Output(tmp); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write pdf: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func draw(s Sheet) *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreationDate(s.IssuedAt)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr(s.DocumentTitle), false)
	pdf.SetCreator(tr(s.PortalTitle), false)
	pdf.AddPage()

	drawHeader(pdf, tr, s)
	drawRows(pdf, tr, s.Reference)
	pdf.Ln(4)
	rule(pdf)
	pdf.Ln(6)
	drawRows(pdf, tr, s.Body)
	drawFooter(pdf, tr, s)
	return pdf
}

func drawHeader(pdf *fpdf.Fpdf, tr func(string) string, s Sheet) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(contentWidth, 10, tr(s.PortalTitle), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 13)
	pdf.CellFormat(contentWidth, 8, tr(s.DocumentTitle), "", 1, "C", false, 0, "")
	pdf.Ln(3)
	rule(pdf)
	pdf.Ln(6)
}

func drawRows(pdf *fpdf.Fpdf, tr func(string) string, rows []Row) {
	for _, row := range rows {
		if pdf.GetY() > footerTop-lineHeight {
			return
		}
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(labelWidth, lineHeight, tr(row.Label+":"), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(contentWidth-labelWidth, lineHeight, tr(clip(row.Value)), "", "L", false)
	}
}

func drawFooter(pdf *fpdf.Fpdf, tr func(string) string, s Sheet) {
	if s.Sealed {
		sealTop := footerTop - 38
		pdf.SetDrawColor(120, 120, 120)
		pdf.Rect(margin, sealTop, 32, 32, "D")
		pdf.SetFont("Helvetica", "I", 9)
		pdf.SetXY(margin, sealTop+13)
		pdf.CellFormat(32, 6, "Official Seal", "", 0, "C", false, 0, "")

		sigX := pageWidth - margin - 60
		pdf.Line(sigX, sealTop+26, sigX+60, sealTop+26)
		pdf.SetXY(sigX, sealTop+27)
		pdf.CellFormat(60, 6, "Authorized Signatory", "", 0, "C", false, 0, "")
		pdf.SetDrawColor(0, 0, 0)
	}

	pdf.SetY(footerTop)
	rule(pdf)
	pdf.Ln(3)
	pdf.SetFont("Helvetica", "", 9)
	pdf.MultiCell(contentWidth, 5, tr(s.Disclaimer), "", "L", false)
	pdf.Ln(2)
	pdf.CellFormat(contentWidth, 5, "Issued on "+s.IssuedAt.Format(dateLayout+" 15:04 MST"), "", 1, "R", false, 0, "")
}

func rule(pdf *fpdf.Fpdf) {
	y := pdf.GetY()
	pdf.Line(margin, y, pageWidth-margin, y)
}

func clip(v string) string {
	r := []rune(v)
	if len(r) <= maxValueLen {
		return v
	}
	return string(r[:maxValueLen]) + "..."
}
