// internal/convert/strategies.go
package convert

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
)

const (
	DefaultDPI     = 150
	DefaultQuality = 90
)

// Pdftoppm shells out to poppler's pdftoppm and renames its output.
type Pdftoppm struct {
	Binary  string
	DPI     int
	Timeout time.Duration
	Run     Runner
}

func (p *Pdftoppm) Name() string { return "pdftoppm" }

func (p *Pdftoppm) Convert(ctx context.Context, pdfPath, jpgPath string) error {
	prefix := strings.TrimSuffix(jpgPath, filepath.Ext(jpgPath)) + ".pdftoppm"
	produced := prefix + ".jpg"

	args := []string{
		"-jpeg",
		"-r", strconv.Itoa(dpiOrDefault(p.DPI)),
		"-f", "1",
		"-l", "1",
		"-singlefile",
		pdfPath,
		prefix,
	}
	if err := run(ctx, p.Run, p.Timeout, binaryOr(p.Binary, "pdftoppm"), args...); err != nil {
		_ = os.Remove(produced)
		return err
	}
	if _, err := os.Stat(produced); err != nil {
		return fmt.Errorf("pdftoppm produced no output: %w", err)
	}
	return replaceFile(produced, jpgPath)
}

// RasterizeFunc renders page 1 of a PDF at dpi.
type RasterizeFunc func(pdfPath string, dpi int) (image.Image, error)

// FitzRasterize renders through MuPDF.
func FitzRasterize(pdfPath string, dpi int) (image.Image, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() < 1 {
		return nil, fmt.Errorf("pdf has no pages")
	}
	img, err := doc.ImageDPI(0, float64(dpi))
	if err != nil {
		return nil, fmt.Errorf("rasterize page 1: %w", err)
	}
	return img, nil
}

// Direct rasterizes in-process and encodes the flattened page as JPEG.
type Direct struct {
	DPI       int
	Quality   int
	Rasterize RasterizeFunc
}

func (d *Direct) Name() string { return "direct" }

func (d *Direct) Convert(ctx context.Context, pdfPath, jpgPath string) error {
	rasterize := d.Rasterize
	if rasterize == nil {
		rasterize = FitzRasterize
	}
	img, err := rasterize(pdfPath, dpiOrDefault(d.DPI))
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeJPEG(flatten(img), jpgPath, d.Quality)
}

// PNGIntermediate rasterizes to a temporary PNG with an external tool
// (Ghostscript by default), then re-encodes it as JPEG. The PNG is
// removed whether or not the conversion succeeds.
type PNGIntermediate struct {
	Binary  string
	DPI     int
	Quality int
	Timeout time.Duration
	Run     Runner
	// Args builds the tool's argument list; nil means Ghostscript's.
	Args func(pdfPath, pngPath string, dpi int) []string
}

func (p *PNGIntermediate) Name() string { return "png-intermediate" }

// IntermediatePath is where the temporary PNG for jpgPath is written.
func IntermediatePath(jpgPath string) string {
	return jpgPath + ".tmp.png"
}

func (p *PNGIntermediate) Convert(ctx context.Context, pdfPath, jpgPath string) error {
	pngPath := IntermediatePath(jpgPath)
	defer os.Remove(pngPath)

	argsFn := p.Args
	if argsFn == nil {
		argsFn = ghostscriptArgs
	}
	dpi := dpiOrDefault(p.DPI)
	if err := run(ctx, p.Run, p.Timeout, binaryOr(p.Binary, "gs"), argsFn(pdfPath, pngPath, dpi)...); err != nil {
		return err
	}

	img, err := imaging.Open(pngPath)
	if err != nil {
		return fmt.Errorf("decode intermediate png: %w", err)
	}
	return writeJPEG(flatten(img), jpgPath, p.Quality)
}

func ghostscriptArgs(pdfPath, pngPath string, dpi int) []string {
	return []string{
		"-q",
		"-dSAFER",
		"-dBATCH",
		"-dNOPAUSE",
		"-sDEVICE=png16m",
		"-r" + strconv.Itoa(dpi),
		"-dFirstPage=1",
		"-dLastPage=1",
		"-sOutputFile=" + pngPath,
		pdfPath,
	}
}

// flatten composites img over an opaque white page.
func flatten(img image.Image) *image.NRGBA {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

func writeJPEG(img image.Image, jpgPath string, quality int) error {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	tmp, err := os.CreateTemp(filepath.Dir(jpgPath), ".convert-*.jpg")
	if err != nil {
		return fmt.Errorf("create temp jpeg: %w", err)
	}
	tmpName := tmp.Name()

	if err := imaging.Encode(tmp, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("encode jpeg: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp jpeg: %w", err)
	}
	return replaceFile(tmpName, jpgPath)
}

func dpiOrDefault(dpi int) int {
	if dpi <= 0 {
		return DefaultDPI
	}
	return dpi
}

func binaryOr(binary, fallback string) string {
	if binary == "" {
		return fallback
	}
	return binary
}
