// internal/models/artifact.go
package models

import (
	"fmt"
	"strings"
)

// Format is a downloadable artifact format.
type Format string

const (
	FormatPDF Format = "pdf"
	FormatJPG Format = "jpg"
)

// ParseFormat accepts pdf, jpg and jpeg; empty defaults to pdf.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pdf":
		return FormatPDF, nil
	case "jpg", "jpeg":
		return FormatJPG, nil
	default:
		return "", fmt.Errorf("unsupported format %q", s)
	}
}

// MIMEType is the Content-Type used when serving f.
func (f Format) MIMEType() string {
	if f == FormatJPG {
		return "image/jpeg"
	}
	return "application/pdf"
}

// Artifact is a generated file. Identity is (Kind, ResourceID, Format).
type Artifact struct {
	ResourceID string
	Kind       Kind
	Format     Format
	Path       string
	Cached     bool
}

// FileName is `<kind-slug>-<resourceId>.<ext>`.
func (a Artifact) FileName() string {
	return FileName(a.Kind, a.ResourceID, a.Format)
}

// FileName builds the deterministic artifact file name.
func FileName(kind Kind, resourceID string, format Format) string {
	return fmt.Sprintf("%s-%s.%s", kind.Slug(), resourceID, format)
}
