// internal/artifacts/paths.go
package artifacts

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	perrors "citizen-portal/internal/common/errors"
	"citizen-portal/internal/models"
)

var resourceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidateResourceID rejects ids that cannot be embedded in a file name.
func ValidateResourceID(id string) error {
	if !resourceIDPattern.MatchString(id) {
		return perrors.NewInvalidInputError("resource id must match [A-Za-z0-9_-]{1,128}")
	}
	return nil
}

// Formats lists every cached format of a resource.
func Formats() []models.Format {
	return []models.Format{models.FormatPDF, models.FormatJPG}
}

// Entry is one artifact file found on disk.
type Entry struct {
	Kind       models.Kind
	ResourceID string
	Format     models.Format
	Path       string
	Size       int64
	ModTime    time.Time
}

// parseFileName splits `<kind-slug>-<id>.<ext>`. The longest matching slug
// wins so "land-record-7.pdf" is not read as kind "land".
func parseFileName(name string) (models.Kind, string, models.Format, bool) {
	ext := filepath.Ext(name)
	format := models.Format(strings.TrimPrefix(ext, "."))
	if format != models.FormatPDF && format != models.FormatJPG {
		return "", "", "", false
	}
	stem := strings.TrimSuffix(name, ext)

	var kind models.Kind
	for _, k := range models.Kinds() {
		prefix := k.Slug() + "-"
		if strings.HasPrefix(stem, prefix) && len(k.Slug()) > len(kind.Slug()) {
			kind = k
		}
	}
	if kind == "" {
		return "", "", "", false
	}
	id := strings.TrimPrefix(stem, kind.Slug()+"-")
	if ValidateResourceID(id) != nil {
		return "", "", "", false
	}
	return kind, id, format, true
}

func scan(dir string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		kind, id, format, ok := parseFileName(de.Name())
		if !ok {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{
			Kind:       kind,
			ResourceID: id,
			Format:     format,
			Path:       filepath.Join(dir, de.Name()),
			Size:       info.Size(),
			ModTime:    info.ModTime(),
		})
	}
	return out, nil
}
