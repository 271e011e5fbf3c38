// internal/workflow/messages.go
package workflow

import (
	"fmt"
	"strings"

	"citizen-portal/internal/models"
)

func createdMessage(spec models.KindSpec, rec *models.ApplicationRecord) string {
	return fmt.Sprintf(`%s "%s" %s successfully`, spec.Noun, rec.DisplayTitle(), spec.CreatedVerb)
}

func updatedMessage(spec models.KindSpec, rec *models.ApplicationRecord, statusChanged bool) string {
	if statusChanged {
		return fmt.Sprintf(`%s "%s" status updated to %s`, spec.Noun, rec.DisplayTitle(), rec.Status)
	}
	return fmt.Sprintf(`%s "%s" has been updated`, spec.Noun, rec.DisplayTitle())
}

func resolvedMessage(spec models.KindSpec, rec *models.ApplicationRecord) string {
	return fmt.Sprintf(`%s "%s" has been %s`, spec.Noun, rec.DisplayTitle(), strings.ToLower(rec.Status))
}

func deletedMessage(spec models.KindSpec, rec *models.ApplicationRecord) string {
	return fmt.Sprintf(`%s "%s" has been deleted`, spec.Noun, rec.DisplayTitle())
}

func downloadedMessage(spec models.KindSpec, rec *models.ApplicationRecord, format models.Format) string {
	return fmt.Sprintf(`%s "%s" acknowledgment downloaded as %s`, spec.Noun, rec.DisplayTitle(), strings.ToUpper(string(format)))
}
