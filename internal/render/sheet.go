// internal/render/sheet.go
package render

import (
	"time"

	"citizen-portal/internal/models"
)

const (
	disclaimer = "This is a computer-generated acknowledgment and does not require a physical signature. " +
		"Quote the application ID in all further correspondence."
	notProvided = "Not provided"
	dateLayout  = "02 Jan 2006"
)

// Row is one label/value line in the body.
type Row struct {
	Label string
	Value string
}

// Sheet is the laid-out content of one acknowledgment page.
type Sheet struct {
	PortalTitle   string
	DocumentTitle string
	Reference     []Row
	Body          []Row
	Disclaimer    string
	Sealed        bool
	IssuedAt      time.Time
}

// Compose lays out rec using its kind's template. Optional fields appear
// only when they carry a value; required fields fall back to a marker.
func Compose(portalTitle string, spec models.KindSpec, rec *models.ApplicationRecord, issuedAt time.Time) Sheet {
	s := Sheet{
		PortalTitle:   portalTitle,
		DocumentTitle: spec.DocumentTitle,
		Disclaimer:    disclaimer,
		Sealed:        spec.Sealed,
		IssuedAt:      issuedAt,
	}

	s.Reference = []Row{
		{Label: "Application ID", Value: rec.ID},
		{Label: "Service", Value: spec.ServiceType},
		{Label: "Status", Value: orMarker(rec.Status)},
	}
	if !rec.CreatedAt.IsZero() {
		s.Reference = append(s.Reference, Row{Label: "Submitted On", Value: rec.CreatedAt.Format(dateLayout)})
	}
	if rec.Title != "" && rec.Title != rec.Field(spec.TitleField) {
		s.Reference = append(s.Reference, Row{Label: "Title", Value: rec.Title})
	}

	for _, f := range spec.Fields {
		v := rec.Field(f.Key)
		if v == "" && f.Optional {
			continue
		}
		s.Body = append(s.Body, Row{Label: f.Label, Value: orMarker(v)})
	}
	return s
}

func orMarker(v string) string {
	if v == "" {
		return notProvided
	}
	return v
}
