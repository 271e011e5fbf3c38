// internal/models/application.go
package models

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies a resource kind. Its value doubles as the file-name slug.
type Kind string

const (
	KindCertificate       Kind = "certificate"
	KindGrievance         Kind = "grievance"
	KindSchemeApplication Kind = "scheme"
	KindLandRecord        Kind = "land-record"
	KindProperty          Kind = "property"
	KindMutation          Kind = "mutation"
)

// StatusDeleted is the terminal status emitted after a delete.
const StatusDeleted = "Deleted"

// FieldSpec describes one kind-specific field printed on the acknowledgment.
type FieldSpec struct {
	Key      string
	Label    string
	Optional bool
}

// KindSpec is the static description of a resource kind.
type KindSpec struct {
	Kind           Kind
	Noun           string // used in messages: `<Noun> "<title>" ...`
	ServiceType    string // serviceType label on the wire
	DocumentTitle  string
	TitleField     string
	InitialStatus  string
	ResolvedStatus string
	Statuses       []string
	CreatedVerb    string
	Fields         []FieldSpec
	Sealed         bool // print the seal/signature placeholder
}

var catalog = map[Kind]KindSpec{
	KindCertificate: {
		Kind:           KindCertificate,
		Noun:           "Certificate application",
		ServiceType:    "Certificates",
		DocumentTitle:  "Certificate Application Acknowledgment",
		TitleField:     "certificateType",
		InitialStatus:  "Submitted",
		ResolvedStatus: "Ready",
		Statuses:       []string{"Submitted", "In Process", "Ready"},
		CreatedVerb:    "submitted",
		Fields: []FieldSpec{
			{Key: "certificateType", Label: "Certificate Type"},
			{Key: "applicantName", Label: "Applicant Name"},
			{Key: "fatherName", Label: "Father's Name", Optional: true},
			{Key: "dateOfBirth", Label: "Date of Birth", Optional: true},
			{Key: "address", Label: "Address", Optional: true},
			{Key: "purpose", Label: "Purpose", Optional: true},
		},
		Sealed: true,
	},
	KindGrievance: {
		Kind:           KindGrievance,
		Noun:           "Grievance",
		ServiceType:    "Grievances",
		DocumentTitle:  "Grievance Acknowledgment",
		TitleField:     "title",
		InitialStatus:  "open",
		ResolvedStatus: "resolved",
		Statuses:       []string{"open", "in-progress", "resolved", "closed"},
		CreatedVerb:    "filed",
		Fields: []FieldSpec{
			{Key: "category", Label: "Category"},
			{Key: "description", Label: "Description"},
			{Key: "location", Label: "Location", Optional: true},
			{Key: "department", Label: "Department", Optional: true},
			{Key: "resolution", Label: "Resolution", Optional: true},
		},
	},
	KindSchemeApplication: {
		Kind:           KindSchemeApplication,
		Noun:           "Scheme application",
		ServiceType:    "Schemes",
		DocumentTitle:  "Scheme Application Acknowledgment",
		TitleField:     "schemeName",
		InitialStatus:  "pending",
		ResolvedStatus: "approved",
		Statuses:       []string{"pending", "approved", "rejected"},
		CreatedVerb:    "submitted",
		Fields: []FieldSpec{
			{Key: "schemeName", Label: "Scheme"},
			{Key: "applicantName", Label: "Applicant Name"},
			{Key: "annualIncome", Label: "Annual Income", Optional: true},
			{Key: "category", Label: "Category", Optional: true},
			{Key: "remarks", Label: "Remarks", Optional: true},
		},
	},
	KindLandRecord: {
		Kind:           KindLandRecord,
		Noun:           "Land record",
		ServiceType:    "Land Records",
		DocumentTitle:  "Land Record Extract",
		TitleField:     "surveyNumber",
		InitialStatus:  "pending",
		ResolvedStatus: "verified",
		Statuses:       []string{"pending", "verified", "rejected"},
		CreatedVerb:    "registered",
		Fields: []FieldSpec{
			{Key: "surveyNumber", Label: "Survey Number"},
			{Key: "ownerName", Label: "Owner Name"},
			{Key: "village", Label: "Village", Optional: true},
			{Key: "area", Label: "Area", Optional: true},
			{Key: "landType", Label: "Land Type", Optional: true},
		},
		Sealed: true,
	},
	KindProperty: {
		Kind:           KindProperty,
		Noun:           "Property tax record",
		ServiceType:    "Property Tax",
		DocumentTitle:  "Property Tax Receipt",
		TitleField:     "propertyNumber",
		InitialStatus:  "pending",
		ResolvedStatus: "paid",
		Statuses:       []string{"pending", "assessed", "paid"},
		CreatedVerb:    "registered",
		Fields: []FieldSpec{
			{Key: "propertyNumber", Label: "Property Number"},
			{Key: "ownerName", Label: "Owner Name"},
			{Key: "ward", Label: "Ward", Optional: true},
			{Key: "assessedValue", Label: "Assessed Value", Optional: true},
			{Key: "taxAmount", Label: "Tax Amount", Optional: true},
		},
		Sealed: true,
	},
	KindMutation: {
		Kind:           KindMutation,
		Noun:           "Mutation request",
		ServiceType:    "Mutation",
		DocumentTitle:  "Mutation Request Acknowledgment",
		TitleField:     "surveyNumber",
		InitialStatus:  "pending",
		ResolvedStatus: "approved",
		Statuses:       []string{"pending", "approved", "rejected"},
		CreatedVerb:    "submitted",
		Fields: []FieldSpec{
			{Key: "surveyNumber", Label: "Survey Number"},
			{Key: "previousOwner", Label: "Previous Owner"},
			{Key: "newOwner", Label: "New Owner"},
			{Key: "reason", Label: "Reason", Optional: true},
			{Key: "deedNumber", Label: "Deed Number", Optional: true},
		},
	},
}

var kindAliases = map[string]Kind{
	"certificates":        KindCertificate,
	"grievances":          KindGrievance,
	"schemes":             KindSchemeApplication,
	"scheme-application":  KindSchemeApplication,
	"scheme-applications": KindSchemeApplication,
	"schemeapplication":   KindSchemeApplication,
	"land-records":        KindLandRecord,
	"landrecord":          KindLandRecord,
	"properties":          KindProperty,
	"property-tax":        KindProperty,
	"mutations":           KindMutation,
}

// Kinds lists every known kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindCertificate, KindGrievance, KindSchemeApplication, KindLandRecord, KindProperty, KindMutation}
}

// ParseKind accepts a slug or one of its plural/camel aliases.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if _, ok := catalog[Kind(s)]; ok {
		return Kind(s), nil
	}
	if k, ok := kindAliases[s]; ok {
		return k, nil
	}
	return "", fmt.Errorf("unknown resource kind %q", s)
}

// Spec returns the catalog entry for k.
func (k Kind) Spec() (KindSpec, bool) {
	spec, ok := catalog[k]
	return spec, ok
}

// Slug is the file-name prefix for k.
func (k Kind) Slug() string {
	return string(k)
}

// ServiceType is the wire label for k, or the raw kind when unknown.
func (k Kind) ServiceType() string {
	if spec, ok := catalog[k]; ok {
		return spec.ServiceType
	}
	return string(k)
}

// ApplicationRecord is the generic persisted application. The fabric only
// reads ID, OwnerUserID, Kind and Status; Title and Fields feed rendering.
type ApplicationRecord struct {
	ID          string            `json:"id"`
	OwnerUserID string            `json:"ownerUserId"`
	Kind        Kind              `json:"kind"`
	Status      string            `json:"status"`
	Title       string            `json:"title,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// Field returns a trimmed kind-specific field, "" when absent.
func (r *ApplicationRecord) Field(key string) string {
	if r.Fields == nil {
		return ""
	}
	return strings.TrimSpace(r.Fields[key])
}

// DisplayTitle picks Title, then the kind's title field, then the id.
func (r *ApplicationRecord) DisplayTitle() string {
	if t := strings.TrimSpace(r.Title); t != "" {
		return t
	}
	if spec, ok := r.Kind.Spec(); ok {
		if t := r.Field(spec.TitleField); t != "" {
			return t
		}
	}
	return r.ID
}
