package model

import "time"

// ExtractionStatus summarizes the most recent extraction outcome for a posting.
type ExtractionStatus string

const (
	ExtractionStatusNone      ExtractionStatus = "none"
	ExtractionStatusPending   ExtractionStatus = "pending"
	ExtractionStatusExtracted ExtractionStatus = "extracted"
	ExtractionStatusFailed    ExtractionStatus = "failed"
)

// RemoteType classifies the work arrangement of a posting.
type RemoteType string

const (
	RemoteTypeRemote  RemoteType = "remote"
	RemoteTypeHybrid  RemoteType = "hybrid"
	RemoteTypeOnsite  RemoteType = "onsite"
	RemoteTypeUnknown RemoteType = "unknown"
)

// JobPosting is the record being enriched. Created on first reference,
// mutated only by a completed extraction that clears the confidence
// threshold, never deleted by the pipeline.
type JobPosting struct {
	ID               string            `json:"id"`
	URL              string            `json:"url"`
	Title            string            `json:"title,omitempty"`
	CompanyName      string            `json:"company_name,omitempty"`
	Description      string            `json:"description,omitempty"`
	Location         string            `json:"location,omitempty"`
	RemoteType       RemoteType        `json:"remote_type,omitempty"`
	SalaryMin        *float64          `json:"salary_min,omitempty"`
	SalaryMax        *float64          `json:"salary_max,omitempty"`
	SalaryCurrency   string            `json:"salary_currency,omitempty"`
	Sections         map[string]string `json:"sections,omitempty"`
	ExtractionStatus ExtractionStatus  `json:"extraction_status"`
	LastExtractedAt  *time.Time        `json:"last_extracted_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// Salary is a validated compensation range.
type Salary struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Currency string  `json:"currency"`
	Period   string  `json:"period,omitempty"` // "year" unless stated otherwise
}

// ExtractedFields is the common field shape produced by every extraction
// method. Pointer fields distinguish "not produced" from "produced empty":
// a nil field is left untouched on the posting (no destructive nulling).
type ExtractedFields struct {
	Title       *string           `json:"title,omitempty"`
	CompanyName *string           `json:"company_name,omitempty"`
	Description *string           `json:"description,omitempty"`
	Location    *string           `json:"location,omitempty"`
	RemoteType  *RemoteType       `json:"remote_type,omitempty"`
	Salary      *Salary           `json:"salary,omitempty"`
	Sections    map[string]string `json:"sections,omitempty"`
}

// IsEmpty reports whether no field was produced at all.
func (f ExtractedFields) IsEmpty() bool {
	return f.Title == nil && f.CompanyName == nil && f.Description == nil &&
		f.Location == nil && f.RemoteType == nil && f.Salary == nil && len(f.Sections) == 0
}

// CountProduced returns the number of scalar fields that were produced.
func (f ExtractedFields) CountProduced() int {
	n := 0
	for _, set := range []bool{
		f.Title != nil, f.CompanyName != nil, f.Description != nil,
		f.Location != nil, f.RemoteType != nil, f.Salary != nil,
	} {
		if set {
			n++
		}
	}
	if len(f.Sections) > 0 {
		n++
	}
	return n
}

// Apply merges produced fields into the posting. Nil fields leave the
// existing value untouched.
func (j *JobPosting) Apply(f ExtractedFields) {
	if f.Title != nil {
		j.Title = *f.Title
	}
	if f.CompanyName != nil {
		j.CompanyName = *f.CompanyName
	}
	if f.Description != nil {
		j.Description = *f.Description
	}
	if f.Location != nil {
		j.Location = *f.Location
	}
	if f.RemoteType != nil {
		j.RemoteType = *f.RemoteType
	}
	if f.Salary != nil {
		j.SalaryMin = ptr(f.Salary.Min)
		j.SalaryMax = ptr(f.Salary.Max)
		j.SalaryCurrency = f.Salary.Currency
	}
	if len(f.Sections) > 0 {
		if j.Sections == nil {
			j.Sections = make(map[string]string, len(f.Sections))
		}
		for k, v := range f.Sections {
			j.Sections[k] = v
		}
	}
}

func ptr[T any](v T) *T { return &v }
