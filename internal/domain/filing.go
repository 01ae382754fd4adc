package domain

import (
	"encoding/json"
	"time"
)

// FilingStatus enumerates enrichment milestones.
type FilingStatus string

const (
	FilingPending             FilingStatus = "pending"
	FilingCompletedEnhanced   FilingStatus = "completed_enhanced"
	FilingCompletedBasic      FilingStatus = "completed_basic"
	FilingCompletedRestricted FilingStatus = "completed_restricted"
	FilingFailed              FilingStatus = "failed"
)

// ExtractionStatus records how text extraction went for one attachment.
type ExtractionStatus string

const (
	ExtractionSkipped   ExtractionStatus = "skipped"
	ExtractionCompleted ExtractionStatus = "completed"
	ExtractionFailed    ExtractionStatus = "failed"
)

// Attachment describes one document attached to a filing.
type Attachment struct {
	Filename     string           `json:"filename"`
	URL          string           `json:"url"`
	FileType     string           `json:"file_type"`
	Confidential bool             `json:"confidential"`
	Extraction   ExtractionStatus `json:"extraction,omitempty"`
	Strategy     string           `json:"strategy,omitempty"`
	Text         string           `json:"text,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// Filing is one immutable submission; ID is the source-assigned submission identifier.
type Filing struct {
	ID           string          `json:"id"`
	DocketNumber string          `json:"docket_number"`
	Title        string          `json:"title"`
	Author       string          `json:"author"`
	FilingType   string          `json:"filing_type"`
	ReceivedAt   time.Time       `json:"received_at"`
	URL          string          `json:"url"`
	Attachments  []Attachment    `json:"attachments"`
	Raw          json.RawMessage `json:"raw,omitempty"`
	Status       FilingStatus    `json:"status"`
	Analysis     *Analysis       `json:"analysis,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`

	// RestrictedAccess is the filing-level viewing restriction reported by the source.
	RestrictedAccess bool `json:"restricted_access,omitempty"`
}

// Restricted reports whether the source restricted the filing or marked any
// attachment confidential.
func (f Filing) Restricted() bool {
	if f.RestrictedAccess {
		return true
	}
	for _, att := range f.Attachments {
		if att.Confidential {
			return true
		}
	}
	return false
}

// Analysis holds the AI summary sections attached to a filing.
type Analysis struct {
	Summary          string    `json:"summary"`
	KeyPoints        []string  `json:"key_points"`
	Stakeholders     []string  `json:"stakeholders"`
	RegulatoryImpact string    `json:"regulatory_impact"`
	Confidence       string    `json:"confidence"`
	Provider         string    `json:"provider,omitempty"`
	Degraded         bool      `json:"degraded,omitempty"`
	GeneratedAt      time.Time `json:"generated_at"`
}
