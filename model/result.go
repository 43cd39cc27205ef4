package model

import "github.com/google/uuid"

// OCRPage holds the extracted text of one page of a document.
type OCRPage struct {
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
}

// OCRResult is the merged output of a completed OCR job.
type OCRResult struct {
	JobID string    `json:"job_id"`
	Pages []OCRPage `json:"pages"`
	Text  string    `json:"text"` // Pages merged in page order
}

// ResolutionResult is the output of one entity resolution run. Assignments
// maps each mention RID to the canonical entity it was clustered into.
type ResolutionResult struct {
	Entities    []*CanonicalEntity      `json:"entities"`
	Assignments map[uuid.UUID]uuid.UUID `json:"assignments"`
}

// StagingResult is the output of one relationship staging run. Skipped
// counts the items whose edges could not be staged due to missing
// identifiers.
type StagingResult struct {
	Relationships []*StagedRelationship `json:"relationships"`
	Skipped       int                   `json:"skipped"`
}
