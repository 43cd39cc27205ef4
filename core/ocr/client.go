// Package ocr wraps an external asynchronous OCR service behind an
// idempotent submit/poll contract. The service itself is a black box; only
// its job lifecycle is modeled here.
package ocr

import "context"

// JobStatus is the lifecycle state of an external OCR job.
type JobStatus string

const (
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
)

// Page holds the extracted text of one page.
type Page struct {
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
}

// StatusResponse is one page of a job status result. NextToken is set when
// further result pages must be fetched.
type StatusResponse struct {
	Status    JobStatus `json:"status"`
	Pages     []Page    `json:"pages,omitempty"`
	NextToken string    `json:"next_token,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Client is the external OCR service contract. Submissions with the same
// idempotency token must return the same job id.
type Client interface {
	// Submit starts text extraction for the document at sourceLocation.
	Submit(ctx context.Context, sourceLocation string, idempotencyToken string) (jobID string, err error)

	// GetStatus returns the current job status. A non-empty nextToken
	// requests the next page of a succeeded job's results.
	GetStatus(ctx context.Context, jobID string, nextToken string) (*StatusResponse, error)
}
