package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/docketflow/cache"
	"github.com/siherrmann/docketflow/model"
)

var (
	// ErrJobFailed marks a job the external service reported as failed.
	// The failure reason is surfaced verbatim and is permanent.
	ErrJobFailed = errors.New("ocr job failed")

	// ErrPollTimeout marks a polling loop that exhausted its wall-clock
	// budget while the job was still in progress. Transient.
	ErrPollTimeout = errors.New("ocr polling timed out")
)

// idempotencyNamespace derives deterministic submission tokens from
// document identities so duplicate submissions are safe.
var idempotencyNamespace = uuid.MustParse("7d9f2c4e-1a63-4b8f-9c3e-5d0a8e2f6b41")

// Poller drives an external OCR job from submission to merged result.
type Poller struct {
	client   Client
	cache    cache.Cache
	interval time.Duration
	timeout  time.Duration
	pollTTL  time.Duration
	logger   *slog.Logger
}

// NewPoller creates a poller over the given OCR client. The cache is
// best-effort: every poll outcome is memoized with a short TTL so
// concurrent workers checking the same document do not re-invoke the
// external service.
func NewPoller(client Client, pollCache cache.Cache, config *model.PipelineConfig, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}

	return &Poller{
		client:   client,
		cache:    pollCache,
		interval: config.PollInterval,
		timeout:  config.PollTimeout,
		pollTTL:  config.PollResultTTL,
		logger:   logger,
	}
}

// IdempotencyToken returns the deterministic submission token for a document.
func IdempotencyToken(documentRID uuid.UUID) string {
	return uuid.NewSHA1(idempotencyNamespace, []byte(documentRID.String())).String()
}

// Submit starts an OCR job for the document. Submitting the same document
// twice yields the same job id on a conforming client.
func (p *Poller) Submit(ctx context.Context, documentRID uuid.UUID, sourceLocation string) (string, error) {
	if strings.TrimSpace(sourceLocation) == "" {
		return "", fmt.Errorf("source location is empty")
	}

	jobID, err := p.client.Submit(ctx, sourceLocation, IdempotencyToken(documentRID))
	if err != nil {
		return "", fmt.Errorf("failed to submit ocr job: %w", err)
	}

	p.logger.Info("Submitted OCR job", slog.String("document_rid", documentRID.String()), slog.String("job_id", jobID))

	return jobID, nil
}

// Poll checks the job status once. The outcome, whatever it is, is cached
// with a short TTL; a cache hit does not touch the external service.
func (p *Poller) Poll(ctx context.Context, jobID string) (*StatusResponse, error) {
	key := cache.PollKey(jobID)

	if p.cache != nil {
		if raw, err := p.cache.Get(key); err == nil {
			status := &StatusResponse{}
			if err := json.Unmarshal(raw, status); err == nil {
				return status, nil
			}
		}
	}

	status, err := p.client.GetStatus(ctx, jobID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to poll ocr job %s: %w", jobID, err)
	}

	if p.cache != nil {
		if raw, err := json.Marshal(status); err == nil {
			if err := p.cache.Set(key, raw, p.pollTTL); err != nil {
				p.logger.Warn("Failed to cache poll outcome", slog.String("job_id", jobID), slog.Any("error", err))
			}
		}
	}

	return status, nil
}

// WaitForResult polls the job at a fixed interval until it reaches a
// terminal state or the wall-clock budget runs out. On success all result
// pages are fetched via pagination tokens and merged in page order.
func (p *Poller) WaitForResult(ctx context.Context, jobID string) (*model.OCRResult, error) {
	deadline := time.Now().Add(p.timeout)

	for {
		status, err := p.Poll(ctx, jobID)
		if err != nil {
			return nil, err
		}

		switch status.Status {
		case JobStatusSucceeded:
			return p.collectPages(ctx, jobID, status)
		case JobStatusFailed:
			return nil, fmt.Errorf("%w: %s", ErrJobFailed, status.Error)
		case JobStatusInProgress:
			// Keep polling below.
		default:
			return nil, fmt.Errorf("unknown ocr job status %q", status.Status)
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w after %s", ErrPollTimeout, p.timeout)
		}

		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// collectPages follows pagination tokens until exhausted and merges all
// text blocks in page order.
func (p *Poller) collectPages(ctx context.Context, jobID string, first *StatusResponse) (*model.OCRResult, error) {
	pages := append([]Page{}, first.Pages...)

	nextToken := first.NextToken
	for nextToken != "" {
		status, err := p.client.GetStatus(ctx, jobID, nextToken)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch ocr result page: %w", err)
		}
		if status.Status == JobStatusFailed {
			return nil, fmt.Errorf("%w: %s", ErrJobFailed, status.Error)
		}
		pages = append(pages, status.Pages...)
		nextToken = status.NextToken
	}

	sort.SliceStable(pages, func(i, j int) bool {
		return pages[i].PageNumber < pages[j].PageNumber
	})

	result := &model.OCRResult{
		JobID: jobID,
		Pages: make([]model.OCRPage, 0, len(pages)),
	}

	var text strings.Builder
	for i, page := range pages {
		result.Pages = append(result.Pages, model.OCRPage{
			PageNumber: page.PageNumber,
			Text:       page.Text,
		})
		if i > 0 {
			text.WriteString("\n\n")
		}
		text.WriteString(page.Text)
	}
	result.Text = text.String()

	p.logger.Info("Collected OCR result", slog.String("job_id", jobID), slog.Int("num_pages", len(pages)))

	return result, nil
}
