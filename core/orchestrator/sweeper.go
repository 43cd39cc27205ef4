package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/siherrmann/docketflow/database"
	"github.com/siherrmann/docketflow/helper"
	"github.com/siherrmann/docketflow/model"
)

// Sweeper recovers documents whose claim went stale, usually because the
// owning worker crashed mid-stage. Documents with attempts left are
// released for reclaiming; exhausted documents move to the terminal failed
// stage.
type Sweeper struct {
	documents    database.DocumentsDBHandlerFunctions
	stallTimeout time.Duration
	interval     time.Duration
	maxAttempts  int
	batchSize    int
	logger       *slog.Logger
}

// NewSweeper creates a sweeper over the document store.
func NewSweeper(documents database.DocumentsDBHandlerFunctions, config *model.PipelineConfig, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}

	return &Sweeper{
		documents:    documents,
		stallTimeout: config.StallTimeout,
		interval:     config.SweepInterval,
		maxAttempts:  config.MaxAttempts,
		batchSize:    100,
		logger:       logger,
	}
}

// Run sweeps at the configured interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(); err != nil {
				s.logger.Warn("Sweep failed", slog.Any("error", err))
			}
		}
	}
}

// Sweep processes one batch of stalled documents and returns how many were
// recovered or failed.
func (s *Sweeper) Sweep() (int, error) {
	staleBefore := time.Now().Add(-s.stallTimeout)

	stalled, err := s.documents.SelectStalledDocuments(staleBefore, s.batchSize)
	if err != nil {
		return 0, helper.NewError("select stalled documents", err)
	}

	swept := 0
	for _, doc := range stalled {
		attempts := doc.AttemptCount + 1
		fail := attempts >= s.maxAttempts

		// Recording the failure also clears the stale claim, so workers
		// can reclaim the document on their next pass.
		if _, err := s.documents.RecordFailure(doc.RID, "stage stalled past the stall timeout", fail); err != nil {
			s.logger.Warn("Failed to record stall",
				slog.String("document_rid", doc.RID.String()),
				slog.Any("error", err))
			continue
		}

		swept++
		s.logger.Info("Swept stalled document",
			slog.String("document_rid", doc.RID.String()),
			slog.String("stage", string(doc.Stage)),
			slog.Int("attempt", attempts),
			slog.Bool("failed", fail))
	}

	return swept, nil
}
