// Package orchestrator owns the document pipeline state machine. It is the
// only component that mutates a document's stage; all stage work is
// delegated to collaborators that return results or classified errors.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/siherrmann/docketflow/cache"
	"github.com/siherrmann/docketflow/core/pipeline"
	"github.com/siherrmann/docketflow/core/relationships"
	"github.com/siherrmann/docketflow/core/resolution"
	"github.com/siherrmann/docketflow/database"
	"github.com/siherrmann/docketflow/helper"
	"github.com/siherrmann/docketflow/model"
)

// OCRService is the subset of the OCR poller the orchestrator drives.
type OCRService interface {
	Submit(ctx context.Context, documentRID uuid.UUID, sourceLocation string) (string, error)
	WaitForResult(ctx context.Context, jobID string) (*model.OCRResult, error)
}

// Dependencies wires the orchestrator's collaborators. Stores, the chunker
// and the extractor are required; the rest degrade gracefully when absent.
type Dependencies struct {
	Documents     database.DocumentsDBHandlerFunctions
	Chunks        database.ChunksDBHandlerFunctions
	Mentions      database.MentionsDBHandlerFunctions
	Entities      database.EntitiesDBHandlerFunctions
	Relationships database.RelationshipsDBHandlerFunctions

	// Cache is best-effort; a nil or failing cache never fails a stage.
	Cache cache.Cache

	// OCR may be nil when all documents are ingested with their text.
	OCR       OCRService
	Chunker   pipeline.ChunkFunc
	Embedder  pipeline.EmbedFunc
	Extractor pipeline.MentionExtractFunc
	Resolver  *resolution.Engine
	// Linker may be nil to skip the cross-document linking pass.
	Linker  *resolution.CrossDocumentLinker
	Builder *relationships.Builder
}

// Orchestrator advances documents through the pipeline stages. Each
// instance has its own processor id for claim ownership, so multiple
// orchestrators can safely work the same store.
type Orchestrator struct {
	processorID uuid.UUID
	deps        Dependencies
	config      *model.PipelineConfig
	logger      *slog.Logger
}

// NewOrchestrator validates the dependency wiring and creates an
// orchestrator with a fresh processor id.
func NewOrchestrator(deps Dependencies, config *model.PipelineConfig, logger *slog.Logger) (*Orchestrator, error) {
	if deps.Documents == nil || deps.Chunks == nil || deps.Mentions == nil || deps.Entities == nil || deps.Relationships == nil {
		return nil, helper.NewError("orchestrator validation", fmt.Errorf("all stores must be set"))
	}
	if deps.Chunker == nil {
		return nil, helper.NewError("orchestrator validation", fmt.Errorf("chunker must be set"))
	}
	if deps.Extractor == nil {
		return nil, helper.NewError("orchestrator validation", fmt.Errorf("extractor must be set"))
	}
	if deps.Resolver == nil {
		return nil, helper.NewError("orchestrator validation", fmt.Errorf("resolver must be set"))
	}
	if deps.Builder == nil {
		return nil, helper.NewError("orchestrator validation", fmt.Errorf("builder must be set"))
	}
	if config == nil {
		config = model.DefaultPipelineConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, helper.NewError("orchestrator validation", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		processorID: uuid.New(),
		deps:        deps,
		config:      config,
		logger:      logger,
	}, nil
}

// Advance performs the document's current stage work and moves it one
// stage forward. Invoking Advance on a terminal or already-claimed
// document is a no-op, so concurrent invocations perform each stage's
// side effect at most once.
func (o *Orchestrator) Advance(ctx context.Context, rid uuid.UUID) (*model.Document, error) {
	doc, err := o.deps.Documents.SelectDocument(rid)
	if err != nil {
		return nil, helper.NewError("select document", err)
	}

	if doc.Stage.Terminal() {
		return doc, nil
	}

	next, ok := doc.Stage.Next()
	if !ok {
		return nil, helper.NewError("stage transition", fmt.Errorf("no stage after %s", doc.Stage))
	}

	staleBefore := time.Now().Add(-o.config.StallTimeout)
	claimed, ok, err := o.deps.Documents.ClaimStage(rid, doc.Stage, o.processorID, staleBefore)
	if err != nil {
		return nil, helper.NewError("claim stage", err)
	}
	if !ok {
		// Another worker holds the claim or already advanced the stage.
		return doc, nil
	}

	taskReference, stageErr := o.runStage(ctx, claimed)
	if stageErr != nil {
		return o.handleFailure(claimed, stageErr)
	}

	advanced, ok, err := o.deps.Documents.AdvanceStage(rid, claimed.Stage, next, taskReference)
	if err != nil {
		return nil, helper.NewError("advance stage", err)
	}
	if !ok {
		return o.deps.Documents.SelectDocument(rid)
	}

	o.logger.Info("Advanced document",
		slog.String("document_rid", rid.String()),
		slog.String("from", string(claimed.Stage)),
		slog.String("to", string(advanced.Stage)))

	if advanced.Stage == model.StageCompleted {
		cache.InvalidateDocument(o.deps.Cache, rid)
	}

	return advanced, nil
}

// ProcessDocument drives one document to a terminal stage, retrying
// transient failures with exponential backoff.
func (o *Orchestrator) ProcessDocument(ctx context.Context, rid uuid.UUID) error {
	for {
		doc, err := o.Advance(ctx, rid)
		if err != nil {
			current, selectErr := o.deps.Documents.SelectDocument(rid)
			if selectErr != nil {
				return err
			}
			if current.Stage == model.StageFailed {
				return err
			}
			if !retryable(Classify(err), current.AttemptCount, o.config.MaxAttempts) {
				return err
			}
			if waitErr := o.wait(ctx, o.backoff(current.AttemptCount)); waitErr != nil {
				return waitErr
			}
			continue
		}

		if doc.Stage == model.StageFailed {
			return fmt.Errorf("document %s failed: %s", rid, doc.LastError)
		}
		if doc.Stage.Terminal() {
			return nil
		}
	}
}

// RunWorkers scans for workable documents at the poll interval and fans
// them out over a worker pool until the context is cancelled.
func (o *Orchestrator) RunWorkers(ctx context.Context) error {
	pool, err := ants.NewPool(o.config.WorkerCount)
	if err != nil {
		return helper.NewError("create worker pool", err)
	}
	defer pool.Release()

	ticker := time.NewTicker(o.config.PollInterval)
	defer ticker.Stop()

	inFlight := newInFlightSet()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.dispatch(ctx, pool, inFlight)
		}
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, pool *ants.Pool, inFlight *inFlightSet) {
	for stage := model.StageIntake; !stage.Terminal(); {
		docs, err := o.deps.Documents.SelectDocumentsByStage(stage, o.config.WorkerCount*2)
		if err != nil {
			o.logger.Warn("Failed to list documents by stage", slog.String("stage", string(stage)), slog.Any("error", err))
		}

		for _, doc := range docs {
			rid := doc.RID
			if !inFlight.tryAdd(rid) {
				continue
			}

			err := pool.Submit(func() {
				defer inFlight.remove(rid)
				if err := o.ProcessDocument(ctx, rid); err != nil {
					o.logger.Warn("Document processing ended with error",
						slog.String("document_rid", rid.String()),
						slog.Any("error", err))
				}
			})
			if err != nil {
				inFlight.remove(rid)
				o.logger.Warn("Failed to submit document to worker pool", slog.Any("error", err))
			}
		}

		next, ok := stage.Next()
		if !ok {
			break
		}
		stage = next
	}
}

// inFlightSet tracks documents currently handed to the worker pool so a
// dispatch tick does not enqueue the same document twice.
type inFlightSet struct {
	mu   sync.Mutex
	rids map[uuid.UUID]bool
}

func newInFlightSet() *inFlightSet {
	return &inFlightSet{rids: map[uuid.UUID]bool{}}
}

func (s *inFlightSet) tryAdd(rid uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rids[rid] {
		return false
	}
	s.rids[rid] = true
	return true
}

func (s *inFlightSet) remove(rid uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rids, rid)
}

// ResetDocument rewinds a failed or stuck document to the given stage,
// clearing attempts, error and claim. Cached intermediate results of the
// document are invalidated so the rerun recomputes them.
func (o *Orchestrator) ResetDocument(rid uuid.UUID, stage model.Stage) (*model.Document, error) {
	if stage.Index() < 0 {
		return nil, helper.NewError("reset validation", fmt.Errorf("cannot reset to stage %s", stage))
	}

	doc, err := o.deps.Documents.ResetDocument(rid, stage)
	if err != nil {
		return nil, helper.NewError("reset document", err)
	}

	cache.InvalidateDocument(o.deps.Cache, rid)

	o.logger.Info("Reset document",
		slog.String("document_rid", rid.String()),
		slog.String("stage", string(stage)))

	return doc, nil
}

// CacheDocumentText stores a document's cleaned text for the chunking
// stage. Used for documents ingested with their text, bypassing OCR.
func (o *Orchestrator) CacheDocumentText(rid uuid.UUID, text string) {
	if o.deps.Cache == nil {
		return
	}
	if err := o.deps.Cache.Set(cache.OCRKey(rid), []byte(text), o.config.StageResultTTL); err != nil {
		o.logger.Warn("Failed to cache document text", slog.String("document_rid", rid.String()), slog.Any("error", err))
	}
}

// handleFailure records a stage failure and decides retry vs. terminal
// failure based on the error classification and attempt count.
func (o *Orchestrator) handleFailure(doc *model.Document, stageErr error) (*model.Document, error) {
	kind := Classify(stageErr)
	attempts := doc.AttemptCount + 1
	fail := !retryable(kind, attempts, o.config.MaxAttempts)

	updated, err := o.deps.Documents.RecordFailure(doc.RID, stageErr.Error(), fail)
	if err != nil {
		return nil, helper.NewError("record failure", err)
	}

	if !fail {
		if err := o.deps.Documents.ReleaseClaim(doc.RID, o.processorID); err != nil {
			o.logger.Warn("Failed to release claim", slog.String("document_rid", doc.RID.String()), slog.Any("error", err))
		}
	}

	o.logger.Warn("Stage failed",
		slog.String("document_rid", doc.RID.String()),
		slog.String("stage", string(doc.Stage)),
		slog.String("kind", string(kind)),
		slog.Int("attempt", attempts),
		slog.Bool("terminal", fail),
		slog.Any("error", stageErr))

	return updated, stageErr
}

// backoff returns the exponential delay before the next retry.
func (o *Orchestrator) backoff(attempts int) time.Duration {
	delay := o.config.BaseBackoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= time.Minute {
			return time.Minute
		}
	}
	return delay
}

func (o *Orchestrator) wait(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
