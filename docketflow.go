package docketflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/siherrmann/docketflow/cache"
	"github.com/siherrmann/docketflow/core/ocr"
	"github.com/siherrmann/docketflow/core/orchestrator"
	"github.com/siherrmann/docketflow/core/pipeline"
	"github.com/siherrmann/docketflow/core/relationships"
	"github.com/siherrmann/docketflow/core/resolution"
	"github.com/siherrmann/docketflow/database"
	"github.com/siherrmann/docketflow/helper"
	"github.com/siherrmann/docketflow/model"
	loadSql "github.com/siherrmann/docketflow/sql"
)

// Docketflow provides a unified interface to the document pipeline: the
// state store, the best-effort cache, the stage processors and the
// orchestrator driving them.
type Docketflow struct {
	DB            *helper.Database
	Documents     *database.DocumentsDBHandler
	Chunks        *database.ChunksDBHandler
	Mentions      *database.MentionsDBHandler
	Entities      *database.EntitiesDBHandler
	Relationships *database.RelationshipsDBHandler
	Cache         cache.Cache
	Orchestrator  *orchestrator.Orchestrator // Set by SetProcessors
	Sweeper       *orchestrator.Sweeper
	// Configuration
	config *model.PipelineConfig
	// Logging
	log *slog.Logger
}

// NewDocketflow creates a new Docketflow instance with all database
// handlers initialized. cachePath selects the badger directory; an empty
// path runs the cache in memory. Call SetProcessors before advancing
// documents.
func NewDocketflow(dbConfig *helper.DatabaseConfiguration, config *model.PipelineConfig, embeddingDim int, cachePath string) (*Docketflow, error) {
	// Logger
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	if config == nil {
		config = model.DefaultPipelineConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, helper.NewError("validate pipeline config", err)
	}

	// Initialize database
	db := helper.NewDatabase("docketflow", dbConfig, logger)
	err := loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// Create all handlers in the correct order (documents first, the rest
	// reference them). force=false to not reload if functions already exist.
	documents, err := database.NewDocumentsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create documents handler", err)
	}

	chunks, err := database.NewChunksDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create chunks handler", err)
	}

	mentions, err := database.NewMentionsDBHandler(db, embeddingDim, false)
	if err != nil {
		return nil, helper.NewError("create mentions handler", err)
	}

	entities, err := database.NewEntitiesDBHandler(db, embeddingDim, false)
	if err != nil {
		return nil, helper.NewError("create entities handler", err)
	}

	staged, err := database.NewRelationshipsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create relationships handler", err)
	}

	documentCache, err := cache.NewBadgerCache(cachePath, logger)
	if err != nil {
		return nil, helper.NewError("create cache", err)
	}

	return &Docketflow{
		DB:            db,
		Documents:     documents,
		Chunks:        chunks,
		Mentions:      mentions,
		Entities:      entities,
		Relationships: staged,
		Cache:         documentCache,
		Sweeper:       orchestrator.NewSweeper(documents, config, logger),
		config:        config,
		log:           logger,
	}, nil
}

// Close closes the cache and the database connection.
func (d *Docketflow) Close() error {
	if d.Cache != nil {
		if err := d.Cache.Close(); err != nil {
			d.log.Warn("Failed to close cache", slog.Any("error", err))
		}
	}
	if d.DB != nil && d.DB.Instance != nil {
		return d.DB.Instance.Close()
	}
	return nil
}

// SetProcessors wires the stage processors and builds the orchestrator.
// ocrClient may be nil when all documents are ingested with their text;
// embedder may be nil to resolve entities on string similarity alone.
func (d *Docketflow) SetProcessors(ocrClient ocr.Client, chunker pipeline.ChunkFunc, embedder pipeline.EmbedFunc, extractor pipeline.MentionExtractFunc) error {
	var poller orchestrator.OCRService
	if ocrClient != nil {
		poller = ocr.NewPoller(ocrClient, d.Cache, d.config, d.log)
	}

	var linker *resolution.CrossDocumentLinker
	if embedder != nil {
		linker = resolution.NewCrossDocumentLinker(d.Entities, d.config, d.log)
	}

	orch, err := orchestrator.NewOrchestrator(orchestrator.Dependencies{
		Documents:     d.Documents,
		Chunks:        d.Chunks,
		Mentions:      d.Mentions,
		Entities:      d.Entities,
		Relationships: d.Relationships,
		Cache:         d.Cache,
		OCR:           poller,
		Chunker:       chunker,
		Embedder:      embedder,
		Extractor:     extractor,
		Resolver:      resolution.NewEngine(d.Cache, d.config, d.log),
		Linker:        linker,
		Builder:       relationships.NewBuilder(d.config, d.log),
	}, d.config, d.log)
	if err != nil {
		return helper.NewError("create orchestrator", err)
	}

	d.Orchestrator = orch
	return nil
}

// UseDefaultProcessors wires the default processors: paragraph chunking,
// the all-MiniLM-L6-v2 embedder and an OpenAI-compatible LLM extractor.
func (d *Docketflow) UseDefaultProcessors(ocrClient ocr.Client, llmBaseURL, llmToken, llmModel string) error {
	embedder, err := pipeline.DefaultEmbedder()
	if err != nil {
		return helper.NewError("create default embedder", err)
	}

	extractor, err := pipeline.NewOpenAIMentionExtractor(llmBaseURL, llmToken, llmModel, d.log)
	if err != nil {
		return helper.NewError("create mention extractor", err)
	}

	return d.SetProcessors(ocrClient, pipeline.ParagraphChunker(), embedder, extractor)
}

// IngestDocument registers a document at the intake stage. A document with
// inline content bypasses OCR, its text is cached for the chunking stage.
// Documents with a source location go through the external OCR service.
func (d *Docketflow) IngestDocument(doc *model.Document) error {
	if d.Orchestrator == nil {
		return helper.NewError("ingest document", fmt.Errorf("processors not set, use SetProcessors() first"))
	}
	if doc.Content == "" && doc.Source == "" {
		return helper.NewError("ingest document", fmt.Errorf("document needs content or a source location"))
	}

	// Content is processed but never stored on the document row.
	content := doc.Content
	doc.Content = ""

	if err := d.Documents.InsertDocument(doc); err != nil {
		return helper.NewError("insert document", err)
	}

	if content != "" {
		d.Orchestrator.CacheDocumentText(doc.RID, content)
	}

	d.log.Info("Ingested document", slog.String("document_rid", doc.RID.String()), slog.String("title", doc.Title))

	return nil
}

// Advance moves the document one stage forward. Safe to call concurrently;
// each stage's side effect runs at most once.
func (d *Docketflow) Advance(ctx context.Context, rid uuid.UUID) (*model.Document, error) {
	if d.Orchestrator == nil {
		return nil, helper.NewError("advance document", fmt.Errorf("processors not set, use SetProcessors() first"))
	}
	return d.Orchestrator.Advance(ctx, rid)
}

// ProcessDocument drives one document to completion or terminal failure.
func (d *Docketflow) ProcessDocument(ctx context.Context, rid uuid.UUID) error {
	if d.Orchestrator == nil {
		return helper.NewError("process document", fmt.Errorf("processors not set, use SetProcessors() first"))
	}
	return d.Orchestrator.ProcessDocument(ctx, rid)
}

// RunWorkers runs the worker pool and the stalled-document sweeper until
// the context is cancelled.
func (d *Docketflow) RunWorkers(ctx context.Context) error {
	if d.Orchestrator == nil {
		return helper.NewError("run workers", fmt.Errorf("processors not set, use SetProcessors() first"))
	}

	go func() {
		if err := d.Sweeper.Run(ctx); err != nil && err != context.Canceled {
			d.log.Warn("Sweeper stopped", slog.Any("error", err))
		}
	}()

	return d.Orchestrator.RunWorkers(ctx)
}

// ResetDocument rewinds a failed or stuck document to the given stage and
// re-enters it into the pipeline.
func (d *Docketflow) ResetDocument(rid uuid.UUID, stage model.Stage) (*model.Document, error) {
	if d.Orchestrator == nil {
		return nil, helper.NewError("reset document", fmt.Errorf("processors not set, use SetProcessors() first"))
	}
	return d.Orchestrator.ResetDocument(rid, stage)
}

// DocumentStatus returns the document with its current stage, attempt
// count and last error for operator visibility.
func (d *Docketflow) DocumentStatus(rid uuid.UUID) (*model.Document, error) {
	return d.Documents.SelectDocument(rid)
}

// FailedDocuments lists documents in the terminal failed stage, oldest
// first.
func (d *Docketflow) FailedDocuments(limit int) ([]*model.Document, error) {
	return d.Documents.SelectDocumentsByStage(model.StageFailed, limit)
}

// StagedRelationships returns the staged edges originating at the given
// node, optionally filtered by relationship type.
func (d *Docketflow) StagedRelationships(sourceID string, relationshipType *model.RelationshipType) ([]*model.StagedRelationship, error) {
	return d.Relationships.SelectRelationshipsBySource(sourceID, relationshipType)
}

// ChangeEntityIndexType changes the entity vector index between HNSW and
// IVFFlat.
func (d *Docketflow) ChangeEntityIndexType(ctx context.Context, indexType string, params map[string]interface{}) error {
	return d.Entities.ChangeIndexType(ctx, indexType, params)
}
