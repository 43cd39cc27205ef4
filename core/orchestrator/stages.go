package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/siherrmann/docketflow/cache"
	"github.com/siherrmann/docketflow/model"
)

// runStage performs the work that moves the document out of its current
// stage. It returns the task reference to persist with the transition and
// a classified error on failure.
func (o *Orchestrator) runStage(ctx context.Context, doc *model.Document) (string, error) {
	switch doc.Stage {
	case model.StageIntake:
		return o.stageIntake(ctx, doc)
	case model.StageOCRPending:
		return o.stageOCRPending(ctx, doc)
	case model.StageOCRDone:
		return o.stageChunking(ctx, doc)
	case model.StageChunked:
		return o.stageExtraction(ctx, doc)
	case model.StageEntitiesExtracted:
		return o.stageResolution(ctx, doc)
	case model.StageEntitiesResolved:
		return o.stageStaging(ctx, doc)
	case model.StageRelationshipsStaged:
		// All artifacts are persisted; nothing left to do.
		return "", nil
	default:
		return "", Permanent(fmt.Errorf("no handler for stage %s", doc.Stage))
	}
}

// stageIntake submits the OCR job for documents with a source location.
// Documents ingested with their text skip submission; their text is
// already cached.
func (o *Orchestrator) stageIntake(ctx context.Context, doc *model.Document) (string, error) {
	if doc.Source != "" && o.deps.OCR != nil {
		jobID, err := o.deps.OCR.Submit(ctx, doc.RID, doc.Source)
		if err != nil {
			return "", Transient(err)
		}
		return jobID, nil
	}

	if o.cachedDocumentText(doc.RID) != nil {
		return "", nil
	}

	return "", Validation(fmt.Errorf("document has neither a source location nor ingested text"))
}

// stageOCRPending waits for the OCR job to finish and caches the merged
// text. A job the service reports as failed fails the document without
// entering the chunked stage.
func (o *Orchestrator) stageOCRPending(ctx context.Context, doc *model.Document) (string, error) {
	if doc.TaskReference == "" {
		if o.cachedDocumentText(doc.RID) != nil {
			return "", nil
		}
		return "", Validation(fmt.Errorf("document has no OCR job and no ingested text"))
	}

	result, err := o.deps.OCR.WaitForResult(ctx, doc.TaskReference)
	if err != nil {
		return "", err
	}

	o.CacheDocumentText(doc.RID, result.Text)

	return doc.TaskReference, nil
}

// stageChunking splits the document text into ordered chunks and persists
// them. A document whose extracted text is empty cannot produce anything
// downstream and fails as a validation error.
func (o *Orchestrator) stageChunking(ctx context.Context, doc *model.Document) (string, error) {
	text, err := o.documentText(ctx, doc)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", Validation(fmt.Errorf("document has no extracted text"))
	}

	spans, err := o.deps.Chunker(text)
	if err != nil {
		return "", Validation(fmt.Errorf("failed to chunk document: %w", err))
	}

	chunks := make([]*model.Chunk, 0, len(spans))
	for _, span := range spans {
		chunk := &model.Chunk{
			DocumentID:  doc.ID,
			DocumentRID: doc.RID,
			Content:     span.Content,
			ChunkIndex:  span.ChunkIndex,
			StartOffset: span.StartOffset,
			EndOffset:   span.EndOffset,
			Metadata:    span.Metadata,
		}
		if err := o.deps.Chunks.InsertChunk(chunk); err != nil {
			return "", Transient(fmt.Errorf("failed to insert chunk %d: %w", span.ChunkIndex, err))
		}
		chunks = append(chunks, chunk)
	}

	o.cacheChunks(doc.RID, chunks)

	o.logger.Info("Chunked document",
		slog.String("document_rid", doc.RID.String()),
		slog.Int("num_chunks", len(chunks)))

	return doc.TaskReference, nil
}

// stageExtraction extracts entity mentions from each chunk, embeds them
// when an embedder is wired and persists them. Embedding failures degrade
// to mentions without embeddings.
func (o *Orchestrator) stageExtraction(ctx context.Context, doc *model.Document) (string, error) {
	chunks, err := o.documentChunks(doc.RID)
	if err != nil {
		return "", Transient(fmt.Errorf("failed to load chunks: %w", err))
	}

	total := 0
	for _, chunk := range chunks {
		// Extraction errors keep their own classification; anything
		// untagged is classified as unknown.
		spans, err := o.deps.Extractor(ctx, chunk.Content)
		if err != nil {
			return "", fmt.Errorf("failed to extract mentions from chunk %d: %w", chunk.ChunkIndex, err)
		}

		for _, span := range spans {
			mention := &model.EntityMention{
				ChunkID:     chunk.ID,
				ChunkRID:    chunk.RID,
				Text:        span.Text,
				Type:        model.MentionType(span.Type),
				StartOffset: span.StartOffset,
				EndOffset:   span.EndOffset,
				Confidence:  span.Confidence,
				Attributes:  span.Attributes,
			}

			if o.deps.Embedder != nil {
				embedding, err := o.deps.Embedder(span.Text)
				if err != nil {
					o.logger.Warn("Failed to embed mention, continuing without embedding",
						slog.String("text", span.Text),
						slog.Any("error", err))
				} else {
					mention.Embedding = embedding
				}
			}

			if err := o.deps.Mentions.InsertMention(mention); err != nil {
				return "", Transient(fmt.Errorf("failed to insert mention: %w", err))
			}
			total++
		}
	}

	o.logger.Info("Extracted entity mentions",
		slog.String("document_rid", doc.RID.String()),
		slog.Int("num_mentions", total))

	return "", nil
}

// stageResolution clusters the document's mentions into canonical
// entities, persists them, links the mentions forward and runs the
// optional cross-document linking pass.
func (o *Orchestrator) stageResolution(ctx context.Context, doc *model.Document) (string, error) {
	mentions, err := o.deps.Mentions.SelectMentionsByDocument(doc.RID)
	if err != nil {
		return "", Transient(fmt.Errorf("failed to load mentions: %w", err))
	}

	snippet := ""
	if text := o.cachedDocumentText(doc.RID); text != nil {
		snippet = string(text)
	}

	result, err := o.deps.Resolver.Resolve(doc.RID, snippet, mentions)
	if err != nil {
		return "", Transient(fmt.Errorf("failed to resolve entities: %w", err))
	}

	// The store assigns persistent entity ids on insert; remap the
	// resolution's provisional ids before linking mentions forward.
	persistedIDs := make(map[uuid.UUID]uuid.UUID, len(result.Entities))
	for _, entity := range result.Entities {
		provisionalID := entity.ID
		if err := o.deps.Entities.InsertEntity(entity); err != nil {
			return "", Transient(fmt.Errorf("failed to insert entity %s: %w", entity.CanonicalName, err))
		}
		persistedIDs[provisionalID] = entity.ID
	}

	for mentionRID, provisionalID := range result.Assignments {
		entityID, ok := persistedIDs[provisionalID]
		if !ok {
			continue
		}
		if err := o.deps.Mentions.UpdateMentionCanonicalEntity(mentionRID, entityID); err != nil {
			return "", Transient(fmt.Errorf("failed to link mention to entity: %w", err))
		}
	}

	if o.deps.Linker != nil {
		// Linking is additive and best-effort; it never fails the stage.
		if linked, err := o.deps.Linker.Link(result.Entities); err == nil && linked > 0 {
			o.logger.Info("Linked entities across documents",
				slog.String("document_rid", doc.RID.String()),
				slog.Int("num_linked", linked))
		}
	}

	return "", nil
}

// stageStaging derives and persists the document's relationship edges.
func (o *Orchestrator) stageStaging(ctx context.Context, doc *model.Document) (string, error) {
	chunks, err := o.documentChunks(doc.RID)
	if err != nil {
		return "", Transient(fmt.Errorf("failed to load chunks: %w", err))
	}
	mentions, err := o.deps.Mentions.SelectMentionsByDocument(doc.RID)
	if err != nil {
		return "", Transient(fmt.Errorf("failed to load mentions: %w", err))
	}
	entities, err := o.deps.Entities.SelectEntitiesByDocument(doc.RID)
	if err != nil {
		return "", Transient(fmt.Errorf("failed to load entities: %w", err))
	}

	result, err := o.deps.Builder.Stage(doc, chunks, mentions, entities)
	if err != nil {
		return "", Validation(fmt.Errorf("failed to stage relationships: %w", err))
	}

	for _, relationship := range result.Relationships {
		if err := o.deps.Relationships.InsertRelationship(relationship); err != nil {
			return "", Transient(fmt.Errorf("failed to insert relationship: %w", err))
		}
	}

	return "", nil
}

// documentText loads the document's cleaned text from the cache, falling
// back to re-fetching the completed OCR result.
func (o *Orchestrator) documentText(ctx context.Context, doc *model.Document) (string, error) {
	if text := o.cachedDocumentText(doc.RID); text != nil {
		return string(text), nil
	}

	if doc.TaskReference != "" && o.deps.OCR != nil {
		result, err := o.deps.OCR.WaitForResult(ctx, doc.TaskReference)
		if err != nil {
			return "", err
		}
		o.CacheDocumentText(doc.RID, result.Text)
		return result.Text, nil
	}

	return "", Transient(fmt.Errorf("document text unavailable for %s", doc.RID))
}

// cachedDocumentText reads the cached text, treating any cache failure as
// a miss.
func (o *Orchestrator) cachedDocumentText(rid uuid.UUID) []byte {
	if o.deps.Cache == nil {
		return nil
	}
	text, err := o.deps.Cache.Get(cache.OCRKey(rid))
	if err != nil {
		return nil
	}
	return text
}

// documentChunks loads the document's chunk list, preferring the memoized
// copy written at chunking time over a store round trip.
func (o *Orchestrator) documentChunks(rid uuid.UUID) ([]*model.Chunk, error) {
	if o.deps.Cache != nil {
		if raw, err := o.deps.Cache.Get(cache.ChunksKey(rid)); err == nil {
			var chunks []*model.Chunk
			if err := json.Unmarshal(raw, &chunks); err == nil && len(chunks) > 0 {
				return chunks, nil
			}
		}
	}

	return o.deps.Chunks.SelectChunksByDocument(rid)
}

// cacheChunks memoizes the chunk list, best effort.
func (o *Orchestrator) cacheChunks(rid uuid.UUID, chunks []*model.Chunk) {
	if o.deps.Cache == nil || len(chunks) == 0 {
		return
	}
	raw, err := json.Marshal(chunks)
	if err != nil {
		return
	}
	if err := o.deps.Cache.Set(cache.ChunksKey(rid), raw, o.config.StageResultTTL); err != nil {
		o.logger.Warn("Failed to cache chunk list", slog.String("document_rid", rid.String()), slog.Any("error", err))
	}
}
