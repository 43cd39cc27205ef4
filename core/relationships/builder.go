// Package relationships derives typed graph edges from a document's
// processed artifacts. Staged edges are append-only; a downstream exporter
// consumes them.
package relationships

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/siherrmann/docketflow/model"
)

// Builder stages the relationship edges for one document. Items with
// missing identifiers are skipped individually; a skip never aborts the
// run.
type Builder struct {
	projectID string
	logger    *slog.Logger
}

// NewBuilder creates a relationship builder staging edges into the given
// project.
func NewBuilder(config *model.PipelineConfig, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}

	return &Builder{
		projectID: config.ProjectID,
		logger:    logger,
	}
}

// Stage derives all edges for the document: document containment in the
// project, chunk containment and adjacency, mention occurrence, mention
// resolution and cross-document identity. Returns the staged edges plus
// the number of items skipped for missing identifiers.
func (b *Builder) Stage(document *model.Document, chunks []*model.Chunk, mentions []*model.EntityMention, entities []*model.CanonicalEntity) (*model.StagingResult, error) {
	if document == nil {
		return nil, fmt.Errorf("document is nil")
	}
	if document.RID == uuid.Nil {
		return nil, fmt.Errorf("document has no identifier")
	}

	result := &model.StagingResult{}
	documentID := document.RID.String()

	appendEdge(result, documentID, model.NodeTypeDocument, b.projectID, model.NodeTypeProject, model.RelationshipTypeBelongsTo, nil)

	validChunks := make([]*model.Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.RID == uuid.Nil {
			b.logger.Warn("Skipping chunk without identifier",
				slog.String("document_rid", documentID),
				slog.Int("chunk_index", chunk.ChunkIndex))
			result.Skipped++
			continue
		}
		validChunks = append(validChunks, chunk)

		appendEdge(result, chunk.RID.String(), model.NodeTypeChunk, documentID, model.NodeTypeDocument, model.RelationshipTypeBelongsTo, model.Metadata{
			"chunk_index": chunk.ChunkIndex,
		})
	}

	for i := 1; i < len(validChunks); i++ {
		previous := validChunks[i-1].RID.String()
		current := validChunks[i].RID.String()
		appendEdge(result, previous, model.NodeTypeChunk, current, model.NodeTypeChunk, model.RelationshipTypeNextChunk, nil)
		appendEdge(result, current, model.NodeTypeChunk, previous, model.NodeTypeChunk, model.RelationshipTypePreviousChunk, nil)
	}

	for _, mention := range mentions {
		if mention.RID == uuid.Nil || mention.ChunkRID == uuid.Nil {
			b.logger.Warn("Skipping mention without identifier",
				slog.String("document_rid", documentID),
				slog.String("text", mention.Text))
			result.Skipped++
			continue
		}

		appendEdge(result, mention.ChunkRID.String(), model.NodeTypeChunk, mention.RID.String(), model.NodeTypeMention, model.RelationshipTypeMentions, model.Metadata{
			"mention_type": string(mention.Type),
		})

		// Unresolved mentions are legitimate, they simply stage no
		// resolution edge.
		if mention.CanonicalEntityID != nil {
			appendEdge(result, mention.RID.String(), model.NodeTypeMention, mention.CanonicalEntityID.String(), model.NodeTypeEntity, model.RelationshipTypeResolvesTo, nil)
		}
	}

	for _, entity := range entities {
		if entity.ID == uuid.Nil {
			b.logger.Warn("Skipping entity without identifier",
				slog.String("document_rid", documentID),
				slog.String("name", entity.CanonicalName))
			result.Skipped++
			continue
		}

		appendEdge(result, documentID, model.NodeTypeDocument, entity.ID.String(), model.NodeTypeEntity, model.RelationshipTypeContains, model.Metadata{
			"entity_type": string(entity.Type),
		})

		if entity.LinkedEntityID != nil {
			appendEdge(result, entity.ID.String(), model.NodeTypeEntity, entity.LinkedEntityID.String(), model.NodeTypeEntity, model.RelationshipTypeSameAs, nil)
		}
	}

	b.logger.Info("Staged relationships",
		slog.String("document_rid", documentID),
		slog.Int("num_relationships", len(result.Relationships)),
		slog.Int("num_skipped", result.Skipped))

	return result, nil
}

func appendEdge(result *model.StagingResult, sourceID string, sourceType model.NodeType, targetID string, targetType model.NodeType, relationshipType model.RelationshipType, properties model.Metadata) {
	result.Relationships = append(result.Relationships, &model.StagedRelationship{
		SourceID:         sourceID,
		SourceType:       sourceType,
		TargetID:         targetID,
		TargetType:       targetType,
		RelationshipType: relationshipType,
		Properties:       properties,
	})
}
