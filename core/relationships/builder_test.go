package relationships

import (
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/docketflow/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	config := model.DefaultPipelineConfig()
	config.ProjectID = "project-1"
	return NewBuilder(config, slog.New(slog.DiscardHandler))
}

func newTestDocument() *model.Document {
	return &model.Document{RID: uuid.New(), Title: "contract.pdf"}
}

func newTestChunk(documentRID uuid.UUID, index int) *model.Chunk {
	return &model.Chunk{RID: uuid.New(), DocumentRID: documentRID, ChunkIndex: index}
}

func edgesOfType(result *model.StagingResult, relationshipType model.RelationshipType) []*model.StagedRelationship {
	var edges []*model.StagedRelationship
	for _, edge := range result.Relationships {
		if edge.RelationshipType == relationshipType {
			edges = append(edges, edge)
		}
	}
	return edges
}

func TestBuilderStage(t *testing.T) {
	t.Run("Valid document stages project and chunk edges", func(t *testing.T) {
		builder := newTestBuilder(t)
		document := newTestDocument()
		chunks := []*model.Chunk{
			newTestChunk(document.RID, 0),
			newTestChunk(document.RID, 1),
			newTestChunk(document.RID, 2),
		}

		result, err := builder.Stage(document, chunks, nil, nil)

		require.NoError(t, err)
		assert.Equal(t, 0, result.Skipped)

		belongsTo := edgesOfType(result, model.RelationshipTypeBelongsTo)
		require.Equal(t, 4, len(belongsTo), "Expected document->project plus one edge per chunk")
		assert.Equal(t, "project-1", belongsTo[0].TargetID)
		assert.Equal(t, model.NodeTypeProject, belongsTo[0].TargetType)

		assert.Equal(t, 2, len(edgesOfType(result, model.RelationshipTypeNextChunk)))
		assert.Equal(t, 2, len(edgesOfType(result, model.RelationshipTypePreviousChunk)))
	})

	t.Run("Chunk adjacency links neighbours in order", func(t *testing.T) {
		builder := newTestBuilder(t)
		document := newTestDocument()
		first := newTestChunk(document.RID, 0)
		second := newTestChunk(document.RID, 1)

		result, err := builder.Stage(document, []*model.Chunk{first, second}, nil, nil)

		require.NoError(t, err)
		next := edgesOfType(result, model.RelationshipTypeNextChunk)
		require.Equal(t, 1, len(next))
		assert.Equal(t, first.RID.String(), next[0].SourceID)
		assert.Equal(t, second.RID.String(), next[0].TargetID)
	})

	t.Run("Chunk missing its id skips only that chunk", func(t *testing.T) {
		builder := newTestBuilder(t)
		document := newTestDocument()
		broken := &model.Chunk{DocumentRID: document.RID, ChunkIndex: 1}
		chunks := []*model.Chunk{
			newTestChunk(document.RID, 0),
			broken,
			newTestChunk(document.RID, 2),
		}

		result, err := builder.Stage(document, chunks, nil, nil)

		require.NoError(t, err)
		assert.Equal(t, 1, result.Skipped)

		// Document->project plus two valid chunks.
		assert.Equal(t, 3, len(edgesOfType(result, model.RelationshipTypeBelongsTo)))
		// Adjacency only between the remaining valid chunks.
		assert.Equal(t, 1, len(edgesOfType(result, model.RelationshipTypeNextChunk)))
	})

	t.Run("Mention edges include resolution when assigned", func(t *testing.T) {
		builder := newTestBuilder(t)
		document := newTestDocument()
		chunk := newTestChunk(document.RID, 0)
		entityID := uuid.New()

		resolved := &model.EntityMention{RID: uuid.New(), ChunkRID: chunk.RID, Text: "John Doe", Type: model.MentionTypePerson, CanonicalEntityID: &entityID}
		unresolved := &model.EntityMention{RID: uuid.New(), ChunkRID: chunk.RID, Text: "Acme Corp", Type: model.MentionTypeOrganization}

		result, err := builder.Stage(document, []*model.Chunk{chunk}, []*model.EntityMention{resolved, unresolved}, nil)

		require.NoError(t, err)
		assert.Equal(t, 0, result.Skipped)
		assert.Equal(t, 2, len(edgesOfType(result, model.RelationshipTypeMentions)))

		resolvesTo := edgesOfType(result, model.RelationshipTypeResolvesTo)
		require.Equal(t, 1, len(resolvesTo))
		assert.Equal(t, resolved.RID.String(), resolvesTo[0].SourceID)
		assert.Equal(t, entityID.String(), resolvesTo[0].TargetID)
	})

	t.Run("Mention missing its chunk id is skipped", func(t *testing.T) {
		builder := newTestBuilder(t)
		document := newTestDocument()
		chunk := newTestChunk(document.RID, 0)
		broken := &model.EntityMention{RID: uuid.New(), Text: "John Doe", Type: model.MentionTypePerson}

		result, err := builder.Stage(document, []*model.Chunk{chunk}, []*model.EntityMention{broken}, nil)

		require.NoError(t, err)
		assert.Equal(t, 1, result.Skipped)
		assert.Empty(t, edgesOfType(result, model.RelationshipTypeMentions))
	})

	t.Run("Linked entity stages a same-as edge", func(t *testing.T) {
		builder := newTestBuilder(t)
		document := newTestDocument()
		linkedID := uuid.New()
		entity := &model.CanonicalEntity{ID: uuid.New(), DocumentRID: document.RID, Type: model.MentionTypePerson, CanonicalName: "John Doe", LinkedEntityID: &linkedID}

		result, err := builder.Stage(document, nil, nil, []*model.CanonicalEntity{entity})

		require.NoError(t, err)
		assert.Equal(t, 1, len(edgesOfType(result, model.RelationshipTypeContains)))

		sameAs := edgesOfType(result, model.RelationshipTypeSameAs)
		require.Equal(t, 1, len(sameAs))
		assert.Equal(t, entity.ID.String(), sameAs[0].SourceID)
		assert.Equal(t, linkedID.String(), sameAs[0].TargetID)
	})

	t.Run("Error with nil document", func(t *testing.T) {
		builder := newTestBuilder(t)

		_, err := builder.Stage(nil, nil, nil, nil)

		assert.Error(t, err)
	})

	t.Run("Error with missing document id", func(t *testing.T) {
		builder := newTestBuilder(t)

		_, err := builder.Stage(&model.Document{}, nil, nil, nil)

		assert.Error(t, err)
	})
}
