package resolution

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/siherrmann/docketflow/database"
	"github.com/siherrmann/docketflow/model"
)

// entityLinker is the subset of the entity store the linking pass needs.
type entityLinker interface {
	SelectEntitiesBySimilarity(embedding []float32, entityType model.MentionType, threshold float64, excludeDocumentRID uuid.UUID, limit int) ([]*database.EntitySimilarityMatch, error)
	UpdateEntityLink(id uuid.UUID, linkedEntityID uuid.UUID) error
}

// CrossDocumentLinker records identity mappings between canonical entities
// of different documents. Linking is additive only, the linked records are
// never merged.
type CrossDocumentLinker struct {
	entities  entityLinker
	threshold float64
	logger    *slog.Logger
}

// NewCrossDocumentLinker creates a linker using the configured link
// threshold, which is stricter than the in-document clustering threshold.
func NewCrossDocumentLinker(entities entityLinker, config *model.PipelineConfig, logger *slog.Logger) *CrossDocumentLinker {
	if logger == nil {
		logger = slog.Default()
	}

	return &CrossDocumentLinker{
		entities:  entities,
		threshold: config.LinkThreshold,
		logger:    logger,
	}
}

// Link looks up the best cross-document match for each entity and records
// the mapping. Entities without an embedding are skipped; a lookup failure
// skips only the affected entity. Returns the number of links recorded.
func (l *CrossDocumentLinker) Link(entities []*model.CanonicalEntity) (int, error) {
	linked := 0

	for _, entity := range entities {
		if len(entity.Embedding) == 0 {
			continue
		}

		matches, err := l.entities.SelectEntitiesBySimilarity(entity.Embedding, entity.Type, l.threshold, entity.DocumentRID, 1)
		if err != nil {
			l.logger.Warn("Cross-document lookup failed",
				slog.String("entity_id", entity.ID.String()),
				slog.Any("error", err))
			continue
		}
		if len(matches) == 0 {
			continue
		}

		match := matches[0]
		if err := l.entities.UpdateEntityLink(entity.ID, match.Entity.ID); err != nil {
			l.logger.Warn("Failed to record entity link",
				slog.String("entity_id", entity.ID.String()),
				slog.Any("error", err))
			continue
		}

		entity.LinkedEntityID = &match.Entity.ID
		linked++

		l.logger.Info("Linked entity across documents",
			slog.String("entity", entity.CanonicalName),
			slog.String("linked_to", match.Entity.CanonicalName),
			slog.Float64("similarity", match.Similarity))
	}

	return linked, nil
}
