package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/siherrmann/docketflow/helper"
	"github.com/siherrmann/docketflow/model"
	loadSql "github.com/siherrmann/docketflow/sql"
)

// EntitySimilarityMatch pairs a canonical entity with its cosine similarity
// to a lookup embedding.
type EntitySimilarityMatch struct {
	Entity     *model.CanonicalEntity
	Similarity float64
}

// EntitiesDBHandlerFunctions defines the interface for CanonicalEntities
// database operations.
type EntitiesDBHandlerFunctions interface {
	InsertEntity(entity *model.CanonicalEntity) error
	SelectEntity(id uuid.UUID) (*model.CanonicalEntity, error)
	SelectEntitiesByDocument(documentRID uuid.UUID) ([]*model.CanonicalEntity, error)
	SelectEntitiesBySimilarity(embedding []float32, entityType model.MentionType, threshold float64, excludeDocumentRID uuid.UUID, limit int) ([]*EntitySimilarityMatch, error)
	UpdateEntityLink(id uuid.UUID, linkedEntityID uuid.UUID) error
	DeleteEntitiesByDocument(documentRID uuid.UUID) (int, error)
}

// EntitiesDBHandler handles canonical-entity-related database operations
type EntitiesDBHandler struct {
	db *helper.Database
}

// NewEntitiesDBHandler creates a new entities database handler.
// It initializes the database connection and loads entity-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewEntitiesDBHandler(db *helper.Database, embeddingDim int, force bool) (*EntitiesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	entitiesDbHandler := &EntitiesDBHandler{
		db: db,
	}

	err := loadSql.LoadEntitiesSql(entitiesDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load entities sql", err)
	}

	err = entitiesDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized EntitiesDBHandler")

	return entitiesDbHandler, nil
}

// CreateTable creates the 'canonical_entities' table in the database.
// If the table already exists, it does not create it again.
func (h *EntitiesDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_entities($1);`, embeddingDim)
	if err != nil {
		log.Panicf("error initializing canonical_entities table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table canonical_entities")

	return nil
}

// InsertEntity inserts a new canonical entity
func (h *EntitiesDBHandler) InsertEntity(entity *model.CanonicalEntity) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_canonical_entity($1, $2, $3, $4, $5, $6, $7, $8)`,
		entity.DocumentRID,
		string(entity.Type),
		entity.CanonicalName,
		pq.Array(entity.Aliases),
		entity.MentionCount,
		entity.Confidence,
		vectorParam(entity.Embedding),
		entity.Metadata,
	)

	err := scanEntity(row, entity)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectEntity retrieves a canonical entity by ID
func (h *EntitiesDBHandler) SelectEntity(id uuid.UUID) (*model.CanonicalEntity, error) {
	entity := &model.CanonicalEntity{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_canonical_entity($1)`,
		id,
	)

	err := scanEntity(row, entity)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return entity, nil
}

// SelectEntitiesByDocument retrieves all canonical entities of a document
func (h *EntitiesDBHandler) SelectEntitiesByDocument(documentRID uuid.UUID) ([]*model.CanonicalEntity, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_entities_by_document($1)`,
		documentRID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var entities []*model.CanonicalEntity
	for rows.Next() {
		entity := &model.CanonicalEntity{}
		if err := scanEntity(rows, entity); err != nil {
			return nil, helper.NewError("scan", err)
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows", err)
	}

	return entities, nil
}

// SelectEntitiesBySimilarity retrieves canonical entities of the same type
// from other documents whose embedding similarity is at or above threshold.
// Used by the cross-document linking pass.
func (h *EntitiesDBHandler) SelectEntitiesBySimilarity(embedding []float32, entityType model.MentionType, threshold float64, excludeDocumentRID uuid.UUID, limit int) ([]*EntitySimilarityMatch, error) {
	if len(embedding) == 0 {
		return nil, helper.NewError("similarity lookup validation", fmt.Errorf("embedding is empty"))
	}

	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_entities_by_similarity($1, $2, $3, $4, $5)`,
		vectorParam(embedding),
		string(entityType),
		threshold,
		excludeDocumentRID,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var matches []*EntitySimilarityMatch
	for rows.Next() {
		match := &EntitySimilarityMatch{Entity: &model.CanonicalEntity{}}
		if err := scanEntityWithSimilarity(rows, match); err != nil {
			return nil, helper.NewError("scan", err)
		}
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows", err)
	}

	return matches, nil
}

// UpdateEntityLink records a cross-document identity mapping. The linked
// records themselves are never merged.
func (h *EntitiesDBHandler) UpdateEntityLink(id uuid.UUID, linkedEntityID uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT update_entity_link($1, $2)`,
		id,
		linkedEntityID,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// DeleteEntitiesByDocument deletes all canonical entities of a document and
// returns the number of deleted rows.
func (h *EntitiesDBHandler) DeleteEntitiesByDocument(documentRID uuid.UUID) (int, error) {
	var deleted int
	err := h.db.Instance.QueryRow(
		`SELECT delete_entities_by_document($1)`,
		documentRID,
	).Scan(&deleted)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}
	return deleted, nil
}

func scanEntity(row rowScanner, entity *model.CanonicalEntity) error {
	var entityType string
	var embedding nullVector
	var linkedEntityID uuid.NullUUID

	err := row.Scan(
		&entity.ID,
		&entity.DocumentRID,
		&entityType,
		&entity.CanonicalName,
		pq.Array(&entity.Aliases),
		&entity.MentionCount,
		&entity.Confidence,
		&embedding,
		&linkedEntityID,
		&entity.Metadata,
		&entity.CreatedAt,
	)
	if err != nil {
		return err
	}

	entity.Type = model.MentionType(entityType)
	entity.Embedding = embedding.Slice()
	if linkedEntityID.Valid {
		entity.LinkedEntityID = &linkedEntityID.UUID
	} else {
		entity.LinkedEntityID = nil
	}

	return nil
}

func scanEntityWithSimilarity(row rowScanner, match *EntitySimilarityMatch) error {
	entity := match.Entity
	var entityType string
	var embedding nullVector
	var linkedEntityID uuid.NullUUID

	err := row.Scan(
		&entity.ID,
		&entity.DocumentRID,
		&entityType,
		&entity.CanonicalName,
		pq.Array(&entity.Aliases),
		&entity.MentionCount,
		&entity.Confidence,
		&embedding,
		&linkedEntityID,
		&entity.Metadata,
		&entity.CreatedAt,
		&match.Similarity,
	)
	if err != nil {
		return err
	}

	entity.Type = model.MentionType(entityType)
	entity.Embedding = embedding.Slice()
	if linkedEntityID.Valid {
		entity.LinkedEntityID = &linkedEntityID.UUID
	}

	return nil
}
