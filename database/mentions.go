package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/docketflow/helper"
	"github.com/siherrmann/docketflow/model"
	loadSql "github.com/siherrmann/docketflow/sql"
)

// MentionsDBHandlerFunctions defines the interface for EntityMentions
// database operations.
type MentionsDBHandlerFunctions interface {
	InsertMention(mention *model.EntityMention) error
	SelectMentionsByChunk(chunkRID uuid.UUID) ([]*model.EntityMention, error)
	SelectMentionsByDocument(documentRID uuid.UUID) ([]*model.EntityMention, error)
	UpdateMentionCanonicalEntity(rid uuid.UUID, canonicalEntityID uuid.UUID) error
	DeleteMentionsByDocument(documentRID uuid.UUID) (int, error)
}

// MentionsDBHandler handles entity-mention-related database operations
type MentionsDBHandler struct {
	db *helper.Database
}

// NewMentionsDBHandler creates a new mentions database handler.
// It initializes the database connection and loads mention-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewMentionsDBHandler(db *helper.Database, embeddingDim int, force bool) (*MentionsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	mentionsDbHandler := &MentionsDBHandler{
		db: db,
	}

	err := loadSql.LoadMentionsSql(mentionsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load mentions sql", err)
	}

	err = mentionsDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized MentionsDBHandler")

	return mentionsDbHandler, nil
}

// CreateTable creates the 'entity_mentions' table in the database.
// If the table already exists, it does not create it again.
func (h *MentionsDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_mentions($1);`, embeddingDim)
	if err != nil {
		log.Panicf("error initializing entity_mentions table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table entity_mentions")

	return nil
}

// InsertMention inserts a new entity mention
func (h *MentionsDBHandler) InsertMention(mention *model.EntityMention) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_mention($1, $2, $3, $4, $5, $6, $7, $8)`,
		mention.ChunkID,
		mention.Text,
		string(mention.Type),
		mention.StartOffset,
		mention.EndOffset,
		mention.Confidence,
		mention.Attributes,
		vectorParam(mention.Embedding),
	)

	err := scanMention(row, mention)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectMentionsByChunk retrieves all mentions of a chunk in offset order
func (h *MentionsDBHandler) SelectMentionsByChunk(chunkRID uuid.UUID) ([]*model.EntityMention, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_mentions_by_chunk($1)`,
		chunkRID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanMentions(rows)
}

// SelectMentionsByDocument retrieves all mentions of a document ordered by
// chunk index and start offset. This is the resolution engine's input order.
func (h *MentionsDBHandler) SelectMentionsByDocument(documentRID uuid.UUID) ([]*model.EntityMention, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_mentions_by_document($1)`,
		documentRID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanMentions(rows)
}

// UpdateMentionCanonicalEntity links a mention forward to its canonical entity
func (h *MentionsDBHandler) UpdateMentionCanonicalEntity(rid uuid.UUID, canonicalEntityID uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT update_mention_canonical_entity($1, $2)`,
		rid,
		canonicalEntityID,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// DeleteMentionsByDocument deletes all mentions of a document and returns
// the number of deleted rows.
func (h *MentionsDBHandler) DeleteMentionsByDocument(documentRID uuid.UUID) (int, error) {
	var deleted int
	err := h.db.Instance.QueryRow(
		`SELECT delete_mentions_by_document($1)`,
		documentRID,
	).Scan(&deleted)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}
	return deleted, nil
}

func scanMention(row rowScanner, mention *model.EntityMention) error {
	var mentionType string
	var embedding nullVector
	var canonicalEntityID uuid.NullUUID

	err := row.Scan(
		&mention.ID,
		&mention.RID,
		&mention.ChunkID,
		&mention.ChunkRID,
		&mention.Text,
		&mentionType,
		&mention.StartOffset,
		&mention.EndOffset,
		&mention.Confidence,
		&mention.Attributes,
		&embedding,
		&canonicalEntityID,
		&mention.CreatedAt,
	)
	if err != nil {
		return err
	}

	mention.Type = model.MentionType(mentionType)
	mention.Embedding = embedding.Slice()
	if canonicalEntityID.Valid {
		mention.CanonicalEntityID = &canonicalEntityID.UUID
	} else {
		mention.CanonicalEntityID = nil
	}

	return nil
}

func scanMentions(rows rowsScanner) ([]*model.EntityMention, error) {
	var mentions []*model.EntityMention
	for rows.Next() {
		mention := &model.EntityMention{}
		if err := scanMention(rows, mention); err != nil {
			return nil, helper.NewError("scan", err)
		}
		mentions = append(mentions, mention)
	}
	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows", err)
	}
	return mentions, nil
}

type rowsScanner interface {
	rowScanner
	Next() bool
	Err() error
}

// vectorParam converts an embedding slice to a nullable pgvector parameter.
// A missing embedding is stored as NULL, not as a zero vector.
func vectorParam(embedding []float32) interface{} {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}

// nullVector scans a nullable vector column.
type nullVector struct {
	vector pgvector.Vector
	valid  bool
}

func (v *nullVector) Scan(src interface{}) error {
	if src == nil {
		v.valid = false
		return nil
	}
	if err := v.vector.Scan(src); err != nil {
		return err
	}
	v.valid = true
	return nil
}

// Slice returns the scanned embedding, or nil for a NULL column.
func (v *nullVector) Slice() []float32 {
	if !v.valid {
		return nil
	}
	return v.vector.Slice()
}
