package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/siherrmann/docketflow/helper"
	"github.com/siherrmann/docketflow/model"
	loadSql "github.com/siherrmann/docketflow/sql"
)

// RelationshipsDBHandlerFunctions defines the interface for
// StagedRelationships database operations. The table is append-only.
type RelationshipsDBHandlerFunctions interface {
	InsertRelationship(rel *model.StagedRelationship) error
	SelectRelationshipsBySource(sourceID string, relationshipType *model.RelationshipType) ([]*model.StagedRelationship, error)
	SelectRelationshipsByTarget(targetID string, relationshipType *model.RelationshipType) ([]*model.StagedRelationship, error)
	CountRelationshipsBySource(sourceID string) (int64, error)
}

// RelationshipsDBHandler handles staged-relationship database operations
type RelationshipsDBHandler struct {
	db *helper.Database
}

// NewRelationshipsDBHandler creates a new relationships database handler.
// It initializes the database connection and loads relationship-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewRelationshipsDBHandler(db *helper.Database, force bool) (*RelationshipsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	relationshipsDbHandler := &RelationshipsDBHandler{
		db: db,
	}

	err := loadSql.LoadRelationshipsSql(relationshipsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load relationships sql", err)
	}

	err = relationshipsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized RelationshipsDBHandler")

	return relationshipsDbHandler, nil
}

// CreateTable creates the 'staged_relationships' table in the database.
// If the table already exists, it does not create it again.
func (h *RelationshipsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_relationships();`)
	if err != nil {
		log.Panicf("error initializing staged_relationships table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table staged_relationships")

	return nil
}

// InsertRelationship inserts a new staged relationship
func (h *RelationshipsDBHandler) InsertRelationship(rel *model.StagedRelationship) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_relationship($1, $2, $3, $4, $5, $6)`,
		rel.SourceID,
		string(rel.SourceType),
		rel.TargetID,
		string(rel.TargetType),
		string(rel.RelationshipType),
		rel.Properties,
	)

	err := scanRelationship(row, rel)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectRelationshipsBySource retrieves relationships originating from a node
func (h *RelationshipsDBHandler) SelectRelationshipsBySource(sourceID string, relationshipType *model.RelationshipType) ([]*model.StagedRelationship, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_relationships_by_source($1, $2)`,
		sourceID,
		relationshipTypeParam(relationshipType),
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanRelationships(rows)
}

// SelectRelationshipsByTarget retrieves relationships pointing at a node
func (h *RelationshipsDBHandler) SelectRelationshipsByTarget(targetID string, relationshipType *model.RelationshipType) ([]*model.StagedRelationship, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_relationships_by_target($1, $2)`,
		targetID,
		relationshipTypeParam(relationshipType),
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanRelationships(rows)
}

// CountRelationshipsBySource counts relationships originating from a node
func (h *RelationshipsDBHandler) CountRelationshipsBySource(sourceID string) (int64, error) {
	var count int64
	err := h.db.Instance.QueryRow(
		`SELECT count_relationships_by_source($1)`,
		sourceID,
	).Scan(&count)
	if err != nil {
		return 0, helper.NewError("scan", err)
	}
	return count, nil
}

func relationshipTypeParam(relationshipType *model.RelationshipType) interface{} {
	if relationshipType == nil {
		return nil
	}
	return string(*relationshipType)
}

func scanRelationship(row rowScanner, rel *model.StagedRelationship) error {
	var sourceType, targetType, relationshipType string

	err := row.Scan(
		&rel.ID,
		&rel.SourceID,
		&sourceType,
		&rel.TargetID,
		&targetType,
		&relationshipType,
		&rel.Properties,
		&rel.CreatedAt,
	)
	if err != nil {
		return err
	}

	rel.SourceType = model.NodeType(sourceType)
	rel.TargetType = model.NodeType(targetType)
	rel.RelationshipType = model.RelationshipType(relationshipType)

	return nil
}

func scanRelationships(rows rowsScanner) ([]*model.StagedRelationship, error) {
	var rels []*model.StagedRelationship
	for rows.Next() {
		rel := &model.StagedRelationship{}
		if err := scanRelationship(rows, rel); err != nil {
			return nil, helper.NewError("scan", err)
		}
		rels = append(rels, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows", err)
	}
	return rels, nil
}
