package model

import (
	"time"

	"github.com/google/uuid"
)

// NodeType identifies the kind of record a relationship endpoint refers to.
type NodeType string

const (
	NodeTypeProject  NodeType = "project"
	NodeTypeDocument NodeType = "document"
	NodeTypeChunk    NodeType = "chunk"
	NodeTypeMention  NodeType = "mention"
	NodeTypeEntity   NodeType = "entity"
)

// RelationshipType represents the type of a staged graph edge.
type RelationshipType string

const (
	RelationshipTypeBelongsTo     RelationshipType = "belongs_to"
	RelationshipTypeContains      RelationshipType = "contains"
	RelationshipTypeMentions      RelationshipType = "mentions"
	RelationshipTypeResolvesTo    RelationshipType = "resolves_to"
	RelationshipTypeNextChunk     RelationshipType = "next_chunk"
	RelationshipTypePreviousChunk RelationshipType = "previous_chunk"
	RelationshipTypeSameAs        RelationshipType = "same_as"
)

// StagedRelationship represents a persisted, not-yet-exported directed edge
// between two pipeline nodes. Staged relationships are append-only.
type StagedRelationship struct {
	ID               uuid.UUID        `json:"id"`
	SourceID         string           `json:"source_id"`
	SourceType       NodeType         `json:"source_type"`
	TargetID         string           `json:"target_id"`
	TargetType       NodeType         `json:"target_type"`
	RelationshipType RelationshipType `json:"relationship_type"`
	Properties       Metadata         `json:"properties,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}
