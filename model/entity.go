package model

import (
	"time"

	"github.com/google/uuid"
)

// CanonicalEntity represents a deduplicated cluster of entity mentions
// within one document's resolution run.
type CanonicalEntity struct {
	ID            uuid.UUID   `json:"id"`
	DocumentRID   uuid.UUID   `json:"document_rid"`
	Type          MentionType `json:"entity_type"`
	CanonicalName string      `json:"canonical_name"`
	Aliases       []string    `json:"aliases,omitempty"`
	MentionCount  int         `json:"mention_count"`
	Confidence    float64     `json:"confidence"`
	Embedding     []float32   `json:"embedding,omitempty"`
	// LinkedEntityID records a cross-document identity mapping to an
	// existing canonical entity. The records are never merged.
	LinkedEntityID *uuid.UUID `json:"linked_entity_id,omitempty"`
	Metadata       Metadata   `json:"metadata,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
