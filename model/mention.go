package model

import (
	"time"

	"github.com/google/uuid"
)

// MentionType classifies the kind of real-world entity a mention refers to.
type MentionType string

const (
	MentionTypePerson       MentionType = "person"
	MentionTypeOrganization MentionType = "organization"
	MentionTypeLocation     MentionType = "location"
	MentionTypeDate         MentionType = "date"
	MentionTypeMisc         MentionType = "misc"
)

// EntityMention represents one raw occurrence of an entity's text span in a
// chunk, prior to resolution. Mentions are never mutated after creation; the
// resolution stage only links them forward to a canonical entity.
type EntityMention struct {
	ID                int         `json:"id"`
	RID               uuid.UUID   `json:"rid"`
	ChunkID           int         `json:"chunk_id"`
	ChunkRID          uuid.UUID   `json:"chunk_rid"`
	Text              string      `json:"text"`
	Type              MentionType `json:"type"`
	StartOffset       int         `json:"start_offset"`
	EndOffset         int         `json:"end_offset"`
	Confidence        float64     `json:"confidence"`
	Attributes        Metadata    `json:"attributes,omitempty"` // Normalized attributes (email, phone, ISO date)
	Embedding         []float32   `json:"embedding,omitempty"`
	CanonicalEntityID *uuid.UUID  `json:"canonical_entity_id,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
}
