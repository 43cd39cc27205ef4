package model

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Stage represents one discrete step of the document pipeline state machine.
type Stage string

const (
	StageIntake              Stage = "intake"
	StageOCRPending          Stage = "ocr_pending"
	StageOCRDone             Stage = "ocr_done"
	StageChunked             Stage = "chunked"
	StageEntitiesExtracted   Stage = "entities_extracted"
	StageEntitiesResolved    Stage = "entities_resolved"
	StageRelationshipsStaged Stage = "relationships_staged"
	StageCompleted           Stage = "completed"
	StageFailed              Stage = "failed"
)

// stageOrder defines the linear forward chain of the pipeline.
// StageFailed is terminal and reachable from any non-terminal stage.
var stageOrder = []Stage{
	StageIntake,
	StageOCRPending,
	StageOCRDone,
	StageChunked,
	StageEntitiesExtracted,
	StageEntitiesResolved,
	StageRelationshipsStaged,
	StageCompleted,
}

// Next returns the stage following s in the pipeline chain.
// Returns false if s is terminal or unknown.
func (s Stage) Next() (Stage, bool) {
	for i, stage := range stageOrder {
		if stage == s && i < len(stageOrder)-1 {
			return stageOrder[i+1], true
		}
	}
	return "", false
}

// Previous returns the stage preceding s in the pipeline chain.
// Returns false if s is the first stage, terminal or unknown.
func (s Stage) Previous() (Stage, bool) {
	for i, stage := range stageOrder {
		if stage == s && i > 0 {
			return stageOrder[i-1], true
		}
	}
	return "", false
}

// Terminal reports whether no further work is scheduled for a document in s.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Index returns the position of s in the pipeline chain, or -1 for
// StageFailed and unknown stages.
func (s Stage) Index() int {
	for i, stage := range stageOrder {
		if stage == s {
			return i
		}
	}
	return -1
}

// CanAdvanceTo reports whether a transition from s to next is legal.
// Legal transitions are one step forward in the chain, or to StageFailed
// from any non-terminal stage. Stages are never skipped.
func (s Stage) CanAdvanceTo(next Stage) bool {
	if next == StageFailed {
		return !s.Terminal()
	}
	following, ok := s.Next()
	return ok && following == next
}

// Document represents a source document moving through the pipeline.
// The stage column is owned exclusively by the orchestrator; all other
// components receive the document by reference and return stage-specific
// results without mutating it.
type Document struct {
	ID             int64      `json:"id"`
	RID            uuid.UUID  `json:"rid"`
	Title          string     `json:"title"`
	Source         string     `json:"source,omitempty"`
	Content        string     `json:"content,omitempty" db:"-"` // Temporary field for processing, not stored in DB
	Stage          Stage      `json:"stage"`
	AttemptCount   int        `json:"attempt_count"`
	LastError      string     `json:"last_error,omitempty"`
	TaskReference  string     `json:"task_reference,omitempty"` // Opaque handle to the in-flight async unit
	ProcessorID    *uuid.UUID `json:"processor_id,omitempty"`
	StageStartedAt *time.Time `json:"stage_started_at,omitempty"`
	Metadata       Metadata   `json:"metadata,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewDocumentFromFile reads a file and creates a Document with the file content.
// The title defaults to the filename, and source to the file path.
func NewDocumentFromFile(filePath string, metadata Metadata) (*Document, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	// Get filename without extension for default title
	filename := filepath.Base(filePath)
	title := filename[:len(filename)-len(filepath.Ext(filename))]
	if title == "" {
		title = filename
	}

	return &Document{
		Title:    title,
		Source:   filePath,
		Content:  string(content),
		Stage:    StageIntake,
		Metadata: metadata,
	}, nil
}
