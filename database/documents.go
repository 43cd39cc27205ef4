package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/docketflow/helper"
	"github.com/siherrmann/docketflow/model"
	loadSql "github.com/siherrmann/docketflow/sql"
)

// DocumentsDBHandlerFunctions defines the interface for Documents database
// operations. This is the pipeline's state store: it owns the per-document
// stage column, attempt counts, error messages and processor claims.
type DocumentsDBHandlerFunctions interface {
	InsertDocument(doc *model.Document) error
	SelectDocument(rid uuid.UUID) (*model.Document, error)
	SelectDocumentsByStage(stage model.Stage, limit int) ([]*model.Document, error)
	ClaimStage(rid uuid.UUID, expected model.Stage, processorID uuid.UUID, staleBefore time.Time) (*model.Document, bool, error)
	AdvanceStage(rid uuid.UUID, expected model.Stage, next model.Stage, taskReference string) (*model.Document, bool, error)
	RecordFailure(rid uuid.UUID, lastError string, failed bool) (*model.Document, error)
	ReleaseClaim(rid uuid.UUID, processorID uuid.UUID) error
	SelectStalledDocuments(staleBefore time.Time, limit int) ([]*model.Document, error)
	ResetDocument(rid uuid.UUID, stage model.Stage) (*model.Document, error)
	UpdateTaskReference(rid uuid.UUID, taskReference string) error
	DeleteDocument(rid uuid.UUID) error
}

// DocumentsDBHandler handles document-related database operations
type DocumentsDBHandler struct {
	db *helper.Database
}

// NewDocumentsDBHandler creates a new documents database handler.
// It initializes the database connection and loads document-related SQL functions.
// If force is true, it will reload the SQL functions even if they already exist.
func NewDocumentsDBHandler(db *helper.Database, force bool) (*DocumentsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	documentsDbHandler := &DocumentsDBHandler{
		db: db,
	}

	err := loadSql.LoadDocumentsSql(documentsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load documents sql", err)
	}

	err = documentsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized DocumentsDBHandler")

	return documentsDbHandler, nil
}

// CreateTable creates the 'documents' table in the database.
// If the table already exists, it does not create it again.
// It also creates all necessary indexes.
func (h *DocumentsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Use the SQL init() function to create all tables, triggers, and indexes
	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_documents();`)
	if err != nil {
		log.Panicf("error initializing documents table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table documents")

	return nil
}

// InsertDocument inserts a new document in the intake stage
func (h *DocumentsDBHandler) InsertDocument(doc *model.Document) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_document($1, $2, $3)`,
		doc.Title,
		doc.Source,
		doc.Metadata,
	)

	err := scanDocument(row, doc)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectDocument retrieves a document by RID
func (h *DocumentsDBHandler) SelectDocument(rid uuid.UUID) (*model.Document, error) {
	doc := &model.Document{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM select_document($1)`,
		rid,
	)

	err := scanDocument(row, doc)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return doc, nil
}

// SelectDocumentsByStage retrieves documents currently in the given stage,
// oldest update first. Used for operator visibility into failed documents
// and for re-queueing work.
func (h *DocumentsDBHandler) SelectDocumentsByStage(stage model.Stage, limit int) ([]*model.Document, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_documents_by_stage($1, $2)`,
		string(stage),
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanDocuments(rows)
}

// ClaimStage attempts to claim the given stage transition for one processor.
// The claim succeeds only if the document is still in the expected stage and
// no live claim by another processor exists. Returns the claimed document
// and true on success, or nil and false when another worker holds the claim
// or the stage already moved on.
func (h *DocumentsDBHandler) ClaimStage(rid uuid.UUID, expected model.Stage, processorID uuid.UUID, staleBefore time.Time) (*model.Document, bool, error) {
	doc := &model.Document{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM claim_document_stage($1, $2, $3, $4)`,
		rid,
		string(expected),
		processorID,
		staleBefore,
	)

	err := scanDocument(row, doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, helper.NewError("scan", err)
	}

	return doc, true, nil
}

// AdvanceStage moves the document one stage forward with a compare-and-set
// on the expected current stage. Returns false without error when the
// document is no longer in the expected stage (a concurrent worker advanced
// it first).
func (h *DocumentsDBHandler) AdvanceStage(rid uuid.UUID, expected model.Stage, next model.Stage, taskReference string) (*model.Document, bool, error) {
	if !expected.CanAdvanceTo(next) {
		return nil, false, helper.NewError("stage transition validation", fmt.Errorf("illegal transition from %s to %s", expected, next))
	}

	doc := &model.Document{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM advance_document_stage($1, $2, $3, $4)`,
		rid,
		string(expected),
		string(next),
		taskReference,
	)

	err := scanDocument(row, doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, helper.NewError("scan", err)
	}

	return doc, true, nil
}

// RecordFailure increments the attempt count and stores the error message.
// When failed is true the document moves to the terminal failed stage.
func (h *DocumentsDBHandler) RecordFailure(rid uuid.UUID, lastError string, failed bool) (*model.Document, error) {
	doc := &model.Document{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM record_document_failure($1, $2, $3)`,
		rid,
		lastError,
		failed,
	)

	err := scanDocument(row, doc)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return doc, nil
}

// ReleaseClaim clears the processor claim if it is still held by processorID.
func (h *DocumentsDBHandler) ReleaseClaim(rid uuid.UUID, processorID uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT release_document_claim($1, $2)`,
		rid,
		processorID,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// SelectStalledDocuments retrieves documents stuck in a claimed,
// non-terminal stage since before staleBefore.
func (h *DocumentsDBHandler) SelectStalledDocuments(staleBefore time.Time, limit int) ([]*model.Document, error) {
	rows, err := h.db.Instance.Query(
		`SELECT * FROM select_stalled_documents($1, $2)`,
		staleBefore,
		limit,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanDocuments(rows)
}

// ResetDocument rewinds a document to the given stage and clears attempts,
// error, task reference and any stale claim. In-flight external jobs are
// not cancelled, their results are simply ignored on the next poll.
func (h *DocumentsDBHandler) ResetDocument(rid uuid.UUID, stage model.Stage) (*model.Document, error) {
	doc := &model.Document{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM reset_document($1, $2)`,
		rid,
		string(stage),
	)

	err := scanDocument(row, doc)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return doc, nil
}

// UpdateTaskReference stores the opaque handle of the in-flight async unit.
func (h *DocumentsDBHandler) UpdateTaskReference(rid uuid.UUID, taskReference string) error {
	_, err := h.db.Instance.Exec(
		`SELECT update_document_task_reference($1, $2)`,
		rid,
		taskReference,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// DeleteDocument deletes a document by RID
func (h *DocumentsDBHandler) DeleteDocument(rid uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_document($1)`,
		rid,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner, doc *model.Document) error {
	var stage string
	var processorID uuid.NullUUID
	var stageStartedAt sql.NullTime

	err := row.Scan(
		&doc.ID,
		&doc.RID,
		&doc.Title,
		&doc.Source,
		&stage,
		&doc.AttemptCount,
		&doc.LastError,
		&doc.TaskReference,
		&processorID,
		&stageStartedAt,
		&doc.Metadata,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return err
	}

	doc.Stage = model.Stage(stage)
	if processorID.Valid {
		doc.ProcessorID = &processorID.UUID
	} else {
		doc.ProcessorID = nil
	}
	if stageStartedAt.Valid {
		doc.StageStartedAt = &stageStartedAt.Time
	} else {
		doc.StageStartedAt = nil
	}

	return nil
}

func scanDocuments(rows *sql.Rows) ([]*model.Document, error) {
	var docs []*model.Document
	for rows.Next() {
		doc := &model.Document{}
		if err := scanDocument(rows, doc); err != nil {
			return nil, helper.NewError("scan", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows", err)
	}
	return docs, nil
}
