package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/docketflow/database"
	"github.com/siherrmann/docketflow/model"
)

// fakeDocumentStore is an in-memory state store with the same claim and
// compare-and-set semantics as the SQL implementation.
type fakeDocumentStore struct {
	mu     sync.Mutex
	nextID int64
	docs   map[uuid.UUID]*model.Document
}

func newFakeDocumentStore() *fakeDocumentStore {
	return &fakeDocumentStore{docs: map[uuid.UUID]*model.Document{}}
}

func (s *fakeDocumentStore) InsertDocument(doc *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	doc.ID = s.nextID
	doc.RID = uuid.New()
	doc.Stage = model.StageIntake
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = time.Now()
	stored := *doc
	s.docs[doc.RID] = &stored
	return nil
}

func (s *fakeDocumentStore) SelectDocument(rid uuid.UUID) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[rid]
	if !ok {
		return nil, fmt.Errorf("document %s not found", rid)
	}
	copied := *doc
	return &copied, nil
}

func (s *fakeDocumentStore) SelectDocumentsByStage(stage model.Stage, limit int) ([]*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var docs []*model.Document
	for _, doc := range s.docs {
		if doc.Stage == stage && len(docs) < limit {
			copied := *doc
			docs = append(docs, &copied)
		}
	}
	return docs, nil
}

func (s *fakeDocumentStore) ClaimStage(rid uuid.UUID, expected model.Stage, processorID uuid.UUID, staleBefore time.Time) (*model.Document, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[rid]
	if !ok || doc.Stage != expected {
		return nil, false, nil
	}
	if doc.ProcessorID != nil && doc.StageStartedAt != nil && doc.StageStartedAt.After(staleBefore) {
		return nil, false, nil
	}
	now := time.Now()
	doc.ProcessorID = &processorID
	doc.StageStartedAt = &now
	copied := *doc
	return &copied, true, nil
}

func (s *fakeDocumentStore) AdvanceStage(rid uuid.UUID, expected model.Stage, next model.Stage, taskReference string) (*model.Document, bool, error) {
	if !expected.CanAdvanceTo(next) {
		return nil, false, fmt.Errorf("illegal transition from %s to %s", expected, next)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[rid]
	if !ok || doc.Stage != expected {
		return nil, false, nil
	}
	doc.Stage = next
	doc.AttemptCount = 0
	doc.LastError = ""
	doc.TaskReference = taskReference
	doc.ProcessorID = nil
	doc.StageStartedAt = nil
	doc.UpdatedAt = time.Now()
	copied := *doc
	return &copied, true, nil
}

func (s *fakeDocumentStore) RecordFailure(rid uuid.UUID, lastError string, failed bool) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[rid]
	if !ok {
		return nil, fmt.Errorf("document %s not found", rid)
	}
	doc.AttemptCount++
	doc.LastError = lastError
	doc.ProcessorID = nil
	doc.StageStartedAt = nil
	if failed {
		doc.Stage = model.StageFailed
	}
	doc.UpdatedAt = time.Now()
	copied := *doc
	return &copied, nil
}

func (s *fakeDocumentStore) ReleaseClaim(rid uuid.UUID, processorID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[rid]
	if ok && doc.ProcessorID != nil && *doc.ProcessorID == processorID {
		doc.ProcessorID = nil
		doc.StageStartedAt = nil
	}
	return nil
}

func (s *fakeDocumentStore) SelectStalledDocuments(staleBefore time.Time, limit int) ([]*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var docs []*model.Document
	for _, doc := range s.docs {
		if doc.Stage.Terminal() || doc.ProcessorID == nil || doc.StageStartedAt == nil {
			continue
		}
		if doc.StageStartedAt.Before(staleBefore) && len(docs) < limit {
			copied := *doc
			docs = append(docs, &copied)
		}
	}
	return docs, nil
}

func (s *fakeDocumentStore) ResetDocument(rid uuid.UUID, stage model.Stage) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[rid]
	if !ok {
		return nil, fmt.Errorf("document %s not found", rid)
	}
	doc.Stage = stage
	doc.AttemptCount = 0
	doc.LastError = ""
	doc.TaskReference = ""
	doc.ProcessorID = nil
	doc.StageStartedAt = nil
	doc.UpdatedAt = time.Now()
	copied := *doc
	return &copied, nil
}

func (s *fakeDocumentStore) UpdateTaskReference(rid uuid.UUID, taskReference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[rid]; ok {
		doc.TaskReference = taskReference
	}
	return nil
}

func (s *fakeDocumentStore) DeleteDocument(rid uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, rid)
	return nil
}

// fakeChunkStore keeps chunks in insertion order and counts document
// selects so tests can observe cache hits.
type fakeChunkStore struct {
	mu          sync.Mutex
	nextID      int
	selectCalls int
	chunks      []*model.Chunk
}

func (s *fakeChunkStore) InsertChunk(chunk *model.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	chunk.ID = s.nextID
	chunk.RID = uuid.New()
	chunk.CreatedAt = time.Now()
	copied := *chunk
	s.chunks = append(s.chunks, &copied)
	return nil
}

func (s *fakeChunkStore) SelectChunk(rid uuid.UUID) (*model.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chunk := range s.chunks {
		if chunk.RID == rid {
			copied := *chunk
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("chunk %s not found", rid)
}

func (s *fakeChunkStore) SelectChunksByDocument(documentRID uuid.UUID) ([]*model.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectCalls++
	var chunks []*model.Chunk
	for _, chunk := range s.chunks {
		if chunk.DocumentRID == documentRID {
			copied := *chunk
			chunks = append(chunks, &copied)
		}
	}
	return chunks, nil
}

func (s *fakeChunkStore) DeleteChunksByDocument(documentRID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*model.Chunk
	deleted := 0
	for _, chunk := range s.chunks {
		if chunk.DocumentRID == documentRID {
			deleted++
			continue
		}
		kept = append(kept, chunk)
	}
	s.chunks = kept
	return deleted, nil
}

// fakeMentionStore keeps mentions in insertion order.
type fakeMentionStore struct {
	mu       sync.Mutex
	nextID   int
	mentions []*model.EntityMention
}

func (s *fakeMentionStore) InsertMention(mention *model.EntityMention) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	mention.ID = s.nextID
	mention.RID = uuid.New()
	mention.CreatedAt = time.Now()
	copied := *mention
	s.mentions = append(s.mentions, &copied)
	return nil
}

func (s *fakeMentionStore) SelectMentionsByChunk(chunkRID uuid.UUID) ([]*model.EntityMention, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var mentions []*model.EntityMention
	for _, mention := range s.mentions {
		if mention.ChunkRID == chunkRID {
			copied := *mention
			mentions = append(mentions, &copied)
		}
	}
	return mentions, nil
}

func (s *fakeMentionStore) SelectMentionsByDocument(documentRID uuid.UUID) ([]*model.EntityMention, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var mentions []*model.EntityMention
	for _, mention := range s.mentions {
		copied := *mention
		mentions = append(mentions, &copied)
	}
	return mentions, nil
}

func (s *fakeMentionStore) UpdateMentionCanonicalEntity(rid uuid.UUID, canonicalEntityID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, mention := range s.mentions {
		if mention.RID == rid {
			id := canonicalEntityID
			mention.CanonicalEntityID = &id
			return nil
		}
	}
	return fmt.Errorf("mention %s not found", rid)
}

func (s *fakeMentionStore) DeleteMentionsByDocument(documentRID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := len(s.mentions)
	s.mentions = nil
	return deleted, nil
}

// fakeEntityStore assigns fresh ids on insert, mimicking the SQL store.
type fakeEntityStore struct {
	mu       sync.Mutex
	entities []*model.CanonicalEntity
}

func (s *fakeEntityStore) InsertEntity(entity *model.CanonicalEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entity.ID = uuid.New()
	entity.CreatedAt = time.Now()
	copied := *entity
	s.entities = append(s.entities, &copied)
	return nil
}

func (s *fakeEntityStore) SelectEntity(id uuid.UUID) (*model.CanonicalEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entity := range s.entities {
		if entity.ID == id {
			copied := *entity
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("entity %s not found", id)
}

func (s *fakeEntityStore) SelectEntitiesByDocument(documentRID uuid.UUID) ([]*model.CanonicalEntity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var entities []*model.CanonicalEntity
	for _, entity := range s.entities {
		if entity.DocumentRID == documentRID {
			copied := *entity
			entities = append(entities, &copied)
		}
	}
	return entities, nil
}

func (s *fakeEntityStore) SelectEntitiesBySimilarity(embedding []float32, entityType model.MentionType, threshold float64, excludeDocumentRID uuid.UUID, limit int) ([]*database.EntitySimilarityMatch, error) {
	return nil, nil
}

func (s *fakeEntityStore) UpdateEntityLink(id uuid.UUID, linkedEntityID uuid.UUID) error {
	return nil
}

func (s *fakeEntityStore) DeleteEntitiesByDocument(documentRID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := len(s.entities)
	s.entities = nil
	return deleted, nil
}

// fakeRelationshipStore appends staged edges.
type fakeRelationshipStore struct {
	mu            sync.Mutex
	relationships []*model.StagedRelationship
}

func (s *fakeRelationshipStore) InsertRelationship(rel *model.StagedRelationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rel.ID = uuid.New()
	rel.CreatedAt = time.Now()
	copied := *rel
	s.relationships = append(s.relationships, &copied)
	return nil
}

func (s *fakeRelationshipStore) SelectRelationshipsBySource(sourceID string, relationshipType *model.RelationshipType) ([]*model.StagedRelationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rels []*model.StagedRelationship
	for _, rel := range s.relationships {
		if rel.SourceID == sourceID {
			copied := *rel
			rels = append(rels, &copied)
		}
	}
	return rels, nil
}

func (s *fakeRelationshipStore) SelectRelationshipsByTarget(targetID string, relationshipType *model.RelationshipType) ([]*model.StagedRelationship, error) {
	return nil, nil
}

func (s *fakeRelationshipStore) CountRelationshipsBySource(sourceID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, rel := range s.relationships {
		if rel.SourceID == sourceID {
			count++
		}
	}
	return count, nil
}

// fakeOCRService returns a scripted result or error.
type fakeOCRService struct {
	text        string
	submitErr   error
	waitErr     error
	submitCalls int
	waitCalls   int
}

func (f *fakeOCRService) Submit(ctx context.Context, documentRID uuid.UUID, sourceLocation string) (string, error) {
	f.submitCalls++
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "job-" + documentRID.String(), nil
}

func (f *fakeOCRService) WaitForResult(ctx context.Context, jobID string) (*model.OCRResult, error) {
	f.waitCalls++
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	return &model.OCRResult{
		JobID: jobID,
		Pages: []model.OCRPage{{PageNumber: 1, Text: f.text}},
		Text:  f.text,
	}, nil
}
