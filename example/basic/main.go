package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"regexp"

	"github.com/siherrmann/docketflow"
	"github.com/siherrmann/docketflow/core/pipeline"
	"github.com/siherrmann/docketflow/helper"
	"github.com/siherrmann/docketflow/model"
)

const sampleContent = `SETTLEMENT AGREEMENT

This agreement is entered into on January 5, 2024 between John Doe and Acme Corp.

John Doe, residing in Berlin, agrees to the terms set out by Acme Corp.
All notices to J. Doe shall be sent to john.doe@example.com.`

// namePattern is a toy extractor for the example: sequences of capitalized
// words. A real deployment wires pipeline.NewOpenAIMentionExtractor instead.
var namePattern = regexp.MustCompile(`[A-Z][a-z]+(?:[ .][A-Z][a-z]*)+`)

func toyExtractor(ctx context.Context, chunkText string) ([]pipeline.MentionSpan, error) {
	var spans []pipeline.MentionSpan
	for _, match := range namePattern.FindAllStringIndex(chunkText, -1) {
		spans = append(spans, pipeline.MentionSpan{
			Text:        chunkText[match[0]:match[1]],
			Type:        "person",
			StartOffset: match[0],
			EndOffset:   match[1],
			Confidence:  0.5,
		})
	}
	return spans, nil
}

func main() {
	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(context.Background())

	// Create database configuration using the container port
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "docketflow_test",
		Username: "postgres",
		Password: "postgres",
		Schema:   "public",
	}

	d, err := docketflow.NewDocketflow(dbConfig, model.DefaultPipelineConfig(), 384, "")
	if err != nil {
		log.Fatalf("Failed to create docketflow: %v", err)
	}
	defer d.Close()

	// Wire the stage processors. With no OCR client, documents must be
	// ingested with their text. Swap toyExtractor for
	// pipeline.NewOpenAIMentionExtractor to use a real LLM.
	extractor := pipeline.MentionExtractFunc(toyExtractor)
	if baseURL := os.Getenv("LLM_BASE_URL"); baseURL != "" {
		extractor, err = pipeline.NewOpenAIMentionExtractor(baseURL, os.Getenv("LLM_TOKEN"), os.Getenv("LLM_MODEL"), nil)
		if err != nil {
			log.Fatalf("Failed to create LLM extractor: %v", err)
		}
	}

	if err := d.SetProcessors(nil, pipeline.ParagraphChunker(), nil, extractor); err != nil {
		log.Fatalf("Failed to set processors: %v", err)
	}

	// Ingest a document with inline text (bypasses OCR) and drive it
	// through the whole pipeline.
	doc := &model.Document{
		Title:   "settlement-agreement",
		Content: sampleContent,
	}
	if err := d.IngestDocument(doc); err != nil {
		log.Fatalf("Failed to ingest document: %v", err)
	}

	if err := d.ProcessDocument(context.Background(), doc.RID); err != nil {
		log.Fatalf("Failed to process document: %v", err)
	}

	status, err := d.DocumentStatus(doc.RID)
	if err != nil {
		log.Fatalf("Failed to get document status: %v", err)
	}
	fmt.Printf("Document %s finished in stage %s\n", status.RID, status.Stage)

	entities, err := d.Entities.SelectEntitiesByDocument(doc.RID)
	if err != nil {
		log.Fatalf("Failed to list entities: %v", err)
	}
	for _, entity := range entities {
		fmt.Printf("Entity: %s (%s), %d mention(s), aliases %v\n",
			entity.CanonicalName, entity.Type, entity.MentionCount, entity.Aliases)
	}

	edges, err := d.StagedRelationships(doc.RID.String(), nil)
	if err != nil {
		log.Fatalf("Failed to list relationships: %v", err)
	}
	for _, edge := range edges {
		fmt.Printf("Edge: %s -[%s]-> %s\n", edge.SourceType, edge.RelationshipType, edge.TargetType)
	}
}
