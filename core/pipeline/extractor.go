package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const extractionSystemPrompt = `You are an entity extraction service for legal documents.
Extract every named entity from the user's text. Respond with JSON only, no prose:
{"mentions":[{"text":"<exact span from the text>","type":"<person|organization|location|date|misc>","start":<character offset>,"end":<character offset>,"confidence":<0..1>}]}
Offsets are 0-based character positions of the span within the given text.
Return {"mentions":[]} if the text contains no entities.`

// extractionResponse matches the JSON structure expected from the LLM.
type extractionResponse struct {
	Mentions []struct {
		Text       string  `json:"text"`
		Type       string  `json:"type"`
		Start      int     `json:"start"`
		End        int     `json:"end"`
		Confidence float64 `json:"confidence"`
	} `json:"mentions"`
}

// NewOpenAIMentionExtractor creates a mention extractor backed by an
// OpenAI-compatible chat API.
func NewOpenAIMentionExtractor(baseURL, token, model string, logger *slog.Logger) (MentionExtractFunc, error) {
	client, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken(token),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, err
	}

	return LLMMentionExtractor(client, logger), nil
}

// LLMMentionExtractor wraps an LLM client into a MentionExtractFunc.
// Spans with malformed offsets are dropped with a warning, they would
// otherwise poison the downstream offset invariants.
func LLMMentionExtractor(client llms.Model, logger *slog.Logger) MentionExtractFunc {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, chunkText string) ([]MentionSpan, error) {
		if strings.TrimSpace(chunkText) == "" {
			return []MentionSpan{}, nil
		}

		content := []llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, extractionSystemPrompt),
			llms.TextParts(llms.ChatMessageTypeHuman, chunkText),
		}

		response, err := client.GenerateContent(ctx, content, llms.WithJSONMode())
		if err != nil {
			return nil, fmt.Errorf("failed to run mention extraction: %w", err)
		}
		if len(response.Choices) == 0 {
			return nil, fmt.Errorf("mention extraction returned no choices")
		}

		parsed, err := parseExtractionResponse(response.Choices[0].Content)
		if err != nil {
			return nil, fmt.Errorf("failed to parse extraction response: %w", err)
		}

		mentions := make([]MentionSpan, 0, len(parsed.Mentions))
		for _, m := range parsed.Mentions {
			text := strings.TrimSpace(m.Text)
			if text == "" {
				continue
			}

			start, end := m.Start, m.End
			if start < 0 || end <= start || end > len(chunkText) {
				// Recover the span by searching for the text; drop it if
				// it genuinely does not occur in the chunk.
				idx := strings.Index(chunkText, text)
				if idx < 0 {
					logger.Warn("Dropping mention with malformed offsets",
						slog.String("text", text),
						slog.Int("start", m.Start),
						slog.Int("end", m.End))
					continue
				}
				start, end = idx, idx+len(text)
			}

			mentions = append(mentions, MentionSpan{
				Text:        text,
				Type:        normalizeMentionType(m.Type),
				StartOffset: start,
				EndOffset:   end,
				Confidence:  m.Confidence,
				Attributes:  NormalizeAttributes(text),
			})
		}

		return mentions, nil
	}
}

// parseExtractionResponse unmarshals the LLM output, tolerating markdown
// code fences around the JSON body.
func parseExtractionResponse(raw string) (*extractionResponse, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	parsed := &extractionResponse{}
	if err := json.Unmarshal([]byte(raw), parsed); err != nil {
		return nil, err
	}
	return parsed, nil
}

func normalizeMentionType(entityType string) string {
	switch strings.ToLower(strings.TrimSpace(entityType)) {
	case "person", "per":
		return "person"
	case "organization", "organisation", "org":
		return "organization"
	case "location", "loc", "place":
		return "location"
	case "date", "time":
		return "date"
	default:
		return "misc"
	}
}

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ()\-./]{6,}$`)
)

var dateLayouts = []string{
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"01/02/2006",
}

// NormalizeAttributes derives normalized attributes from a mention's raw
// text: lowercased email, digits-only phone, ISO-8601 date. Returns nil
// when nothing normalizes.
func NormalizeAttributes(text string) map[string]interface{} {
	trimmed := strings.TrimSpace(text)

	if emailPattern.MatchString(trimmed) {
		return map[string]interface{}{"email": strings.ToLower(trimmed)}
	}

	if phonePattern.MatchString(trimmed) {
		var digits strings.Builder
		for _, r := range trimmed {
			if r >= '0' && r <= '9' {
				digits.WriteRune(r)
			}
		}
		if digits.Len() >= 7 {
			normalized := digits.String()
			if strings.HasPrefix(trimmed, "+") {
				normalized = "+" + normalized
			}
			return map[string]interface{}{"phone": normalized}
		}
	}

	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return map[string]interface{}{"iso_date": parsed.Format("2006-01-02")}
		}
	}

	return nil
}
