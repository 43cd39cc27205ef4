package resolution

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/docketflow/cache"
	"github.com/siherrmann/docketflow/model"
)

// entityNamespace derives deterministic canonical entity ids so repeated
// resolution of the same input produces identical assignments.
var entityNamespace = uuid.MustParse("3f8b6a1d-9e27-4c05-b4f2-8d1c7e5a0936")

// Engine clusters one document's entity mentions into canonical entities.
// Results are memoized in the cache keyed by a deterministic input hash;
// cache failures are treated as misses.
type Engine struct {
	cache     cache.Cache
	threshold float64
	weight    float64
	resultTTL time.Duration
	logger    *slog.Logger
}

// NewEngine creates a resolution engine with the configured similarity
// threshold and semantic weight. The cache may be nil.
func NewEngine(resolutionCache cache.Cache, config *model.PipelineConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		cache:     resolutionCache,
		threshold: config.SimilarityThreshold,
		weight:    config.SemanticWeight,
		resultTTL: config.StageResultTTL,
		logger:    logger,
	}
}

// cluster collects the mentions assigned to one canonical entity during a
// resolution run. The first mention is the cluster representative.
type cluster struct {
	mentions []*model.EntityMention
}

func (c *cluster) representative() *model.EntityMention {
	return c.mentions[0]
}

// Resolve groups the document's mentions into canonical entities. Mentions
// are processed in input order and assigned greedily to the first cluster
// of the same type whose representative scores at or above the similarity
// threshold. An empty mention list yields an empty result.
func (e *Engine) Resolve(documentRID uuid.UUID, documentText string, mentions []*model.EntityMention) (*model.ResolutionResult, error) {
	if len(mentions) == 0 {
		return &model.ResolutionResult{
			Entities:    []*model.CanonicalEntity{},
			Assignments: map[uuid.UUID]uuid.UUID{},
		}, nil
	}

	inputHash := resolutionInputHash(documentText, mentions)
	if cached := e.cachedResult(inputHash); cached != nil {
		return cached, nil
	}

	clusters := []*cluster{}
	for _, mention := range mentions {
		assigned := false
		for _, c := range clusters {
			rep := c.representative()
			if rep.Type != mention.Type {
				continue
			}
			score := CombinedSimilarity(rep.Text, mention.Text, rep.Embedding, mention.Embedding, e.weight)
			if score >= e.threshold {
				c.mentions = append(c.mentions, mention)
				assigned = true
				break
			}
		}
		if !assigned {
			clusters = append(clusters, &cluster{mentions: []*model.EntityMention{mention}})
		}
	}

	result := &model.ResolutionResult{
		Entities:    make([]*model.CanonicalEntity, 0, len(clusters)),
		Assignments: make(map[uuid.UUID]uuid.UUID, len(mentions)),
	}

	for i, c := range clusters {
		entity := e.buildEntity(documentRID, i, c)
		result.Entities = append(result.Entities, entity)
		for _, mention := range c.mentions {
			result.Assignments[mention.RID] = entity.ID
		}
	}

	e.cacheResult(inputHash, result)

	e.logger.Info("Resolved entity mentions",
		slog.String("document_rid", documentRID.String()),
		slog.Int("num_mentions", len(mentions)),
		slog.Int("num_entities", len(result.Entities)))

	return result, nil
}

// buildEntity aggregates one cluster into a canonical entity with a
// deterministic id derived from the document and cluster position.
func (e *Engine) buildEntity(documentRID uuid.UUID, index int, c *cluster) *model.CanonicalEntity {
	rep := c.representative()

	seed := fmt.Sprintf("%s/%s/%d", documentRID, rep.Type, index)
	entity := &model.CanonicalEntity{
		ID:            uuid.NewSHA1(entityNamespace, []byte(seed)),
		DocumentRID:   documentRID,
		Type:          rep.Type,
		CanonicalName: canonicalName(rep.Type, c.mentions),
		Aliases:       aliases(c.mentions),
		MentionCount:  len(c.mentions),
		CreatedAt:     time.Now(),
	}

	var confidence float64
	for _, mention := range c.mentions {
		confidence += mention.Confidence
	}
	entity.Confidence = confidence / float64(len(c.mentions))

	entity.Embedding = meanEmbedding(c.mentions)

	return entity
}

// canonicalName selects the cluster's display name. Persons prefer the
// longest surface form containing a space, other types the most frequent
// surface form. Ties go to the first occurrence.
func canonicalName(entityType model.MentionType, mentions []*model.EntityMention) string {
	if entityType == model.MentionTypePerson {
		best := ""
		for _, mention := range mentions {
			if strings.Contains(mention.Text, " ") && len(mention.Text) > len(best) {
				best = mention.Text
			}
		}
		if best != "" {
			return best
		}
	}

	counts := map[string]int{}
	for _, mention := range mentions {
		counts[mention.Text]++
	}

	best := mentions[0].Text
	for _, mention := range mentions {
		if counts[mention.Text] > counts[best] {
			best = mention.Text
		}
	}
	return best
}

// aliases returns the distinct surface forms in first-occurrence order.
func aliases(mentions []*model.EntityMention) []string {
	seen := map[string]bool{}
	result := make([]string, 0, len(mentions))
	for _, mention := range mentions {
		if !seen[mention.Text] {
			seen[mention.Text] = true
			result = append(result, mention.Text)
		}
	}
	return result
}

// meanEmbedding averages the mention embeddings that are present. Returns
// nil when no mention carries one.
func meanEmbedding(mentions []*model.EntityMention) []float32 {
	var sum []float32
	count := 0
	for _, mention := range mentions {
		if len(mention.Embedding) == 0 {
			continue
		}
		if sum == nil {
			sum = make([]float32, len(mention.Embedding))
		}
		if len(mention.Embedding) != len(sum) {
			continue
		}
		for i, v := range mention.Embedding {
			sum[i] += v
		}
		count++
	}
	if count == 0 {
		return nil
	}
	for i := range sum {
		sum[i] /= float32(count)
	}
	return sum
}

// resolutionInputHash hashes the (text, type) pairs plus a snippet of the
// document text into a deterministic memoization key.
func resolutionInputHash(documentText string, mentions []*model.EntityMention) string {
	hash := sha256.New()

	snippet := documentText
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}
	hash.Write([]byte(snippet))

	for _, mention := range mentions {
		fmt.Fprintf(hash, "|%s:%s", mention.Text, mention.Type)
	}

	return hex.EncodeToString(hash.Sum(nil))
}

func (e *Engine) cachedResult(inputHash string) *model.ResolutionResult {
	if e.cache == nil {
		return nil
	}

	raw, err := e.cache.Get(cache.ResolutionKey(inputHash))
	if err != nil {
		return nil
	}

	result := &model.ResolutionResult{}
	if err := json.Unmarshal(raw, result); err != nil {
		return nil
	}
	return result
}

func (e *Engine) cacheResult(inputHash string, result *model.ResolutionResult) {
	if e.cache == nil {
		return
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := e.cache.Set(cache.ResolutionKey(inputHash), raw, e.resultTTL); err != nil {
		e.logger.Warn("Failed to cache resolution result", slog.Any("error", err))
	}
}
