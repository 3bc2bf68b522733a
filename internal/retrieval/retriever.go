package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/summaid/backend/internal/metrics"
	"github.com/summaid/backend/pkg/logger"
)

// ErrNoEvidence is returned when the patient has no retrievable chunks.
// Callers surface this as an explicit "no evidence" result, never as an
// empty-but-ambiguous summary.
var ErrNoEvidence = errors.New("no evidence found for patient")

const previewLen = 160

// keywordBoost is added to the similarity score once per query keyword found
// in a chunk. Small enough that it reorders near-ties only.
const keywordBoost = 0.05

// Embedder embeds a query string.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Index is the ANN search backend, scoped per patient.
type Index interface {
	Search(ctx context.Context, patientID string, embedding []float32, topK int) ([]Candidate, error)
}

// Candidate is one raw search hit before budget selection.
type Candidate struct {
	ChunkID    string
	DocumentID string
	Page       int
	Ordinal    int
	Text       string
	Score      float32
}

// Chunk is one accepted evidence chunk.
type Chunk struct {
	ChunkID     string
	DocumentID  string
	Page        int
	Ordinal     int
	Score       float64
	TextPreview string
	TextFull    string
}

// Evidence is the ordered, budget-bounded retrieval result for one query.
// It is produced fresh per query and never persisted.
type Evidence []Chunk

func (e Evidence) ChunkIDs() []string {
	ids := make([]string, len(e))
	for i, c := range e {
		ids[i] = c.ChunkID
	}
	return ids
}

func (e Evidence) ContextText() string {
	var b strings.Builder
	for i, c := range e {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[chunk %s | document %s page %d]\n%s", c.ChunkID, c.DocumentID, c.Page, c.TextFull)
	}
	return b.String()
}

type Retriever struct {
	embedder Embedder
	index    Index
}

func NewRetriever(embedder Embedder, index Index) *Retriever {
	return &Retriever{
		embedder: embedder,
		index:    index,
	}
}

// Search embeds the query, ranks the patient's chunks by similarity with
// optional keyword re-weighting, and greedily accepts chunks in descending
// score order until maxChunks or maxContextChars would be exceeded. A chunk
// that would blow the character budget is skipped whole; chunks are never
// truncated mid-text. Score ties break by (document_id, page, ordinal) so
// identical inputs always return the identical ordered set.
func (r *Retriever) Search(ctx context.Context, patientID, query string, keywords []string, maxChunks, maxContextChars int) (Evidence, error) {
	if maxChunks <= 0 {
		return nil, fmt.Errorf("maxChunks must be positive, got %d", maxChunks)
	}

	embedding, err := r.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	// Overfetch so the budget pass can skip over-budget chunks and still
	// fill the result from lower-ranked ones.
	topK := maxChunks * 3
	candidates, err := r.index.Search(ctx, patientID, embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	if len(candidates) == 0 {
		return nil, ErrNoEvidence
	}

	scored := reweight(candidates, keywords)
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		a, b := scored[i].Candidate, scored[j].Candidate
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		if a.Page != b.Page {
			return a.Page < b.Page
		}
		return a.Ordinal < b.Ordinal
	})

	evidence := make(Evidence, 0, maxChunks)
	usedChars := 0

	for _, c := range scored {
		if len(evidence) >= maxChunks {
			break
		}
		if maxContextChars > 0 && usedChars+len(c.Text) > maxContextChars {
			// Prefer dropping a whole chunk over truncating one.
			continue
		}

		usedChars += len(c.Text)
		evidence = append(evidence, Chunk{
			ChunkID:     c.ChunkID,
			DocumentID:  c.DocumentID,
			Page:        c.Page,
			Ordinal:     c.Ordinal,
			Score:       c.score,
			TextPreview: preview(c.Text),
			TextFull:    c.Text,
		})
	}

	if len(evidence) == 0 {
		return nil, ErrNoEvidence
	}

	metrics.RetrievalChunks.Observe(float64(len(evidence)))

	logger.Debug("Evidence retrieved",
		zap.String("patient_id", patientID),
		zap.Int("candidates", len(candidates)),
		zap.Int("accepted", len(evidence)),
		zap.Int("context_chars", usedChars),
	)

	return evidence, nil
}

type scoredCandidate struct {
	Candidate
	score float64
}

func reweight(candidates []Candidate, keywords []string) []scoredCandidate {
	scored := make([]scoredCandidate, len(candidates))
	for i, c := range candidates {
		score := float64(c.Score)
		if len(keywords) > 0 {
			lower := strings.ToLower(c.Text)
			for _, kw := range keywords {
				kw = strings.ToLower(strings.TrimSpace(kw))
				if kw != "" && strings.Contains(lower, kw) {
					score += keywordBoost
				}
			}
		}
		scored[i] = scoredCandidate{Candidate: c, score: score}
	}
	return scored
}

func preview(text string) string {
	if len(text) <= previewLen {
		return text
	}
	return text[:previewLen]
}
