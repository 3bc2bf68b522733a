package retrieval

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct{}

func (fakeEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeIndex struct {
	candidates []Candidate
}

func (f fakeIndex) Search(ctx context.Context, patientID string, embedding []float32, topK int) ([]Candidate, error) {
	if topK > len(f.candidates) {
		topK = len(f.candidates)
	}
	return f.candidates[:topK], nil
}

func newRetrieverWith(candidates []Candidate) *Retriever {
	return NewRetriever(fakeEmbedder{}, fakeIndex{candidates: candidates})
}

func TestSearchRespectsMaxChunks(t *testing.T) {
	candidates := make([]Candidate, 10)
	for i := range candidates {
		candidates[i] = Candidate{
			ChunkID:    string(rune('a' + i)),
			DocumentID: "doc-1",
			Page:       1,
			Ordinal:    i,
			Text:       "finding",
			Score:      float32(10 - i),
		}
	}

	evidence, err := newRetrieverWith(candidates).Search(context.Background(), "p1", "q", nil, 3, 0)

	require.NoError(t, err)
	assert.Len(t, evidence, 3)
}

func TestSearchSkipsOverBudgetChunksWhole(t *testing.T) {
	candidates := []Candidate{
		{ChunkID: "big", DocumentID: "d1", Page: 1, Ordinal: 0, Text: strings.Repeat("x", 500), Score: 0.9},
		{ChunkID: "small", DocumentID: "d1", Page: 1, Ordinal: 1, Text: strings.Repeat("y", 100), Score: 0.8},
	}

	evidence, err := newRetrieverWith(candidates).Search(context.Background(), "p1", "q", nil, 5, 200)

	require.NoError(t, err)
	require.Len(t, evidence, 1)
	// The over-budget chunk is dropped entirely, never truncated.
	assert.Equal(t, "small", evidence[0].ChunkID)
	assert.Len(t, evidence[0].TextFull, 100)
}

func TestSearchDeterministicTieBreak(t *testing.T) {
	tied := []Candidate{
		{ChunkID: "c3", DocumentID: "doc-b", Page: 1, Ordinal: 0, Text: "t", Score: 0.5},
		{ChunkID: "c1", DocumentID: "doc-a", Page: 2, Ordinal: 0, Text: "t", Score: 0.5},
		{ChunkID: "c2", DocumentID: "doc-a", Page: 1, Ordinal: 1, Text: "t", Score: 0.5},
		{ChunkID: "c4", DocumentID: "doc-a", Page: 1, Ordinal: 0, Text: "t", Score: 0.5},
	}

	r := newRetrieverWith(tied)

	first, err := r.Search(context.Background(), "p1", "q", nil, 4, 0)
	require.NoError(t, err)

	// Identical input, identical ordered output, on every run.
	for i := 0; i < 5; i++ {
		again, err := r.Search(context.Background(), "p1", "q", nil, 4, 0)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	assert.Equal(t, []string{"c4", "c2", "c1", "c3"}, first.ChunkIDs())
}

func TestSearchKeywordReweighting(t *testing.T) {
	candidates := []Candidate{
		{ChunkID: "plain", DocumentID: "d1", Page: 1, Ordinal: 0, Text: "routine visit", Score: 0.50},
		{ChunkID: "boosted", DocumentID: "d1", Page: 1, Ordinal: 1, Text: "chemotherapy cycle three", Score: 0.48},
	}

	evidence, err := newRetrieverWith(candidates).Search(context.Background(), "p1", "q", []string{"chemotherapy"}, 2, 0)

	require.NoError(t, err)
	assert.Equal(t, "boosted", evidence[0].ChunkID)
}

func TestSearchNoEvidence(t *testing.T) {
	_, err := newRetrieverWith(nil).Search(context.Background(), "p1", "q", nil, 5, 0)
	assert.ErrorIs(t, err, ErrNoEvidence)
}

func TestContextTextLabelsChunks(t *testing.T) {
	evidence := Evidence{
		{ChunkID: "c1", DocumentID: "d1", Page: 3, TextFull: "first"},
		{ChunkID: "c2", DocumentID: "d2", Page: 1, TextFull: "second"},
	}

	text := evidence.ContextText()

	assert.Contains(t, text, "[chunk c1 | document d1 page 3]\nfirst")
	assert.Contains(t, text, "[chunk c2 | document d2 page 1]\nsecond")
}
