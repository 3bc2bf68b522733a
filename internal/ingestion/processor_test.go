package ingestion

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/summaid/backend/internal/storage/models"
)

type memEmbedder struct {
	fail bool
}

func (m memEmbedder) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if m.fail {
		return nil, errors.New("embedding service unavailable: connection refused")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

type memChunkStore struct {
	reports []models.Report
	chunks  []models.Chunk
}

func (m *memChunkStore) InsertReport(report *models.Report) error {
	m.reports = append(m.reports, *report)
	return nil
}

func (m *memChunkStore) InsertChunks(chunks []models.Chunk) error {
	m.chunks = append(m.chunks, chunks...)
	return nil
}

func (m *memChunkStore) DeleteChunks(chunkIDs []string) error {
	drop := make(map[string]bool, len(chunkIDs))
	for _, id := range chunkIDs {
		drop[id] = true
	}
	kept := m.chunks[:0]
	for _, c := range m.chunks {
		if !drop[c.ID] {
			kept = append(kept, c)
		}
	}
	m.chunks = kept
	return nil
}

func (m *memChunkStore) NextOrdinal(documentID string, page int) (int, error) {
	next := 0
	for _, c := range m.chunks {
		if c.DocumentID == documentID && c.Page == page && c.Ordinal >= next {
			next = c.Ordinal + 1
		}
	}
	return next, nil
}

func (m *memChunkStore) GetChunksByDocument(documentID string) ([]models.Chunk, error) {
	var out []models.Chunk
	for _, c := range m.chunks {
		if c.DocumentID == documentID {
			out = append(out, c)
		}
	}
	return out, nil
}

type memVectorStore struct {
	inserted []ChunkVectorInput
	fail     bool
}

func (m *memVectorStore) Insert(ctx context.Context, vectors []ChunkVectorInput) error {
	if m.fail {
		return errors.New("vector store unreachable")
	}
	m.inserted = append(m.inserted, vectors...)
	return nil
}

func TestPutPersistsChunksAndVectors(t *testing.T) {
	store := &memChunkStore{}
	vectors := &memVectorStore{}
	p := NewProcessor(store, vectors, memEmbedder{}, 120)

	text := "Patient admitted with chest pain. ECG showed no acute changes. Troponin negative on serial draws."
	chunks, err := p.Put(context.Background(), "p1", "doc-1", 1, text)

	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Len(t, store.chunks, len(chunks))
	assert.Len(t, vectors.inserted, len(chunks))

	for i, chunk := range chunks {
		assert.Equal(t, "p1", chunk.PatientID)
		assert.Equal(t, "doc-1", chunk.DocumentID)
		assert.Equal(t, 1, chunk.Page)
		assert.Equal(t, i, chunk.Ordinal)
		assert.NotEmpty(t, chunk.ID)
		assert.Equal(t, chunk.ID, vectors.inserted[i].ChunkID)
	}

	require.Len(t, store.reports, 1)
	assert.Equal(t, "doc-1", store.reports[0].ID)
}

func TestPutContinuesOrdinalsAcrossCalls(t *testing.T) {
	store := &memChunkStore{}
	p := NewProcessor(store, &memVectorStore{}, memEmbedder{}, 1000)

	first, err := p.Put(context.Background(), "p1", "doc-1", 1, "First ingest of the page.")
	require.NoError(t, err)
	second, err := p.Put(context.Background(), "p1", "doc-1", 1, "A later addendum to the same page.")
	require.NoError(t, err)

	assert.Equal(t, 0, first[0].Ordinal)
	assert.Equal(t, first[len(first)-1].Ordinal+1, second[0].Ordinal)
}

func TestPutEmbeddingFailurePersistsNothing(t *testing.T) {
	store := &memChunkStore{}
	vectors := &memVectorStore{}
	p := NewProcessor(store, vectors, memEmbedder{fail: true}, 1000)

	_, err := p.Put(context.Background(), "p1", "doc-1", 1, "Some report text.")

	require.Error(t, err)
	assert.Empty(t, store.chunks)
	assert.Empty(t, store.reports)
	assert.Empty(t, vectors.inserted)
}

func TestPutVectorInsertFailureRollsBackChunks(t *testing.T) {
	store := &memChunkStore{}
	vectors := &memVectorStore{fail: true}
	p := NewProcessor(store, vectors, memEmbedder{}, 1000)

	_, err := p.Put(context.Background(), "p1", "doc-1", 1, "Some report text.")

	require.Error(t, err)
	assert.Empty(t, store.chunks)
	assert.Empty(t, vectors.inserted)

	// The rolled-back page must not leave ordinal gaps behind for a retry.
	next, err := store.NextOrdinal("doc-1", 1)
	require.NoError(t, err)
	assert.Equal(t, 0, next)
}

func TestPutRejectsMissingIDs(t *testing.T) {
	p := NewProcessor(&memChunkStore{}, &memVectorStore{}, memEmbedder{}, 1000)

	_, err := p.Put(context.Background(), "", "doc-1", 1, "text")
	assert.Error(t, err)

	_, err = p.Put(context.Background(), "p1", "", 1, "text")
	assert.Error(t, err)
}
