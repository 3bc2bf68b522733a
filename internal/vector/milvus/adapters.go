package milvus

import (
	"context"

	"github.com/summaid/backend/internal/ingestion"
	"github.com/summaid/backend/internal/retrieval"
)

// IngestStore adapts the milvus client to the ingestion.VectorStore interface.
type IngestStore struct {
	Client *Client
}

func (s IngestStore) Insert(ctx context.Context, inputs []ingestion.ChunkVectorInput) error {
	vectors := make([]ChunkVector, len(inputs))
	for i, in := range inputs {
		vectors[i] = ChunkVector{
			ChunkID:    in.ChunkID,
			Embedding:  in.Embedding,
			PatientID:  in.PatientID,
			DocumentID: in.DocumentID,
			Page:       in.Page,
			Ordinal:    in.Ordinal,
			Text:       in.Text,
		}
	}
	return s.Client.Insert(ctx, vectors)
}

// SearchIndex adapts the milvus client to the retrieval.Index interface.
type SearchIndex struct {
	Client *Client
}

func (s SearchIndex) Search(ctx context.Context, patientID string, embedding []float32, topK int) ([]retrieval.Candidate, error) {
	results, err := s.Client.Search(ctx, patientID, embedding, topK)
	if err != nil {
		return nil, err
	}

	candidates := make([]retrieval.Candidate, len(results))
	for i, r := range results {
		candidates[i] = retrieval.Candidate{
			ChunkID:    r.ChunkID,
			DocumentID: r.DocumentID,
			Page:       r.Page,
			Ordinal:    r.Ordinal,
			Text:       r.Text,
			Score:      r.Score,
		}
	}
	return candidates, nil
}
