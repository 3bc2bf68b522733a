package ingestion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/summaid/backend/internal/metrics"
	"github.com/summaid/backend/internal/storage/models"
	"github.com/summaid/backend/pkg/logger"
)

// Embedder produces one embedding per input text.
type Embedder interface {
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkStore persists chunk rows and tracks per-page ordinals.
type ChunkStore interface {
	InsertReport(report *models.Report) error
	InsertChunks(chunks []models.Chunk) error
	DeleteChunks(chunkIDs []string) error
	NextOrdinal(documentID string, page int) (int, error)
	GetChunksByDocument(documentID string) ([]models.Chunk, error)
}

// VectorStore persists chunk embeddings for retrieval.
type VectorStore interface {
	Insert(ctx context.Context, vectors []ChunkVectorInput) error
}

// ChunkVectorInput mirrors the vector store row without importing it, so the
// processor can be tested against an in-memory store.
type ChunkVectorInput struct {
	ChunkID    string
	Embedding  []float32
	PatientID  string
	DocumentID string
	Page       int
	Ordinal    int
	Text       string
}

type Processor struct {
	store     ChunkStore
	vectors   VectorStore
	embedder  Embedder
	chunkSize int

	mu       sync.Mutex
	docLocks map[string]*sync.Mutex
}

func NewProcessor(store ChunkStore, vectors VectorStore, embedder Embedder, chunkSize int) *Processor {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	return &Processor{
		store:     store,
		vectors:   vectors,
		embedder:  embedder,
		chunkSize: chunkSize,
		docLocks:  make(map[string]*sync.Mutex),
	}
}

// Put splits one page of report text into chunks, embeds every chunk, and
// persists chunk rows plus vectors. If embedding fails, nothing is persisted:
// a chunk without an embedding would be unreachable by retrieval.
// Writes for the same document are serialized so ordinals stay deterministic.
func (p *Processor) Put(ctx context.Context, patientID, documentID string, page int, text string) ([]models.Chunk, error) {
	if patientID == "" || documentID == "" {
		return nil, fmt.Errorf("patient_id and document_id are required")
	}

	lock := p.lockFor(documentID)
	lock.Lock()
	defer lock.Unlock()

	cleaned := CleanText(text)
	if cleaned == "" {
		return nil, fmt.Errorf("no content extracted from page %d of document %s", page, documentID)
	}

	segments := SplitIntoChunks(cleaned, p.chunkSize)
	logger.Info("Page chunked",
		zap.String("document_id", documentID),
		zap.Int("page", page),
		zap.Int("chunks", len(segments)),
	)

	embeddings, err := p.embedder.GenerateBatchEmbeddings(ctx, segments)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks for document %s: %w", documentID, err)
	}
	if len(embeddings) != len(segments) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(embeddings), len(segments))
	}

	startOrdinal, err := p.store.NextOrdinal(documentID, page)
	if err != nil {
		return nil, err
	}

	err = p.store.InsertReport(&models.Report{
		ID:        documentID,
		PatientID: patientID,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	chunks := make([]models.Chunk, 0, len(segments))
	vectors := make([]ChunkVectorInput, 0, len(segments))

	for i, segment := range segments {
		chunk := models.Chunk{
			ID:         uuid.New().String(),
			DocumentID: documentID,
			PatientID:  patientID,
			Page:       page,
			Ordinal:    startOrdinal + i,
			Text:       segment,
			CreatedAt:  now,
		}
		chunks = append(chunks, chunk)

		vectors = append(vectors, ChunkVectorInput{
			ChunkID:    chunk.ID,
			Embedding:  embeddings[i],
			PatientID:  patientID,
			DocumentID: documentID,
			Page:       page,
			Ordinal:    chunk.Ordinal,
			Text:       segment,
		})
	}

	if err := p.store.InsertChunks(chunks); err != nil {
		return nil, err
	}

	if err := p.vectors.Insert(ctx, vectors); err != nil {
		// The page is all-or-nothing: without vectors the rows would be
		// unreachable by retrieval yet visible to full-record scans, and a
		// retry would duplicate the text at fresh ordinals.
		chunkIDs := make([]string, len(chunks))
		for i, chunk := range chunks {
			chunkIDs[i] = chunk.ID
		}
		if delErr := p.store.DeleteChunks(chunkIDs); delErr != nil {
			logger.Error("Failed to roll back chunk rows after vector insert failure",
				zap.String("document_id", documentID),
				zap.Int("page", page),
				zap.Error(delErr),
			)
		}
		return nil, fmt.Errorf("failed to insert into vector store: %w", err)
	}

	metrics.DocumentsIngested.Inc()
	metrics.ChunksStored.Add(float64(len(chunks)))

	logger.Info("Page ingested",
		zap.String("patient_id", patientID),
		zap.String("document_id", documentID),
		zap.Int("page", page),
		zap.Int("chunks", len(chunks)),
	)

	return chunks, nil
}

func (p *Processor) GetByDocument(documentID string) ([]models.Chunk, error) {
	return p.store.GetChunksByDocument(documentID)
}

func (p *Processor) lockFor(documentID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	lock, ok := p.docLocks[documentID]
	if !ok {
		lock = &sync.Mutex{}
		p.docLocks[documentID] = lock
	}
	return lock
}
