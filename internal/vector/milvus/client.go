package milvus

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/summaid/backend/pkg/logger"
)

type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

// ChunkVector is a chunk embedding plus the provenance fields needed to
// resolve a citation back to an exact page.
type ChunkVector struct {
	ChunkID    string
	Embedding  []float32
	PatientID  string
	DocumentID string
	Page       int
	Ordinal    int
	Text       string
}

type SearchResult struct {
	ChunkID    string
	PatientID  string
	DocumentID string
	Page       int
	Ordinal    int
	Text       string
	Score      float32
}

func NewClient(endpoint, apiKey, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewClient(context.Background(), client.Config{
		Address: endpoint,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

func (m *Client) EnsureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Medical report chunk embeddings",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", m.vectorDim),
				},
			},
			{
				Name:     "patient_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "document_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "page",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "ordinal",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "text",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "8192",
				},
			},
		},
	}

	err = m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.COSINE, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index definition: %w", err)
	}
	err = m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = m.client.LoadCollection(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))

	return nil
}

func (m *Client) Insert(ctx context.Context, vectors []ChunkVector) error {
	if len(vectors) == 0 {
		return nil
	}

	chunkIDs := make([]string, len(vectors))
	embeddings := make([][]float32, len(vectors))
	patientIDs := make([]string, len(vectors))
	documentIDs := make([]string, len(vectors))
	pages := make([]int64, len(vectors))
	ordinals := make([]int64, len(vectors))
	texts := make([]string, len(vectors))

	for i, v := range vectors {
		chunkIDs[i] = v.ChunkID
		embeddings[i] = v.Embedding
		patientIDs[i] = v.PatientID
		documentIDs[i] = v.DocumentID
		pages[i] = int64(v.Page)
		ordinals[i] = int64(v.Ordinal)
		texts[i] = v.Text
	}

	_, err := m.client.Insert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnFloatVector("embedding", m.vectorDim, embeddings),
		entity.NewColumnVarChar("patient_id", patientIDs),
		entity.NewColumnVarChar("document_id", documentIDs),
		entity.NewColumnInt64("page", pages),
		entity.NewColumnInt64("ordinal", ordinals),
		entity.NewColumnVarChar("text", texts),
	)

	if err != nil {
		return fmt.Errorf("failed to insert chunk vectors: %w", err)
	}

	err = m.client.Flush(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Chunk vectors inserted", zap.Int("count", len(vectors)))

	return nil
}

// Search runs an ANN search scoped to a single patient. Budget enforcement
// and tie-breaking happen in the retrieval package, not here.
func (m *Client) Search(ctx context.Context, patientID string, queryEmbedding []float32, topK int) ([]SearchResult, error) {
	expr := fmt.Sprintf(`patient_id == "%s"`, patientID)

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		expr,
		[]string{"chunk_id", "patient_id", "document_id", "page", "ordinal", "text"},
		[]entity.Vector{entity.FloatVector(queryEmbedding)},
		"embedding",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]SearchResult, 0)
	for _, sr := range searchResult {
		for i := 0; i < sr.ResultCount; i++ {
			chunkIDCol := sr.Fields.GetColumn("chunk_id")
			patientCol := sr.Fields.GetColumn("patient_id")
			documentCol := sr.Fields.GetColumn("document_id")
			pageCol := sr.Fields.GetColumn("page")
			ordinalCol := sr.Fields.GetColumn("ordinal")
			textCol := sr.Fields.GetColumn("text")

			chunkID, _ := chunkIDCol.Get(i)
			patient, _ := patientCol.Get(i)
			document, _ := documentCol.Get(i)
			page, _ := pageCol.Get(i)
			ordinal, _ := ordinalCol.Get(i)
			text, _ := textCol.Get(i)

			results = append(results, SearchResult{
				ChunkID:    chunkID.(string),
				PatientID:  patient.(string),
				DocumentID: document.(string),
				Page:       int(page.(int64)),
				Ordinal:    int(ordinal.(int64)),
				Text:       text.(string),
				Score:      sr.Scores[i],
			})
		}
	}

	logger.Debug("Vector search completed",
		zap.String("patient_id", patientID),
		zap.Int("topK", topK),
		zap.Int("results", len(results)),
	)

	return results, nil
}
