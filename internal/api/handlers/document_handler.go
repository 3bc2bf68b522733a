package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/summaid/backend/internal/ingestion"
	"github.com/summaid/backend/internal/llm"
	"github.com/summaid/backend/pkg/logger"
)

type DocumentHandler struct {
	processor *ingestion.Processor
}

func NewDocumentHandler(processor *ingestion.Processor) *DocumentHandler {
	return &DocumentHandler{
		processor: processor,
	}
}

// HandleIngest accepts one page of report text. Chunking, embedding, and
// storage are atomic per page: if embedding fails nothing is persisted and
// the caller may retry the identical request.
func (h *DocumentHandler) HandleIngest(c *fiber.Ctx) error {
	var req struct {
		PatientID  string `json:"patient_id"`
		DocumentID string `json:"document_id"`
		Page       int    `json:"page"`
		Text       string `json:"text"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.PatientID == "" || req.DocumentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "patient_id and document_id are required",
		})
	}
	if req.Page < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "page must not be negative",
		})
	}
	if req.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "text is required",
		})
	}

	chunks, err := h.processor.Put(c.Context(), req.PatientID, req.DocumentID, req.Page, req.Text)
	if err != nil {
		if errors.Is(err, llm.ErrEmbeddingUnavailable) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error":     "Embedding service unavailable, nothing was stored",
				"retryable": true,
			})
		}
		logger.Error("Document ingestion failed",
			zap.String("document_id", req.DocumentID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to ingest document page",
		})
	}

	chunkIDs := make([]string, len(chunks))
	for i, chunk := range chunks {
		chunkIDs[i] = chunk.ID
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"document_id": req.DocumentID,
		"page":        req.Page,
		"chunk_count": len(chunks),
		"chunk_ids":   chunkIDs,
	})
}

// HandleGetChunks lists the stored chunks of one document in (page, ordinal)
// order.
func (h *DocumentHandler) HandleGetChunks(c *fiber.Ctx) error {
	documentID := c.Params("id")
	if documentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "document id is required",
		})
	}

	chunks, err := h.processor.GetByDocument(documentID)
	if err != nil {
		logger.Error("Failed to load document chunks",
			zap.String("document_id", documentID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load document chunks",
		})
	}

	return c.JSON(fiber.Map{
		"document_id": documentID,
		"chunks":      chunks,
	})
}
