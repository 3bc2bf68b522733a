package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/summaid/backend/internal/llm"
	"github.com/summaid/backend/internal/retrieval"
	"github.com/summaid/backend/internal/summarize"
	"github.com/summaid/backend/pkg/logger"
)

type SummaryHandler struct {
	engine *summarize.Engine
}

func NewSummaryHandler(engine *summarize.Engine) *SummaryHandler {
	return &SummaryHandler{
		engine: engine,
	}
}

// HandleSummarize runs a fresh summarization for the patient and replaces the
// stored summary on success. Failure modes map to distinct statuses so
// clients can tell "retry" from "fix the record".
func (h *SummaryHandler) HandleSummarize(c *fiber.Ctx) error {
	patientID := c.Params("id")
	if patientID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "patient id is required",
		})
	}

	var req struct {
		ChiefComplaint  string `json:"chief_complaint"`
		MaxChunks       int    `json:"max_chunks"`
		MaxContextChars int    `json:"max_context_chars"`
	}
	// Body is optional; an empty body means a default full-record summary.
	_ = c.BodyParser(&req)

	doc, err := h.engine.Summarize(c.Context(), summarize.Request{
		PatientID:       patientID,
		ChiefComplaint:  req.ChiefComplaint,
		MaxChunks:       req.MaxChunks,
		MaxContextChars: req.MaxContextChars,
	})
	if err != nil {
		return h.mapSummarizeError(c, patientID, err)
	}

	return c.JSON(doc)
}

func (h *SummaryHandler) mapSummarizeError(c *fiber.Ctx, patientID string, err error) error {
	var validationErr *summarize.ValidationError

	switch {
	case errors.Is(err, retrieval.ErrNoEvidence):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No report evidence found for this patient",
			"code":  "no_evidence",
		})
	case errors.Is(err, llm.ErrEmbeddingUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":     "Embedding service unavailable",
			"retryable": true,
		})
	case errors.Is(err, summarize.ErrExtractionTimeout):
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{
			"error":     "Summary generation timed out, please retry",
			"retryable": true,
		})
	case errors.As(err, &validationErr):
		logger.Error("Summary failed schema validation",
			zap.String("patient_id", patientID),
			zap.String("field", validationErr.Field),
			zap.String("constraint", validationErr.Constraint),
		)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Generated summary failed schema validation",
			"field": validationErr.Field,
		})
	}

	logger.Error("Summarization failed",
		zap.String("patient_id", patientID),
		zap.Error(err),
	)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to generate summary",
	})
}

// HandleGetSummary returns the stored summary without triggering a new run.
func (h *SummaryHandler) HandleGetSummary(c *fiber.Ctx) error {
	patientID := c.Params("id")
	if patientID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "patient id is required",
		})
	}

	doc, err := h.engine.LoadStored(patientID)
	if err != nil {
		logger.Error("Failed to load stored summary",
			zap.String("patient_id", patientID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load summary",
		})
	}
	if doc == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No summary has been generated for this patient",
		})
	}

	return c.JSON(doc)
}
