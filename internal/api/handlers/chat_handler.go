package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/summaid/backend/internal/chat"
	"github.com/summaid/backend/internal/llm"
	"github.com/summaid/backend/internal/retrieval"
	"github.com/summaid/backend/pkg/logger"
)

type ChatHandler struct {
	answerer *chat.Answerer
}

func NewChatHandler(answerer *chat.Answerer) *ChatHandler {
	return &ChatHandler{
		answerer: answerer,
	}
}

func (h *ChatHandler) HandleAsk(c *fiber.Ctx) error {
	patientID := c.Params("id")
	if patientID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "patient id is required",
		})
	}

	var req struct {
		Question        string `json:"question"`
		MaxChunks       int    `json:"max_chunks"`
		MaxContextChars int    `json:"max_context_chars"`
	}
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "question is required",
		})
	}

	answer, err := h.answerer.Ask(c.Context(), chat.Request{
		PatientID:       patientID,
		Question:        req.Question,
		MaxChunks:       req.MaxChunks,
		MaxContextChars: req.MaxContextChars,
	})
	if err != nil {
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
		}
		logger.Error("Chat request failed",
			zap.String("patient_id", patientID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to answer question",
		})
	}

	return c.JSON(answer)
}

func (h *ChatHandler) HandleGetHistory(c *fiber.Ctx) error {
	patientID := c.Params("id")
	if patientID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "patient id is required",
		})
	}

	limit := c.QueryInt("limit", 50)
	history, err := h.answerer.History(patientID, limit)
	if err != nil {
		logger.Error("Failed to load chat history",
			zap.String("patient_id", patientID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load chat history",
		})
	}

	return c.JSON(fiber.Map{
		"patient_id": patientID,
		"history":    history,
	})
}
