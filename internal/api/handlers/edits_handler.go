package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/summaid/backend/internal/edits"
	"github.com/summaid/backend/pkg/logger"
)

type EditsHandler struct {
	overlay *edits.Overlay
}

func NewEditsHandler(overlay *edits.Overlay) *EditsHandler {
	return &EditsHandler{
		overlay: overlay,
	}
}

// HandleAppend records one clinician correction. The log is append-only;
// there is no update or delete route by design of the data model.
func (h *EditsHandler) HandleAppend(c *fiber.Ctx) error {
	patientID := c.Params("id")
	if patientID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "patient id is required",
		})
	}

	var req struct {
		Section      string `json:"section"`
		Content      string `json:"content"`
		SelectedText string `json:"selected_text"`
		EditedBy     string `json:"edited_by"`
	}
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	entry, err := h.overlay.Append(patientID, req.Section, req.Content, req.SelectedText, req.EditedBy)
	if err != nil {
		if errors.Is(err, edits.ErrUnknownSection) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unknown summary section",
				"code":  "unknown_section",
			})
		}
		logger.Error("Failed to append edit",
			zap.String("patient_id", patientID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(entry)
}

// HandleGetEdits returns either the full history of one section (?section=)
// or the latest entry per section.
func (h *EditsHandler) HandleGetEdits(c *fiber.Ctx) error {
	patientID := c.Params("id")
	if patientID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "patient id is required",
		})
	}

	if section := c.Query("section"); section != "" {
		history, err := h.overlay.History(patientID, section)
		if err != nil {
			if errors.Is(err, edits.ErrUnknownSection) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Unknown summary section",
					"code":  "unknown_section",
				})
			}
			logger.Error("Failed to load edit history",
				zap.String("patient_id", patientID),
				zap.Error(err),
			)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to load edit history",
			})
		}
		return c.JSON(fiber.Map{
			"patient_id": patientID,
			"section":    section,
			"history":    history,
		})
	}

	latest, err := h.overlay.Latest(patientID)
	if err != nil {
		logger.Error("Failed to load edit overlay",
			zap.String("patient_id", patientID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load edits",
		})
	}

	return c.JSON(fiber.Map{
		"patient_id": patientID,
		"latest":     latest,
	})
}
