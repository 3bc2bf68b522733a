package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/summaid/backend/internal/safety"
	"github.com/summaid/backend/pkg/logger"
)

type SafetyHandler struct {
	checker *safety.Checker
}

func NewSafetyHandler(checker *safety.Checker) *SafetyHandler {
	return &SafetyHandler{
		checker: checker,
	}
}

// HandleCheck evaluates one drug against the patient's full record.
func (h *SafetyHandler) HandleCheck(c *fiber.Ctx) error {
	patientID := c.Params("id")
	if patientID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "patient id is required",
		})
	}

	var req struct {
		DrugName string `json:"drug_name"`
	}
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.DrugName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "drug_name is required",
		})
	}

	verdict, err := h.checker.Check(c.Context(), patientID, req.DrugName)
	if err != nil {
		logger.Error("Safety check failed",
			zap.String("patient_id", patientID),
			zap.String("drug", req.DrugName),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to run safety check",
		})
	}

	return c.JSON(verdict)
}
