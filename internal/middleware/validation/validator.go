package validation

import (
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var patientIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

type Config struct {
	MaxQuestionLength int
	MaxPageSize       int
	Logger            *zap.Logger
}

// Middleware enforces boundary limits before any handler or model call runs:
// JSON content type on writes, a sane patient id shape, and size caps on the
// two free-text inputs (questions and report pages).
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxQuestionLength == 0 {
		cfg.MaxQuestionLength = 5000
	}
	if cfg.MaxPageSize == 0 {
		cfg.MaxPageSize = 1024 * 1024
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodPost {
			contentType := c.Get("Content-Type")
			if contentType != "" && !strings.Contains(contentType, "application/json") {
				return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
					"error": "Unsupported content type",
				})
			}
		}

		if patientID := c.Params("id"); patientID != "" {
			if !patientIDPattern.MatchString(patientID) {
				cfg.Logger.Warn("Rejected malformed patient id",
					zap.String("ip", c.IP()),
					zap.String("path", c.Path()),
				)
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid patient id",
				})
			}
		}

		path := c.Path()

		if c.Method() == fiber.MethodPost && strings.HasSuffix(path, "/chat") {
			var req struct {
				Question string `json:"question"`
			}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}
			if len(req.Question) > cfg.MaxQuestionLength {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Question exceeds maximum length",
				})
			}
		}

		if c.Method() == fiber.MethodPost && strings.HasSuffix(path, "/documents") {
			var req struct {
				Text string `json:"text"`
			}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}
			if len(req.Text) > cfg.MaxPageSize {
				return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
					"error": "Page text exceeds maximum size",
				})
			}
		}

		return c.Next()
	}
}
