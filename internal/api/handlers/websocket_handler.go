package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/summaid/backend/internal/chat"
	"github.com/summaid/backend/internal/retrieval"
	"github.com/summaid/backend/pkg/logger"
)

type WebSocketHandler struct {
	answerer *chat.Answerer
}

func NewWebSocketHandler(answerer *chat.Answerer) *WebSocketHandler {
	return &WebSocketHandler{
		answerer: answerer,
	}
}

// HandleConnection serves one chat session. The patient is fixed by the
// route; each incoming question streams its answer word by word, followed by
// a complete frame carrying the citations.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	patientID := c.Params("patientID")

	logger.Info("WebSocket connection established", zap.String("patient_id", patientID))

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed", zap.String("patient_id", patientID))
	}()

	for {
		var msg struct {
			Type     string `json:"type"`
			Question string `json:"question"`
		}

		if err := c.ReadJSON(&msg); err != nil {
			logger.Error("Failed to read WebSocket message", zap.Error(err))
			break
		}

		if msg.Type != "question" {
			continue
		}

		if err := h.streamAnswer(c, patientID, msg.Question); err != nil {
			logger.Error("Failed to stream answer",
				zap.String("patient_id", patientID),
				zap.Error(err),
			)
		}
	}
}

func (h *WebSocketHandler) streamAnswer(c *websocket.Conn, patientID, question string) error {
	ctx := context.Background()

	h.sendFrame(c, "status", "Searching patient record...")

	answer, err := h.answerer.Ask(ctx, chat.Request{PatientID: patientID, Question: question})
	if err != nil {
		if errors.Is(err, retrieval.ErrNoEvidence) {
			h.sendError(c, "No report evidence found for this patient")
			return nil
		}
		h.sendError(c, "Failed to answer question")
		return err
	}

	words := splitIntoWords(answer.Text)
	for i, word := range words {
		frame := word
		if i < len(words)-1 {
			frame += " "
		}
		if err := h.sendFrame(c, "chunk", frame); err != nil {
			return err
		}
	}

	return c.WriteJSON(map[string]interface{}{
		"type":      "complete",
		"citations": answer.Citations,
	})
}

func (h *WebSocketHandler) sendFrame(c *websocket.Conn, msgType, content string) error {
	return c.WriteJSON(map[string]interface{}{
		"type":    msgType,
		"content": content,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}

func splitIntoWords(text string) []string {
	words := []string{}
	currentWord := ""

	for _, char := range text {
		if char == ' ' || char == '\n' {
			if currentWord != "" {
				words = append(words, currentWord)
				currentWord = ""
			}
			if char == '\n' {
				words = append(words, "\n")
			}
		} else {
			currentWord += string(char)
		}
	}

	if currentWord != "" {
		words = append(words, currentWord)
	}

	return words
}
