package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/summaid/backend/internal/citations"
	"github.com/summaid/backend/internal/llm"
	"github.com/summaid/backend/internal/metrics"
	"github.com/summaid/backend/internal/retrieval"
	"github.com/summaid/backend/internal/storage/models"
	"github.com/summaid/backend/pkg/logger"
)

// Retriever produces the budgeted evidence set for one question.
type Retriever interface {
	Search(ctx context.Context, patientID, query string, keywords []string, maxChunks, maxContextChars int) (retrieval.Evidence, error)
}

// Completer is the single LLM call surface used for answering.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// OverlaySource exposes the latest clinician correction per section so
// answers reflect corrected content, not just what the reports say.
type OverlaySource interface {
	Latest(patientID string) (map[string]models.EditEntry, error)
}

// HistoryStore persists the conversation log.
type HistoryStore interface {
	InsertChatRecord(record *models.ChatRecord) error
	GetChatHistory(patientID string, limit int) ([]models.ChatRecord, error)
}

// Answer is one grounded chat response. Citations cover every chunk that was
// in the model's context; erring over-inclusive keeps every claim traceable.
type Answer struct {
	Text      string               `json:"answer"`
	Citations []citations.Citation `json:"citations"`
}

type Answerer struct {
	retriever Retriever
	completer Completer
	overlay   OverlaySource
	history   HistoryStore

	maxChunks       int
	maxContextChars int
}

func NewAnswerer(retriever Retriever, completer Completer, overlay OverlaySource, history HistoryStore, maxChunks, maxContextChars int) *Answerer {
	return &Answerer{
		retriever:       retriever,
		completer:       completer,
		overlay:         overlay,
		history:         history,
		maxChunks:       maxChunks,
		maxContextChars: maxContextChars,
	}
}

const chatSystemPrompt = `You are a clinical assistant answering questions about one patient's medical record.
Answer strictly from the report excerpts and clinician corrections provided.
When a clinician correction contradicts the reports, the correction wins.
If the excerpts do not contain the answer, say so plainly. Never invent clinical facts.`

// Request is one chat question. Zero budgets fall back to the configured
// defaults.
type Request struct {
	PatientID       string
	Question        string
	MaxChunks       int
	MaxContextChars int
}

// Ask answers one question over the patient's record. Evidence retrieval and
// the clinician overlay are merged into one context; the conversation turn is
// persisted on success.
func (a *Answerer) Ask(ctx context.Context, req Request) (*Answer, error) {
	start := time.Now()

	answer, err := a.ask(ctx, req)
	if err != nil {
		status := "error"
		if errors.Is(err, retrieval.ErrNoEvidence) {
			status = "no_evidence"
		}
		metrics.ChatTotal.WithLabelValues(status).Inc()
		return nil, err
	}

	metrics.ChatTotal.WithLabelValues("success").Inc()

	record := &models.ChatRecord{
		ID:            uuid.New().String(),
		PatientID:     req.PatientID,
		Question:      strings.TrimSpace(req.Question),
		Answer:        answer.Text,
		CitationCount: len(answer.Citations),
		LatencyMS:     time.Since(start).Milliseconds(),
		CreatedAt:     time.Now(),
	}
	if err := a.history.InsertChatRecord(record); err != nil {
		// The answer is already computed; a history write failure should not
		// cost the user their response.
		logger.Warn("Failed to persist chat record",
			zap.String("patient_id", req.PatientID),
			zap.Error(err),
		)
	}

	return answer, nil
}

func (a *Answerer) ask(ctx context.Context, req Request) (*Answer, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("question must not be empty")
	}

	maxChunks := req.MaxChunks
	if maxChunks <= 0 {
		maxChunks = a.maxChunks
	}
	maxContextChars := req.MaxContextChars
	if maxContextChars <= 0 {
		maxContextChars = a.maxContextChars
	}

	evidence, err := a.retriever.Search(ctx, req.PatientID, question, nil, maxChunks, maxContextChars)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("Report excerpts:\n\n")
	b.WriteString(evidence.ContextText())

	if a.overlay != nil {
		latest, err := a.overlay.Latest(req.PatientID)
		if err != nil {
			return nil, fmt.Errorf("failed to load edit overlay: %w", err)
		}
		if len(latest) > 0 {
			b.WriteString("\n\nClinician corrections (authoritative over the reports above):\n")
			for _, section := range sortedSections(latest) {
				entry := latest[section]
				fmt.Fprintf(&b, "- [%s] %s\n", section, entry.Content)
			}
		}
	}

	fmt.Fprintf(&b, "\nQuestion: %s", question)

	resp, err := a.completer.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: chatSystemPrompt,
		UserPrompt:   b.String(),
		Temperature:  llm.Temp(0.2),
		MaxTokens:    1024,
	})
	if err != nil {
		return nil, err
	}

	return &Answer{
		Text:      strings.TrimSpace(resp.Content),
		Citations: citations.Attach(evidence.ChunkIDs(), evidence),
	}, nil
}

// History returns the most recent conversation turns, newest first.
func (a *Answerer) History(patientID string, limit int) ([]models.ChatRecord, error) {
	return a.history.GetChatHistory(patientID, limit)
}

func sortedSections(latest map[string]models.EditEntry) []string {
	sections := make([]string, 0, len(latest))
	for s := range latest {
		sections = append(sections, s)
	}
	sort.Strings(sections)
	return sections
}
