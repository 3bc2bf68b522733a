package summarize

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/summaid/backend/internal/llm"
	"github.com/summaid/backend/pkg/logger"
)

// Completer is the single LLM call surface the extraction pipeline depends on.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

const classifierSystemPrompt = `You are a medical records classifier.
Given excerpts from a patient's reports, identify the single dominant clinical specialty.
Respond with exactly one word from this list and nothing else:
oncology, speech, general

Use "oncology" for cancer care: tumors, staging, chemotherapy, radiation, biopsies.
Use "speech" for audiology and speech pathology: hearing loss, audiograms, tinnitus, speech therapy.
Use "general" for everything else or when no single specialty dominates.`

// Classify picks the dominant specialty for the evidence with one model call.
// Classification only steers which optional extractors run, so any failure or
// out-of-vocabulary answer degrades to general instead of aborting the run.
func Classify(ctx context.Context, completer Completer, evidenceText string) Specialty {
	resp, err := completer.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: classifierSystemPrompt,
		UserPrompt:   "Patient report excerpts:\n\n" + evidenceText,
		Temperature:  llm.Temp(0),
		MaxTokens:    10,
	})
	if err != nil {
		logger.Warn("Specialty classification failed, falling back to general", zap.Error(err))
		return SpecialtyGeneral
	}

	answer := strings.ToLower(strings.TrimSpace(resp.Content))
	answer = strings.Trim(answer, `."'`)

	if s := Specialty(answer); s.Valid() {
		return s
	}

	// Salvage verbose answers like "the specialty is oncology".
	switch {
	case strings.Contains(answer, "oncolog"), strings.Contains(answer, "cancer"):
		return SpecialtyOncology
	case strings.Contains(answer, "speech"), strings.Contains(answer, "audio"):
		return SpecialtySpeech
	}

	logger.Warn("Classifier returned out-of-vocabulary specialty, falling back to general",
		zap.String("answer", answer),
	)
	return SpecialtyGeneral
}
