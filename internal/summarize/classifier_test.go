package summarize

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/summaid/backend/internal/llm"
)

type scriptedCompleter struct {
	content string
	err     error
}

func (s scriptedCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.CompletionResponse{Content: s.content}, nil
}

func TestClassifyExactAnswers(t *testing.T) {
	cases := map[string]Specialty{
		"oncology":    SpecialtyOncology,
		"speech":      SpecialtySpeech,
		"general":     SpecialtyGeneral,
		" Oncology. ": SpecialtyOncology,
		"SPEECH":      SpecialtySpeech,
	}

	for answer, want := range cases {
		got := Classify(context.Background(), scriptedCompleter{content: answer}, "reports")
		assert.Equal(t, want, got, "answer %q", answer)
	}
}

func TestClassifySalvagesVerboseAnswers(t *testing.T) {
	got := Classify(context.Background(), scriptedCompleter{content: "The patient is clearly an oncology case."}, "reports")
	assert.Equal(t, SpecialtyOncology, got)

	got = Classify(context.Background(), scriptedCompleter{content: "audiology findings dominate"}, "reports")
	assert.Equal(t, SpecialtySpeech, got)
}

func TestClassifyOutOfVocabularyFallsBackToGeneral(t *testing.T) {
	got := Classify(context.Background(), scriptedCompleter{content: "cardiology"}, "reports")
	assert.Equal(t, SpecialtyGeneral, got)
}

func TestClassifyErrorFallsBackToGeneral(t *testing.T) {
	got := Classify(context.Background(), scriptedCompleter{err: errors.New("model down")}, "reports")
	assert.Equal(t, SpecialtyGeneral, got)
}
