package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/summaid/backend/internal/llm"
	"github.com/summaid/backend/internal/retrieval"
	"github.com/summaid/backend/internal/storage/models"
)

type fakeRetriever struct {
	evidence retrieval.Evidence
	err      error
}

func (f fakeRetriever) Search(ctx context.Context, patientID, query string, keywords []string, maxChunks, maxContextChars int) (retrieval.Evidence, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.evidence, nil
}

type fakeSummaryStore struct {
	mu       sync.Mutex
	replaced []*models.Summary
}

func (f *fakeSummaryStore) ReplaceSummary(summary *models.Summary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaced = append(f.replaced, summary)
	return nil
}

func (f *fakeSummaryStore) GetSummary(patientID string) (*models.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replaced) == 0 {
		return nil, nil
	}
	return f.replaced[len(f.replaced)-1], nil
}

// routedCompleter answers each extractor by matching its instruction text.
// Extractors listed in hang block until their context expires.
type routedCompleter struct {
	specialty string
	oncology  string
	hang      []string
}

func (r routedCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	route := func() string {
		switch {
		case strings.Contains(req.SystemPrompt, "classifier"):
			return "classify"
		case strings.Contains(req.UserPrompt, "2-3 sentence narrative"):
			return extractorEvolution
		case strings.Contains(req.UserPrompt, "CURRENT medical status"):
			return extractorStatus
		case strings.Contains(req.UserPrompt, "treatment PLAN"):
			return extractorPlan
		case strings.Contains(req.UserPrompt, "vital sign"):
			return extractorVitalTrends
		case strings.Contains(req.UserPrompt, "oncology data"):
			return extractorOncology
		case strings.Contains(req.UserPrompt, "audiology data"):
			return extractorSpeech
		}
		return ""
	}()

	for _, h := range r.hang {
		if h == route {
			<-ctx.Done()
			return nil, ctx.Err()
		}
	}

	switch route {
	case "classify":
		return &llm.CompletionResponse{Content: r.specialty}, nil
	case extractorEvolution:
		return &llm.CompletionResponse{Content: "Diagnosed with IDC in 2024, completed chemotherapy, now on letrozole with stable disease."}, nil
	case extractorStatus:
		return &llm.CompletionResponse{Content: "- Stable on letrozole\n- Mild fatigue"}, nil
	case extractorPlan:
		return &llm.CompletionResponse{Content: "- Follow-up imaging in 3 months\n- Continue letrozole"}, nil
	case extractorVitalTrends:
		return &llm.CompletionResponse{Content: `{"vital_trends": []}`}, nil
	case extractorOncology:
		if r.oncology != "" {
			return &llm.CompletionResponse{Content: r.oncology}, nil
		}
		return &llm.CompletionResponse{Content: `{"tnm_staging": "T2N0M0", "cancer_type": "IDC", "tumor_size_trend": [{"date": "2024-03-10", "size_cm": 2.3}]}`}, nil
	case extractorSpeech:
		return &llm.CompletionResponse{Content: `{"hearing_loss_type": "Sensorineural", "speech_scores": {"srt_db": 45, "wrs_percent": 82}}`}, nil
	}
	return nil, errors.New("unexpected prompt")
}

func testEvidence() retrieval.Evidence {
	return retrieval.Evidence{
		{ChunkID: "c1", DocumentID: "d1", Page: 1, Ordinal: 0, TextPreview: "biopsy", TextFull: "Biopsy confirmed IDC, 2.3 cm."},
		{ChunkID: "c2", DocumentID: "d1", Page: 2, Ordinal: 0, TextPreview: "chemo", TextFull: "Completed four cycles of chemotherapy."},
	}
}

func newTestEngine(completer Completer, store SummaryStore, evidence retrieval.Evidence) *Engine {
	return NewEngine(fakeRetriever{evidence: evidence}, completer, store, EngineOptions{
		RequiredTimeout: 2 * time.Second,
		OptionalTimeout: 100 * time.Millisecond,
		MaxChunks:       12,
		MaxContextChars: 12000,
	})
}

func TestSummarizeOncologyRun(t *testing.T) {
	store := &fakeSummaryStore{}
	engine := newTestEngine(routedCompleter{specialty: "oncology"}, store, testEvidence())

	doc, err := engine.Summarize(context.Background(), Request{PatientID: "patient-44"})

	require.NoError(t, err)
	assert.Equal(t, SpecialtyOncology, doc.Specialty)
	assert.NotEmpty(t, doc.Universal.Evolution)
	assert.Equal(t, []string{"Stable on letrozole", "Mild fatigue"}, doc.Universal.CurrentStatus)
	require.NotNil(t, doc.Oncology)
	assert.Equal(t, "T2N0M0", doc.Oncology.TNMStaging)
	assert.Empty(t, doc.Incomplete)

	// Every evidence chunk is cited, in ranking order.
	require.Len(t, doc.Citations, 2)
	assert.Equal(t, "c1", doc.Citations[0].ChunkID)
	assert.Equal(t, "c2", doc.Citations[1].ChunkID)

	// The stored summary round-trips and carries its own row id.
	require.Len(t, store.replaced, 1)
	assert.NotEmpty(t, store.replaced[0].ID)
	stored, err := engine.LoadStored("patient-44")
	require.NoError(t, err)
	assert.Equal(t, doc.Oncology.TNMStaging, stored.Oncology.TNMStaging)

	var decoded SummaryDocument
	require.NoError(t, json.Unmarshal([]byte(store.replaced[0].Payload), &decoded))
	assert.Equal(t, "patient-44", decoded.PatientID)
}

func TestSummarizeGeneralSkipsSpecialtyExtractors(t *testing.T) {
	store := &fakeSummaryStore{}
	engine := newTestEngine(routedCompleter{specialty: "general"}, store, testEvidence())

	doc, err := engine.Summarize(context.Background(), Request{PatientID: "p1"})

	require.NoError(t, err)
	assert.Equal(t, SpecialtyGeneral, doc.Specialty)
	assert.Nil(t, doc.Oncology)
	assert.Nil(t, doc.Speech)
}

func TestSummarizeRequiredTimeoutFailsRun(t *testing.T) {
	store := &fakeSummaryStore{}
	engine := NewEngine(
		fakeRetriever{evidence: testEvidence()},
		routedCompleter{specialty: "general", hang: []string{extractorEvolution}},
		store,
		EngineOptions{
			RequiredTimeout: 50 * time.Millisecond,
			OptionalTimeout: 50 * time.Millisecond,
			MaxChunks:       12,
			MaxContextChars: 12000,
		},
	)

	_, err := engine.Summarize(context.Background(), Request{PatientID: "p1"})

	assert.ErrorIs(t, err, ErrExtractionTimeout)
	// A failed run never replaces the stored summary.
	assert.Empty(t, store.replaced)
}

func TestSummarizeOptionalTimeoutDegrades(t *testing.T) {
	store := &fakeSummaryStore{}
	engine := newTestEngine(
		routedCompleter{specialty: "oncology", hang: []string{extractorOncology, extractorVitalTrends}},
		store,
		testEvidence(),
	)

	doc, err := engine.Summarize(context.Background(), Request{PatientID: "p1"})

	require.NoError(t, err)
	assert.Nil(t, doc.Oncology)
	assert.ElementsMatch(t, []string{extractorOncology, extractorVitalTrends}, doc.Incomplete)
	// Universal sections still made it.
	assert.NotEmpty(t, doc.Universal.Evolution)
}

func TestSummarizeUnparseableOptionalDegrades(t *testing.T) {
	store := &fakeSummaryStore{}
	engine := newTestEngine(
		routedCompleter{specialty: "oncology", oncology: "I could not produce JSON"},
		store,
		testEvidence(),
	)

	doc, err := engine.Summarize(context.Background(), Request{PatientID: "p1"})

	require.NoError(t, err)
	assert.Nil(t, doc.Oncology)
	assert.Contains(t, doc.Incomplete, extractorOncology)
}

func TestSummarizePropagatesNoEvidence(t *testing.T) {
	engine := NewEngine(fakeRetriever{err: retrieval.ErrNoEvidence}, routedCompleter{specialty: "general"}, &fakeSummaryStore{}, EngineOptions{
		RequiredTimeout: time.Second,
		OptionalTimeout: time.Second,
		MaxChunks:       12,
		MaxContextChars: 12000,
	})

	_, err := engine.Summarize(context.Background(), Request{PatientID: "p1"})

	assert.ErrorIs(t, err, retrieval.ErrNoEvidence)
}

func TestLoadStoredNilWhenAbsent(t *testing.T) {
	engine := newTestEngine(routedCompleter{specialty: "general"}, &fakeSummaryStore{}, testEvidence())

	doc, err := engine.LoadStored("nobody")

	require.NoError(t, err)
	assert.Nil(t, doc)
}
