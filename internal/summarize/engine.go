package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/summaid/backend/internal/citations"
	"github.com/summaid/backend/internal/metrics"
	"github.com/summaid/backend/internal/retrieval"
	"github.com/summaid/backend/internal/storage/models"
	"github.com/summaid/backend/pkg/logger"
)

// ErrExtractionTimeout is returned when a required extractor misses its
// deadline. The whole run fails; the caller may retry the request.
var ErrExtractionTimeout = errors.New("required extraction timed out")

// Retriever produces the budgeted evidence set for one query.
type Retriever interface {
	Search(ctx context.Context, patientID, query string, keywords []string, maxChunks, maxContextChars int) (retrieval.Evidence, error)
}

// SummaryStore persists the one current summary per patient.
type SummaryStore interface {
	ReplaceSummary(summary *models.Summary) error
	GetSummary(patientID string) (*models.Summary, error)
}

type Engine struct {
	retriever Retriever
	completer Completer
	store     SummaryStore

	requiredTimeout time.Duration
	optionalTimeout time.Duration
	maxChunks       int
	maxContextChars int
}

type EngineOptions struct {
	RequiredTimeout time.Duration
	OptionalTimeout time.Duration
	MaxChunks       int
	MaxContextChars int
}

func NewEngine(retriever Retriever, completer Completer, store SummaryStore, opts EngineOptions) *Engine {
	return &Engine{
		retriever:       retriever,
		completer:       completer,
		store:           store,
		requiredTimeout: opts.RequiredTimeout,
		optionalTimeout: opts.OptionalTimeout,
		maxChunks:       opts.MaxChunks,
		maxContextChars: opts.MaxContextChars,
	}
}

// Request describes one summarization run. ChiefComplaint, when set, steers
// retrieval toward the presenting problem. Zero budgets fall back to the
// configured defaults.
type Request struct {
	PatientID       string
	ChiefComplaint  string
	MaxChunks       int
	MaxContextChars int
}

const defaultSummaryQuery = "diagnosis treatment history current condition plan medications findings"

// Summarize runs the full pipeline for one patient: retrieve evidence,
// classify the specialty, fan out the extractors, validate the merged bundle,
// attach citations, and replace the stored summary. Any failure leaves the
// previously stored summary untouched.
func (e *Engine) Summarize(ctx context.Context, req Request) (*SummaryDocument, error) {
	start := time.Now()

	doc, err := e.summarize(ctx, req)
	if err != nil {
		metrics.SummarizeTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.SummarizeTotal.WithLabelValues("success").Inc()
	metrics.SummarizeDuration.Observe(time.Since(start).Seconds())

	logger.Info("Summary generated",
		zap.String("patient_id", req.PatientID),
		zap.String("specialty", string(doc.Specialty)),
		zap.Int("citations", len(doc.Citations)),
		zap.Strings("incomplete_sections", doc.Incomplete),
		zap.Duration("duration", time.Since(start)),
	)

	return doc, nil
}

func (e *Engine) summarize(ctx context.Context, req Request) (*SummaryDocument, error) {
	query := defaultSummaryQuery
	var keywords []string
	if req.ChiefComplaint != "" {
		query = req.ChiefComplaint + " " + defaultSummaryQuery
		keywords = []string{req.ChiefComplaint}
	}

	maxChunks := req.MaxChunks
	if maxChunks <= 0 {
		maxChunks = e.maxChunks
	}
	maxContextChars := req.MaxContextChars
	if maxContextChars <= 0 {
		maxContextChars = e.maxContextChars
	}

	evidence, err := e.retriever.Search(ctx, req.PatientID, query, keywords, maxChunks, maxContextChars)
	if err != nil {
		return nil, err
	}
	contextText := evidence.ContextText()

	specialty := Classify(ctx, e.completer, contextText)

	bundle, err := e.extractAll(ctx, specialty, contextText)
	if err != nil {
		return nil, err
	}
	bundle.PatientID = req.PatientID
	// Every evidence chunk informed the extraction context, so every one is
	// citable.
	bundle.EvidenceChunkIDs = evidence.ChunkIDs()

	doc, err := Validate(bundle)
	if err != nil {
		return nil, err
	}
	doc.Citations = citations.Attach(bundle.EvidenceChunkIDs, evidence)

	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode summary: %w", err)
	}
	if err := e.store.ReplaceSummary(&models.Summary{
		ID:        uuid.New().String(),
		PatientID: req.PatientID,
		Specialty: string(doc.Specialty),
		Payload:   string(payload),
		CreatedAt: doc.CreatedAt,
	}); err != nil {
		return nil, fmt.Errorf("failed to persist summary: %w", err)
	}

	return doc, nil
}

// extractionRun collects fan-out results. Each goroutine writes only its own
// slot; mu guards the shared incomplete list.
type extractionRun struct {
	mu         sync.Mutex
	incomplete []string

	evolution    string
	evolutionErr error
	status       []string
	statusErr    error
	plan         []string
	planErr      error
	vitals       []VitalTrend
	oncology     *OncologyData
	speech       *SpeechData
}

func (r *extractionRun) markIncomplete(section string) {
	r.mu.Lock()
	r.incomplete = append(r.incomplete, section)
	r.mu.Unlock()
}

// extractAll fans out one goroutine per extractor. The three required
// extractors fail the whole run on timeout or error; optional ones record an
// incomplete section and let the run proceed.
func (e *Engine) extractAll(ctx context.Context, specialty Specialty, contextText string) (*Bundle, error) {
	run := &extractionRun{}
	var wg sync.WaitGroup

	required := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tctx, cancel := context.WithTimeout(ctx, e.requiredTimeout)
			defer cancel()
			if err := fn(tctx); err != nil {
				metrics.ExtractorOutcomes.WithLabelValues(name, outcomeLabel(tctx, err)).Inc()
				return
			}
			metrics.ExtractorOutcomes.WithLabelValues(name, "success").Inc()
		}()
	}

	optional := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tctx, cancel := context.WithTimeout(ctx, e.optionalTimeout)
			defer cancel()
			if err := fn(tctx); err != nil {
				metrics.ExtractorOutcomes.WithLabelValues(name, outcomeLabel(tctx, err)).Inc()
				run.markIncomplete(name)
				logger.Warn("Optional extractor degraded",
					zap.String("extractor", name),
					zap.Error(err),
				)
				return
			}
			metrics.ExtractorOutcomes.WithLabelValues(name, "success").Inc()
		}()
	}

	required(extractorEvolution, func(c context.Context) error {
		run.evolution, run.evolutionErr = extractEvolution(c, e.completer, contextText)
		return run.evolutionErr
	})
	required(extractorStatus, func(c context.Context) error {
		run.status, run.statusErr = extractCurrentStatus(c, e.completer, contextText)
		return run.statusErr
	})
	required(extractorPlan, func(c context.Context) error {
		run.plan, run.planErr = extractPlan(c, e.completer, contextText)
		return run.planErr
	})
	optional(extractorVitalTrends, func(c context.Context) error {
		v, err := extractVitalTrends(c, e.completer, contextText)
		if err != nil {
			return err
		}
		run.vitals = v
		return nil
	})

	switch specialty {
	case SpecialtyOncology:
		optional(extractorOncology, func(c context.Context) error {
			o, err := extractOncology(c, e.completer, contextText)
			if err != nil {
				return err
			}
			run.oncology = o
			return nil
		})
	case SpecialtySpeech:
		optional(extractorSpeech, func(c context.Context) error {
			s, err := extractSpeech(c, e.completer, contextText)
			if err != nil {
				return err
			}
			run.speech = s
			return nil
		})
	}

	wg.Wait()

	for name, err := range map[string]error{
		extractorEvolution: run.evolutionErr,
		extractorStatus:    run.statusErr,
		extractorPlan:      run.planErr,
	} {
		if err == nil {
			continue
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrExtractionTimeout, name)
		}
		return nil, fmt.Errorf("required extractor %s failed: %w", name, err)
	}

	return &Bundle{
		Specialty:     specialty,
		Evolution:     run.evolution,
		CurrentStatus: run.status,
		Plan:          run.plan,
		VitalTrends:   run.vitals,
		Oncology:      run.oncology,
		Speech:        run.speech,
		Incomplete:    run.incomplete,
	}, nil
}

func outcomeLabel(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return "timeout"
	}
	return "error"
}

// LoadStored decodes the persisted summary for a patient. Returns nil when no
// run has succeeded yet.
func (e *Engine) LoadStored(patientID string) (*SummaryDocument, error) {
	stored, err := e.store.GetSummary(patientID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, nil
	}

	var doc SummaryDocument
	if err := json.Unmarshal([]byte(stored.Payload), &doc); err != nil {
		return nil, fmt.Errorf("stored summary is corrupt: %w", err)
	}
	return &doc, nil
}
