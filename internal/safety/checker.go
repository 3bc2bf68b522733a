package safety

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/summaid/backend/internal/metrics"
	"github.com/summaid/backend/internal/storage/models"
	"github.com/summaid/backend/pkg/logger"
)

// ChunkSource provides the full chunk set for a patient. Safety checks scan
// everything on record, not a similarity-ranked subset, so a buried allergy
// note is never missed.
type ChunkSource interface {
	GetChunksByPatient(patientID string) ([]models.Chunk, error)
}

// OverlaySource exposes the latest clinician correction per section.
type OverlaySource interface {
	Latest(patientID string) (map[string]models.EditEntry, error)
}

// Verdict is the outcome of one drug safety check.
type Verdict struct {
	PatientID     string    `json:"patient_id"`
	DrugName      string    `json:"drug_name"`
	HasAllergy    bool      `json:"has_allergy"`
	Warnings      []string  `json:"warnings"`
	AllergyDetail string    `json:"allergy_detail,omitempty"`
	EvaluatedAt   time.Time `json:"evaluated_at"`
}

type Checker struct {
	chunks   ChunkSource
	overlay  OverlaySource
	keywords []string
}

// NewChecker builds a checker with the allergy keyword vocabulary. Keywords
// are matched case-insensitively inside the same chunk as the drug name.
func NewChecker(chunks ChunkSource, overlay OverlaySource, keywords []string) *Checker {
	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}
	return &Checker{chunks: chunks, overlay: overlay, keywords: lowered}
}

// Check reports whether the patient's record documents an allergy to the
// given drug. has_allergy is true only when a chunk (or a clinician override)
// contains both the drug name as a whole token and an allergy keyword. A
// record that mentions the drug in one place and an unrelated allergy in
// another never trips the flag.
func (c *Checker) Check(ctx context.Context, patientID, drugName string) (*Verdict, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	drugName = strings.TrimSpace(drugName)
	if drugName == "" {
		return nil, fmt.Errorf("drug name must not be empty")
	}

	verdict := &Verdict{
		PatientID:   patientID,
		DrugName:    drugName,
		Warnings:    []string{},
		EvaluatedAt: time.Now().UTC(),
	}

	chunks, err := c.chunks.GetChunksByPatient(patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load patient chunks: %w", err)
	}

	// Every match becomes its own warning so a clinician can see each place
	// the allergy is documented, not just the first.
	for _, chunk := range chunks {
		if c.coOccurs(chunk.Text, drugName) {
			verdict.HasAllergy = true
			if verdict.AllergyDetail == "" {
				verdict.AllergyDetail = excerpt(chunk.Text)
			}
			verdict.Warnings = append(verdict.Warnings,
				fmt.Sprintf("documented allergy to %s (document %s, page %d): %s",
					drugName, chunk.DocumentID, chunk.Page, excerpt(chunk.Text)))
		}
	}

	// Clinician corrections count as record text too; an allergy added by a
	// doctor edit must be caught even before the next ingestion.
	if c.overlay != nil {
		latest, err := c.overlay.Latest(patientID)
		if err != nil {
			return nil, fmt.Errorf("failed to load edit overlay: %w", err)
		}
		for _, section := range sortedSections(latest) {
			entry := latest[section]
			if c.coOccurs(entry.Content, drugName) {
				verdict.HasAllergy = true
				if verdict.AllergyDetail == "" {
					verdict.AllergyDetail = excerpt(entry.Content)
				}
				verdict.Warnings = append(verdict.Warnings,
					fmt.Sprintf("documented allergy to %s (clinician edit, section %s): %s",
						drugName, section, excerpt(entry.Content)))
			}
		}
	}

	label := "clear"
	if verdict.HasAllergy {
		label = "allergy"
	}
	metrics.SafetyChecks.WithLabelValues(label).Inc()

	logger.Info("Safety check evaluated",
		zap.String("patient_id", patientID),
		zap.String("drug", drugName),
		zap.Bool("has_allergy", verdict.HasAllergy),
		zap.Int("chunks_scanned", len(chunks)),
	)

	return verdict, nil
}

// coOccurs requires the drug as a whole word and an allergy keyword in the
// same text span.
func (c *Checker) coOccurs(text, drugName string) bool {
	lower := strings.ToLower(text)
	if !containsToken(lower, strings.ToLower(drugName)) {
		return false
	}
	for _, kw := range c.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// containsToken matches needle in haystack on word boundaries, so "Penicillin"
// matches "penicillin." but "cillin" does not match anything.
func containsToken(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	for start := 0; ; {
		idx := strings.Index(haystack[start:], needle)
		if idx < 0 {
			return false
		}
		idx += start

		before := idx == 0 || isBoundary(rune(haystack[idx-1]))
		afterPos := idx + len(needle)
		after := afterPos >= len(haystack) || isBoundary(rune(haystack[afterPos]))
		if before && after {
			return true
		}
		start = idx + 1
	}
}

func isBoundary(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func sortedSections(latest map[string]models.EditEntry) []string {
	sections := make([]string, 0, len(latest))
	for s := range latest {
		sections = append(sections, s)
	}
	sort.Strings(sections)
	return sections
}

func excerpt(text string) string {
	const maxLen = 240
	text = strings.TrimSpace(text)
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
