package summarize

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError reports one schema constraint the extraction output broke.
// A summary that fails validation is never persisted or returned in partial
// form.
type ValidationError struct {
	Field      string
	Constraint string
	Got        any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("summary validation failed: %s %s (got %v)", e.Field, e.Constraint, e.Got)
}

// Validate gates a raw extraction bundle into a SummaryDocument. Universal
// fields are required; specialty payloads are kept only under the declared
// specialty and checked field by field.
func Validate(bundle *Bundle) (*SummaryDocument, error) {
	if strings.TrimSpace(bundle.Evolution) == "" {
		return nil, &ValidationError{Field: "universal.evolution", Constraint: "must be a non-empty narrative", Got: bundle.Evolution}
	}
	if bundle.CurrentStatus == nil {
		return nil, &ValidationError{Field: "universal.current_status", Constraint: "must be a string list, not null", Got: nil}
	}
	if bundle.Plan == nil {
		return nil, &ValidationError{Field: "universal.plan", Constraint: "must be a string list, not null", Got: nil}
	}

	for i, trend := range bundle.VitalTrends {
		if strings.TrimSpace(trend.Name) == "" {
			return nil, &ValidationError{Field: fmt.Sprintf("universal.vital_trends[%d].name", i), Constraint: "must be non-empty", Got: trend.Name}
		}
		for j, reading := range trend.Readings {
			if err := validateDate(fmt.Sprintf("universal.vital_trends[%d].readings[%d].date", i, j), reading.Date); err != nil {
				return nil, err
			}
		}
	}

	doc := &SummaryDocument{
		PatientID: bundle.PatientID,
		Specialty: bundle.Specialty,
		Universal: Universal{
			Evolution:     strings.TrimSpace(bundle.Evolution),
			CurrentStatus: bundle.CurrentStatus,
			Plan:          bundle.Plan,
			VitalTrends:   bundle.VitalTrends,
		},
		Incomplete: bundle.Incomplete,
		CreatedAt:  time.Now().UTC(),
	}

	// Specialty payloads nest only under their declared key.
	if bundle.Specialty == SpecialtyOncology && bundle.Oncology != nil {
		if err := validateOncology(bundle.Oncology); err != nil {
			return nil, err
		}
		doc.Oncology = bundle.Oncology
	}
	if bundle.Specialty == SpecialtySpeech && bundle.Speech != nil {
		if err := validateSpeech(bundle.Speech); err != nil {
			return nil, err
		}
		doc.Speech = bundle.Speech
	}

	return doc, nil
}

func validateOncology(o *OncologyData) error {
	for i, m := range o.TumorSizeTrend {
		if m.SizeCM < 0 {
			return &ValidationError{
				Field:      fmt.Sprintf("oncology.tumor_size_trend[%d].size_cm", i),
				Constraint: "must be >= 0",
				Got:        m.SizeCM,
			}
		}
		if m.Date != "" {
			if err := validateDate(fmt.Sprintf("oncology.tumor_size_trend[%d].date", i), m.Date); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateSpeech(s *SpeechData) error {
	if s.SpeechScores != nil {
		if v := s.SpeechScores.SRTdB; v != nil && (*v < 0 || *v > 120) {
			return &ValidationError{Field: "speech.speech_scores.srt_db", Constraint: "must be within 0-120 dB", Got: *v}
		}
		if v := s.SpeechScores.WRSPercent; v != nil && (*v < 0 || *v > 100) {
			return &ValidationError{Field: "speech.speech_scores.wrs_percent", Constraint: "must be within 0-100", Got: *v}
		}
	}
	if s.Audiogram != nil {
		for side, thresholds := range map[string]map[string]float64{"left": s.Audiogram.Left, "right": s.Audiogram.Right} {
			for freq, db := range thresholds {
				if db < -10 || db > 120 {
					return &ValidationError{
						Field:      fmt.Sprintf("speech.audiogram.%s[%s]", side, freq),
						Constraint: "must be within -10 to 120 dB HL",
						Got:        db,
					}
				}
			}
		}
		if s.Audiogram.TestDate != "" {
			if err := validateDate("speech.audiogram.test_date", s.Audiogram.TestDate); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateDate accepts the two canonical report date shapes, full dates and
// month precision.
func validateDate(field, value string) error {
	for _, layout := range []string{"2006-01-02", "2006-01"} {
		if _, err := time.Parse(layout, value); err == nil {
			return nil
		}
	}
	return &ValidationError{Field: field, Constraint: "must be YYYY-MM-DD or YYYY-MM", Got: value}
}
