package summarize

import (
	"time"

	"github.com/summaid/backend/internal/citations"
)

// Specialty is a closed classification tag selecting which extra extractors
// run for a patient.
type Specialty string

const (
	SpecialtyOncology Specialty = "oncology"
	SpecialtySpeech   Specialty = "speech"
	SpecialtyGeneral  Specialty = "general"
)

func (s Specialty) Valid() bool {
	switch s {
	case SpecialtyOncology, SpecialtySpeech, SpecialtyGeneral:
		return true
	}
	return false
}

// SummaryDocument is the validated, citation-grounded summary handed to every
// downstream consumer. A new summarization run replaces it wholesale; it is
// never partially mutated after validation.
type SummaryDocument struct {
	PatientID  string               `json:"patient_id"`
	Specialty  Specialty            `json:"specialty"`
	Universal  Universal            `json:"universal"`
	Oncology   *OncologyData        `json:"oncology,omitempty"`
	Speech     *SpeechData          `json:"speech,omitempty"`
	Citations  []citations.Citation `json:"citations"`
	Incomplete []string             `json:"incomplete_sections,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
}

// Universal holds the fields every patient gets regardless of specialty.
type Universal struct {
	Evolution     string       `json:"evolution"`
	CurrentStatus []string     `json:"current_status"`
	Plan          []string     `json:"plan"`
	VitalTrends   []VitalTrend `json:"vital_trends,omitempty"`
}

type VitalTrend struct {
	Name     string         `json:"name"`
	Unit     string         `json:"unit,omitempty"`
	Readings []VitalReading `json:"readings"`
}

type VitalReading struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

type OncologyData struct {
	TumorSizeTrend     []TumorMeasurement `json:"tumor_size_trend,omitempty"`
	TNMStaging         string             `json:"tnm_staging,omitempty"`
	CancerType         string             `json:"cancer_type,omitempty"`
	Grade              string             `json:"grade,omitempty"`
	Biomarkers         map[string]string  `json:"biomarkers,omitempty"`
	TreatmentResponse  string             `json:"treatment_response,omitempty"`
	PertinentNegatives []string           `json:"pertinent_negatives,omitempty"`
}

type TumorMeasurement struct {
	Date     string  `json:"date"`
	SizeCM   float64 `json:"size_cm"`
	Location string  `json:"location,omitempty"`
	Status   string  `json:"status,omitempty"`
}

type SpeechData struct {
	Audiogram           *Audiogram    `json:"audiogram,omitempty"`
	SpeechScores        *SpeechScores `json:"speech_scores,omitempty"`
	HearingLossType     string        `json:"hearing_loss_type,omitempty"`
	HearingLossSeverity string        `json:"hearing_loss_severity,omitempty"`
	Tinnitus            *bool         `json:"tinnitus,omitempty"`
	Amplification       string        `json:"amplification,omitempty"`
	PertinentNegatives  []string      `json:"pertinent_negatives,omitempty"`
}

// Audiogram thresholds in dB HL, keyed by frequency label ("500Hz", "1000Hz").
type Audiogram struct {
	Left     map[string]float64 `json:"left,omitempty"`
	Right    map[string]float64 `json:"right,omitempty"`
	TestDate string             `json:"test_date,omitempty"`
}

type SpeechScores struct {
	SRTdB      *float64 `json:"srt_db,omitempty"`
	WRSPercent *float64 `json:"wrs_percent,omitempty"`
}

// Bundle is the merged raw output of one extraction run, before validation.
// Every value in it came from an untrusted model response.
type Bundle struct {
	PatientID        string
	Specialty        Specialty
	Evolution        string
	CurrentStatus    []string
	Plan             []string
	VitalTrends      []VitalTrend
	Oncology         *OncologyData
	Speech           *SpeechData
	Incomplete       []string
	EvidenceChunkIDs []string
}
