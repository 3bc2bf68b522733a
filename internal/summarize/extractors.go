package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/summaid/backend/internal/llm"
)

// Extractor names. They double as section labels in incomplete_sections and
// as the extractor label on metrics.
const (
	extractorEvolution   = "evolution"
	extractorStatus      = "current_status"
	extractorPlan        = "plan"
	extractorVitalTrends = "vital_trends"
	extractorOncology    = "oncology"
	extractorSpeech      = "speech"
)

const evolutionPrompt = `Write a concise 2-3 sentence narrative describing the patient's medical journey from diagnosis to current state.

Focus on:
- Initial presentation and diagnosis
- Key treatments or interventions
- Current status

Respond with the narrative only, no preamble.`

const currentStatusPrompt = `Extract the patient's CURRENT medical status as 3-5 concise bullet points.

Focus on:
- Current symptoms or conditions
- Latest test results or findings
- Current treatment status
- Active issues

RETURN ONLY bullet points, one per line, starting with a dash. No other text.`

const planPrompt = `Extract the treatment PLAN and next steps as 3-5 concise bullet points.

Focus on:
- Planned treatments or procedures
- Follow-up appointments
- Monitoring or testing
- Recommendations

RETURN ONLY bullet points, one per line, starting with a dash. No other text.`

const vitalTrendsPrompt = `Extract time series of vital sign and lab measurements from the medical reports and return ONLY valid JSON.

Look for repeated measurements of the same quantity over time: blood pressure, heart rate, weight, hemoglobin, and similar.

RETURN ONLY THIS JSON STRUCTURE (an empty list if no repeated measurements exist):
{
  "vital_trends": [
    {
      "name": "systolic_bp",
      "unit": "mmHg",
      "readings": [{"date": "YYYY-MM-DD", "value": 128}]
    }
  ]
}`

const oncologyPrompt = `Extract oncology data from the medical reports and return ONLY valid JSON.

Extract:
1. Tumor size measurements with dates (measurements in cm, dimensions)
2. TNM staging (e.g., T2N0M0)
3. Cancer type
4. Grade
5. Biomarkers (ER, PR, HER2, Ki-67, etc.)
6. Treatment response
7. Pertinent negatives (explicitly ruled-out findings)

RETURN ONLY THIS JSON STRUCTURE (use null for missing data):
{
  "tumor_size_trend": [
    {"date": "YYYY-MM-DD", "size_cm": 2.3, "location": "left breast", "status": "stable"}
  ],
  "tnm_staging": "T2N0M0",
  "cancer_type": "Cancer type",
  "grade": "Grade description",
  "biomarkers": {"ER": "positive", "PR": "positive"},
  "treatment_response": "Response description",
  "pertinent_negatives": ["No distant metastases"]
}`

const speechPrompt = `Extract audiology data from the medical reports and return ONLY valid JSON.

Extract:
1. Audiogram frequencies (500Hz, 1000Hz, 2000Hz, 4000Hz, 8000Hz) for left and right ears (dB HL values)
2. Speech scores (SRT in dB, WRS as percentage)
3. Hearing loss type (Sensorineural, Conductive, Mixed)
4. Severity (Mild, Moderate, Severe, Profound)
5. Tinnitus presence (true/false)
6. Amplification device
7. Pertinent negatives (explicitly ruled-out findings)

RETURN ONLY THIS JSON STRUCTURE (use null for missing data):
{
  "audiogram": {
    "left": {"500Hz": 45, "1000Hz": 50, "2000Hz": 55, "4000Hz": 60},
    "right": {"500Hz": 40, "1000Hz": 48, "2000Hz": 52, "4000Hz": 58},
    "test_date": "YYYY-MM-DD"
  },
  "speech_scores": {"srt_db": 45, "wrs_percent": 82},
  "hearing_loss_type": "Sensorineural",
  "hearing_loss_severity": "Moderate",
  "tinnitus": true,
  "amplification": "Device description",
  "pertinent_negatives": ["No vertigo reported"]
}`

const extractorSystemPrompt = `You are a clinical information extraction system. Answer strictly from the provided report excerpts. Never invent findings that are not in the text.`

func runCompletion(ctx context.Context, completer Completer, instruction, contextText string, temperature float32) (string, error) {
	resp, err := completer.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: extractorSystemPrompt,
		UserPrompt:   fmt.Sprintf("%s\n\nMedical Reports:\n%s", instruction, contextText),
		Temperature:  llm.Temp(temperature),
		MaxTokens:    1024,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

func extractEvolution(ctx context.Context, c Completer, contextText string) (string, error) {
	return runCompletion(ctx, c, evolutionPrompt, contextText, 0.2)
}

func extractCurrentStatus(ctx context.Context, c Completer, contextText string) ([]string, error) {
	raw, err := runCompletion(ctx, c, currentStatusPrompt, contextText, 0.1)
	if err != nil {
		return nil, err
	}
	return parseBullets(raw), nil
}

func extractPlan(ctx context.Context, c Completer, contextText string) ([]string, error) {
	raw, err := runCompletion(ctx, c, planPrompt, contextText, 0.1)
	if err != nil {
		return nil, err
	}
	return parseBullets(raw), nil
}

func extractVitalTrends(ctx context.Context, c Completer, contextText string) ([]VitalTrend, error) {
	raw, err := runCompletion(ctx, c, vitalTrendsPrompt, contextText, 0)
	if err != nil {
		return nil, err
	}
	var out struct {
		VitalTrends []VitalTrend `json:"vital_trends"`
	}
	if err := decodeJSONObject(raw, &out); err != nil {
		return nil, fmt.Errorf("unparseable vital trends response: %w", err)
	}
	return out.VitalTrends, nil
}

func extractOncology(ctx context.Context, c Completer, contextText string) (*OncologyData, error) {
	raw, err := runCompletion(ctx, c, oncologyPrompt, contextText, 0)
	if err != nil {
		return nil, err
	}
	var out OncologyData
	if err := decodeJSONObject(raw, &out); err != nil {
		return nil, fmt.Errorf("unparseable oncology response: %w", err)
	}
	return &out, nil
}

func extractSpeech(ctx context.Context, c Completer, contextText string) (*SpeechData, error) {
	raw, err := runCompletion(ctx, c, speechPrompt, contextText, 0)
	if err != nil {
		return nil, err
	}
	var out SpeechData
	if err := decodeJSONObject(raw, &out); err != nil {
		return nil, fmt.Errorf("unparseable speech response: %w", err)
	}
	return &out, nil
}

// parseBullets reads dash or bullet lines from a model response. A line that
// starts with neither continues the previous bullet; anything before the
// first bullet is preamble and is dropped.
func parseBullets(raw string) []string {
	var bullets []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "- "):
			bullets = append(bullets, strings.TrimSpace(line[2:]))
		case strings.HasPrefix(line, "-"):
			bullets = append(bullets, strings.TrimSpace(line[1:]))
		case strings.HasPrefix(line, "•"):
			bullets = append(bullets, strings.TrimSpace(strings.TrimPrefix(line, "•")))
		case strings.HasPrefix(line, "*"):
			bullets = append(bullets, strings.TrimSpace(strings.TrimPrefix(line, "*")))
		case len(bullets) > 0:
			bullets[len(bullets)-1] += " " + line
		}
	}

	out := bullets[:0]
	for _, b := range bullets {
		if b != "" {
			out = append(out, b)
		}
	}
	return out
}

// decodeJSONObject finds the outermost {...} span in a model response and
// unmarshals it. Fields outside the target struct are dropped by the decoder,
// never merged into the result.
func decodeJSONObject(raw string, target any) error {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in response")
	}
	return json.Unmarshal([]byte(raw[start:end+1]), target)
}
