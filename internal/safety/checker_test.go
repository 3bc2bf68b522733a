package safety

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/summaid/backend/internal/storage/models"
)

var testKeywords = []string{"allergic", "allergy", "allergies", "hypersensitivity", "anaphylaxis"}

type fakeChunks struct {
	chunks []models.Chunk
}

func (f fakeChunks) GetChunksByPatient(patientID string) ([]models.Chunk, error) {
	return f.chunks, nil
}

type fakeOverlay struct {
	latest map[string]models.EditEntry
}

func (f fakeOverlay) Latest(patientID string) (map[string]models.EditEntry, error) {
	return f.latest, nil
}

func chunk(id, text string) models.Chunk {
	return models.Chunk{ID: id, DocumentID: "d1", PatientID: "p1", Page: 1, Text: text}
}

func TestCheckDetectsSameChunkCoOccurrence(t *testing.T) {
	checker := NewChecker(fakeChunks{chunks: []models.Chunk{
		chunk("c1", "Patient is allergic to Penicillin, developed hives in 2019."),
	}}, nil, testKeywords)

	verdict, err := checker.Check(context.Background(), "p1", "Penicillin")

	require.NoError(t, err)
	assert.True(t, verdict.HasAllergy)
	assert.NotEmpty(t, verdict.Warnings)
	assert.Contains(t, verdict.AllergyDetail, "Penicillin")
}

func TestCheckWarnsOncePerMatchingChunk(t *testing.T) {
	checker := NewChecker(fakeChunks{chunks: []models.Chunk{
		chunk("c1", "Patient is allergic to Penicillin."),
		chunk("c2", "Routine visit, no acute complaints."),
		{ID: "c3", DocumentID: "d2", PatientID: "p1", Page: 3, Text: "Penicillin allergy reconfirmed at intake."},
	}}, nil, testKeywords)

	verdict, err := checker.Check(context.Background(), "p1", "Penicillin")

	require.NoError(t, err)
	assert.True(t, verdict.HasAllergy)
	require.Len(t, verdict.Warnings, 2)
	// Each warning carries preview text from its own chunk.
	assert.Contains(t, verdict.Warnings[0], "allergic to Penicillin")
	assert.Contains(t, verdict.Warnings[1], "reconfirmed at intake")
	assert.Contains(t, verdict.Warnings[1], "document d2, page 3")
}

func TestCheckWarnsForChunkAndEditTogether(t *testing.T) {
	overlay := fakeOverlay{latest: map[string]models.EditEntry{
		"current_status": {
			Section:   "current_status",
			Content:   "Penicillin allergy confirmed by patient today.",
			CreatedAt: time.Now(),
		},
	}}
	checker := NewChecker(fakeChunks{chunks: []models.Chunk{
		chunk("c1", "History notes Penicillin hypersensitivity."),
	}}, overlay, testKeywords)

	verdict, err := checker.Check(context.Background(), "p1", "Penicillin")

	require.NoError(t, err)
	assert.True(t, verdict.HasAllergy)
	require.Len(t, verdict.Warnings, 2)
	assert.Contains(t, verdict.Warnings[1], "clinician edit")
	assert.Contains(t, verdict.Warnings[1], "confirmed by patient today")
}

func TestCheckIsCaseInsensitive(t *testing.T) {
	checker := NewChecker(fakeChunks{chunks: []models.Chunk{
		chunk("c1", "Documented PENICILLIN allergy."),
	}}, nil, testKeywords)

	verdict, err := checker.Check(context.Background(), "p1", "penicillin")

	require.NoError(t, err)
	assert.True(t, verdict.HasAllergy)
}

func TestCheckNoFalsePositiveFromUnrelatedAllergy(t *testing.T) {
	// Drug mentioned in one chunk, an unrelated allergy in another. The two
	// must not combine into a warning.
	checker := NewChecker(fakeChunks{chunks: []models.Chunk{
		chunk("c1", "Started Ibuprofen 400mg for joint pain."),
		chunk("c2", "Known shellfish allergy with prior anaphylaxis."),
	}}, nil, testKeywords)

	verdict, err := checker.Check(context.Background(), "p1", "Ibuprofen")

	require.NoError(t, err)
	assert.False(t, verdict.HasAllergy)
	assert.Empty(t, verdict.Warnings)
}

func TestCheckRequiresWholeTokenMatch(t *testing.T) {
	checker := NewChecker(fakeChunks{chunks: []models.Chunk{
		chunk("c1", "Allergic to amoxicillin-clavulanate."),
	}}, nil, testKeywords)

	// "cillin" appears only inside another word.
	verdict, err := checker.Check(context.Background(), "p1", "cillin")

	require.NoError(t, err)
	assert.False(t, verdict.HasAllergy)
}

func TestCheckMatchesTokenWithPunctuation(t *testing.T) {
	checker := NewChecker(fakeChunks{chunks: []models.Chunk{
		chunk("c1", "Allergies: Penicillin."),
	}}, nil, testKeywords)

	verdict, err := checker.Check(context.Background(), "p1", "Penicillin")

	require.NoError(t, err)
	assert.True(t, verdict.HasAllergy)
}

func TestCheckScansClinicianEdits(t *testing.T) {
	overlay := fakeOverlay{latest: map[string]models.EditEntry{
		"current_status": {
			Section:   "current_status",
			Content:   "Patient reports new sulfamethoxazole allergy since last visit.",
			CreatedAt: time.Now(),
		},
	}}
	checker := NewChecker(fakeChunks{}, overlay, testKeywords)

	verdict, err := checker.Check(context.Background(), "p1", "sulfamethoxazole")

	require.NoError(t, err)
	assert.True(t, verdict.HasAllergy)
	require.NotEmpty(t, verdict.Warnings)
	assert.Contains(t, verdict.Warnings[0], "clinician edit")
}

func TestCheckEmptyDrugName(t *testing.T) {
	checker := NewChecker(fakeChunks{}, nil, testKeywords)

	_, err := checker.Check(context.Background(), "p1", "   ")

	assert.Error(t, err)
}

func TestCheckCleanRecord(t *testing.T) {
	checker := NewChecker(fakeChunks{chunks: []models.Chunk{
		chunk("c1", "Routine follow-up, no acute complaints."),
	}}, fakeOverlay{}, testKeywords)

	verdict, err := checker.Check(context.Background(), "p1", "Metformin")

	require.NoError(t, err)
	assert.False(t, verdict.HasAllergy)
	assert.NotNil(t, verdict.Warnings)
	assert.Empty(t, verdict.Warnings)
}
