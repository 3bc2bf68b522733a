package edits

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/summaid/backend/internal/storage/models"
)

type memStore struct {
	entries []models.EditEntry
}

func (m *memStore) InsertEdit(edit *models.EditEntry) error {
	m.entries = append(m.entries, *edit)
	return nil
}

func (m *memStore) GetEditHistory(patientID, section string) ([]models.EditEntry, error) {
	var out []models.EditEntry
	for _, e := range m.entries {
		if e.PatientID == patientID && e.Section == section {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) GetAllEdits(patientID string) ([]models.EditEntry, error) {
	var out []models.EditEntry
	for _, e := range m.entries {
		if e.PatientID == patientID {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestAppendRejectsUnknownSection(t *testing.T) {
	overlay := NewOverlay(&memStore{})

	_, err := overlay.Append("p1", "prognosis", "content", "", "dr-a")

	assert.ErrorIs(t, err, ErrUnknownSection)
}

func TestAppendRejectsEmptyContent(t *testing.T) {
	overlay := NewOverlay(&memStore{})

	_, err := overlay.Append("p1", "plan", "", "", "dr-a")

	assert.Error(t, err)
}

func TestAppendIsAppendOnly(t *testing.T) {
	store := &memStore{}
	overlay := NewOverlay(store)

	_, err := overlay.Append("p1", "plan", "start metformin", "", "dr-a")
	require.NoError(t, err)
	_, err = overlay.Append("p1", "plan", "hold metformin, start insulin", "", "dr-b")
	require.NoError(t, err)

	// The second edit never overwrote the first.
	history, err := overlay.History("p1", "plan")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "start metformin", history[0].Content)
	assert.Equal(t, "hold metformin, start insulin", history[1].Content)
}

func TestLatestPicksNewestPerSection(t *testing.T) {
	store := &memStore{entries: []models.EditEntry{
		{ID: "1", PatientID: "p1", Section: "plan", Content: "old plan", CreatedAt: time.Now().Add(-2 * time.Hour)},
		{ID: "2", PatientID: "p1", Section: "plan", Content: "new plan", CreatedAt: time.Now().Add(-1 * time.Hour)},
		{ID: "3", PatientID: "p1", Section: "evolution", Content: "corrected narrative", CreatedAt: time.Now().Add(-3 * time.Hour)},
	}}
	overlay := NewOverlay(store)

	latest, err := overlay.Latest("p1")
	require.NoError(t, err)

	require.Len(t, latest, 2)
	assert.Equal(t, "new plan", latest["plan"].Content)
	assert.Equal(t, "corrected narrative", latest["evolution"].Content)
}

func TestLatestIsolatesPatients(t *testing.T) {
	store := &memStore{entries: []models.EditEntry{
		{ID: "1", PatientID: "p1", Section: "plan", Content: "for p1", CreatedAt: time.Now()},
		{ID: "2", PatientID: "p2", Section: "plan", Content: "for p2", CreatedAt: time.Now()},
	}}
	overlay := NewOverlay(store)

	latest, err := overlay.Latest("p1")
	require.NoError(t, err)

	require.Len(t, latest, 1)
	assert.Equal(t, "for p1", latest["plan"].Content)
}

func TestHistoryRejectsUnknownSection(t *testing.T) {
	overlay := NewOverlay(&memStore{})

	_, err := overlay.History("p1", "imaging")

	assert.ErrorIs(t, err, ErrUnknownSection)
}
