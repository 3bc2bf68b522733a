package edits

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/summaid/backend/internal/metrics"
	"github.com/summaid/backend/internal/storage/models"
	"github.com/summaid/backend/pkg/logger"
)

// ErrUnknownSection is returned when an edit targets a section outside the
// fixed set. Unknown sections are rejected at the boundary, never silently
// mapped to a default.
var ErrUnknownSection = errors.New("unknown summary section")

// Sections a clinician may correct. Must match the summary document shape.
var validSections = map[string]bool{
	"evolution":      true,
	"current_status": true,
	"plan":           true,
	"vital_trends":   true,
	"oncology":       true,
	"speech":         true,
}

func ValidSection(section string) bool {
	return validSections[section]
}

// Store is the append-only persistence behind the overlay.
type Store interface {
	InsertEdit(edit *models.EditEntry) error
	GetEditHistory(patientID, section string) ([]models.EditEntry, error)
	GetAllEdits(patientID string) ([]models.EditEntry, error)
}

// Overlay is the clinician correction log. Entries are layered on top of
// generated content; they never replace it and are never deleted.
type Overlay struct {
	store Store
}

func NewOverlay(store Store) *Overlay {
	return &Overlay{store: store}
}

// Append records one correction. Concurrent appends from two clinicians to
// the same section never conflict; both land as ordered entries.
func (o *Overlay) Append(patientID, section, content, selectedText, author string) (*models.EditEntry, error) {
	if !ValidSection(section) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSection, section)
	}
	if content == "" {
		return nil, fmt.Errorf("edit content must not be empty")
	}

	entry := &models.EditEntry{
		ID:           uuid.New().String(),
		PatientID:    patientID,
		Section:      section,
		Content:      content,
		SelectedText: selectedText,
		EditedBy:     author,
		CreatedAt:    time.Now(),
	}

	if err := o.store.InsertEdit(entry); err != nil {
		return nil, err
	}

	metrics.EditsAppended.Inc()
	logger.Info("Doctor edit appended",
		zap.String("patient_id", patientID),
		zap.String("section", section),
		zap.String("edited_by", author),
	)

	return entry, nil
}

// Latest returns the authoritative entry per section, resolved by newest
// created_at. It is recomputed from the log on every call so chat and safety
// checks always see the freshest override.
func (o *Overlay) Latest(patientID string) (map[string]models.EditEntry, error) {
	all, err := o.store.GetAllEdits(patientID)
	if err != nil {
		return nil, err
	}

	latest := make(map[string]models.EditEntry)
	for _, entry := range all {
		current, ok := latest[entry.Section]
		if !ok || entry.CreatedAt.After(current.CreatedAt) {
			latest[entry.Section] = entry
		}
	}

	return latest, nil
}

// History returns every entry for one section, oldest to newest.
func (o *Overlay) History(patientID, section string) ([]models.EditEntry, error) {
	if !ValidSection(section) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSection, section)
	}
	return o.store.GetEditHistory(patientID, section)
}
