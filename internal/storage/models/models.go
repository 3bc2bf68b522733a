package models

import "time"

// Report is one ingested source document for a patient. The original file
// (PDF, scan) lives outside this service; only extracted text is stored.
type Report struct {
	ID        string
	PatientID string
	Title     string
	CreatedAt time.Time
}

// Chunk is an immutable, addressable segment of a report page. The embedding
// vector itself lives in the vector store under the same chunk ID.
type Chunk struct {
	ID         string
	DocumentID string
	PatientID  string
	Page       int
	Ordinal    int
	Text       string
	CreatedAt  time.Time
}

// Summary is the last validated summary document for a patient, stored as
// JSON. A new summarization run replaces it wholesale.
type Summary struct {
	ID        string
	PatientID string
	Specialty string
	Payload   string
	CreatedAt time.Time
}

// EditEntry is one clinician correction. Entries are append-only; the most
// recent per section is authoritative for display, older ones remain history.
type EditEntry struct {
	ID           string
	PatientID    string
	Section      string
	Content      string
	SelectedText string
	EditedBy     string
	CreatedAt    time.Time
}

type ChatRecord struct {
	ID            string
	PatientID     string
	Question      string
	Answer        string
	CitationCount int
	LatencyMS     int64
	CreatedAt     time.Time
}
