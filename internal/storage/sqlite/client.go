package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/summaid/backend/internal/storage/models"
	"github.com/summaid/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		title TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reports_patient ON reports(patient_id);

	CREATE TABLE IF NOT EXISTS report_chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		patient_id TEXT NOT NULL,
		page INTEGER NOT NULL,
		ordinal INTEGER NOT NULL,
		text TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document ON report_chunks(document_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_patient ON report_chunks(patient_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_chunks_position
		ON report_chunks(document_id, page, ordinal);

	CREATE TABLE IF NOT EXISTS summaries (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL UNIQUE,
		specialty TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS doctor_edits (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		section TEXT NOT NULL,
		content TEXT NOT NULL,
		selected_text TEXT,
		edited_by TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_edits_patient_section
		ON doctor_edits(patient_id, section, created_at);

	CREATE TABLE IF NOT EXISTS chat_history (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		citation_count INTEGER,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_patient ON chat_history(patient_id, created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertReport(report *models.Report) error {
	query := `INSERT OR IGNORE INTO reports (id, patient_id, title, created_at) VALUES (?, ?, ?, ?)`

	_, err := c.db.Exec(query, report.ID, report.PatientID, report.Title, report.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}

	return nil
}

func (c *Client) InsertChunks(chunks []models.Chunk) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO report_chunks (id, document_id, patient_id, page, ordinal, text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		_, err = stmt.Exec(
			chunk.ID,
			chunk.DocumentID,
			chunk.PatientID,
			chunk.Page,
			chunk.Ordinal,
			chunk.Text,
			chunk.CreatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}

	return nil
}

// DeleteChunks removes chunk rows by id. Used to roll back a page whose
// vectors never made it into the index; a chunk row without an embedding is
// invisible to retrieval but would still surface in full-record scans.
func (c *Client) DeleteChunks(chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`DELETE FROM report_chunks WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range chunkIDs {
		if _, err := stmt.Exec(id); err != nil {
			return fmt.Errorf("failed to delete chunk %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk deletes: %w", err)
	}

	return nil
}

func (c *Client) NextOrdinal(documentID string, page int) (int, error) {
	query := `SELECT COALESCE(MAX(ordinal), -1) + 1 FROM report_chunks WHERE document_id = ? AND page = ?`

	var next int
	err := c.db.QueryRow(query, documentID, page).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to get next ordinal: %w", err)
	}

	return next, nil
}

func (c *Client) GetChunksByDocument(documentID string) ([]models.Chunk, error) {
	query := `
		SELECT id, document_id, patient_id, page, ordinal, text, created_at
		FROM report_chunks
		WHERE document_id = ?
		ORDER BY page, ordinal
	`
	return c.queryChunks(query, documentID)
}

func (c *Client) GetChunksByPatient(patientID string) ([]models.Chunk, error) {
	query := `
		SELECT id, document_id, patient_id, page, ordinal, text, created_at
		FROM report_chunks
		WHERE patient_id = ?
		ORDER BY document_id, page, ordinal
	`
	return c.queryChunks(query, patientID)
}

func (c *Client) queryChunks(query string, arg any) ([]models.Chunk, error) {
	rows, err := c.db.Query(query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var chunk models.Chunk
		var createdAt int64

		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.PatientID,
			&chunk.Page,
			&chunk.Ordinal,
			&chunk.Text,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}

		chunk.CreatedAt = time.Unix(createdAt, 0)
		chunks = append(chunks, chunk)
	}

	return chunks, rows.Err()
}

// ReplaceSummary stores a validated summary, replacing any previous one for
// the same patient. Summaries are never partially updated.
func (c *Client) ReplaceSummary(summary *models.Summary) error {
	query := `
		INSERT INTO summaries (id, patient_id, specialty, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(patient_id) DO UPDATE SET
			id = excluded.id,
			specialty = excluded.specialty,
			payload = excluded.payload,
			created_at = excluded.created_at
	`

	_, err := c.db.Exec(
		query,
		summary.ID,
		summary.PatientID,
		summary.Specialty,
		summary.Payload,
		summary.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to replace summary: %w", err)
	}

	logger.Info("Summary stored",
		zap.String("patient_id", summary.PatientID),
		zap.String("specialty", summary.Specialty),
	)
	return nil
}

func (c *Client) GetSummary(patientID string) (*models.Summary, error) {
	query := `SELECT id, patient_id, specialty, payload, created_at FROM summaries WHERE patient_id = ?`

	var summary models.Summary
	var createdAt int64

	err := c.db.QueryRow(query, patientID).Scan(
		&summary.ID,
		&summary.PatientID,
		&summary.Specialty,
		&summary.Payload,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}

	summary.CreatedAt = time.Unix(createdAt, 0)
	return &summary, nil
}

// InsertEdit appends a clinician correction. There is no update path for
// doctor_edits rows on purpose.
func (c *Client) InsertEdit(edit *models.EditEntry) error {
	query := `
		INSERT INTO doctor_edits (id, patient_id, section, content, selected_text, edited_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		edit.ID,
		edit.PatientID,
		edit.Section,
		edit.Content,
		edit.SelectedText,
		edit.EditedBy,
		edit.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert edit: %w", err)
	}

	return nil
}

func (c *Client) GetEditHistory(patientID, section string) ([]models.EditEntry, error) {
	query := `
		SELECT id, patient_id, section, content, COALESCE(selected_text, ''), edited_by, created_at
		FROM doctor_edits
		WHERE patient_id = ? AND section = ?
		ORDER BY created_at ASC
	`
	return c.queryEdits(query, patientID, section)
}

func (c *Client) GetAllEdits(patientID string) ([]models.EditEntry, error) {
	query := `
		SELECT id, patient_id, section, content, COALESCE(selected_text, ''), edited_by, created_at
		FROM doctor_edits
		WHERE patient_id = ?
		ORDER BY created_at ASC
	`
	return c.queryEdits(query, patientID)
}

func (c *Client) queryEdits(query string, args ...any) ([]models.EditEntry, error) {
	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query edits: %w", err)
	}
	defer rows.Close()

	var edits []models.EditEntry
	for rows.Next() {
		var edit models.EditEntry
		var createdAt int64

		err := rows.Scan(
			&edit.ID,
			&edit.PatientID,
			&edit.Section,
			&edit.Content,
			&edit.SelectedText,
			&edit.EditedBy,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan edit row: %w", err)
		}

		edit.CreatedAt = time.Unix(0, createdAt)
		edits = append(edits, edit)
	}

	return edits, rows.Err()
}

func (c *Client) InsertChatRecord(record *models.ChatRecord) error {
	query := `
		INSERT INTO chat_history (id, patient_id, question, answer, citation_count, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		record.ID,
		record.PatientID,
		record.Question,
		record.Answer,
		record.CitationCount,
		record.LatencyMS,
		record.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chat record: %w", err)
	}

	return nil
}

func (c *Client) GetChatHistory(patientID string, limit int) ([]models.ChatRecord, error) {
	query := `
		SELECT id, patient_id, question, answer, citation_count, latency_ms, created_at
		FROM chat_history
		WHERE patient_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat history: %w", err)
	}
	defer rows.Close()

	var records []models.ChatRecord
	for rows.Next() {
		var r models.ChatRecord
		var createdAt int64

		err := rows.Scan(&r.ID, &r.PatientID, &r.Question, &r.Answer, &r.CitationCount, &r.LatencyMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat row: %w", err)
		}

		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	return records, rows.Err()
}
