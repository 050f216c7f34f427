package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// RunRepo provides methods for ingest-run ledger operations.
type RunRepo struct {
	db *sql.DB
}

// NewRunRepo creates a new RunRepo.
func NewRunRepo(db *sql.DB) *RunRepo {
	return &RunRepo{db: db}
}

// Insert records a completed run and returns it with its assigned id.
func (r *RunRepo) Insert(run IngestRun) (IngestRun, error) {
	result, err := r.db.Exec(
		`INSERT INTO ingest_runs (
			kind, input_path, raw_message_count, processed_message_count,
			chat_count, chunk_count, redacted_emails, redacted_phones,
			redacted_tokens, redacted_passwords, status, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Kind, run.InputPath, run.RawMessageCount, run.ProcessedMessageCount,
		run.ChatCount, run.ChunkCount, run.RedactedEmails, run.RedactedPhones,
		run.RedactedTokens, run.RedactedPasswords, run.Status, run.Error,
	)
	if err != nil {
		return IngestRun{}, fmt.Errorf("failed to insert ingest run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return IngestRun{}, fmt.Errorf("failed to read ingest run id: %w", err)
	}

	run.ID = int(id)
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	return run, nil
}

// ListRecent returns the most recent runs, newest first.
func (r *RunRepo) ListRecent(limit int) ([]IngestRun, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.Query(
		`SELECT id, kind, input_path, raw_message_count, processed_message_count,
			chat_count, chunk_count, redacted_emails, redacted_phones,
			redacted_tokens, redacted_passwords, status, error, created_at
		FROM ingest_runs ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query ingest runs: %w", err)
	}
	defer rows.Close()

	var runs []IngestRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ingest runs: %w", err)
	}
	return runs, nil
}

func scanRun(rows *sql.Rows) (IngestRun, error) {
	var run IngestRun
	var inputPath, errText sql.NullString
	var createdAtStr string

	if err := rows.Scan(
		&run.ID, &run.Kind, &inputPath, &run.RawMessageCount, &run.ProcessedMessageCount,
		&run.ChatCount, &run.ChunkCount, &run.RedactedEmails, &run.RedactedPhones,
		&run.RedactedTokens, &run.RedactedPasswords, &run.Status, &errText, &createdAtStr,
	); err != nil {
		return IngestRun{}, fmt.Errorf("failed to scan ingest run: %w", err)
	}

	run.InputPath = inputPath.String
	run.Error = errText.String

	createdAt, err := time.Parse("2006-01-02 15:04:05", createdAtStr)
	if err != nil {
		createdAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return IngestRun{}, fmt.Errorf("failed to parse ingest run timestamp: %w", err)
		}
	}
	run.CreatedAt = createdAt
	return run, nil
}
