package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// RunRecord is a row from pipeline_runs.
type RunRecord struct {
	ID         string
	Source     string
	Status     string
	Succeeded  int
	Failed     int
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// DocumentRecord is the outcome of one document in a run.
type DocumentRecord struct {
	Seq         int
	Document    string
	FailedStage string
	Error       string
	Duration    time.Duration
}

// OK reports whether the document went through every stage.
func (d DocumentRecord) OK() bool { return d.Error == "" }

func (s *Store) StartRun(ctx context.Context, id, source string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, source, status, started_at) VALUES (?, ?, ?, ?)`,
		id, source, RunRunning, startedAt)
	return err
}

func (s *Store) RecordDocument(ctx context.Context, runID string, rec DocumentRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO run_documents (run_id, seq, document, failed_stage, error, duration_ms) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, rec.Seq, rec.Document, rec.FailedStage, rec.Error, rec.Duration.Milliseconds())
	return err
}

func (s *Store) FinishRun(ctx context.Context, id, status string, succeeded, failed int, errMsg string, finishedAt time.Time) error {
	return s.execOne(ctx,
		`UPDATE pipeline_runs SET status = ?, succeeded = ?, failed = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, succeeded, failed, errMsg, finishedAt, id)
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `SELECT id, source, status, succeeded, failed, COALESCE(error, ''), started_at, finished_at
		FROM pipeline_runs ORDER BY started_at DESC, id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (s *Store) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, status, succeeded, failed, COALESCE(error, ''), started_at, finished_at
		 FROM pipeline_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, id)
	}
	return run, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*RunRecord, error) {
	var (
		run      RunRecord
		finished sql.NullTime
	)
	if err := row.Scan(&run.ID, &run.Source, &run.Status, &run.Succeeded, &run.Failed, &run.Error, &run.StartedAt, &finished); err != nil {
		return nil, err
	}
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	return &run, nil
}

// RunDocuments returns the documents of a run in processing order.
func (s *Store) RunDocuments(ctx context.Context, runID string) ([]DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, document, COALESCE(failed_stage, ''), COALESCE(error, ''), COALESCE(duration_ms, 0)
		 FROM run_documents WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []DocumentRecord
	for rows.Next() {
		var (
			d  DocumentRecord
			ms int64
		)
		if err := rows.Scan(&d.Seq, &d.Document, &d.FailedStage, &d.Error, &ms); err != nil {
			return nil, err
		}
		d.Duration = time.Duration(ms) * time.Millisecond
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// CompletedDocuments returns the documents a run processed successfully.
func (s *Store) CompletedDocuments(ctx context.Context, runID string) (map[string]bool, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	docs, err := s.RunDocuments(ctx, runID)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(docs))
	for _, d := range docs {
		if d.OK() && d.Document != "" {
			done[d.Document] = true
		}
	}
	return done, nil
}
