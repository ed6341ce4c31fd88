// Package services provides the service layer between the execution engine
// and the HTTP handlers.
package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/buildsim/osremote/internal/database"
	"github.com/buildsim/osremote/internal/executor"
	"github.com/buildsim/osremote/internal/models"
)

// ErrExecutionNotFound indicates no stored execution has the requested id.
var ErrExecutionNotFound = errors.New("execution not found")

// HistoryService persists terminal execution outcomes for later inspection.
type HistoryService struct {
	db *database.DB
}

// NewHistoryService creates a HistoryService backed by the given database.
func NewHistoryService(db *database.DB) *HistoryService {
	return &HistoryService{db: db}
}

// Record stores the outcome of one finished execution.
func (s *HistoryService) Record(id string, cmd executor.Command, res executor.Result, status executor.Status) error {
	args, err := json.Marshal(cmd.Args)
	if err != nil {
		return err
	}

	finished := time.Now()
	started := finished.Add(-res.Duration)

	var exitCode sql.NullInt64
	if res.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*res.ExitCode), Valid: true}
	}

	_, err = s.db.Exec(`
		INSERT INTO executions (id, command, args, status, exit_code, stdout, stderr, error, category, started_at, finished_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, cmd.Name, string(args), string(status), exitCode,
		res.Stdout, res.Stderr, res.Err, string(res.Category),
		started, finished, res.Duration.Milliseconds(),
	)
	return err
}

// GetByID fetches one stored execution.
func (s *HistoryService) GetByID(id string) (*models.ExecutionRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, command, args, status, exit_code, stdout, stderr, error, category, started_at, finished_at, duration_ms, created_at
		FROM executions WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrExecutionNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns stored executions, newest first.
func (s *HistoryService) List(limit, offset int) ([]models.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT id, command, args, status, exit_code, stdout, stderr, error, category, started_at, finished_at, duration_ms, created_at
		FROM executions
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.ExecutionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.ExecutionRecord, error) {
	var rec models.ExecutionRecord
	var args string
	var exitCode sql.NullInt64
	var stdout, stderr, errMsg, category sql.NullString
	var startedAt, finishedAt sql.NullTime
	var durationMS sql.NullInt64

	err := row.Scan(
		&rec.ID, &rec.Command, &args, &rec.Status, &exitCode,
		&stdout, &stderr, &errMsg, &category,
		&startedAt, &finishedAt, &durationMS, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(args), &rec.Args); err != nil {
		rec.Args = nil
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		rec.ExitCode = &code
	}
	rec.Stdout = stdout.String
	rec.Stderr = stderr.String
	rec.Error = errMsg.String
	rec.Category = category.String
	if startedAt.Valid {
		rec.StartedAt = startedAt.Time
	}
	if finishedAt.Valid {
		rec.FinishedAt = finishedAt.Time
	}
	rec.DurationMS = durationMS.Int64

	return &rec, nil
}
