package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/quartetops/quartet/pkg/models"
)

// Run is a persisted record of one orchestrated run.
type Run struct {
	ID         string
	UserID     string
	Request    string
	Agent      string
	Workflow   string
	OK         bool
	Summary    string
	StartedAt  time.Time
	FinishedAt time.Time
}

// CreateRun records the start of a run.
func (db *DB) CreateRun(id, userID, request string, startedAt time.Time) error {
	_, err := db.Exec(`
		INSERT INTO runs (id, user_id, request, started_at)
		VALUES (?, ?, ?, ?)
	`, id, userID, request, formatTime(startedAt))
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// FinishRun records the outcome of a run.
func (db *DB) FinishRun(result *models.RunResult, finishedAt time.Time) error {
	_, err := db.Exec(`
		UPDATE runs SET agent = ?, workflow = ?, ok = ?, summary = ?, finished_at = ?
		WHERE id = ?
	`, string(result.Agent), result.Workflow, boolToInt(result.OK), result.Summary, formatTime(finishedAt), result.RunID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", result.RunID, err)
	}
	return nil
}

// RecentRuns returns the most recent runs, newest first.
func (db *DB) RecentRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := db.Query(`
		SELECT id, user_id, request, COALESCE(agent, ''), COALESCE(workflow, ''), ok, summary, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r        Run
			ok       int
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.UserID, &r.Request, &r.Agent, &r.Workflow, &ok, &r.Summary, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		r.OK = ok == 1

		if startedAt, err := parseTime(started); err == nil {
			r.StartedAt = startedAt
		}
		if finishedAt, err := nullableTime(finished); err == nil {
			r.FinishedAt = finishedAt
		}

		runs = append(runs, r)
	}
	return runs, rows.Err()
}
