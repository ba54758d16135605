// Package recorder commits attendance decisions: an append-only event log
// plus the latest-status fields on the worker record.
package recorder

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"sitecheck/internal/directory"
	"sitecheck/internal/queue"
)

// AttendanceEvent is an immutable record of one completed check-in. Name
// and post are denormalized for reporting.
type AttendanceEvent struct {
	ID            string    `json:"id"`
	WorkerID      string    `json:"worker_id"`
	Name          string    `json:"name,omitempty"`
	Post          string    `json:"post,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
	PPECompliant  bool      `json:"ppe_compliant"`
	PPEViolations []string  `json:"ppe_violations"`
}

// Recorder persists attendance events and updates worker status.
type Recorder struct {
	db      *sql.DB
	workers *directory.Repository
	q       queue.Queue
}

// New creates a recorder. The queue may be nil when no downstream consumer
// is configured.
func New(db *sql.DB, workers *directory.Repository, q queue.Queue) *Recorder {
	return &Recorder{db: db, workers: workers, q: q}
}

// Record appends the event and marks the worker present. Called exactly
// once per completed verification session, compliant or not.
func (r *Recorder) Record(ctx context.Context, evt AttendanceEvent) error {
	if evt.WorkerID == "" {
		return errors.New("worker id required")
	}
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	if evt.PPEViolations == nil {
		evt.PPEViolations = []string{}
	}

	violations, err := json.Marshal(evt.PPEViolations)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO attendance_events (id, worker_id, name, post, occurred_at, ppe_compliant, ppe_violations)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, evt.ID, evt.WorkerID, evt.Name, evt.Post, evt.OccurredAt, evt.PPECompliant, violations)
	if err != nil {
		return fmt.Errorf("append attendance event: %w", err)
	}

	ppeStatus := directory.PPENonCompliant
	if evt.PPECompliant {
		ppeStatus = directory.PPECompliant
	}
	if err := r.workers.MarkPresent(ctx, evt.WorkerID, evt.OccurredAt, ppeStatus); err != nil {
		// The event is already in the log; a missing or failed worker
		// update should not undo the committed attendance.
		log.Printf("mark present failed for worker %s: %v", evt.WorkerID, err)
	}

	if r.q != nil {
		if err := r.q.Publish(ctx, queue.Message{Type: queue.TypeAttendance, Body: []byte(evt.ID)}); err != nil {
			log.Printf("attendance notification publish failed: %v", err)
		}
	}
	return nil
}

// List returns events, newest first, optionally filtered by worker and
// compliance outcome.
func (r *Recorder) List(ctx context.Context, workerID string, compliant *bool, limit, offset int) ([]AttendanceEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT id, worker_id, name, post, occurred_at, ppe_compliant, ppe_violations FROM attendance_events`
	args := []any{}
	clauses := []string{}
	if workerID != "" {
		args = append(args, workerID)
		clauses = append(clauses, fmt.Sprintf("worker_id = $%d", len(args)))
	}
	if compliant != nil {
		args = append(args, *compliant)
		clauses = append(clauses, fmt.Sprintf("ppe_compliant = $%d", len(args)))
	}
	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += fmt.Sprintf(" ORDER BY occurred_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []AttendanceEvent
	for rows.Next() {
		var evt AttendanceEvent
		var violations []byte
		if err := rows.Scan(&evt.ID, &evt.WorkerID, &evt.Name, &evt.Post, &evt.OccurredAt, &evt.PPECompliant, &violations); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(violations, &evt.PPEViolations); err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}
