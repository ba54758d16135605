package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

var ErrWorkerIDRequired = errors.New("worker id required")

// Repository persists worker records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const recordColumns = `worker_id, name, post, face_image_url, qr_code_url, face_embedding,
	attendance_status, last_attendance_at, last_ppe_status, created_at, updated_at`

// Exists reports whether a worker record is present.
func (r *Repository) Exists(ctx context.Context, workerID string) (bool, error) {
	if workerID == "" {
		return false, ErrWorkerIDRequired
	}
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM workers WHERE doc_id = $1`, DocID(workerID)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// Get returns a worker record or nil when not found.
func (r *Repository) Get(ctx context.Context, workerID string) (*WorkerRecord, error) {
	if workerID == "" {
		return nil, ErrWorkerIDRequired
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM workers WHERE doc_id = $1`, DocID(workerID))
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns all worker records ordered by worker id.
func (r *Repository) List(ctx context.Context) ([]WorkerRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM workers ORDER BY worker_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []WorkerRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// Upsert creates or updates a worker record. The worker id never changes;
// name, post and image URLs are the admin-editable fields.
func (r *Repository) Upsert(ctx context.Context, rec WorkerRecord) error {
	if rec.WorkerID == "" {
		return ErrWorkerIDRequired
	}
	if rec.AttendanceStatus == "" {
		rec.AttendanceStatus = StatusAbsent
	}
	if rec.LastPPEStatus == "" {
		rec.LastPPEStatus = PPEUnknown
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO workers (doc_id, worker_id, name, post, face_image_url, qr_code_url, attendance_status, last_ppe_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (doc_id) DO UPDATE SET
			name = EXCLUDED.name,
			post = EXCLUDED.post,
			face_image_url = CASE WHEN EXCLUDED.face_image_url <> '' THEN EXCLUDED.face_image_url ELSE workers.face_image_url END,
			qr_code_url = CASE WHEN EXCLUDED.qr_code_url <> '' THEN EXCLUDED.qr_code_url ELSE workers.qr_code_url END,
			updated_at = NOW()
	`, DocID(rec.WorkerID), rec.WorkerID, rec.Name, rec.Post, rec.FaceImageURL, rec.QRCodeURL, rec.AttendanceStatus, rec.LastPPEStatus)
	return err
}

// UpdateFaceImage replaces only the face reference image URL and drops the
// cached embedding so the next gallery build re-extracts it.
func (r *Repository) UpdateFaceImage(ctx context.Context, workerID, imageURL string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE workers
		SET face_image_url = $2, face_embedding = NULL, updated_at = NOW()
		WHERE doc_id = $1
	`, DocID(workerID), imageURL)
	return err
}

// UpdateEmbedding caches a face embedding extracted from the reference image.
func (r *Repository) UpdateEmbedding(ctx context.Context, workerID string, embedding []float32) error {
	data, err := json.Marshal(embedding)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE workers SET face_embedding = $2, updated_at = NOW() WHERE doc_id = $1
	`, DocID(workerID), data)
	return err
}

// MarkPresent records the latest attendance on the worker record itself.
func (r *Repository) MarkPresent(ctx context.Context, workerID string, at time.Time, ppeStatus string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE workers
		SET attendance_status = $2, last_attendance_at = $3, last_ppe_status = $4, updated_at = NOW()
		WHERE doc_id = $1
	`, DocID(workerID), StatusPresent, at, ppeStatus)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a worker record. Blob cleanup is the caller's concern.
func (r *Repository) Delete(ctx context.Context, workerID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM workers WHERE doc_id = $1`, DocID(workerID))
	return err
}

// UpsertDevice ensures a kiosk device record exists.
func (r *Repository) UpsertDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return errors.New("device id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (device_id)
		VALUES ($1)
		ON CONFLICT (device_id) DO NOTHING
	`, deviceID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*WorkerRecord, error) {
	var rec WorkerRecord
	var embedding []byte
	if err := row.Scan(&rec.WorkerID, &rec.Name, &rec.Post, &rec.FaceImageURL, &rec.QRCodeURL,
		&embedding, &rec.AttendanceStatus, &rec.LastAttendanceAt, &rec.LastPPEStatus,
		&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if len(embedding) > 0 {
		if err := json.Unmarshal(embedding, &rec.FaceEmbedding); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}
