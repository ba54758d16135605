package directory

import "time"

// Attendance status values stored on a worker record.
const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
)

// Last PPE verdict values stored on a worker record.
const (
	PPECompliant    = "compliant"
	PPENonCompliant = "non_compliant"
	PPEUnknown      = "unknown"
)

// docIDPrefix is the document key convention: records are keyed by
// "worker_" + workerID, matching the QR payload and gallery labels.
const docIDPrefix = "worker_"

// WorkerRecord is one worker in the identity directory. WorkerID is
// human-assigned and immutable once the record exists.
type WorkerRecord struct {
	WorkerID         string     `json:"worker_id"`
	Name             string     `json:"name"`
	Post             string     `json:"post"`
	FaceImageURL     string     `json:"face_image_url,omitempty"`
	QRCodeURL        string     `json:"qr_code_url,omitempty"`
	FaceEmbedding    []float32  `json:"-"`
	AttendanceStatus string     `json:"attendance_status"`
	LastAttendanceAt *time.Time `json:"last_attendance_at,omitempty"`
	LastPPEStatus    string     `json:"last_ppe_status"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// DocID derives the directory document key for a worker id.
func DocID(workerID string) string { return docIDPrefix + workerID }
