// Package pipeline drives the three-stage check-in verification flow:
// QR identification, face-match confirmation, PPE detection, then a single
// attendance commit.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"sitecheck/internal/directory"
	"sitecheck/internal/facematch"
	"sitecheck/internal/frame"
	"sitecheck/internal/metrics"
	"sitecheck/internal/ppe"
	"sitecheck/internal/qrscan"
	"sitecheck/internal/recorder"
)

// State is the pipeline's current stage. The stages are mutually exclusive
// in time: only the active stage consumes frames.
type State string

const (
	StateAwaitingQR   State = "awaiting_qr"
	StateAwaitingFace State = "awaiting_face_match"
	StateAwaitingPPE  State = "awaiting_ppe"
	StateCompleted    State = "completed"
)

const defaultMessage = "Scan worker badge to begin"

// Decoder extracts QR payloads from frames.
type Decoder interface {
	Decode(f *frame.Frame) qrscan.Result
}

// Matcher labels faces in live frames against the reference gallery.
type Matcher interface {
	EnsureGallery(ctx context.Context) error
	Match(ctx context.Context, f *frame.Frame) ([]facematch.Match, error)
}

// Detector runs PPE object detection over an encoded frame.
type Detector interface {
	Detect(ctx context.Context, imageDataURL string) ([]ppe.Detection, error)
}

// Directory is the worker identity store the pipeline consults.
// *directory.Repository satisfies it.
type Directory interface {
	Exists(ctx context.Context, workerID string) (bool, error)
	Get(ctx context.Context, workerID string) (*directory.WorkerRecord, error)
}

// Recorder commits the final attendance decision.
type Recorder interface {
	Record(ctx context.Context, evt recorder.AttendanceEvent) error
}

// Config tunes pipeline timing and the required equipment set.
type Config struct {
	// PollInterval is the minimum gap between scans within one stage, so
	// a fast frame source does not turn the stage into a busy loop.
	PollInterval time.Duration
	// NotFoundCooldown pauses QR scanning after an unknown badge so the
	// operator can read the message before the next attempt.
	NotFoundCooldown time.Duration
	// FaceStageTimeout aborts the session when no confirmation arrives in
	// time. Zero disables it. The legacy flow had no such timeout; this is
	// a deliberate policy addition.
	FaceStageTimeout time.Duration
	// RequiredPPE is the fixed equipment set checked at the PPE stage.
	RequiredPPE []string
}

// Snapshot is the observable session state for the host UI.
type Snapshot struct {
	State             State           `json:"state"`
	ClaimedWorkerID   string          `json:"claimed_worker_id,omitempty"`
	ConfirmedWorkerID string          `json:"confirmed_worker_id,omitempty"`
	Message           string          `json:"message"`
	PPE               *ppe.Compliance `json:"ppe,omitempty"`
	StartedAt         time.Time       `json:"started_at"`
}

// Pipeline is the state machine for one video stream. Exactly one session
// is active per stream; OnFrame serializes all stage work under the lock so
// a directory read or recorder write in flight blocks further progress.
type Pipeline struct {
	cfg      Config
	decoder  Decoder
	matcher  Matcher
	detector Detector
	dir      Directory
	rec      Recorder

	mu    sync.Mutex
	gen   uint64 // bumped on Start/Reset; stale timer callbacks check it
	timer *time.Timer

	state        State
	claimed      string
	confirmed    string
	claimedName  string
	claimedPost  string
	ppeResult    *ppe.Compliance
	message      string
	startedAt    time.Time
	lastScan     time.Time
	cooldown     time.Time
	faceDeadline time.Time
	recorded     bool
}

// New creates a pipeline. Call Start before feeding frames.
func New(cfg Config, decoder Decoder, matcher Matcher, detector Detector, dir Directory, rec Recorder) *Pipeline {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.NotFoundCooldown <= 0 {
		cfg.NotFoundCooldown = 3 * time.Second
	}
	p := &Pipeline{
		cfg:      cfg,
		decoder:  decoder,
		matcher:  matcher,
		detector: detector,
		dir:      dir,
		rec:      rec,
	}
	p.state = StateAwaitingQR
	p.message = defaultMessage
	return p
}

// Start begins a session, discarding any previous one.
func (p *Pipeline) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	metrics.SessionsStarted.Inc()
}

// Reset returns the session to AwaitingQR from any state, clearing the
// claim, confirmation and PPE result, and cancelling pending timers.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
}

func (p *Pipeline) resetLocked() {
	p.gen++
	p.cancelTimerLocked()
	p.state = StateAwaitingQR
	p.claimed = ""
	p.confirmed = ""
	p.claimedName = ""
	p.claimedPost = ""
	p.ppeResult = nil
	p.recorded = false
	p.message = defaultMessage
	p.startedAt = time.Now().UTC()
	p.lastScan = time.Time{}
	p.cooldown = time.Time{}
	p.faceDeadline = time.Time{}
}

// Snapshot returns the observable session state.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		State:             p.state,
		ClaimedWorkerID:   p.claimed,
		ConfirmedWorkerID: p.confirmed,
		Message:           p.message,
		PPE:               p.ppeResult,
		StartedAt:         p.startedAt,
	}
}

// OnFrame feeds one captured frame into whichever stage is active.
func (p *Pipeline) OnFrame(ctx context.Context, f *frame.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	// A source that has not produced readable dimensions yet is "keep
	// trying", not an error.
	if f.Empty() {
		return nil
	}

	switch p.state {
	case StateAwaitingQR:
		p.scanQRLocked(ctx, f)
	case StateAwaitingFace:
		p.scanFaceLocked(ctx, f)
	case StateAwaitingPPE:
		p.scanPPELocked(ctx, f)
	case StateCompleted:
		// Session is over; the host resets or reloads.
	}
	return nil
}

// throttleLocked enforces the per-stage poll interval.
func (p *Pipeline) throttleLocked(now time.Time) bool {
	if now.Sub(p.lastScan) < p.cfg.PollInterval {
		return true
	}
	p.lastScan = now
	return false
}

func (p *Pipeline) scanQRLocked(ctx context.Context, f *frame.Frame) {
	now := time.Now()
	if now.Before(p.cooldown) || p.throttleLocked(now) {
		return
	}

	res := p.decoder.Decode(f)
	if !res.Found {
		return
	}
	id, ok := qrscan.ParseWorkerID(res.Payload)
	if !ok {
		p.holdOffLocked("Unreadable badge, try again")
		return
	}

	p.message = fmt.Sprintf("QR detected, verifying worker %s...", id)
	exists, err := p.dir.Exists(ctx, id)
	if err != nil {
		log.Printf("directory lookup for worker %s failed: %v", id, err)
		p.holdOffLocked("Worker directory unavailable, try again")
		return
	}
	if !exists {
		p.holdOffLocked(fmt.Sprintf("Worker %s not found", id))
		return
	}

	p.claimed = id
	p.state = StateAwaitingFace
	p.lastScan = time.Time{}
	p.message = "Worker identified. Look at the camera for face verification"
	if p.cfg.FaceStageTimeout > 0 {
		p.faceDeadline = now.Add(p.cfg.FaceStageTimeout)
		p.scheduleLocked(p.cfg.FaceStageTimeout, func() {
			p.abortLocked("Face verification timed out")
		})
	}
}

func (p *Pipeline) scanFaceLocked(ctx context.Context, f *frame.Frame) {
	now := time.Now()
	if !p.faceDeadline.IsZero() && now.After(p.faceDeadline) {
		p.abortLocked("Face verification timed out")
		return
	}
	if p.throttleLocked(now) {
		return
	}

	// Gallery construction is expensive and only needed once a claim is
	// live, so it is built lazily here. Failure is recoverable.
	if err := p.matcher.EnsureGallery(ctx); err != nil {
		log.Printf("face gallery build failed: %v", err)
		p.message = "Face gallery unavailable, retrying"
		return
	}

	matches, err := p.matcher.Match(ctx, f)
	if err != nil {
		log.Printf("face match failed: %v", err)
		p.message = "Face service unavailable, retrying"
		return
	}

	mismatch := false
	for _, m := range matches {
		if !m.Confident() {
			continue
		}
		if m.Label != p.claimed {
			// A different known worker in frame is not fatal: the right
			// person may simply not be facing the camera yet.
			mismatch = true
			continue
		}

		// Identity consistency holds; re-read the record in case it was
		// deleted between claim and confirmation.
		rec, err := p.dir.Get(ctx, p.claimed)
		if err != nil {
			log.Printf("directory read for worker %s failed: %v", p.claimed, err)
			p.message = "Worker directory unavailable, retrying"
			return
		}
		if rec == nil {
			p.abortLocked(fmt.Sprintf("Worker %s no longer exists", p.claimed))
			return
		}

		p.confirmed = m.Label
		p.claimedName, p.claimedPost = rec.Name, rec.Post
		p.state = StateAwaitingPPE
		p.cancelTimerLocked()
		p.faceDeadline = time.Time{}
		p.lastScan = time.Time{}
		p.message = "Face confirmed. Scanning for required PPE"
		// Only the first face matching the claim counts; one worker per
		// stream.
		return
	}

	if mismatch {
		metrics.FaceMismatches.Inc()
		p.message = "Face doesn't match the QR that was scanned"
	} else {
		p.message = "Looking for a matching face"
	}
}

// scanPPELocked runs a single detection pass and completes the session
// regardless of the verdict; non-compliance is recorded, not rejected.
func (p *Pipeline) scanPPELocked(ctx context.Context, f *frame.Frame) {
	var verdict ppe.Compliance
	dataURL, err := f.DataURL()
	if err != nil {
		log.Printf("encode ppe frame failed: %v", err)
		verdict = ppe.Unavailable()
	} else if detections, err := p.detector.Detect(ctx, dataURL); err != nil {
		log.Printf("ppe detection failed: %v", err)
		verdict = ppe.Unavailable()
	} else {
		verdict = ppe.Evaluate(p.cfg.RequiredPPE, detections)
	}

	p.ppeResult = &verdict
	p.completeLocked(ctx)
}

func (p *Pipeline) completeLocked(ctx context.Context) {
	if p.recorded {
		return
	}
	p.recorded = true
	p.state = StateCompleted

	verdict := p.ppeResult
	evt := recorder.AttendanceEvent{
		WorkerID:      p.confirmed,
		Name:          p.claimedName,
		Post:          p.claimedPost,
		OccurredAt:    time.Now().UTC(),
		PPECompliant:  verdict.Compliant,
		PPEViolations: verdict.Violations,
	}
	if err := p.rec.Record(ctx, evt); err != nil {
		// Attendance write failure is logged, never fatal; the operator
		// still sees the verdict.
		log.Printf("attendance record failed for worker %s: %v", p.confirmed, err)
	}

	metrics.SessionsCompleted.Inc()
	if verdict.Compliant {
		metrics.ComplianceResults.WithLabelValues("compliant").Inc()
		p.message = fmt.Sprintf("Attendance recorded for %s. PPE verified", p.claimedName)
	} else {
		metrics.ComplianceResults.WithLabelValues("non_compliant").Inc()
		p.message = fmt.Sprintf("Attendance recorded for %s. PPE verification failed: %s",
			p.claimedName, describeViolations(verdict.Violations))
	}
}

// abortLocked surfaces an error to the operator and returns the session to
// AwaitingQR with all claim state cleared.
func (p *Pipeline) abortLocked(msg string) {
	metrics.SessionsAborted.Inc()
	p.claimed = ""
	p.confirmed = ""
	p.claimedName = ""
	p.claimedPost = ""
	p.ppeResult = nil
	p.faceDeadline = time.Time{}
	p.state = StateAwaitingQR
	p.holdOffLocked(msg)
}

// holdOffLocked shows a message and pauses QR scanning for the cool-down,
// restoring the idle prompt afterwards.
func (p *Pipeline) holdOffLocked(msg string) {
	p.message = msg
	p.cooldown = time.Now().Add(p.cfg.NotFoundCooldown)
	p.scheduleLocked(p.cfg.NotFoundCooldown, func() {
		if p.state == StateAwaitingQR {
			p.message = defaultMessage
		}
	})
}

// scheduleLocked arms the single retry timer, cancelling any pending one
// first. The callback is dropped if the session generation changed, so a
// stale timer from before a Reset can never mutate the new session.
func (p *Pipeline) scheduleLocked(d time.Duration, fn func()) {
	p.cancelTimerLocked()
	gen := p.gen
	p.timer = time.AfterFunc(d, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.gen != gen {
			return
		}
		p.timer = nil
		fn()
	})
}

func (p *Pipeline) cancelTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// describeViolations turns ["no_vest","no_gloves"] into "missing vest, gloves".
func describeViolations(violations []string) string {
	if len(violations) == 0 {
		return "unknown"
	}
	var missing []string
	for _, v := range violations {
		if v == ppe.ViolationServiceUnavailable {
			return "detection service unavailable"
		}
		missing = append(missing, strings.TrimPrefix(v, "no_"))
	}
	return "missing " + strings.Join(missing, ", ")
}
