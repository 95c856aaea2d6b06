package recording

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/kbukum/longscribe/errors"
	"github.com/kbukum/longscribe/logger"
	"github.com/kbukum/longscribe/storage"
)

// Registry is the single source of truth for session and segment state.
// All mutation goes through it; readers get copies, never live pointers.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	store *storage.Store
	log   *logger.Logger
}

// NewRegistry creates an empty session registry backed by the given store.
func NewRegistry(store *storage.Store, log *logger.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		store:    store,
		log:      log.WithComponent("registry"),
	}
}

// Create registers a new session with the given configuration and returns
// a snapshot of it.
func (r *Registry) Create(cfg SessionConfig) Session {
	cfg.ApplyDefaults()
	now := time.Now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		Config:    cfg,
		Status:    SessionStatusRecording,
		CreatedAt: now,
		UpdatedAt: now,
		segments:  make(map[int]*Segment),
		segmentMu: make(map[int]*sync.Mutex),
	}

	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.mu.Unlock()

	r.log.Info("session created", logger.Fields(logger.FieldSessionID, sess.ID))
	return snapshotSession(sess)
}

// get returns the live session pointer.
func (r *Registry) get(id string) (*Session, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.NotFound("session", id)
	}
	return sess, nil
}

// Get returns a snapshot of the session.
func (r *Registry) Get(id string) (Session, error) {
	sess, err := r.get(id)
	if err != nil {
		return Session{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return snapshotSession(sess), nil
}

// Delete tears a session down: it is removed from the registry and all of
// its files are deleted. Cleanup failures are logged, never fatal.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	_, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return apperrors.NotFound("session", id)
	}

	if err := r.store.RemoveSession(ctx, id); err != nil {
		r.log.Warn("session file cleanup failed", logger.Fields(
			logger.FieldSessionID, id,
			logger.FieldError, err.Error(),
		))
	}
	r.log.Info("session deleted", logger.Fields(logger.FieldSessionID, id))
	return nil
}

// UpdateSession applies a mutation to the session under its lock.
func (r *Registry) UpdateSession(id string, mutate func(*Session)) error {
	sess, err := r.get(id)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	mutate(sess)
	sess.UpdatedAt = time.Now().UTC()
	return nil
}

// PatchConfig overlays non-empty fields of patch onto the session config.
func (r *Registry) PatchConfig(id string, patch SessionConfig) error {
	return r.UpdateSession(id, func(s *Session) {
		s.Config.Patch(patch)
	})
}

// AddSegment stores the uploaded audio and registers the segment. Uploading
// an existing segment number replaces its file and resets the segment to
// uploaded, which also reverts session readiness until it completes again.
func (r *Registry) AddSegment(ctx context.Context, sessionID string, number int, ext string, src io.Reader) (Segment, error) {
	if number < 0 {
		return Segment{}, apperrors.InvalidInput("segmentNumber", "segment number must be non-negative")
	}
	sess, err := r.get(sessionID)
	if err != nil {
		return Segment{}, err
	}

	rawPath, err := r.store.SaveSegment(ctx, sessionID, number, ext, src)
	if err != nil {
		return Segment{}, apperrors.Internal(err)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	now := time.Now().UTC()
	seg, exists := sess.segments[number]
	if exists {
		// Re-upload: drop the stale converted file and start over.
		if seg.ConvertedPath != "" && seg.ConvertedPath != rawPath {
			if rmErr := r.store.Remove(ctx, seg.ConvertedPath); rmErr != nil {
				r.log.Warn("stale converted file cleanup failed", logger.Fields(
					logger.FieldSessionID, sessionID,
					logger.FieldSegment, number,
					logger.FieldError, rmErr.Error(),
				))
			}
		}
		seg.RawPath = rawPath
		seg.ConvertedPath = ""
		seg.Transcription = ""
		seg.Error = ""
		seg.Status = SegmentStatusUploaded
		seg.Attempts = 0
		seg.Processed = false
		seg.UpdatedAt = now
	} else {
		seg = &Segment{
			Number:    number,
			Status:    SegmentStatusUploaded,
			RawPath:   rawPath,
			CreatedAt: now,
			UpdatedAt: now,
		}
		sess.segments[number] = seg
		sess.segmentMu[number] = &sync.Mutex{}
	}

	// New audio invalidates any finished result.
	if sess.Status == SessionStatusCompleted {
		sess.Status = SessionStatusRecording
		sess.CombinedText = ""
		sess.EnhancedText = ""
		sess.CompletedAt = nil
	}
	sess.evaluateReadiness()
	sess.UpdatedAt = now
	return *seg, nil
}

// GetSegment returns a snapshot of the segment.
func (r *Registry) GetSegment(sessionID string, number int) (Segment, error) {
	sess, err := r.get(sessionID)
	if err != nil {
		return Segment{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	seg, ok := sess.segments[number]
	if !ok {
		return Segment{}, apperrors.NotFound("segment", sessionID)
	}
	return *seg, nil
}

// UpdateSegment applies a mutation to one segment under the session lock
// and re-evaluates session readiness afterwards.
func (r *Registry) UpdateSegment(sessionID string, number int, mutate func(*Segment)) error {
	sess, err := r.get(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	seg, ok := sess.segments[number]
	if !ok {
		return apperrors.NotFound("segment", sessionID)
	}
	mutate(seg)
	now := time.Now().UTC()
	seg.UpdatedAt = now
	sess.UpdatedAt = now
	sess.evaluateReadiness()
	return nil
}

// LockSegment acquires the exclusive processing lock for one segment, so a
// given (session, segmentNumber) pair is never processed by two workers at
// once. The returned function releases the lock.
func (r *Registry) LockSegment(sessionID string, number int) (func(), error) {
	sess, err := r.get(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	mu, ok := sess.segmentMu[number]
	sess.mu.Unlock()
	if !ok {
		return nil, apperrors.NotFound("segment", sessionID)
	}
	mu.Lock()
	return mu.Unlock, nil
}

// SegmentsOrdered returns segment snapshots sorted ascending by number.
func (r *Registry) SegmentsOrdered(sessionID string) ([]Segment, error) {
	sess, err := r.get(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]Segment, 0, len(sess.segments))
	for _, seg := range sess.segments {
		out = append(out, *seg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// UnprocessedSegments returns ascending numbers of segments that are not yet
// processed and still below the retry ceiling.
func (r *Registry) UnprocessedSegments(sessionID string) ([]int, error) {
	segments, err := r.SegmentsOrdered(sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, len(segments))
	for _, seg := range segments {
		if !seg.Processed && seg.Attempts < maxAttempts {
			out = append(out, seg.Number)
		}
	}
	return out, nil
}

// RecordFailure marks a segment failed: status error, attempt counter
// incremented, message captured on both the segment and the session history.
func (r *Registry) RecordFailure(sessionID string, number int, failure error) {
	msg := failure.Error()
	err := r.UpdateSegment(sessionID, number, func(seg *Segment) {
		seg.Status = SegmentStatusError
		seg.Error = msg
		seg.Attempts++
	})
	if err != nil {
		r.log.Warn("could not record segment failure", logger.Fields(
			logger.FieldSessionID, sessionID,
			logger.FieldSegment, number,
			logger.FieldError, err.Error(),
		))
		return
	}
	_ = r.UpdateSession(sessionID, func(s *Session) {
		s.recordError(number, msg)
	})
}

// snapshotSession copies the exported state of a session, including deep
// copies of the slices. Caller must hold sess.mu (or own the session).
func snapshotSession(sess *Session) Session {
	out := Session{
		ID:           sess.ID,
		Config:       sess.Config,
		Status:       sess.Status,
		CombinedText: sess.CombinedText,
		EnhancedText: sess.EnhancedText,
		Error:        sess.Error,
		CreatedAt:    sess.CreatedAt,
		UpdatedAt:    sess.UpdatedAt,
	}
	if sess.CompletedAt != nil {
		t := *sess.CompletedAt
		out.CompletedAt = &t
	}
	if len(sess.Errors) > 0 {
		out.Errors = append([]SessionError(nil), sess.Errors...)
	}
	return out
}
