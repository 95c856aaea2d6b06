package recording

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/kbukum/longscribe/enhancement"
	apperrors "github.com/kbukum/longscribe/errors"
	"github.com/kbukum/longscribe/logger"
	"github.com/kbukum/longscribe/observability"
	"github.com/kbukum/longscribe/validation"
)

// TranscriptResult is the outcome of processing one segment.
type TranscriptResult struct {
	SessionID     string `json:"sessionId"`
	SegmentNumber int    `json:"segmentNumber"`
	Transcript    string `json:"transcript"`
}

// Progress is the aggregate view of a session exposed by the status endpoint.
type Progress struct {
	Status             string  `json:"status"`
	TotalSegments      int     `json:"totalSegments"`
	ProcessedSegments  int     `json:"processedSegments"`
	ProgressPercentage float64 `json:"progressPercentage"`
	// CombinedText is present only when the session is completed.
	CombinedText string `json:"combinedText,omitempty"`
	Error        string `json:"error,omitempty"`
}

// EnhancedResult is the outcome of the enhancement pass.
type EnhancedResult struct {
	EnhancedText string `json:"enhancedText"`
	Status       string `json:"status"`
	// Total and Valid count the segments considered for the combined text.
	Total int `json:"total"`
	Valid int `json:"valid"`
}

// Orchestrator owns the session lifecycle: creation, submission, progress
// reporting and the final enhancement pass.
//
// Enhance caches: once a session completed enhancement, subsequent calls
// return the stored text without calling the backend again. Re-uploading a
// segment reverts the session out of completed and invalidates the cache.
type Orchestrator struct {
	reg      *Registry
	pipeline *Pipeline
	backends *enhancement.Registry
	metrics  *observability.Metrics
	log      *logger.Logger
}

// NewOrchestrator creates the session orchestrator.
func NewOrchestrator(reg *Registry, pipeline *Pipeline, backends *enhancement.Registry,
	metrics *observability.Metrics, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		reg:      reg,
		pipeline: pipeline,
		backends: backends,
		metrics:  metrics,
		log:      log.WithComponent("orchestrator"),
	}
}

// CreateSession validates the configuration and registers a new session.
func (o *Orchestrator) CreateSession(cfg SessionConfig) (Session, error) {
	if err := validation.Validate(cfg); err != nil {
		return Session{}, err
	}
	return o.reg.Create(cfg), nil
}

// PatchConfig overlays non-empty config fields onto an existing session.
func (o *Orchestrator) PatchConfig(sessionID string, patch SessionConfig) error {
	if err := validation.Validate(patch); err != nil {
		return err
	}
	return o.reg.PatchConfig(sessionID, patch)
}

// SubmitSegment stores the uploaded audio, runs the segment through the
// pipeline inline and returns its transcript. If the upload itself cannot
// be stored, nothing is registered; if processing fails, the segment stays
// registered in error status so it can be retried or re-uploaded.
func (o *Orchestrator) SubmitSegment(ctx context.Context, sessionID string, number int, ext string, audio io.Reader) (TranscriptResult, error) {
	if _, err := o.reg.AddSegment(ctx, sessionID, number, ext, audio); err != nil {
		return TranscriptResult{}, err
	}

	text, err := o.pipeline.Process(ctx, sessionID, number)
	if err != nil {
		return TranscriptResult{}, err
	}
	return TranscriptResult{
		SessionID:     sessionID,
		SegmentNumber: number,
		Transcript:    text,
	}, nil
}

// Progress reports the aggregate processing state of a session.
func (o *Orchestrator) Progress(sessionID string) (Progress, error) {
	sess, err := o.reg.Get(sessionID)
	if err != nil {
		return Progress{}, err
	}
	segments, err := o.reg.SegmentsOrdered(sessionID)
	if err != nil {
		return Progress{}, err
	}

	total := len(segments)
	completed := 0
	for _, seg := range segments {
		if seg.Status == SegmentStatusCompleted {
			completed++
		}
	}

	p := Progress{
		Status:            sess.Status,
		TotalSegments:     total,
		ProcessedSegments: completed,
		Error:             sess.Error,
	}
	if total > 0 {
		p.ProgressPercentage = float64(completed) / float64(total) * 100
	}
	if sess.Status == SessionStatusCompleted {
		p.CombinedText = sess.CombinedText
	}
	return p, nil
}

// Enhance assembles the ordered combined text and runs the enhancement
// backend over it. The pass is serialized per session; a completed session
// returns its cached enhanced text without another backend call.
func (o *Orchestrator) Enhance(ctx context.Context, sessionID string) (EnhancedResult, error) {
	sess, err := o.reg.get(sessionID)
	if err != nil {
		return EnhancedResult{}, err
	}

	sess.enhanceMu.Lock()
	defer sess.enhanceMu.Unlock()

	segments, err := o.reg.SegmentsOrdered(sessionID)
	if err != nil {
		return EnhancedResult{}, err
	}

	total := len(segments)
	valid := make([]Segment, 0, total)
	for _, seg := range segments {
		if seg.HasValidTranscription() {
			valid = append(valid, seg)
		} else {
			o.log.Warn("segment skipped during enhancement", logger.Fields(
				logger.FieldSessionID, sessionID,
				logger.FieldSegment, seg.Number,
				logger.FieldStatus, seg.Status,
			))
		}
	}
	if len(valid) == 0 {
		return EnhancedResult{}, apperrors.NoValidSegments(sessionID)
	}

	snapshot, err := o.reg.Get(sessionID)
	if err != nil {
		return EnhancedResult{}, err
	}
	if snapshot.Status == SessionStatusCompleted && snapshot.EnhancedText != "" {
		return EnhancedResult{
			EnhancedText: snapshot.EnhancedText,
			Status:       snapshot.Status,
			Total:        total,
			Valid:        len(valid),
		}, nil
	}

	combined := combineTranscripts(valid)
	if strings.TrimSpace(combined) == "" {
		return EnhancedResult{}, apperrors.EmptyCombinedText(sessionID)
	}

	backend, err := enhancement.Resolve(ctx, o.backends, snapshot.Config.EnhancementBackend)
	if err != nil {
		return EnhancedResult{}, err
	}

	enhanced, err := backend.Enhance(ctx, enhancement.EnhancementRequest{
		Text:           combined,
		TargetLanguage: snapshot.Config.TargetLanguageLabel,
		OutputType:     snapshot.Config.OutputType,
	})
	if err != nil {
		_ = o.reg.UpdateSession(sessionID, func(s *Session) {
			s.recordError(-1, err.Error())
		})
		return EnhancedResult{}, err
	}

	now := time.Now().UTC()
	_ = o.reg.UpdateSession(sessionID, func(s *Session) {
		s.CombinedText = combined
		s.EnhancedText = enhanced
		s.Status = SessionStatusCompleted
		s.CompletedAt = &now
		s.Error = ""
	})
	o.metrics.RecordSessionStatus(ctx, SessionStatusCompleted)
	o.log.Info("session enhanced", logger.Fields(
		logger.FieldSessionID, sessionID,
		"segments_total", total,
		"segments_valid", len(valid),
	))

	return EnhancedResult{
		EnhancedText: enhanced,
		Status:       SessionStatusCompleted,
		Total:        total,
		Valid:        len(valid),
	}, nil
}

// DeleteSession removes a session and its files.
func (o *Orchestrator) DeleteSession(ctx context.Context, sessionID string) error {
	return o.reg.Delete(ctx, sessionID)
}

// combineTranscripts joins valid transcripts ascending by segment number
// with a single-space separator. Input must already be sorted.
func combineTranscripts(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg.HasValidTranscription() {
			parts = append(parts, strings.TrimSpace(seg.Transcription))
		}
	}
	return strings.Join(parts, " ")
}
