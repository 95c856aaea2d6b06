package recording

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/longscribe/converter"
	apperrors "github.com/kbukum/longscribe/errors"
	"github.com/kbukum/longscribe/logger"
	"github.com/kbukum/longscribe/observability"
	"github.com/kbukum/longscribe/storage"
	"github.com/kbukum/longscribe/transcription"
)

// Pipeline drives one segment through convert, transcribe, validate and
// commits the resulting state into the registry. It is the single
// processing path used both for inline submissions and batch workers.
type Pipeline struct {
	reg      *Registry
	conv     converter.Converter
	backends *transcription.Registry
	store    *storage.Store
	metrics  *observability.Metrics
	log      *logger.Logger
}

// NewPipeline creates a segment processing pipeline.
func NewPipeline(reg *Registry, conv converter.Converter, backends *transcription.Registry,
	store *storage.Store, metrics *observability.Metrics, log *logger.Logger) *Pipeline {
	return &Pipeline{
		reg:      reg,
		conv:     conv,
		backends: backends,
		store:    store,
		metrics:  metrics,
		log:      log.WithComponent("pipeline"),
	}
}

// Process runs the full pipeline for one segment and returns its validated
// transcript. On any failure the segment is left in error status with the
// message captured and its attempt counter incremented; sibling segments
// are never touched.
func (p *Pipeline) Process(ctx context.Context, sessionID string, number int) (string, error) {
	sess, err := p.reg.Get(sessionID)
	if err != nil {
		return "", err
	}
	if _, err := p.reg.GetSegment(sessionID, number); err != nil {
		return "", err
	}

	unlock, err := p.reg.LockSegment(sessionID, number)
	if err != nil {
		return "", err
	}
	defer unlock()

	ctx, span := observability.StartSpan(ctx, "segment.process", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.Int("segment.number", number),
	))
	defer span.End()

	start := time.Now()
	text, err := p.run(ctx, sess, number)
	if err != nil {
		p.reg.RecordFailure(sessionID, number, err)
		p.metrics.RecordSegmentFailed(ctx, string(apperrors.CodeOf(err)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.log.Error("segment processing failed", logger.Fields(
			logger.FieldSessionID, sessionID,
			logger.FieldSegment, number,
			logger.FieldError, err.Error(),
		))
		return "", err
	}

	p.metrics.RecordSegmentProcessed(ctx, time.Since(start))
	p.log.Info("segment processed", logger.Fields(
		logger.FieldSessionID, sessionID,
		logger.FieldSegment, number,
		logger.FieldDuration, time.Since(start).Milliseconds(),
	))
	return text, nil
}

// run performs the convert, transcribe and validate steps. The caller holds
// the segment's processing lock.
func (p *Pipeline) run(ctx context.Context, sess Session, number int) (string, error) {
	seg, err := p.reg.GetSegment(sess.ID, number)
	if err != nil {
		return "", err
	}

	if err := p.reg.UpdateSegment(sess.ID, number, func(s *Segment) {
		s.Status = SegmentStatusConverting
		s.Error = ""
	}); err != nil {
		return "", err
	}

	size, err := p.store.FileSize(ctx, seg.RawPath)
	if err != nil {
		return "", apperrors.InvalidInput("audio", "uploaded segment file is missing").WithCause(err)
	}
	if size == 0 {
		return "", apperrors.InvalidInput("audio", "uploaded segment file is empty")
	}

	convertedPath, err := p.conv.Convert(ctx, seg.RawPath)
	if err != nil {
		return "", err
	}

	if err := p.reg.UpdateSegment(sess.ID, number, func(s *Segment) {
		s.ConvertedPath = convertedPath
		s.Status = SegmentStatusTranscribing
	}); err != nil {
		return "", err
	}

	backend, err := transcription.Resolve(ctx, p.backends, sess.Config.TranscriptionBackend)
	if err != nil {
		return "", err
	}

	resp, err := backend.Transcribe(ctx, transcription.TranscriptionRequest{
		AudioPath: convertedPath,
		Language:  sess.Config.SourceLanguage,
	})
	if err != nil {
		return "", err
	}

	text, err := transcription.ValidateText(resp)
	if err != nil {
		return "", err
	}

	if err := p.reg.UpdateSegment(sess.ID, number, func(s *Segment) {
		s.Transcription = text
		s.Status = SegmentStatusCompleted
		s.Processed = true
		s.Error = ""
	}); err != nil {
		return "", err
	}
	return text, nil
}
