package recording

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "github.com/kbukum/longscribe/errors"
	"github.com/kbukum/longscribe/logger"
	"github.com/kbukum/longscribe/observability"
	"github.com/kbukum/longscribe/resilience"
)

// BatchConfig configures the concurrent batch runner.
type BatchConfig struct {
	// Workers is the bounded worker pool width.
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// ApplyDefaults sets default values for unset fields.
func (c *BatchConfig) ApplyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 3
	}
}

// BatchResult summarizes one batch pass over a session.
type BatchResult struct {
	Status         string `json:"status"`
	ProcessedCount int    `json:"processedCount"`
	// FailedSegments lists segment numbers that failed this pass, including
	// segments that have exhausted their retry ceiling.
	FailedSegments []int `json:"failedSegments"`
	// CombinedText is set when every segment succeeded.
	CombinedText string `json:"combinedText,omitempty"`
}

// BatchRunner processes all unprocessed segments of a session concurrently
// under a bounded worker budget. Failures are isolated per segment: one
// segment's error never cancels sibling work.
type BatchRunner struct {
	reg      *Registry
	pipeline *Pipeline
	bulkhead *resilience.Bulkhead
	metrics  *observability.Metrics
	log      *logger.Logger
}

// NewBatchRunner creates a batch runner with the configured worker width.
func NewBatchRunner(cfg BatchConfig, reg *Registry, pipeline *Pipeline,
	metrics *observability.Metrics, log *logger.Logger) *BatchRunner {
	cfg.ApplyDefaults()
	return &BatchRunner{
		reg:      reg,
		pipeline: pipeline,
		bulkhead: resilience.NewBulkhead(resilience.BulkheadConfig{
			Name:          "batch-workers",
			MaxConcurrent: cfg.Workers,
		}),
		metrics: metrics,
		log:     log.WithComponent("batch"),
	}
}

// RunBatch processes every unprocessed segment of the session. Scheduling
// order is unconstrained; only result assembly is ordered. Segments at the
// retry ceiling are skipped and reported as permanently failed for this
// pass. Retries are pass-scoped: a failed segment is retried only by an
// explicit new RunBatch call.
func (r *BatchRunner) RunBatch(ctx context.Context, sessionID string) (BatchResult, error) {
	if _, err := r.reg.Get(sessionID); err != nil {
		return BatchResult{}, err
	}

	start := time.Now()
	if err := r.reg.UpdateSession(sessionID, func(s *Session) {
		s.Status = SessionStatusProcessing
	}); err != nil {
		return BatchResult{}, err
	}

	pending, err := r.reg.UnprocessedSegments(sessionID)
	if err != nil {
		return BatchResult{}, err
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		failed = make(map[int]error)
	)
	processed := 0

	for _, number := range pending {
		wg.Add(1)
		go func(number int) {
			defer wg.Done()
			err := r.bulkhead.Execute(ctx, func() error {
				_, perr := r.pipeline.Process(ctx, sessionID, number)
				return perr
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[number] = err
				return
			}
			processed++
		}(number)
	}
	wg.Wait()

	// Segments already past the retry ceiling did not run this pass but are
	// still permanently failed from the caller's point of view.
	segments, err := r.reg.SegmentsOrdered(sessionID)
	if err != nil {
		return BatchResult{}, err
	}
	for _, seg := range segments {
		if seg.Status == SegmentStatusError && seg.Attempts >= maxAttempts {
			if _, ok := failed[seg.Number]; !ok {
				failed[seg.Number] = apperrors.Validation(seg.Error)
			}
		}
	}

	result := BatchResult{ProcessedCount: processed}
	if len(failed) > 0 {
		result.Status = SessionStatusPartialFailure
		result.FailedSegments = sortedKeys(failed)
		_ = r.reg.UpdateSession(sessionID, func(s *Session) {
			s.Status = SessionStatusPartialFailure
		})
	} else {
		combined := combineTranscripts(segments)
		now := time.Now().UTC()
		_ = r.reg.UpdateSession(sessionID, func(s *Session) {
			s.Status = SessionStatusCompleted
			s.CombinedText = combined
			s.CompletedAt = &now
		})
		result.Status = SessionStatusCompleted
		result.CombinedText = combined
		r.metrics.RecordSessionStatus(ctx, SessionStatusCompleted)
	}

	r.metrics.RecordBatch(ctx, result.Status, time.Since(start))
	r.log.Info("batch pass finished", logger.Fields(
		logger.FieldSessionID, sessionID,
		logger.FieldStatus, result.Status,
		"processed", processed,
		"failed", len(result.FailedSegments),
		logger.FieldDuration, time.Since(start).Milliseconds(),
	))
	return result, nil
}

func sortedKeys(m map[int]error) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
