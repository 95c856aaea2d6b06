// Package recording implements the long-recording orchestration core: the
// session/segment registry, the per-segment processing pipeline, the session
// orchestrator that assembles and enhances the final text, and the bounded
// concurrent batch runner.
package recording

import (
	"strings"
	"sync"
	"time"
)

// Session status values, in lifecycle order. Error and PartialFailure form a
// parallel branch reachable from any non-terminal state.
const (
	SessionStatusRecording           = "recording"
	SessionStatusProcessing          = "processing"
	SessionStatusReadyForEnhancement = "ready_for_enhancement"
	SessionStatusCompleted           = "completed"
	SessionStatusPartialFailure      = "partial_failure"
	SessionStatusError               = "error"
)

// Segment status values.
const (
	SegmentStatusUploaded     = "uploaded"
	SegmentStatusConverting   = "converting"
	SegmentStatusTranscribing = "transcribing"
	SegmentStatusCompleted    = "completed"
	SegmentStatusError        = "error"
)

// maxAttempts is the per-segment retry ceiling. A segment that has failed
// this many times is no longer returned as unprocessed; re-submitting the
// segment resets the counter.
const maxAttempts = 3

// SessionConfig is the per-session processing configuration. Individual keys
// may be patched by later segment uploads.
type SessionConfig struct {
	// SourceLanguage is the ISO language code of the audio (e.g. "it").
	SourceLanguage string `json:"sourceLanguage" mapstructure:"sourceLanguage"`
	// TargetLanguage is the ISO code of the enhancement target language.
	TargetLanguage string `json:"targetLanguage" mapstructure:"targetLanguage"`
	// TargetLanguageLabel is the human-readable label passed to the
	// enhancement backend (e.g. "English").
	TargetLanguageLabel string `json:"targetLanguageLabel" mapstructure:"targetLanguageLabel"`
	// OutputType is the desired output style of the enhanced text.
	OutputType string `json:"outputType" mapstructure:"outputType"`
	// TranscriptionBackend selects the transcription backend mode.
	TranscriptionBackend string `json:"transcriptionModel" mapstructure:"transcriptionModel" validate:"omitempty,oneof=local remote"`
	// EnhancementBackend selects the enhancement backend mode.
	EnhancementBackend string `json:"enhancementModel" mapstructure:"enhancementModel" validate:"omitempty,oneof=local remote"`
}

// ApplyDefaults fills unset config fields with their defaults.
func (c *SessionConfig) ApplyDefaults() {
	if c.SourceLanguage == "" {
		c.SourceLanguage = "it"
	}
	if c.TargetLanguage == "" {
		c.TargetLanguage = "en"
	}
	if c.TargetLanguageLabel == "" {
		c.TargetLanguageLabel = "English"
	}
	if c.OutputType == "" {
		c.OutputType = "transcript"
	}
	if c.TranscriptionBackend == "" {
		c.TranscriptionBackend = "local"
	}
	if c.EnhancementBackend == "" {
		c.EnhancementBackend = "local"
	}
}

// Patch overlays the non-empty fields of p onto the config.
func (c *SessionConfig) Patch(p SessionConfig) {
	if p.SourceLanguage != "" {
		c.SourceLanguage = p.SourceLanguage
	}
	if p.TargetLanguage != "" {
		c.TargetLanguage = p.TargetLanguage
	}
	if p.TargetLanguageLabel != "" {
		c.TargetLanguageLabel = p.TargetLanguageLabel
	}
	if p.OutputType != "" {
		c.OutputType = p.OutputType
	}
	if p.TranscriptionBackend != "" {
		c.TranscriptionBackend = p.TranscriptionBackend
	}
	if p.EnhancementBackend != "" {
		c.EnhancementBackend = p.EnhancementBackend
	}
}

// Segment is one short audio chunk of a session, identified by its
// application-supplied segment number.
type Segment struct {
	// Number is the non-negative ordering key, unique within the session.
	Number int `json:"segmentNumber"`
	// Status is the segment lifecycle status.
	Status string `json:"status"`
	// RawPath is the stored raw upload.
	RawPath string `json:"-"`
	// ConvertedPath is the canonical PCM file, set once conversion succeeds.
	ConvertedPath string `json:"-"`
	// Transcription is the validated transcript, set once transcription succeeds.
	Transcription string `json:"transcription,omitempty"`
	// Error holds the failure message when Status is error.
	Error string `json:"error,omitempty"`
	// Attempts counts failed processing attempts toward the retry ceiling.
	Attempts int `json:"attempts"`
	// Processed marks the segment as handled by a processing pass.
	Processed bool `json:"processed"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasValidTranscription reports whether the segment completed with a
// transcript that is non-empty after trimming.
func (s *Segment) HasValidTranscription() bool {
	return s.Status == SegmentStatusCompleted && strings.TrimSpace(s.Transcription) != ""
}

// SessionError is one entry of a session's error history.
type SessionError struct {
	Time    time.Time `json:"time"`
	Segment int       `json:"segment"`
	Message string    `json:"message"`
}

// Session is one long-recording job: ordered segments plus shared config.
// All mutation goes through the Registry, which serializes access per
// session; the struct itself carries the locks.
type Session struct {
	ID     string        `json:"sessionId"`
	Config SessionConfig `json:"config"`
	Status string        `json:"status"`
	// CombinedText is the ascending-order join of valid transcripts, set by
	// a fully successful batch pass.
	CombinedText string `json:"combinedText,omitempty"`
	// EnhancedText is present only once enhancement completes.
	EnhancedText string `json:"enhancedText,omitempty"`
	// Error is the most recent session-level failure message.
	Error string `json:"error,omitempty"`
	// Errors is the accumulated failure history.
	Errors []SessionError `json:"errors,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	segments map[int]*Segment

	// mu guards all mutable session and segment state.
	mu sync.Mutex
	// enhanceMu serializes enhance passes so two concurrent calls cannot
	// interleave partial state. Held across the backend call.
	enhanceMu sync.Mutex
	// segmentMu holds per-segment locks enforcing single-writer-per-segment.
	segmentMu map[int]*sync.Mutex
}

// evaluateReadiness recomputes the session's aggregate readiness. Caller
// must hold mu. A session becomes ready_for_enhancement only when every
// registered segment completed with a valid transcript; adding a segment to
// a ready session reverts it to recording until that segment completes too.
func (s *Session) evaluateReadiness() {
	if s.Status == SessionStatusCompleted || s.Status == SessionStatusError {
		return
	}
	if len(s.segments) == 0 {
		return
	}
	for _, seg := range s.segments {
		if !seg.HasValidTranscription() {
			if s.Status == SessionStatusReadyForEnhancement {
				s.Status = SessionStatusRecording
			}
			return
		}
	}
	s.Status = SessionStatusReadyForEnhancement
}

// recordError appends a failure to the session error history. Caller must
// hold mu.
func (s *Session) recordError(segment int, msg string) {
	s.Error = msg
	s.Errors = append(s.Errors, SessionError{
		Time:    time.Now().UTC(),
		Segment: segment,
		Message: msg,
	})
}
