package recording

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kbukum/longscribe/enhancement"
	apperrors "github.com/kbukum/longscribe/errors"
	"github.com/kbukum/longscribe/logger"
	"github.com/kbukum/longscribe/storage"
	"github.com/kbukum/longscribe/transcription"
)

// segmentNumberFromPath recovers the segment number from a stored file name
// of the form <session>_<number>.<ext>.
func segmentNumberFromPath(path string) int {
	base := filepath.Base(path)
	underscore := strings.LastIndex(base, "_")
	dot := strings.Index(base[underscore:], ".")
	if underscore < 0 || dot < 0 {
		return -1
	}
	n, err := strconv.Atoi(base[underscore+1 : underscore+dot])
	if err != nil {
		return -1
	}
	return n
}

// fakeConverter pretends conversion succeeded by returning the raw path,
// or fails for configured segment numbers.
type fakeConverter struct {
	failNumbers map[int]bool
}

func (f *fakeConverter) Convert(_ context.Context, rawPath string) (string, error) {
	if f.failNumbers[segmentNumberFromPath(rawPath)] {
		return "", apperrors.ConversionFailed("simulated ffmpeg failure", nil)
	}
	return rawPath, nil
}

// fakeTranscriber returns canned text per segment number and can be told to
// fail specific segments. It also tracks peak concurrency and can hold each
// call open for a while to widen race windows.
type fakeTranscriber struct {
	mu          sync.Mutex
	texts       map[int]string
	failNumbers map[int]bool
	delay       time.Duration
	calls       int
	inFlight    int
	maxInFlight int
}

func (f *fakeTranscriber) Name() string                       { return "fake-stt" }
func (f *fakeTranscriber) IsAvailable(_ context.Context) bool { return true }

func (f *fakeTranscriber) Transcribe(_ context.Context, req transcription.TranscriptionRequest) (*transcription.TranscriptionResponse, error) {
	n := segmentNumberFromPath(req.AudioPath)

	f.mu.Lock()
	f.calls++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	fail := f.failNumbers[n]
	text := f.texts[n]
	delay := f.delay
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if delay > 0 {
		time.Sleep(delay)
	}

	if fail {
		return nil, apperrors.TranscriptionBackend("fake-stt", fmt.Errorf("simulated backend outage"))
	}
	return &transcription.TranscriptionResponse{Text: text}, nil
}

// fakeEnhancer prefixes the combined text and counts backend calls.
type fakeEnhancer struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *fakeEnhancer) Name() string                       { return "fake-llm" }
func (f *fakeEnhancer) IsAvailable(_ context.Context) bool { return true }

func (f *fakeEnhancer) Enhance(_ context.Context, req enhancement.EnhancementRequest) (string, error) {
	f.mu.Lock()
	f.calls++
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return "", apperrors.EnhancementBackend("fake-llm", fmt.Errorf("simulated backend outage"))
	}
	return "ENHANCED: " + req.Text, nil
}

func (f *fakeTranscriber) peakInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}

func (f *fakeEnhancer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newAudioReader(content string) *strings.Reader {
	return strings.NewReader(content)
}

// env wires the full orchestration core with fake backends.
type env struct {
	store *storage.Store
	reg   *Registry
	pipe  *Pipeline
	orc   *Orchestrator
	batch *BatchRunner
	conv  *fakeConverter
	stt   *fakeTranscriber
	enh   *fakeEnhancer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store, err := storage.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	log := logger.NewDefault("test")

	conv := &fakeConverter{failNumbers: map[int]bool{}}
	stt := &fakeTranscriber{texts: map[int]string{}, failNumbers: map[int]bool{}}
	enh := &fakeEnhancer{}

	sttReg := transcription.NewRegistry()
	sttReg.Set(transcription.ModeLocal, stt)
	sttReg.Set(transcription.ModeRemote, stt)

	enhReg := enhancement.NewRegistry()
	enhReg.Set(enhancement.ModeLocal, enh)
	enhReg.Set(enhancement.ModeRemote, enh)

	reg := NewRegistry(store, log)
	pipe := NewPipeline(reg, conv, sttReg, store, nil, log)
	orc := NewOrchestrator(reg, pipe, enhReg, nil, log)
	batch := NewBatchRunner(BatchConfig{Workers: 3}, reg, pipe, nil, log)

	return &env{
		store: store,
		reg:   reg,
		pipe:  pipe,
		orc:   orc,
		batch: batch,
		conv:  conv,
		stt:   stt,
		enh:   enh,
	}
}

// newSession creates a session with default config.
func (e *env) newSession(t *testing.T) string {
	t.Helper()
	sess, err := e.orc.CreateSession(SessionConfig{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return sess.ID
}

// upload registers a segment with the given canned transcript but does not
// process it.
func (e *env) upload(t *testing.T, sessionID string, number int, text string) {
	t.Helper()
	e.stt.mu.Lock()
	e.stt.texts[number] = text
	e.stt.mu.Unlock()
	if _, err := e.reg.AddSegment(context.Background(), sessionID, number, "webm", strings.NewReader("audio-"+text)); err != nil {
		t.Fatalf("AddSegment(%d): %v", number, err)
	}
}

// submit uploads and processes a segment inline.
func (e *env) submit(t *testing.T, sessionID string, number int, text string) TranscriptResult {
	t.Helper()
	e.stt.mu.Lock()
	e.stt.texts[number] = text
	e.stt.mu.Unlock()
	res, err := e.orc.SubmitSegment(context.Background(), sessionID, number, "webm", strings.NewReader("audio-"+text))
	if err != nil {
		t.Fatalf("SubmitSegment(%d): %v", number, err)
	}
	return res
}
