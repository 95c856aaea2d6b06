package whisper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/kbukum/longscribe/errors"
	"github.com/kbukum/longscribe/transcription"
)

func transcriptionReq(path, lang string) transcription.TranscriptionRequest {
	return transcription.TranscriptionRequest{AudioPath: path, Language: lang}
}

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seg.wav")
	if err := os.WriteFile(path, []byte("RIFF-fake"), 0o640); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return path
}

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcribe" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("language"); got != "it" {
			t.Errorf("expected language it, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"Buongiorno a tutti","segments":[{"text":"Buongiorno a tutti","start":0,"end":2.5}],"language":"it"}`))
	}))
	defer srv.Close()

	p := NewProvider(Config{URL: srv.URL})
	resp, err := p.Transcribe(context.Background(), transcriptionReq(writeAudio(t), "it"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if resp.Text != "Buongiorno a tutti" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	if resp.Duration != 2.5 {
		t.Fatalf("expected duration from last segment, got %v", resp.Duration)
	}
}

func TestTranscribeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewProvider(Config{URL: srv.URL})
	_, err := p.Transcribe(context.Background(), transcriptionReq(writeAudio(t), ""))
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	appErr, ok := apperrors.AsAppError(err)
	if !ok || appErr.Code != apperrors.ErrCodeTranscriptionBackend {
		t.Fatalf("expected TRANSCRIPTION_BACKEND_ERROR, got %v", err)
	}
	if !appErr.Retryable {
		t.Fatal("backend errors must be retryable")
	}
}

func TestIsAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewProvider(Config{URL: srv.URL})
	if !p.IsAvailable(context.Background()) {
		t.Fatal("expected provider to be available")
	}

	srv.Close()
	if p.IsAvailable(context.Background()) {
		t.Fatal("expected provider to be unavailable after server shutdown")
	}
}
