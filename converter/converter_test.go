package converter

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	apperrors "github.com/kbukum/longscribe/errors"
	"github.com/kbukum/longscribe/logger"
)

// writeScript creates an executable shell script standing in for ffmpeg/ffprobe.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o750); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

// fakeFFmpeg copies the -i input to the last argument, like a conversion would.
const fakeFFmpegBody = `in=""
prev=""
out=""
for a in "$@"; do
  if [ "$prev" = "-i" ]; then in="$a"; fi
  prev="$a"
  out="$a"
done
cp "$in" "$out"`

func newTestConverter(t *testing.T, ffmpegBody, ffprobeBody string) *FFmpeg {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{
		FFmpegBinary:  writeScript(t, dir, "ffmpeg", ffmpegBody),
		FFprobeBinary: writeScript(t, dir, "ffprobe", ffprobeBody),
	}
	return NewFFmpeg(cfg, logger.NewDefault("test"))
}

func writeRawFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seg_0.webm")
	if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
		t.Fatalf("write raw file: %v", err)
	}
	return path
}

func TestConvertSuccess(t *testing.T) {
	conv := newTestConverter(t, fakeFFmpegBody, `echo "codec_name=opus"`)
	raw := writeRawFile(t, "fake-opus-bytes")

	out, err := conv.Convert(context.Background(), raw)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if !strings.HasSuffix(out, "seg_0.wav") {
		t.Fatalf("expected .wav sibling of the raw file, got %s", out)
	}
	data, _ := os.ReadFile(out)
	if string(data) != "fake-opus-bytes" {
		t.Fatalf("unexpected converted content: %q", data)
	}
}

func TestConvertSucceedsWhenProbeFails(t *testing.T) {
	conv := newTestConverter(t, fakeFFmpegBody, `exit 1`)
	raw := writeRawFile(t, "payload")

	if _, err := conv.Convert(context.Background(), raw); err != nil {
		t.Fatalf("probe failure must fall back to direct conversion: %v", err)
	}
}

func TestConvertNonZeroExit(t *testing.T) {
	conv := newTestConverter(t, `echo "ffmpeg: invalid data found" >&2; exit 1`, `echo "codec_name=opus"`)
	raw := writeRawFile(t, "broken")

	_, err := conv.Convert(context.Background(), raw)
	if err == nil {
		t.Fatal("expected conversion error")
	}
	appErr, ok := apperrors.AsAppError(err)
	if !ok || appErr.Code != apperrors.ErrCodeConversionFailed {
		t.Fatalf("expected CONVERSION_FAILED, got %v", err)
	}
	if diag, _ := appErr.Details["diagnostic"].(string); !strings.Contains(diag, "invalid data") {
		t.Fatalf("expected ffmpeg stderr in diagnostic, got %q", diag)
	}
}

func TestConvertMissingOutput(t *testing.T) {
	conv := newTestConverter(t, `exit 0`, `echo "codec_name=opus"`)
	raw := writeRawFile(t, "payload")

	_, err := conv.Convert(context.Background(), raw)
	if err == nil {
		t.Fatal("expected error when ffmpeg writes no output")
	}
	if apperrors.CodeOf(err) != apperrors.ErrCodeConversionFailed {
		t.Fatalf("expected CONVERSION_FAILED, got %v", err)
	}
}

func TestConvertEmptyOutput(t *testing.T) {
	body := `out=""
for a in "$@"; do out="$a"; done
: > "$out"`
	conv := newTestConverter(t, body, `echo "codec_name=opus"`)
	raw := writeRawFile(t, "payload")

	_, err := conv.Convert(context.Background(), raw)
	if err == nil {
		t.Fatal("expected error for empty output file")
	}
	if apperrors.CodeOf(err) != apperrors.ErrCodeConversionFailed {
		t.Fatalf("expected CONVERSION_FAILED, got %v", err)
	}
}

func TestRunCapturesExitCode(t *testing.T) {
	res, err := run(context.Background(), command{binary: "sh", args: []string{"-c", "exit 42"}})
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if res.exitCode != 42 {
		t.Fatalf("expected exit code 42, got %d", res.exitCode)
	}
}

func TestConvertMissingBinary(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		FFmpegBinary:  filepath.Join(dir, "no-such-ffmpeg"),
		FFprobeBinary: filepath.Join(dir, "no-such-ffprobe"),
	}
	conv := NewFFmpeg(cfg, logger.NewDefault("test"))
	raw := writeRawFile(t, "payload")

	_, err := conv.Convert(context.Background(), raw)
	if err == nil {
		t.Fatal("expected error for missing converter binary")
	}
	if apperrors.CodeOf(err) != apperrors.ErrCodeConversionFailed {
		t.Fatalf("expected CONVERSION_FAILED, got %v", err)
	}
}

func TestRunBinaryNotStarted(t *testing.T) {
	res, err := run(context.Background(), command{binary: "/no/such/binary"})
	if err == nil {
		t.Fatal("expected error when the binary cannot start")
	}
	if res.exitCode != -1 {
		t.Fatalf("expected exit code -1 without a process, got %d", res.exitCode)
	}
}

func TestRunEmptyBinary(t *testing.T) {
	if _, err := run(context.Background(), command{}); err == nil {
		t.Fatal("expected error for empty binary")
	}
}
