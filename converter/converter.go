// Package converter normalizes uploaded audio containers into canonical PCM
// WAV by shelling out to ffmpeg. The converter is a black box to the rest of
// the system: callers hand it a raw file path and get back the path of the
// converted file or a diagnostic-carrying error.
package converter

import (
	"context"
	"fmt"
	"os"
	"strings"

	apperrors "github.com/kbukum/longscribe/errors"
	"github.com/kbukum/longscribe/logger"
)

// Converter turns an arbitrary audio container into canonical PCM audio.
type Converter interface {
	// Convert produces a canonical WAV next to rawPath and returns its path.
	Convert(ctx context.Context, rawPath string) (string, error)
}

// FFmpeg implements Converter using the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	cfg Config
	log *logger.Logger
}

// NewFFmpeg creates a new ffmpeg-backed converter.
func NewFFmpeg(cfg Config, log *logger.Logger) *FFmpeg {
	cfg.ApplyDefaults()
	return &FFmpeg{
		cfg: cfg,
		log: log.WithComponent("converter"),
	}
}

// Convert converts rawPath to a 16-bit PCM WAV file and returns its path.
// Any converter failure (non-zero exit, missing output, empty output) is
// surfaced as a CONVERSION_FAILED error with the ffmpeg diagnostic attached.
func (f *FFmpeg) Convert(ctx context.Context, rawPath string) (string, error) {
	outputPath := trimExt(rawPath) + ".wav"

	// Probe first; a probe failure is not fatal, direct conversion is the fallback.
	probeRes, probeErr := run(ctx, command{
		binary: f.cfg.FFprobeBinary,
		args: []string{
			"-v", "error",
			"-show_entries", "stream=codec_name,codec_type",
			"-of", "default=noprint_wrappers=1",
			rawPath,
		},
		gracePeriod: f.cfg.GracePeriod,
	})
	if probeErr != nil || len(strings.TrimSpace(string(probeRes.stdout))) == 0 {
		f.log.Warn("ffprobe could not detect an audio stream, attempting direct conversion",
			logger.Fields("path", rawPath))
	} else {
		f.log.Debug("ffprobe result", logger.Fields("streams", strings.TrimSpace(string(probeRes.stdout))))
	}

	args := []string{
		"-y",
		"-fflags", "+genpts",
		"-i", rawPath,
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprintf("%d", f.cfg.SampleRate),
		"-ac", fmt.Sprintf("%d", f.cfg.Channels),
		"-af", "aresample=async=1000",
		"-vn",
		"-hide_banner",
		outputPath,
	}

	res, err := run(ctx, command{
		binary:      f.cfg.FFmpegBinary,
		args:        args,
		gracePeriod: f.cfg.GracePeriod,
	})
	if err != nil {
		diagnostic := ""
		if res != nil {
			diagnostic = lastLines(string(res.stderr), 5)
		}
		return "", apperrors.ConversionFailed(diagnostic, err)
	}

	info, statErr := os.Stat(outputPath)
	if statErr != nil {
		return "", apperrors.ConversionFailed(
			fmt.Sprintf("ffmpeg did not create output file: %s", outputPath), statErr)
	}
	if info.Size() == 0 {
		return "", apperrors.ConversionFailed(
			fmt.Sprintf("ffmpeg produced an empty output file: %s", outputPath), nil)
	}

	f.log.Debug("conversion complete", logger.Fields(
		"input", rawPath,
		"output", outputPath,
		"duration_ms", res.duration.Milliseconds(),
	))
	return outputPath, nil
}

func trimExt(path string) string {
	if idx := strings.LastIndex(path, "."); idx > strings.LastIndex(path, "/") {
		return path[:idx]
	}
	return path
}

// lastLines returns up to n trailing non-empty lines of s.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
