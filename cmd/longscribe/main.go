// Command longscribe runs the long-recording transcription service: it
// accepts audio segments over HTTP, converts and transcribes them, and
// assembles enhanced transcripts per session.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kbukum/longscribe/config"
	"github.com/kbukum/longscribe/converter"
	"github.com/kbukum/longscribe/enhancement"
	enhollama "github.com/kbukum/longscribe/enhancement/ollama"
	enhopenai "github.com/kbukum/longscribe/enhancement/openai"
	"github.com/kbukum/longscribe/logger"
	"github.com/kbukum/longscribe/observability"
	"github.com/kbukum/longscribe/recording"
	"github.com/kbukum/longscribe/server"
	"github.com/kbukum/longscribe/storage"
	"github.com/kbukum/longscribe/transcription"
	sttopenai "github.com/kbukum/longscribe/transcription/openai"
	"github.com/kbukum/longscribe/transcription/whisper"
	"github.com/kbukum/longscribe/version"
)

const serviceName = "longscribe"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run() error {
	var cfg config.Config
	if err := config.LoadConfig(serviceName, &cfg); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logger.Init(cfg.Logging)
	log := logger.New(&cfg.Logging, cfg.Name)
	log.Info("starting", logger.Fields(
		"version", version.GetShortVersion(),
		"environment", cfg.Environment,
	))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics, obsShutdown, err := initObservability(ctx, cfg)
	if err != nil {
		return err
	}
	defer obsShutdown()

	store, err := storage.NewStore(cfg.Storage.BasePath)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	conv := converter.NewFFmpeg(cfg.Converter, log)

	sttReg, err := buildTranscriptionRegistry(cfg, log)
	if err != nil {
		return err
	}
	enhReg, err := buildEnhancementRegistry(cfg, log)
	if err != nil {
		return err
	}

	reg := recording.NewRegistry(store, log)
	pipe := recording.NewPipeline(reg, conv, sttReg, store, metrics, log)
	orc := recording.NewOrchestrator(reg, pipe, enhReg, metrics, log)
	batch := recording.NewBatchRunner(cfg.Batch, reg, pipe, metrics, log)

	srv := server.New(cfg.Server, log)
	srv.ApplyMiddleware()
	server.NewHandlers(orc, batch, sttReg, enhReg, log).Register(srv.GinEngine())

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	log.Info("listening", logger.Fields("addr", srv.Addr()))

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("server shutdown", logger.ErrorFields("stop", err))
	}
	return nil
}

// buildTranscriptionRegistry registers the backend factories and caches an
// instance per mode. The remote backend is registered only when an API key is
// present; sessions that select it without one fail with a clear error at
// processing time.
func buildTranscriptionRegistry(cfg config.Config, log *logger.Logger) (*transcription.Registry, error) {
	reg := transcription.NewRegistry()
	reg.RegisterFactory(whisper.ProviderName, whisper.Factory())
	reg.RegisterFactory(sttopenai.ProviderName, sttopenai.Factory())

	local, err := reg.Create(whisper.ProviderName, map[string]any{
		"url":      cfg.Transcription.Whisper.URL,
		"model":    cfg.Transcription.Whisper.Model,
		"language": cfg.Transcription.Whisper.Language,
		"timeout":  cfg.Transcription.Whisper.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating local transcription backend: %w", err)
	}
	reg.Set(transcription.ModeLocal, local)

	if cfg.Transcription.OpenAI.APIKey != "" {
		remote, err := reg.Create(sttopenai.ProviderName, map[string]any{
			"base_url": cfg.Transcription.OpenAI.BaseURL,
			"api_key":  cfg.Transcription.OpenAI.APIKey,
			"model":    cfg.Transcription.OpenAI.Model,
			"language": cfg.Transcription.OpenAI.Language,
			"timeout":  cfg.Transcription.OpenAI.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("creating remote transcription backend: %w", err)
		}
		reg.Set(transcription.ModeRemote, remote)
	} else {
		log.Warn("remote transcription disabled: no API key configured")
	}
	return reg, nil
}

// buildEnhancementRegistry registers the backend factories and caches an
// instance per mode.
func buildEnhancementRegistry(cfg config.Config, log *logger.Logger) (*enhancement.Registry, error) {
	reg := enhancement.NewRegistry()
	reg.RegisterFactory(enhollama.ProviderName, enhollama.Factory())
	reg.RegisterFactory(enhopenai.ProviderName, enhopenai.Factory())

	local, err := reg.Create(enhollama.ProviderName, map[string]any{
		"base_url": cfg.Enhancement.Ollama.BaseURL,
		"model":    cfg.Enhancement.Ollama.Model,
		"timeout":  cfg.Enhancement.Ollama.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating local enhancement backend: %w", err)
	}
	reg.Set(enhancement.ModeLocal, local)

	if cfg.Enhancement.OpenAI.APIKey != "" {
		remote, err := reg.Create(enhopenai.ProviderName, map[string]any{
			"base_url": cfg.Enhancement.OpenAI.BaseURL,
			"api_key":  cfg.Enhancement.OpenAI.APIKey,
			"model":    cfg.Enhancement.OpenAI.Model,
			"timeout":  cfg.Enhancement.OpenAI.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("creating remote enhancement backend: %w", err)
		}
		reg.Set(enhancement.ModeRemote, remote)
	} else {
		log.Warn("remote enhancement disabled: no API key configured")
	}
	return reg, nil
}

// initObservability sets up the OTLP meter and tracer providers when enabled.
// It returns the metrics instruments (nil when disabled) and a shutdown hook.
func initObservability(ctx context.Context, cfg config.Config) (*observability.Metrics, func(), error) {
	if !cfg.Observability.Enabled {
		return nil, func() {}, nil
	}

	mp, err := observability.InitMeter(ctx, observability.MeterConfig{
		ServiceName:    cfg.Name,
		ServiceVersion: version.GetShortVersion(),
		Environment:    cfg.Environment,
		Endpoint:       cfg.Observability.Endpoint,
		Insecure:       cfg.Observability.Insecure,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initializing meter: %w", err)
	}
	tp, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName:    cfg.Name,
		ServiceVersion: version.GetShortVersion(),
		Environment:    cfg.Environment,
		Endpoint:       cfg.Observability.Endpoint,
		Insecure:       cfg.Observability.Insecure,
		SampleRate:     cfg.Observability.SampleRate,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initializing tracer: %w", err)
	}

	metrics, err := observability.NewMetrics(observability.Meter(cfg.Name))
	if err != nil {
		return nil, nil, fmt.Errorf("creating metrics: %w", err)
	}

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("tracer shutdown", logger.ErrorFields("shutdown", err))
		}
		if err := mp.Shutdown(ctx); err != nil {
			logger.Warn("meter shutdown", logger.ErrorFields("shutdown", err))
		}
	}
	return metrics, shutdown, nil
}
