package server

import (
	"context"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/longscribe/enhancement"
	apperrors "github.com/kbukum/longscribe/errors"
	"github.com/kbukum/longscribe/logger"
	"github.com/kbukum/longscribe/provider"
	"github.com/kbukum/longscribe/recording"
	"github.com/kbukum/longscribe/transcription"
	"github.com/kbukum/longscribe/version"
)

// Handlers wires the orchestration core into the HTTP routes.
type Handlers struct {
	orc   *recording.Orchestrator
	batch *recording.BatchRunner
	stt   *transcription.Registry
	enh   *enhancement.Registry
	log   *logger.Logger
}

// NewHandlers creates the route handlers.
func NewHandlers(orc *recording.Orchestrator, batch *recording.BatchRunner,
	stt *transcription.Registry, enh *enhancement.Registry, log *logger.Logger) *Handlers {
	return &Handlers{
		orc:   orc,
		batch: batch,
		stt:   stt,
		enh:   enh,
		log:   log.WithComponent("api"),
	}
}

// Register mounts the API routes on the Gin engine.
func (h *Handlers) Register(engine *gin.Engine) {
	api := engine.Group("/api")
	api.GET("/health", h.health)

	sessions := api.Group("/sessions")
	sessions.POST("", h.createSession)
	sessions.DELETE("/:id", h.deleteSession)
	sessions.POST("/:id/segments", h.uploadSegment)
	sessions.GET("/:id/status", h.status)
	sessions.POST("/:id/process", h.process)
	sessions.POST("/:id/enhance", h.enhance)
}

func (h *Handlers) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	RespondOK(c, gin.H{
		"status":  "ok",
		"service": "longscribe",
		"version": version.GetShortVersion(),
		"backends": gin.H{
			"transcription": backendStatus(ctx, h.stt,
				[]string{transcription.ModeLocal, transcription.ModeRemote}),
			"enhancement": backendStatus(ctx, h.enh,
				[]string{enhancement.ModeLocal, enhancement.ModeRemote}),
		},
	})
}

// backendStatus probes each registered backend mode and names the first
// available backend in priority order, so operators can see which provider
// would serve a request right now.
func backendStatus[T provider.Provider](ctx context.Context, reg *provider.Registry[T], priority []string) gin.H {
	instances := reg.Instances()
	status := gin.H{}
	for mode, p := range instances {
		status[mode] = p.IsAvailable(ctx)
	}
	sel := &provider.PrioritySelector[T]{Priority: priority}
	if p, err := sel.Select(ctx, instances); err == nil {
		status["active"] = p.Name()
	}
	return status
}

func (h *Handlers) createSession(c *gin.Context) {
	var cfg recording.SessionConfig
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&cfg); err != nil {
			RespondWithError(c, apperrors.InvalidInput("body", "malformed session configuration").WithCause(err))
			return
		}
	}

	sess, err := h.orc.CreateSession(cfg)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	RespondCreated(c, gin.H{"sessionId": sess.ID})
}

func (h *Handlers) deleteSession(c *gin.Context) {
	if err := h.orc.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		RespondWithError(c, err)
		return
	}
	RespondNoContent(c)
}

func (h *Handlers) uploadSegment(c *gin.Context) {
	sessionID := c.Param("id")

	numberStr := c.PostForm("segmentNumber")
	if numberStr == "" {
		RespondWithError(c, apperrors.MissingField("segmentNumber"))
		return
	}
	number, err := strconv.Atoi(numberStr)
	if err != nil {
		RespondWithError(c, apperrors.InvalidInput("segmentNumber", "must be an integer"))
		return
	}

	fileHeader, err := c.FormFile("audio")
	if err != nil {
		RespondWithError(c, apperrors.MissingField("audio"))
		return
	}

	// Config keys echoed in the form patch the session before processing.
	if patch := configPatchFromForm(c); patch != (recording.SessionConfig{}) {
		if err := h.orc.PatchConfig(sessionID, patch); err != nil {
			RespondWithError(c, err)
			return
		}
	}

	file, err := fileHeader.Open()
	if err != nil {
		RespondWithError(c, apperrors.Internal(err))
		return
	}
	defer file.Close()

	result, err := h.orc.SubmitSegment(c.Request.Context(), sessionID, number, audioExt(fileHeader.Filename), file)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"segmentNumber": result.SegmentNumber,
		"transcript":    result.Transcript,
	})
}

func (h *Handlers) status(c *gin.Context) {
	progress, err := h.orc.Progress(c.Param("id"))
	if err != nil {
		RespondWithError(c, err)
		return
	}
	RespondOK(c, progress)
}

func (h *Handlers) process(c *gin.Context) {
	result, err := h.batch.RunBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondWithError(c, err)
		return
	}
	if result.Status == recording.SessionStatusPartialFailure {
		c.JSON(http.StatusMultiStatus, result)
		return
	}
	RespondOK(c, result)
}

func (h *Handlers) enhance(c *gin.Context) {
	result, err := h.orc.Enhance(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondWithError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"enhancedText": result.EnhancedText,
		"status":       result.Status,
		"segmentsProcessed": gin.H{
			"total": result.Total,
			"valid": result.Valid,
		},
	})
}

// configPatchFromForm collects recognized session config keys from form fields.
func configPatchFromForm(c *gin.Context) recording.SessionConfig {
	return recording.SessionConfig{
		SourceLanguage:       c.PostForm("sourceLanguage"),
		TargetLanguage:       c.PostForm("targetLanguage"),
		TargetLanguageLabel:  c.PostForm("targetLanguageLabel"),
		OutputType:           c.PostForm("outputType"),
		TranscriptionBackend: c.PostForm("transcriptionModel"),
		EnhancementBackend:   c.PostForm("enhancementModel"),
	}
}

// audioExt derives the storage extension from the uploaded file name.
func audioExt(filename string) string {
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	if ext == "" {
		return "webm"
	}
	return strings.ToLower(ext)
}
