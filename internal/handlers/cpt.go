package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/konsulin-care/focus/internal/metrics"
	"github.com/konsulin-care/focus/internal/models"
	"github.com/konsulin-care/focus/internal/services"
	"go.uber.org/zap"
)

// Engine is the part of services.Engine the handlers drive.
type Engine interface {
	StartSession(subject models.Subject) (*services.Session, error)
	Stop()
	RecordResponse() error
	RecordResponseAt(timestampNs int64) error
	Status() services.Status
	Session(ctx context.Context, id string) (*models.ScoredSession, error)
	LastResult() (*models.ScoredSession, bool)
}

type CPTHandler struct {
	log      *zap.Logger
	engine   Engine
	norms    metrics.NormativeLookup
	settings func() services.SessionSettings
}

func NewCPTHandler(log *zap.Logger, engine Engine, norms metrics.NormativeLookup, settings func() services.SessionSettings) *CPTHandler {
	return &CPTHandler{log: log, engine: engine, norms: norms, settings: settings}
}

type startRequest struct {
	Age    int    `json:"age" binding:"required,min=1,max=130"`
	Gender string `json:"gender"`
}

type startResponse struct {
	SessionID               string                `json:"sessionId"`
	Sequence                []models.StimulusType `json:"sequence"`
	StimulusDurationMs      float64               `json:"stimulusDurationMs"`
	InterstimulusIntervalMs float64               `json:"interstimulusIntervalMs"`
	BufferMs                float64               `json:"bufferMs"`
	StartedNs               int64                 `json:"startedNs"`
}

// StartSession starts a new test for the posted subject.
func (h *CPTHandler) StartSession(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Failed to bind session request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subject"})
		return
	}

	session, err := h.engine.StartSession(models.Subject{Age: req.Age, Gender: req.Gender})
	if err != nil {
		h.respondError(c, "Failed to start session", err)
		return
	}

	timing := session.Settings.Timing
	c.JSON(http.StatusCreated, startResponse{
		SessionID:               session.ID,
		Sequence:                session.Sequence,
		StimulusDurationMs:      millis(timing.StimulusDuration.Nanoseconds()),
		InterstimulusIntervalMs: millis(timing.InterstimulusInterval.Nanoseconds()),
		BufferMs:                millis(timing.Buffer.Nanoseconds()),
		StartedNs:               session.StartedNs,
	})
}

type responseRequest struct {
	// TimestampNs is the client's stamp of the key press on the engine
	// clock, derived from startedNs. Without it the press is stamped on
	// arrival.
	TimestampNs *int64 `json:"timestampNs"`
}

// RecordResponse registers a key press.
func (h *CPTHandler) RecordResponse(c *gin.Context) {
	var req responseRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.log.Warn("Failed to bind response", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid response"})
		return
	}

	var err error
	if req.TimestampNs != nil {
		err = h.engine.RecordResponseAt(*req.TimestampNs)
	} else {
		err = h.engine.RecordResponse()
	}
	if err != nil {
		h.respondError(c, "Failed to record response", err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *CPTHandler) Stop(c *gin.Context) {
	h.engine.Stop()
	c.Status(http.StatusAccepted)
}

func (h *CPTHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Status())
}

// GetSession returns a scored session by id.
func (h *CPTHandler) GetSession(c *gin.Context) {
	scored, err := h.engine.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "Failed to load session", err)
		return
	}
	c.JSON(http.StatusOK, scored)
}

// LastResult returns the most recently scored session.
func (h *CPTHandler) LastResult(c *gin.Context) {
	scored, ok := h.engine.LastResult()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No session has been scored yet"})
		return
	}
	c.JSON(http.StatusOK, scored)
}

type scoreRequest struct {
	Subject  models.Subject        `json:"subject"`
	Sequence []models.StimulusType `json:"sequence"`
	Complete models.TestComplete   `json:"complete"`
}

// Score reconstructs and scores an uploaded event log without storing it.
func (h *CPTHandler) Score(c *gin.Context) {
	var req scoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Failed to bind event log", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event log"})
		return
	}
	if len(req.Complete.Events) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Event log is empty"})
		return
	}

	session := &services.Session{
		ID:       "offline",
		Subject:  req.Subject,
		Sequence: req.Sequence,
		Settings: h.settings(),
	}
	c.JSON(http.StatusOK, services.ScoreSession(h.log, session, req.Complete, h.norms))
}

func (h *CPTHandler) respondError(c *gin.Context, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrConfig):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrTiming):
		status = http.StatusConflict
	case errors.Is(err, models.ErrSessionNotFound):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		h.log.Error(msg, zap.Error(err))
		c.JSON(status, gin.H{"error": msg})
		return
	}
	h.log.Debug(msg, zap.Error(err))
	c.JSON(status, gin.H{"error": err.Error()})
}

func millis(ns int64) float64 {
	return float64(ns) / 1e6
}
