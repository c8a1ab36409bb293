package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/konsulin-care/focus/internal/metrics"
	"github.com/konsulin-care/focus/internal/models"
	"go.uber.org/zap"
)

// ResultStore persists scored sessions.
type ResultStore interface {
	SaveSession(ctx context.Context, session *models.ScoredSession) error
	GetSession(ctx context.Context, id string) (*models.ScoredSession, error)
}

// SessionSettings are read once at the start of every session, so a
// configuration reload applies to the next session only.
type SessionSettings struct {
	TotalTrials int
	Timing      Timing
	Scoring     metrics.ScoringConfig
}

// Session is one administered test. It exists from StartSession until its
// TestComplete has been scored and stored.
type Session struct {
	ID        string
	Subject   models.Subject
	Sequence  []models.StimulusType
	Settings  SessionSettings
	StartedNs int64

	done   chan struct{}
	result *models.ScoredSession
	err    error
}

// Wait blocks until the session has been scored or ctx ends.
func (s *Session) Wait(ctx context.Context) (*models.ScoredSession, error) {
	select {
	case <-s.done:
		return s.result, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Status is a snapshot of the engine for the presentation layer.
type Status struct {
	SessionID    string             `json:"sessionId,omitempty"`
	Running      bool               `json:"running"`
	Phase        Phase              `json:"phase"`
	CurrentTrial int                `json:"currentTrial"`
	TotalTrials  int                `json:"totalTrials"`
	Counts       metrics.LiveCounts `json:"counts"`
}

// Engine runs one test session at a time, end to end: sequence generation,
// timed presentation, reconstruction, scoring and storage.
type Engine struct {
	log       *zap.Logger
	clock     Clock
	rng       metrics.RandSource
	norms     metrics.NormativeLookup
	store     ResultStore
	settings  func() SessionSettings
	scheduler *Scheduler

	mu     sync.Mutex
	active *Session
	last   *models.ScoredSession
}

// EngineOptions are the collaborators of an Engine. Only Settings is required.
type EngineOptions struct {
	Log       *zap.Logger
	Clock     Clock
	Rand      metrics.RandSource
	Norms     metrics.NormativeLookup
	Store     ResultStore
	Settings  func() SessionSettings
	Observers []Observer
}

func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Settings == nil {
		return nil, errors.New("engine settings are required")
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = NewSystemClock()
	}
	if opts.Rand == nil {
		opts.Rand = metrics.NewRandSource()
	}

	e := &Engine{
		log:      opts.Log,
		clock:    opts.Clock,
		rng:      opts.Rand,
		norms:    opts.Norms,
		store:    opts.Store,
		settings: opts.Settings,
	}
	scheduler, err := NewScheduler(opts.Log, opts.Clock, opts.Settings().Timing, append([]Observer{e}, opts.Observers...)...)
	if err != nil {
		return nil, err
	}
	e.scheduler = scheduler
	return e, nil
}

// AddObserver subscribes o to the trial event stream.
func (e *Engine) AddObserver(o Observer) {
	e.scheduler.AddObserver(o)
}

// StartSession generates a sequence and starts presenting it now.
func (e *Engine) StartSession(subject models.Subject) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active != nil {
		if !e.scheduler.IsRunning() {
			return nil, &models.TimingError{Op: "start", Reason: "the previous session is still being scored"}
		}
		return nil, &models.TimingError{Op: "start", Reason: "a session is already in progress"}
	}

	settings := e.settings()
	sequence, err := metrics.GenerateSequence(settings.TotalTrials, e.rng)
	if err != nil {
		return nil, err
	}
	if err := e.scheduler.Configure(settings.Timing); err != nil {
		return nil, err
	}

	session := &Session{
		ID:       uuid.NewString(),
		Subject:  subject,
		Sequence: sequence,
		Settings: settings,
		done:     make(chan struct{}),
	}
	session.StartedNs = e.clock.NowNs()
	if err := e.scheduler.Start(sequence, session.StartedNs); err != nil {
		return nil, err
	}
	e.active = session

	e.log.Info("Session started",
		zap.String("session_id", session.ID),
		zap.Int("age", subject.Age),
		zap.String("gender", subject.Gender),
	)
	return session, nil
}

// Stop aborts the active session. Its partial log is still scored.
func (e *Engine) Stop() {
	e.scheduler.Stop()
}

// RecordResponse records a response stamped with the engine clock on arrival.
func (e *Engine) RecordResponse() error {
	_, err := e.scheduler.RecordResponseNow()
	return err
}

// RecordResponseAt records a response stamped by the client on the engine
// clock. Clients derive the stamp from the session's StartedNs.
func (e *Engine) RecordResponseAt(timestampNs int64) error {
	return e.scheduler.RecordResponse(timestampNs)
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	active := e.active
	e.mu.Unlock()

	st := Status{
		Running:      e.scheduler.IsRunning(),
		Phase:        e.scheduler.Phase(),
		CurrentTrial: e.scheduler.CurrentTrialIndex(),
		Counts:       e.scheduler.Counts(),
	}
	if active != nil {
		st.SessionID = active.ID
		st.TotalTrials = len(active.Sequence)
	}
	return st
}

// LastResult returns the most recently scored session.
func (e *Engine) LastResult() (*models.ScoredSession, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, e.last != nil
}

// Session returns a scored session from the store, falling back to the last result.
func (e *Engine) Session(ctx context.Context, id string) (*models.ScoredSession, error) {
	e.mu.Lock()
	last := e.last
	e.mu.Unlock()
	if last != nil && last.ID == id {
		return last, nil
	}
	if e.store == nil {
		return nil, models.ErrSessionNotFound
	}
	return e.store.GetSession(ctx, id)
}

func (e *Engine) Close() {
	e.scheduler.Close()
}

func (e *Engine) OnTrialEvent(models.TrialEvent) {}

// OnTestComplete scores the finished log and disposes of the session. The
// next session may start while the result is being stored.
func (e *Engine) OnTestComplete(done models.TestComplete) {
	e.mu.Lock()
	session := e.active
	e.mu.Unlock()
	if session == nil {
		e.log.Warn("Test completion without an active session")
		return
	}

	scored := ScoreSession(e.log, session, done, e.norms)

	e.mu.Lock()
	e.last = scored
	e.active = nil
	e.mu.Unlock()

	if e.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := e.store.SaveSession(ctx, scored); err != nil {
			e.log.Error("Failed to save session", zap.String("session_id", session.ID), zap.Error(err))
			session.err = err
		}
		cancel()
	}

	session.result = scored
	close(session.done)
}

// ScoreSession reconstructs and scores a finished event log.
func ScoreSession(log *zap.Logger, session *Session, done models.TestComplete, norms metrics.NormativeLookup) *models.ScoredSession {
	if log == nil {
		log = zap.NewNop()
	}
	results, err := metrics.Reconstruct(done.Events)
	scored := &models.ScoredSession{
		ID:                      session.ID,
		Subject:                 session.Subject,
		Sequence:                session.Sequence,
		StimulusDurationMs:      durationMs(session.Settings.Timing.StimulusDuration),
		InterstimulusIntervalMs: durationMs(session.Settings.Timing.InterstimulusInterval),
		BufferMs:                durationMs(session.Settings.Timing.Buffer),
		Complete:                done,
		Results:                 results,
		Metrics:                 metrics.Score(results, session.Subject, norms, session.Settings.Scoring),
	}

	var dataErr *models.DataError
	if errors.As(err, &dataErr) {
		scored.DataProblems = dataErr.Problems
		log.Warn("Event log reconstructed with problems",
			zap.String("session_id", session.ID),
			zap.Int("problems", len(dataErr.Problems)),
			zap.Bool("aborted", done.Aborted),
		)
	}

	log.Info("Session scored",
		zap.String("session_id", session.ID),
		zap.Int("trials", len(results)),
		zap.Bool("aborted", done.Aborted),
		zap.Float64p("acs", scored.Metrics.CompositeScore),
		zap.String("interpretation", string(scored.Metrics.ACSInterpretation)),
		zap.Bool("valid", scored.Metrics.Valid),
	)
	return scored
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
