package services

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/konsulin-care/focus/internal/metrics"
	"github.com/konsulin-care/focus/internal/models"
	"go.uber.org/zap"
)

type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseBuffer          Phase = "buffer"
	PhaseStimulusVisible Phase = "stimulus_visible"
	PhaseInterTrialGap   Phase = "inter_trial_gap"
	PhaseCompleted       Phase = "completed"
	PhaseStopped         Phase = "stopped"
)

// Deadlines processed later than this are logged.
const lateDeadlineThreshold = 2 * time.Millisecond

// responseGrace separates the close of the last response window from
// completion, so a response stamped inside the window but still in flight
// is not lost.
const responseGrace = 200 * time.Millisecond

// Timing is the presentation timing of a session.
type Timing struct {
	StimulusDuration      time.Duration
	InterstimulusInterval time.Duration
	Buffer                time.Duration
}

// TimingFromMillis converts millisecond settings to a Timing.
func TimingFromMillis(stimulusMs, isiMs, bufferMs float64) Timing {
	ms := func(v float64) time.Duration { return time.Duration(math.Round(v * float64(time.Millisecond))) }
	return Timing{
		StimulusDuration:      ms(stimulusMs),
		InterstimulusInterval: ms(isiMs),
		Buffer:                ms(bufferMs),
	}
}

// Period is the onset-to-onset interval.
func (t Timing) Period() time.Duration {
	return t.StimulusDuration + t.InterstimulusInterval
}

func (t Timing) Validate() error {
	switch {
	case t.StimulusDuration <= 0:
		return &models.ConfigError{Field: "stimulusDurationMs", Reason: "must be positive"}
	case t.InterstimulusInterval < 0:
		return &models.ConfigError{Field: "interstimulusIntervalMs", Reason: "must not be negative"}
	case t.Buffer < 0:
		return &models.ConfigError{Field: "bufferMs", Reason: "must not be negative"}
	}
	return nil
}

// Scheduler drives trial presentation against absolute deadlines. Every
// deadline is derived from the session anchor, never from the previous
// callback, so late timers do not accumulate drift:
//
//	onset(i)  = start + buffer + i*period
//	offset(i) = onset(i) + stimulusDuration
//	end       = start + buffer + n*period
//
// Completion follows end after responseGrace. Only the next deadline has a
// live timer. A callback processes every
// deadline that is due, in order, so a late timer never reorders events.
type Scheduler struct {
	log   *zap.Logger
	clock Clock
	queue *eventQueue

	mu         sync.Mutex
	timing     Timing
	gen        uint64
	tick       uint64
	phase      Phase
	sequence   []models.StimulusType
	startNs    int64
	baseNs     int64
	step       int
	timer      Timer
	events     []models.TrialEvent
	classifier *metrics.Classifier

	running      atomic.Bool
	currentTrial atomic.Int64
}

func NewScheduler(log *zap.Logger, clock Clock, timing Timing, observers ...Observer) (*Scheduler, error) {
	if err := timing.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	s := &Scheduler{
		log:        log,
		clock:      clock,
		timing:     timing,
		phase:      PhaseIdle,
		classifier: metrics.NewClassifier(),
		queue:      newEventQueue(log, observers),
	}
	s.currentTrial.Store(-1)
	return s, nil
}

// AddObserver registers o for all future messages.
func (s *Scheduler) AddObserver(o Observer) {
	s.queue.addObserver(o)
}

// Configure replaces the timing used by the next Start.
func (s *Scheduler) Configure(timing Timing) error {
	if err := timing.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return &models.TimingError{Op: "configure", Reason: "session in progress"}
	}
	s.timing = timing
	return nil
}

// Start begins a run of sequence anchored at startTimeNs. It fails with a
// TimingError if a run is already in progress, leaving that run untouched.
func (s *Scheduler) Start(sequence []models.StimulusType, startTimeNs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return &models.TimingError{Op: "start", Reason: "scheduler already running"}
	}
	if len(sequence) == 0 {
		return &models.ConfigError{Field: "sequence", Reason: "must not be empty"}
	}

	s.gen++
	s.sequence = append([]models.StimulusType(nil), sequence...)
	s.startNs = startTimeNs
	s.baseNs = startTimeNs + int64(s.timing.Buffer)
	s.step = 0
	s.events = make([]models.TrialEvent, 0, 2*len(sequence)+len(sequence)/2+1)
	s.classifier.Clear()
	s.currentTrial.Store(-1)
	s.phase = PhaseBuffer
	s.running.Store(true)

	s.log.Info("Starting CPT session",
		zap.Int("trials", len(sequence)),
		zap.Duration("stimulus", s.timing.StimulusDuration),
		zap.Duration("isi", s.timing.InterstimulusInterval),
		zap.Duration("buffer", s.timing.Buffer),
		zap.Uint64("generation", s.gen),
	)

	s.emitLocked(models.TrialEvent{
		TrialIndex:   0,
		StimulusType: s.sequence[0],
		EventType:    models.BufferStart,
		TimestampNs:  startTimeNs,
	})
	s.scheduleLocked()
	return nil
}

// Stop cancels the run. The partial log is delivered as an aborted
// TestComplete. Calling Stop without a run in progress does nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return
	}
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.classifier.Close()
	s.running.Store(false)
	s.phase = PhaseStopped

	s.log.Info("CPT session stopped", zap.Int64("trial", s.currentTrial.Load()))
	s.completeLocked(s.clock.NowNs()-s.startNs, true)
}

// RecordResponse classifies a response stamped at timestampNs on the
// scheduler clock. The stamp decides the trial: deadlines up to the stamp are
// processed before the response and later ones after it, and a stamp inside
// an already closed window revises that trial. It returns a TimingError when
// no run is in progress.
func (s *Scheduler) RecordResponse(timestampNs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return &models.TimingError{Op: "record_response", Reason: "no session in progress"}
	}
	s.recordLocked(timestampNs)
	return nil
}

// RecordResponseNow stamps a response with the scheduler clock under the
// scheduler lock, so no boundary is processed between stamp and
// classification. It returns the stamp.
func (s *Scheduler) RecordResponseNow() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return 0, &models.TimingError{Op: "record_response", Reason: "no session in progress"}
	}
	ts := s.clock.NowNs()
	s.recordLocked(ts)
	return ts, nil
}

func (s *Scheduler) recordLocked(ts int64) {
	now := s.clock.NowNs()
	if ts >= s.windowsEndNs() {
		if s.advanceLocked(now, now) {
			s.rescheduleLocked()
		}
		responsesTotal.WithLabelValues("discarded").Inc()
		s.log.Warn("Response after the last window discarded", zap.Int64("timestamp_ns", ts))
		return
	}

	advanced := s.advanceLocked(ts, now)
	s.classifyLocked(ts)
	if s.advanceLocked(now, now) || advanced {
		s.rescheduleLocked()
	}
}

func (s *Scheduler) classifyLocked(ts int64) {
	c, ok := s.classifier.Record(ts)
	if !ok {
		responsesTotal.WithLabelValues("discarded").Inc()
		s.log.Debug("Response outside any window discarded", zap.Int64("timestamp_ns", ts))
		return
	}
	label := string(c.Outcome)
	if c.Late {
		label = "late"
		s.log.Debug("Late response revised closed trial",
			zap.Int("trial", c.TrialIndex),
			zap.Int64("open_trial", s.currentTrial.Load()),
			zap.String("outcome", string(c.Outcome)),
		)
	}

	correct := c.Correct
	s.emitLocked(models.TrialEvent{
		TrialIndex:      c.TrialIndex,
		StimulusType:    c.StimulusType,
		EventType:       models.Response,
		TimestampNs:     ts,
		ResponseCorrect: &correct,
	})
	s.queue.push(message{classification: &c})
	responsesTotal.WithLabelValues(label).Inc()
}

// CurrentTrialIndex is the index of the last presented trial, or -1.
func (s *Scheduler) CurrentTrialIndex() int {
	return int(s.currentTrial.Load())
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

func (s *Scheduler) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Counts returns the live classification tallies of the current run.
func (s *Scheduler) Counts() metrics.LiveCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.classifier.Counts()
}

// Events returns a copy of the event log of the current or last run.
func (s *Scheduler) Events() []models.TrialEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.TrialEvent(nil), s.events...)
}

// Flush waits until every emitted message has reached the observers.
func (s *Scheduler) Flush() {
	s.queue.flush()
}

// Close stops any run and shuts down event delivery.
func (s *Scheduler) Close() {
	s.Stop()
	s.queue.close()
}

// fire is the timer callback. gen is the generation it was scheduled
// under; a callback from an older generation is stale and does nothing.
// tick identifies the timer itself so a superseded timer cannot start a
// second timer chain.
func (s *Scheduler) fire(gen, tick uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || tick != s.tick || !s.running.Load() {
		return
	}
	s.timer = nil
	now := s.clock.NowNs()
	s.advanceLocked(now, now)
	if s.running.Load() {
		s.scheduleLocked()
	}
}

func (s *Scheduler) lastStep() int {
	return 2 * len(s.sequence)
}

// deadline of step k: even steps are onsets, odd steps offsets, and the
// final step completes the run.
func (s *Scheduler) deadline(step int) int64 {
	period := int64(s.timing.Period())
	trial := int64(step / 2)
	if step == s.lastStep() {
		return s.windowsEndNs() + int64(responseGrace)
	}
	onset := s.baseNs + trial*period
	if step%2 == 0 {
		return onset
	}
	return onset + int64(s.timing.StimulusDuration)
}

// windowsEndNs is where the last response window closes.
func (s *Scheduler) windowsEndNs() int64 {
	return s.baseNs + int64(len(s.sequence))*int64(s.timing.Period())
}

// advanceLocked processes every deadline at or before upTo, measuring
// lateness against now. upTo is ahead of now only for a response stamped
// ahead of the clock. It reports whether any deadline was processed.
func (s *Scheduler) advanceLocked(upTo, now int64) bool {
	advanced := false
	for s.running.Load() && s.step <= s.lastStep() {
		deadline := s.deadline(s.step)
		if deadline > upTo {
			break
		}
		if late := time.Duration(now - deadline); late >= 0 {
			deadlineLateness.Observe(late.Seconds())
			if late > lateDeadlineThreshold {
				s.log.Debug("Deadline processed late", zap.Int("step", s.step), zap.Duration("late", late))
			}
		}
		s.processStepLocked(s.step, deadline, now)
		s.step++
		advanced = true
	}
	return advanced
}

func (s *Scheduler) processStepLocked(step int, deadline, now int64) {
	if step == s.lastStep() {
		s.classifier.Close()
		s.phase = PhaseCompleted
		s.running.Store(false)
		s.log.Info("CPT session completed", zap.Int("trials", len(s.sequence)))
		s.completeLocked(max(now, deadline)-s.startNs, false)
		return
	}

	trial := step / 2
	stim := s.sequence[trial]
	if step%2 == 0 {
		s.classifier.Open(trial, stim, deadline)
		s.currentTrial.Store(int64(trial))
		s.phase = PhaseStimulusVisible
		s.emitLocked(models.TrialEvent{TrialIndex: trial, StimulusType: stim, EventType: models.StimulusOnset, TimestampNs: deadline})
		return
	}
	s.phase = PhaseInterTrialGap
	s.emitLocked(models.TrialEvent{TrialIndex: trial, StimulusType: stim, EventType: models.StimulusOffset, TimestampNs: deadline})
}

func (s *Scheduler) rescheduleLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.running.Load() {
		s.scheduleLocked()
	}
}

func (s *Scheduler) scheduleLocked() {
	s.tick++
	gen, tick := s.gen, s.tick
	delay := time.Duration(s.deadline(s.step) - s.clock.NowNs())
	if delay < 0 {
		delay = 0
	}
	s.timer = s.clock.AfterFunc(delay, func() { s.fire(gen, tick) })
}

func (s *Scheduler) emitLocked(evt models.TrialEvent) {
	s.events = append(s.events, evt)
	trialEventsTotal.WithLabelValues(string(evt.EventType)).Inc()
	s.queue.push(message{event: &evt})
}

func (s *Scheduler) completeLocked(elapsedNs int64, aborted bool) {
	result := "completed"
	if aborted {
		result = "stopped"
	}
	sessionsTotal.WithLabelValues(result).Inc()
	s.queue.push(message{complete: &models.TestComplete{
		Events:        append([]models.TrialEvent(nil), s.events...),
		ElapsedTimeNs: elapsedNs,
		Aborted:       aborted,
	}})
}
