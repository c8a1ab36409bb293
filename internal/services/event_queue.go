package services

import (
	"sync"

	"github.com/konsulin-care/focus/internal/metrics"
	"github.com/konsulin-care/focus/internal/models"
	"go.uber.org/zap"
)

// Observer receives the scheduler's output. Calls are made from a single
// dispatch goroutine, in emission order, at most once per message.
type Observer interface {
	OnTrialEvent(evt models.TrialEvent)
	OnTestComplete(done models.TestComplete)
}

// ClassificationObserver is implemented by observers that also want the
// live classification of each response.
type ClassificationObserver interface {
	OnClassification(c metrics.Classification)
}

type message struct {
	event          *models.TrialEvent
	complete       *models.TestComplete
	classification *metrics.Classification
}

// eventQueue delivers messages to observers on one goroutine. Pushing never
// blocks, so it is safe while holding the scheduler lock.
type eventQueue struct {
	log *zap.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	pending   []message
	observers []Observer
	busy      bool
	closed    bool
	done      chan struct{}
}

func newEventQueue(log *zap.Logger, observers []Observer) *eventQueue {
	q := &eventQueue{
		log:       log,
		observers: append([]Observer(nil), observers...),
		done:      make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	go q.processLoop()
	return q
}

func (q *eventQueue) addObserver(o Observer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.observers = append(q.observers, o)
}

func (q *eventQueue) push(msg message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.log.Warn("Event queue closed, dropping message")
		return
	}
	q.pending = append(q.pending, msg)
	q.cond.Broadcast()
}

// flush blocks until every pushed message has been delivered.
func (q *eventQueue) flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for (len(q.pending) > 0 || q.busy) && !q.closed {
		q.cond.Wait()
	}
}

// close delivers what is already queued, then stops the dispatch goroutine.
func (q *eventQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
	<-q.done
}

func (q *eventQueue) processLoop() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		batch := q.pending
		q.pending = nil
		observers := append([]Observer(nil), q.observers...)
		q.busy = true
		q.mu.Unlock()

		for _, msg := range batch {
			for _, o := range observers {
				q.deliver(o, msg)
			}
		}

		q.mu.Lock()
		q.busy = false
		q.cond.Broadcast()
		q.mu.Unlock()
	}
}

func (q *eventQueue) deliver(o Observer, msg message) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("Observer panicked", zap.Any("panic", r))
		}
	}()
	switch {
	case msg.event != nil:
		o.OnTrialEvent(*msg.event)
	case msg.complete != nil:
		o.OnTestComplete(*msg.complete)
	case msg.classification != nil:
		if co, ok := o.(ClassificationObserver); ok {
			co.OnClassification(*msg.classification)
		}
	}
}
