package services

import (
	"testing"

	"github.com/konsulin-care/focus/internal/metrics"
	"github.com/konsulin-care/focus/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type panicObserver struct{}

func (panicObserver) OnTrialEvent(models.TrialEvent)     { panic("observer failure") }
func (panicObserver) OnTestComplete(models.TestComplete) { panic("observer failure") }

func TestEventQueue_DeliversInOrder(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	q := newEventQueue(zap.NewNop(), []Observer{a})
	q.addObserver(b)
	defer q.close()

	for i := 0; i < 500; i++ {
		evt := models.TrialEvent{TrialIndex: i, EventType: models.StimulusOnset, TimestampNs: int64(i)}
		q.push(message{event: &evt})
	}
	q.push(message{complete: &models.TestComplete{ElapsedTimeNs: 42}})
	q.flush()

	for _, r := range []*recorder{a, b} {
		events, completes, _ := r.snapshot()
		require.Len(t, events, 500)
		for i, evt := range events {
			assert.Equal(t, i, evt.TrialIndex)
		}
		require.Len(t, completes, 1)
		assert.Equal(t, int64(42), completes[0].ElapsedTimeNs)
	}
}

func TestEventQueue_ClassificationOnlyToInterestedObservers(t *testing.T) {
	rec := &recorder{}
	q := newEventQueue(zap.NewNop(), []Observer{panicObserver{}, rec})
	defer q.close()

	c := metrics.Classification{TrialIndex: 3, Outcome: models.Hit}
	q.push(message{classification: &c})
	q.flush()

	_, _, classifications := rec.snapshot()
	require.Len(t, classifications, 1)
	assert.Equal(t, 3, classifications[0].TrialIndex)
}

func TestEventQueue_PanickingObserverDoesNotStopDelivery(t *testing.T) {
	rec := &recorder{}
	q := newEventQueue(zap.NewNop(), []Observer{panicObserver{}, rec})
	defer q.close()

	evt := models.TrialEvent{TrialIndex: 1}
	q.push(message{event: &evt})
	q.push(message{complete: &models.TestComplete{}})
	q.flush()

	events, completes, _ := rec.snapshot()
	assert.Len(t, events, 1)
	assert.Len(t, completes, 1)
}

func TestEventQueue_CloseDrainsThenDrops(t *testing.T) {
	rec := &recorder{}
	q := newEventQueue(zap.NewNop(), []Observer{rec})

	evt := models.TrialEvent{TrialIndex: 7}
	q.push(message{event: &evt})
	q.close()
	q.push(message{event: &evt})
	q.close()

	events, _, _ := rec.snapshot()
	assert.Len(t, events, 1)
}
