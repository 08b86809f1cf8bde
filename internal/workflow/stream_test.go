// ABOUTME: Tests for the streaming pipeline: iteration cap and event emission

package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(events *[]Event) Emitter {
	return func(ev Event) error {
		*events = append(*events, ev)
		return nil
	}
}

func TestStream_LoopsUntilPlannerStops(t *testing.T) {
	h := newHarness(toolPlan("GMAIL_SEARCH"), toolPlan("CALENDAR_LIST"))

	var events []Event
	res, err := h.engine(Options{}).Stream(context.Background(), testRequest, 10, collect(&events))
	require.NoError(t, err)

	assert.Equal(t, 3, res.Iterations, "third plan asks for no tools")
	assert.False(t, res.CapReached)
	require.Len(t, res.ToolResults, 2)
	assert.Equal(t, "hello", res.Response.Text)

	require.Len(t, h.planner.calls, 3)
	assert.Empty(t, h.planner.calls[0].Prior)
	assert.Len(t, h.planner.calls[2].Prior, 2, "planner sees earlier results")

	var deltas string
	var steps []string
	for _, ev := range events {
		switch ev.Kind {
		case EventDelta:
			deltas += ev.Text
		case EventStep:
			steps = append(steps, ev.Step)
		}
	}
	assert.Equal(t, "hello", deltas)
	assert.Equal(t, []string{StepPlan, StepExecute, StepPlan, StepExecute, StepPlan, StepSummarize, StepRespond}, steps)
}

func TestStream_IterationCap(t *testing.T) {
	plans := make([]*Plan, 20)
	for i := range plans {
		plans[i] = toolPlan("GMAIL_SEARCH")
	}
	h := newHarness(plans...)

	res, err := h.engine(Options{}).Stream(context.Background(), testRequest, 3, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Iterations)
	assert.True(t, res.CapReached)
	assert.Len(t, h.planner.calls, 3)
	assert.Equal(t, 1, h.responder.calls, "cap still produces a response")
}

func TestStream_DefaultCap(t *testing.T) {
	plans := make([]*Plan, 20)
	for i := range plans {
		plans[i] = toolPlan("GMAIL_SEARCH")
	}
	h := newHarness(plans...)

	res, err := h.engine(Options{MaxIterations: 4}).Stream(context.Background(), testRequest, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Iterations)
}

func TestStream_EmitterErrorAborts(t *testing.T) {
	h := newHarness(toolPlan("GMAIL_SEARCH"))
	gone := errors.New("client disconnected")

	_, err := h.engine(Options{}).Stream(context.Background(), testRequest, 10, func(ev Event) error {
		if ev.Kind == EventDelta {
			return gone
		}
		return nil
	})
	assert.ErrorIs(t, err, gone)
}

func TestStream_RequiresStreamResponder(t *testing.T) {
	h := newHarness()
	e := New(Deps{Planner: h.planner, Summarizer: h.summarizer, Responder: h.responder}, Options{}, nil)

	_, err := e.Stream(context.Background(), testRequest, 10, nil)
	require.Error(t, err)
	assert.Equal(t, StepRespond, FailedStep(err))
	assert.Empty(t, h.planner.calls, "nothing runs without a stream responder")
}
