package timeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mimic-swap/pkg/timeline"
)

func testDefs() []timeline.StepDefinition {
	return []timeline.StepDefinition{
		{ID: "a", Title: "A", Description: "first"},
		{ID: "b", Title: "B", Description: "second", Dependencies: []timeline.StepID{"a"}},
		{ID: "c", Title: "C", Description: "third", Dependencies: []timeline.StepID{"a", "b"}},
	}
}

func TestAggregatorSetStatus(t *testing.T) {
	agg := timeline.NewAggregator(testDefs())

	assert.True(t, agg.SetStatus("a", timeline.StatusLoading, "checking", ""))
	assert.False(t, agg.SetStatus("a", timeline.StatusLoading, "checking", ""))
	assert.False(t, agg.SetStatus("a", timeline.StatusLoading, "", ""))
	assert.False(t, agg.SetStatus("zzz", timeline.StatusLoading, "x", ""))

	assert.True(t, agg.SetStatus("a", timeline.StatusError, "", "boom"))
	st, _ := agg.State().Step("a")
	assert.Equal(t, "checking", st.Description)
	assert.Equal(t, "boom", st.Error)

	assert.True(t, agg.SetStatus("a", timeline.StatusLoading, "again", ""))
	st, _ = agg.State().Step("a")
	assert.Empty(t, st.Error)
}

func TestAggregatorLoading(t *testing.T) {
	agg := timeline.NewAggregator(testDefs())

	assert.True(t, agg.SetLoading("a", true))
	assert.False(t, agg.SetLoading("b", true))
	assert.False(t, agg.SetLoading("a", false))
	assert.True(t, agg.IsLoading())
	assert.True(t, agg.SetLoading("b", false))
	assert.False(t, agg.IsLoading())
	assert.False(t, agg.SetLoading("zzz", true))
}

func TestAggregatorCompleteAndReset(t *testing.T) {
	agg := timeline.NewAggregator(testDefs())

	assert.True(t, agg.Complete("b"))
	assert.False(t, agg.Complete("a"))
	assert.Equal(t, 2, agg.State().CurrentStepIndex)

	agg.SetStatus("a", timeline.StatusCompleted, "done", "")
	agg.SetLoading("c", true)
	agg.Reset()

	st := agg.State()
	assert.Equal(t, 0, st.CurrentStepIndex)
	assert.False(t, st.IsLoading)
	assert.Equal(t, timeline.StatusPending, agg.Status("a"))
	assert.Equal(t, "first", st.Steps[0].Description)
}

func TestAggregatorStateIsCopy(t *testing.T) {
	agg := timeline.NewAggregator(testDefs())
	st := agg.State()
	st.Steps[0].Status = timeline.StatusCompleted

	assert.Equal(t, timeline.StatusPending, agg.Status("a"))
}

func TestEligible(t *testing.T) {
	defs := testDefs()
	agg := timeline.NewAggregator(defs)

	got := timeline.Eligible(defs, agg.State())
	assert.Equal(t, map[timeline.StepID]bool{"a": true}, got)

	agg.SetStatus("a", timeline.StatusCompleted, "", "")
	got = timeline.Eligible(defs, agg.State())
	assert.Equal(t, map[timeline.StepID]bool{"a": true, "b": true}, got)

	agg.SetStatus("b", timeline.StatusLoading, "", "")
	assert.False(t, timeline.Eligible(defs, agg.State())["c"])

	agg.SetStatus("b", timeline.StatusCompleted, "", "")
	assert.True(t, timeline.Eligible(defs, agg.State())["c"])
}

func TestStateHelpers(t *testing.T) {
	st := timeline.State{Steps: []timeline.SwapStep{
		{ID: "a", Status: timeline.StatusCompleted},
		{ID: "b", Status: timeline.StatusError, Error: "boom"},
	}}
	assert.False(t, st.Completed())

	failed, ok := st.Failed()
	assert.True(t, ok)
	assert.Equal(t, timeline.StepID("b"), failed.ID)

	st.Steps[1].Status = timeline.StatusCompleted
	assert.True(t, st.Completed())
	assert.False(t, timeline.State{}.Completed())

	assert.True(t, timeline.Token{}.IsNative())
}
