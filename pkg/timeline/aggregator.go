package timeline

// Aggregator is the single owner of step statuses. It is not safe for
// concurrent use; the Timeline only touches it from the loop
type Aggregator struct {
	defs    []StepDefinition
	index   map[StepID]int
	steps   []SwapStep
	loading map[StepID]bool
	current int
}

// NewAggregator creates an aggregator with every step pending
func NewAggregator(defs []StepDefinition) *Aggregator {
	a := &Aggregator{
		defs:  defs,
		index: make(map[StepID]int, len(defs)),
	}
	for i, def := range defs {
		a.index[def.ID] = i
	}
	a.Reset()
	return a
}

// Reset reinitializes every step to pending with its original description
func (a *Aggregator) Reset() {
	a.steps = make([]SwapStep, len(a.defs))
	for i, def := range a.defs {
		a.steps[i] = SwapStep{
			ID:          def.ID,
			Title:       def.Title,
			Description: def.Description,
			Status:      StatusPending,
		}
	}
	a.loading = map[StepID]bool{}
	a.current = 0
}

// SetStatus applies a status event. An empty description keeps the
// current one. Returns whether anything changed
func (a *Aggregator) SetStatus(
	id StepID, status Status, description, errMsg string,
) bool {
	i, ok := a.index[id]
	if !ok {
		return false
	}

	next := a.steps[i]
	next.Status = status
	next.Error = errMsg
	if description != "" {
		next.Description = description
	}
	if next == a.steps[i] {
		return false
	}
	a.steps[i] = next
	return true
}

// SetLoading records a step's loading flag. Returns whether the aggregate
// loading state changed
func (a *Aggregator) SetLoading(id StepID, loading bool) bool {
	if _, ok := a.index[id]; !ok {
		return false
	}
	before := a.IsLoading()
	if loading {
		a.loading[id] = true
	} else {
		delete(a.loading, id)
	}
	return before != a.IsLoading()
}

// Complete advances the current step watermark past the given step
func (a *Aggregator) Complete(id StepID) bool {
	i, ok := a.index[id]
	if !ok || i+1 <= a.current {
		return false
	}
	a.current = i + 1
	return true
}

// Status returns the current status of a step
func (a *Aggregator) Status(id StepID) Status {
	if i, ok := a.index[id]; ok {
		return a.steps[i].Status
	}
	return ""
}

// IsLoading is the OR of all recorded step loading flags
func (a *Aggregator) IsLoading() bool {
	return len(a.loading) > 0
}

// State returns a copy of the aggregate state
func (a *Aggregator) State() State {
	return State{
		Steps:            a.steps,
		IsLoading:        a.IsLoading(),
		CurrentStepIndex: a.current,
	}.clone()
}
