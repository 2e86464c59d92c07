package timeline

// Eligible returns the ids of the steps whose dependencies have all
// completed. A step without dependencies is always eligible
func Eligible(defs []StepDefinition, state State) map[StepID]bool {
	statuses := make(map[StepID]Status, len(state.Steps))
	for _, step := range state.Steps {
		statuses[step.ID] = step.Status
	}

	res := make(map[StepID]bool, len(defs))
	for _, def := range defs {
		if dependenciesMet(def, statuses) {
			res[def.ID] = true
		}
	}
	return res
}

func dependenciesMet(def StepDefinition, statuses map[StepID]Status) bool {
	for _, dep := range def.Dependencies {
		if statuses[dep] != StatusCompleted {
			return false
		}
	}
	return true
}
