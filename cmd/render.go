package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"

	"mimic-swap/pkg/timeline"
)

// timelineView prints one line per step change and keeps a spinner on the
// step that is loading
type timelineView struct {
	spinner *spinner.Spinner
	json    bool
	seen    map[timeline.StepID]timeline.SwapStep
}

func newTimelineView(jsonOutput bool) *timelineView {
	return &timelineView{
		spinner: spinner.New(spinner.CharSets[14], 100*time.Millisecond),
		json:    jsonOutput,
		seen:    map[timeline.StepID]timeline.SwapStep{},
	}
}

// Reset forgets printed steps so a new attempt prints in full
func (v *timelineView) Reset() {
	v.seen = map[timeline.StepID]timeline.SwapStep{}
}

func (v *timelineView) Render(state timeline.State) {
	if v.json {
		printJSON(state)
		return
	}

	v.spinner.Stop()
	for i, step := range state.Steps {
		if prev, ok := v.seen[step.ID]; ok && prev == step {
			continue
		}
		v.seen[step.ID] = step
		if step.Status == timeline.StatusPending && i > state.CurrentStepIndex {
			continue
		}
		fmt.Printf("  %s %-20s %s\n", statusIcon(step.Status), step.Title, describe(step))
	}

	if !state.IsLoading {
		return
	}
	for _, step := range state.Steps {
		if step.Status == timeline.StatusLoading {
			v.spinner.Suffix = " " + step.Description
			v.spinner.Start()
			return
		}
	}
}

func (v *timelineView) Stop() {
	v.spinner.Stop()
}

func describe(step timeline.SwapStep) string {
	switch step.Status {
	case timeline.StatusError:
		if step.Error != "" {
			return color.RedString("%s (%s)", step.Description, step.Error)
		}
		return color.RedString(step.Description)
	case timeline.StatusCompleted:
		return color.GreenString(step.Description)
	case timeline.StatusLoading:
		return color.YellowString(step.Description)
	default:
		return color.HiBlackString(step.Description)
	}
}

func statusIcon(status timeline.Status) string {
	switch status {
	case timeline.StatusCompleted:
		return color.GreenString("✓")
	case timeline.StatusError:
		return color.RedString("✗")
	case timeline.StatusLoading:
		return color.YellowString("…")
	default:
		return color.HiBlackString("·")
	}
}

func printTimelineSummary(state timeline.State) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	switch failed, ok := state.Failed(); {
	case state.Completed():
		color.Green("                    SWAP COMPLETED")
	case ok:
		color.Red("                     SWAP FAILED")
		fmt.Printf("\n  Step:   %s\n", failed.Title)
		fmt.Printf("  Reason: %s\n", failed.Description)
		if failed.Error != "" {
			fmt.Printf("  Error:  %s\n", failed.Error)
		}
	default:
		color.Yellow("                    SWAP INTERRUPTED")
	}
	fmt.Println(strings.Repeat("=", 60))
}
