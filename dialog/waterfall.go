package dialog

import (
	"context"
)

const (
	stepIndexKey   = "stepIndex"
	stepOptionsKey = "options"
	stepValuesKey  = "values"
)

// WaterfallStepContext exposes the running waterfall to one step.
type WaterfallStepContext struct {
	*Context

	// Options carries what the waterfall was begun with.
	Options any
	// Result carries the resolved value of the previous step's child dialog
	// or prompt, nil on the first step.
	Result any
	// Values persists arbitrary data across the waterfall's steps.
	Values map[string]any

	waterfall *WaterfallDialog
}

// Next falls through to the following step within the same turn.
func (sc *WaterfallStepContext) Next(ctx context.Context, result any) (*TurnResult, error) {
	return sc.waterfall.advance(ctx, sc.Context, result)
}

// End finishes the waterfall and returns result to the suspended parent.
func (sc *WaterfallStepContext) End(ctx context.Context, result any) (*TurnResult, error) {
	return sc.EndDialog(ctx, result)
}

// WaterfallStep runs one stage of a waterfall.
type WaterfallStep func(ctx context.Context, sc *WaterfallStepContext) (*TurnResult, error)

// WaterfallDialog runs an ordered series of steps. Each step typically
// pushes a prompt or child dialog and the next step receives its result.
type WaterfallDialog struct {
	id    string
	steps []WaterfallStep
}

// NewWaterfallDialog creates a waterfall with the given steps.
func NewWaterfallDialog(id string, steps []WaterfallStep) *WaterfallDialog {
	return &WaterfallDialog{id: id, steps: steps}
}

func (w *WaterfallDialog) ID() string { return w.id }

func (w *WaterfallDialog) BeginDialog(ctx context.Context, dc *Context, options any) (*TurnResult, error) {
	frame := dc.ActiveFrame()
	frame.State[stepIndexKey] = 0
	frame.State[stepOptionsKey] = options
	frame.State[stepValuesKey] = make(map[string]any)
	return w.runStep(ctx, dc, 0, nil)
}

func (w *WaterfallDialog) ContinueDialog(ctx context.Context, dc *Context) (*TurnResult, error) {
	// A waterfall waits inside child dialogs, never on raw activities. An
	// activity landing here re-runs the current step.
	frame := dc.ActiveFrame()
	return w.runStep(ctx, dc, frameInt(frame.State, stepIndexKey), nil)
}

func (w *WaterfallDialog) ResumeDialog(ctx context.Context, dc *Context, result any) (*TurnResult, error) {
	return w.advance(ctx, dc, result)
}

func (w *WaterfallDialog) advance(ctx context.Context, dc *Context, result any) (*TurnResult, error) {
	frame := dc.ActiveFrame()
	next := frameInt(frame.State, stepIndexKey) + 1
	frame.State[stepIndexKey] = next
	return w.runStep(ctx, dc, next, result)
}

func (w *WaterfallDialog) runStep(ctx context.Context, dc *Context, index int, result any) (*TurnResult, error) {
	if index >= len(w.steps) {
		return dc.EndDialog(ctx, result)
	}

	frame := dc.ActiveFrame()
	values, _ := frame.State[stepValuesKey].(map[string]any)
	if values == nil {
		values = make(map[string]any)
		frame.State[stepValuesKey] = values
	}

	sc := &WaterfallStepContext{
		Context:   dc,
		Options:   frame.State[stepOptionsKey],
		Result:    result,
		Values:    values,
		waterfall: w,
	}
	return w.steps[index](ctx, sc)
}
