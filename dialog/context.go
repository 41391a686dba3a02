package dialog

import (
	"context"
	"errors"

	"github.com/BaSui01/skillflow/adapter"
)

// Frame is one suspended dialog on the stack. State must stay
// JSON-serializable so the whole stack survives persistence.
type Frame struct {
	DialogID string         `json:"dialogId"`
	State    map[string]any `json:"state"`
}

// State is the persisted dialog stack for one conversation.
type State struct {
	Stack []Frame `json:"stack"`
}

// Context drives the dialog stack for one turn.
type Context struct {
	dialogs *Set
	turn    *adapter.TurnContext
	state   *State
}

// NewContext binds a dialog set and persisted state to the current turn.
func NewContext(dialogs *Set, turn *adapter.TurnContext, state *State) *Context {
	if state == nil {
		state = &State{}
	}
	return &Context{dialogs: dialogs, turn: turn, state: state}
}

// Turn returns the adapter turn context for sending activities.
func (dc *Context) Turn() *adapter.TurnContext {
	return dc.turn
}

// State returns the underlying stack state for persistence.
func (dc *Context) State() *State {
	return dc.state
}

// ActiveFrame returns the top of the stack, or nil when idle.
func (dc *Context) ActiveFrame() *Frame {
	if len(dc.state.Stack) == 0 {
		return nil
	}
	return &dc.state.Stack[len(dc.state.Stack)-1]
}

// Depth reports how many dialogs are suspended on the stack.
func (dc *Context) Depth() int {
	return len(dc.state.Stack)
}

// BeginDialog pushes a new frame for id and starts the dialog.
func (dc *Context) BeginDialog(ctx context.Context, id string, options any) (*TurnResult, error) {
	d, err := dc.dialogs.Find(id)
	if err != nil {
		return nil, err
	}
	dc.state.Stack = append(dc.state.Stack, Frame{
		DialogID: id,
		State:    make(map[string]any),
	})
	return d.BeginDialog(ctx, dc, options)
}

// ContinueDialog routes the turn's activity to the active dialog. With an
// empty stack the turn result is StatusEmpty and the caller decides what to
// run next.
func (dc *Context) ContinueDialog(ctx context.Context) (*TurnResult, error) {
	frame := dc.ActiveFrame()
	if frame == nil {
		return &TurnResult{Status: StatusEmpty}, nil
	}
	d, err := dc.dialogs.Find(frame.DialogID)
	if err != nil {
		return nil, err
	}
	return d.ContinueDialog(ctx, dc)
}

// EndDialog pops the active frame. When a parent remains suspended below,
// control resumes there with the child's result; otherwise the stack is done.
func (dc *Context) EndDialog(ctx context.Context, result any) (*TurnResult, error) {
	if len(dc.state.Stack) == 0 {
		return nil, ErrNoActiveDialog
	}
	dc.state.Stack = dc.state.Stack[:len(dc.state.Stack)-1]

	parent := dc.ActiveFrame()
	if parent == nil {
		return &TurnResult{Status: StatusComplete, Result: result}, nil
	}
	d, err := dc.dialogs.Find(parent.DialogID)
	if err != nil {
		return nil, err
	}
	return d.ResumeDialog(ctx, dc, result)
}

// ReplaceDialog swaps the active frame for a fresh run of id, keeping the
// rest of the stack intact.
func (dc *Context) ReplaceDialog(ctx context.Context, id string, options any) (*TurnResult, error) {
	if len(dc.state.Stack) == 0 {
		return nil, ErrNoActiveDialog
	}
	dc.state.Stack = dc.state.Stack[:len(dc.state.Stack)-1]
	return dc.BeginDialog(ctx, id, options)
}

// CancelAllDialogs tears down the whole stack without resuming anything.
// Cancelable dialogs are notified top-down before their frames are dropped.
// A no-op on an idle stack.
func (dc *Context) CancelAllDialogs(ctx context.Context) (*TurnResult, error) {
	if len(dc.state.Stack) == 0 {
		return &TurnResult{Status: StatusEmpty}, nil
	}
	var errs []error
	for i := len(dc.state.Stack) - 1; i >= 0; i-- {
		d, err := dc.dialogs.Find(dc.state.Stack[i].DialogID)
		if err != nil {
			continue
		}
		if c, ok := d.(Cancelable); ok {
			if err := c.CancelDialog(ctx, dc); err != nil {
				errs = append(errs, err)
			}
		}
	}
	dc.state.Stack = nil
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &TurnResult{Status: StatusCancelled}, nil
}

// RepromptDialog asks the active dialog to re-issue its pending question.
// Dialogs that cannot reprompt are silently skipped.
func (dc *Context) RepromptDialog(ctx context.Context) error {
	frame := dc.ActiveFrame()
	if frame == nil {
		return nil
	}
	d, err := dc.dialogs.Find(frame.DialogID)
	if err != nil {
		return err
	}
	if r, ok := d.(Repromptable); ok {
		return r.RepromptDialog(ctx, dc)
	}
	return nil
}

// frameInt reads an integer from persisted frame state. JSON round-trips
// store numbers as float64.
func frameInt(state map[string]any, key string) int {
	switch v := state[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// frameString reads a string from persisted frame state.
func frameString(state map[string]any, key string) string {
	s, _ := state[key].(string)
	return s
}
