package dialog

import (
	"context"
	"errors"
	"fmt"
)

// TurnStatus describes where the dialog stack stands after handling a turn.
type TurnStatus string

const (
	// StatusEmpty means no dialog is active.
	StatusEmpty TurnStatus = "empty"
	// StatusWaiting means the active dialog is suspended until the next
	// activity arrives.
	StatusWaiting TurnStatus = "waiting"
	// StatusComplete means the last dialog on the stack ended and produced
	// its result.
	StatusComplete TurnStatus = "complete"
	// StatusCancelled means the stack was torn down before completing.
	StatusCancelled TurnStatus = "cancelled"
)

// TurnResult is the outcome of driving the stack for one turn.
type TurnResult struct {
	Status TurnStatus
	Result any
}

var (
	ErrDialogNotFound = errors.New("dialog: not registered")
	ErrNoActiveDialog = errors.New("dialog: no active dialog")
)

// Dialog is a resumable conversation unit.
type Dialog interface {
	// ID uniquely identifies the dialog within its Set.
	ID() string
	// BeginDialog starts the dialog. The frame for it is already on the
	// stack when this is called.
	BeginDialog(ctx context.Context, dc *Context, options any) (*TurnResult, error)
	// ContinueDialog handles a new activity while this dialog is active.
	ContinueDialog(ctx context.Context, dc *Context) (*TurnResult, error)
	// ResumeDialog handles control returning from an ended child dialog.
	ResumeDialog(ctx context.Context, dc *Context, result any) (*TurnResult, error)
}

// Repromptable is implemented by dialogs that can re-issue their pending
// question, typically after the conversation was resumed out of band.
type Repromptable interface {
	RepromptDialog(ctx context.Context, dc *Context) error
}

// Cancelable is implemented by dialogs that hold state outside this process
// and must be told when their frame is torn down without completing.
type Cancelable interface {
	CancelDialog(ctx context.Context, dc *Context) error
}

// Set is a registry of dialogs addressable by id.
type Set struct {
	dialogs map[string]Dialog
}

// NewSet creates an empty dialog registry.
func NewSet() *Set {
	return &Set{dialogs: make(map[string]Dialog)}
}

// Add registers a dialog. Registering a duplicate id replaces the earlier
// dialog.
func (s *Set) Add(d Dialog) *Set {
	s.dialogs[d.ID()] = d
	return s
}

// Find looks a dialog up by id.
func (s *Set) Find(id string) (Dialog, error) {
	d, ok := s.dialogs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDialogNotFound, id)
	}
	return d, nil
}
