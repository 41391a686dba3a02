package dialog

import (
	"context"
)

// ComponentDialog groups a reusable flow behind a single dialog id. On
// begin it pushes its initial child onto the shared stack; when the child
// flow completes, OnEnd decides the component's own result.
type ComponentDialog struct {
	id        string
	initialID string

	// OnEnd runs when the component's child flow finished. A nil OnEnd ends
	// the component with the child's result unchanged.
	OnEnd func(ctx context.Context, dc *Context, result any) (*TurnResult, error)
}

// NewComponentDialog creates a component that starts initialID when begun.
// Child dialogs must be registered on the same Set.
func NewComponentDialog(id, initialID string) *ComponentDialog {
	return &ComponentDialog{id: id, initialID: initialID}
}

func (c *ComponentDialog) ID() string { return c.id }

func (c *ComponentDialog) BeginDialog(ctx context.Context, dc *Context, options any) (*TurnResult, error) {
	return dc.BeginDialog(ctx, c.initialID, options)
}

func (c *ComponentDialog) ContinueDialog(ctx context.Context, dc *Context) (*TurnResult, error) {
	// The component itself never waits on activities; reaching here means
	// the child flow has unwound without ending the component.
	return dc.EndDialog(ctx, nil)
}

func (c *ComponentDialog) ResumeDialog(ctx context.Context, dc *Context, result any) (*TurnResult, error) {
	if c.OnEnd != nil {
		return c.OnEnd(ctx, dc, result)
	}
	return dc.EndDialog(ctx, result)
}
