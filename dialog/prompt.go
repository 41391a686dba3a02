package dialog

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/skillflow/types"
)

const (
	promptTextKey    = "prompt"
	promptRetryKey   = "retryPrompt"
	promptChoicesKey = "choices"
	promptEventKey   = "eventName"
)

// PromptOptions configures how a prompt asks and re-asks.
type PromptOptions struct {
	Prompt      string   `json:"prompt,omitempty"`
	RetryPrompt string   `json:"retryPrompt,omitempty"`
	Choices     []string `json:"choices,omitempty"`
}

// PromptValidator inspects a recognized value before the prompt resolves.
// Returning false keeps the prompt waiting and triggers the retry prompt.
type PromptValidator func(ctx context.Context, dc *Context, value any) bool

// TextPrompt waits for a non-empty message from the user.
type TextPrompt struct {
	id        string
	validator PromptValidator
}

// NewTextPrompt creates a text prompt. validator may be nil, in which case
// any non-empty message resolves it.
func NewTextPrompt(id string, validator PromptValidator) *TextPrompt {
	return &TextPrompt{id: id, validator: validator}
}

func (p *TextPrompt) ID() string { return p.id }

func (p *TextPrompt) BeginDialog(ctx context.Context, dc *Context, options any) (*TurnResult, error) {
	storePromptOptions(dc.ActiveFrame(), options)
	if err := sendPrompt(ctx, dc, promptTextKey); err != nil {
		return nil, err
	}
	return &TurnResult{Status: StatusWaiting}, nil
}

func (p *TextPrompt) ContinueDialog(ctx context.Context, dc *Context) (*TurnResult, error) {
	activity := dc.Turn().Activity()
	text := strings.TrimSpace(activity.Text)

	valid := activity.Type == types.ActivityMessage && text != ""
	if valid && p.validator != nil {
		valid = p.validator(ctx, dc, text)
	}
	if !valid {
		if err := sendPrompt(ctx, dc, promptRetryKey); err != nil {
			return nil, err
		}
		return &TurnResult{Status: StatusWaiting}, nil
	}
	return dc.EndDialog(ctx, text)
}

func (p *TextPrompt) ResumeDialog(ctx context.Context, dc *Context, _ any) (*TurnResult, error) {
	if err := p.RepromptDialog(ctx, dc); err != nil {
		return nil, err
	}
	return &TurnResult{Status: StatusWaiting}, nil
}

func (p *TextPrompt) RepromptDialog(ctx context.Context, dc *Context) error {
	return sendPrompt(ctx, dc, promptTextKey)
}

// ConfirmPrompt waits for a yes/no answer and resolves to a bool.
type ConfirmPrompt struct {
	id string
}

// NewConfirmPrompt creates a yes/no prompt.
func NewConfirmPrompt(id string) *ConfirmPrompt {
	return &ConfirmPrompt{id: id}
}

func (p *ConfirmPrompt) ID() string { return p.id }

func (p *ConfirmPrompt) BeginDialog(ctx context.Context, dc *Context, options any) (*TurnResult, error) {
	storePromptOptions(dc.ActiveFrame(), options)
	if err := sendPrompt(ctx, dc, promptTextKey); err != nil {
		return nil, err
	}
	return &TurnResult{Status: StatusWaiting}, nil
}

func (p *ConfirmPrompt) ContinueDialog(ctx context.Context, dc *Context) (*TurnResult, error) {
	answer, ok := recognizeConfirm(dc.Turn().Activity().Text)
	if !ok {
		if err := sendPrompt(ctx, dc, promptRetryKey); err != nil {
			return nil, err
		}
		return &TurnResult{Status: StatusWaiting}, nil
	}
	return dc.EndDialog(ctx, answer)
}

func (p *ConfirmPrompt) ResumeDialog(ctx context.Context, dc *Context, _ any) (*TurnResult, error) {
	if err := p.RepromptDialog(ctx, dc); err != nil {
		return nil, err
	}
	return &TurnResult{Status: StatusWaiting}, nil
}

func (p *ConfirmPrompt) RepromptDialog(ctx context.Context, dc *Context) error {
	return sendPrompt(ctx, dc, promptTextKey)
}

func recognizeConfirm(text string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "yes", "y", "yeah", "yep", "sure", "ok", "confirm":
		return true, true
	case "no", "n", "nope", "cancel", "never mind":
		return false, true
	default:
		return false, false
	}
}

// ChoicePrompt asks the user to pick one of a closed set of options and
// resolves to the chosen string. Answers match by exact text or 1-based
// ordinal.
type ChoicePrompt struct {
	id string
}

// NewChoicePrompt creates a closed-choice prompt.
func NewChoicePrompt(id string) *ChoicePrompt {
	return &ChoicePrompt{id: id}
}

func (p *ChoicePrompt) ID() string { return p.id }

func (p *ChoicePrompt) BeginDialog(ctx context.Context, dc *Context, options any) (*TurnResult, error) {
	storePromptOptions(dc.ActiveFrame(), options)
	if err := p.sendChoices(ctx, dc); err != nil {
		return nil, err
	}
	return &TurnResult{Status: StatusWaiting}, nil
}

func (p *ChoicePrompt) ContinueDialog(ctx context.Context, dc *Context) (*TurnResult, error) {
	choices := promptChoices(dc.ActiveFrame())
	text := strings.TrimSpace(dc.Turn().Activity().Text)

	for i, choice := range choices {
		if strings.EqualFold(text, choice) || text == fmt.Sprintf("%d", i+1) {
			return dc.EndDialog(ctx, choice)
		}
	}

	if retry := frameString(dc.ActiveFrame().State, promptRetryKey); retry != "" {
		if _, err := dc.Turn().SendReply(ctx, retry); err != nil {
			return nil, err
		}
	}
	if err := p.sendChoices(ctx, dc); err != nil {
		return nil, err
	}
	return &TurnResult{Status: StatusWaiting}, nil
}

func (p *ChoicePrompt) ResumeDialog(ctx context.Context, dc *Context, _ any) (*TurnResult, error) {
	if err := p.RepromptDialog(ctx, dc); err != nil {
		return nil, err
	}
	return &TurnResult{Status: StatusWaiting}, nil
}

func (p *ChoicePrompt) RepromptDialog(ctx context.Context, dc *Context) error {
	return p.sendChoices(ctx, dc)
}

func (p *ChoicePrompt) sendChoices(ctx context.Context, dc *Context) error {
	frame := dc.ActiveFrame()
	choices := promptChoices(frame)

	var b strings.Builder
	b.WriteString(frameString(frame.State, promptTextKey))
	for i, choice := range choices {
		b.WriteString(fmt.Sprintf("\n%d. %s", i+1, choice))
	}
	_, err := dc.Turn().SendReply(ctx, b.String())
	return err
}

// EventPrompt waits for an inbound event activity with a matching name,
// ignoring everything else. It resolves to the full event activity.
type EventPrompt struct {
	id        string
	eventName string
	validator PromptValidator
}

// NewEventPrompt creates a prompt resolved by an event named eventName. The
// validator receives the *types.Activity of the matching event.
func NewEventPrompt(id, eventName string, validator PromptValidator) *EventPrompt {
	return &EventPrompt{id: id, eventName: eventName, validator: validator}
}

func (p *EventPrompt) ID() string { return p.id }

func (p *EventPrompt) BeginDialog(ctx context.Context, dc *Context, options any) (*TurnResult, error) {
	frame := dc.ActiveFrame()
	storePromptOptions(frame, options)
	frame.State[promptEventKey] = p.eventName
	if prompt := frameString(frame.State, promptTextKey); prompt != "" {
		if _, err := dc.Turn().SendReply(ctx, prompt); err != nil {
			return nil, err
		}
	}
	return &TurnResult{Status: StatusWaiting}, nil
}

func (p *EventPrompt) ContinueDialog(ctx context.Context, dc *Context) (*TurnResult, error) {
	activity := dc.Turn().Activity()

	matches := activity.Type == types.ActivityEvent && activity.Name == p.eventName
	if matches && p.validator != nil {
		matches = p.validator(ctx, dc, activity)
	}
	if !matches {
		return &TurnResult{Status: StatusWaiting}, nil
	}
	return dc.EndDialog(ctx, activity)
}

func (p *EventPrompt) ResumeDialog(_ context.Context, _ *Context, _ any) (*TurnResult, error) {
	return &TurnResult{Status: StatusWaiting}, nil
}

func storePromptOptions(frame *Frame, options any) {
	opts, ok := options.(PromptOptions)
	if !ok {
		if p, okPtr := options.(*PromptOptions); okPtr && p != nil {
			opts = *p
		}
	}
	frame.State[promptTextKey] = opts.Prompt
	frame.State[promptRetryKey] = opts.RetryPrompt
	if len(opts.Choices) > 0 {
		frame.State[promptChoicesKey] = opts.Choices
	}
}

func promptChoices(frame *Frame) []string {
	switch v := frame.State[promptChoicesKey].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, c := range v {
			if s, ok := c.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func sendPrompt(ctx context.Context, dc *Context, key string) error {
	text := frameString(dc.ActiveFrame().State, key)
	if text == "" && key == promptRetryKey {
		text = frameString(dc.ActiveFrame().State, promptTextKey)
	}
	if text == "" {
		return nil
	}
	_, err := dc.Turn().SendReply(ctx, text)
	return err
}
