package adapter

import (
	"context"

	"github.com/BaSui01/skillflow/types"
)

// TurnHandler runs the bot's logic for one turn.
type TurnHandler func(ctx context.Context, tc *TurnContext) error

// Middleware wraps a TurnHandler. Middleware registered on the adapter runs
// in registration order around every processed turn.
type Middleware func(next TurnHandler) TurnHandler

// TurnContext carries the inbound activity and send operations for exactly
// one turn. It is not safe for use after the turn completes.
type TurnContext struct {
	adapter  *SkillAdapter
	activity *types.Activity
	values   map[string]any
}

func newTurnContext(a *SkillAdapter, activity *types.Activity) *TurnContext {
	return &TurnContext{
		adapter:  a,
		activity: activity,
		values:   make(map[string]any),
	}
}

// Activity returns the inbound activity for this turn.
func (tc *TurnContext) Activity() *types.Activity {
	return tc.activity
}

// Reference returns the durable conversation reference for this turn.
func (tc *TurnContext) Reference() types.ConversationReference {
	return types.GetConversationReference(tc.activity)
}

// Set stores a turn-scoped value (recognizer results, auth state).
func (tc *TurnContext) Set(key string, value any) {
	tc.values[key] = value
}

// Get retrieves a turn-scoped value.
func (tc *TurnContext) Get(key string) (any, bool) {
	v, ok := tc.values[key]
	return v, ok
}

// SendActivity sends a single activity and returns its resource response.
func (tc *TurnContext) SendActivity(ctx context.Context, activity *types.Activity) (*types.ResourceResponse, error) {
	responses, err := tc.adapter.SendActivities(ctx, tc, []*types.Activity{activity})
	if err != nil {
		return nil, err
	}
	return &responses[0], nil
}

// SendReply sends a plain text reply to the inbound activity.
func (tc *TurnContext) SendReply(ctx context.Context, text string) (*types.ResourceResponse, error) {
	return tc.SendActivity(ctx, tc.activity.CreateReply(text))
}

// SendTrace sends a diagnostic trace activity. The adapter suppresses it on
// every channel except the emulator.
func (tc *TurnContext) SendTrace(ctx context.Context, text string) error {
	trace := types.NewTraceActivity(text)
	trace.ReplyToID = tc.activity.ID
	trace.ChannelID = tc.activity.ChannelID
	trace.Conversation = tc.activity.Conversation
	_, err := tc.SendActivity(ctx, trace)
	return err
}

// UpdateActivity replaces a previously sent activity.
func (tc *TurnContext) UpdateActivity(ctx context.Context, activity *types.Activity) (*types.ResourceResponse, error) {
	return tc.adapter.UpdateActivity(ctx, tc, activity)
}

// DeleteActivity removes a previously sent activity by reference.
func (tc *TurnContext) DeleteActivity(ctx context.Context, reference types.ConversationReference) error {
	return tc.adapter.DeleteActivity(ctx, tc, reference)
}

// SendRemoteTokenRequestEvent asks the parent bot to resolve a user token by
// emitting a tokens/request event back over the transport.
func (tc *TurnContext) SendRemoteTokenRequestEvent(ctx context.Context) error {
	return tc.adapter.SendRemoteTokenRequestEvent(ctx, tc)
}
