package state

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/skillflow/adapter"
)

const turnRecordKey = "state.conversationRecord"

// Middleware loads the conversation record before the turn handler runs and
// saves it back once the handler returns without error, keyed by the
// activity's conversation id. Handlers reach the record via FromTurn.
func Middleware(store Store, logger *zap.Logger) adapter.Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.With(zap.String("component", "state_middleware"))

	return func(next adapter.TurnHandler) adapter.TurnHandler {
		return func(ctx context.Context, tc *adapter.TurnContext) error {
			conversationID := tc.Activity().Conversation.ID
			record, err := store.Load(ctx, conversationID)
			if err != nil {
				return fmt.Errorf("state: load conversation %q: %w", conversationID, err)
			}
			tc.Set(turnRecordKey, record)

			if err := next(ctx, tc); err != nil {
				// Failed turns do not persist half-applied state.
				return err
			}

			if err := store.Save(ctx, conversationID, record); err != nil {
				return fmt.Errorf("state: save conversation %q: %w", conversationID, err)
			}
			log.Debug("conversation state saved", zap.String("conversation_id", conversationID))
			return nil
		}
	}
}

// FromTurn returns the conversation record loaded by Middleware, or a fresh
// detached record when the middleware is not installed.
func FromTurn(tc *adapter.TurnContext) *ConversationRecord {
	if v, ok := tc.Get(turnRecordKey); ok {
		if record, ok := v.(*ConversationRecord); ok {
			return record
		}
	}
	return NewConversationRecord()
}
