package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/skillflow/adapter"
	"github.com/BaSui01/skillflow/types"
)

// referenceRow is the persisted form of a conversation reference.
type referenceRow struct {
	ConversationID string `gorm:"primaryKey;size:256"`
	Payload        []byte
	UpdatedAt      time.Time
}

func (referenceRow) TableName() string { return "conversation_references" }

// ReferenceStore durably keeps one ConversationReference per conversation,
// so proactive turns survive process restarts.
type ReferenceStore struct {
	db *gorm.DB
}

// NewReferenceStore migrates the schema and returns the store.
func NewReferenceStore(db *gorm.DB) (*ReferenceStore, error) {
	if err := db.AutoMigrate(&referenceRow{}); err != nil {
		return nil, fmt.Errorf("state: migrate references: %w", err)
	}
	return &ReferenceStore{db: db}, nil
}

// Save upserts the reference for its conversation.
func (s *ReferenceStore) Save(ctx context.Context, ref types.ConversationReference) error {
	if ref.Conversation.ID == "" {
		return errors.New("state: reference has no conversation id")
	}
	payload, err := json.Marshal(ref)
	if err != nil {
		return err
	}
	row := referenceRow{
		ConversationID: ref.Conversation.ID,
		Payload:        payload,
		UpdatedAt:      time.Now().UTC(),
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

// Get returns the stored reference for a conversation.
func (s *ReferenceStore) Get(ctx context.Context, conversationID string) (types.ConversationReference, error) {
	var row referenceRow
	err := s.db.WithContext(ctx).First(&row, "conversation_id = ?", conversationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.ConversationReference{}, fmt.Errorf("%w: conversation %q", ErrNotFound, conversationID)
	}
	if err != nil {
		return types.ConversationReference{}, err
	}
	var ref types.ConversationReference
	if err := json.Unmarshal(row.Payload, &ref); err != nil {
		return types.ConversationReference{}, fmt.Errorf("state: decode reference: %w", err)
	}
	return ref, nil
}

// All returns every stored reference, most recently updated first.
func (s *ReferenceStore) All(ctx context.Context) ([]types.ConversationReference, error) {
	var rows []referenceRow
	if err := s.db.WithContext(ctx).Order("updated_at desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	refs := make([]types.ConversationReference, 0, len(rows))
	for _, row := range rows {
		var ref types.ConversationReference
		if err := json.Unmarshal(row.Payload, &ref); err != nil {
			return nil, fmt.Errorf("state: decode reference: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// Delete removes the reference for a conversation.
func (s *ReferenceStore) Delete(ctx context.Context, conversationID string) error {
	return s.db.WithContext(ctx).Delete(&referenceRow{}, "conversation_id = ?", conversationID).Error
}

// ReferenceMiddleware records the turn's conversation reference before the
// handler runs, keeping the store current for proactive sends. A failed write
// is logged without failing the turn.
func ReferenceMiddleware(store *ReferenceStore, logger *zap.Logger) adapter.Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.With(zap.String("component", "reference_middleware"))

	return func(next adapter.TurnHandler) adapter.TurnHandler {
		return func(ctx context.Context, tc *adapter.TurnContext) error {
			ref := tc.Reference()
			if ref.Conversation.ID != "" {
				if err := store.Save(ctx, ref); err != nil {
					log.Warn("conversation reference not saved",
						zap.String("conversation_id", ref.Conversation.ID),
						zap.Error(err),
					)
				}
			}
			return next(ctx, tc)
		}
	}
}
