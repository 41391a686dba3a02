package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ActivityType identifies the kind of conversational event an Activity carries.
type ActivityType string

const (
	ActivityMessage            ActivityType = "message"
	ActivityEvent              ActivityType = "event"
	ActivityTrace              ActivityType = "trace"
	ActivityEndOfConversation  ActivityType = "endOfConversation"
	ActivityConversationUpdate ActivityType = "conversationUpdate"
	ActivityInvoke             ActivityType = "invoke"

	// ActivityDelay is not part of the wire schema. It is simulated locally by
	// the adapter instead of being transmitted.
	ActivityDelay ActivityType = "delay"
)

// Event names exchanged between a parent bot and a skill.
const (
	EventTokenRequest    = "tokens/request"
	EventTokenResponse   = "tokens/response"
	EventSkillBegin      = "skillBegin"
	EventReprompt        = "skill/reprompt"
	EventCancelAllSkills = "skill/cancelallskilldialogs"
)

// EndOfConversation codes carried on terminal activities.
const (
	CodeCompletedSuccessfully = "completedSuccessfully"
	CodeUserCancelled         = "userCancelled"
	CodeBotTimedOut           = "botTimedOut"
)

// Channel identifiers with special handling.
const (
	// ChannelEmulator is the development emulator. Trace activities are only
	// delivered on this channel.
	ChannelEmulator = "emulator"
	ChannelTest     = "test"
)

// ChannelAccount identifies a participant (bot or user) on a channel.
type ChannelAccount struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

// ConversationAccount identifies the conversation an activity belongs to.
type ConversationAccount struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	IsGroup bool   `json:"isGroup,omitempty"`
}

// Activity is the tagged envelope representing one conversational event
// exchanged between a parent bot and a skill. Every outbound Activity must
// carry a non-empty ID before it reaches a transport; EnsureID is called by
// whichever component last mutates the activity before send.
type Activity struct {
	Type         ActivityType        `json:"type"`
	ID           string              `json:"id,omitempty"`
	ReplyToID    string              `json:"replyToId,omitempty"`
	Name         string              `json:"name,omitempty"`
	Text         string              `json:"text,omitempty"`
	Value        any                 `json:"value,omitempty"`
	Code         string              `json:"code,omitempty"`
	ChannelID    string              `json:"channelId,omitempty"`
	CallerID     string              `json:"callerId,omitempty"`
	From         ChannelAccount      `json:"from,omitempty"`
	Recipient    ChannelAccount      `json:"recipient,omitempty"`
	Conversation ConversationAccount `json:"conversation,omitempty"`
	ServiceURL   string              `json:"serviceUrl,omitempty"`
	Locale       string              `json:"locale,omitempty"`
	Timestamp    time.Time           `json:"timestamp,omitempty"`
}

// NewActivity creates an activity of the given type.
func NewActivity(t ActivityType) *Activity {
	return &Activity{Type: t, Timestamp: time.Now().UTC()}
}

// NewMessageActivity creates a message activity with the given text.
func NewMessageActivity(text string) *Activity {
	a := NewActivity(ActivityMessage)
	a.Text = text
	return a
}

// NewEventActivity creates an event activity with the given name and payload.
func NewEventActivity(name string, value any) *Activity {
	a := NewActivity(ActivityEvent)
	a.Name = name
	a.Value = value
	return a
}

// NewTraceActivity creates a trace activity. Traces are diagnostic and are
// suppressed by the adapter on every channel except the emulator.
func NewTraceActivity(text string) *Activity {
	a := NewActivity(ActivityTrace)
	a.Text = text
	return a
}

// NewEndOfConversationActivity creates a terminal activity with the given
// code and optional result payload.
func NewEndOfConversationActivity(code string, value any) *Activity {
	a := NewActivity(ActivityEndOfConversation)
	a.Code = code
	a.Value = value
	return a
}

// NewDelayActivity creates a local delay pseudo-activity. The adapter sleeps
// for the duration instead of sending anything over the wire.
func NewDelayActivity(d time.Duration) *Activity {
	a := NewActivity(ActivityDelay)
	a.Value = d.Milliseconds()
	return a
}

// EnsureID assigns a generated correlation id when the activity has none,
// and returns the id in effect.
func (a *Activity) EnsureID() string {
	if strings.TrimSpace(a.ID) == "" {
		a.ID = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return a.ID
}

// CreateReply builds a reply activity addressed back at the sender, carrying
// over the conversation, channel and locale of the original.
func (a *Activity) CreateReply(text string) *Activity {
	return &Activity{
		Type:         ActivityMessage,
		Text:         text,
		ReplyToID:    a.ID,
		ChannelID:    a.ChannelID,
		ServiceURL:   a.ServiceURL,
		Conversation: a.Conversation,
		From:         a.Recipient,
		Recipient:    a.From,
		Locale:       a.Locale,
		Timestamp:    time.Now().UTC(),
	}
}

// ValueAs decodes the activity value into target via JSON. It accepts both
// decoded payloads (maps produced by unmarshalling the envelope) and typed
// values set locally.
func (a *Activity) ValueAs(target any) error {
	if a.Value == nil {
		return fmt.Errorf("activity %s: no value payload", a.ID)
	}
	data, err := json.Marshal(a.Value)
	if err != nil {
		return fmt.Errorf("encode activity value: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode activity value: %w", err)
	}
	return nil
}

// DelayDuration reads the simulated delay from a delay pseudo-activity.
func (a *Activity) DelayDuration() time.Duration {
	switch v := a.Value.(type) {
	case int64:
		return time.Duration(v) * time.Millisecond
	case int:
		return time.Duration(v) * time.Millisecond
	case float64:
		return time.Duration(v) * time.Millisecond
	default:
		return 0
	}
}

// Validate checks the minimal envelope invariants for an inbound activity.
func (a *Activity) Validate() error {
	if a == nil {
		return ErrNilActivity
	}
	if a.Type == "" {
		return ErrMissingType
	}
	if a.Conversation.ID == "" {
		return ErrMissingConversation
	}
	return nil
}
