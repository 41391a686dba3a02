package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivity_EnsureID(t *testing.T) {
	a := NewMessageActivity("hello")
	require.Empty(t, a.ID)

	id := a.EnsureID()
	assert.NotEmpty(t, id)
	assert.Equal(t, id, a.ID)

	// A second call must not replace an existing id.
	assert.Equal(t, id, a.EnsureID())
}

func TestActivity_EnsureID_WhitespaceOnly(t *testing.T) {
	a := NewMessageActivity("hello")
	a.ID = "   "
	assert.NotEqual(t, "   ", a.EnsureID())
	assert.NotEmpty(t, a.ID)
}

func TestActivity_CreateReply(t *testing.T) {
	a := &Activity{
		Type:         ActivityMessage,
		ID:           "in-1",
		ChannelID:    ChannelTest,
		ServiceURL:   "http://localhost",
		Conversation: ConversationAccount{ID: "conv-1"},
		From:         ChannelAccount{ID: "user"},
		Recipient:    ChannelAccount{ID: "bot"},
		Locale:       "en-us",
	}

	reply := a.CreateReply("hi there")

	assert.Equal(t, ActivityMessage, reply.Type)
	assert.Equal(t, "hi there", reply.Text)
	assert.Equal(t, "in-1", reply.ReplyToID)
	assert.Equal(t, "conv-1", reply.Conversation.ID)
	assert.Equal(t, "bot", reply.From.ID)
	assert.Equal(t, "user", reply.Recipient.ID)
	assert.Equal(t, "en-us", reply.Locale)
}

func TestActivity_ValueAs_RoundTrip(t *testing.T) {
	payload := TokenResponse{ConnectionName: "AzureAD", Token: "tok"}
	a := NewEventActivity(EventTokenResponse, payload)

	var decoded TokenResponse
	require.NoError(t, a.ValueAs(&decoded))
	assert.Equal(t, payload, decoded)
}

func TestActivity_ValueAs_AfterWireRoundTrip(t *testing.T) {
	a := NewEventActivity(EventTokenResponse, TokenResponse{ConnectionName: "Google", Token: "tok2"})
	a.EnsureID()

	data, err := json.Marshal(a)
	require.NoError(t, err)

	var wire Activity
	require.NoError(t, json.Unmarshal(data, &wire))

	// Value decoded from the wire is a map; ValueAs must still recover the type.
	var decoded TokenResponse
	require.NoError(t, wire.ValueAs(&decoded))
	assert.Equal(t, "Google", decoded.ConnectionName)
	assert.Equal(t, "tok2", decoded.Token)
}

func TestActivity_ValueAs_NoValue(t *testing.T) {
	a := NewMessageActivity("x")
	var out map[string]any
	assert.Error(t, a.ValueAs(&out))
}

func TestActivity_DelayDuration(t *testing.T) {
	a := NewDelayActivity(1500 * time.Millisecond)
	assert.Equal(t, 1500*time.Millisecond, a.DelayDuration())

	// After a wire round trip the value comes back as float64.
	data, err := json.Marshal(a)
	require.NoError(t, err)
	var wire Activity
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, 1500*time.Millisecond, wire.DelayDuration())
}

func TestActivity_Validate(t *testing.T) {
	var nilActivity *Activity
	assert.ErrorIs(t, nilActivity.Validate(), ErrNilActivity)

	a := &Activity{}
	assert.ErrorIs(t, a.Validate(), ErrMissingType)

	a.Type = ActivityMessage
	assert.ErrorIs(t, a.Validate(), ErrMissingConversation)

	a.Conversation.ID = "conv"
	assert.NoError(t, a.Validate())
}

func TestGetConversationReference(t *testing.T) {
	a := &Activity{
		Type:         ActivityMessage,
		ID:           "act-1",
		ChannelID:    ChannelTest,
		ServiceURL:   "http://localhost",
		Conversation: ConversationAccount{ID: "conv-1"},
		From:         ChannelAccount{ID: "user"},
		Recipient:    ChannelAccount{ID: "bot"},
	}

	ref := GetConversationReference(a)
	assert.Equal(t, "act-1", ref.ActivityID)
	assert.Equal(t, "user", ref.User.ID)
	assert.Equal(t, "bot", ref.Bot.ID)
	assert.Equal(t, "conv-1", ref.Conversation.ID)
}

func TestApplyConversationReference(t *testing.T) {
	ref := ConversationReference{
		ActivityID:   "act-1",
		User:         ChannelAccount{ID: "user"},
		Bot:          ChannelAccount{ID: "bot"},
		Conversation: ConversationAccount{ID: "conv-1"},
		ChannelID:    ChannelTest,
		ServiceURL:   "http://localhost",
	}

	out := ApplyConversationReference(NewMessageActivity("proactive"), ref, false)
	assert.Equal(t, "bot", out.From.ID)
	assert.Equal(t, "user", out.Recipient.ID)
	assert.Equal(t, "act-1", out.ReplyToID)

	in := ApplyConversationReference(NewMessageActivity("resume"), ref, true)
	assert.Equal(t, "user", in.From.ID)
	assert.Equal(t, "bot", in.Recipient.ID)
	assert.Equal(t, "act-1", in.ID)
}

func TestGetErrorCode(t *testing.T) {
	err := NewError(ErrCodeTransport, "callback failed").WithCause(assert.AnError)
	assert.Equal(t, ErrCodeTransport, GetErrorCode(err))
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, ErrorCode(""), GetErrorCode(assert.AnError))
}
