package types

// ConversationReference is a durable pointer sufficient to resume a
// conversation without the original activity. It is created by the adapter on
// the first turn and persisted in conversation state for proactive sends.
type ConversationReference struct {
	ActivityID   string              `json:"activityId,omitempty"`
	User         ChannelAccount      `json:"user,omitempty"`
	Bot          ChannelAccount      `json:"bot,omitempty"`
	Conversation ConversationAccount `json:"conversation,omitempty"`
	ChannelID    string              `json:"channelId,omitempty"`
	ServiceURL   string              `json:"serviceUrl,omitempty"`
	Locale       string              `json:"locale,omitempty"`
}

// GetConversationReference extracts a durable reference from an activity.
func GetConversationReference(a *Activity) ConversationReference {
	return ConversationReference{
		ActivityID:   a.ID,
		User:         a.From,
		Bot:          a.Recipient,
		Conversation: a.Conversation,
		ChannelID:    a.ChannelID,
		ServiceURL:   a.ServiceURL,
		Locale:       a.Locale,
	}
}

// ApplyConversationReference stamps the reference onto an activity. When
// incoming is true the activity is shaped as if it arrived from the user,
// otherwise as an outbound bot activity.
func ApplyConversationReference(a *Activity, ref ConversationReference, incoming bool) *Activity {
	a.ChannelID = ref.ChannelID
	a.ServiceURL = ref.ServiceURL
	a.Conversation = ref.Conversation
	if ref.Locale != "" {
		a.Locale = ref.Locale
	}
	if incoming {
		a.From = ref.User
		a.Recipient = ref.Bot
		if ref.ActivityID != "" {
			a.ID = ref.ActivityID
		}
	} else {
		a.From = ref.Bot
		a.Recipient = ref.User
		if ref.ActivityID != "" {
			a.ReplyToID = ref.ActivityID
		}
	}
	return a
}
