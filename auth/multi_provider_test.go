package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/skillflow/adapter"
	"github.com/BaSui01/skillflow/auth"
	"github.com/BaSui01/skillflow/dialog"
	"github.com/BaSui01/skillflow/transport"
	"github.com/BaSui01/skillflow/types"
)

// mockTokenProvider implements auth.TokenProvider through fn callbacks.
type mockTokenProvider struct {
	getUserTokenFn   func(ctx context.Context, userID, connectionName string) (*types.TokenResponse, error)
	getTokenStatusFn func(ctx context.Context, userID string) ([]types.TokenStatus, error)
	signOutUserFn    func(ctx context.Context, userID, connectionName string) error
}

func (m *mockTokenProvider) GetUserToken(ctx context.Context, userID, connectionName string) (*types.TokenResponse, error) {
	if m.getUserTokenFn != nil {
		return m.getUserTokenFn(ctx, userID, connectionName)
	}
	return &types.TokenResponse{ConnectionName: connectionName}, nil
}

func (m *mockTokenProvider) GetTokenStatus(ctx context.Context, userID string) ([]types.TokenStatus, error) {
	if m.getTokenStatusFn != nil {
		return m.getTokenStatusFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockTokenProvider) SignOutUser(ctx context.Context, userID, connectionName string) error {
	if m.signOutUserFn != nil {
		return m.signOutUserFn(ctx, userID, connectionName)
	}
	return nil
}

// captureChannel records every outbound activity.
type captureChannel struct {
	mu         sync.Mutex
	activities []types.Activity
}

func (c *captureChannel) Send(_ context.Context, req *transport.Request) (*transport.Response, error) {
	var a types.Activity
	if len(req.Body) > 0 {
		if err := req.BodyAs(&a); err != nil {
			return nil, err
		}
	}
	c.mu.Lock()
	c.activities = append(c.activities, a)
	c.mu.Unlock()
	return &transport.Response{StatusCode: http.StatusOK}, nil
}

func (c *captureChannel) Close() error { return nil }

func (c *captureChannel) sent() []types.Activity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Activity(nil), c.activities...)
}

func (c *captureChannel) texts() []string {
	var out []string
	for _, a := range c.sent() {
		if a.Type == types.ActivityMessage {
			out = append(out, a.Text)
		}
	}
	return out
}

type authBot struct {
	t       *testing.T
	adapter *adapter.SkillAdapter
	channel *captureChannel
	dialogs *dialog.Set
	state   *dialog.State
}

func newAuthBot(t *testing.T, d *auth.MultiProviderAuthDialog) *authBot {
	ch := &captureChannel{}
	return &authBot{
		t:       t,
		adapter: adapter.New(ch, adapter.Options{}, nil, nil),
		channel: ch,
		dialogs: dialog.NewSet().Add(d),
		state:   &dialog.State{},
	}
}

func (b *authBot) turn(activity *types.Activity) *dialog.TurnResult {
	b.t.Helper()

	var result *dialog.TurnResult
	_, err := b.adapter.ProcessActivity(context.Background(), activity, func(ctx context.Context, tc *adapter.TurnContext) error {
		dc := dialog.NewContext(b.dialogs, tc, b.state)
		r, err := dc.ContinueDialog(ctx)
		if err != nil {
			return err
		}
		if r.Status == dialog.StatusEmpty {
			r, err = dc.BeginDialog(ctx, "multiProviderAuth", nil)
			if err != nil {
				return err
			}
		}
		result = r
		b.state = dc.State()
		return nil
	})
	require.NoError(b.t, err)

	raw, err := json.Marshal(b.state)
	require.NoError(b.t, err)
	b.state = &dialog.State{}
	require.NoError(b.t, json.Unmarshal(raw, b.state))
	return result
}

func message(text string) *types.Activity {
	a := types.NewMessageActivity(text)
	a.ID = "msg-1"
	a.ChannelID = "test"
	a.Conversation = types.ConversationAccount{ID: "conv-1"}
	a.From = types.ChannelAccount{ID: "user-1"}
	a.Recipient = types.ChannelAccount{ID: "bot"}
	return a
}

func event(name string, value any) *types.Activity {
	a := types.NewEventActivity(name, value)
	a.ID = "evt-1"
	a.ChannelID = "test"
	a.Conversation = types.ConversationAccount{ID: "conv-1"}
	a.From = types.ChannelAccount{ID: "user-1"}
	return a
}

func azureConnection() auth.Connection {
	return auth.Connection{Name: "AzureAD", ServiceProviderDisplayName: "Azure Active Directory"}
}

func googleConnection() auth.Connection {
	return auth.Connection{Name: "GoogleConn", ServiceProviderDisplayName: "Google"}
}

func TestNewMultiProviderAuthDialog_Validation(t *testing.T) {
	_, err := auth.NewMultiProviderAuthDialog(auth.MultiProviderConfig{}, nil, nil)
	assert.ErrorIs(t, err, auth.ErrNoConnections)

	_, err = auth.NewMultiProviderAuthDialog(auth.MultiProviderConfig{
		Connections: []auth.Connection{{Name: "x", ServiceProviderDisplayName: "GitHub"}},
		Remote:      true,
	}, nil, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeUnknownProvider, types.GetErrorCode(err))

	_, err = auth.NewMultiProviderAuthDialog(auth.MultiProviderConfig{
		Connections: []auth.Connection{azureConnection()},
	}, nil, nil)
	assert.ErrorIs(t, err, auth.ErrNoTokenProvider)
}

func TestRemote_TokenHandoff(t *testing.T) {
	d, err := auth.NewMultiProviderAuthDialog(auth.MultiProviderConfig{
		Connections: []auth.Connection{azureConnection()},
		Remote:      true,
	}, nil, nil)
	require.NoError(t, err)

	b := newAuthBot(t, d)

	r := b.turn(message("do the thing"))
	assert.Equal(t, dialog.StatusWaiting, r.Status)

	sent := b.channel.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, types.ActivityEvent, sent[0].Type)
	assert.Equal(t, types.EventTokenRequest, sent[0].Name)

	r = b.turn(message("just chatting"))
	assert.Equal(t, dialog.StatusWaiting, r.Status, "non-event activities must not resolve the wait")

	r = b.turn(event(types.EventTokenResponse, types.TokenResponse{
		ConnectionName: "AzureAD",
		Token:          "remote-token",
	}))
	require.Equal(t, dialog.StatusComplete, r.Status)

	resolved, ok := r.Result.(*auth.ProviderTokenResponse)
	require.True(t, ok)
	assert.Equal(t, auth.ProviderAzureAD, resolved.AuthenticationProvider)
	assert.Equal(t, "remote-token", resolved.TokenResponse.Token)
}

func TestRemote_EmptyTokenFails(t *testing.T) {
	d, err := auth.NewMultiProviderAuthDialog(auth.MultiProviderConfig{
		Connections: []auth.Connection{azureConnection()},
		Remote:      true,
	}, nil, nil)
	require.NoError(t, err)

	b := newAuthBot(t, d)
	b.turn(message("go"))

	r := b.turn(event(types.EventTokenResponse, types.TokenResponse{ConnectionName: "AzureAD"}))
	assert.Equal(t, dialog.StatusCancelled, r.Status)
	assert.Equal(t, 0, len(b.state.Stack))
	assert.Contains(t, b.channel.texts(), "Sorry, I wasn't able to sign you in. Please try again later.")
}

func TestRemote_UnknownConnectionFails(t *testing.T) {
	d, err := auth.NewMultiProviderAuthDialog(auth.MultiProviderConfig{
		Connections: []auth.Connection{azureConnection()},
		Remote:      true,
	}, nil, nil)
	require.NoError(t, err)

	b := newAuthBot(t, d)
	b.turn(message("go"))

	r := b.turn(event(types.EventTokenResponse, types.TokenResponse{
		ConnectionName: "SomeOtherConn",
		Token:          "stray-token",
	}))
	assert.Equal(t, dialog.StatusCancelled, r.Status, "a token for an unconfigured connection must not resolve")
	assert.Equal(t, 0, len(b.state.Stack))
	assert.Contains(t, b.channel.texts(), "Sorry, I wasn't able to sign you in. Please try again later.")
}

func TestRemote_BoundedWait(t *testing.T) {
	d, err := auth.NewMultiProviderAuthDialog(auth.MultiProviderConfig{
		Connections:   []auth.Connection{azureConnection()},
		Remote:        true,
		RemoteTimeout: 5 * time.Millisecond,
	}, nil, nil)
	require.NoError(t, err)

	b := newAuthBot(t, d)
	b.turn(message("go"))

	time.Sleep(20 * time.Millisecond)

	r := b.turn(event(types.EventTokenResponse, types.TokenResponse{
		ConnectionName: "AzureAD",
		Token:          "late-token",
	}))
	assert.Equal(t, dialog.StatusCancelled, r.Status, "responses after the deadline must not resolve")
}

func TestLocal_CachedTokenSkipsPrompting(t *testing.T) {
	provider := &mockTokenProvider{
		getUserTokenFn: func(_ context.Context, _, connectionName string) (*types.TokenResponse, error) {
			return &types.TokenResponse{ConnectionName: connectionName, Token: "cached"}, nil
		},
	}
	d, err := auth.NewMultiProviderAuthDialog(auth.MultiProviderConfig{
		Connections: []auth.Connection{azureConnection()},
		Provider:    provider,
	}, nil, nil)
	require.NoError(t, err)

	b := newAuthBot(t, d)
	r := b.turn(message("go"))
	require.Equal(t, dialog.StatusComplete, r.Status)

	resolved := r.Result.(*auth.ProviderTokenResponse)
	assert.Equal(t, "cached", resolved.TokenResponse.Token)
	assert.Empty(t, b.channel.texts(), "no prompt when the token is already cached")
}

func TestLocal_PromptsThenResolves(t *testing.T) {
	provider := &mockTokenProvider{}
	d, err := auth.NewMultiProviderAuthDialog(auth.MultiProviderConfig{
		Connections: []auth.Connection{azureConnection()},
		Provider:    provider,
	}, nil, nil)
	require.NoError(t, err)

	b := newAuthBot(t, d)

	r := b.turn(message("go"))
	assert.Equal(t, dialog.StatusWaiting, r.Status)
	assert.Contains(t, b.channel.texts(), "Please sign in to Azure Active Directory.")

	r = b.turn(message("typed-token"))
	require.Equal(t, dialog.StatusComplete, r.Status)

	resolved := r.Result.(*auth.ProviderTokenResponse)
	assert.Equal(t, "typed-token", resolved.TokenResponse.Token)
	assert.Equal(t, "AzureAD", resolved.TokenResponse.ConnectionName)
}

func TestLocal_EmptyTokenFails(t *testing.T) {
	d, err := auth.NewMultiProviderAuthDialog(auth.MultiProviderConfig{
		Connections: []auth.Connection{azureConnection()},
		Provider:    &mockTokenProvider{},
	}, nil, nil)
	require.NoError(t, err)

	b := newAuthBot(t, d)
	b.turn(message("go"))

	r := b.turn(message("   "))
	assert.Equal(t, dialog.StatusCancelled, r.Status)
	assert.Equal(t, 0, len(b.state.Stack))
}

func TestLocal_MultipleConnectionsPromptChoice(t *testing.T) {
	d, err := auth.NewMultiProviderAuthDialog(auth.MultiProviderConfig{
		Connections: []auth.Connection{azureConnection(), googleConnection()},
		Provider:    &mockTokenProvider{},
	}, nil, nil)
	require.NoError(t, err)

	b := newAuthBot(t, d)

	r := b.turn(message("go"))
	assert.Equal(t, dialog.StatusWaiting, r.Status)
	texts := b.channel.texts()
	require.NotEmpty(t, texts)
	assert.Contains(t, texts[0], "Which account would you like to use?")
	assert.Contains(t, texts[0], "Google")

	r = b.turn(message("2"))
	assert.Equal(t, dialog.StatusWaiting, r.Status, "choosing leads to the login prompt")
	assert.Contains(t, b.channel.texts(), "Please sign in to Google.")

	r = b.turn(message("g-token"))
	require.Equal(t, dialog.StatusComplete, r.Status)
	resolved := r.Result.(*auth.ProviderTokenResponse)
	assert.Equal(t, auth.ProviderGoogle, resolved.AuthenticationProvider)
	assert.Equal(t, "GoogleConn", resolved.TokenResponse.ConnectionName)
}

func TestLocal_ChoiceNarrowedByTokenStatus(t *testing.T) {
	provider := &mockTokenProvider{
		getTokenStatusFn: func(context.Context, string) ([]types.TokenStatus, error) {
			return []types.TokenStatus{
				{ConnectionName: "AzureAD", HasToken: false},
				{ConnectionName: "GoogleConn", HasToken: true},
			}, nil
		},
	}
	d, err := auth.NewMultiProviderAuthDialog(auth.MultiProviderConfig{
		Connections: []auth.Connection{azureConnection(), googleConnection()},
		Provider:    provider,
	}, nil, nil)
	require.NoError(t, err)

	b := newAuthBot(t, d)

	r := b.turn(message("go"))
	assert.Equal(t, dialog.StatusWaiting, r.Status)

	texts := b.channel.texts()
	require.NotEmpty(t, texts)
	assert.NotContains(t, texts[0], "Which account", "a single cached connection skips the choice")
	assert.Contains(t, texts[0], "Please sign in to Google.")
}

func TestLocal_UnrecognizedChoiceReprompts(t *testing.T) {
	d, err := auth.NewMultiProviderAuthDialog(auth.MultiProviderConfig{
		Connections: []auth.Connection{azureConnection(), googleConnection()},
		Provider:    &mockTokenProvider{},
	}, nil, nil)
	require.NoError(t, err)

	b := newAuthBot(t, d)
	b.turn(message("go"))

	r := b.turn(message("facebook"))
	assert.Equal(t, dialog.StatusWaiting, r.Status)

	texts := b.channel.texts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[1], "Which account would you like to use?")
}

func TestSignOutUser_AllConnections(t *testing.T) {
	var signedOut []string
	provider := &mockTokenProvider{
		signOutUserFn: func(_ context.Context, _, connectionName string) error {
			signedOut = append(signedOut, connectionName)
			return nil
		},
	}
	d, err := auth.NewMultiProviderAuthDialog(auth.MultiProviderConfig{
		Connections: []auth.Connection{azureConnection(), googleConnection()},
		Provider:    provider,
	}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, d.SignOutUser(context.Background(), "user-1"))
	assert.Equal(t, []string{"AzureAD", "GoogleConn"}, signedOut)
}
