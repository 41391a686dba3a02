package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/BaSui01/skillflow/adapter"
	"github.com/BaSui01/skillflow/auth"
	"github.com/BaSui01/skillflow/config"
	"github.com/BaSui01/skillflow/state"
	"github.com/BaSui01/skillflow/types"
)

func echoHandler(ctx context.Context, tc *adapter.TurnContext) error {
	if tc.Activity().Type != types.ActivityMessage {
		return nil
	}
	_, err := tc.SendReply(ctx, "echo: "+tc.Activity().Text)
	return err
}

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	if opts.Handler == nil {
		opts.Handler = echoHandler
	}
	s := New(config.ServerConfig{Addr: ":0", ShutdownTimeout: time.Second}, opts)
	ts := httptest.NewServer(s.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func postActivity(t *testing.T, url string, a *types.Activity, header string) *http.Response {
	t.Helper()
	body, err := json.Marshal(a)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url+"/api/messages", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func inbound(text string) *types.Activity {
	a := types.NewMessageActivity(text)
	a.EnsureID()
	a.ChannelID = "test"
	a.Conversation = types.ConversationAccount{ID: "conv-1"}
	return a
}

func TestMessages_RepliesInBody(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp := postActivity(t, ts.URL, inbound("hello"), "")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var replies []types.Activity
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&replies))
	require.Len(t, replies, 1)
	assert.Equal(t, "echo: hello", replies[0].Text)
}

func TestMessages_MalformedBody(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp, err := http.Post(ts.URL+"/api/messages", "application/json", bytes.NewBufferString("{broken"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMessages_InvalidActivityRejected(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp := postActivity(t, ts.URL, &types.Activity{}, "")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMessages_JWTEnforced(t *testing.T) {
	key := []byte("server-test-key")
	validator, err := auth.NewJWTValidator(auth.JWTValidatorConfig{
		SigningKey:     key,
		AllowedCallers: []string{"parent-bot"},
	})
	require.NoError(t, err)

	ts := newTestServer(t, Options{Validator: validator})

	resp := postActivity(t, ts.URL, inbound("hello"), "")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.CallerClaims{
		AppID: "parent-bot",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString(key)
	require.NoError(t, err)

	resp = postActivity(t, ts.URL, inbound("hello"), "Bearer "+signed)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func newReferenceStore(t *testing.T) *state.ReferenceStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	s, err := state.NewReferenceStore(db)
	require.NoError(t, err)
	return s
}

func TestProactive_DeliversIntoStoredConversation(t *testing.T) {
	refs := newReferenceStore(t)
	require.NoError(t, refs.Save(context.Background(), types.ConversationReference{
		ActivityID:   "act-1",
		User:         types.ChannelAccount{ID: "user-1"},
		Bot:          types.ChannelAccount{ID: "bot-1"},
		Conversation: types.ConversationAccount{ID: "conv-9"},
		ChannelID:    "test",
	}))

	ts := newTestServer(t, Options{References: refs})

	body, err := json.Marshal(types.NewMessageActivity("your meeting starts in ten minutes"))
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/api/conversations/conv-9/activities", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var replies []types.Activity
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&replies))
	require.Len(t, replies, 1)
	assert.Equal(t, "your meeting starts in ten minutes", replies[0].Text)
	assert.Equal(t, "conv-9", replies[0].Conversation.ID)
	assert.Equal(t, "user-1", replies[0].Recipient.ID)
	assert.Equal(t, "act-1", replies[0].ReplyToID)
}

func TestProactive_UnknownConversation(t *testing.T) {
	ts := newTestServer(t, Options{References: newReferenceStore(t)})

	resp, err := http.Post(ts.URL+"/api/conversations/ghost/activities", "application/json",
		bytes.NewBufferString(`{"type":"message","text":"hi"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProactive_NotConfigured(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp, err := http.Post(ts.URL+"/api/conversations/conv-1/activities", "application/json",
		bytes.NewBufferString(`{"type":"message","text":"hi"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	ts := newTestServer(t, Options{})

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	s := New(config.ServerConfig{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second}, Options{Handler: echoHandler})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
