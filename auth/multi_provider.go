package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/skillflow/dialog"
	"github.com/BaSui01/skillflow/internal/metrics"
	"github.com/BaSui01/skillflow/types"
)

// Frame state keys and machine states for the auth dialog.
const (
	authStateKey        = "authState"
	authCandidatesKey   = "candidates"
	authSelectedKey     = "selectedConnection"
	authDeadlineKey     = "deadline"
	stateAwaitingChoice = "awaitingProviderChoice"
	stateAwaitingToken  = "awaitingToken"
)

// DefaultRemoteTimeout bounds how long the remote path waits for the
// caller's tokens/response event.
const DefaultRemoteTimeout = 30 * time.Second

const (
	providerChoicePrompt = "Which account would you like to use?"
	loginPromptFormat    = "Please sign in to %s."
	authFailedMessage    = "Sorry, I wasn't able to sign you in. Please try again later."
)

var (
	ErrNoConnections   = errors.New("auth: at least one authentication connection is required")
	ErrNoTokenProvider = errors.New("auth: local mode requires a token provider")
)

// MultiProviderConfig configures a MultiProviderAuthDialog.
type MultiProviderConfig struct {
	// DialogID registers the dialog under this id; defaults to
	// "multiProviderAuth".
	DialogID string
	// Connections are the authentication connections available to the bot.
	// Every connection's display name must map onto a known provider.
	Connections []Connection
	// Remote switches to the hand-off path: tokens are requested from the
	// calling bot via events instead of a local TokenProvider.
	Remote bool
	// Provider resolves tokens on the local path. Ignored when Remote.
	Provider TokenProvider
	// RemoteTimeout bounds the wait for a tokens/response event; zero means
	// DefaultRemoteTimeout.
	RemoteTimeout time.Duration
}

// MultiProviderAuthDialog resolves a user token across one or more
// authentication connections. It is a dialog: push it on the stack, and it
// ends with a *ProviderTokenResponse, or cancels the stack when the token
// cannot be obtained.
type MultiProviderAuthDialog struct {
	id          string
	connections []Connection
	remote      bool
	provider    TokenProvider
	timeout     time.Duration
	metrics     *metrics.Collector
	logger      *zap.Logger
}

// NewMultiProviderAuthDialog validates the configuration and builds the
// dialog. collector may be nil.
func NewMultiProviderAuthDialog(cfg MultiProviderConfig, collector *metrics.Collector, logger *zap.Logger) (*MultiProviderAuthDialog, error) {
	if len(cfg.Connections) == 0 {
		return nil, ErrNoConnections
	}
	for _, c := range cfg.Connections {
		if _, err := c.Provider(); err != nil {
			return nil, err
		}
	}
	if !cfg.Remote && cfg.Provider == nil {
		return nil, ErrNoTokenProvider
	}
	if cfg.DialogID == "" {
		cfg.DialogID = "multiProviderAuth"
	}
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = DefaultRemoteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MultiProviderAuthDialog{
		id:          cfg.DialogID,
		connections: cfg.Connections,
		remote:      cfg.Remote,
		provider:    cfg.Provider,
		timeout:     cfg.RemoteTimeout,
		metrics:     collector,
		logger:      logger.With(zap.String("component", "auth_dialog")),
	}, nil
}

func (d *MultiProviderAuthDialog) ID() string { return d.id }

func (d *MultiProviderAuthDialog) BeginDialog(ctx context.Context, dc *dialog.Context, _ any) (*dialog.TurnResult, error) {
	if d.remote {
		frame := dc.ActiveFrame()
		frame.State[authStateKey] = stateAwaitingToken
		frame.State[authDeadlineKey] = time.Now().Add(d.timeout).UnixMilli()
		if err := dc.Turn().SendRemoteTokenRequestEvent(ctx); err != nil {
			return nil, err
		}
		return &dialog.TurnResult{Status: dialog.StatusWaiting}, nil
	}

	candidates := d.narrowCandidates(ctx, dc)
	if len(candidates) == 1 {
		return d.selectConnection(ctx, dc, candidates[0])
	}

	frame := dc.ActiveFrame()
	frame.State[authStateKey] = stateAwaitingChoice
	frame.State[authCandidatesKey] = connectionNames(candidates)
	if err := d.sendProviderChoice(ctx, dc, candidates); err != nil {
		return nil, err
	}
	return &dialog.TurnResult{Status: dialog.StatusWaiting}, nil
}

func (d *MultiProviderAuthDialog) ContinueDialog(ctx context.Context, dc *dialog.Context) (*dialog.TurnResult, error) {
	frame := dc.ActiveFrame()
	switch state, _ := frame.State[authStateKey].(string); state {
	case stateAwaitingChoice:
		return d.continueChoice(ctx, dc)
	case stateAwaitingToken:
		if d.remote {
			return d.continueRemoteToken(ctx, dc)
		}
		return d.continueLocalToken(ctx, dc)
	default:
		return d.fail(ctx, dc, "unexpected auth state")
	}
}

func (d *MultiProviderAuthDialog) ResumeDialog(_ context.Context, _ *dialog.Context, _ any) (*dialog.TurnResult, error) {
	return &dialog.TurnResult{Status: dialog.StatusWaiting}, nil
}

// RepromptDialog re-issues whichever question the machine is waiting on.
func (d *MultiProviderAuthDialog) RepromptDialog(ctx context.Context, dc *dialog.Context) error {
	frame := dc.ActiveFrame()
	switch state, _ := frame.State[authStateKey].(string); state {
	case stateAwaitingChoice:
		return d.sendProviderChoice(ctx, dc, d.storedCandidates(frame))
	case stateAwaitingToken:
		if d.remote {
			return dc.Turn().SendRemoteTokenRequestEvent(ctx)
		}
		return d.sendLoginPrompt(ctx, dc, d.selectedConnection(frame))
	default:
		return nil
	}
}

// SignOutUser revokes the user's token on every configured connection.
// A no-op on the remote path, where the caller owns the tokens.
func (d *MultiProviderAuthDialog) SignOutUser(ctx context.Context, userID string) error {
	if d.provider == nil {
		return nil
	}
	var errs []error
	for _, c := range d.connections {
		if err := d.provider.SignOutUser(ctx, userID, c.Name); err != nil {
			errs = append(errs, fmt.Errorf("connection %q: %w", c.Name, err))
		}
	}
	return errors.Join(errs...)
}

// narrowCandidates keeps only connections the user already has a cached
// token for, when the provider can tell. Falls back to the full set.
func (d *MultiProviderAuthDialog) narrowCandidates(ctx context.Context, dc *dialog.Context) []Connection {
	userID := dc.Turn().Activity().From.ID
	statuses, err := d.provider.GetTokenStatus(ctx, userID)
	if err != nil {
		d.logger.Warn("token status unavailable, offering all connections", zap.Error(err))
		return d.connections
	}

	cached := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		if s.HasToken {
			cached[s.ConnectionName] = true
		}
	}

	var narrowed []Connection
	for _, c := range d.connections {
		if cached[c.Name] {
			narrowed = append(narrowed, c)
		}
	}
	if len(narrowed) == 0 {
		return d.connections
	}
	return narrowed
}

func (d *MultiProviderAuthDialog) continueChoice(ctx context.Context, dc *dialog.Context) (*dialog.TurnResult, error) {
	frame := dc.ActiveFrame()
	candidates := d.storedCandidates(frame)
	text := strings.TrimSpace(dc.Turn().Activity().Text)

	for i, c := range candidates {
		if strings.EqualFold(text, c.ServiceProviderDisplayName) || text == fmt.Sprintf("%d", i+1) {
			return d.selectConnection(ctx, dc, c)
		}
	}

	if err := d.sendProviderChoice(ctx, dc, candidates); err != nil {
		return nil, err
	}
	return &dialog.TurnResult{Status: dialog.StatusWaiting}, nil
}

// selectConnection commits a connection choice. A token already cached for
// it resolves the dialog without prompting at all.
func (d *MultiProviderAuthDialog) selectConnection(ctx context.Context, dc *dialog.Context, c Connection) (*dialog.TurnResult, error) {
	frame := dc.ActiveFrame()
	frame.State[authSelectedKey] = c.Name
	frame.State[authStateKey] = stateAwaitingToken

	userID := dc.Turn().Activity().From.ID
	token, err := d.provider.GetUserToken(ctx, userID, c.Name)
	if err != nil {
		d.logger.Warn("token lookup failed", zap.String("connection", c.Name), zap.Error(err))
	} else if token != nil && token.HasToken() {
		return d.resolve(ctx, dc, c, *token)
	}

	if err := d.sendLoginPrompt(ctx, dc, c); err != nil {
		return nil, err
	}
	return &dialog.TurnResult{Status: dialog.StatusWaiting}, nil
}

func (d *MultiProviderAuthDialog) continueRemoteToken(ctx context.Context, dc *dialog.Context) (*dialog.TurnResult, error) {
	frame := dc.ActiveFrame()
	if deadline := frameUnix(frame.State, authDeadlineKey); !deadline.IsZero() && time.Now().After(deadline) {
		return d.fail(ctx, dc, "timed out waiting for a token response from the caller")
	}

	activity := dc.Turn().Activity()
	if activity.Type != types.ActivityEvent || activity.Name != types.EventTokenResponse {
		return &dialog.TurnResult{Status: dialog.StatusWaiting}, nil
	}

	var token types.TokenResponse
	if err := activity.ValueAs(&token); err != nil || !token.HasToken() {
		return d.fail(ctx, dc, "caller returned an empty token response")
	}

	c, ok := d.connectionFor(token.ConnectionName)
	if !ok {
		return d.fail(ctx, dc, fmt.Sprintf("caller answered for unconfigured connection %q", token.ConnectionName))
	}
	return d.resolve(ctx, dc, c, token)
}

func (d *MultiProviderAuthDialog) continueLocalToken(ctx context.Context, dc *dialog.Context) (*dialog.TurnResult, error) {
	frame := dc.ActiveFrame()
	c := d.selectedConnection(frame)

	activity := dc.Turn().Activity()
	text := strings.TrimSpace(activity.Text)
	if activity.Type != types.ActivityMessage || text == "" {
		return d.fail(ctx, dc, "sign-in produced an empty token")
	}

	return d.resolve(ctx, dc, c, types.TokenResponse{ConnectionName: c.Name, Token: text})
}

func (d *MultiProviderAuthDialog) resolve(ctx context.Context, dc *dialog.Context, c Connection, token types.TokenResponse) (*dialog.TurnResult, error) {
	provider, err := c.Provider()
	if err != nil {
		return d.fail(ctx, dc, "resolved token for unknown provider")
	}
	if d.metrics != nil {
		d.metrics.RecordTokenEvent(types.EventTokenResponse, "resolved")
	}
	d.logger.Info("token resolved",
		zap.String("connection", token.ConnectionName),
		zap.String("provider", string(provider)),
	)
	return dc.EndDialog(ctx, &ProviderTokenResponse{
		AuthenticationProvider: provider,
		TokenResponse:          token,
	})
}

// fail reports TokenRetrievalFailure and cancels the whole stack: without a
// token the suspended flow above cannot proceed either.
func (d *MultiProviderAuthDialog) fail(ctx context.Context, dc *dialog.Context, reason string) (*dialog.TurnResult, error) {
	d.logger.Warn("TokenRetrievalFailure", zap.String("reason", reason))
	if d.metrics != nil {
		d.metrics.RecordTokenEvent(types.EventTokenResponse, "failure")
	}
	if _, err := dc.Turn().SendReply(ctx, authFailedMessage); err != nil {
		return nil, err
	}
	return dc.CancelAllDialogs(ctx)
}

func (d *MultiProviderAuthDialog) sendProviderChoice(ctx context.Context, dc *dialog.Context, candidates []Connection) error {
	var b strings.Builder
	b.WriteString(providerChoicePrompt)
	for i, c := range candidates {
		b.WriteString(fmt.Sprintf("\n%d. %s", i+1, c.ServiceProviderDisplayName))
	}
	_, err := dc.Turn().SendReply(ctx, b.String())
	return err
}

func (d *MultiProviderAuthDialog) sendLoginPrompt(ctx context.Context, dc *dialog.Context, c Connection) error {
	_, err := dc.Turn().SendReply(ctx, fmt.Sprintf(loginPromptFormat, c.ServiceProviderDisplayName))
	return err
}

func (d *MultiProviderAuthDialog) storedCandidates(frame *dialog.Frame) []Connection {
	names := frame.State[authCandidatesKey]
	var keep []string
	switch v := names.(type) {
	case []string:
		keep = v
	case []any:
		for _, n := range v {
			if s, ok := n.(string); ok {
				keep = append(keep, s)
			}
		}
	}
	var out []Connection
	for _, name := range keep {
		if c, ok := d.connectionFor(name); ok {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return d.connections
	}
	return out
}

// selectedConnection reads back the choice committed by selectConnection. A
// missing or stale name yields the zero Connection, which resolve rejects.
func (d *MultiProviderAuthDialog) selectedConnection(frame *dialog.Frame) Connection {
	name, _ := frame.State[authSelectedKey].(string)
	c, _ := d.connectionFor(name)
	return c
}

func (d *MultiProviderAuthDialog) connectionFor(name string) (Connection, bool) {
	for _, c := range d.connections {
		if c.Name == name {
			return c, true
		}
	}
	return Connection{}, false
}

func connectionNames(connections []Connection) []string {
	names := make([]string, len(connections))
	for i, c := range connections {
		names[i] = c.Name
	}
	return names
}

func frameUnix(state map[string]any, key string) time.Time {
	switch v := state[key].(type) {
	case int64:
		return time.UnixMilli(v)
	case float64:
		return time.UnixMilli(int64(v))
	case int:
		return time.UnixMilli(int64(v))
	default:
		return time.Time{}
	}
}
