package router

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/skillflow/auth"
	"github.com/BaSui01/skillflow/dialog"
	"github.com/BaSui01/skillflow/manifest"
	"github.com/BaSui01/skillflow/transport"
	"github.com/BaSui01/skillflow/types"
)

// maxTokenExchanges bounds token request round trips within one forward, so
// a misbehaving skill cannot loop the host.
const maxTokenExchanges = 3

// ChannelFactory opens a transport channel to a skill endpoint.
type ChannelFactory func(endpoint string) (transport.Channel, error)

// HTTPChannelFactory opens synchronous HTTP channels.
func HTTPChannelFactory(cfg transport.HTTPConfig, logger *zap.Logger) ChannelFactory {
	return func(endpoint string) (transport.Channel, error) {
		c := cfg
		c.Endpoint = endpoint
		return transport.NewHTTPChannel(c, logger), nil
	}
}

// SkillBeginOptions parameterize one skill invocation.
type SkillBeginOptions struct {
	// ActionID names the manifest action being invoked.
	ActionID string `json:"actionId"`
	// Parameters carries slot values gathered before hand-off.
	Parameters map[string]any `json:"parameters,omitempty"`
}

// SkillDialog forwards a conversation to a remote skill until the skill
// signals completion. It ends with the endOfConversation value as result.
type SkillDialog struct {
	skill   *manifest.Manifest
	factory ChannelFactory
	tokens  auth.TokenProvider
	logger  *zap.Logger
}

// SkillDialogID derives the dialog id used for a skill.
func SkillDialogID(skillID string) string {
	return "skill:" + skillID
}

// NewSkillDialog creates the invocation dialog for one skill. tokens may be
// nil when the host cannot answer token requests.
func NewSkillDialog(skill *manifest.Manifest, factory ChannelFactory, tokens auth.TokenProvider, logger *zap.Logger) *SkillDialog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SkillDialog{
		skill:   skill,
		factory: factory,
		tokens:  tokens,
		logger: logger.With(
			zap.String("component", "skill_dialog"),
			zap.String("skill_id", skill.ID),
		),
	}
}

func (d *SkillDialog) ID() string { return SkillDialogID(d.skill.ID) }

func (d *SkillDialog) BeginDialog(ctx context.Context, dc *dialog.Context, options any) (*dialog.TurnResult, error) {
	opts, _ := options.(SkillBeginOptions)
	d.logger.Info("invoking skill", zap.String("action_id", opts.ActionID))

	channel, err := d.factory(d.skill.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("router: open channel to skill %q: %w", d.skill.ID, err)
	}
	defer channel.Close()

	begin := d.outbound(dc, types.NewEventActivity(types.EventSkillBegin, opts))
	if result, done, err := d.deliver(ctx, dc, channel, begin, 0); err != nil || done {
		return result, err
	}

	// The triggering activity follows the announcement so the skill can act
	// on it immediately.
	return d.forwardTurn(ctx, dc, channel)
}

func (d *SkillDialog) ContinueDialog(ctx context.Context, dc *dialog.Context) (*dialog.TurnResult, error) {
	channel, err := d.factory(d.skill.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("router: open channel to skill %q: %w", d.skill.ID, err)
	}
	defer channel.Close()
	return d.forwardTurn(ctx, dc, channel)
}

func (d *SkillDialog) ResumeDialog(_ context.Context, _ *dialog.Context, _ any) (*dialog.TurnResult, error) {
	return &dialog.TurnResult{Status: dialog.StatusWaiting}, nil
}

// CancelDialog tells the remote skill to drop its own dialog state when the
// host tears the invocation down before the skill completes.
func (d *SkillDialog) CancelDialog(ctx context.Context, dc *dialog.Context) error {
	channel, err := d.factory(d.skill.Endpoint)
	if err != nil {
		return fmt.Errorf("router: open channel to skill %q: %w", d.skill.ID, err)
	}
	defer channel.Close()

	cancel := d.outbound(dc, types.NewEventActivity(types.EventCancelAllSkills, nil))
	req, err := transport.NewRequest(transport.VerbPOST, "/activities/"+cancel.ID, cancel)
	if err != nil {
		return err
	}
	resp, err := channel.Send(ctx, req)
	if err != nil {
		return fmt.Errorf("router: skill %q unreachable: %w", d.skill.ID, err)
	}
	if !resp.OK() {
		return types.NewError(types.ErrCodeTransport,
			fmt.Sprintf("skill %q answered status %d", d.skill.ID, resp.StatusCode))
	}
	d.logger.Info("remote skill dialogs cancelled")
	return nil
}

func (d *SkillDialog) forwardTurn(ctx context.Context, dc *dialog.Context, channel transport.Channel) (*dialog.TurnResult, error) {
	activity := *dc.Turn().Activity()
	if result, done, err := d.deliver(ctx, dc, channel, &activity, 0); err != nil || done {
		return result, err
	}
	return &dialog.TurnResult{Status: dialog.StatusWaiting}, nil
}

// deliver sends one activity to the skill and walks its synchronous replies:
// messages go to the user, token requests are answered inline, and an
// endOfConversation ends the invocation.
func (d *SkillDialog) deliver(ctx context.Context, dc *dialog.Context, channel transport.Channel, activity *types.Activity, exchange int) (*dialog.TurnResult, bool, error) {
	activity.EnsureID()
	req, err := transport.NewRequest(transport.VerbPOST, "/activities/"+activity.ID, activity)
	if err != nil {
		return nil, false, err
	}
	resp, err := channel.Send(ctx, req)
	if err != nil {
		return nil, false, fmt.Errorf("router: skill %q unreachable: %w", d.skill.ID, err)
	}
	if !resp.OK() {
		return nil, false, types.NewError(types.ErrCodeTransport,
			fmt.Sprintf("skill %q answered status %d", d.skill.ID, resp.StatusCode))
	}

	var replies []types.Activity
	if len(resp.Body) > 0 {
		if err := resp.BodyAs(&replies); err != nil {
			return nil, false, fmt.Errorf("router: skill %q reply: %w", d.skill.ID, err)
		}
	}

	for i := range replies {
		reply := &replies[i]
		switch {
		case reply.Type == types.ActivityEndOfConversation:
			d.logger.Info("skill completed", zap.String("code", reply.Code))
			result, err := dc.EndDialog(ctx, reply.Value)
			return result, true, err

		case reply.Type == types.ActivityEvent && reply.Name == types.EventTokenRequest:
			if exchange >= maxTokenExchanges {
				return nil, false, types.NewError(types.ErrCodeAuthResolution,
					fmt.Sprintf("skill %q exceeded the token exchange limit", d.skill.ID))
			}
			tokenEvent, err := d.answerTokenRequest(ctx, dc)
			if err != nil {
				return nil, false, err
			}
			if result, done, err := d.deliver(ctx, dc, channel, tokenEvent, exchange+1); err != nil || done {
				return result, done, err
			}

		default:
			if _, err := dc.Turn().SendActivity(ctx, reply); err != nil {
				return nil, false, err
			}
		}
	}
	return nil, false, nil
}

// answerTokenRequest resolves a token for the skill's configured connection
// and wraps it in a tokens/response event.
func (d *SkillDialog) answerTokenRequest(ctx context.Context, dc *dialog.Context) (*types.Activity, error) {
	if d.tokens == nil || len(d.skill.AuthenticationConnections) == 0 {
		return nil, types.NewError(types.ErrCodeAuthResolution,
			fmt.Sprintf("skill %q requested a token but no token provider is configured", d.skill.ID))
	}
	connection := d.skill.AuthenticationConnections[0]
	userID := dc.Turn().Activity().From.ID

	token, err := d.tokens.GetUserToken(ctx, userID, connection.Name)
	if err != nil {
		return nil, types.NewError(types.ErrCodeAuthResolution,
			fmt.Sprintf("token lookup for skill %q failed", d.skill.ID)).WithCause(err)
	}
	if token == nil || !token.HasToken() {
		return nil, types.NewError(types.ErrCodeAuthResolution,
			fmt.Sprintf("no cached token for connection %q", connection.Name))
	}
	return d.outbound(dc, types.NewEventActivity(types.EventTokenResponse, token)), nil
}

// outbound addresses a host-originated activity at the skill conversation.
func (d *SkillDialog) outbound(dc *dialog.Context, a *types.Activity) *types.Activity {
	inbound := dc.Turn().Activity()
	a.ChannelID = inbound.ChannelID
	a.Conversation = inbound.Conversation
	a.From = inbound.Recipient
	a.Recipient = inbound.From
	a.Locale = inbound.Locale
	a.EnsureID()
	return a
}
