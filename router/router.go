package router

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/skillflow/adapter"
	"github.com/BaSui01/skillflow/auth"
	"github.com/BaSui01/skillflow/dialog"
	"github.com/BaSui01/skillflow/internal/metrics"
	"github.com/BaSui01/skillflow/manifest"
	"github.com/BaSui01/skillflow/state"
	"github.com/BaSui01/skillflow/types"
)

// Interruption intents recognized ahead of the active flow.
const (
	IntentCancel = "cancel"
	IntentHelp   = "help"
	IntentLogout = "logout"
)

const (
	cancelConfirmDialogID = "cancelConfirm"
	cancelPromptDialogID  = "cancelConfirmPrompt"
	completionSentKey     = "completionSent"
	remoteCancelTrace     = "canceled through an EndOfConversation activity from the parent"
)

// RecognizerResult is the top intent for an utterance. The router consumes
// already-recognized intents; it performs no NLU of its own.
type RecognizerResult struct {
	Intent string
	Score  float64
}

// Recognizer resolves the top intent of a message activity.
type Recognizer interface {
	Recognize(ctx context.Context, activity *types.Activity) (RecognizerResult, error)
}

// SignOuter revokes a user's tokens across every connection.
type SignOuter interface {
	SignOutUser(ctx context.Context, userID string) error
}

// Config holds the router's mode and user-facing messages.
type Config struct {
	// SkillMode makes the router reconcile completion upward: exactly one
	// endOfConversation per invocation is sent to the caller.
	SkillMode bool `yaml:"skillMode"`
	// ActionDialogs maps manifest action ids onto locally registered dialog
	// ids, used in skill mode when a caller sends skillBegin.
	ActionDialogs map[string]string `yaml:"actionDialogs"`

	IntroMessage           string `yaml:"introMessage"`
	FallbackMessage        string `yaml:"fallbackMessage"`
	HelpMessage            string `yaml:"helpMessage"`
	NothingToCancelMessage string `yaml:"nothingToCancelMessage"`
	CancelConfirmPrompt    string `yaml:"cancelConfirmPrompt"`
	CancelConfirmedMessage string `yaml:"cancelConfirmedMessage"`
	CancelDeniedMessage    string `yaml:"cancelDeniedMessage"`
	LogoutMessage          string `yaml:"logoutMessage"`
}

// DefaultConfig returns host-mode defaults.
func DefaultConfig() Config {
	return Config{
		FallbackMessage:        "I'm sorry, that feature isn't available yet.",
		HelpMessage:            "You can ask me to run one of my skills, or say cancel to stop what we're doing.",
		NothingToCancelMessage: "It doesn't look like there is anything to cancel.",
		CancelConfirmPrompt:    "Are you sure you want to cancel?",
		CancelConfirmedMessage: "Ok, it's cancelled.",
		CancelDeniedMessage:    "Ok, let's keep going.",
		LogoutMessage:          "You have been signed out.",
	}
}

// Router is the root turn handler: it starts, continues, interrupts and
// completes conversation flows.
type Router struct {
	dialogs    *dialog.Set
	registry   *manifest.Registry
	recognizer Recognizer
	signOut    SignOuter
	cfg        Config
	metrics    *metrics.Collector
	logger     *zap.Logger
}

// New builds a router over the given manifests. A SkillDialog is registered
// for every manifest; additional dialogs (local flows, auth) can be added
// through Dialogs(). recognizer and signOut may be nil.
func New(registry *manifest.Registry, recognizer Recognizer, factory ChannelFactory, tokens auth.TokenProvider, cfg Config, collector *metrics.Collector, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		dialogs:    dialog.NewSet(),
		registry:   registry,
		recognizer: recognizer,
		cfg:        cfg,
		metrics:    collector,
		logger:     logger.With(zap.String("component", "router")),
	}
	for _, m := range registry.All() {
		r.dialogs.Add(NewSkillDialog(m, factory, tokens, logger))
	}
	r.registerCancelFlow()
	return r
}

// Dialogs exposes the dialog set for registering local flows.
func (r *Router) Dialogs() *dialog.Set {
	return r.dialogs
}

// WithSignOut wires the logout interruption to a token revoker.
func (r *Router) WithSignOut(s SignOuter) *Router {
	r.signOut = s
	return r
}

// HandleTurn is the adapter.TurnHandler entry point.
func (r *Router) HandleTurn(ctx context.Context, tc *adapter.TurnContext) error {
	record := state.FromTurn(tc)
	dc := dialog.NewContext(r.dialogs, tc, record.DialogState)
	activity := tc.Activity()

	switch activity.Type {
	case types.ActivityConversationUpdate:
		if r.cfg.IntroMessage != "" {
			_, err := tc.SendReply(ctx, r.cfg.IntroMessage)
			return err
		}
		return nil

	case types.ActivityEndOfConversation:
		return r.onEndOfConversation(ctx, tc, dc, record)

	case types.ActivityEvent:
		return r.onEvent(ctx, tc, dc, record)

	case types.ActivityMessage:
		return r.onMessage(ctx, tc, dc, record)

	default:
		r.logger.Debug("ignoring unhandled activity type", zap.String("type", string(activity.Type)))
		return nil
	}
}

// onEndOfConversation handles a terminal activity from the wire. With no
// active stack it is a no-op. A non-empty callerId means the parent bot is
// cancelling the invocation remotely.
func (r *Router) onEndOfConversation(ctx context.Context, tc *adapter.TurnContext, dc *dialog.Context, record *state.ConversationRecord) error {
	if dc.Depth() == 0 {
		return nil
	}
	if _, err := dc.CancelAllDialogs(ctx); err != nil {
		return err
	}
	// The sender already considers the conversation over; emitting our own
	// completion would double-close it.
	record.Values[completionSentKey] = true

	if tc.Activity().CallerID != "" {
		r.logger.Info("conversation cancelled by the parent bot")
		return tc.SendTrace(ctx, remoteCancelTrace)
	}
	return nil
}

func (r *Router) onEvent(ctx context.Context, tc *adapter.TurnContext, dc *dialog.Context, record *state.ConversationRecord) error {
	activity := tc.Activity()
	switch activity.Name {
	case types.EventReprompt:
		return dc.RepromptDialog(ctx)

	case types.EventCancelAllSkills:
		_, err := dc.CancelAllDialogs(ctx)
		record.Values[completionSentKey] = true
		return err

	case types.EventSkillBegin:
		return r.onSkillBegin(ctx, tc, dc, record)

	default:
		// Token responses and other events belong to whatever dialog is
		// waiting for them.
		result, err := dc.ContinueDialog(ctx)
		if err != nil {
			return err
		}
		return r.reconcile(ctx, tc, record, result)
	}
}

// onSkillBegin starts the local flow for a requested action when this bot
// runs as a skill.
func (r *Router) onSkillBegin(ctx context.Context, tc *adapter.TurnContext, dc *dialog.Context, record *state.ConversationRecord) error {
	var opts SkillBeginOptions
	if err := tc.Activity().ValueAs(&opts); err != nil {
		r.logger.Warn("skillBegin without a readable payload", zap.Error(err))
	}

	dialogID, ok := r.cfg.ActionDialogs[opts.ActionID]
	if !ok {
		r.logger.Warn("skillBegin for unknown action", zap.String("action_id", opts.ActionID))
		if _, err := tc.SendReply(ctx, r.cfg.FallbackMessage); err != nil {
			return err
		}
		return r.sendCompletion(ctx, tc, record, types.CodeCompletedSuccessfully, nil)
	}

	record.Values[completionSentKey] = false
	result, err := dc.BeginDialog(ctx, dialogID, opts.Parameters)
	if err != nil {
		return err
	}
	return r.reconcile(ctx, tc, record, result)
}

func (r *Router) onMessage(ctx context.Context, tc *adapter.TurnContext, dc *dialog.Context, record *state.ConversationRecord) error {
	intent := r.recognize(ctx, tc)

	switch intent {
	case IntentCancel:
		return r.onCancelIntent(ctx, tc, dc, record)
	case IntentHelp:
		if _, err := tc.SendReply(ctx, r.cfg.HelpMessage); err != nil {
			return err
		}
		// The active question is re-asked so the flow picks up where it was.
		return dc.RepromptDialog(ctx)
	case IntentLogout:
		return r.onLogoutIntent(ctx, tc, dc, record)
	}

	if dc.Depth() > 0 {
		result, err := dc.ContinueDialog(ctx)
		if err != nil {
			return err
		}
		return r.reconcile(ctx, tc, record, result)
	}
	return r.route(ctx, tc, dc, record, intent)
}

func (r *Router) onCancelIntent(ctx context.Context, tc *adapter.TurnContext, dc *dialog.Context, record *state.ConversationRecord) error {
	if dc.Depth() == 0 {
		_, err := tc.SendReply(ctx, r.cfg.NothingToCancelMessage)
		return err
	}
	result, err := dc.BeginDialog(ctx, cancelConfirmDialogID, nil)
	if err != nil {
		return err
	}
	return r.reconcile(ctx, tc, record, result)
}

func (r *Router) onLogoutIntent(ctx context.Context, tc *adapter.TurnContext, dc *dialog.Context, record *state.ConversationRecord) error {
	if r.signOut != nil {
		if err := r.signOut.SignOutUser(ctx, tc.Activity().From.ID); err != nil {
			return err
		}
	}
	result, err := dc.CancelAllDialogs(ctx)
	if err != nil {
		return err
	}
	if _, err := tc.SendReply(ctx, r.cfg.LogoutMessage); err != nil {
		return err
	}
	return r.reconcile(ctx, tc, record, result)
}

// route starts a new flow for a recognized intent, falling back to literal
// trigger utterances, and finally to the "not available" reply.
func (r *Router) route(ctx context.Context, tc *adapter.TurnContext, dc *dialog.Context, record *state.ConversationRecord, intent string) error {
	skill, action, ok := r.registry.FindSkillForIntent(intent)
	if !ok {
		skill, action, ok = r.registry.FindSkillForUtterance(tc.Activity().Text)
	}
	if !ok {
		r.logger.Info("no skill for utterance", zap.String("intent", intent))
		if _, err := tc.SendReply(ctx, r.cfg.FallbackMessage); err != nil {
			return err
		}
		return r.sendCompletion(ctx, tc, record, types.CodeCompletedSuccessfully, nil)
	}

	record.Values[completionSentKey] = false
	result, err := dc.BeginDialog(ctx, SkillDialogID(skill.ID), SkillBeginOptions{ActionID: action.ID})
	if err != nil {
		return err
	}
	return r.reconcile(ctx, tc, record, result)
}

func (r *Router) recognize(ctx context.Context, tc *adapter.TurnContext) string {
	if r.recognizer == nil {
		return ""
	}
	result, err := r.recognizer.Recognize(ctx, tc.Activity())
	if err != nil {
		r.logger.Warn("recognizer failed", zap.Error(err))
		return ""
	}
	return result.Intent
}

// reconcile turns a stack outcome into at most one upward completion.
func (r *Router) reconcile(ctx context.Context, tc *adapter.TurnContext, record *state.ConversationRecord, result *dialog.TurnResult) error {
	if result == nil {
		return nil
	}
	switch result.Status {
	case dialog.StatusComplete:
		return r.sendCompletion(ctx, tc, record, types.CodeCompletedSuccessfully, result.Result)
	case dialog.StatusCancelled:
		return r.sendCompletion(ctx, tc, record, types.CodeUserCancelled, nil)
	default:
		return nil
	}
}

// sendCompletion emits the terminal endOfConversation to the caller, once.
func (r *Router) sendCompletion(ctx context.Context, tc *adapter.TurnContext, record *state.ConversationRecord, code string, value any) error {
	if !r.cfg.SkillMode {
		return nil
	}
	if sent, _ := record.Values[completionSentKey].(bool); sent {
		return nil
	}
	record.Values[completionSentKey] = true

	eoc := tc.Activity().CreateReply("")
	eoc.Type = types.ActivityEndOfConversation
	eoc.Code = code
	eoc.Value = value
	_, err := tc.SendActivity(ctx, eoc)
	return err
}

// registerCancelFlow installs the cancel confirmation dialog: affirmative
// tears the stack down, negative resumes the interrupted flow.
func (r *Router) registerCancelFlow() {
	r.dialogs.Add(dialog.NewConfirmPrompt(cancelPromptDialogID))
	r.dialogs.Add(dialog.NewWaterfallDialog(cancelConfirmDialogID, []dialog.WaterfallStep{
		func(ctx context.Context, sc *dialog.WaterfallStepContext) (*dialog.TurnResult, error) {
			return sc.BeginDialog(ctx, cancelPromptDialogID, dialog.PromptOptions{
				Prompt:      r.cfg.CancelConfirmPrompt,
				RetryPrompt: r.cfg.CancelConfirmPrompt,
			})
		},
		func(ctx context.Context, sc *dialog.WaterfallStepContext) (*dialog.TurnResult, error) {
			confirmed, _ := sc.Result.(bool)
			if confirmed {
				if _, err := sc.Turn().SendReply(ctx, r.cfg.CancelConfirmedMessage); err != nil {
					return nil, err
				}
				return sc.CancelAllDialogs(ctx)
			}
			if _, err := sc.Turn().SendReply(ctx, r.cfg.CancelDeniedMessage); err != nil {
				return nil, err
			}
			return sc.End(ctx, false)
		},
	}))
}
