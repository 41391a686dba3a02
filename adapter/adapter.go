package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/skillflow/internal/metrics"
	"github.com/BaSui01/skillflow/transport"
	"github.com/BaSui01/skillflow/types"
)

// Adapter operation names used for latency metrics.
const (
	OperationSend   = "SendActivity"
	OperationUpdate = "UpdateActivity"
	OperationDelete = "DeleteActivity"
)

// ErrCallbackFailed wraps a transport failure while delivering an activity.
var ErrCallbackFailed = errors.New("adapter: callback failed")

// Options configures a SkillAdapter.
type Options struct {
	// InvokeSupported reports whether the transport in use can carry invoke
	// responses. Streaming transports cannot; invoke activities then degrade
	// to a 501 InvokeResponse instead of an error.
	InvokeSupported bool
}

// SkillAdapter processes activities arriving from a calling bot and sends
// the skill's replies back over the same transport channel.
type SkillAdapter struct {
	channel    transport.Channel
	options    Options
	middleware []Middleware
	metrics    *metrics.Collector
	logger     *zap.Logger
}

// New creates a skill adapter over channel. collector may be nil when
// metrics are not wired (tests).
func New(channel transport.Channel, options Options, collector *metrics.Collector, logger *zap.Logger) *SkillAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SkillAdapter{
		channel: channel,
		options: options,
		metrics: collector,
		logger:  logger.With(zap.String("component", "skill_adapter")),
	}
}

// Use appends middleware to the turn pipeline.
func (a *SkillAdapter) Use(mw Middleware) *SkillAdapter {
	a.middleware = append(a.middleware, mw)
	return a
}

// ProcessActivity feeds one inbound activity through the middleware chain
// and handler. Bad input and unsupported activity types degrade to typed
// status responses; only handler failures return an error.
func (a *SkillAdapter) ProcessActivity(ctx context.Context, activity *types.Activity, handler TurnHandler) (*types.InvokeResponse, error) {
	if err := activity.Validate(); err != nil {
		a.logger.Warn("rejecting invalid activity", zap.Error(err))
		return &types.InvokeResponse{Status: http.StatusBadRequest}, nil
	}

	a.logger.Info("received an incoming activity",
		zap.String("activity_id", activity.ID),
		zap.String("type", string(activity.Type)),
	)

	tc := newTurnContext(a, activity)

	wrapped := handler
	for i := len(a.middleware) - 1; i >= 0; i-- {
		wrapped = a.middleware[i](wrapped)
	}

	start := time.Now()
	err := wrapped(ctx, tc)
	if a.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		a.metrics.RecordTurn(activity.ChannelID, status, time.Since(start))
	}
	if err != nil {
		return nil, err
	}

	if activity.Type == types.ActivityInvoke && !a.options.InvokeSupported {
		return &types.InvokeResponse{Status: http.StatusNotImplemented}, nil
	}
	return &types.InvokeResponse{Status: http.StatusOK}, nil
}

// SendActivities dispatches activities in array order. Each slot is
// independent: a failed send contributes an error for that slot without
// aborting the remaining sends. Latency is measured per activity.
func (a *SkillAdapter) SendActivities(ctx context.Context, tc *TurnContext, activities []*types.Activity) ([]types.ResourceResponse, error) {
	if len(activities) == 0 {
		return nil, errors.New("adapter: expecting one or more activities")
	}

	responses := make([]types.ResourceResponse, len(activities))
	var errs []error

	for i, activity := range activities {
		if activity.Type == types.ActivityDelay {
			// Simulated locally; the activity schema has no delay type.
			if err := sleepCtx(ctx, activity.DelayDuration()); err != nil {
				errs = append(errs, fmt.Errorf("activity %d: %w", i, err))
				continue
			}
			responses[i] = types.ResourceResponse{ID: activity.ID}
			continue
		}

		id := activity.EnsureID()

		if activity.Type == types.ActivityTrace && activity.ChannelID != types.ChannelEmulator {
			// Diagnostic payloads stay out of production channels.
			responses[i] = types.ResourceResponse{ID: id}
			continue
		}

		// The immediate caller is implied by the connection itself.
		activity.CallerID = ""

		resp, err := a.sendRequest(ctx, OperationSend, transport.VerbPOST, id, activity)
		if err != nil {
			errs = append(errs, fmt.Errorf("activity %d: %w", i, err))
			continue
		}
		responses[i] = *resp
	}

	return responses, errors.Join(errs...)
}

// UpdateActivity replaces a delivered activity in place. Failures propagate:
// they indicate the caller referenced a no-longer-resumable conversation.
func (a *SkillAdapter) UpdateActivity(ctx context.Context, _ *TurnContext, activity *types.Activity) (*types.ResourceResponse, error) {
	activity.CallerID = ""
	return a.sendRequest(ctx, OperationUpdate, transport.VerbPUT, activity.EnsureID(), activity)
}

// DeleteActivity removes a delivered activity by its reference.
func (a *SkillAdapter) DeleteActivity(ctx context.Context, _ *TurnContext, reference types.ConversationReference) error {
	start := time.Now()
	req, err := transport.NewRequest(transport.VerbDELETE, activityPath(reference.ActivityID), nil)
	if err != nil {
		return err
	}
	resp, err := a.channel.Send(ctx, req)
	a.record(OperationDelete, err == nil && resp.OK(), time.Since(start))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCallbackFailed, err)
	}
	if !resp.OK() {
		return types.NewError(types.ErrCodeTransport, fmt.Sprintf("delete activity: status %d", resp.StatusCode))
	}
	return nil
}

// ContinueConversation reconstructs a turn from a stored reference, without
// a live inbound activity, and runs handler against it. Used for proactive
// bot-initiated turns.
func (a *SkillAdapter) ContinueConversation(ctx context.Context, reference types.ConversationReference, handler TurnHandler) error {
	event := types.NewEventActivity("continueConversation", nil)
	types.ApplyConversationReference(event, reference, true)
	event.EnsureID()

	_, err := a.ProcessActivity(ctx, event, handler)
	return err
}

// SendRemoteTokenRequestEvent triggers a token request from the parent bot
// by sending a tokens/request event back; the parent answers with a
// tokens/response event on a later turn.
func (a *SkillAdapter) SendRemoteTokenRequestEvent(ctx context.Context, tc *TurnContext) error {
	request := tc.Activity().CreateReply("")
	request.Type = types.ActivityEvent
	request.Name = types.EventTokenRequest

	if a.metrics != nil {
		a.metrics.RecordTokenEvent(types.EventTokenRequest, "sent")
	}
	_, err := a.SendActivities(ctx, tc, []*types.Activity{request})
	return err
}

func (a *SkillAdapter) sendRequest(ctx context.Context, operation, verb, activityID string, activity *types.Activity) (*types.ResourceResponse, error) {
	req, err := transport.NewRequest(verb, activityPath(activityID), activity)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("sending activity",
		zap.String("operation", operation),
		zap.String("reply_to_id", activity.ReplyToID),
	)

	start := time.Now()
	resp, err := a.channel.Send(ctx, req)
	elapsed := time.Since(start)
	a.record(operation, err == nil && resp.OK(), elapsed)

	if err != nil {
		a.logger.Error("activity send failed", zap.String("operation", operation), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrCallbackFailed, err)
	}
	if !resp.OK() {
		return nil, types.NewError(types.ErrCodeTransport,
			fmt.Sprintf("%s: status %d", operation, resp.StatusCode))
	}

	result := &types.ResourceResponse{}
	if len(resp.Body) > 0 {
		if err := resp.BodyAs(result); err != nil {
			return nil, err
		}
	}
	if result.ID == "" {
		// Channels that acknowledge without a body still yield a usable
		// response, keyed by the id stamped before transport.
		result.ID = activityID
	}
	return result, nil
}

func (a *SkillAdapter) record(operation string, ok bool, elapsed time.Duration) {
	if a.metrics == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
		a.metrics.RecordTransportError(operation)
	}
	a.metrics.RecordActivitySend(operation, status, elapsed)
}

func activityPath(activityID string) string {
	return "/activities/" + activityID
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
