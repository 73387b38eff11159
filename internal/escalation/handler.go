// Package escalation routes feedback button clicks: confirming helpful
// answers, raising unresolved questions to the support-leads channel, and
// letting a lead accept a request.
package escalation

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/deskwatchhq/deskwatch/internal/events"
	"github.com/deskwatchhq/deskwatch/internal/metrics"
	"github.com/deskwatchhq/deskwatch/internal/slack"
	"github.com/deskwatchhq/deskwatch/internal/store"
	"github.com/deskwatchhq/deskwatch/pkg/types"
)

// Messenger is the subset of the Slack client the handler needs.
type Messenger interface {
	PostMessage(ctx context.Context, msg slack.Message) (string, string, error)
	UpdateMessage(ctx context.Context, channel, ts string, msg slack.Message) error
	UserName(ctx context.Context, userID string) string
}

// Config holds the static configuration for the escalation handler.
type Config struct {
	HelpChannel string
}

// Dependencies wires the handler's collaborators.
type Dependencies struct {
	Messenger Messenger
	Store     store.Store
	Logger    *log.Logger
	Events    events.Recorder
	Metrics   metrics.ActionRecorder
	Now       func() time.Time
}

// Handler processes feedback and escalation actions.
type Handler struct {
	messenger   Messenger
	store       store.Store
	helpChannel string
	logger      *log.Logger
	events      events.Recorder
	metrics     metrics.ActionRecorder
	now         func() time.Time
}

// NewHandler builds an escalation handler.
func NewHandler(cfg Config, deps Dependencies) (*Handler, error) {
	if deps.Messenger == nil {
		return nil, fmt.Errorf("messenger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	recorder := deps.Events
	if recorder == nil {
		recorder = events.NoopRecorder{}
	}
	actionMetrics := deps.Metrics
	if actionMetrics == nil {
		actionMetrics = metrics.NoopActionRecorder{}
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{
		messenger:   deps.Messenger,
		store:       deps.Store,
		helpChannel: cfg.HelpChannel,
		logger:      logger,
		events:      recorder,
		metrics:     actionMetrics,
		now:         now,
	}, nil
}

// Route dispatches an interaction to the matching handler. Unknown action
// ids are reported as errors so the caller can log them.
func (h *Handler) Route(ctx context.Context, payload slack.InteractionPayload) error {
	if len(payload.Actions) == 0 {
		return fmt.Errorf("interaction payload carries no actions")
	}
	action := payload.Actions[0]
	switch action.ActionID {
	case slack.ActionFeedbackYes:
		return h.handleFeedbackYes(ctx, payload, action)
	case slack.ActionFeedbackNo:
		return h.handleFeedbackNo(ctx, payload, action)
	case slack.ActionAcceptRequest:
		return h.handleAcceptRequest(ctx, payload, action)
	default:
		return fmt.Errorf("unknown action id %q", action.ActionID)
	}
}

func (h *Handler) handleFeedbackYes(ctx context.Context, payload slack.InteractionPayload, action slack.ActionItem) error {
	userID, question, err := ParseRef(action.Value)
	if err != nil {
		return err
	}

	if err := h.store.UpdateFeedback(ctx, userID, question, types.FeedbackYes, types.ManagerNone); err != nil {
		h.logger.Printf("escalation: record positive feedback for %s: %v", userID, err)
	}

	return h.messenger.UpdateMessage(ctx, payload.Channel.ID, payload.Message.TS, slack.Message{
		Text: "Glad the answer helped! ✅",
		Blocks: []slack.Block{
			slack.SectionBlock("Glad the answer helped! ✅"),
		},
	})
}

func (h *Handler) handleFeedbackNo(ctx context.Context, payload slack.InteractionPayload, action slack.ActionItem) error {
	userID, question, err := ParseRef(action.Value)
	if err != nil {
		return err
	}

	if err := h.store.UpdateFeedback(ctx, userID, question, types.FeedbackNo, types.ManagerPending); err != nil {
		h.logger.Printf("escalation: record negative feedback for %s: %v", userID, err)
	}

	text := fmt.Sprintf("🚨 <@%s> still needs help with:\n>%s", userID, question)
	_, _, err = h.messenger.PostMessage(ctx, slack.Message{
		Channel: h.helpChannel,
		Text:    text,
		Blocks: []slack.Block{
			slack.SectionBlock(text),
			slack.ButtonBlock("🙋 I can help", "primary", action.Value, slack.ActionAcceptRequest),
		},
	})
	if err != nil {
		return fmt.Errorf("escalate to %s: %w", h.helpChannel, err)
	}

	h.metrics.IncEscalations()
	h.events.Record(types.Event{
		Type:      types.EventEscalationRaised,
		Timestamp: h.now().UTC(),
		Details:   map[string]any{"user": userID, "question": question},
	})

	return h.messenger.UpdateMessage(ctx, payload.Channel.ID, payload.Message.TS, slack.Message{
		Text: "Sorry the answer didn't help. A support lead has been notified. 🔔",
		Blocks: []slack.Block{
			slack.SectionBlock("Sorry the answer didn't help. A support lead has been notified. 🔔"),
		},
	})
}

func (h *Handler) handleAcceptRequest(ctx context.Context, payload slack.InteractionPayload, action slack.ActionItem) error {
	userID, question, err := ParseRef(action.Value)
	if err != nil {
		return err
	}

	manager := h.messenger.UserName(ctx, payload.User.ID)
	if err := h.store.UpdateFeedback(ctx, userID, question, types.FeedbackNo, manager); err != nil {
		h.logger.Printf("escalation: record acceptance by %s: %v", manager, err)
	}

	accepted := fmt.Sprintf("✅ <@%s> is helping <@%s> with:\n>%s", payload.User.ID, userID, question)
	if err := h.messenger.UpdateMessage(ctx, payload.Channel.ID, payload.Message.TS, slack.Message{
		Text: accepted,
		Blocks: []slack.Block{
			slack.SectionBlock(accepted),
		},
	}); err != nil {
		return err
	}

	// Direct message to the requester.
	_, _, err = h.messenger.PostMessage(ctx, slack.Message{
		Channel: userID,
		Text:    fmt.Sprintf("👋 <@%s> picked up your question and will reach out shortly.", payload.User.ID),
	})
	if err != nil {
		return fmt.Errorf("notify requester %s: %w", userID, err)
	}
	return nil
}

// EncodeRef packs a user id and question into a button value.
func EncodeRef(userID, question string) string {
	return userID + "|" + question
}

// ParseRef unpacks a button value produced by EncodeRef.
func ParseRef(value string) (userID, question string, err error) {
	parts := strings.SplitN(value, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed action value %q", value)
	}
	return parts[0], parts[1], nil
}
