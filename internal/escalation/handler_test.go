package escalation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/deskwatchhq/deskwatch/internal/slack"
	"github.com/deskwatchhq/deskwatch/internal/store"
	"github.com/deskwatchhq/deskwatch/pkg/types"
)

type fakeMessenger struct {
	posted  []slack.Message
	updated []slack.Message
	names   map[string]string
}

func (f *fakeMessenger) PostMessage(ctx context.Context, msg slack.Message) (string, string, error) {
	f.posted = append(f.posted, msg)
	return msg.Channel, "1700000000.000100", nil
}

func (f *fakeMessenger) UpdateMessage(ctx context.Context, channel, ts string, msg slack.Message) error {
	f.updated = append(f.updated, msg)
	return nil
}

func (f *fakeMessenger) UserName(ctx context.Context, userID string) string {
	if name, ok := f.names[userID]; ok {
		return name
	}
	return userID
}

type countingRecorder struct {
	acks        int
	escalations int
}

func (c *countingRecorder) IncAcknowledgments() { c.acks++ }
func (c *countingRecorder) IncEscalations()     { c.escalations++ }

func newTestHandler(t *testing.T) (*Handler, *fakeMessenger, store.Store, *countingRecorder) {
	t.Helper()

	messenger := &fakeMessenger{names: map[string]string{"ULEAD": "Morgan"}}
	interactions := store.NewMemoryStore()
	recorder := &countingRecorder{}

	h, err := NewHandler(Config{HelpChannel: "#support-leads"}, Dependencies{
		Messenger: messenger,
		Store:     interactions,
		Metrics:   recorder,
	})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return h, messenger, interactions, recorder
}

func clickPayload(userID, actionID, value string) slack.InteractionPayload {
	var p slack.InteractionPayload
	p.User.ID = userID
	p.Channel.ID = "C123"
	p.Message.TS = "1699999999.000001"
	p.Actions = []slack.ActionItem{{ActionID: actionID, Value: value}}
	return p
}

func TestFeedbackYesRecordsAndConfirms(t *testing.T) {
	h, messenger, interactions, _ := newTestHandler(t)
	ctx := context.Background()

	if _, err := interactions.LogInteraction(ctx, types.Interaction{
		UserID:   "U1",
		Question: "how do refunds work",
	}); err != nil {
		t.Fatalf("LogInteraction: %v", err)
	}

	payload := clickPayload("U1", slack.ActionFeedbackYes, EncodeRef("U1", "how do refunds work"))
	if err := h.Route(ctx, payload); err != nil {
		t.Fatalf("Route: %v", err)
	}

	all, _ := interactions.ListInteractions(ctx, 1)
	if all[0].Feedback != types.FeedbackYes {
		t.Errorf("feedback = %q, want %q", all[0].Feedback, types.FeedbackYes)
	}
	if len(messenger.updated) != 1 {
		t.Fatalf("got %d message updates, want 1", len(messenger.updated))
	}
	if len(messenger.posted) != 0 {
		t.Errorf("positive feedback should not post new messages, got %d", len(messenger.posted))
	}
}

func TestFeedbackNoEscalates(t *testing.T) {
	h, messenger, interactions, recorder := newTestHandler(t)
	ctx := context.Background()

	if _, err := interactions.LogInteraction(ctx, types.Interaction{
		UserID:   "U1",
		Question: "how do refunds work",
	}); err != nil {
		t.Fatalf("LogInteraction: %v", err)
	}

	payload := clickPayload("U1", slack.ActionFeedbackNo, EncodeRef("U1", "how do refunds work"))
	if err := h.Route(ctx, payload); err != nil {
		t.Fatalf("Route: %v", err)
	}

	if len(messenger.posted) != 1 {
		t.Fatalf("got %d posts, want 1 escalation post", len(messenger.posted))
	}
	post := messenger.posted[0]
	if post.Channel != "#support-leads" {
		t.Errorf("escalation channel = %q, want #support-leads", post.Channel)
	}
	if !strings.Contains(post.Text, "<@U1>") {
		t.Errorf("escalation text %q does not mention the requester", post.Text)
	}

	var accept *slack.Element
	for _, b := range post.Blocks {
		for i := range b.Elements {
			if b.Elements[i].ActionID == slack.ActionAcceptRequest {
				accept = &b.Elements[i]
			}
		}
	}
	if accept == nil {
		t.Fatal("escalation message has no accept button")
	}
	if accept.Value != EncodeRef("U1", "how do refunds work") {
		t.Errorf("accept button value = %q", accept.Value)
	}

	if recorder.escalations != 1 {
		t.Errorf("escalations counter = %d, want 1", recorder.escalations)
	}

	all, _ := interactions.ListInteractions(ctx, 1)
	if all[0].Feedback != types.FeedbackNo {
		t.Errorf("feedback = %q, want %q", all[0].Feedback, types.FeedbackNo)
	}
	if all[0].Manager != types.ManagerPending {
		t.Errorf("manager = %q, want %q until someone accepts", all[0].Manager, types.ManagerPending)
	}

	if len(messenger.updated) != 1 {
		t.Errorf("got %d updates, want the original message rewritten once", len(messenger.updated))
	}
}

type capturingRecorder struct {
	recorded []types.Event
}

func (c *capturingRecorder) Record(event types.Event) {
	c.recorded = append(c.recorded, event)
}

func TestFeedbackNoEventUsesInjectedClock(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	messenger := &fakeMessenger{}
	interactions := store.NewMemoryStore()
	recorded := &capturingRecorder{}

	h, err := NewHandler(Config{HelpChannel: "#support-leads"}, Dependencies{
		Messenger: messenger,
		Store:     interactions,
		Events:    recorded,
		Now:       func() time.Time { return fixed },
	})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	payload := clickPayload("U1", slack.ActionFeedbackNo, EncodeRef("U1", "how do refunds work"))
	if err := h.Route(ctx, payload); err != nil {
		t.Fatalf("Route: %v", err)
	}

	if len(recorded.recorded) != 1 {
		t.Fatalf("got %d events, want 1", len(recorded.recorded))
	}
	evt := recorded.recorded[0]
	if evt.Type != types.EventEscalationRaised {
		t.Errorf("event type = %q", evt.Type)
	}
	if !evt.Timestamp.Equal(fixed) {
		t.Errorf("event timestamp = %v, want %v", evt.Timestamp, fixed)
	}
}

func TestAcceptRequestRecordsManagerAndNotifies(t *testing.T) {
	h, messenger, interactions, _ := newTestHandler(t)
	ctx := context.Background()

	if _, err := interactions.LogInteraction(ctx, types.Interaction{
		UserID:   "U1",
		Question: "how do refunds work",
	}); err != nil {
		t.Fatalf("LogInteraction: %v", err)
	}

	payload := clickPayload("ULEAD", slack.ActionAcceptRequest, EncodeRef("U1", "how do refunds work"))
	if err := h.Route(ctx, payload); err != nil {
		t.Fatalf("Route: %v", err)
	}

	all, _ := interactions.ListInteractions(ctx, 1)
	if all[0].Manager != "Morgan" {
		t.Errorf("manager = %q, want Morgan", all[0].Manager)
	}

	if len(messenger.posted) != 1 {
		t.Fatalf("got %d posts, want 1 direct message", len(messenger.posted))
	}
	if messenger.posted[0].Channel != "U1" {
		t.Errorf("direct message channel = %q, want U1", messenger.posted[0].Channel)
	}
}

func TestRouteUnknownAction(t *testing.T) {
	h, _, _, _ := newTestHandler(t)

	payload := clickPayload("U1", "mystery_button", "whatever")
	if err := h.Route(context.Background(), payload); err == nil {
		t.Fatal("expected error for unknown action id")
	}
}

func TestParseRef(t *testing.T) {
	user, question, err := ParseRef(EncodeRef("U1", "a|b|c"))
	if err != nil {
		t.Fatalf("ParseRef: %v", err)
	}
	if user != "U1" || question != "a|b|c" {
		t.Errorf("got (%q, %q)", user, question)
	}

	if _, _, err := ParseRef("nodivider"); err == nil {
		t.Error("expected error for value without divider")
	}
	if _, _, err := ParseRef("|question"); err == nil {
		t.Error("expected error for empty user id")
	}
}
