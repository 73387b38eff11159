// Package bot routes inbound channel messages to the knowledge base and the
// support-leads channel.
package bot

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/deskwatchhq/deskwatch/internal/escalation"
	"github.com/deskwatchhq/deskwatch/internal/kb"
	"github.com/deskwatchhq/deskwatch/internal/slack"
	"github.com/deskwatchhq/deskwatch/internal/store"
	"github.com/deskwatchhq/deskwatch/pkg/types"
)

// Message triggers recognised in channel text.
const (
	TriggerHelp  = "@help"
	TriggerLeads = "@customersupportleads"
)

// Searcher is the knowledge-base surface the bot needs.
type Searcher interface {
	SearchCards(ctx context.Context, query string) ([]kb.Card, error)
}

// Messenger is the Slack surface the bot needs.
type Messenger interface {
	PostMessage(ctx context.Context, msg slack.Message) (string, string, error)
	Permalink(ctx context.Context, channel, messageTS string) (string, error)
	UserName(ctx context.Context, userID string) string
}

// Config holds the static configuration for the bot.
type Config struct {
	LeadsChannel string
}

// Dependencies wires the bot's collaborators.
type Dependencies struct {
	Messenger Messenger
	Searcher  Searcher
	Store     store.Store
	Logger    *log.Logger
}

// Bot answers @help questions and forwards @customersupportleads requests.
type Bot struct {
	messenger    Messenger
	searcher     Searcher
	store        store.Store
	leadsChannel string
	logger       *log.Logger
}

// New builds a bot.
func New(cfg Config, deps Dependencies) (*Bot, error) {
	if deps.Messenger == nil {
		return nil, fmt.Errorf("messenger is required")
	}
	if deps.Searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Bot{
		messenger:    deps.Messenger,
		searcher:     deps.Searcher,
		store:        deps.Store,
		leadsChannel: cfg.LeadsChannel,
		logger:       logger,
	}, nil
}

// HandleMessage inspects an inbound channel message and reacts to the
// triggers it recognises. Bot-authored and empty messages are ignored.
func (b *Bot) HandleMessage(ctx context.Context, event slack.MessageEvent) error {
	if event.BotID != "" || event.User == "" {
		return nil
	}
	text := strings.TrimSpace(event.Text)
	switch {
	case strings.HasPrefix(text, TriggerHelp):
		question := strings.TrimSpace(strings.TrimPrefix(text, TriggerHelp))
		if question == "" {
			return nil
		}
		return b.answerQuestion(ctx, event, question)
	case strings.HasPrefix(text, TriggerLeads):
		request := strings.TrimSpace(strings.TrimPrefix(text, TriggerLeads))
		return b.forwardToLeads(ctx, event, request)
	default:
		return nil
	}
}

func (b *Bot) answerQuestion(ctx context.Context, event slack.MessageEvent, question string) error {
	cards, err := b.searcher.SearchCards(ctx, question)
	if err != nil {
		return fmt.Errorf("search knowledge base: %w", err)
	}

	answer := formatAnswer(cards)
	ref := escalation.EncodeRef(event.User, question)

	_, _, err = b.messenger.PostMessage(ctx, slack.Message{
		Channel:  event.Channel,
		ThreadTS: event.ThreadRef(),
		Text:     answer,
		Blocks: []slack.Block{
			slack.SectionBlock(answer),
			slack.SectionBlock("Did this answer your question?"),
			feedbackButtons(ref),
		},
	})
	if err != nil {
		return fmt.Errorf("post answer: %w", err)
	}

	userName := b.messenger.UserName(ctx, event.User)
	if _, err := b.store.LogInteraction(ctx, types.Interaction{
		UserID:   event.User,
		UserName: userName,
		Question: question,
		Answer:   answer,
	}); err != nil {
		b.logger.Printf("bot: log interaction for %s: %v", event.User, err)
	}
	return nil
}

func (b *Bot) forwardToLeads(ctx context.Context, event slack.MessageEvent, request string) error {
	permalink, err := b.messenger.Permalink(ctx, event.Channel, event.TS)
	if err != nil {
		b.logger.Printf("bot: permalink for %s: %v", event.TS, err)
		permalink = ""
	}

	text := fmt.Sprintf("📣 <@%s> asked for a support lead", event.User)
	if request != "" {
		text += fmt.Sprintf(":\n>%s", request)
	}
	if permalink != "" {
		text += fmt.Sprintf("\n<%s|View the original message>", permalink)
	}

	_, _, err = b.messenger.PostMessage(ctx, slack.Message{
		Channel: b.leadsChannel,
		Text:    text,
		Blocks: []slack.Block{
			slack.SectionBlock(text),
		},
	})
	if err != nil {
		return fmt.Errorf("forward to %s: %w", b.leadsChannel, err)
	}

	_, _, err = b.messenger.PostMessage(ctx, slack.Message{
		Channel:  event.Channel,
		ThreadTS: event.ThreadRef(),
		Text:     "A support lead has been notified. 👍",
	})
	return err
}

func formatAnswer(cards []kb.Card) string {
	if len(cards) == 0 {
		return "I couldn't find anything in the knowledge base for that. A support lead may be able to help — try `@customersupportleads`."
	}
	var sb strings.Builder
	sb.WriteString("Here's what I found:\n")
	for _, card := range cards {
		fmt.Fprintf(&sb, "• <%s|%s>\n", card.URL(), card.Title)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func feedbackButtons(ref string) slack.Block {
	return slack.Block{
		Type: "actions",
		Elements: []slack.Element{
			{
				Type:     "button",
				Text:     &slack.TextObject{Type: "plain_text", Text: "👍 Yes", Emoji: true},
				Style:    "primary",
				Value:    ref,
				ActionID: slack.ActionFeedbackYes,
			},
			{
				Type:     "button",
				Text:     &slack.TextObject{Type: "plain_text", Text: "👎 No", Emoji: true},
				Style:    "danger",
				Value:    ref,
				ActionID: slack.ActionFeedbackNo,
			},
		},
	}
}
