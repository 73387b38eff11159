package notify

import (
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"github.com/deskwatchhq/deskwatch/internal/slack"
)

// Poster is the slice of the chat client the notifier needs.
type Poster interface {
	PostMessage(ctx context.Context, msg slack.Message) (string, string, error)
}

// AlertNotifier posts agent-status alerts to the leads channel with an
// acknowledge button. The button value carries the agent id so the inbound
// action handler can clear the right ledger entry.
type AlertNotifier struct {
	poster  Poster
	channel string
	logger  *log.Logger
}

func NewAlertNotifier(poster Poster, channel string, logger *log.Logger) *AlertNotifier {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &AlertNotifier{poster: poster, channel: channel, logger: logger}
}

// Send implements poller.Notifier.
func (n *AlertNotifier) Send(ctx context.Context, agentID int64, agentName string, duration time.Duration) error {
	text := fmt.Sprintf("⚠️ Alert: Agent %s has been in Transfers Only status for %s.", agentName, FormatDuration(duration))
	msg := slack.Message{
		Channel: n.channel,
		Text:    text,
		Blocks: []slack.Block{
			slack.SectionBlock(fmt.Sprintf("*Agent Status Alert*\n⚠️ Agent *%s* has been in Transfers Only status for %s.", agentName, FormatDuration(duration))),
			slack.ButtonBlock("✅", "primary", strconv.FormatInt(agentID, 10), slack.ActionAcknowledgeAlert),
		},
	}
	if _, _, err := n.poster.PostMessage(ctx, msg); err != nil {
		return fmt.Errorf("post status alert for %s: %w", agentName, err)
	}
	n.logger.Printf("status alert sent for agent %d (%s)", agentID, agentName)
	return nil
}

// FormatDuration renders a duration as compact h/m/s text.
func FormatDuration(d time.Duration) string {
	total := int(d.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
