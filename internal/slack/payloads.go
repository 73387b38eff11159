package slack

// Action ids routed from interactive button clicks.
const (
	ActionAcknowledgeAlert = "acknowledge_alert"
	ActionFeedbackYes      = "feedback_yes"
	ActionFeedbackNo       = "feedback_no"
	ActionAcceptRequest    = "accept_request"
)

// EventCallback is the envelope delivered to the events endpoint.
type EventCallback struct {
	Type      string       `json:"type"`
	Challenge string       `json:"challenge,omitempty"`
	Event     MessageEvent `json:"event"`
}

// MessageEvent is an inbound channel message.
type MessageEvent struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	User     string `json:"user"`
	Channel  string `json:"channel"`
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts,omitempty"`
	BotID    string `json:"bot_id,omitempty"`
}

// ThreadRef returns the timestamp anchoring the message's thread.
func (e MessageEvent) ThreadRef() string {
	if e.ThreadTS != "" {
		return e.ThreadTS
	}
	return e.TS
}

// InteractionPayload is the envelope delivered when a user clicks a button.
type InteractionPayload struct {
	Type string `json:"type"`
	User struct {
		ID string `json:"id"`
	} `json:"user"`
	Channel struct {
		ID string `json:"id"`
	} `json:"channel"`
	Message struct {
		TS string `json:"ts"`
	} `json:"message"`
	Actions []ActionItem `json:"actions"`
}

// ActionItem is a single interactive element activation.
type ActionItem struct {
	ActionID string `json:"action_id"`
	Value    string `json:"value"`
}
