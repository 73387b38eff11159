package slack

// Message is the outbound payload for chat.postMessage and chat.update.
type Message struct {
	Channel  string  `json:"channel,omitempty"`
	ThreadTS string  `json:"thread_ts,omitempty"`
	Text     string  `json:"text"`
	Blocks   []Block `json:"blocks,omitempty"`
}

// Block is one Block Kit layout block. Only the section and actions kinds
// the bot emits are modelled.
type Block struct {
	Type     string      `json:"type"`
	Text     *TextObject `json:"text,omitempty"`
	Elements []Element   `json:"elements,omitempty"`
}

type TextObject struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

// Element is an interactive element inside an actions block.
type Element struct {
	Type     string      `json:"type"`
	Text     *TextObject `json:"text,omitempty"`
	Style    string      `json:"style,omitempty"`
	Value    string      `json:"value,omitempty"`
	ActionID string      `json:"action_id"`
}

// SectionBlock builds a markdown section.
func SectionBlock(markdown string) Block {
	return Block{
		Type: "section",
		Text: &TextObject{Type: "mrkdwn", Text: markdown},
	}
}

// ButtonBlock builds an actions block holding a single button.
func ButtonBlock(label, style, value, actionID string) Block {
	return Block{
		Type: "actions",
		Elements: []Element{
			{
				Type:     "button",
				Text:     &TextObject{Type: "plain_text", Text: label, Emoji: true},
				Style:    style,
				Value:    value,
				ActionID: actionID,
			},
		},
	}
}
