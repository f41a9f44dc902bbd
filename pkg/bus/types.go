package bus

// InboundMessage is one parsed chat event: who sent it, where to answer and
// what was typed.
type InboundMessage struct {
	EventID  string `json:"event_id"`
	SenderID int64  `json:"sender_id"`
	Username string `json:"username,omitempty"`
	ChatID   int64  `json:"chat_id"`
	Text     string `json:"text"`
}

// ReplyChatID returns the chat to answer in, falling back to the sender's
// private chat when the event carried no chat.
func (m InboundMessage) ReplyChatID() int64 {
	if m.ChatID != 0 {
		return m.ChatID
	}
	return m.SenderID
}

// Keyboard is a reply keyboard as rows of button labels.
type Keyboard [][]string

type OutboundMessage struct {
	ChatID    int64    `json:"chat_id"`
	Text      string   `json:"text"`
	Keyboard  Keyboard `json:"keyboard,omitempty"`
	ParseMode string   `json:"parse_mode,omitempty"`
}
