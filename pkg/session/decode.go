package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/mymmrac/telego"

	"github.com/tinyland-inc/sellerbot/pkg/bus"
)

// ErrMalformedEvent marks an inbound payload that is not a valid update.
var ErrMalformedEvent = errors.New("invalid json")

// DecodeUpdate parses one webhook body. Anything that is not a JSON object
// shaped like an update is rejected before any session work happens.
func DecodeUpdate(raw []byte) (telego.Update, error) {
	var u telego.Update

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return u, fmt.Errorf("%w: body is not a JSON object", ErrMalformedEvent)
	}
	if err := json.Unmarshal(trimmed, &u); err != nil {
		return u, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return u, nil
}

// ToInbound extracts the text message carried by u. Updates without a message
// or a sender report false.
func ToInbound(u telego.Update) (bus.InboundMessage, bool) {
	m := u.Message
	if m == nil || m.From == nil {
		return bus.InboundMessage{}, false
	}

	eventID := strconv.Itoa(u.UpdateID)
	if u.UpdateID == 0 {
		eventID = uuid.NewString()
	}

	return bus.InboundMessage{
		EventID:  eventID,
		SenderID: m.From.ID,
		Username: m.From.Username,
		ChatID:   m.Chat.ID,
		Text:     m.Text,
	}, true
}

// SenderKey groups updates that must be handled in order.
func SenderKey(u telego.Update) int64 {
	if u.Message != nil && u.Message.From != nil {
		return u.Message.From.ID
	}
	return 0
}
