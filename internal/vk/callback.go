package vk

import (
	"encoding/json"
	"strings"

	apperrors "github.com/snospb/vk-sno-bot/internal/errors"
)

// Callback API event types handled by the bot.
const (
	EventConfirmation = "confirmation"
	EventMessageNew   = "message_new"
)

// CallbackEvent is the Callback API envelope.
type CallbackEvent struct {
	Type    string          `json:"type"`
	GroupID int64           `json:"group_id"`
	EventID string          `json:"event_id"`
	Secret  string          `json:"secret"`
	Version string          `json:"v"`
	Object  json.RawMessage `json:"object"`
}

// MessageNewObject is the object of a message_new event (API 5.103+).
type MessageNewObject struct {
	Message Message `json:"message"`
}

// Message is an incoming community message.
type Message struct {
	ID      int64  `json:"id"`
	Date    int64  `json:"date"`
	PeerID  int64  `json:"peer_id"`
	FromID  int64  `json:"from_id"`
	Text    string `json:"text"`
	Payload string `json:"payload,omitempty"`
}

// DecodeMessageNew extracts the message from a message_new envelope.
func (e *CallbackEvent) DecodeMessageNew() (Message, error) {
	var obj MessageNewObject
	if err := json.Unmarshal(e.Object, &obj); err != nil {
		return Message{}, err
	}
	return obj.Message, nil
}

// ParsePayload decodes a button payload into its raw intent string.
// Empty payloads return "" and no error.
func ParsePayload(payload string) (string, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return "", nil
	}
	var p IntentPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return "", apperrors.ErrInvalidPayload
	}
	return strings.TrimSpace(p.Intent), nil
}
