package vk

import (
	"encoding/json"

	"github.com/snospb/vk-sno-bot/internal/intent"
)

// Button colors supported by VK bot keyboards.
const (
	ColorPrimary   = "primary"
	ColorSecondary = "secondary"
	ColorNegative  = "negative"
	ColorPositive  = "positive"
)

// Keyboard is a VK bot keyboard.
type Keyboard struct {
	OneTime bool       `json:"one_time"`
	Inline  bool       `json:"inline"`
	Buttons [][]Button `json:"buttons"`
}

// Button is a text button carrying an intent payload.
type Button struct {
	Action Action `json:"action"`
	Color  string `json:"color"`
}

// Action is the button action. Payload is a JSON string, as VK requires.
type Action struct {
	Type    string `json:"type"`
	Label   string `json:"label"`
	Payload string `json:"payload"`
}

// IntentPayload is the button payload body.
type IntentPayload struct {
	Intent string `json:"intent"`
}

// EncodePayload renders the payload string for an intent.
func EncodePayload(i intent.Intent) string {
	b, _ := json.Marshal(IntentPayload{Intent: i.String()})
	return string(b)
}

// NewButton creates a text button. An empty color means secondary.
func NewButton(label string, i intent.Intent, color string) Button {
	if color == "" {
		color = ColorSecondary
	}
	return Button{
		Action: Action{Type: "text", Label: label, Payload: EncodePayload(i)},
		Color:  color,
	}
}

// MainMenu returns the persistent main menu keyboard.
func MainMenu() *Keyboard {
	return &Keyboard{
		Buttons: [][]Button{
			{NewButton("👋 Приветствие", intent.Greeting, ColorPrimary)},
			{NewButton("🎓 Мероприятия", intent.Events, ""), NewButton("🔬 СНК", intent.Circles, "")},
			{NewButton("🧠 Умный помощник", intent.AIHelper, ColorPositive)},
			{NewButton("📞 Контакты", intent.Contacts, ""), NewButton("❓ FAQ", intent.FAQ, "")},
		},
	}
}

// BackToMenu returns the one-time keyboard that leaves AI mode.
func BackToMenu(label string) *Keyboard {
	return &Keyboard{
		OneTime: true,
		Buttons: [][]Button{{NewButton(label, intent.Greeting, "")}},
	}
}

// JSON encodes the keyboard for the messages.send keyboard parameter.
func (k *Keyboard) JSON() (string, error) {
	b, err := json.Marshal(k)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
