package intent

import "testing"

type mapSource map[string]string

func (m mapSource) Fallback(key string) string { return m[key] }

var testTexts = mapSource{
	FallbackGreeting: "greeting reply",
	FallbackEvents:   "events reply",
	FallbackCircles:  "circles reply",
	FallbackContacts: "contacts reply",
	FallbackGeneral:  "general reply",
}

func TestResponder_Reply(t *testing.T) {
	t.Parallel()

	r := NewResponder(testTexts)
	tests := []struct {
		text string
		want string
	}{
		{"Привет!", "greeting reply"},
		{"hello", "greeting reply"},
		{"когда мероприятие", "events reply"},
		{"событие", "events reply"},
		{"расскажи про СНК", "circles reply"},
		{"кружок", "circles reply"},
		{"секция", "general reply"},
		{"контакты", "contacts reply"},
		{"как связаться", "contacts reply"},
		{"как написать статью", "general reply"},
		{"", "general reply"},
	}
	for _, tt := range tests {
		if got := r.Reply(tt.text); got != tt.want {
			t.Errorf("Reply(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestResponder_Total(t *testing.T) {
	t.Parallel()

	inputs := []string{"", " ", "привет", "событие", "снк", "связь", "???", "\x00"}
	sources := map[string]FallbackSource{
		"nil":          nil,
		"empty":        mapSource{},
		"blank events": mapSource{FallbackEvents: "  ", FallbackGeneral: "general reply"},
		"full":         testTexts,
	}

	for name, src := range sources {
		r := NewResponder(src)
		for _, in := range inputs {
			if got := r.Reply(in); got == "" {
				t.Errorf("[%s] Reply(%q) returned empty", name, in)
			}
		}
	}
}

func TestResponder_BlankEntryFallsBackToGeneral(t *testing.T) {
	t.Parallel()

	r := NewResponder(mapSource{FallbackEvents: " ", FallbackGeneral: "general reply"})
	if got := r.Reply("мероприятие"); got != "general reply" {
		t.Errorf("Reply() = %q, want general reply", got)
	}

	r = NewResponder(nil)
	if got := r.Reply("мероприятие"); got != genericFallback {
		t.Errorf("Reply() = %q, want built-in text", got)
	}
}

func TestResponder_Key(t *testing.T) {
	t.Parallel()

	r := NewResponder(nil)
	if got := r.Key("СНК"); got != FallbackCircles {
		t.Errorf("Key(СНК) = %q, want circles", got)
	}
	if got := r.Key("hello, мероприятие"); got != FallbackGreeting {
		t.Errorf("Key() = %q, want greeting first", got)
	}
}
