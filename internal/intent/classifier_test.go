package intent

import "testing"

func TestClassify(t *testing.T) {
	t.Parallel()

	c := DefaultClassifier()
	tests := []struct {
		text string
		want Intent
	}{
		{"привет", Greeting},
		{"Hello there", Greeting},
		{"Начать", Greeting},
		{"начать сейчас", Greeting},
		{"Какие мероприятия будут?", Greeting},
		{"ближайшее мероприятие", Events},
		{"какое событие завтра", Events},
		{"хочу в кружок", Circles},
		{"есть секция по праву?", Circles},
		{"дайте контакты", Contacts},
		{"как связаться", Contacts},
		{"FAQ", FAQ},
		{"у меня вопрос", FAQ},
		{"нужна помощь", FAQ},
		{"погода", Greeting},
		{"", Greeting},
	}

	for _, tt := range tests {
		if got := c.Classify(tt.text); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestClassify_GreetingWinsRegardlessOfPosition(t *testing.T) {
	t.Parallel()

	c := DefaultClassifier()
	for _, text := range []string{
		"мероприятие привет",
		"привет, есть мероприятие?",
		"контакт кружок hello",
		"вопрос про событие, hello",
	} {
		if got := c.Classify(text); got != Greeting {
			t.Errorf("Classify(%q) = %q, want greeting", text, got)
		}
	}
}

func TestClassify_RuleOrderBreaksTies(t *testing.T) {
	t.Parallel()

	c := DefaultClassifier()
	tests := []struct {
		text string
		want Intent
	}{
		{"контакт кружка и мероприятие", Events},
		{"вопрос про кружок", Circles},
		{"вопрос: как связаться", Contacts},
	}
	for _, tt := range tests {
		if got := c.Classify(tt.text); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestExplain(t *testing.T) {
	t.Parallel()

	c := DefaultClassifier()
	if i, rule := c.Explain("секция"); i != Circles || rule != "circles" {
		t.Errorf("Explain(секция) = (%q, %q)", i, rule)
	}
	if i, rule := c.Explain("xyz"); i != Greeting || rule != "default" {
		t.Errorf("Explain(xyz) = (%q, %q)", i, rule)
	}
}

func TestNewClassifier_CustomRules(t *testing.T) {
	t.Parallel()

	c := NewClassifier(RuleSet[Intent]{
		Rules:   []Rule[Intent]{{Name: "faq", Match: Equals("?"), Result: FAQ}},
		Default: Contacts,
	})
	if got := c.Classify(" ? "); got != FAQ {
		t.Errorf("Classify(?) = %q, want faq", got)
	}
	if got := c.Classify("привет"); got != Contacts {
		t.Errorf("custom default not applied, got %q", got)
	}
}
