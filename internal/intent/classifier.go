package intent

// ClassifierRules is the ordered keyword table for free-text messages.
// Greeting is checked first, so a greeting word anywhere in the message wins
// over every other keyword.
var ClassifierRules = RuleSet[Intent]{
	Rules: []Rule[Intent]{
		{Name: "greeting", Match: AnyOf(ContainsAny("привет", "hello"), Equals("начать")), Result: Greeting},
		{Name: "events", Match: ContainsAny("мероприятие", "событие"), Result: Events},
		{Name: "circles", Match: ContainsAny("кружок", "секция"), Result: Circles},
		{Name: "contacts", Match: ContainsAny("контакт", "связ"), Result: Contacts},
		{Name: "faq", Match: ContainsAny("faq", "вопрос", "помощь"), Result: FAQ},
	},
	Default: Default,
}

// Classifier maps free text to an intent. The zero value is not usable; use
// NewClassifier.
type Classifier struct {
	rules RuleSet[Intent]
}

// NewClassifier creates a classifier over the given rules.
func NewClassifier(rules RuleSet[Intent]) *Classifier {
	return &Classifier{rules: rules}
}

// DefaultClassifier uses ClassifierRules.
func DefaultClassifier() *Classifier {
	return NewClassifier(ClassifierRules)
}

// Classify returns the intent for text. It is pure and never fails; text that
// matches no rule yields Default.
func (c *Classifier) Classify(text string) Intent {
	i, _ := c.rules.Evaluate(Normalize(text))
	return i
}

// Explain is Classify plus the name of the rule that fired.
func (c *Classifier) Explain(text string) (Intent, string) {
	return c.rules.Evaluate(Normalize(text))
}
