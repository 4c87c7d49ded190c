package intent

import "strings"

// Fallback reply keys, shared with the response catalog's ai_fallback section.
const (
	FallbackGreeting = "greeting"
	FallbackEvents   = "events"
	FallbackCircles  = "circles"
	FallbackContacts = "contacts"
	FallbackGeneral  = "general"
)

// FallbackKeys lists every key the responder can produce.
var FallbackKeys = []string{FallbackGreeting, FallbackEvents, FallbackCircles, FallbackContacts, FallbackGeneral}

// genericFallback guarantees a non-empty reply even with a broken catalog.
const genericFallback = "Спасибо за вопрос! Я умный помощник СНО. Могу рассказать о мероприятиях, кружках, контактах. Что вас интересует? 🤔"

// ResponderRules picks a canned reply for AI helper questions. The keywords
// differ slightly from ClassifierRules ("снк" instead of "секция").
var ResponderRules = RuleSet[string]{
	Rules: []Rule[string]{
		{Name: "greeting", Match: ContainsAny("привет", "hello"), Result: FallbackGreeting},
		{Name: "events", Match: ContainsAny("мероприятие", "событие"), Result: FallbackEvents},
		{Name: "circles", Match: ContainsAny("кружок", "снк"), Result: FallbackCircles},
		{Name: "contacts", Match: ContainsAny("контакт", "связ"), Result: FallbackContacts},
	},
	Default: FallbackGeneral,
}

// FallbackSource supplies canned reply texts by key.
type FallbackSource interface {
	Fallback(key string) string
}

// Responder produces canned replies when the AI backend cannot answer.
type Responder struct {
	rules  RuleSet[string]
	source FallbackSource
}

// NewResponder creates a responder reading texts from source (may be nil).
func NewResponder(source FallbackSource) *Responder {
	return &Responder{rules: ResponderRules, source: source}
}

// Key returns the fallback key chosen for text.
func (r *Responder) Key(text string) string {
	key, _ := r.rules.Evaluate(Normalize(text))
	return key
}

// Reply returns the canned reply for text. It is total: a blank entry falls
// back to the general reply and then to a built-in text.
func (r *Responder) Reply(text string) string {
	if r.source != nil {
		if s := r.source.Fallback(r.Key(text)); strings.TrimSpace(s) != "" {
			return s
		}
		if s := r.source.Fallback(FallbackGeneral); strings.TrimSpace(s) != "" {
			return s
		}
	}
	return genericFallback
}
