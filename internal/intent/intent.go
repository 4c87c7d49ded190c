// Package intent defines the closed set of bot intents and the keyword rules
// that map free text onto them.
package intent

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Intent names which canned response and menu apply to a turn.
type Intent string

// The closed intent set.
const (
	Greeting Intent = "greeting"
	Events   Intent = "events"
	Circles  Intent = "circles"
	Contacts Intent = "contacts"
	FAQ      Intent = "faq"
	AIHelper Intent = "ai_helper"
)

// Default is served whenever an intent cannot be resolved.
const Default = Greeting

// CommandPrefix marks messages that bypass AI helper routing.
const CommandPrefix = "/"

// All lists the closed set in menu order.
var All = []Intent{Greeting, Events, Circles, Contacts, FAQ, AIHelper}

// legacyAliases maps payload values sent by keyboards of the first deployment,
// which used Russian intent keys. Old keyboards stay pinned in chats until the
// next main menu arrives, so their buttons must keep working.
var legacyAliases = map[string]Intent{
	"приветствие": Greeting,
	"мероприятия": Events,
	"кружки":      Circles,
	"контакты":    Contacts,
}

// greetingTokens are whole-message greetings that always show the main menu,
// even for users in AI helper mode.
var greetingTokens = map[string]struct{}{
	"привет":       {},
	"hello":        {},
	"hi":           {},
	"здравствуйте": {},
}

// String implements fmt.Stringer.
func (i Intent) String() string { return string(i) }

// Valid reports whether i belongs to the closed set.
func (i Intent) Valid() bool {
	switch i {
	case Greeting, Events, Circles, Contacts, FAQ, AIHelper:
		return true
	}
	return false
}

// Parse resolves a raw intent name, including legacy aliases.
// The second result is false for names outside the closed set.
func Parse(raw string) (Intent, bool) {
	name := strings.TrimSpace(raw)
	if i := Intent(name); i.Valid() {
		return i, true
	}
	if i, ok := legacyAliases[Normalize(name)]; ok {
		return i, true
	}
	return Default, false
}

// Resolve is Parse collapsed onto the named default.
func Resolve(raw string) Intent {
	i, _ := Parse(raw)
	return i
}

// Normalize trims surrounding whitespace and lower-cases text using Unicode
// case rules, so Cyrillic input matches the keyword tables.
func Normalize(text string) string {
	// A Caser keeps state between calls and is not safe for concurrent use.
	return cases.Lower(language.Russian).String(strings.TrimSpace(text))
}

// IsGreetingToken reports whether the whole message is a bare greeting.
func IsGreetingToken(text string) bool {
	_, ok := greetingTokens[Normalize(text)]
	return ok
}

// IsCommand reports whether text starts with the command prefix.
func IsCommand(text string) bool {
	return strings.HasPrefix(text, CommandPrefix)
}
