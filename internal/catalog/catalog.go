// Package catalog holds the immutable reply texts: one template per intent,
// system messages, and canned AI fallback replies.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	apperrors "github.com/snospb/vk-sno-bot/internal/errors"
	"github.com/snospb/vk-sno-bot/internal/intent"
)

// System message keys.
const (
	SystemAIUnavailable = "ai_unavailable"
	SystemAIProcessing  = "ai_processing"
	SystemBackToMenu    = "back_to_menu"
)

// SystemKeys lists the required system messages.
var SystemKeys = []string{SystemAIUnavailable, SystemAIProcessing, SystemBackToMenu}

//go:embed responses.yaml
var builtinYAML []byte

//go:embed schema.json
var schemaJSON []byte

// entry is one {text: ...} item.
type entry struct {
	Text string `yaml:"text"`
}

// document mirrors responses.yaml.
type document struct {
	Intents        map[string]entry `yaml:"intents"`
	SystemMessages map[string]entry `yaml:"system_messages"`
	AIFallback     map[string]entry `yaml:"ai_fallback"`
}

// Catalog is safe for concurrent use; it is never mutated after Parse.
type Catalog struct {
	intents  map[intent.Intent]string
	system   map[string]string
	fallback map[string]string
}

// Builtin parses the embedded catalog.
func Builtin() (*Catalog, error) {
	return Parse(builtinYAML)
}

// MustBuiltin is Builtin for tests and tools; it panics on a broken embed.
func MustBuiltin() *Catalog {
	c, err := Builtin()
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads an override catalog from path, or the built-in one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Builtin()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a YAML or JSON document, validates it against the schema, and
// checks that every intent, system key, and fallback key has non-blank text.
func Parse(data []byte) (*Catalog, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := doc.checkComplete(); err != nil {
		return nil, err
	}

	c := &Catalog{
		intents:  make(map[intent.Intent]string, len(doc.Intents)),
		system:   make(map[string]string, len(doc.SystemMessages)),
		fallback: make(map[string]string, len(doc.AIFallback)),
	}
	for k, v := range doc.Intents {
		// Override files written for the first deployment may use Russian keys.
		if i, ok := intent.Parse(k); ok {
			c.intents[i] = v.Text
		}
	}
	for k, v := range doc.SystemMessages {
		c.system[k] = v.Text
	}
	for k, v := range doc.AIFallback {
		c.fallback[k] = v.Text
	}
	return c, nil
}

func validateSchema(doc any) error {
	if doc == nil {
		return apperrors.NewValidationError("catalog", "document is empty")
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}
	errs := make([]error, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		errs = append(errs, apperrors.NewValidationError(re.Field(), re.Description()))
	}
	return errors.Join(errs...)
}

func (d *document) checkComplete() error {
	var errs []error
	present := make(map[intent.Intent]bool, len(d.Intents))
	for k, v := range d.Intents {
		if i, ok := intent.Parse(k); ok && strings.TrimSpace(v.Text) != "" {
			present[i] = true
		}
	}
	for _, i := range intent.All {
		if !present[i] {
			errs = append(errs, apperrors.NewValidationError("intents."+i.String(), "missing or blank"))
		}
	}
	errs = append(errs, requireKeys("system_messages", d.SystemMessages, SystemKeys)...)
	errs = append(errs, requireKeys("ai_fallback", d.AIFallback, intent.FallbackKeys)...)
	return errors.Join(errs...)
}

func requireKeys(section string, m map[string]entry, keys []string) []error {
	var errs []error
	for _, k := range keys {
		if strings.TrimSpace(m[k].Text) == "" {
			errs = append(errs, apperrors.NewValidationError(section+"."+k, "missing or blank"))
		}
	}
	return errs
}

// Template returns the menu text for i; intents outside the catalog get the
// greeting template.
func (c *Catalog) Template(i intent.Intent) string {
	if s, ok := c.intents[i]; ok {
		return s
	}
	return c.intents[intent.Default]
}

// System returns a system message, or "" for an unknown key.
func (c *Catalog) System(key string) string {
	return c.system[key]
}

// Fallback returns a canned AI reply by key, or "" for an unknown key.
// It satisfies intent.FallbackSource.
func (c *Catalog) Fallback(key string) string {
	return c.fallback[key]
}
