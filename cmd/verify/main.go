// Package main checks that a response catalog, the keyword tables, the main
// menu and the media directory agree with each other.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/snospb/vk-sno-bot/internal/catalog"
	"github.com/snospb/vk-sno-bot/internal/intent"
	"github.com/snospb/vk-sno-bot/internal/media"
	"github.com/snospb/vk-sno-bot/internal/vk"
)

// Verification results
type verifyResult struct {
	name    string
	passed  bool
	message string
}

// classifierSamples are phrases real users send, with the intent each must reach.
var classifierSamples = map[string]intent.Intent{
	"Привет!":                      intent.Greeting,
	"Начать":                       intent.Greeting,
	"Какое ближайшее мероприятие?": intent.Events,
	"хочу записаться в кружок":     intent.Circles,
	"как с вами связаться":         intent.Contacts,
	"у меня вопрос":                intent.FAQ,
}

func main() {
	catalogPath := flag.String("catalog", "", "catalog override file (YAML or JSON); empty checks the built-in catalog")
	mediaDir := flag.String("media", "", "media directory to check for intent images; empty skips the check")
	flag.Parse()

	fmt.Println("🔍 VK SNO Bot - Catalog Consistency Verification Tool")
	fmt.Println("=====================================================")

	cat, err := catalog.Load(*catalogPath)
	if err != nil {
		fmt.Printf("❌ Catalog: %v\n", err)
		os.Exit(1)
	}

	var results []verifyResult
	results = append(results, verifyMainMenu()...)
	results = append(results, verifyClassifier()...)
	results = append(results, verifyFallbacks(cat)...)
	if *mediaDir != "" {
		results = append(results, verifyMedia(*mediaDir)...)
	}

	fmt.Println("\n📊 Verification Results:")
	fmt.Println("========================")

	failed := 0
	for _, r := range results {
		status := "✅"
		if !r.passed {
			status = "❌"
			failed++
		}
		fmt.Printf("%s %s: %s\n", status, r.name, r.message)
	}

	fmt.Printf("\n📈 Summary: %d passed, %d failed\n", len(results)-failed, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

// verifyMainMenu checks that every intent is reachable from a menu button.
func verifyMainMenu() []verifyResult {
	seen := make(map[intent.Intent]bool)
	for _, row := range vk.MainMenu().Buttons {
		for _, b := range row {
			raw, err := vk.ParsePayload(b.Action.Payload)
			if err != nil {
				return []verifyResult{{name: "Main menu payloads", message: fmt.Sprintf("button %q: %v", b.Action.Label, err)}}
			}
			if i, ok := intent.Parse(raw); ok {
				seen[i] = true
			}
		}
	}

	results := make([]verifyResult, 0, len(intent.All))
	for _, i := range intent.All {
		results = append(results, verifyResult{
			name:    "Main menu button for " + i.String(),
			passed:  seen[i],
			message: fmt.Sprintf("present=%v", seen[i]),
		})
	}
	return results
}

// verifyClassifier runs the sample phrases through the keyword table.
func verifyClassifier() []verifyResult {
	classifier := intent.DefaultClassifier()
	results := make([]verifyResult, 0, len(classifierSamples))
	for text, want := range classifierSamples {
		got, rule := classifier.Explain(text)
		results = append(results, verifyResult{
			name:    fmt.Sprintf("Classify %q", text),
			passed:  got == want,
			message: fmt.Sprintf("expected %s, got %s (rule %q)", want, got, rule),
		})
	}
	return results
}

// verifyFallbacks checks that every responder key has catalog text.
func verifyFallbacks(cat *catalog.Catalog) []verifyResult {
	results := make([]verifyResult, 0, len(intent.FallbackKeys))
	for _, key := range intent.FallbackKeys {
		text := cat.Fallback(key)
		results = append(results, verifyResult{
			name:    "AI fallback " + key,
			passed:  text != "",
			message: fmt.Sprintf("%d characters", len([]rune(text))),
		})
	}
	return results
}

// verifyMedia checks that each intent image exists and is large enough to be served.
func verifyMedia(dir string) []verifyResult {
	results := make([]verifyResult, 0, len(intent.All))
	for _, i := range intent.All {
		name := media.ImageName(i)
		info, err := os.Stat(filepath.Join(dir, name))
		r := verifyResult{name: "Image " + name}
		switch {
		case err != nil:
			r.message = err.Error()
		case info.Size() < media.MinLocalSize:
			r.message = fmt.Sprintf("%d bytes, below the %d byte minimum", info.Size(), media.MinLocalSize)
		default:
			r.passed = true
			r.message = fmt.Sprintf("%d bytes", info.Size())
		}
		results = append(results, r)
	}
	return results
}
