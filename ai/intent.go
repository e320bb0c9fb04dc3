package ai

import (
	"ChatBridge/core"
	"strings"
)

var imageTriggers = []string{"create an image", "imagine", "generate an image"}

const reasoningTrigger = "reason"

type Intent struct {
	Kind string
	// Prompt is set for image requests only
	Prompt string
}

// Classify routes a message by its leading phrase. Matching ignores case and
// surrounding space; image triggers are checked before the reasoning one.
func Classify(message string) Intent {
	text := strings.TrimSpace(message)

	for _, trigger := range imageTriggers {
		if hasPrefixFold(text, trigger) {
			return Intent{
				Kind:   core.IntentImage,
				Prompt: strings.TrimSpace(text[len(trigger):]),
			}
		}
	}
	if hasPrefixFold(text, reasoningTrigger) {
		return Intent{Kind: core.IntentReasoning}
	}
	return Intent{Kind: core.IntentDefault}
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
