package ai

import (
	"testing"

	"ChatBridge/core"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		message    string
		wantKind   string
		wantPrompt string
	}{
		{"Create an image of a cat", core.IntentImage, "of a cat"},
		{"  imagine   a red Fox at dawn ", core.IntentImage, "a red Fox at dawn"},
		{"GENERATE AN IMAGE: sunset", core.IntentImage, ": sunset"},
		{"imagine", core.IntentImage, ""},
		{"reason about X", core.IntentReasoning, ""},
		{"Reasoning is hard", core.IntentReasoning, ""},
		{"hello", core.IntentDefault, ""},
		{"please imagine a cat", core.IntentDefault, ""},
		{"create a picture", core.IntentDefault, ""},
		{"", core.IntentDefault, ""},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			got := Classify(tt.message)
			if got.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", got.Kind, tt.wantKind)
			}
			if got.Prompt != tt.wantPrompt {
				t.Errorf("prompt = %q, want %q", got.Prompt, tt.wantPrompt)
			}
		})
	}
}
