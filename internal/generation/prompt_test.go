package generation

import (
	"strings"
	"testing"

	"slmassist/internal/history"
)

func TestBuildPrompt(t *testing.T) {
	turns := []history.Turn{
		{Role: history.RoleSystem, Content: "You are a PDF assistant."},
		{Role: history.RoleUser, Content: "hello"},
		{Role: history.RoleAssistant, Content: "hi"},
		{Role: history.RoleUser, Content: "summarize it"},
	}

	prompt := BuildPrompt(turns)

	want := "<|system|>\nYou are a PDF assistant.<|end|>\n" +
		"<|user|>\nhello<|end|>\n" +
		"<|assistant|>\nhi<|end|>\n" +
		"<|user|>\nsummarize it<|end|>\n" +
		"<|assistant|>\n"
	if prompt != want {
		t.Errorf("BuildPrompt mismatch:\ngot:  %q\nwant: %q", prompt, want)
	}
}

func TestBuildPromptEndsWithOpenAssistantTurn(t *testing.T) {
	prompt := BuildPrompt([]history.Turn{{Role: history.RoleUser, Content: "x"}})
	if !strings.HasSuffix(prompt, "<|assistant|>\n") {
		t.Errorf("prompt should end with an open assistant turn, got %q", prompt)
	}
}

func TestBuildPromptEmptyWindow(t *testing.T) {
	prompt := BuildPrompt(nil)
	if prompt != "<|assistant|>\n" {
		t.Errorf("empty window prompt = %q", prompt)
	}
}

func TestSamplingPresets(t *testing.T) {
	det := Deterministic(256)
	if det.Temperature != 0 || det.TopK != 1 {
		t.Errorf("Deterministic = %+v, want temperature 0 / top-1", det)
	}
	cre := Creative(256)
	if cre.Temperature <= 0 {
		t.Errorf("Creative temperature = %v, want > 0", cre.Temperature)
	}
	if det.MaxTokens != 256 || cre.MaxTokens != 256 {
		t.Error("MaxTokens not carried through")
	}
}
