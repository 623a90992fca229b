package generation

import (
	"strings"

	"slmassist/internal/history"
)

// Phi-3 instruct chat template markers. The stop word keeps the model from
// running past its own turn.
const (
	systemMarker    = "<|system|>"
	userMarker      = "<|user|>"
	assistantMarker = "<|assistant|>"
	endMarker       = "<|end|>"
)

// BuildPrompt renders a message window into the instruct chat template the
// model was trained on, ending with an open assistant turn.
func BuildPrompt(turns []history.Turn) string {
	var sb strings.Builder
	for _, t := range turns {
		switch t.Role {
		case history.RoleSystem:
			sb.WriteString(systemMarker)
		case history.RoleUser:
			sb.WriteString(userMarker)
		case history.RoleAssistant:
			sb.WriteString(assistantMarker)
		default:
			continue
		}
		sb.WriteString("\n")
		sb.WriteString(t.Content)
		sb.WriteString(endMarker)
		sb.WriteString("\n")
	}
	sb.WriteString(assistantMarker)
	sb.WriteString("\n")
	return sb.String()
}
