// Package schedule acknowledges scheduling requests. Actual job
// persistence is not implemented; the tool records the request in the
// conversation so it can be acted on later.
package schedule

import (
	"context"
	"fmt"
	"strings"

	"slmassist/internal/logging"
	"slmassist/internal/tools"
)

// ScheduleTool returns the scheduling acknowledgement tool.
func ScheduleTool() *tools.Tool {
	return &tools.Tool{
		Name:        "schedule",
		Description: "Acknowledge a scheduling request",
		Execute:     executeSchedule,
		Schema: tools.Schema{
			Required: []string{"text"},
			Properties: map[string]tools.Property{
				"text": {Type: "string", Description: "The scheduling request"},
			},
		},
	}
}

// Register adds the schedule tool to a registry.
func Register(reg *tools.Registry) {
	reg.MustRegister(ScheduleTool())
}

func executeSchedule(ctx context.Context, args map[string]any) (string, error) {
	text, _ := args["text"].(string)
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("scheduling request is empty")
	}
	logging.Tools("schedule request recorded: %s", text)
	return fmt.Sprintf("✅ Scheduled: %s", text), nil
}
