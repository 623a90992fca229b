// Package tools provides the tool registry for the command router.
//
// Each tool is a single synchronous operation that returns a short status
// string. Tools convert their own failures into errors; the orchestration
// engine turns those into failure-marked assistant turns, so a tool fault
// never crashes the engine or corrupts conversation history.
package tools

import (
	"context"
)

// Property describes a single parameter for documentation and validation.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Schema defines the expected arguments for a tool.
type Schema struct {
	// Required lists parameters that must be provided.
	Required []string `json:"required"`

	// Properties describes each parameter.
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc is the signature for tool execution.
// Returns the result string and any error.
type ExecuteFunc func(ctx context.Context, args map[string]any) (string, error)

// Tool defines a single invocable tool.
type Tool struct {
	// Name is the unique identifier for the tool. Must match the route
	// kind the router dispatches on.
	Name string

	// Description explains what the tool does.
	Description string

	// Execute runs the tool with the given arguments.
	Execute ExecuteFunc

	// Schema defines the expected arguments.
	Schema Schema
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// Result wraps the result of tool execution with metadata.
type Result struct {
	// ToolName identifies which tool was executed.
	ToolName string

	// Output is the string returned by the tool.
	Output string

	// Err is set if the tool failed.
	Err error

	// DurationMs is how long execution took.
	DurationMs int64
}

// IsSuccess returns true if the tool executed without error.
func (r *Result) IsSuccess() bool {
	return r.Err == nil
}
