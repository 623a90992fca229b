package tools

import (
	"context"
	"errors"
	"testing"
)

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	if reg == nil {
		t.Fatal("NewRegistry returned nil")
	}
	if reg.Count() != 0 {
		t.Errorf("new registry should be empty, got %d tools", reg.Count())
	}
}

func TestRegisterAndGet(t *testing.T) {
	reg := NewRegistry()

	tool := &Tool{
		Name:        "test_tool",
		Description: "A test tool",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "success", nil
		},
	}

	if err := reg.Register(tool); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got := reg.Get("test_tool")
	if got == nil {
		t.Fatal("Get returned nil for registered tool")
	}
	if got.Name != "test_tool" {
		t.Errorf("got name %q, want %q", got.Name, "test_tool")
	}
	if !reg.Has("test_tool") {
		t.Error("Has returned false for registered tool")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	reg := NewRegistry()

	tool := &Tool{
		Name: "dupe",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "", nil
		},
	}

	if err := reg.Register(tool); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}

	if err := reg.Register(tool); !errors.Is(err, ErrToolAlreadyRegistered) {
		t.Errorf("duplicate Register error = %v, want ErrToolAlreadyRegistered", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		name    string
		tool    *Tool
		wantErr error
	}{
		{
			name:    "empty name",
			tool:    &Tool{Name: "", Execute: func(ctx context.Context, args map[string]any) (string, error) { return "", nil }},
			wantErr: ErrToolNameEmpty,
		},
		{
			name:    "nil execute",
			tool:    &Tool{Name: "test", Execute: nil},
			wantErr: ErrToolExecuteNil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := reg.Register(tt.tool); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestExecute(t *testing.T) {
	reg := NewRegistry()

	tool := &Tool{
		Name: "echo",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			msg, _ := args["message"].(string)
			return "Echo: " + msg, nil
		},
		Schema: Schema{
			Required:   []string{"message"},
			Properties: map[string]Property{"message": {Type: "string"}},
		},
	}

	reg.MustRegister(tool)

	result, err := reg.Execute(context.Background(), "echo", map[string]any{"message": "hello"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Output != "Echo: hello" {
		t.Errorf("got output %q, want %q", result.Output, "Echo: hello")
	}
	if !result.IsSuccess() {
		t.Error("expected IsSuccess to be true")
	}

	// Missing required arg
	_, err = reg.Execute(context.Background(), "echo", map[string]any{})
	if !errors.Is(err, ErrMissingRequiredArg) {
		t.Errorf("error = %v, want ErrMissingRequiredArg", err)
	}

	// Tool not found
	_, err = reg.Execute(context.Background(), "nonexistent", map[string]any{})
	if !errors.Is(err, ErrToolNotFound) {
		t.Errorf("error = %v, want ErrToolNotFound", err)
	}
}

func TestNames(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"zeta", "alpha"} {
		reg.MustRegister(&Tool{
			Name:    name,
			Execute: func(ctx context.Context, args map[string]any) (string, error) { return "", nil },
		})
	}

	names := reg.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Errorf("Names() = %v, want sorted [alpha zeta]", names)
	}
}
