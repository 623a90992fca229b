// Package system provides tools that hand targets to the host OS:
// launching applications and opening URLs in the default browser.
package system

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"slmassist/internal/logging"
	"slmassist/internal/tools"
)

// OpenAppTool returns a tool that launches a local application by name.
func OpenAppTool() *tools.Tool {
	return &tools.Tool{
		Name:        "open_app",
		Description: "Launch a local application by name",
		Execute:     executeOpenApp,
		Schema: tools.Schema{
			Required: []string{"name"},
			Properties: map[string]tools.Property{
				"name": {Type: "string", Description: "Application name, e.g. Safari"},
			},
		},
	}
}

// OpenURLTool returns a tool that opens a URL in the default browser.
func OpenURLTool() *tools.Tool {
	return &tools.Tool{
		Name:        "open_url",
		Description: "Open a URL in the default browser",
		Execute:     executeOpenURL,
		Schema: tools.Schema{
			Required: []string{"url"},
			Properties: map[string]tools.Property{
				"url": {Type: "string", Description: "Target URL; http:// is assumed when no scheme is given"},
			},
		},
	}
}

// Register adds the system tools to a registry.
func Register(reg *tools.Registry) {
	reg.MustRegister(OpenAppTool())
	reg.MustRegister(OpenURLTool())
}

func executeOpenApp(ctx context.Context, args map[string]any) (string, error) {
	name, _ := args["name"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("application name is required")
	}

	cmd := appCommand(ctx, name)
	if cmd == nil {
		return "", fmt.Errorf("application launching is not supported on %s", runtime.GOOS)
	}
	if err := launch(cmd); err != nil {
		return "", fmt.Errorf("failed to open %s: %w", name, err)
	}

	logging.Tools("opened application %s", name)
	return fmt.Sprintf("✅ Opened %s.", name), nil
}

func executeOpenURL(ctx context.Context, args map[string]any) (string, error) {
	url, _ := args["url"].(string)
	url = strings.TrimSpace(url)
	if url == "" {
		return "", fmt.Errorf("url is required")
	}
	url = NormalizeURL(url)

	cmd := urlCommand(ctx, url)
	if cmd == nil {
		return "", fmt.Errorf("URL opening is not supported on %s", runtime.GOOS)
	}
	if err := launch(cmd); err != nil {
		return "", fmt.Errorf("failed to open %s: %w", url, err)
	}

	logging.Tools("opened URL %s", url)
	return fmt.Sprintf("✅ Navigated to %s.", url), nil
}

// NormalizeURL assumes http:// for scheme-less targets.
func NormalizeURL(url string) string {
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	return "http://" + url
}

func appCommand(ctx context.Context, name string) *exec.Cmd {
	switch runtime.GOOS {
	case "darwin":
		return exec.CommandContext(ctx, "open", "-a", name)
	case "linux":
		return exec.CommandContext(ctx, "gtk-launch", name)
	case "windows":
		return exec.CommandContext(ctx, "cmd", "/c", "start", "", name)
	}
	return nil
}

func urlCommand(ctx context.Context, url string) *exec.Cmd {
	switch runtime.GOOS {
	case "darwin":
		return exec.CommandContext(ctx, "open", url)
	case "linux":
		return exec.CommandContext(ctx, "xdg-open", url)
	case "windows":
		return exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", url)
	}
	return nil
}

// launch starts the command without waiting for it to exit, reaping the
// process in the background. Launching is fire-and-forget; a failure to
// start is the only error the tool can observe.
func launch(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
