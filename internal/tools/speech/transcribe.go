// Package speech transcribes audio files via an external whisper binary.
package speech

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"slmassist/internal/config"
	"slmassist/internal/logging"
	"slmassist/internal/tools"
)

// TranscribeTimeout bounds a single transcription run. Whisper on long
// recordings is slow but anything past this is treated as a hang.
const TranscribeTimeout = 60 * time.Second

// TranscribeTool returns a tool that shells out to a whisper.cpp style
// CLI and returns the transcript text.
func TranscribeTool(cfg config.ToolsConfig) *tools.Tool {
	return &tools.Tool{
		Name:        "transcribe",
		Description: "Transcribe an audio file to text",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return executeTranscribe(ctx, cfg, args)
		},
		Schema: tools.Schema{
			Required: []string{"path"},
			Properties: map[string]tools.Property{
				"path": {Type: "string", Description: "Path of the audio file"},
			},
		},
	}
}

// Register adds the transcribe tool to a registry.
func Register(reg *tools.Registry, cfg config.ToolsConfig) {
	reg.MustRegister(TranscribeTool(cfg))
}

func executeTranscribe(ctx context.Context, cfg config.ToolsConfig, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("audio path is required")
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("cannot read audio file: %w", err)
	}

	bin := cfg.WhisperBinary
	if bin == "" {
		bin = "whisper-cli"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return "", fmt.Errorf("transcription binary %q not found: %w", bin, err)
	}

	ctx, cancel := context.WithTimeout(ctx, TranscribeTimeout)
	defer cancel()

	cmdArgs := []string{}
	if cfg.WhisperModel != "" {
		cmdArgs = append(cmdArgs, "-m", cfg.WhisperModel)
	}
	cmdArgs = append(cmdArgs, "-f", path)

	logging.ToolsDebug("transcribe: %s %s", bin, strings.Join(cmdArgs, " "))

	cmd := exec.CommandContext(ctx, bin, cmdArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("transcription timed out after %v", TranscribeTimeout)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("transcription failed: %s", msg)
	}

	transcript := strings.TrimSpace(stdout.String())
	if transcript == "" {
		return "", fmt.Errorf("transcription produced no output")
	}

	logging.Tools("transcribed %s (%d chars)", path, len(transcript))
	return transcript, nil
}
