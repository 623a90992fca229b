// Package main provides the slmassist CLI entry point.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"slmassist/internal/config"
	"slmassist/internal/engine"
	"slmassist/internal/generation"
	"slmassist/internal/logging"
	"slmassist/internal/router"
	"slmassist/internal/tools"
	"slmassist/internal/tools/pdfform"
	"slmassist/internal/tools/schedule"
	"slmassist/internal/tools/speech"
	"slmassist/internal/tools/system"
	"slmassist/internal/tools/web"
)

var (
	// Global flags
	verbose     bool
	modelPath   string
	workspace   string
	contextSize int
	keepLast    int
	seed        int

	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "slm",
	Short: "slmassist - local small-model assistant with command routing",
	Long: `slmassist is a conversational front-end over a locally hosted small
language model. Utterances are routed by an auditable fixed-order rule
list: recognized commands dispatch to local tools (app and URL opening,
web fetch, PDF form filling, transcription, scheduling), everything else
streams through the model, optionally grounded on a loaded PDF.

Run without arguments to start the interactive chat interface.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Interactive mode has its own UI; keep stderr clean for it.
		if cmd.Use == "slm" && cmd.CalledAs() == "slm" {
			return initWorkspaceLogging()
		}

		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return initWorkspaceLogging()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractiveChat()
	},
}

// askCmd answers a single question and exits
var askCmd = &cobra.Command{
	Use:   "ask [utterance]",
	Short: "Handle a single utterance and print the response",
	Long: `Routes one utterance exactly like the interactive chat: tool commands
execute and report, anything else is answered by the model. The response
is rendered as markdown.

Example:
  slm ask "open safari"
  slm ask --pdf report.pdf "summarize the pdf"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

// routeCmd shows the routing decision without executing anything
var routeCmd = &cobra.Command{
	Use:   "route [utterance]",
	Short: "Show how an utterance would be routed",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRoute,
}

// configCmd prints the effective configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&modelPath, "model", "m", "", "Path to the GGUF model file")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().IntVar(&contextSize, "ctx", 0, "Model context size in tokens")
	rootCmd.PersistentFlags().IntVar(&keepLast, "keep-last", 0, "User/assistant pairs kept in the generation window")
	rootCmd.PersistentFlags().IntVar(&seed, "seed", 0, "Model seed")

	askCmd.Flags().String("pdf", "", "PDF to load before handling the utterance")
	routeCmd.Flags().Bool("pdf-loaded", false, "Resolve as if a PDF were loaded")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func resolveWorkspace() string {
	if workspace != "" {
		return workspace
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func initWorkspaceLogging() error {
	return logging.Initialize(resolveWorkspace())
}

// loadConfig merges file, environment, and command-line settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveWorkspace())
	if err != nil {
		return nil, err
	}
	if modelPath != "" {
		cfg.Model.Path = modelPath
	}
	if contextSize > 0 {
		cfg.Model.ContextSize = config.ClampContextSize(contextSize)
	}
	if keepLast > 0 {
		cfg.Model.KeepLast = keepLast
	}
	if seed != 0 {
		cfg.Model.Seed = seed
	}
	return cfg, nil
}

// buildRegistry wires up every tool the router can dispatch to.
func buildRegistry(cfg *config.Config) *tools.Registry {
	reg := tools.NewRegistry()
	system.Register(reg)
	web.Register(reg)
	pdfform.Register(reg)
	speech.Register(reg, cfg.Tools)
	schedule.Register(reg)
	return reg
}

// buildEngine assembles the model client, tool registry, and engine.
func buildEngine(cfg *config.Config) (*engine.Engine, error) {
	client, err := generation.NewLlamaClient(cfg.Model)
	if err != nil {
		return nil, err
	}
	return engine.New(cfg.Model, client, buildRegistry(cfg)), nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	if pdfPath, _ := cmd.Flags().GetString("pdf"); pdfPath != "" {
		if err := eng.LoadPDF(pdfPath); err != nil {
			return err
		}
	}

	utterance := strings.Join(args, " ")
	resp, err := eng.Respond(cmd.Context(), utterance)
	if err != nil {
		return err
	}

	var sb strings.Builder
	for frag := range resp.Fragments() {
		sb.WriteString(frag)
	}
	if err := resp.Err(); err != nil {
		return err
	}

	fmt.Println(renderMarkdown(sb.String()))
	return nil
}

func runRoute(cmd *cobra.Command, args []string) error {
	utterance := strings.Join(args, " ")
	pdfLoaded, _ := cmd.Flags().GetBool("pdf-loaded")

	route := router.Resolve(utterance, pdfLoaded)
	fmt.Printf("route: %s\n", route.Kind)
	return nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fmt.Printf("workspace:       %s\n", resolveWorkspace())
	fmt.Printf("model path:      %s\n", valueOr(cfg.Model.Path, "(not set)"))
	fmt.Printf("context size:    %d\n", cfg.Model.ContextSize)
	fmt.Printf("seed:            %d\n", cfg.Model.Seed)
	fmt.Printf("keep last:       %d pairs\n", cfg.Model.KeepLast)
	fmt.Printf("max tokens:      %d\n", cfg.Model.MaxTokens)
	fmt.Printf("grounding cap:   %d chars\n", cfg.Model.MaxGroundingChars)
	fmt.Printf("whisper binary:  %s\n", cfg.Tools.WhisperBinary)
	return nil
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
