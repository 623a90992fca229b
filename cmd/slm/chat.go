// Package main provides the slmassist CLI entry point.
// This file implements the interactive chat interface using bubbletea.
package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"slmassist/cmd/slm/ui"
	"slmassist/internal/config"
	"slmassist/internal/engine"
	"slmassist/internal/generation"
	"slmassist/internal/history"
)

// chatModel is the main model for the interactive chat interface
type chatModel struct {
	// UI components
	textinput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	styles    ui.Styles
	renderer  *glamour.TermRenderer

	// State
	messages  []chatMessage
	streaming string // partial assistant text while a response is in flight
	isLoading bool
	err       error
	width     int
	height    int
	ready     bool

	// Backend
	cfg       *config.Config
	eng       *engine.Engine
	workspace string
}

type chatMessage struct {
	role    string // "user" or "assistant"
	content string
	time    time.Time
}

// Messages for tea updates
type (
	respondStartedMsg struct{ resp *engine.Response }
	streamFragmentMsg struct {
		resp *engine.Response
		frag string
	}
	streamDoneMsg struct{ err error }
	errMsg        error
)

// unavailableClient stands in when the model could not be loaded. Tool
// routes keep working; chat routes report the load failure.
type unavailableClient struct{ err error }

func (c unavailableClient) StreamCompletion(ctx context.Context, turns []history.Turn, sampling generation.Sampling) (*generation.Stream, error) {
	return nil, c.err
}

func (c unavailableClient) Close() error { return nil }

// initChat initializes the interactive chat model
func initChat() (chatModel, error) {
	cfg, err := loadConfig()
	if err != nil {
		return chatModel{}, err
	}

	styles := ui.DefaultStyles()

	ti := textinput.New()
	ti.Placeholder = "Type a message or command... (Enter to send, Ctrl+C to exit)"
	ti.Focus()
	ti.Prompt = "│ "
	ti.CharLimit = 4096
	ti.Width = 80
	ti.PromptStyle = styles.Prompt
	ti.TextStyle = styles.UserInput

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	vp := viewport.New(80, 20)
	vp.SetContent("")

	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)

	eng, err := buildEngine(cfg)
	if err != nil {
		// Keep the session alive for tool commands; chat reports the
		// model failure per utterance.
		eng = engine.New(cfg.Model, unavailableClient{err: err}, buildRegistry(cfg))
	}

	return chatModel{
		textinput: ti,
		viewport:  vp,
		spinner:   sp,
		styles:    styles,
		renderer:  renderer,
		messages:  []chatMessage{},
		cfg:       cfg,
		eng:       eng,
		workspace: resolveWorkspace(),
	}, nil
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
	)
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyEnter:
			if !m.isLoading {
				return m.handleSubmit()
			}
		}

		if !m.isLoading {
			m.textinput, tiCmd = m.textinput.Update(msg)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 3
		footerHeight := 2
		inputHeight := 3

		if !m.ready {
			m.viewport = viewport.New(msg.Width-4, msg.Height-headerHeight-footerHeight-inputHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 4
			m.viewport.Height = msg.Height - headerHeight - footerHeight - inputHeight
		}

		m.textinput.Width = msg.Width - 4

		if m.renderer != nil {
			m.renderer, _ = glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(msg.Width-8),
			)
		}

	case spinner.TickMsg:
		if m.isLoading {
			m.spinner, spCmd = m.spinner.Update(msg)
			return m, spCmd
		}

	case respondStartedMsg:
		m.streaming = ""
		return m, waitForFragment(msg.resp)

	case streamFragmentMsg:
		m.streaming += msg.frag
		m.viewport.SetContent(m.renderMessages())
		m.viewport.GotoBottom()
		return m, waitForFragment(msg.resp)

	case streamDoneMsg:
		m.isLoading = false
		content := m.streaming
		if msg.err != nil {
			marker := "❌ " + msg.err.Error()
			if content != "" {
				marker = content + "\n" + marker
			}
			content = marker
		}
		m.streaming = ""
		m.messages = append(m.messages, chatMessage{
			role:    "assistant",
			content: content,
			time:    time.Now(),
		})
		m.viewport.SetContent(m.renderMessages())
		m.viewport.GotoBottom()

	case errMsg:
		m.isLoading = false
		m.err = msg
	}

	m.viewport, vpCmd = m.viewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, spCmd)
}

func (m chatModel) handleSubmit() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.textinput.Value())
	if input == "" {
		return m, nil
	}

	if strings.HasPrefix(input, "/") {
		return m.handleCommand(input)
	}

	m.messages = append(m.messages, chatMessage{
		role:    "user",
		content: input,
		time:    time.Now(),
	})
	m.textinput.Reset()
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
	m.isLoading = true
	m.err = nil

	return m, tea.Batch(
		m.spinner.Tick,
		m.startRespond(input),
	)
}

// startRespond kicks off one engine cycle in the background.
func (m chatModel) startRespond(input string) tea.Cmd {
	eng := m.eng
	return func() tea.Msg {
		resp, err := eng.Respond(context.Background(), input)
		if err != nil {
			return streamDoneMsg{err: err}
		}
		return respondStartedMsg{resp: resp}
	}
}

// waitForFragment delivers the next stream fragment as a tea message.
func waitForFragment(resp *engine.Response) tea.Cmd {
	return func() tea.Msg {
		frag, ok := <-resp.Fragments()
		if !ok {
			return streamDoneMsg{err: resp.Err()}
		}
		return streamFragmentMsg{resp: resp, frag: frag}
	}
}

func (m chatModel) handleCommand(input string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(input)
	cmd := parts[0]
	m.textinput.Reset()

	switch cmd {
	case "/quit", "/exit", "/q":
		return m, tea.Quit

	case "/clear":
		m.messages = []chatMessage{}
		m.viewport.SetContent("")
		return m, nil

	case "/help":
		help := `## Available Commands

| Command | Description |
|---------|-------------|
| /help | Show this help message |
| /clear | Clear the screen (history is kept) |
| /history | Show the full conversation log |
| /pdf <path> | Load a PDF for grounded chat and form filling |
| /ctx <n> | Reload the model with a new context size |
| /config | Show the effective configuration |
| /quit, /exit, /q | Exit |

Recognized utterance commands: open safari, open app <name>,
go to <url>, open url <url>, fetch data from <url>,
fill pdf ... with k=v,..., transcribe <audio>, schedule ...`
		return m.systemReply(help)

	case "/history":
		return m.systemReply(m.renderLog())

	case "/pdf":
		if len(parts) < 2 {
			return m.systemReply("Usage: /pdf <path>")
		}
		path := strings.Join(parts[1:], " ")
		if err := m.eng.LoadPDF(path); err != nil {
			return m.systemReply("❌ " + err.Error())
		}
		doc := m.eng.PDF()
		return m.systemReply(fmt.Sprintf("✅ Loaded %s (%d chars extracted). PDF questions are now grounded on it.", doc.Path, len(doc.Text)))

	case "/ctx":
		if len(parts) != 2 {
			return m.systemReply("Usage: /ctx <tokens>")
		}
		var n int
		if _, err := fmt.Sscanf(parts[1], "%d", &n); err != nil {
			return m.systemReply("Usage: /ctx <tokens>")
		}
		return m.reloadModel(n)

	case "/config":
		return m.systemReply(fmt.Sprintf(
			"model: %s\ncontext: %d tokens, seed %d\nwindow: last %d pairs, max %d tokens per reply",
			valueOr(m.cfg.Model.Path, "(not set)"),
			m.cfg.Model.ContextSize, m.cfg.Model.Seed,
			m.cfg.Model.KeepLast, m.cfg.Model.MaxTokens))

	default:
		return m.systemReply(fmt.Sprintf("Unknown command: %s (try /help)", cmd))
	}
}

// reloadModel swaps the model client for one with a new context size.
// The conversation log survives the swap.
func (m chatModel) reloadModel(requested int) (tea.Model, tea.Cmd) {
	clamped := config.ClampContextSize(requested)
	m.cfg.Model.ContextSize = clamped

	note := ""
	if clamped != requested {
		note = fmt.Sprintf(" (requested %d, clamped)", requested)
	}

	client, err := generation.NewLlamaClient(m.cfg.Model)
	if err != nil {
		m.eng.ReplaceClient(unavailableClient{err: err})
		return m.systemReply("❌ model reload failed: " + err.Error())
	}
	if err := m.eng.ReplaceClient(client); err != nil {
		return m.systemReply("❌ " + err.Error())
	}
	return m.systemReply(fmt.Sprintf("✅ Model reloaded with context size %d%s. History preserved.", clamped, note))
}

func (m chatModel) systemReply(content string) (tea.Model, tea.Cmd) {
	m.messages = append(m.messages, chatMessage{
		role:    "assistant",
		content: content,
		time:    time.Now(),
	})
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
	return m, nil
}

// renderLog formats the engine's full conversation log.
func (m chatModel) renderLog() string {
	turns := m.eng.History()
	if len(turns) == 0 {
		return "No conversation yet."
	}
	var sb strings.Builder
	sb.WriteString("## Conversation Log\n\n")
	for i, t := range turns {
		sb.WriteString(fmt.Sprintf("%d. **%s**: %s\n", i+1, t.Role, t.Content))
	}
	return sb.String()
}

func (m chatModel) renderMessages() string {
	var sb strings.Builder

	for _, msg := range m.messages {
		if msg.role == "user" {
			userStyle := m.styles.Bold.
				Foreground(m.styles.Theme.Primary).
				MarginTop(1)
			sb.WriteString(userStyle.Render("You") + "\n")
			sb.WriteString(m.styles.UserInput.Render(msg.content))
			sb.WriteString("\n\n")
		} else {
			assistantStyle := m.styles.Bold.
				Foreground(m.styles.Theme.Accent).
				MarginTop(1)
			sb.WriteString(assistantStyle.Render("slm") + "\n")
			sb.WriteString(m.safeRenderMarkdown(msg.content))
			sb.WriteString("\n")
		}
	}

	// In-flight text is shown raw; markdown rendering waits for the
	// complete message.
	if m.streaming != "" {
		assistantStyle := m.styles.Bold.
			Foreground(m.styles.Theme.Accent).
			MarginTop(1)
		sb.WriteString(assistantStyle.Render("slm") + "\n")
		sb.WriteString(m.streaming)
		sb.WriteString("\n")
	}

	return sb.String()
}

// safeRenderMarkdown renders markdown with panic recovery
func (m chatModel) safeRenderMarkdown(content string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = content
		}
	}()

	if m.renderer != nil && content != "" {
		rendered, err := m.renderer.Render(content)
		if err == nil {
			return rendered
		}
	}
	return content
}

func (m chatModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	header := m.renderHeader()
	chatView := m.styles.Content.Render(m.viewport.View())

	if m.isLoading && m.streaming == "" {
		chatView += "\n" + m.styles.Spinner.Render(m.spinner.View()) + " Thinking..."
	}

	if m.err != nil {
		chatView += "\n" + m.styles.Error.Render("Error: "+m.err.Error())
	}

	inputStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(m.styles.Theme.Accent).
		Padding(0, 1)
	inputArea := inputStyle.Render(m.textinput.View())

	footer := m.styles.Footer.Render("Enter send · /help commands · Ctrl+C exit")

	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		chatView,
		inputArea,
		footer,
	)
}

func (m chatModel) renderHeader() string {
	title := m.styles.Header.Render(" slmassist ")

	var status string
	switch {
	case m.isLoading:
		status = m.styles.Warning.Render("● Generating")
	case m.eng.PDF() != nil:
		status = m.styles.Success.Render("● Ready (PDF loaded)")
	default:
		status = m.styles.Success.Render("● Ready")
	}

	headerLine := lipgloss.JoinHorizontal(lipgloss.Center, title, "  ", status)
	workspaceLine := m.styles.Muted.Render(" " + m.workspace)

	return lipgloss.JoinVertical(lipgloss.Left, headerLine, workspaceLine)
}

// renderMarkdown renders a one-shot response for non-interactive output.
func renderMarkdown(content string) string {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return content
	}
	rendered, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(rendered, "\n")
}

func runInteractiveChat() error {
	m, err := initChat()
	if err != nil {
		return err
	}

	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	// No engine Close here: quitting mid-stream would wait on the
	// in-flight generation, and process teardown reclaims the model.
	_, err = p.Run()
	return err
}
