// Package engine orchestrates one conversation: it routes utterances,
// dispatches tools, maintains the conversation log, and drives streaming
// completions against the local model.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"slmassist/internal/config"
	"slmassist/internal/generation"
	"slmassist/internal/history"
	"slmassist/internal/logging"
	"slmassist/internal/pdfx"
	"slmassist/internal/router"
	"slmassist/internal/tools"
)

// ErrBusy is returned when a Respond call arrives while a previous
// response is still streaming. The engine serves one request at a time.
var ErrBusy = errors.New("a response is already in flight")

const groundingPreamble = "You are answering questions about a document. " +
	"Base your answer only on the document content below.\n\nDocument:\n"

// Engine owns the conversation state for one session.
type Engine struct {
	cfg      config.ModelConfig
	log      *history.Log
	client   generation.Client
	registry *tools.Registry

	mu sync.Mutex // held for the duration of one Respond cycle

	pdfMu sync.RWMutex
	pdf   *pdfx.Document
}

// New assembles an engine around a model client and a tool registry.
func New(cfg config.ModelConfig, client generation.Client, registry *tools.Registry) *Engine {
	return &Engine{
		cfg:      cfg,
		log:      history.NewLog(),
		client:   client,
		registry: registry,
	}
}

// Response is the streamed answer to one utterance. Fragments arrive in
// order; after the channel closes, Err distinguishes a failed completion
// from an empty one.
type Response struct {
	stream *generation.Stream

	// Route reports which handling path served the utterance.
	Route router.Kind
}

// Fragments returns the response fragment channel.
func (r *Response) Fragments() <-chan string {
	return r.stream.Fragments()
}

// Err reports a completion failure. Only meaningful after Fragments
// has closed. Tool failures are recovered into the conversation and do
// not surface here.
func (r *Response) Err() error {
	return r.stream.Err()
}

// Respond handles one utterance end to end: route, dispatch or generate,
// commit. The returned response streams until the engine has committed
// the assistant turn; only then does the engine accept the next call.
// A call made while another response is in flight returns ErrBusy.
func (e *Engine) Respond(ctx context.Context, utterance string) (*Response, error) {
	if !e.mu.TryLock() {
		return nil, ErrBusy
	}

	reqID := uuid.NewString()[:8]
	route := router.Resolve(utterance, e.PDF() != nil)
	logging.Session("[%s] %s: %q", reqID, route.Kind, utterance)

	out := generation.NewStream(16)
	resp := &Response{stream: out, Route: route.Kind}

	if route.Kind == router.KindChat {
		if err := e.startChat(ctx, reqID, utterance, route.Grounded, out); err != nil {
			e.mu.Unlock()
			return nil, err
		}
		return resp, nil
	}

	go e.runTool(ctx, reqID, utterance, route, out)
	return resp, nil
}

// startChat commits the user turn, assembles the generation window, and
// starts the completion. The user turn is committed before generation so
// a failed completion still leaves the question on record.
func (e *Engine) startChat(ctx context.Context, reqID, utterance string, grounded bool, out *generation.Stream) error {
	// Window is taken before the current utterance is committed; the
	// utterance is appended explicitly so it never appears twice.
	window := e.log.Window(e.cfg.KeepLast)
	e.log.CommitUser(utterance, history.OriginChat)

	turns := make([]history.Turn, 0, len(window)+2)
	sampling := generation.Creative(e.cfg.MaxTokens)
	if pdf := e.PDF(); grounded && pdf != nil {
		doc := pdfx.Truncate(pdf.Text, e.cfg.MaxGroundingChars)
		turns = append(turns, history.Turn{
			Role:    history.RoleSystem,
			Content: groundingPreamble + doc,
		})
		sampling = generation.Deterministic(e.cfg.MaxTokens)
	}
	turns = append(turns, window...)
	turns = append(turns, history.Turn{Role: history.RoleUser, Content: utterance})

	logging.GenerationDebug("[%s] window=%d turns grounded=%v", reqID, len(turns), grounded)

	if e.client == nil {
		err := generation.ErrNotLoaded
		e.log.CommitAssistant("❌ "+err.Error(), history.OriginChat)
		return err
	}

	stream, err := e.client.StreamCompletion(ctx, turns, sampling)
	if err != nil {
		e.log.CommitAssistant("❌ "+err.Error(), history.OriginChat)
		return err
	}

	go e.relay(reqID, stream, out)
	return nil
}

// relay forwards model fragments to the response, accumulates the full
// text, and commits the assistant turn once the stream ends.
func (e *Engine) relay(reqID string, in *generation.Stream, out *generation.Stream) {
	defer e.mu.Unlock()

	var buf []byte
	for frag := range in.Fragments() {
		buf = append(buf, frag...)
		out.Emit(frag)
	}

	text := string(buf)
	if err := in.Err(); err != nil {
		logging.GenerationError("[%s] completion failed after %d chars: %v", reqID, len(text), err)
		// The failure is visible history: the partial text (if any) plus
		// an explanatory marker become the assistant turn.
		marker := "❌ generation failed: " + err.Error()
		if text != "" {
			marker = text + "\n" + marker
		}
		e.log.CommitAssistant(marker, history.OriginChat)
		out.Fail(err)
		return
	}

	e.log.CommitAssistant(text, history.OriginChat)
	logging.Generation("[%s] completion committed (%d chars)", reqID, len(text))
	out.Finish()
}

// runTool executes the routed tool and commits the exchange. Both turns
// are tool-origin so the exchange never enters the generation window.
// Tool failures are converted to a visible message and the conversation
// continues; they are never fatal to the session.
func (e *Engine) runTool(ctx context.Context, reqID, utterance string, route router.Route, out *generation.Stream) {
	defer e.mu.Unlock()

	e.log.CommitUser(utterance, history.OriginTool)

	name, args := toolInvocation(route, e.PDF())
	result, err := e.registry.Execute(ctx, name, args)

	var msg string
	if err != nil {
		msg = "❌ " + err.Error()
		logging.ToolsError("[%s] %s failed: %v", reqID, name, err)
	} else {
		msg = result.Output
		logging.Tools("[%s] %s completed in %dms", reqID, name, result.DurationMs)
	}

	e.log.CommitAssistant(msg, history.OriginTool)
	out.Emit(msg)
	out.Finish()
}

// toolInvocation maps a route onto a registered tool name and arguments.
func toolInvocation(route router.Route, pdf *pdfx.Document) (string, map[string]any) {
	switch route.Kind {
	case router.KindOpenApp:
		return "open_app", map[string]any{"name": route.App}
	case router.KindOpenURL:
		return "open_url", map[string]any{"url": route.URL}
	case router.KindFetch:
		return "fetch", map[string]any{"url": route.URL}
	case router.KindFillForm:
		path := ""
		if pdf != nil {
			path = pdf.Path
		}
		return "fill_pdf", map[string]any{"path": path, "fields": route.Fields}
	case router.KindTranscribe:
		return "transcribe", map[string]any{"path": route.AudioPath}
	case router.KindSchedule:
		return "schedule", map[string]any{"text": route.Raw}
	}
	return route.Kind.String(), map[string]any{}
}

// LoadPDF extracts and stores the document that grounds subsequent
// PDF-related chat and form filling.
func (e *Engine) LoadPDF(path string) error {
	doc, err := pdfx.Load(path, e.cfg.MaxGroundingChars)
	if err != nil {
		return fmt.Errorf("failed to load PDF: %w", err)
	}
	e.pdfMu.Lock()
	e.pdf = doc
	e.pdfMu.Unlock()
	return nil
}

// PDF returns the currently loaded document, or nil.
func (e *Engine) PDF() *pdfx.Document {
	e.pdfMu.RLock()
	defer e.pdfMu.RUnlock()
	return e.pdf
}

// History returns a copy of the full conversation log.
func (e *Engine) History() []history.Turn {
	return e.log.Turns()
}

// ReplaceClient swaps the model client, closing the old one. Used when
// the context size changes and the model must be reloaded; the
// conversation log survives the swap.
func (e *Engine) ReplaceClient(client generation.Client) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.client != nil {
		err = e.client.Close()
	}
	e.client = client
	return err
}

// Close releases the model client.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}
