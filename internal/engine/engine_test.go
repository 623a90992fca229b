package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"slmassist/internal/config"
	"slmassist/internal/generation"
	"slmassist/internal/history"
	"slmassist/internal/pdfx"
	"slmassist/internal/router"
	"slmassist/internal/tools"
)

// fakeClient scripts one completion per call and records what it was
// asked to generate.
type fakeClient struct {
	mu        sync.Mutex
	turns     []history.Turn
	sampling  generation.Sampling
	fragments []string
	failWith  error
	startErr  error
	release   chan struct{} // when set, the stream stalls until closed
	closed    bool
}

func (c *fakeClient) StreamCompletion(ctx context.Context, turns []history.Turn, sampling generation.Sampling) (*generation.Stream, error) {
	c.mu.Lock()
	c.turns = turns
	c.sampling = sampling
	c.mu.Unlock()

	if c.startErr != nil {
		return nil, c.startErr
	}

	s := generation.NewStream(len(c.fragments) + 1)
	go func() {
		if c.release != nil {
			<-c.release
		}
		for _, f := range c.fragments {
			s.Emit(f)
		}
		if c.failWith != nil {
			s.Fail(c.failWith)
			return
		}
		s.Finish()
	}()
	return s, nil
}

func (c *fakeClient) Close() error {
	c.closed = true
	return nil
}

func testConfig() config.ModelConfig {
	return config.ModelConfig{
		KeepLast:          3,
		MaxTokens:         128,
		MaxGroundingChars: 100,
	}
}

// captureTool registers a tool that records its arguments.
func captureTool(reg *tools.Registry, name string, required []string, output string, fail error) *map[string]any {
	var captured map[string]any
	reg.MustRegister(&tools.Tool{
		Name:        name,
		Description: "test stub",
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			captured = args
			return output, fail
		},
		Schema: tools.Schema{Required: required},
	})
	return &captured
}

func drain(t *testing.T, resp *Response) (string, error) {
	t.Helper()
	var sb strings.Builder
	for frag := range resp.Fragments() {
		sb.WriteString(frag)
	}
	return sb.String(), resp.Err()
}

func TestRespondChatStreamsAndCommits(t *testing.T) {
	client := &fakeClient{fragments: []string{"Hello", ", ", "world."}}
	e := New(testConfig(), client, tools.NewRegistry())

	resp, err := e.Respond(context.Background(), "say hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Route != router.KindChat {
		t.Errorf("route = %v, want chat", resp.Route)
	}

	text, streamErr := drain(t, resp)
	if streamErr != nil {
		t.Fatalf("stream failed: %v", streamErr)
	}
	if text != "Hello, world." {
		t.Errorf("got %q, want %q", text, "Hello, world.")
	}

	turns := e.History()
	if len(turns) != 2 {
		t.Fatalf("history has %d turns, want 2", len(turns))
	}
	if turns[0].Role != history.RoleUser || turns[0].Content != "say hello" {
		t.Errorf("unexpected user turn: %+v", turns[0])
	}
	if turns[1].Role != history.RoleAssistant || turns[1].Content != "Hello, world." {
		t.Errorf("unexpected assistant turn: %+v", turns[1])
	}
	if turns[0].Origin != history.OriginChat || turns[1].Origin != history.OriginChat {
		t.Error("chat turns must be chat-origin")
	}
}

func TestRespondToolBranch(t *testing.T) {
	reg := tools.NewRegistry()
	captured := captureTool(reg, "open_app", []string{"name"}, "✅ Opened Safari.", nil)
	e := New(testConfig(), &fakeClient{}, reg)

	resp, err := e.Respond(context.Background(), "open safari")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Route != router.KindOpenApp {
		t.Errorf("route = %v, want open_app", resp.Route)
	}

	text, streamErr := drain(t, resp)
	if streamErr != nil {
		t.Fatalf("tool branch must not surface stream errors: %v", streamErr)
	}
	if text != "✅ Opened Safari." {
		t.Errorf("got %q", text)
	}
	if (*captured)["name"] != "Safari" {
		t.Errorf("tool args = %v", *captured)
	}

	turns := e.History()
	if len(turns) != 2 {
		t.Fatalf("history has %d turns, want 2", len(turns))
	}
	for _, turn := range turns {
		if turn.Origin != history.OriginTool {
			t.Errorf("tool exchange must be tool-origin: %+v", turn)
		}
	}
}

func TestRespondToolFailureRecovered(t *testing.T) {
	reg := tools.NewRegistry()
	captureTool(reg, "fetch", []string{"url"}, "", errors.New("connection refused"))
	e := New(testConfig(), &fakeClient{}, reg)

	resp, err := e.Respond(context.Background(), "fetch data from example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text, streamErr := drain(t, resp)
	if streamErr != nil {
		t.Fatalf("tool failure must be recovered, not propagated: %v", streamErr)
	}
	if !strings.HasPrefix(text, "❌ ") || !strings.Contains(text, "connection refused") {
		t.Errorf("got %q, want failure-marked message", text)
	}

	turns := e.History()
	if len(turns) != 2 || !strings.HasPrefix(turns[1].Content, "❌ ") {
		t.Errorf("failure must be committed to history: %+v", turns)
	}
}

func TestRespondBusy(t *testing.T) {
	release := make(chan struct{})
	client := &fakeClient{fragments: []string{"slow"}, release: release}
	e := New(testConfig(), client, tools.NewRegistry())

	resp, err := e.Respond(context.Background(), "first")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := e.Respond(context.Background(), "second"); !errors.Is(err, ErrBusy) {
		t.Errorf("got %v, want ErrBusy", err)
	}

	close(release)
	drain(t, resp)

	// The engine accepts new work once the first response is committed.
	deadline := time.After(2 * time.Second)
	for {
		resp, err := e.Respond(context.Background(), "third")
		if err == nil {
			drain(t, resp)
			return
		}
		select {
		case <-deadline:
			t.Fatal("engine never became available again")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRespondWindowBounded(t *testing.T) {
	client := &fakeClient{fragments: []string{"ok"}}
	e := New(testConfig(), client, tools.NewRegistry())

	utterances := []string{"one", "two", "three", "four", "five"}
	for _, u := range utterances {
		resp, err := e.Respond(context.Background(), u)
		if err != nil {
			t.Fatalf("respond %q: %v", u, err)
		}
		drain(t, resp)
	}

	// keep_last=3 pairs plus the current utterance: 7 turns total.
	client.mu.Lock()
	turns := client.turns
	client.mu.Unlock()
	if len(turns) != 7 {
		t.Fatalf("window has %d turns, want 7", len(turns))
	}
	if turns[0].Content != "two" {
		t.Errorf("window starts at %q, want %q", turns[0].Content, "two")
	}
	if turns[6].Role != history.RoleUser || turns[6].Content != "five" {
		t.Errorf("window must end with the current utterance, got %+v", turns[6])
	}
}

func TestRespondGroundedChat(t *testing.T) {
	client := &fakeClient{fragments: []string{"grounded answer"}}
	e := New(testConfig(), client, tools.NewRegistry())
	e.pdf = &pdfx.Document{Path: "doc.pdf", Text: strings.Repeat("x", 500)}

	resp, err := e.Respond(context.Background(), "summarize the pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	drain(t, resp)

	client.mu.Lock()
	turns := client.turns
	sampling := client.sampling
	client.mu.Unlock()

	if len(turns) == 0 || turns[0].Role != history.RoleSystem {
		t.Fatal("grounded chat must lead with a system turn")
	}
	if len(turns[0].Content) > len(groundingPreamble)+100 {
		t.Errorf("grounding text not capped: %d chars", len(turns[0].Content))
	}
	if sampling.Temperature != 0 || sampling.TopK != 1 {
		t.Errorf("grounded chat must use deterministic sampling, got %+v", sampling)
	}
}

func TestRespondOpenChatCreativeSampling(t *testing.T) {
	client := &fakeClient{fragments: []string{"hi"}}
	e := New(testConfig(), client, tools.NewRegistry())

	resp, err := e.Respond(context.Background(), "tell me a story")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	drain(t, resp)

	client.mu.Lock()
	sampling := client.sampling
	client.mu.Unlock()
	if sampling.Temperature == 0 {
		t.Error("open chat must not use deterministic sampling")
	}
}

func TestRespondStreamFailurePropagates(t *testing.T) {
	client := &fakeClient{fragments: []string{"partial "}, failWith: errors.New("model crashed")}
	e := New(testConfig(), client, tools.NewRegistry())

	resp, err := e.Respond(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text, streamErr := drain(t, resp)
	if streamErr == nil {
		t.Fatal("mid-stream failure must surface on Err")
	}
	if text != "partial " {
		t.Errorf("fragments before the failure must be delivered, got %q", text)
	}

	// The user turn stays committed; the assistant turn keeps the partial
	// text and carries the failure marker.
	turns := e.History()
	if len(turns) != 2 {
		t.Fatalf("history has %d turns, want 2", len(turns))
	}
	if !strings.HasPrefix(turns[1].Content, "partial ") || !strings.Contains(turns[1].Content, "model crashed") {
		t.Errorf("unexpected assistant turn after failure: %+v", turns[1])
	}
}

func TestRespondStartErrorCommitsUser(t *testing.T) {
	client := &fakeClient{startErr: errors.New("model not loaded")}
	e := New(testConfig(), client, tools.NewRegistry())

	if _, err := e.Respond(context.Background(), "hello"); err == nil {
		t.Fatal("expected start error to propagate")
	}

	turns := e.History()
	if len(turns) != 2 {
		t.Fatalf("history has %d turns, want user turn plus failure marker", len(turns))
	}
	if turns[0].Content != "hello" {
		t.Errorf("user turn must be committed before generation: %+v", turns[0])
	}
	if !strings.HasPrefix(turns[1].Content, "❌ ") {
		t.Errorf("failure must be visible in history: %+v", turns[1])
	}

	// The engine is available again after a start failure.
	client.startErr = nil
	client.fragments = []string{"ok"}
	resp, err := e.Respond(context.Background(), "retry")
	if err != nil {
		t.Fatalf("engine should accept work after a failed start: %v", err)
	}
	drain(t, resp)
}

func TestToolExchangeExcludedFromWindow(t *testing.T) {
	reg := tools.NewRegistry()
	captureTool(reg, "schedule", []string{"text"}, "✅ Scheduled: x", nil)
	client := &fakeClient{fragments: []string{"ok"}}
	e := New(testConfig(), client, reg)

	resp, _ := e.Respond(context.Background(), "schedule a meeting")
	drain(t, resp)

	resp, err := e.Respond(context.Background(), "what next")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	drain(t, resp)

	client.mu.Lock()
	turns := client.turns
	client.mu.Unlock()
	if len(turns) != 1 || turns[0].Content != "what next" {
		t.Errorf("tool exchange leaked into generation window: %+v", turns)
	}
}

func TestFillFormUsesLoadedPDFPath(t *testing.T) {
	reg := tools.NewRegistry()
	captured := captureTool(reg, "fill_pdf", []string{"path", "fields"}, "✅ Filled.", nil)
	e := New(testConfig(), &fakeClient{}, reg)
	e.pdf = &pdfx.Document{Path: "/tmp/form.pdf", Text: "content"}

	resp, err := e.Respond(context.Background(), "fill pdf with name=Alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	drain(t, resp)

	if (*captured)["path"] != "/tmp/form.pdf" {
		t.Errorf("fill_pdf path = %v", (*captured)["path"])
	}
	fields, ok := (*captured)["fields"].(map[string]string)
	if !ok || fields["name"] != "Alice" {
		t.Errorf("fill_pdf fields = %v", (*captured)["fields"])
	}
}

func TestCloseReleasesClient(t *testing.T) {
	client := &fakeClient{}
	e := New(testConfig(), client, tools.NewRegistry())
	if err := e.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !client.closed {
		t.Error("close must release the model client")
	}
	if err := e.Close(); err != nil {
		t.Errorf("double close must be harmless: %v", err)
	}
}
