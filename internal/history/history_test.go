package history

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWindowRoundTrip(t *testing.T) {
	log := NewLog()
	log.CommitUser("hello", OriginChat)
	log.CommitAssistant("hi there", OriginChat)

	got := log.Window(1)
	want := []Turn{
		{Role: RoleUser, Content: "hello", Origin: OriginChat},
		{Role: RoleAssistant, Content: "hi there", Origin: OriginChat},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Window(1) mismatch (-want +got):\n%s", diff)
	}
}

func TestWindowKeepsLastPairsInOrder(t *testing.T) {
	log := NewLog()
	for i := 0; i < 10; i++ {
		log.CommitUser(fmt.Sprintf("question %d", i), OriginChat)
		log.CommitAssistant(fmt.Sprintf("answer %d", i), OriginChat)
	}

	got := log.Window(3)
	if len(got) != 6 {
		t.Fatalf("Window(3) returned %d turns, want 6", len(got))
	}
	// Most recent 3 pairs, original order.
	for i := 0; i < 3; i++ {
		pair := 7 + i
		if got[i*2].Content != fmt.Sprintf("question %d", pair) {
			t.Errorf("turn %d = %q, want question %d", i*2, got[i*2].Content, pair)
		}
		if got[i*2+1].Content != fmt.Sprintf("answer %d", pair) {
			t.Errorf("turn %d = %q, want answer %d", i*2+1, got[i*2+1].Content, pair)
		}
	}
}

func TestWindowExcludesToolExchanges(t *testing.T) {
	log := NewLog()
	log.CommitUser("what is go", OriginChat)
	log.CommitAssistant("a programming language", OriginChat)
	log.CommitUser("open app Notes", OriginTool)
	log.CommitAssistant("Opened Notes.", OriginTool)

	got := log.Window(5)
	if len(got) != 2 {
		t.Fatalf("Window returned %d turns, want 2 (tool exchange excluded)", len(got))
	}
	for _, turn := range got {
		if turn.Origin == OriginTool {
			t.Errorf("tool-branch turn %q leaked into the window", turn.Content)
		}
	}
}

func TestWindowShorterThanRequested(t *testing.T) {
	log := NewLog()
	log.CommitUser("only one", OriginChat)

	got := log.Window(3)
	if len(got) != 1 {
		t.Errorf("Window(3) with one turn returned %d turns, want 1", len(got))
	}
}

func TestWindowCopyIsIndependent(t *testing.T) {
	log := NewLog()
	log.CommitUser("original", OriginChat)

	w := log.Window(1)
	w[0].Content = "mutated"

	if log.Turns()[0].Content != "original" {
		t.Error("mutating a window copy changed the committed log")
	}
}

func TestConcurrentReads(t *testing.T) {
	log := NewLog()
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			log.CommitUser("u", OriginChat)
			log.CommitAssistant("a", OriginChat)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = log.Window(3)
			_ = log.Turns()
			_ = log.Len()
		}
	}()
	wg.Wait()

	if log.Len() != 200 {
		t.Errorf("log has %d turns, want 200", log.Len())
	}
}
