// Package history holds the append-only conversation log and the bounded
// generation window derived from it.
package history

import (
	"sync"

	"slmassist/internal/logging"
)

// Role tags a turn's author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Origin distinguishes generative turns from tool-branch exchanges.
// Tool exchanges stay visible in history but never reach the model,
// so tool outputs do not pollute generative context.
type Origin int

const (
	OriginChat Origin = iota
	OriginTool
)

// Turn is one role-tagged message in the conversation log.
// Immutable once committed.
type Turn struct {
	Role    Role
	Content string
	Origin  Origin
}

// Log is an append-only ordered sequence of turns. It is owned by a single
// orchestration engine; reads are safe concurrently with an in-flight commit.
type Log struct {
	mu    sync.RWMutex
	turns []Turn
}

// NewLog creates an empty conversation log.
func NewLog() *Log {
	return &Log{}
}

// CommitUser appends a user turn.
func (l *Log) CommitUser(content string, origin Origin) {
	l.commit(Turn{Role: RoleUser, Content: content, Origin: origin})
}

// CommitAssistant appends an assistant turn.
func (l *Log) CommitAssistant(content string, origin Origin) {
	l.commit(Turn{Role: RoleAssistant, Content: content, Origin: origin})
}

func (l *Log) commit(t Turn) {
	l.mu.Lock()
	l.turns = append(l.turns, t)
	n := len(l.turns)
	l.mu.Unlock()
	logging.SessionDebug("committed %s turn (%d chars, origin=%d, total=%d)", t.Role, len(t.Content), t.Origin, n)
}

// Len returns the number of committed turns.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

// Turns returns a copy of the full committed log in append order.
func (l *Log) Turns() []Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Turn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Window returns the last keepLast user/assistant pairs (up to 2*keepLast
// turns) in original order. System turns and tool-branch exchanges are
// excluded. The result is a copy; mutating it does not affect the log.
func (l *Log) Window(keepLast int) []Turn {
	if keepLast < 1 {
		return nil
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	eligible := make([]Turn, 0, len(l.turns))
	for _, t := range l.turns {
		if t.Origin == OriginTool || t.Role == RoleSystem {
			continue
		}
		eligible = append(eligible, t)
	}

	limit := keepLast * 2
	if len(eligible) > limit {
		eligible = eligible[len(eligible)-limit:]
	}
	return eligible
}
