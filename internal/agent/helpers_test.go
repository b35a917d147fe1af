package agent

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/iamibadd/survey-agent/internal/domain"
	"github.com/iamibadd/survey-agent/internal/llm"
	"github.com/iamibadd/survey-agent/internal/store"
	"github.com/stretchr/testify/require"
)

// scriptedModel records prompts and answers from a queue of replies.
type scriptedModel struct {
	mu      sync.Mutex
	prompts []llm.Prompt
	replies []scriptedReply
}

type scriptedReply struct {
	text string
	err  error
}

var errUpstream = errors.New("upstream 503")

func (m *scriptedModel) Complete(_ context.Context, p llm.Prompt) (llm.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, p)
	if len(m.replies) == 0 {
		return llm.Result{Text: "ok"}, nil
	}
	next := m.replies[0]
	m.replies = m.replies[1:]
	return llm.Result{Text: next.text}, next.err
}

func (m *scriptedModel) queue(replies ...scriptedReply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, replies...)
}

func (m *scriptedModel) calls() []llm.Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.Prompt(nil), m.prompts...)
}

func reply(text string) scriptedReply { return scriptedReply{text: text} }
func failure() scriptedReply          { return scriptedReply{err: errUpstream} }

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// recordingLogger keeps every event in memory.
type recordingLogger struct {
	mu     sync.Mutex
	events []ConversationLogEvent
}

func (l *recordingLogger) Log(event ConversationLogEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *recordingLogger) Close() error { return nil }

func (l *recordingLogger) directions() map[string]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]string, len(l.events))
	for _, e := range l.events {
		out[e.EventType] = e.Direction
	}
	return out
}

// interleavingHistory appends a competing user turn right after each user
// turn it stores, as a concurrent send on the same session would.
type interleavingHistory struct {
	store.History
	competing string
}

func (h *interleavingHistory) AppendMessage(ctx context.Context, sessionID int64, role domain.Role, text string) (int64, error) {
	id, err := h.History.AppendMessage(ctx, sessionID, role, text)
	if err != nil || role != domain.RoleUser {
		return id, err
	}
	if _, err := h.History.AppendMessage(ctx, sessionID, domain.RoleUser, h.competing); err != nil {
		return 0, err
	}
	return id, nil
}
