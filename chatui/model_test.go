package chatui

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/raezil/agentchat-go/agent"
	"github.com/raezil/agentchat-go/hostlink"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	reply func(string) agent.AgentResult
}

func (f *fakeSender) CallAgent(_ context.Context, req agent.AgentRequest) agent.AgentResult {
	f.mu.Lock()
	f.sent = append(f.sent, req.Message)
	f.mu.Unlock()
	return f.reply(req.Message)
}

func echo(msg string) agent.AgentResult {
	if msg == "fail" {
		return agent.AgentResult{Error: &agent.ErrorDetails{Kind: agent.KindAPIError, Message: "rate limited"}}
	}
	return agent.AgentResult{Success: true, Message: "echo: " + msg}
}

// drain runs cmd and any batched cmds, returning the replies they produce.
func drain(cmd tea.Cmd) []replyMsg {
	if cmd == nil {
		return nil
	}
	switch msg := cmd().(type) {
	case tea.BatchMsg:
		var out []replyMsg
		for _, c := range msg {
			out = append(out, drain(c)...)
		}
		return out
	case replyMsg:
		return []replyMsg{msg}
	}
	return nil
}

func typeAndSubmit(t *testing.T, m Model, text string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(text)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

func TestModel_SendAndReply(t *testing.T) {
	sender := &fakeSender{reply: echo}
	m := New(context.Background(), sender, nil, "chat")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = next.(Model)

	m, cmd := typeAndSubmit(t, m, "hello")
	if !m.pending {
		t.Fatal("expected a request in flight")
	}
	if m.input.Value() != "" {
		t.Fatal("input not cleared")
	}

	// A second submit while pending is ignored.
	m2, cmd2 := typeAndSubmit(t, m, "again")
	if cmd2 != nil || len(m2.log) != len(m.log) {
		t.Fatal("second request should not start while one is in flight")
	}

	replies := drain(cmd)
	if len(replies) != 1 {
		t.Fatalf("got %d replies", len(replies))
	}
	next, _ = m.Update(replies[0])
	m = next.(Model)
	if m.pending {
		t.Fatal("pending not cleared")
	}
	if len(m.log) != 2 || m.log[1].role != roleAgent || m.log[1].text != "echo: hello" {
		t.Fatalf("log = %+v", m.log)
	}
	if !strings.Contains(m.View(), "echo: hello") {
		t.Fatalf("view missing reply:\n%s", m.View())
	}
}

func TestModel_ErrorReplyAndBanner(t *testing.T) {
	relay := hostlink.NewRelay()
	defer relay.Close()
	m := New(context.Background(), &fakeSender{reply: echo}, relay, "chat")
	defer m.Close()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = next.(Model)

	m, cmd := typeAndSubmit(t, m, "fail")
	replies := drain(cmd)
	next, _ = m.Update(replies[0])
	m = next.(Model)
	if last := m.log[len(m.log)-1]; last.role != roleError || !strings.Contains(last.text, "rate limited") {
		t.Fatalf("last entry = %+v", last)
	}

	relay.Report(agent.ErrorDetails{ID: "e1", Kind: agent.KindParseError, Message: "bad payload"})
	msgCh := make(chan tea.Msg, 1)
	go func() { msgCh <- m.waitForError()() }()
	select {
	case msg := <-msgCh:
		next, _ = m.Update(msg)
		m = next.(Model)
	case <-time.After(2 * time.Second):
		t.Fatal("banner message not delivered")
	}
	if !strings.Contains(m.View(), "parse_error: bad payload") {
		t.Fatalf("banner not rendered:\n%s", m.View())
	}
}

func TestModel_Commands(t *testing.T) {
	sender := &fakeSender{reply: echo}
	m := New(context.Background(), sender, nil, "chat")

	m, cmd := typeAndSubmit(t, m, "/fix")
	if cmd != nil || len(sender.sent) != 0 {
		t.Fatal("/fix must not call the agent")
	}
	if !strings.Contains(m.log[0].text, "not embedded") {
		t.Fatalf("log = %+v", m.log)
	}

	m, _ = typeAndSubmit(t, m, "/clear")
	if len(m.log) != 0 {
		t.Fatalf("log not cleared: %+v", m.log)
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("esc should quit")
	}
}

type countingForwarder struct {
	mu sync.Mutex
	n  int
}

func (c *countingForwarder) Forward(context.Context, agent.ErrorDetails) error {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
	return nil
}

func TestRunLines(t *testing.T) {
	fwd := &countingForwarder{}
	relay := hostlink.NewRelay(hostlink.WithForwarder(fwd))
	sender := &fakeSender{reply: echo}

	var out bytes.Buffer
	in := strings.NewReader("hello\n\n/fix\nfail\n")
	if err := RunLines(context.Background(), sender, relay, in, &out); err != nil {
		t.Fatalf("RunLines: %v", err)
	}
	relay.Close()

	got := out.String()
	for _, want := range []string{"agent> echo: hello", "no error to send", "error> [api_error] rate limited"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
	if len(sender.sent) != 2 {
		t.Fatalf("sent = %v", sender.sent)
	}
}
