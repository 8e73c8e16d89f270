// Package chatui is the terminal chat front-end: a transcript, an input line,
// a spinner while the single in-flight request runs and a banner fed by the
// relay's error subscription.
package chatui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/raezil/agentchat-go/agent"
	"github.com/raezil/agentchat-go/hostlink"
)

// Sender is satisfied by *agent.Client.
type Sender interface {
	CallAgent(ctx context.Context, req agent.AgentRequest) agent.AgentResult
}

type role int

const (
	roleUser role = iota
	roleAgent
	roleError
	roleInfo
)

type entry struct {
	role role
	text string
}

type replyMsg struct{ res agent.AgentResult }

type bannerMsg struct{ d agent.ErrorDetails }

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	userStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	agentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	infoStyle   = lipgloss.NewStyle().Faint(true)
	bannerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("1")).Padding(0, 1)
)

// Model is the Bubble Tea model for one chat session.
type Model struct {
	ctx     context.Context
	client  Sender
	relay   *hostlink.Relay
	title   string
	errCh   chan agent.ErrorDetails
	cancel  func()
	input   textinput.Model
	view    viewport.Model
	spin    spinner.Model
	log     []entry
	pending bool
	banner  string
	ready   bool
	width   int
}

// New builds a model. relay may be nil; when set, the model becomes the
// relay's error-banner subscriber until Close.
func New(ctx context.Context, client Sender, relay *hostlink.Relay, title string) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask the agent… (/fix re-sends the last error, /clear, esc to quit)"
	ti.CharLimit = 4000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		ctx:    ctx,
		client: client,
		relay:  relay,
		title:  title,
		errCh:  make(chan agent.ErrorDetails, 8),
		cancel: func() {},
		input:  ti,
		spin:   sp,
		view:   viewport.New(80, 20),
	}
	if relay != nil {
		ch := m.errCh
		m.cancel = relay.Observer().Subscribe(func(d agent.ErrorDetails) {
			select {
			case ch <- d:
			default:
			}
		})
	}
	return m
}

// Close releases the banner subscription.
func (m Model) Close() { m.cancel() }

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForError())
}

func (m Model) waitForError() tea.Cmd {
	ch := m.errCh
	return func() tea.Msg {
		return bannerMsg{d: <-ch}
	}
}

func (m Model) send(text string) tea.Cmd {
	ctx, client := m.ctx, m.client
	return func() tea.Msg {
		return replyMsg{res: client.CallAgent(ctx, agent.AgentRequest{Message: text})}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.view.Width = msg.Width
		m.view.Height = max(msg.Height-4, 3)
		m.input.Width = max(msg.Width-4, 10)
		m.ready = true
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		}

	case replyMsg:
		m.pending = false
		if msg.res.Success {
			m.log = append(m.log, entry{roleAgent, msg.res.Message})
		} else {
			m.log = append(m.log, entry{roleError, describe(msg.res.Error)})
		}
		m.refresh()
		return m, nil

	case bannerMsg:
		m.banner = fmt.Sprintf("%s: %s", msg.d.Kind, msg.d.Message)
		return m, m.waitForError()

	case spinner.TickMsg:
		if !m.pending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.view, cmd = m.view.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.pending {
		return m, nil
	}
	m.input.Reset()

	switch text {
	case "/clear":
		m.log = nil
		m.banner = ""
		m.refresh()
		return m, nil
	case "/fix":
		m.log = append(m.log, entry{roleInfo, requestFix(m.relay)})
		m.refresh()
		return m, nil
	}

	m.log = append(m.log, entry{roleUser, text})
	m.pending = true
	m.refresh()
	return m, tea.Batch(m.send(text), m.spin.Tick)
}

func requestFix(relay *hostlink.Relay) string {
	switch {
	case relay == nil || !relay.Embedded():
		return "not embedded: there is no host to send the error to"
	case relay.RequestFix():
		return "sent the last error to the host for a fix"
	default:
		return "no error to send"
	}
}

func (m *Model) refresh() {
	width := m.width
	if width <= 0 {
		width = 80
	}
	wrap := lipgloss.NewStyle().Width(width)
	var b strings.Builder
	for _, e := range m.log {
		var line string
		switch e.role {
		case roleUser:
			line = userStyle.Render("you") + " " + e.text
		case roleAgent:
			line = agentStyle.Render("agent") + " " + e.text
		case roleError:
			line = errorStyle.Render("error") + " " + e.text
		default:
			line = infoStyle.Render(e.text)
		}
		b.WriteString(wrap.Render(line))
		b.WriteString("\n")
	}
	m.view.SetContent(b.String())
	m.view.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "starting…"
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")
	b.WriteString(m.view.View())
	b.WriteString("\n")
	if m.banner != "" {
		b.WriteString(bannerStyle.Render(m.banner))
		b.WriteString("\n")
	}
	if m.pending {
		b.WriteString(m.spin.View() + " ")
	}
	b.WriteString(m.input.View())
	return b.String()
}

func describe(d *agent.ErrorDetails) string {
	if d == nil {
		return "request failed"
	}
	return fmt.Sprintf("[%s] %s", d.Kind, d.Message)
}

// Run starts the full-screen chat and blocks until the user quits.
func Run(ctx context.Context, client Sender, relay *hostlink.Relay, title string) error {
	m := New(ctx, client, relay, title)
	defer m.Close()
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
