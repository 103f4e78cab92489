// Package console is an interactive terminal chat with the agent.
package console

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go-dross/internal/agents/pipeline"
)

const title = "DROSS"

// Responder answers one line typed by the operator.
type Responder func(ctx context.Context, input string) pipeline.Result

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("51"))
	userStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	agentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("207"))
	toolStyle  = lipgloss.NewStyle().Faint(true)
	helpStyle  = lipgloss.NewStyle().Faint(true)
	frameStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type replyMsg struct {
	result pipeline.Result
	took   time.Duration
}

type Model struct {
	ctx      context.Context
	respond  Responder
	input    textinput.Model
	vp       viewport.Model
	spin     spinner.Model
	thinking bool
	lines    []string
	width    int
}

func New(ctx context.Context, respond Responder) Model {
	in := textinput.New()
	in.Placeholder = "Talk to the agent. Type exit to quit."
	in.Prompt = "› "
	in.Focus()

	vp := viewport.New(80, 20)
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{ctx: ctx, respond: respond, input: in, vp: vp, spin: sp, width: 80}
	return m.appendLine(titleStyle.Render(title) + helpStyle.Render(" initialization complete"))
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spin.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = msg.Width - 6
		m.vp.Width = msg.Width - 4
		m.vp.Height = max(3, msg.Height-6)
		m.vp.SetContent(strings.Join(m.lines, "\n"))
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyPgUp:
			m.vp.LineUp(10)
			return m, nil
		case tea.KeyPgDown:
			m.vp.LineDown(10)
			return m, nil
		case tea.KeyEnter:
			if m.thinking {
				return m, nil
			}
			text := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			switch strings.ToLower(text) {
			case "":
				return m, nil
			case "exit", "quit":
				return m, tea.Quit
			}
			m.thinking = true
			m = m.appendLine(userStyle.Render("You: ") + text)
			return m, m.ask(text)
		}

	case replyMsg:
		m.thinking = false
		if msg.result.ToolName != "" {
			m = m.appendLine(toolStyle.Render(fmt.Sprintf("  [%s] %s", msg.result.ToolName, preview(msg.result.ToolResult))))
		}
		return m.appendLine(agentStyle.Render("Agent: ") + msg.result.Reply + helpStyle.Render(fmt.Sprintf(" (%s)", msg.took.Round(time.Millisecond)))), nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	status := helpStyle.Render("Enter = send • PgUp/PgDn = scroll • Esc = quit")
	if m.thinking {
		status = m.spin.View() + " thinking..."
	}
	return frameStyle.Render(m.vp.View()) + "\n" + m.input.View() + "\n" + status
}

func (m Model) ask(text string) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		res := m.respond(m.ctx, text)
		return replyMsg{result: res, took: time.Since(start)}
	}
}

func (m Model) appendLine(s string) Model {
	m.lines = append(m.lines, s)
	m.vp.SetContent(strings.Join(m.lines, "\n"))
	m.vp.GotoBottom()
	return m
}

func preview(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > 100 {
		return string(r[:100]) + "..."
	}
	return s
}

// Run blocks until the operator quits.
func Run(ctx context.Context, respond Responder) error {
	p := tea.NewProgram(New(ctx, respond), tea.WithAltScreen())
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			p.Quit()
		case <-done:
		}
	}()
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("console: %w", err)
	}
	return nil
}
