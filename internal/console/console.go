// Package console runs the tutor as a local terminal chat. It drives the
// same message handling as the Telegram bot.
package console

import (
	"context"
	"fmt"
	"strings"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/tutorbot/internal/tutor"
)

// Handler answers learner messages. *tutor.Orchestrator implements it.
type Handler interface {
	HandleMessage(ctx context.Context, learnerID, text string) tutor.Reply
	Progress(ctx context.Context, learnerID string) (*tutor.Report, error)
}

type speaker int

const (
	fromLearner speaker = iota
	fromTutor
	fromError
)

type line struct {
	who  speaker
	text string
	pass bool
}

type replyMsg struct {
	reply tutor.Reply
}

type reportMsg struct {
	report *tutor.Report
}

// Model is the Bubble Tea model of the chat.
type Model struct {
	ctx       context.Context
	handler   Handler
	learnerID string
	course    string

	input      textinput.Model
	transcript []line
	busy       bool
	report     *tutor.Report

	width  int
	height int
}

// New builds a chat for one learner.
func New(ctx context.Context, h Handler, learnerID, course string) Model {
	ti := textinput.New()
	ti.Placeholder = "Type your answer or /help"
	ti.CharLimit = 2000
	ti.Focus()
	return Model{ctx: ctx, handler: h, learnerID: learnerID, course: course, input: ti}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.input.Focus(), m.send(tutor.CmdStart))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case replyMsg:
		m.busy = false
		r := msg.reply
		who := fromTutor
		if r.Kind == tutor.ReplyError {
			who = fromError
		}
		m.transcript = append(m.transcript, line{who: who, text: r.Text, pass: r.Outcome == tutor.OutcomePassed})
		if r.Report != nil {
			m.report = r.Report
			return m, nil
		}
		return m, m.refresh()

	case reportMsg:
		if msg.report != nil {
			m.report = msg.report
		}
		return m, nil

	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			return m, tea.Quit
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.busy {
				return m, nil
			}
			m.input.Reset()
			m.busy = true
			m.transcript = append(m.transcript, line{who: fromLearner, text: text})
			return m, m.send(text)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) send(text string) tea.Cmd {
	return func() tea.Msg {
		return replyMsg{reply: m.handler.HandleMessage(m.ctx, m.learnerID, text)}
	}
}

func (m Model) refresh() tea.Cmd {
	return func() tea.Msg {
		rep, err := m.handler.Progress(m.ctx, m.learnerID)
		if err != nil {
			return reportMsg{}
		}
		return reportMsg{report: rep}
	}
}

func (m Model) View() tea.View {
	v := tea.NewView("")
	v.AltScreen = true
	if m.width == 0 || m.height == 0 {
		return v
	}
	if tooSmall(m.width, m.height) {
		v.SetContent(renderTooSmall(m.width, m.height))
		return v
	}

	header := renderHeader(m.course, m.status(), m.passed(), m.total(), m.width)
	footer := renderFooter([]keyHint{
		{key: "Enter", desc: "Send"},
		{key: "/help", desc: "Commands"},
		{key: "Ctrl+C", desc: "Quit"},
	}, m.width)

	prompt := m.input.View()
	if m.busy {
		prompt = hintStyle.Render("  tutor is thinking...")
	}

	bodyHeight := max(m.height-lipgloss.Height(header)-lipgloss.Height(footer)-2, 0)
	body := lipgloss.NewStyle().
		Width(m.width).
		Height(bodyHeight).
		Render(m.tail(bodyHeight))

	v.SetContent(header + "\n" + body + "\n" + prompt + "\n" + footer)
	return v
}

// tail renders as many of the latest transcript lines as fit.
func (m Model) tail(height int) string {
	wrap := lipgloss.NewStyle().Width(max(m.width-4, 10))
	var rendered []string
	for _, l := range m.transcript {
		var label string
		style := bodyStyle
		switch l.who {
		case fromLearner:
			label = learnerStyle.Render("you")
		case fromError:
			label = tutorStyle.Render("tutor")
			style = errorStyle
		default:
			label = tutorStyle.Render("tutor")
			if l.pass {
				style = passStyle
			}
		}
		rendered = append(rendered, strings.Split(label+"\n"+wrap.Render(style.Render(l.text))+"\n", "\n")...)
	}
	if len(rendered) > height {
		rendered = rendered[len(rendered)-height:]
	}
	return strings.Join(rendered, "\n")
}

func (m Model) status() string {
	if m.report == nil {
		return ""
	}
	if id := m.report.ActiveLessonID; id != "" {
		return "in lesson " + id
	}
	if m.report.Band == "" {
		return "no lessons finished yet"
	}
	return fmt.Sprintf("%s · %d day streak", m.report.Band, m.report.Streak)
}

func (m Model) passed() int {
	if m.report == nil {
		return 0
	}
	return m.report.Passed
}

func (m Model) total() int {
	if m.report == nil {
		return 0
	}
	return m.report.Total
}

// Run starts the chat program and blocks until the learner quits.
func Run(ctx context.Context, h Handler, learnerID, course string) error {
	p := tea.NewProgram(New(ctx, h, learnerID, course), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
