package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tutor/internal/domain"
	"tutor/internal/lifecycle"
	"tutor/internal/service"
)

// TutorPort is the TUI-facing subset of the tutor service.
type TutorPort interface {
	Ask(ctx context.Context, question string, explicit domain.Filter, onFragment func(string)) (*service.Answer, error)
	FinalizePartial(text string, sources []domain.RetrievedResult)
	Reset(ctx context.Context) error
	ClearHistory()
	Status(ctx context.Context) (lifecycle.State, int, error)
}

type entry struct {
	role       domain.Role
	content    string
	sources    []domain.RetrievedResult
	incomplete bool
	degraded   bool
}

type fragmentMsg struct{ text string }

type askDoneMsg struct {
	answer *service.Answer
	err    error
}

type resetDoneMsg struct{ err error }

// Model is the Bubble Tea model for the chat interface.
type Model struct {
	service TutorPort

	input    textinput.Model
	viewport viewport.Model

	entries  []entry
	explicit domain.Filter
	status   string
	ready    bool

	streaming bool
	partial   string
	cancel    context.CancelFunc
	events    chan tea.Msg
}

// New creates a new TUI model instance.
func New(svc TutorPort, status string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about grammar, vocab, or a lesson (e.g. 'lesson 3 sublesson 2 te-form')"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{service: svc, input: ti, viewport: vp, status: status}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

func waitEvent(ch chan tea.Msg) tea.Cmd {
	return func() tea.Msg { return <-ch }
}

// Update handles key, window and stream events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := transcriptBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header + status + input frame + spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderTranscript())
		return m, nil

	case fragmentMsg:
		m.partial += msg.text
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
		return m, waitEvent(m.events)

	case askDoneMsg:
		m.streaming = false
		m.cancel = nil
		m.partial = ""
		if msg.answer != nil {
			m.entries = append(m.entries, entry{
				role:       domain.RoleAssistant,
				content:    msg.answer.Text,
				sources:    msg.answer.Sources,
				incomplete: msg.answer.Incomplete,
				degraded:   msg.answer.Degraded,
			})
			switch {
			case msg.err != nil:
				m.status = "Error: " + msg.err.Error()
			case msg.answer.Degraded:
				m.status = "Search unavailable; answered without textbook context."
			case len(msg.answer.Sources) == 0 && !msg.answer.Filter.IsEmpty():
				m.status = fmt.Sprintf("No content matched %s.", msg.answer.Filter)
			default:
				m.status = fmt.Sprintf("Answered with %d sources.", len(msg.answer.Sources))
			}
		} else if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		}
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
		return m, nil

	case resetDoneMsg:
		if msg.err != nil {
			m.status = "Reset failed: " + msg.err.Error()
		} else {
			m.status = "Collection wiped. It will be rebuilt on the next question."
		}
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
		switch msg.String() {
		case "esc":
			if m.streaming && m.cancel != nil {
				m.cancel()
				m.status = "Canceling..."
				return m, nil
			}
		case "enter":
			if m.streaming {
				return m, nil
			}
			line := strings.TrimSpace(m.input.Value())
			if line == "" {
				return m, nil
			}
			m.input.SetValue("")
			if strings.HasPrefix(line, "/") {
				return m.handleCommand(line)
			}
			return m.startAsk(line)
		case "up":
			m.viewport.LineUp(1)
			return m, nil
		case "down":
			m.viewport.LineDown(1)
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) startAsk(question string) (tea.Model, tea.Cmd) {
	m.entries = append(m.entries, entry{role: domain.RoleUser, content: question})
	m.partial = ""
	m.streaming = true
	m.status = "Searching textbook notes..."
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	events := make(chan tea.Msg)
	m.events = events
	explicit := m.explicit
	svc := m.service

	go func() {
		answer, err := svc.Ask(ctx, question, explicit, func(fragment string) {
			events <- fragmentMsg{text: fragment}
		})
		if answer != nil && isCanceled(err) {
			// keep what the model said before the cut
			svc.FinalizePartial(answer.Text, answer.Sources)
		}
		events <- askDoneMsg{answer: answer, err: err}
	}()

	return m, waitEvent(events)
}

func isCanceled(err error) bool {
	var ge *domain.GenerationError
	return errors.As(err, &ge) && ge.Canceled
}

func (m Model) handleCommand(line string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(line)
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}
	switch fields[0] {
	case "/lesson", "/sublesson":
		n, ok := parseFilterArg(arg)
		if !ok {
			m.status = "Usage: " + fields[0] + " <positive number|auto>"
			return m, nil
		}
		if fields[0] == "/lesson" {
			m.explicit.Lesson = n
		} else {
			m.explicit.Sublesson = n
		}
		if m.explicit.IsEmpty() {
			m.status = "Filter cleared."
		} else {
			m.status = "Filter: " + m.explicit.String()
		}
		return m, nil
	case "/filter":
		if arg == "clear" {
			m.explicit = domain.Filter{}
			m.status = "Filter cleared."
		} else if m.explicit.IsEmpty() {
			m.status = "No explicit filter set. Use /lesson N and /sublesson N."
		} else {
			m.status = "Filter: " + m.explicit.String()
		}
		return m, nil
	case "/reset":
		m.status = "Wiping collection..."
		svc := m.service
		return m, func() tea.Msg {
			return resetDoneMsg{err: svc.Reset(context.Background())}
		}
	case "/clear":
		m.service.ClearHistory()
		m.entries = nil
		m.status = "Session cleared."
		m.viewport.SetContent(m.renderTranscript())
		return m, nil
	case "/help":
		m.status = "/lesson N, /sublesson N, /filter [clear], /reset, /clear, /quit; esc cancels streaming"
		return m, nil
	case "/quit", "/exit":
		return m, tea.Quit
	default:
		m.status = "Unknown command " + fields[0] + " (try /help)"
		return m, nil
	}
}

// parseFilterArg accepts a positive number, or "auto"/empty for unset.
func parseFilterArg(arg string) (int, bool) {
	if arg == "" || arg == "auto" {
		return 0, true
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// View renders the chat layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("Genki Tutor")
	if !m.explicit.IsEmpty() {
		header += "  " + filterStyle.Render("["+m.explicit.String()+"]")
	}
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + transcript + "\n" + input + "\n" + status
}

func (m Model) renderTranscript() string {
	if len(m.entries) == 0 && !m.streaming {
		return "Ask a question to get started. Type /help for commands."
	}
	var b strings.Builder
	for _, e := range m.entries {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		if e.role == domain.RoleUser {
			b.WriteString(userStyle.Render("You: ") + e.content)
			continue
		}
		b.WriteString(assistantStyle.Render("Tutor: ") + e.content)
		if e.incomplete {
			b.WriteString(incompleteStyle.Render(" [incomplete]"))
		}
		if e.degraded {
			b.WriteString(incompleteStyle.Render(" [no textbook context]"))
		}
		for _, src := range e.sources {
			b.WriteString("\n  " + sourceStyle.Render(
				fmt.Sprintf("[%d] Lesson %d / Sublesson %d: %s",
					src.Rank, src.Chunk.Lesson, src.Chunk.Sublesson, src.Chunk.Topic)))
		}
	}
	if m.streaming {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(assistantStyle.Render("Tutor: "))
		if m.partial != "" {
			b.WriteString(m.partial)
		} else {
			b.WriteString("...")
		}
	}
	return b.String()
}

var (
	headerStyle        = lipgloss.NewStyle().Bold(true)
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	filterStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	sourceStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	incompleteStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)
