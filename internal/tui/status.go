// Package tui renders a live status view of the detector.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"waterdetect/internal/detect"
)

// historyLen is the number of recent decisions drawn in the strip.
const historyLen = 32

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8A8A8A")).
			Width(12)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	dryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	wetStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#1E6FD9")).
			Padding(0, 1).
			Bold(true)
)

type keyMap struct {
	Quit  key.Binding
	Clear key.Binding
	Help  key.Binding
}

func (k keyMap) ShortHelp() []key.Binding { return []key.Binding{k.Help, k.Quit} }

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Clear}, {k.Help, k.Quit}}
}

var defaultKeys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Clear: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "clear history"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "more keys"),
	),
}

// EventMsg carries one detector event into the program.
type EventMsg detect.Event

// streamClosedMsg is sent once the event channel is closed.
type streamClosedMsg struct{}

// Model is the Bubble Tea model of the status view.
type Model struct {
	source  string
	events  <-chan detect.Event
	last    detect.Event
	seen    int
	history []bool
	ended   bool

	keys keyMap
	help help.Model
}

// New returns a view fed from events. source names the model or input
// shown in the header.
func New(source string, events <-chan detect.Event) Model {
	return Model{
		source: source,
		events: events,
		keys:   defaultKeys,
		help:   help.New(),
	}
}

// Init starts listening for events.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func waitForEvent(events <-chan detect.Event) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return streamClosedMsg{}
		}
		return EventMsg(ev)
	}
}

// Update handles events and key presses.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case EventMsg:
		m.last = detect.Event(msg)
		m.seen++
		m.history = append(m.history, msg.Decision)
		if len(m.history) > historyLen {
			m.history = m.history[len(m.history)-historyLen:]
		}
		return m, waitForEvent(m.events)

	case streamClosedMsg:
		m.ended = true
		return m, nil

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Clear):
			m.history = m.history[:0]
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		}
	}
	return m, nil
}

// View renders the status screen.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Water Detector"))
	b.WriteString(" " + infoStyle.Render(m.source) + "\n\n")

	if m.seen == 0 {
		b.WriteString(infoStyle.Render("Waiting for the first window...") + "\n")
	} else {
		row := func(label, value string) {
			b.WriteString(labelStyle.Render(label) + value + "\n")
		}
		row("Phase", infoStyle.Render(m.last.Phase.String()))
		row("Window", infoStyle.Render(fmt.Sprintf("%d", m.last.Window)))
		row("Decision", infoStyle.Render(verdict(m.last.Decision)))
		row("Levels", infoStyle.Render(fmt.Sprintf("%.1f / %.1f", m.last.Amp1, m.last.Amp2)))
		if m.last.Submerged {
			row("State", wetStyle.Render("SUBMERGED"))
		} else {
			row("State", dryStyle.Render("dry"))
		}
		row("History", historyStrip(m.history))
	}

	if m.ended {
		b.WriteString("\n" + infoStyle.Render("Input finished.") + "\n")
	}
	b.WriteString("\n" + m.help.View(m.keys) + "\n")
	return b.String()
}

func verdict(water bool) string {
	if water {
		return "water"
	}
	return "air"
}

// historyStrip draws one cell per decision, oldest first.
func historyStrip(h []bool) string {
	var b strings.Builder
	for _, water := range h {
		if water {
			b.WriteString("█")
		} else {
			b.WriteString("·")
		}
	}
	return b.String()
}
