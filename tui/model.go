// Package tui is the terminal front end: the merged output on top, the device bar and
// an input line below.
package tui

import (
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"multi-serial-monitor/monitor"
	"multi-serial-monitor/registry"
	"multi-serial-monitor/types"
)

// maxLines bounds what the output pane keeps; the sink keeps the full history.
const maxLines = 5000

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("231")).Background(lipgloss.Color("25")).Padding(0, 1)
	deviceStyle   = lipgloss.NewStyle().Padding(0, 1)
	openStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	idleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Background(lipgloss.Color("236")).Padding(0, 1)
	outputStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type keyMap struct {
	Quit      key.Binding
	NewDevice key.Binding
	NextDev   key.Binding
	PrevDev   key.Binding
	Copy      key.Binding
	Send      key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Quit:      key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
		NewDevice: key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("ctrl+n", "new device")),
		NextDev:   key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next device")),
		PrevDev:   key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "previous device")),
		Copy:      key.NewBinding(key.WithKeys("ctrl+y"), key.WithHelp("ctrl+y", "copy output")),
		Send:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send / run")),
	}
}

type chunkMsg types.OutputChunk

type Model struct {
	registry   *registry.Registry
	sink       *monitor.Sink
	lineEnding string
	copyText   func(string) error
	keys       keyMap

	output viewport.Model
	input  textinput.Model
	sub    chan types.OutputChunk

	lines   []string
	lastSeq uint64
	status  string
	width   int
	height  int
}

func New(reg *registry.Registry, sink *monitor.Sink, lineEnding string) *Model {
	ti := textinput.New()
	ti.Placeholder = "text to send, or :help"
	ti.Prompt = "> "
	ti.Focus()

	m := &Model{
		registry:   reg,
		sink:       sink,
		lineEnding: lineEnding,
		copyText:   clipboard.WriteAll,
		keys:       newKeyMap(),
		output:     viewport.New(80, 20),
		input:      ti,
		sub:        sink.Subscribe(256),
		status:     "ctrl+n new device, tab switch, :help for commands",
	}
	m.catchUp()
	return m
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForChunk())
}

// waitForChunk blocks on the sink subscription and wakes the program on new output.
func (m *Model) waitForChunk() tea.Cmd {
	sub := m.sub
	return func() tea.Msg {
		c, ok := <-sub
		if !ok {
			return nil
		}
		return chunkMsg(c)
	}
}

// Close detaches the model from the sink.
func (m *Model) Close() {
	m.sink.Unsubscribe(m.sub)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()

	case chunkMsg:
		// read through the sink so chunks dropped by a full subscription are not lost
		m.catchUp()
		cmds = append(cmds, m.waitForChunk())

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.NewDevice):
			m.status = "added " + m.registry.Add().Name()
			return m, nil
		case key.Matches(msg, m.keys.NextDev):
			m.status = "selected " + m.registry.SelectNext(1).Name()
			return m, nil
		case key.Matches(msg, m.keys.PrevDev):
			m.status = "selected " + m.registry.SelectNext(-1).Name()
			return m, nil
		case key.Matches(msg, m.keys.Copy):
			m.status, _ = m.execute(":copy")
			return m, nil
		case key.Matches(msg, m.keys.Send):
			line := m.input.Value()
			m.input.Reset()
			if strings.TrimSpace(line) == "" {
				return m, nil
			}
			status, quit := m.execute(line)
			m.status = status
			if quit {
				return m, tea.Quit
			}
			return m, nil
		case msg.Type == tea.KeyPgUp, msg.Type == tea.KeyPgDown:
			var cmd tea.Cmd
			m.output, cmd = m.output.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *Model) catchUp() {
	chunks := m.sink.Since(m.lastSeq)
	if len(chunks) == 0 {
		return
	}
	atBottom := m.output.AtBottom()
	for _, c := range chunks {
		text := strings.ReplaceAll(c.Text, "\r", "")
		m.lines = append(m.lines, strings.Split(text, "\n")...)
		m.lastSeq = c.Sequence
	}
	if len(m.lines) > maxLines {
		m.lines = m.lines[len(m.lines)-maxLines:]
	}
	m.output.SetContent(strings.Join(m.lines, "\n"))
	if atBottom {
		m.output.GotoBottom()
	}
}

func (m *Model) resize() {
	// border + device bar + input + status
	reserved := 2 + 1 + 1 + 1
	w := m.width - 4
	h := m.height - reserved
	if w < 10 {
		w = 10
	}
	if h < 3 {
		h = 3
	}
	m.output.Width = w
	m.output.Height = h
	m.input.Width = m.width - 4
	m.output.SetContent(strings.Join(m.lines, "\n"))
	m.output.GotoBottom()
}

func (m *Model) deviceBar() string {
	parts := []string{titleStyle.Render("devices:")}
	for _, st := range m.registry.Statuses() {
		if st.Selected {
			parts = append(parts, selectedStyle.Render(st.Name+" "+st.State.String()))
			continue
		}
		parts = append(parts, deviceStyle.Render(st.Name+" "+stateStyle(st.State).Render(st.State.String())))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func stateStyle(s types.State) lipgloss.Style {
	switch s {
	case types.StateOpen:
		return openStyle
	case types.StateError:
		return errorStyle
	default:
		return idleStyle
	}
}

func (m *Model) View() string {
	status := m.status
	if sel := m.registry.Selected(); sel != nil {
		if st := sel.Status(); st.Detail != "" {
			status = errorStyle.Render(st.Detail) + "  " + status
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		outputStyle.Render(m.output.View()),
		m.deviceBar(),
		m.input.View(),
		statusStyle.Width(max(m.width, 1)).Render(status),
	)
}
