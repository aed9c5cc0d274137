package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"meetscribe/session"
	"meetscribe/store"
	"meetscribe/wordstream"
)

// TUI message types
type SnapshotMsg struct{ Snapshot session.Snapshot }
type StoreChangedMsg struct{}
type ToggleOverlayMsg struct{}
type OpenTranscriptMsg struct{ ID string }
type StatusMsg struct{ Text string }
type tickMsg time.Time

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

var (
	styleRecording = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleIdle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	styleCommitted = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	stylePending   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
	styleSelected  = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
	styleDim       = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	styleStatus    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleWarn      = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	styleHelp      = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
)

// tuiDeps is everything the surface needs from the engine.
type tuiDeps struct {
	recorder *session.Recorder
	store    *store.Store
	overlay  bool
}

type tuiModel struct {
	deps tuiDeps

	snapshot    session.Snapshot
	transcripts []store.Transcript
	selected    int
	searching   bool
	query       string
	status      string
	statusSetAt time.Time
	showOverlay bool

	width, height int
}

func NewTUIProgram(deps tuiDeps) *tea.Program {
	m := tuiModel{deps: deps, showOverlay: deps.overlay}
	m.reload()
	return tea.NewProgram(m, tea.WithAltScreen())
}

func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func tuiTick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *tuiModel) reload() {
	list, err := m.deps.store.Search(m.query)
	if err != nil {
		m.status = fmt.Sprintf("load error: %v", err)
		m.statusSetAt = time.Now()
		return
	}
	m.transcripts = list
	if m.selected >= len(list) {
		m.selected = len(list) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

// openTranscript jumps the selection to the requested transcript,
// clearing any search filter that would hide it.
func (m *tuiModel) openTranscript(id string) {
	m.searching = false
	m.query = ""
	m.reload()
	for i, t := range m.transcripts {
		if t.ID == id {
			m.selected = i
			m.setStatus("opened %s", t.Date)
			return
		}
	}
	m.setStatus("transcript not found")
}

func (m *tuiModel) setStatus(format string, args ...interface{}) {
	m.status = fmt.Sprintf(format, args...)
	m.statusSetAt = time.Now()
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.snapshot = m.deps.recorder.Status()
		if m.status != "" && time.Since(m.statusSetAt) > 4*time.Second {
			m.status = ""
		}
		return m, tuiTick()

	case SnapshotMsg:
		m.snapshot = msg.Snapshot

	case StoreChangedMsg:
		m.reload()

	case ToggleOverlayMsg:
		m.showOverlay = !m.showOverlay

	case OpenTranscriptMsg:
		m.openTranscript(msg.ID)

	case StatusMsg:
		m.setStatus("%s", msg.Text)

	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m tuiModel) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.searching = false
		m.reload()
	case "esc":
		m.searching = false
		m.query = ""
		m.reload()
	case "backspace":
		if len(m.query) > 0 {
			m.query = m.query[:len(m.query)-1]
		}
	default:
		if len(msg.String()) == 1 {
			m.query += msg.String()
		}
	}
	return m, nil
}

func (m tuiModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "r":
		if m.snapshot.State == session.StateRecording {
			return m, m.stopCmd()
		}
		return m, m.startCmd()

	case "o":
		// Hiding the live overlay never touches the session itself.
		m.showOverlay = !m.showOverlay

	case "/":
		m.searching = true
		m.query = ""

	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}

	case "down", "j":
		if m.selected < len(m.transcripts)-1 {
			m.selected++
		}

	case "d":
		if t := m.selectedTranscript(); t != nil {
			if err := m.deps.store.Delete(t.ID); err != nil {
				m.setStatus("delete: %v", err)
			} else {
				m.setStatus("deleted")
				m.reload()
			}
		}

	case "y":
		if t := m.selectedTranscript(); t != nil {
			if err := clipboard.WriteAll(t.Text); err != nil {
				m.setStatus("copy: %v", err)
			} else {
				m.setStatus("copied to clipboard")
			}
		}

	case "e":
		exp, err := m.deps.store.ExportAll()
		if err != nil {
			m.setStatus("export: %v", err)
		} else {
			m.setStatus("exported %d transcripts", exp.Count)
		}
	}
	return m, nil
}

func (m tuiModel) startCmd() tea.Cmd {
	recorder := m.deps.recorder
	return func() tea.Msg {
		if err := recorder.Start(context.Background()); err != nil {
			return StatusMsg{Text: fmt.Sprintf("start: %v", err)}
		}
		return SnapshotMsg{Snapshot: recorder.Status()}
	}
}

func (m tuiModel) stopCmd() tea.Cmd {
	recorder := m.deps.recorder
	return func() tea.Msg {
		saved, err := recorder.Stop()
		if err != nil {
			return StatusMsg{Text: fmt.Sprintf("stop: %v", err)}
		}
		if saved == nil {
			return StatusMsg{Text: "nothing to save"}
		}
		return StatusMsg{Text: "transcript saved"}
	}
}

func (m tuiModel) selectedTranscript() *store.Transcript {
	if m.selected < 0 || m.selected >= len(m.transcripts) {
		return nil
	}
	return &m.transcripts[m.selected]
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var b strings.Builder

	switch m.snapshot.State {
	case session.StateRecording:
		elapsed := time.Since(m.snapshot.StartedAt).Seconds()
		b.WriteString(styleRecording.Render(fmt.Sprintf("● REC %.0fs", elapsed)))
		b.WriteString(styleDim.Render("  [" + string(m.snapshot.Source) + "]"))
	case session.StateFinalizing:
		b.WriteString(styleDim.Render("… finalizing"))
	default:
		b.WriteString(styleIdle.Render("○ idle"))
	}
	b.WriteString("\n")
	if m.snapshot.Notice != "" {
		b.WriteString(styleWarn.Render("⚠ " + m.snapshot.Notice))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if m.showOverlay {
		b.WriteString(renderLiveLines(m.snapshot.Lines))
		b.WriteString("\n")
	}

	b.WriteString(m.renderList())
	b.WriteString("\n")

	if m.searching {
		b.WriteString(styleSelected.Render("/" + m.query + "▌"))
		b.WriteString("\n")
	} else if m.status != "" {
		b.WriteString(styleStatus.Render(m.status))
		b.WriteString("\n")
	}

	b.WriteString(styleHelp.Render("r record  o overlay  / search  y copy  d delete  e export  q quit"))
	return b.String()
}

// renderLiveLines draws the fixed-width live transcript. Committed words
// render solid; the pending tail renders muted until it is finalized.
func renderLiveLines(lines []wordstream.Line) string {
	if len(lines) == 0 {
		return styleDim.Render("(no words yet)") + "\n"
	}
	var b strings.Builder
	for _, line := range lines {
		parts := make([]string, 0, wordstream.LineWidth)
		for _, w := range line.Committed {
			parts = append(parts, styleCommitted.Render(w))
		}
		for _, w := range line.Pending {
			parts = append(parts, stylePending.Render(w))
		}
		b.WriteString(strings.Join(parts, " "))
		b.WriteString("\n")
	}
	return b.String()
}

func (m tuiModel) renderList() string {
	if len(m.transcripts) == 0 {
		if m.query != "" {
			return styleDim.Render("no matches for " + m.query)
		}
		return styleDim.Render("no saved transcripts")
	}

	visible := m.height - 10
	if visible < 3 {
		visible = 3
	}
	var b strings.Builder
	for i, t := range m.transcripts {
		if i >= visible {
			b.WriteString(styleDim.Render(fmt.Sprintf("… %d more", len(m.transcripts)-visible)))
			break
		}
		line := fmt.Sprintf("%s  %s", t.Date, previewText(t.Text, m.width-30))
		if i == m.selected {
			b.WriteString(styleSelected.Render("> " + line))
		} else {
			b.WriteString(styleDim.Render("  " + line))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func previewText(text string, width int) string {
	if text == "" {
		return "(no speech)"
	}
	if width < 10 {
		width = 10
	}
	if len(text) > width {
		return text[:width-1] + "…"
	}
	return text
}
