package tab

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	mirrordto "minesync/internal/modules/mirror/dto"
	"minesync/internal/ui/components"
	"minesync/internal/ui/theme"
)

// mirrorPort is the slice of the mirror usecase the tab drives.
type mirrorPort interface {
	Mount(ctx context.Context) (mirrordto.ViewOutput, error)
	Start(ctx context.Context) (mirrordto.ViewOutput, error)
	Pause(ctx context.Context) (mirrordto.ViewOutput, error)
	Resume(ctx context.Context) (mirrordto.ViewOutput, error)
	TogglePause(ctx context.Context) (mirrordto.ViewOutput, error)
	Stop(ctx context.Context) (mirrordto.ViewOutput, error)
	View() mirrordto.ViewOutput
	Events() <-chan mirrordto.EventOutput
}

// ─── async messages ───────────────────────────────────────────────────────────

type tickMsg time.Time

type eventMsg struct {
	event mirrordto.EventOutput
	ok    bool
}

type actionMsg struct {
	label string
	view  mirrordto.ViewOutput
	err   error
}

// ─── key bindings ─────────────────────────────────────────────────────────────

type keyMap struct {
	Start   key.Binding
	Pause   key.Binding
	Stop    key.Binding
	Remount key.Binding
	Help    key.Binding
	Palette key.Binding
	Quit    key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Start:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start")),
		Pause:   key.NewBinding(key.WithKeys("p", " "), key.WithHelp("p", "pause/resume")),
		Stop:    key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop")),
		Remount: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Palette: key.NewBinding(key.WithKeys(":"), key.WithHelp(":", "palette")),
		Quit:    key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Pause, k.Stop, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Start, k.Pause, k.Stop},
		{k.Remount, k.Palette},
		{k.Help, k.Quit},
	}
}

// ─── model ───────────────────────────────────────────────────────────────────

// Model renders one tab's mining session. Every mutation goes through the mirror; the
// model only keeps the last view it was handed.
type Model struct {
	mirror  mirrorPort
	title   string
	view    mirrordto.ViewOutput
	notice  *mirrordto.NoticeOutput
	busy    bool
	keys    keyMap
	help    help.Model
	spinner spinner.Model
	palette components.Palette

	showHelp bool
	status   string
	width    int
	height   int
}

func NewModel(mirror mirrorPort, title string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Peach)
	return Model{
		mirror:  mirror,
		title:   title,
		view:    mirror.View(),
		keys:    defaultKeys(),
		help:    help.New(),
		spinner: sp,
		palette: components.NewPalette(),
		status:  "mounting",
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.actionCmd("mount", m.mirror.Mount),
		m.waitEvent(),
		tick(),
		m.spinner.Tick,
	)
}

// ─── update ───────────────────────────────────────────────────────────────────

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.palette.Visible() {
		if _, isKey := msg.(tea.KeyMsg); isKey {
			var cmd tea.Cmd
			m.palette, cmd = m.palette.Update(msg)
			return m, cmd
		}
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.palette.SetWidth(min(m.width-4, 64))
		m.help.Width = m.width

	case tickMsg:
		m.view = m.mirror.View()
		return m, tick()

	case eventMsg:
		if !msg.ok {
			m.status = "mirror closed"
			return m, nil
		}
		m.view = msg.event.View
		if msg.event.Notice != nil {
			m.notice = msg.event.Notice
		}
		return m, m.waitEvent()

	case actionMsg:
		m.busy = false
		m.view = msg.view
		if msg.err != nil {
			m.status = msg.label + " failed"
		} else {
			m.status = msg.label + " ok"
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case components.PaletteSubmitMsg:
		return m.executePalette(msg.Input)

	case components.PaletteCancelMsg:
		m.status = "ready"

	case tea.KeyMsg:
		if m.showHelp {
			if key.Matches(msg, m.keys.Help) || msg.String() == "esc" {
				m.showHelp = false
			}
			return m, nil
		}
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.showHelp = true
		case key.Matches(msg, m.keys.Palette):
			return m, m.palette.Open()
		case key.Matches(msg, m.keys.Start):
			return m.run("start", m.mirror.Start)
		case key.Matches(msg, m.keys.Pause):
			return m.run("pause/resume", m.mirror.TogglePause)
		case key.Matches(msg, m.keys.Stop):
			return m.run("stop", m.mirror.Stop)
		case key.Matches(msg, m.keys.Remount):
			return m.run("reload", m.mirror.Mount)
		}
	}
	return m, nil
}

func (m Model) run(label string, fn func(context.Context) (mirrordto.ViewOutput, error)) (tea.Model, tea.Cmd) {
	if m.busy {
		m.status = "busy"
		return m, nil
	}
	m.busy = true
	m.status = label + "…"
	return m, tea.Batch(m.actionCmd(label, fn), m.spinner.Tick)
}

// ─── palette execution ────────────────────────────────────────────────────────

func (m Model) executePalette(input string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return m, nil
	}
	switch parts[0] {
	case "mining:start":
		return m.run("start", m.mirror.Start)
	case "mining:pause":
		return m.run("pause", m.mirror.Pause)
	case "mining:resume":
		return m.run("resume", m.mirror.Resume)
	case "mining:stop":
		return m.run("stop", m.mirror.Stop)
	case "mining:remount":
		return m.run("reload", m.mirror.Mount)
	case "notice:clear":
		m.notice = nil
		m.status = "ready"
	default:
		m.status = "unknown command: " + parts[0]
	}
	return m, nil
}

// ─── view ────────────────────────────────────────────────────────────────────

func (m Model) View() string {
	header := m.renderHeader()
	statusBar := m.renderStatusBar()
	contentH := m.height - lipgloss.Height(header) - lipgloss.Height(statusBar)
	if contentH < 1 {
		contentH = 1
	}

	var content string
	switch {
	case m.showHelp:
		content = lipgloss.NewStyle().Width(m.width).Height(contentH).Render(m.help.View(m.keys))
	case m.palette.Visible():
		content = lipgloss.Place(m.width, contentH, lipgloss.Center, lipgloss.Center, m.palette.View())
	default:
		content = m.renderSession()
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
}

func (m Model) renderHeader() string {
	bus := theme.Bad.Render("○ solo")
	if m.view.BusConnected {
		bus = theme.Good.Render("● synced")
	}
	bar := theme.Title.Render(m.title) + "  " + theme.Badge(m.view.Snapshot.Status) + "  " + bus
	return lipgloss.NewStyle().Background(theme.Mantle).Width(m.width).Render(bar) + "\n"
}

func (m Model) renderSession() string {
	s := m.view.Snapshot
	var sb strings.Builder
	sb.WriteString(theme.Clock.Render(FormatDuration(s.Duration)) + "\n\n")
	sb.WriteString(row("session", valueOr(s.SessionID, "none")))
	sb.WriteString(row("earned", m.view.SessionEarnings))
	sb.WriteString(row("daily", m.view.ProjectedDaily))
	if s.PausedDuration > 0 {
		sb.WriteString(row("paused", FormatDuration(s.PausedDuration)))
	}
	if s.Status == "paused" && s.PausedAtMs > 0 {
		sb.WriteString(row("since", time.UnixMilli(s.PausedAtMs).Local().Format("15:04:05")))
	}
	if m.notice != nil {
		style := theme.Muted
		if m.notice.Level == "error" {
			style = theme.Bad
		}
		sb.WriteString("\n" + style.Render(m.notice.Title) + "\n" + theme.Muted.Render(m.notice.Message) + "\n")
	}

	pane := theme.Pane
	if s.Status == "active" {
		pane = theme.PaneActive
	}
	w := m.width - 4
	if w < 30 {
		w = 40
	}
	return pane.Width(w).Render(sb.String())
}

func (m Model) renderStatusBar() string {
	left := m.status
	if m.busy {
		left = m.spinner.View() + " " + left
	}
	right := theme.Muted.Render("s:start  p:pause  x:stop  ?:help  q:quit")
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return "\n" + lipgloss.NewStyle().Background(theme.Mantle).Width(m.width).Render(left+strings.Repeat(" ", gap)+right)
}

// FormatDuration renders whole seconds as HH:MM:SS; hours are not wrapped at 24.
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}

func row(label, value string) string {
	return theme.Muted.Render(fmt.Sprintf("%-8s", label)) + " " + value + "\n"
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// ─── async commands ───────────────────────────────────────────────────────────

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) waitEvent() tea.Cmd {
	events := m.mirror.Events()
	return func() tea.Msg {
		event, ok := <-events
		return eventMsg{event: event, ok: ok}
	}
}

func (m Model) actionCmd(label string, fn func(context.Context) (mirrordto.ViewOutput, error)) tea.Cmd {
	return func() tea.Msg {
		view, err := fn(context.Background())
		return actionMsg{label: label, view: view, err: err}
	}
}
