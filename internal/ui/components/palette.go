package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"minesync/internal/ui/theme"
)

// PaletteSubmitMsg is emitted when the user confirms a command.
type PaletteSubmitMsg struct{ Input string }

// PaletteCancelMsg is emitted when the user presses esc.
type PaletteCancelMsg struct{}

var (
	paletteStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.Peach).
			Background(theme.Mantle).
			Foreground(theme.Text).
			Padding(0, 1)

	hintStyle = lipgloss.NewStyle().Foreground(theme.Subtext0)
	pickStyle = lipgloss.NewStyle().Foreground(theme.Lavender).Bold(true)
)

type hint struct {
	command string
	summary string
}

// hints must stay in sync with the switch in tab/model.go executePalette.
var paletteHints = []hint{
	{"mining:start", "start a session"},
	{"mining:pause", "pause the open session"},
	{"mining:resume", "resume the paused session"},
	{"mining:stop", "stop and settle"},
	{"mining:remount", "reload from the server"},
	{"notice:clear", "dismiss the last notice"},
}

// Palette is a command-palette overlay backed by bubbles/textinput. Tab completes the
// first matching command.
type Palette struct {
	input   textinput.Model
	visible bool
	width   int
}

func NewPalette() Palette {
	ti := textinput.New()
	ti.Placeholder = "mining:…"
	ti.CharLimit = 64
	return Palette{input: ti}
}

func (p Palette) Visible() bool { return p.visible }

// Open shows the palette with an empty input and returns the focus command.
func (p *Palette) Open() tea.Cmd {
	p.visible = true
	p.input.SetValue("")
	return p.input.Focus()
}

func (p *Palette) SetWidth(w int) { p.width = w }

func (p Palette) Update(msg tea.Msg) (Palette, tea.Cmd) {
	if !p.visible {
		return p, nil
	}
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "esc":
			p.close()
			return p, func() tea.Msg { return PaletteCancelMsg{} }
		case "enter":
			val := strings.TrimSpace(p.input.Value())
			p.close()
			return p, func() tea.Msg { return PaletteSubmitMsg{Input: val} }
		case "tab":
			if matches := matching(p.input.Value()); len(matches) > 0 {
				p.input.SetValue(matches[0].command)
				p.input.CursorEnd()
			}
			return p, nil
		}
	}
	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	return p, cmd
}

func (p *Palette) close() {
	p.visible = false
	p.input.Blur()
}

func (p Palette) View() string {
	if !p.visible {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(theme.Title.Render("Command") + "\n")
	sb.WriteString(": " + p.input.View() + "\n")
	if matches := matching(p.input.Value()); len(matches) > 0 {
		sb.WriteString("\n")
		for i, h := range matches {
			name := hintStyle.Render("  " + h.command)
			if i == 0 {
				name = pickStyle.Render("› " + h.command)
			}
			sb.WriteString(name + hintStyle.Render("  "+h.summary) + "\n")
		}
	}

	w := p.width
	if w < 20 {
		w = 56
	}
	return paletteStyle.Width(w - 2).Render(sb.String())
}

func matching(input string) []hint {
	prefix := strings.ToLower(strings.TrimSpace(input))
	out := make([]hint, 0, len(paletteHints))
	for _, h := range paletteHints {
		if prefix == "" || strings.HasPrefix(h.command, prefix) {
			out = append(out, h)
		}
	}
	return out
}
