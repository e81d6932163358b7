package output

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	colorPrimary   = lipgloss.Color("#7C3AED") // Purple
	colorSecondary = lipgloss.Color("#06B6D4") // Cyan
	colorSuccess   = lipgloss.Color("#10B981") // Green
	colorWarning   = lipgloss.Color("#F59E0B") // Amber
	colorError     = lipgloss.Color("#EF4444") // Red
	colorTextMuted = lipgloss.Color("#9CA3AF") // Medium gray
	colorBorder    = lipgloss.Color("#374151") // Border gray
)

// styles are bound to one writer's renderer, so output to a file or
// buffer is plain text while a terminal gets colors.
type styles struct {
	title   lipgloss.Style
	section lipgloss.Style
	label   lipgloss.Style
	muted   lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	bad     lipgloss.Style
	cell    lipgloss.Style
	header  lipgloss.Style
	border  lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title:   r.NewStyle().Foreground(colorPrimary).Bold(true),
		section: r.NewStyle().Foreground(colorSecondary).Bold(true),
		label:   r.NewStyle().Bold(true),
		muted:   r.NewStyle().Foreground(colorTextMuted),
		ok:      r.NewStyle().Foreground(colorSuccess).Bold(true),
		warn:    r.NewStyle().Foreground(colorWarning).Bold(true),
		bad:     r.NewStyle().Foreground(colorError).Bold(true),
		cell:    r.NewStyle().Padding(0, 1),
		header:  r.NewStyle().Padding(0, 1).Bold(true),
		border:  r.NewStyle().Foreground(colorBorder),
	}
}

// status picks ok, warn or bad for a count that should be zero.
func (s styles) status(n int, severe bool) lipgloss.Style {
	switch {
	case n == 0:
		return s.ok
	case severe:
		return s.bad
	default:
		return s.warn
	}
}

// grid renders rows as a bordered table.
func (s styles) grid(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(s.border).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.header
			}
			return s.cell
		}).
		String()
}
