package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/jsamuelsen/quotes/internal/app"
	"github.com/jsamuelsen/quotes/internal/domain"
)

var (
	colorAccent = lipgloss.AdaptiveColor{Light: "#0E7490", Dark: "#22D3EE"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
	colorBorder = lipgloss.AdaptiveColor{Light: "#D1D5DB", Dark: "#4B5563"}

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = cellStyle.Foreground(colorMuted)
)

// Table columns.
const (
	colID = iota
	colTimestamp
	colText
	colAuthor
)

// renderQuotes writes quotes as a table. An empty slice prints a notice instead.
func renderQuotes(w io.Writer, quotes []domain.Quote) error {
	if len(quotes) == 0 {
		_, err := fmt.Fprintln(w, "No quotes.")
		return err
	}

	rows := make([][]string, 0, len(quotes))
	for _, q := range quotes {
		rows = append(rows, []string{
			strconv.FormatInt(q.ID, 10),
			domain.FormatTimestamp(q.Timestamp),
			q.Text,
			q.Author,
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorBorder)).
		Headers("ID", "Timestamp", "Quote", "Author").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == colTimestamp, col == colID:
				return mutedStyle
			default:
				return cellStyle
			}
		})

	_, err := fmt.Fprintln(w, t.Render())

	return err
}

func renderPollResult(w io.Writer, url string, r app.PollResult) error {
	_, err := fmt.Fprintf(w, "Fetched %d from %s: %d added, %d skipped\n", r.Fetched, url, r.Added, r.Skipped)
	return err
}
