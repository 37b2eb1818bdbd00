package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/jpalmerr/kubetable"
)

// missingCell is shown for columns a row does not have.
const missingCell = "<none>"

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	footerStyle = lipgloss.NewStyle().Faint(true)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// renderView draws one table: a title, the rows under the configured
// columns and a footer with the count and the active query.
func renderView(name string, columns []string, q kubetable.Query, v kubetable.View) string {
	headers := make([]string, len(columns))
	for i, c := range columns {
		headers[i] = strings.ToUpper(c)
	}

	rows := make([][]string, len(v.Entries))
	for i, e := range v.Entries {
		row := make([]string, len(columns))
		for j, c := range columns {
			row[j] = formatCell(e.Table.Value(c))
		}
		rows[i] = row
	}

	t := ltable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == ltable.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...)

	var b strings.Builder
	b.WriteString(titleStyle.Render(name))
	b.WriteString("\n")
	b.WriteString(t.String())
	b.WriteString("\n")
	b.WriteString(footerStyle.Render(footer(q, v)))
	b.WriteString("\n")
	return b.String()
}

// footer summarizes the view, e.g.
// "12 of 1,204 resources · namespace=prod · sort=age desc".
func footer(q kubetable.Query, v kubetable.View) string {
	noun := "resources"
	if v.Total == 1 {
		noun = "resource"
	}
	count := humanize.Comma(int64(v.Total))
	if shown := len(v.Entries); shown != v.Total {
		count = humanize.Comma(int64(shown)) + " of " + count
	}
	parts := []string{count + " " + noun}

	if q.Namespace != "" {
		parts = append(parts, "namespace="+q.Namespace)
	}
	if q.Search != "" {
		parts = append(parts, fmt.Sprintf("search=%q in %s", q.Search, q.Scope))
	}
	order := "asc"
	if !q.Ascending {
		order = "desc"
	}
	parts = append(parts, fmt.Sprintf("sort=%s %s", q.SortKey, order))
	return strings.Join(parts, " · ")
}

// formatCell renders a row value for the terminal.
func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return missingCell
	case string:
		if val == "" {
			return missingCell
		}
		return val
	case kubetable.Age:
		return val.Text
	case time.Time:
		return humanize.Time(val)
	case int:
		return humanize.Comma(int64(val))
	case int64:
		return humanize.Comma(val)
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1e15 {
			return humanize.Comma(int64(val))
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
