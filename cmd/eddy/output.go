package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
)

var (
	headerStyle  = color.New(color.FgCyan, color.Bold)
	blockStyle   = color.New(color.FgMagenta, color.Bold)
	successStyle = color.New(color.FgGreen)
	errorStyle   = color.New(color.FgRed, color.Bold)
	warningStyle = color.New(color.FgYellow)
	mutedStyle   = color.New(color.FgWhite, color.Faint)
)

const (
	bullet    = "•"
	arrow     = "→"
	checkmark = "✓"
	xmark     = "✗"
)

// padCell pads text to the given display width, accounting for wide
// characters.
func padCell(text string, width int) string {
	gap := width - runewidth.StringWidth(text)
	if gap <= 0 {
		return text
	}
	return text + strings.Repeat(" ", gap)
}

// printTable renders rows as aligned columns with a muted header row.
func printTable(header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, cell := range header {
		widths[i] = runewidth.StringWidth(cell)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && runewidth.StringWidth(cell) > widths[i] {
				widths[i] = runewidth.StringWidth(cell)
			}
		}
	}
	var line []string
	for i, cell := range header {
		line = append(line, padCell(cell, widths[i]))
	}
	mutedStyle.Println(strings.Join(line, "  "))
	for _, row := range rows {
		line = line[:0]
		for i, cell := range row {
			line = append(line, padCell(cell, widths[i]))
		}
		fmt.Println(strings.Join(line, "  "))
	}
}

// truncate shortens text to at most width display columns, appending an
// ellipsis when cut.
func truncate(text string, width int) string {
	text = strings.ReplaceAll(text, "\n", " ")
	if runewidth.StringWidth(text) <= width {
		return text
	}
	return runewidth.Truncate(text, width, "…")
}
