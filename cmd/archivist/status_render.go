package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"archivist/internal/status"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

// infoStatus marks neutral lines; it is not a status code so it paints blue.
const infoStatus = "INFO"

var (
	titleCaser = cases.Title(language.English)

	palette = map[status.Code]string{
		status.Started: ansiBlue,
		status.OK:      ansiGreen,
		status.Warning: ansiYellow,
		status.KO:      ansiRed,
		status.Fatal:   ansiRed,
	}
)

// statusLabel renders a status name for humans: WARNING becomes Warning.
func statusLabel(name string) string {
	if name = strings.TrimSpace(name); name == "" {
		return "-"
	}
	return titleCaser.String(strings.ToLower(name))
}

func paint(text, statusName string, colorize bool) string {
	if !colorize {
		return text
	}
	color := ansiBlue
	if code, err := status.ParseCode(statusName); err == nil {
		color = palette[code]
	} else if !strings.EqualFold(statusName, infoStatus) {
		return text
	}
	return color + text + ansiReset
}

func colorStatus(name string, colorize bool) string {
	return paint(statusLabel(name), name, colorize)
}

// renderStatusLine prints "  Label:   [Status] message" with the label
// column padded to a fixed width.
func renderStatusLine(label, statusName, message string, colorize bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  %-20s [%s]", label+":", statusLabel(statusName))
	if message != "" {
		b.WriteString(" " + message)
	}
	return paint(b.String(), statusName, colorize)
}

func renderSectionHeader(title string, colorize bool) []string {
	heading := "== " + strings.TrimSpace(title) + " =="
	lines := []string{heading, strings.Repeat("-", len(heading))}
	for i := range lines {
		lines[i] = paint(lines[i], infoStatus, colorize)
	}
	return lines
}

func shouldColorize(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
