package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/desertwitch/posixrt/internal/posix"
	"github.com/desertwitch/posixrt/internal/walker"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

//nolint:gochecknoglobals
var (
	kindStyle = lipgloss.NewStyle().Width(4).Bold(true)

	kindColors = map[int]lipgloss.Color{
		posix.FTW_F:   lipgloss.Color("#FAFAFA"),
		posix.FTW_D:   lipgloss.Color("#7D56F4"),
		posix.FTW_DP:  lipgloss.Color("#7D56F4"),
		posix.FTW_DNR: lipgloss.Color("#F25D94"),
		posix.FTW_NS:  lipgloss.Color("#F25D94"),
		posix.FTW_SL:  lipgloss.Color("#04B575"),
		posix.FTW_SLN: lipgloss.Color("#F25D94"),
	}

	sizeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA")).Background(lipgloss.Color("#7D56F4")).Padding(0, 1)
)

func kindName(typ int) string {
	return walker.Kind(typ).String()
}

func formatEntry(path string, info os.FileInfo, typ int, level int) string {
	tag := kindStyle.Foreground(kindColors[typ]).Render(kindName(typ))

	var b strings.Builder

	b.WriteString(tag)
	b.WriteString(strings.Repeat("  ", level))
	b.WriteString(path)

	if typ == posix.FTW_F && info != nil {
		b.WriteString(" ")
		b.WriteString(sizeStyle.Render(humanize.IBytes(uint64(info.Size())))) //nolint:gosec
	}

	return b.String()
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}

	return nil
}
