package main

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/krinkinmu/aarch64/memory/memmap"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	freeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	reservedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle      = lipgloss.NewStyle().Faint(true)
)

func header(s string) string {
	if noColor {
		return s
	}
	return headerStyle.Render(s)
}

func dim(s string) string {
	if noColor {
		return s
	}
	return dimStyle.Render(s)
}

func status(s memmap.Status) string {
	if noColor {
		return s.String()
	}
	if s == memmap.Free {
		return freeStyle.Render(s.String())
	}
	return reservedStyle.Render(s.String())
}
