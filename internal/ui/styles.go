package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/weaksignal/internal/model"
	"github.com/abelbrown/weaksignal/internal/reconcile"
)

// Colors used in the application.
var (
	colorPrimary   = lipgloss.Color("#58a6ff")
	colorSecondary = lipgloss.Color("#8b949e")
	colorMuted     = lipgloss.Color("#484f58")
	colorSuccess   = lipgloss.Color("#3fb950")
	colorFailure   = lipgloss.Color("#f85149")
	colorBorder    = lipgloss.Color("#30363d")
)

// TitleStyle for the dashboard title.
var TitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorPrimary)

// SubjectStyle for the analyzed country / department.
var SubjectStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#c9d1d9"))

// TabStyle for inactive tabs.
var TabStyle = lipgloss.NewStyle().
	Foreground(colorSecondary).
	Padding(0, 1)

// ActiveTabStyle for the selected tab.
var ActiveTabStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("62")).
	Padding(0, 1)

// SectionStyle for section headers inside a tab.
var SectionStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#d2a8ff")).
	MarginTop(1)

// SelectedRow style for the highlighted table row.
var SelectedRow = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("236"))

// DimStyle for secondary text.
var DimStyle = lipgloss.NewStyle().
	Foreground(colorMuted)

// CompleteStyle marks a finished run or scenario.
var CompleteStyle = lipgloss.NewStyle().
	Foreground(colorSuccess).
	Bold(true)

// ErroredStyle marks a failed run or scenario.
var ErroredStyle = lipgloss.NewStyle().
	Foreground(colorFailure).
	Bold(true)

// StatusBar style for the bottom status bar.
var StatusBar = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("236")).
	Padding(0, 1)

// StatusBarKey style for key hints in status bar.
var StatusBarKey = lipgloss.NewStyle().
	Foreground(lipgloss.Color("212")).
	Bold(true)

// StatusBarText style for descriptive text in status bar.
var StatusBarText = lipgloss.NewStyle().
	Foreground(colorSecondary)

// ErrorStyle for displaying errors.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("196")).
	Bold(true).
	Padding(0, 1)

// HelpStyle for placeholder text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(colorSecondary).
	Padding(1, 2)

// DebugPanel style for the debug overlay.
var DebugPanel = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorBorder).
	Padding(1, 2)

// DebugHeaderStyle for section headers in the debug overlay.
var DebugHeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorPrimary)

// bandStyle colours text by risk band.
func bandStyle(b model.Band) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(b.Color()))
}

// phaseStyle colours text by stream phase.
func phaseStyle(p reconcile.Phase) lipgloss.Style {
	switch p {
	case reconcile.PhaseComplete:
		return CompleteStyle
	case reconcile.PhaseErrored:
		return ErroredStyle
	}
	return lipgloss.NewStyle().Foreground(colorPrimary)
}
