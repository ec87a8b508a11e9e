package tui

import "github.com/charmbracelet/lipgloss"

const (
	ColorBorder        = "#3A3F55"
	ColorPrimaryText   = "#E6EAF2"
	ColorSecondaryText = "#B1B8C7"
	ColorMutedText     = "#6D7383"
	ColorHelpText      = "240"
	ColorAccent        = "#7C3AED"
	ColorAccentBright  = "#A78BFA"
	ColorError         = "#EF4444"
	ColorSuccess       = "#22C55E"
	ColorWarning       = "#F59E0B"
)

const (
	columnWidth = 28
	columnGap   = 2
	// columnHeaderLines is the column name plus its rule.
	columnHeaderLines = 2
	titleLines        = 1
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorAccentBright))
	filterStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSecondaryText))

	columnStyle       = lipgloss.NewStyle().Width(columnWidth).MarginRight(columnGap)
	columnHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(ColorPrimaryText))
	ruleStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorBorder))

	cardStyle     = lipgloss.NewStyle().Width(columnWidth).Foreground(lipgloss.Color(ColorPrimaryText))
	selectedStyle = cardStyle.Background(lipgloss.Color(ColorAccent))
	draggedStyle  = cardStyle.Foreground(lipgloss.Color(ColorMutedText)).Italic(true)
	hoverStyle    = cardStyle.Foreground(lipgloss.Color(ColorAccentBright)).Bold(true)
	busyStyle     = cardStyle.Foreground(lipgloss.Color(ColorWarning))

	errorToastStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError))
	successToastStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSuccess))
	helpStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorHelpText))

	detailLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSecondaryText)).Width(12)
)
