package styles

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	PlexOrange = lipgloss.Color("#E5A00D")
	SlateDark  = lipgloss.Color("#1F2937")
	SlateLight = lipgloss.Color("#374151")
	DimGray    = lipgloss.Color("#6B7280")
	LightGray  = lipgloss.Color("#9CA3AF")
	White      = lipgloss.Color("#F9FAFB")
	Green      = lipgloss.Color("#10B981")
	Red        = lipgloss.Color("#EF4444")
	Blue       = lipgloss.Color("#3B82F6")
)

// Borders
var (
	ActiveBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(PlexOrange)

	InactiveBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(DimGray)
)

// Text styles
var (
	TitleStyle = lipgloss.NewStyle().
			Foreground(White).
			Bold(true)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(LightGray)

	DimStyle = lipgloss.NewStyle().
			Foreground(DimGray)

	AccentStyle = lipgloss.NewStyle().
			Foreground(PlexOrange)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Red)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Green)
)

// List item styles
var (
	SelectedItemStyle = lipgloss.NewStyle().
				Foreground(White).
				Background(SlateLight).
				Padding(0, 1)

	NormalItemStyle = lipgloss.NewStyle().
			Foreground(LightGray).
			Padding(0, 1)
)

// Help styles
var (
	HelpKeyStyle = lipgloss.NewStyle().
			Foreground(PlexOrange)

	HelpDescStyle = lipgloss.NewStyle().
			Foreground(DimGray)
)

// Spinner
var (
	SpinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(PlexOrange)
)

// Filter styles
var (
	FilterPromptStyle = lipgloss.NewStyle().
				Foreground(PlexOrange).
				Bold(true)
)

// Progress bar styles
var (
	ProgressFullStyle = lipgloss.NewStyle().
				Foreground(PlexOrange)

	ProgressEmptyStyle = lipgloss.NewStyle().
				Foreground(DimGray)
)

// Watch status indicators
const (
	UnplayedChar   = "●"
	InProgressChar = "◐"
	PlayedChar     = "✓"
)

var (
	UnplayedDot   = lipgloss.NewStyle().Foreground(PlexOrange).Render(UnplayedChar)
	InProgressDot = lipgloss.NewStyle().Foreground(PlexOrange).Render(InProgressChar)
	PlayedCheck   = lipgloss.NewStyle().Foreground(Green).Render(PlayedChar)
)

// RenderWatchStatus renders the watch status indicator for an item.
func RenderWatchStatus(isPlayed bool, viewOffset int64) string {
	if isPlayed {
		return PlayedCheck
	}
	if viewOffset > 0 {
		return InProgressDot
	}
	return UnplayedDot
}

// Truncate shortens a string to the given width with an ellipsis.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width <= 3 {
		return string(runes[:width])
	}
	return string(runes[:width-3]) + "..."
}

// RenderProgressBar renders a percent progress bar of the given width.
func RenderProgressBar(percent float64, width int) string {
	if width < 3 {
		return ""
	}

	filled := int(float64(width) * percent / 100)
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	bar := ""
	for i := 0; i < filled; i++ {
		bar += ProgressFullStyle.Render("█")
	}
	for i := filled; i < width; i++ {
		bar += ProgressEmptyStyle.Render("░")
	}

	return bar
}
