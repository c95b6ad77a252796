package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/flixor/flixor/internal/streaming"
	"github.com/flixor/flixor/internal/tui/styles"
)

// View renders the active screen
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var body string
	switch m.view {
	case viewAuth:
		body = m.renderAuth()
	case viewServers:
		body = m.renderServers()
	case viewBrowse:
		body = m.renderBrowse()
	case viewPlaying:
		body = m.renderPlaying()
	}

	header := m.renderHeader()
	footer := m.renderFooter()

	bodyHeight := m.height - chromeHeight
	body = lipgloss.NewStyle().Height(bodyHeight).MaxHeight(bodyHeight).Render(body)

	return header + "\n\n" + body + "\n" + footer
}

func (m Model) renderHeader() string {
	left := styles.AccentStyle.Bold(true).Render("flixor")

	var right string
	if user := m.core.User(); user != nil {
		right = user.Username
		if server := m.core.Server(); server != nil {
			right += " @ " + server.Name
		}
		right = styles.DimStyle.Render(right)
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func (m Model) renderAuth() string {
	var sb strings.Builder

	sb.WriteString(styles.TitleStyle.Render("Link this device"))
	sb.WriteString("\n\n")

	if m.pin == nil {
		sb.WriteString(m.spinner() + " " + styles.DimStyle.Render("Requesting PIN..."))
	} else {
		sb.WriteString(styles.SubtitleStyle.Render("Visit "))
		sb.WriteString(styles.AccentStyle.Render("https://plex.tv/link"))
		sb.WriteString(styles.SubtitleStyle.Render(" and enter:"))
		sb.WriteString("\n\n")

		code := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(styles.PlexOrange).
			Padding(0, 3).
			Bold(true).
			Foreground(styles.White).
			Render(m.pin.Code)
		sb.WriteString(code)
		sb.WriteString("\n\n")
		sb.WriteString(m.spinner() + " " + styles.DimStyle.Render("Waiting for authorization..."))
	}

	return lipgloss.Place(m.width, m.height-chromeHeight,
		lipgloss.Center, lipgloss.Center,
		sb.String())
}

func (m Model) renderServers() string {
	if m.loading && len(m.servers.Items()) == 0 {
		return m.spinner() + " " + styles.DimStyle.Render("Loading servers...")
	}
	return m.servers.View()
}

func (m Model) renderBrowse() string {
	if m.loading && m.browse.itemCount() == 0 {
		return m.spinner() + " " + styles.DimStyle.Render("Loading library...")
	}
	return m.browse.view()
}

func (m Model) renderPlaying() string {
	dec := m.decision()

	var sb strings.Builder
	sb.WriteString(styles.TitleStyle.Render(m.playing.DisplayTitle()))
	if m.playing.Year > 0 {
		sb.WriteString(styles.DimStyle.Render(fmt.Sprintf(" (%d)", m.playing.Year)))
	}
	sb.WriteString("\n\n")

	if m.playbackErr != nil {
		sb.WriteString(styles.ErrorStyle.Render("Playback failed: " + m.playbackErr.Error()))
		sb.WriteString("\n\n")
		sb.WriteString(styles.DimStyle.Render("Press "))
		sb.WriteString(styles.HelpKeyStyle.Render("s"))
		sb.WriteString(styles.DimStyle.Render(" to go back"))
		return styles.InactiveBorder.Padding(1, 2).Render(sb.String())
	}

	if dec != nil {
		sb.WriteString(renderDecision(dec))
		sb.WriteString("\n")
	}

	// State and assumed position
	state := m.playbackState.String()
	if m.loading {
		state = m.spinner() + " " + state
	}
	sb.WriteString(styles.SubtitleStyle.Render("State      "))
	sb.WriteString(styles.AccentStyle.Render(state))
	sb.WriteString("\n\n")

	if m.duration > 0 {
		percent := float64(m.position) / float64(m.duration) * 100
		barWidth := m.width - 30
		if barWidth > 60 {
			barWidth = 60
		}
		sb.WriteString(styles.RenderProgressBar(percent, barWidth))
		sb.WriteString(styles.DimStyle.Render(fmt.Sprintf("  %s / %s",
			formatDuration(m.position), formatDuration(m.duration))))
		sb.WriteString("\n")
	}

	return styles.ActiveBorder.Padding(1, 2).Render(sb.String())
}

// renderDecision summarizes how the server decided to deliver the item.
func renderDecision(dec *streaming.Decision) string {
	var sb strings.Builder

	method := strings.ToUpper(dec.Method.String())
	sb.WriteString(styles.SubtitleStyle.Render("Delivery   "))
	sb.WriteString(styles.AccentStyle.Bold(true).Render(method))
	sb.WriteString("\n")

	sb.WriteString(styles.SubtitleStyle.Render("Video      "))
	sb.WriteString(styles.TitleStyle.Render(dec.VideoCodec))
	if dec.VideoDecision != "" {
		sb.WriteString(styles.DimStyle.Render(" · " + dec.VideoDecision))
	}
	sb.WriteString("\n")

	sb.WriteString(styles.SubtitleStyle.Render("Audio      "))
	sb.WriteString(styles.TitleStyle.Render(dec.AudioCodec))
	if dec.AudioDecision != "" {
		sb.WriteString(styles.DimStyle.Render(" · " + dec.AudioDecision))
	}
	sb.WriteString("\n")

	var verdicts []string
	if dec.CanDirectPlay {
		verdicts = append(verdicts, "direct play ok")
	}
	if dec.CanDirectStream {
		verdicts = append(verdicts, "direct stream ok")
	}
	if dec.WillTranscode {
		verdicts = append(verdicts, "transcode required")
	}
	if len(verdicts) > 0 {
		sb.WriteString(styles.SubtitleStyle.Render("Verdict    "))
		sb.WriteString(styles.DimStyle.Render(strings.Join(verdicts, ", ")))
		sb.WriteString("\n")
	}

	if dec.SessionID != "" {
		sb.WriteString(styles.SubtitleStyle.Render("Session    "))
		sb.WriteString(styles.DimStyle.Render(dec.SessionID))
		sb.WriteString("\n")
	}

	return sb.String()
}

func (m Model) renderFooter() string {
	var left string
	switch {
	case m.searching:
		left = m.searchInput.View()
	case m.loading:
		text := m.status
		if text == "" {
			text = "Loading..."
		}
		left = m.spinner() + " " + styles.DimStyle.Render(text)
	case m.status != "":
		if m.statusIsErr {
			left = styles.ErrorStyle.Render(m.status)
		} else {
			left = styles.DimStyle.Render(m.status)
		}
	}

	right := m.footerHints()

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

// footerHints lists the keys that matter on the active screen.
func (m Model) footerHints() string {
	hint := func(k, desc string) string {
		return styles.HelpKeyStyle.Render(k) + styles.HelpDescStyle.Render(" "+desc)
	}
	sep := styles.HelpDescStyle.Render("  ")

	switch m.view {
	case viewAuth:
		return hint("q", "quit")
	case viewServers:
		return strings.Join([]string{hint("↑/↓", "move"), hint("enter", "connect"), hint("q", "quit")}, sep)
	case viewBrowse:
		if m.searching {
			return strings.Join([]string{hint("enter", "search"), hint("esc", "cancel")}, sep)
		}
		if m.browse.typing {
			return strings.Join([]string{hint("enter", "apply"), hint("esc", "clear")}, sep)
		}
		if m.browse.filtering() || len(m.browseStack) > 0 {
			return strings.Join([]string{hint("esc", "back"), hint("enter", "open"), hint("q", "quit")}, sep)
		}
		return strings.Join([]string{hint("/", "filter"), hint("f", "search"), hint("enter", "open"), hint("q", "quit")}, sep)
	case viewPlaying:
		if m.playbackErr != nil {
			return strings.Join([]string{hint("s", "back"), hint("q", "quit")}, sep)
		}
		return strings.Join([]string{
			hint("space", "pause"),
			hint("←/→", "position"),
			hint("t", "force transcode"),
			hint("s", "stop"),
		}, sep)
	}
	return ""
}

// formatDuration renders a duration as H:MM:SS, or MM:SS under an hour.
func formatDuration(d time.Duration) string {
	total := int64(d.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
