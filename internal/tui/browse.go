package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sahilm/fuzzy"

	"github.com/flixor/flixor/internal/domain"
	"github.com/flixor/flixor/internal/tui/styles"
)

// browseList is a scrolling media list with an incremental fuzzy filter.
type browseList struct {
	items       []domain.MediaItem
	filteredIdx []int // indexes into items, nil when no filter is active
	cursor      int
	offset      int
	width       int
	height      int

	filterInput textinput.Model
	typing      bool // filter input has focus
}

func newBrowseList() browseList {
	ti := textinput.New()
	ti.Prompt = "/"
	ti.PromptStyle = styles.FilterPromptStyle
	ti.CharLimit = 64

	return browseList{filterInput: ti}
}

func (b *browseList) setItems(items []domain.MediaItem) {
	b.items = items
	b.cursor = 0
	b.offset = 0
	b.filteredIdx = nil
	b.filterInput.SetValue("")
}

// restore replaces the rows and puts the cursor back on a remembered row.
func (b *browseList) restore(items []domain.MediaItem, cursor int) {
	b.setItems(items)
	if cursor >= len(items) {
		cursor = len(items) - 1
	}
	if cursor < 0 {
		cursor = 0
	}
	b.cursor = cursor
	if b.cursor >= b.visibleCount() {
		b.offset = b.cursor - b.visibleCount() + 1
	}
}

func (b *browseList) setSize(width, height int) {
	b.width = width
	b.height = height
}

// visibleCount is the number of rows the list body can show.
func (b *browseList) visibleCount() int {
	// One line is reserved for the filter / header row.
	n := b.height - 1
	if n < 1 {
		n = 1
	}
	return n
}

func (b *browseList) itemCount() int {
	if b.filteredIdx != nil {
		return len(b.filteredIdx)
	}
	return len(b.items)
}

// itemAt resolves a display position to the underlying item.
func (b *browseList) itemAt(pos int) *domain.MediaItem {
	if pos < 0 || pos >= b.itemCount() {
		return nil
	}
	if b.filteredIdx != nil {
		return &b.items[b.filteredIdx[pos]]
	}
	return &b.items[pos]
}

// selected returns the item under the cursor.
func (b *browseList) selected() *domain.MediaItem {
	return b.itemAt(b.cursor)
}

func (b *browseList) moveUp() {
	if b.cursor > 0 {
		b.cursor--
	}
	if b.cursor < b.offset {
		b.offset = b.cursor
	}
}

func (b *browseList) moveDown() {
	if b.cursor < b.itemCount()-1 {
		b.cursor++
	}
	if b.cursor >= b.offset+b.visibleCount() {
		b.offset = b.cursor - b.visibleCount() + 1
	}
}

func (b *browseList) startFilter() tea.Cmd {
	b.typing = true
	return b.filterInput.Focus()
}

// acceptFilter leaves typing mode but keeps the narrowed rows.
func (b *browseList) acceptFilter() {
	b.typing = false
	b.filterInput.Blur()
}

// clearFilter drops the filter and restores the full list.
func (b *browseList) clearFilter() {
	b.typing = false
	b.filteredIdx = nil
	b.filterInput.SetValue("")
	b.filterInput.Blur()
	b.cursor = 0
	b.offset = 0
}

func (b *browseList) filtering() bool {
	return b.typing || b.filteredIdx != nil
}

// handleFilterKey feeds a key to the filter input and re-narrows the list.
func (b *browseList) handleFilterKey(msg tea.KeyMsg) tea.Cmd {
	var cmd tea.Cmd
	b.filterInput, cmd = b.filterInput.Update(msg)
	b.applyFilter()
	return cmd
}

// applyFilter narrows the rows with case-insensitive fuzzy matching.
func (b *browseList) applyFilter() {
	query := b.filterInput.Value()
	if query == "" {
		b.filteredIdx = nil
		b.cursor = 0
		b.offset = 0
		return
	}

	titles := make([]string, len(b.items))
	for i, item := range b.items {
		titles[i] = strings.ToLower(item.DisplayTitle())
	}

	matches := fuzzy.Find(strings.ToLower(query), titles)

	b.filteredIdx = make([]int, len(matches))
	for i, match := range matches {
		b.filteredIdx[i] = match.Index
	}

	b.cursor = 0
	b.offset = 0
}

// view renders the filter row and the visible slice of the list.
func (b *browseList) view() string {
	var sb strings.Builder

	switch {
	case b.typing:
		sb.WriteString(b.filterInput.View())
	case b.filteredIdx != nil:
		sb.WriteString(styles.AccentStyle.Render("/" + b.filterInput.Value()))
		sb.WriteString(styles.DimStyle.Render(fmt.Sprintf("  %d/%d", b.itemCount(), len(b.items))))
	default:
		sb.WriteString(styles.DimStyle.Render(fmt.Sprintf("%d items", len(b.items))))
	}
	sb.WriteString("\n")

	end := b.offset + b.visibleCount()
	if end > b.itemCount() {
		end = b.itemCount()
	}

	for pos := b.offset; pos < end; pos++ {
		item := b.itemAt(pos)
		sb.WriteString(b.renderRow(*item, pos == b.cursor))
		if pos < end-1 {
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// renderRow renders one list row: watch status, title, year and quality.
func (b *browseList) renderRow(item domain.MediaItem, selected bool) string {
	status := styles.RenderWatchStatus(item.IsPlayed, int64(item.ViewOffset))

	title := item.DisplayTitle()
	if item.Year > 0 && item.Type == domain.MediaTypeMovie {
		title = fmt.Sprintf("%s (%d)", title, item.Year)
	}

	meta := item.Resolution()
	if item.VideoCodec != "" {
		if meta != "" {
			meta += " "
		}
		meta += item.VideoCodec
	}

	// status dot + paddings + metadata suffix
	room := b.width - 6 - len(meta)
	title = styles.Truncate(title, room)

	line := fmt.Sprintf("%s %s", status, title)
	if meta != "" {
		line = fmt.Sprintf("%s  %s", line, styles.DimStyle.Render(meta))
	}

	if selected {
		return styles.SelectedItemStyle.Render("▸ " + line)
	}
	return styles.NormalItemStyle.Render("  " + line)
}
