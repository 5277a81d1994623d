// Package dashboard renders a live terminal view of a playback session: pool
// membership, sync state and drift.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/zsiec/framesync/internal/playback/avsync"
	"github.com/zsiec/framesync/internal/playback/pool"
)

const historySize = 60

// Stats is one sample of everything the dashboard shows.
type Stats struct {
	SessionID string
	Pool      pool.Snapshot
	Sync      avsync.Stats
	Presented int64
	Ticks     int64
	Restarts  int64
	Elapsed   time.Duration
}

// Collector gathers a Stats sample. It is called from the UI goroutine.
type Collector func() Stats

// Model is the bubbletea model of the dashboard.
type Model struct {
	collect  Collector
	interval time.Duration

	stats        Stats
	driftHistory []float64
	readyHistory []float64

	width    int
	height   int
	quitting bool
}

type tickMsg time.Time
type statsMsg Stats

func New(collect Collector, interval time.Duration) *Model {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &Model{collect: collect, interval: interval}
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(tickEvery(m.interval), m.fetch())
}

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, m.fetch()
		}

	case tickMsg:
		if m.quitting {
			return m, nil
		}
		return m, tea.Batch(tickEvery(m.interval), m.fetch())

	case statsMsg:
		m.stats = Stats(msg)
		m.driftHistory = appendHistory(m.driftHistory, float64(msg.Sync.LastDriftMs))
		m.readyHistory = appendHistory(m.readyHistory, float64(msg.Pool.States[pool.StateReady.String()]))
	}

	return m, nil
}

// View implements tea.Model
func (m *Model) View() string {
	if m.quitting {
		return "Shutting down dashboard...\n"
	}

	width := m.width
	if width == 0 {
		width = 100
	}
	panelWidth := (width - 3) / 2
	if panelWidth < 30 {
		panelWidth = width - 2
	}

	header := HeaderStyle.Width(width - 2).Render(
		fmt.Sprintf("FRAMESYNC  session %s  %s", shortID(m.stats.SessionID), formatDuration(m.stats.Elapsed)))

	poolPanel := m.renderPoolPanel(panelWidth)
	syncPanel := m.renderSyncPanel(panelWidth)

	var body string
	if panelWidth == width-2 {
		body = lipgloss.JoinVertical(lipgloss.Left, poolPanel, syncPanel)
	} else {
		body = lipgloss.JoinHorizontal(lipgloss.Top, poolPanel, " ", syncPanel)
	}

	footer := MutedStyle.Render("q quit · r refresh")
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m *Model) renderPoolPanel(width int) string {
	snap := m.stats.Pool
	barWidth := width - 26
	if barWidth < 5 {
		barWidth = 5
	}

	lines := []string{
		PanelTitleStyle.Render("FRAME POOL"),
		fmt.Sprintf("%s %dx%d  refs %d", InfoStyle.Render(snap.Format), snap.Width, snap.Height, snap.ReferenceFrames),
		fmt.Sprintf("capacity %s  allocated %s",
			ValueStyle.Render(fmt.Sprint(snap.Capacity)), ValueStyle.Render(fmt.Sprint(snap.Allocated))),
	}
	for _, st := range []pool.State{
		pool.StateUnused, pool.StateDecoding, pool.StateReady,
		pool.StateDisplaying, pool.StateDisplayed, pool.StateReference,
	} {
		n := snap.States[st.String()]
		lines = append(lines, fmt.Sprintf("%-10s %3d %s", st, n, renderMiniBar(n, snap.Capacity, barWidth)))
	}

	inconsistent := SuccessStyle.Render("0")
	if snap.Inconsistent > 0 {
		inconsistent = ErrorStyle.Render(formatNumber(snap.Inconsistent))
	}
	lines = append(lines,
		fmt.Sprintf("inconsistent %s  destroyed %s  restarts %d",
			inconsistent, formatNumber(snap.Destroyed), m.stats.Restarts),
		"ready "+renderSparkline(m.readyHistory, barWidth),
	)

	return PanelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m *Model) renderSyncPanel(width int) string {
	s := m.stats.Sync
	sparkWidth := width - 12
	if sparkWidth < 5 {
		sparkWidth = 5
	}

	lines := []string{
		PanelTitleStyle.Render("A/V SYNC"),
		WaitStateBadge(s.State),
		fmt.Sprintf("shown %s  dropped %s  (%s)",
			ValueStyle.Render(formatNumber(s.FramesShown)),
			ValueStyle.Render(formatNumber(s.FramesDropped)),
			dropRate(s.FramesDropped, s.FramesShown+s.FramesDropped)),
		fmt.Sprintf("drift %s  offset %dms", driftStyle(s.LastDriftMs).Render(fmt.Sprintf("%+dms", s.LastDriftMs)), s.ManualOffsetMs),
		fmt.Sprintf("presented %d / %d ticks", m.stats.Presented, m.stats.Ticks),
		"drift " + renderSparkline(m.driftHistory, sparkWidth),
	}

	return PanelStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m *Model) fetch() tea.Cmd {
	collect := m.collect
	return func() tea.Msg {
		return statsMsg(collect())
	}
}

func tickEvery(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Run shows the dashboard until the user quits or ctx is done.
func Run(ctx context.Context, m *Model) error {
	p := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen())
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

func appendHistory(h []float64, v float64) []float64 {
	h = append(h, v)
	if len(h) > historySize {
		h = h[len(h)-historySize:]
	}
	return h
}

// renderMiniBar draws n out of total as a fixed-width bar.
func renderMiniBar(n, total, width int) string {
	filled := 0
	if total > 0 {
		filled = n * width / total
	}
	if filled > width {
		filled = width
	}
	return SuccessStyle.Render(strings.Repeat("█", filled)) + MutedStyle.Render(strings.Repeat("░", width-filled))
}

// renderSparkline scales data into the eight block heights.
func renderSparkline(data []float64, width int) string {
	if len(data) == 0 {
		return strings.Repeat("▁", width)
	}

	minVal, maxVal := data[0], data[0]
	for _, v := range data {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	if maxVal == minVal {
		return strings.Repeat("▄", width)
	}

	sparkChars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	var b strings.Builder
	for i := 0; i < width; i++ {
		idx := i * len(data) / width
		charIndex := int((data[idx] - minVal) / (maxVal - minVal) * 7)
		b.WriteRune(sparkChars[min(charIndex, 7)])
	}
	return b.String()
}

func dropRate(dropped, total int64) string {
	if total == 0 {
		return ValueStyle.Render("0%")
	}
	rate := float64(dropped) / float64(total) * 100
	switch {
	case rate == 0:
		return SuccessStyle.Render("0%")
	case rate < 1:
		return ValueStyle.Render(fmt.Sprintf("%.2f%%", rate))
	case rate < 5:
		return WarningStyle.Render(fmt.Sprintf("%.1f%%", rate))
	default:
		return ErrorStyle.Render(fmt.Sprintf("%.1f%%", rate))
	}
}

func driftStyle(ms int64) lipgloss.Style {
	switch {
	case ms > -20 && ms < 20:
		return SuccessStyle
	case ms > -50 && ms < 50:
		return WarningStyle
	default:
		return ErrorStyle
	}
}

func formatNumber(num int64) string {
	switch {
	case num >= 1000000000:
		return fmt.Sprintf("%.1fB", float64(num)/1000000000)
	case num >= 1000000:
		return fmt.Sprintf("%.1fM", float64(num)/1000000)
	case num >= 1000:
		return fmt.Sprintf("%.1fK", float64(num)/1000)
	}
	return fmt.Sprintf("%d", num)
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%.0fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
