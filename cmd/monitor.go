// SPDX-License-Identifier: GPL-2.0-or-later

package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/chrislenderman/nabuadapter/internal/nabu"
	"github.com/chrislenderman/nabuadapter/internal/stats"
)

const maxRecentSegments = 20

// servedSegment is one entry in the recently-served-segments list,
// satisfying list.Item.
type servedSegment struct {
	segment uint32
	packet  uint8
	kind    nabu.EventKind
	at      time.Time
}

func (s servedSegment) Title() string {
	return fmt.Sprintf("%06X / packet %d", s.segment, s.packet)
}

func (s servedSegment) Description() string {
	return fmt.Sprintf("%s at %s", s.kind, s.at.Format("15:04:05"))
}

func (s servedSegment) FilterValue() string {
	return fmt.Sprintf("%06X", s.segment)
}

var monitorConnect string

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch a running adapter's event feed",
	Long: `Attach to a running adapter's WebSocket event feed and render
commands, packet hits/misses, and resets as they happen.

Pair this with an adapter invocation started with --monitor-listen.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().StringVar(&monitorConnect, "connect", "", "WebSocket URL of a running adapter's event feed (e.g. ws://localhost:8089/events)")
	rootCmd.AddCommand(monitorCmd)
}

type monitorEntry struct {
	at      time.Time
	kind    nabu.EventKind
	detail  string
	isError bool
}

type monitorModel struct {
	connInfo  string
	entries   []monitorEntry
	segments  list.Model
	snapshot  stats.Snapshot
	collector *stats.Collector
	width     int
	height    int
	quitting  bool
	connErr   error
}

type monitorEventMsg nabu.Event
type monitorErrMsg error
type monitorTickMsg time.Time

func initialMonitorModel(connInfo string) monitorModel {
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	segments := list.New([]list.Item{}, delegate, 30, 10)
	segments.Title = "Recently Served Segments"
	segments.SetShowStatusBar(false)
	segments.SetShowHelp(false)
	segments.SetFilteringEnabled(false)

	return monitorModel{
		connInfo:  connInfo,
		entries:   make([]monitorEntry, 0, 256),
		segments:  segments,
		collector: stats.NewCollector(),
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(tea.EnterAltScreen, monitorTickCmd())
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateSegmentsListSize()

	case monitorTickMsg:
		m.snapshot = m.collector.Snapshot()
		return m, monitorTickCmd()

	case monitorErrMsg:
		m.connErr = msg

	case monitorEventMsg:
		ev := nabu.Event(msg)
		m.collector.Observe(ev)
		m.entries = append(m.entries, monitorEntry{
			at:      ev.Time,
			kind:    ev.Kind,
			detail:  ev.Detail,
			isError: ev.Kind == nabu.EventUnknownCommand || ev.Kind == nabu.EventPacketMissed,
		})
		const maxEntries = 500
		if len(m.entries) > maxEntries {
			m.entries = m.entries[len(m.entries)-maxEntries:]
		}

		if ev.Kind == nabu.EventPacketServed || ev.Kind == nabu.EventTimeSegmentServed {
			m.recordServedSegment(ev)
		}
	}

	var cmd tea.Cmd
	m.segments, cmd = m.segments.Update(msg)
	return m, cmd
}

func (m *monitorModel) recordServedSegment(ev nabu.Event) {
	var segment uint32
	if ev.Segment != nil {
		segment = *ev.Segment
	}
	var packet uint8
	if ev.Packet != nil {
		packet = *ev.Packet
	}

	items := m.segments.Items()
	items = append([]list.Item{servedSegment{segment: segment, packet: packet, kind: ev.Kind, at: ev.Time}}, items...)
	if len(items) > maxRecentSegments {
		items = items[:maxRecentSegments]
	}
	m.segments.SetItems(items)
}

func (m *monitorModel) updateSegmentsListSize() {
	listHeight := m.height / 3
	if listHeight < 5 {
		listHeight = 5
	}
	m.segments.SetSize(30, listHeight)
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Background(lipgloss.Color("235")).Padding(0, 1)
	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	boxStyle := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("NABU ADAPTER MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Press 'q' to quit", m.connInfo)))
	s.WriteString("\n\n")

	if m.connErr != nil {
		s.WriteString(errorStyle.Render(fmt.Sprintf("connection error: %v", m.connErr)))
		s.WriteString("\n\n")
	}

	statsContent := fmt.Sprintf("%s %s   %s %s   %s %s\n%s %s   %s %s",
		labelStyle.Render("Commands:"), valueStyle.Render(fmt.Sprintf("%d", m.snapshot.CommandsHandled)),
		labelStyle.Render("Served:"), valueStyle.Render(fmt.Sprintf("%d", m.snapshot.PacketsServed)),
		labelStyle.Render("Missed:"), valueStyle.Render(fmt.Sprintf("%d", m.snapshot.PacketsMissed)),
		labelStyle.Render("Resets:"), valueStyle.Render(fmt.Sprintf("%d", m.snapshot.Resets)),
		labelStyle.Render("Unknown:"), valueStyle.Render(fmt.Sprintf("%d", m.snapshot.UnknownCommands)),
	)
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxStyle.Render(statsContent), boxStyle.Render(m.segments.View())))
	s.WriteString("\n\n")

	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	logHeight := m.height - 12
	if logHeight < 5 {
		logHeight = 5
	}
	start := len(m.entries) - logHeight
	if start < 0 {
		start = 0
	}

	var log strings.Builder
	if len(m.entries) == 0 {
		log.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := start; i < len(m.entries); i++ {
			e := m.entries[i]
			line := fmt.Sprintf("%s %-18s %s", headerStyle.Render(e.at.Format("15:04:05.000")), e.kind.String(), e.detail)
			if e.isError {
				log.WriteString(errorStyle.Render(line))
			} else {
				log.WriteString(valueStyle.Render(line))
			}
			log.WriteString("\n")
		}
	}

	width := m.width - 4
	if width < 20 {
		width = 20
	}
	s.WriteString(boxStyle.Width(width).Render(log.String()))

	return s.String()
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if monitorConnect == "" {
		return fmt.Errorf("--connect is required (e.g. ws://localhost:8089/events)")
	}

	conn, _, err := websocket.DefaultDialer.Dial(monitorConnect, nil)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", monitorConnect, err)
	}

	m := initialMonitorModel(monitorConnect)
	p := tea.NewProgram(m, tea.WithAltScreen())

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer conn.Close()
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				p.Send(monitorErrMsg(err))
				return
			}
			var ev nabu.Event
			if err := json.Unmarshal(payload, &ev); err != nil {
				continue
			}
			p.Send(monitorEventMsg(ev))
		}
	}()

	_, err = p.Run()
	conn.Close()
	return err
}
