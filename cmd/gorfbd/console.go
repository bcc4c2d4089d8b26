package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gorfb/gorfbd/internal/rfb"
)

// refreshInterval drives the live-updating client table.
const refreshInterval = time.Second

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	tableStyle  = lipgloss.NewStyle().Padding(0, 1)
)

// consoleKeys are the console's key bindings.
type consoleKeys struct {
	Status  key.Binding
	Clients key.Binding
	Quit    key.Binding
}

var defaultConsoleKeys = consoleKeys{
	Status: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "status"),
	),
	Clients: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "clients"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

func (k consoleKeys) helpLine() string {
	return fmt.Sprintf("[%s] %s  [%s] %s  [%s] %s",
		k.Status.Help().Key, k.Status.Help().Desc,
		k.Clients.Help().Key, k.Clients.Help().Desc,
		k.Quit.Help().Key, k.Quit.Help().Desc)
}

type tickMsg time.Time

// consoleModel is the bubbletea model backing the "status"/"clients"
// interactive console. It reads Server state only through
// Server.Snapshot, so it can never block a session's I/O; the quit
// binding calls Server.Stop.
type consoleModel struct {
	server  *rfb.Server
	addr    string
	view    string // "status" or "clients"
	clients []rfb.SessionInfo
	quit    bool
}

func newConsoleModel(server *rfb.Server, addr string) consoleModel {
	return consoleModel{server: server, addr: addr, view: "status"}
}

func (m consoleModel) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, defaultConsoleKeys.Quit):
			m.server.Stop()
			m.quit = true
			return m, tea.Quit
		case key.Matches(msg, defaultConsoleKeys.Status):
			m.view = "status"
		case key.Matches(msg, defaultConsoleKeys.Clients):
			m.view = "clients"
		}
	case tickMsg:
		m.clients = m.server.Snapshot()
		return m, tick()
	}
	return m, nil
}

func (m consoleModel) View() string {
	if m.quit {
		return ""
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render("gorfbd") + dimStyle.Render(" — "+m.addr) + "\n\n")

	switch m.view {
	case "clients":
		b.WriteString(m.renderClients())
	default:
		b.WriteString(m.renderStatus())
	}

	b.WriteString("\n" + dimStyle.Render(defaultConsoleKeys.helpLine()))
	return tableStyle.Render(b.String())
}

func (m consoleModel) renderStatus() string {
	return fmt.Sprintf("%d client(s) connected", len(m.clients))
}

func (m consoleModel) renderClients() string {
	if len(m.clients) == 0 {
		return dimStyle.Render("no clients connected")
	}
	sorted := append([]rfb.SessionInfo(nil), m.clients...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ConnectedAt.Before(sorted[j].ConnectedAt) })

	var b strings.Builder
	for _, c := range sorted {
		fmt.Fprintf(&b, "%-8s  %-21s  rfb %-4s  sent %8d B  last update %s\n",
			c.ID[:8], c.RemoteAddr, c.ProtocolVersion, c.BytesSent, formatAgo(c.LastUpdateAt))
	}
	return b.String()
}

func formatAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return time.Since(t).Round(time.Second).String() + " ago"
}
