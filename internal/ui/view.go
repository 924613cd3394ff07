package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/omochice/chatlink/internal/client"
)

const (
	sidebarWidth = 20
	// header, input box and status line
	chromeHeight = 6
)

var (
	sidebarStyle = lipgloss.NewStyle().
			Width(sidebarWidth).
			Border(lipgloss.NormalBorder(), false, true, false, false).
			BorderForeground(lipgloss.Color("#6C7086"))

	sidebarTitleStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

	conversationStyle = lipgloss.NewStyle().Padding(0, 1)

	selectedConversationStyle = lipgloss.NewStyle().
					Padding(0, 1).
					Bold(true).
					Background(lipgloss.Color("#45475A"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(lipgloss.Color("#6C7086"))

	ownMessageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#3B82F6")).
			Padding(0, 1)

	peerMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#1F2937")).
				Background(lipgloss.Color("#E5E7EB")).
				Padding(0, 1)

	inputStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("#6C7086")).
			Padding(0, 1)

	connectedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1")).Bold(true)
	disconnectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8")).Bold(true)
	noticeStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#F9E2AF")).Italic(true)
)

// View implements tea.Model.
func (m *Model) View() string {
	if m.loginRequired {
		return "Login required.\n"
	}

	chat := lipgloss.JoinVertical(lipgloss.Left,
		headerStyle.Render(m.Selected().Name),
		m.viewport.View(),
		inputStyle.Render(m.input.View()),
		m.renderStatus(),
	)
	return lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(), chat)
}

func (m *Model) renderSidebar() string {
	lines := []string{sidebarTitleStyle.Render("Chats")}
	for i, conv := range m.conversations {
		style := conversationStyle
		if i == m.selected {
			style = selectedConversationStyle
		}
		lines = append(lines, style.Render(conv.Name))
	}
	return sidebarStyle.Render(strings.Join(lines, "\n"))
}

func (m *Model) renderMessages() string {
	peer := m.Selected().ID
	width := m.viewport.Width

	var lines []string
	for _, msg := range m.client.Store().Conversation(peer) {
		if msg.SenderID == m.userID {
			bubble := ownMessageStyle.Render(msg.Content)
			lines = append(lines, lipgloss.PlaceHorizontal(width, lipgloss.Right, bubble))
			continue
		}
		lines = append(lines, peerMessageStyle.Render(msg.Content))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderStatus() string {
	var status string
	switch m.state {
	case client.StateOpen:
		status = connectedStyle.Render("● connected")
	case client.StateConnecting:
		status = disconnectedStyle.Render("○ connecting")
	default:
		status = disconnectedStyle.Render("○ " + m.state.String() + ", sending disabled")
	}
	if m.notice != "" {
		status += "  " + noticeStyle.Render(m.notice)
	}
	return status
}
