package ui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/omochice/chatlink/internal/client"
)

const noticeNotReady = "Connection lost. Retrying..."

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)

	case tea.WindowSizeMsg:
		m.setSize(msg.Width, msg.Height)

	case storeChangedMsg:
		m.refresh()
		cmds = append(cmds, m.waitForStore())

	case stateChangedMsg:
		m.state = m.client.State()
		if m.state == client.StateOpen && m.notice == noticeNotReady {
			m.notice = ""
		}
		cmds = append(cmds, m.waitForState())

	case loginRequiredMsg:
		m.loginRequired = true
		return m, tea.Quit

	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return tea.Quit, true
	case "enter":
		m.send()
		return nil, true
	case "tab":
		m.selectConversation(m.selected + 1)
		return nil, true
	case "shift+tab":
		m.selectConversation(m.selected - 1)
		return nil, true
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd, true
	}
	return nil, false
}

func (m *Model) send() {
	err := m.client.Send(context.Background(), &m.input, m.Selected().ID)
	switch {
	case err == nil:
		m.notice = ""
	case errors.Is(err, client.ErrEmptyContent):
	case errors.Is(err, client.ErrConnectionNotReady):
		m.notice = noticeNotReady
	default:
		m.notice = "Send failed: " + err.Error()
	}
}

func (m *Model) selectConversation(i int) {
	n := len(m.conversations)
	m.selected = ((i % n) + n) % n
	m.refresh()
}

func (m *Model) setSize(width, height int) {
	m.width, m.height = width, height
	m.viewport.Width = max(width-sidebarWidth-2, 10)
	m.viewport.Height = max(height-chromeHeight, 3)
	m.input.Width = max(m.viewport.Width-4, 10)
	m.refresh()
}

// refresh re-renders the selected conversation into the viewport.
func (m *Model) refresh() {
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
}
