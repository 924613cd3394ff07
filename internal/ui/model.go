// Package ui renders the chat client in the terminal with Bubble Tea.
//
// The model never touches the connection directly: it reads the message store
// and connection state from a client.Client and hands its text input to
// Client.Send as the pending input buffer.
package ui

import (
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/omochice/chatlink/internal/client"
)

// storeChangedMsg reports new or replaced messages.
type storeChangedMsg struct{}

// stateChangedMsg reports a connection state transition.
type stateChangedMsg struct{}

// loginRequiredMsg reports that the session has no credentials.
type loginRequiredMsg struct{}

// Model is the chat screen.
type Model struct {
	client        client.Client
	userID        int64
	conversations []Conversation
	selected      int
	redirects     <-chan struct{}

	input    textinput.Model
	viewport viewport.Model

	state         client.State
	notice        string
	loginRequired bool
	width         int
	height        int
}

// New creates the chat screen for userID. redirects may be nil.
func New(c client.Client, userID int64, redirects <-chan struct{}) *Model {
	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.CharLimit = 2000
	input.Focus()

	m := &Model{
		client:        c,
		userID:        userID,
		conversations: DefaultConversations(),
		redirects:     redirects,
		input:         input,
		viewport:      viewport.New(60, 20),
		state:         c.State(),
	}
	m.refresh()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.waitForStore(),
		m.waitForState(),
		m.waitForRedirect(),
	)
}

// LoginRequired reports whether the program quit because credentials are missing.
func (m *Model) LoginRequired() bool {
	return m.loginRequired
}

// Selected returns the active conversation.
func (m *Model) Selected() Conversation {
	return m.conversations[m.selected]
}

// Notice returns the current status line.
func (m *Model) Notice() string {
	return m.notice
}

func (m *Model) waitForStore() tea.Cmd {
	ch := m.client.Store().Changes()
	return func() tea.Msg {
		<-ch
		return storeChangedMsg{}
	}
}

func (m *Model) waitForState() tea.Cmd {
	ch := m.client.StateChanges()
	return func() tea.Msg {
		<-ch
		return stateChangedMsg{}
	}
}

func (m *Model) waitForRedirect() tea.Cmd {
	if m.redirects == nil {
		return nil
	}
	ch := m.redirects
	return func() tea.Msg {
		<-ch
		return loginRequiredMsg{}
	}
}

// StoreChanged returns the message delivered when the store changes.
func StoreChanged() tea.Msg { return storeChangedMsg{} }

// StateChanged returns the message delivered when the connection state changes.
func StateChanged() tea.Msg { return stateChangedMsg{} }

// LoginRequired returns the message delivered on a login redirect.
func LoginRequired() tea.Msg { return loginRequiredMsg{} }
