package ui_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/omochice/chatlink/internal/chat"
	"github.com/omochice/chatlink/internal/client"
	"github.com/omochice/chatlink/internal/ui"
	"github.com/omochice/chatlink/pkg/protocol"
)

type sent struct {
	receiverID int64
	content    string
}

// fakeClient is a client.Client whose state and send result are set by the test.
type fakeClient struct {
	mu      sync.Mutex
	state   client.State
	sendErr error
	sent    []sent
	store   *chat.Store
	changes chan struct{}
}

func newFakeClient(state client.State) *fakeClient {
	return &fakeClient{state: state, store: chat.NewStore(), changes: make(chan struct{}, 1)}
}

func (f *fakeClient) Connect() error { return nil }
func (f *fakeClient) Teardown()      {}

func (f *fakeClient) IsReady() bool { return f.State() == client.StateOpen }

func (f *fakeClient) State() client.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeClient) setState(s client.State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

func (f *fakeClient) StateChanges() <-chan struct{} { return f.changes }
func (f *fakeClient) Store() *chat.Store             { return f.store }

func (f *fakeClient) Send(_ context.Context, input client.InputBuffer, receiverID int64) error {
	if input.Value() == "" {
		return client.ErrEmptyContent
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sent{receiverID: receiverID, content: input.Value()})
	input.Reset()
	return nil
}

var _ client.Client = (*fakeClient)(nil)

func typeText(m tea.Model, text string) tea.Model {
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return m
}

func press(m tea.Model, t tea.KeyType) (tea.Model, tea.Cmd) {
	return m.Update(tea.KeyMsg{Type: t})
}

func TestModel_DefaultConversation(t *testing.T) {
	m := ui.New(newFakeClient(client.StateOpen), 1, nil)

	if got := m.Selected(); got.ID != 2 || got.Name != "John Doe" {
		t.Errorf("Selected() = %+v, want John Doe", got)
	}
	if !strings.Contains(m.View(), "John Doe") {
		t.Error("View() missing selected conversation header")
	}
}

func TestModel_CycleConversations(t *testing.T) {
	m := ui.New(newFakeClient(client.StateOpen), 1, nil)

	press(m, tea.KeyTab)
	if got := m.Selected().ID; got != 3 {
		t.Errorf("after tab Selected().ID = %d, want 3", got)
	}
	press(m, tea.KeyShiftTab)
	press(m, tea.KeyShiftTab)
	if got := m.Selected().ID; got != 4 {
		t.Errorf("after wrap Selected().ID = %d, want 4", got)
	}
}

func TestModel_SendToSelectedConversation(t *testing.T) {
	fc := newFakeClient(client.StateOpen)
	m := ui.New(fc, 1, nil)

	press(m, tea.KeyTab)
	typeText(m, "hello")
	press(m, tea.KeyEnter)

	if len(fc.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(fc.sent))
	}
	if fc.sent[0] != (sent{receiverID: 3, content: "hello"}) {
		t.Errorf("sent[0] = %+v", fc.sent[0])
	}
	if m.Notice() != "" {
		t.Errorf("Notice() = %q, want empty", m.Notice())
	}

	// the input buffer was reset by Send
	press(m, tea.KeyEnter)
	if len(fc.sent) != 1 {
		t.Errorf("sent = %d after empty enter, want 1", len(fc.sent))
	}
}

func TestModel_SendNotReadyShowsNotice(t *testing.T) {
	fc := newFakeClient(client.StateClosed)
	fc.sendErr = client.ErrConnectionNotReady
	m := ui.New(fc, 1, nil)

	typeText(m, "hello")
	press(m, tea.KeyEnter)

	if !strings.Contains(m.Notice(), "Connection lost") {
		t.Errorf("Notice() = %q", m.Notice())
	}
	if !strings.Contains(m.View(), "sending disabled") {
		t.Error("View() missing sending disabled status")
	}

	fc.setState(client.StateOpen)
	m.Update(ui.StateChanged())
	if m.Notice() != "" {
		t.Errorf("Notice() = %q after reconnect, want empty", m.Notice())
	}
}

func TestModel_RendersSelectedConversation(t *testing.T) {
	fc := newFakeClient(client.StateOpen)
	m := ui.New(fc, 1, nil)

	fc.store.Replace([]protocol.Message{
		{SenderID: 1, ReceiverID: 2, Content: "to john"},
		{SenderID: 3, ReceiverID: 1, Content: "from jane"},
	})
	m.Update(ui.StoreChanged())

	view := m.View()
	if !strings.Contains(view, "to john") {
		t.Error("View() missing message for selected conversation")
	}
	if strings.Contains(view, "from jane") {
		t.Error("View() shows message from another conversation")
	}
}

func TestModel_LoginRequiredQuits(t *testing.T) {
	redirect := ui.NewRedirector()
	m := ui.New(newFakeClient(client.StateDisconnected), 1, redirect.C())

	_, cmd := m.Update(ui.LoginRequired())
	if cmd == nil {
		t.Fatal("Update() returned nil cmd")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("login redirect did not quit")
	}
	if !m.LoginRequired() {
		t.Error("LoginRequired() = false")
	}
}

func TestModel_QuitKeys(t *testing.T) {
	m := ui.New(newFakeClient(client.StateOpen), 1, nil)

	_, cmd := press(m, tea.KeyCtrlC)
	if cmd == nil {
		t.Fatal("ctrl+c returned nil cmd")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("ctrl+c did not quit")
	}
}

func TestRedirector_Collapses(t *testing.T) {
	r := ui.NewRedirector()
	r.RedirectToLogin()
	r.RedirectToLogin()

	<-r.C()
	select {
	case <-r.C():
		t.Error("second redirect was not collapsed")
	default:
	}
}
