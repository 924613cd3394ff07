package ws_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/omochice/chatlink/internal/auth"
	"github.com/omochice/chatlink/internal/chat"
	"github.com/omochice/chatlink/internal/history"
	"github.com/omochice/chatlink/internal/transport/ws"
	"github.com/omochice/chatlink/pkg/protocol"
)

type gateway struct {
	srv    *ws.Server
	http   *httptest.Server
	hub    *chat.Hub
	repo   *history.SQLite
	signer *auth.Signer
}

func startGateway(t *testing.T) *gateway {
	t.Helper()
	return startGatewayWith(t, nil)
}

// startGatewayWith starts a gateway whose message repository is wrap(repo)
// when wrap is non-nil.
func startGatewayWith(t *testing.T, wrap func(*history.SQLite) history.Repository) *gateway {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	repo, err := history.NewSQLite(history.MemoryPath)
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	signer, err := auth.NewSigner("test-secret", time.Minute)
	if err != nil {
		t.Fatalf("NewSigner() error = %v", err)
	}
	var messages history.Repository = repo
	if wrap != nil {
		messages = wrap(repo)
	}
	hub := chat.NewHub(logger)
	srv := ws.New(":0", hub, signer, messages, repo, logger)
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		srv.Stop()
		ts.Close()
		repo.Close()
	})
	return &gateway{srv: srv, http: ts, hub: hub, repo: repo, signer: signer}
}

func (g *gateway) dial(t *testing.T, userID int64) *websocket.Conn {
	t.Helper()
	token, err := g.signer.Issue(userID, "test")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	conn, _, err := websocket.Dial(context.Background(), wsURL(g.http)+"/ws?token="+token, nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) protocol.Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("failed to read: %v", err)
	}
	frame, err := protocol.DecodeFrame(data)
	if err != nil {
		t.Fatalf("DecodeFrame(%s) error = %v", data, err)
	}
	return frame
}

func TestServer_RejectsInvalidToken(t *testing.T) {
	g := startGateway(t)

	for _, url := range []string{wsURL(g.http) + "/ws", wsURL(g.http) + "/ws?token=bogus"} {
		_, resp, err := websocket.Dial(context.Background(), url, nil)
		if err == nil {
			t.Fatalf("expected dial to %s to fail", url)
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %v, want 401", resp)
		}
	}
}

func TestServer_SendsHistoryOnConnect(t *testing.T) {
	g := startGateway(t)
	ctx := context.Background()
	g.repo.Save(ctx, protocol.Message{SenderID: 1, ReceiverID: 2, Content: "hi"})
	g.repo.Save(ctx, protocol.Message{SenderID: 3, ReceiverID: 4, Content: "other"})

	conn := g.dial(t, 2)

	frame := readFrame(t, conn)
	if !frame.Snapshot {
		t.Fatal("first frame should be a history snapshot")
	}
	if len(frame.History) != 1 || frame.History[0] != (protocol.Message{SenderID: 1, ReceiverID: 2, Content: "hi"}) {
		t.Errorf("History = %+v", frame.History)
	}
}

func TestServer_RelaysAndEchoes(t *testing.T) {
	g := startGateway(t)
	alice := g.dial(t, 1)
	bob := g.dial(t, 2)
	readFrame(t, alice)
	readFrame(t, bob)

	// sender_id is overridden with the authenticated user
	out := []byte(`{"sender_id":99,"receiver_id":2,"content":"hello"}`)
	if err := alice.Write(context.Background(), websocket.MessageText, out); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	want := protocol.Message{SenderID: 1, ReceiverID: 2, Content: "hello"}
	if got := readFrame(t, bob); got.Snapshot || got.Message != want {
		t.Errorf("bob received %+v, want %+v", got, want)
	}
	if got := readFrame(t, alice); got.Snapshot || got.Message != want {
		t.Errorf("alice echo %+v, want %+v", got, want)
	}

	stored, err := g.repo.ListForUser(context.Background(), 2)
	if err != nil {
		t.Fatalf("ListForUser() error = %v", err)
	}
	if len(stored) != 1 || stored[0] != want {
		t.Errorf("stored = %+v, want [%+v]", stored, want)
	}
}

func TestServer_ClientRegistration(t *testing.T) {
	g := startGateway(t)
	conn := g.dial(t, 1)
	readFrame(t, conn)

	if got := g.hub.ClientCount(); got != 1 {
		t.Errorf("expected 1 client in hub, got %d", got)
	}

	conn.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(2 * time.Second)
	for g.hub.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := g.hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after close, got %d", got)
	}
}

func TestServer_Health(t *testing.T) {
	g := startGateway(t)

	resp, err := http.Get(g.http.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	defer resp.Body.Close()

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("GET /health = %d %v", resp.StatusCode, body)
	}
}

func TestServer_StartStop(t *testing.T) {
	repo, _ := history.NewSQLite(history.MemoryPath)
	defer repo.Close()
	signer, _ := auth.NewSigner("s", time.Minute)
	srv := ws.New("127.0.0.1:0", chat.NewHub(nil), signer, repo, repo, slog.New(slog.NewTextHandler(io.Discard, nil)))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	deadline := time.Now().Add(time.Second)
	for srv.Addr() == "" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if srv.Addr() == "" {
		t.Fatal("Addr() returned empty string")
	}

	srv.Stop()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return after Stop()")
	}
}

// gatedRepo blocks ListForUser until released once gate is armed.
type gatedRepo struct {
	history.Repository
	mu      sync.Mutex
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func (r *gatedRepo) ListForUser(ctx context.Context, userID int64) ([]protocol.Message, error) {
	msgs, err := r.Repository.ListForUser(ctx, userID)
	r.mu.Lock()
	armed := r.armed
	r.armed = false
	r.mu.Unlock()
	if armed {
		close(r.entered)
		<-r.release
	}
	return msgs, err
}

func (r *gatedRepo) arm() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.armed = true
}

func TestServer_NoMessageLostWhileConnecting(t *testing.T) {
	gate := &gatedRepo{entered: make(chan struct{}), release: make(chan struct{})}
	g := startGatewayWith(t, func(repo *history.SQLite) history.Repository {
		gate.Repository = repo
		return gate
	})

	alice := g.dial(t, 1)
	readFrame(t, alice)

	// Bob's history has been read but he is not yet registered.
	gate.arm()
	bob := g.dial(t, 2)
	select {
	case <-gate.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("history load did not start")
	}

	out := []byte(`{"sender_id":1,"receiver_id":2,"content":"in the gap"}`)
	if err := alice.Write(context.Background(), websocket.MessageText, out); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	close(gate.release)

	want := protocol.Message{SenderID: 1, ReceiverID: 2, Content: "in the gap"}
	snapshot := readFrame(t, bob)
	if !snapshot.Snapshot {
		t.Fatal("first frame should be a history snapshot")
	}
	for _, m := range snapshot.History {
		if m == want {
			return
		}
	}
	if got := readFrame(t, bob); got.Snapshot || got.Message != want {
		t.Errorf("bob received %+v, want %+v", got, want)
	}
}
