package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/brianly1003/notepadtt/internal/content"
	"github.com/brianly1003/notepadtt/internal/domain"
	"github.com/brianly1003/notepadtt/internal/hub"
	"github.com/brianly1003/notepadtt/internal/infostate"
	"github.com/brianly1003/notepadtt/internal/marker"
	"github.com/brianly1003/notepadtt/internal/metadata"
	"github.com/brianly1003/notepadtt/internal/pairing"
	"github.com/brianly1003/notepadtt/internal/rpc"
	"github.com/brianly1003/notepadtt/internal/rpc/client"
	"github.com/brianly1003/notepadtt/internal/rpc/handler"
	"github.com/brianly1003/notepadtt/internal/rpc/handler/methods"
	"github.com/brianly1003/notepadtt/internal/rpc/message"
	"github.com/brianly1003/notepadtt/internal/security"
	"github.com/brianly1003/notepadtt/internal/storage"
	"github.com/brianly1003/notepadtt/internal/subscription"
	"github.com/gorilla/websocket"
)

type testEnv struct {
	root   string
	state  *infostate.State
	server *Server
	http   *httptest.Server
}

func newTestEnv(t *testing.T, files map[string]string, staticDir string) *testEnv {
	t.Helper()
	root := t.TempDir()
	for name, text := range files {
		if err := os.WriteFile(filepath.Join(root, name), []byte(text), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	dir := storage.New(root, storage.Filter{})
	state := infostate.New(dir, metadata.NewStore(root), marker.NewTracker(marker.DefaultWindow))
	cs := content.New(state, dir, marker.NewTracker(marker.DefaultWindow), 0)
	subs := subscription.NewRegistry()

	h := hub.New()
	if err := h.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = h.Stop() })

	tabs := methods.NewTabsService(state, cs, subs, h)
	registry := handler.NewRegistry()
	registry.RegisterService(tabs)

	rpcServer := rpc.NewServer(handler.NewDispatcher(registry), h, tabs)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(Options{StaticDir: staticDir}, cs, rpcServer, registry, pairing.NewQRGenerator("localhost", 5000), logger)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		_ = rpcServer.Stop()
		ts.Close()
	})

	return &testEnv{root: root, state: state, server: srv, http: ts}
}

func (e *testEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(e.http.URL, "http") + "/ws"
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(e.http.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, body
}

func TestServer_HandleHealth(t *testing.T) {
	env := newTestEnv(t, nil, "")

	resp, body := env.get(t, "/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	if result["status"] != "ok" {
		t.Errorf("status = %v, want ok", result["status"])
	}
	if resp.Header.Get("Access-Control-Allow-Origin") == "" {
		t.Error("CORS header missing")
	}
}

func TestServer_HandleGetTab(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.txt": "alpha"}, "")
	if _, err := env.state.GetSnapshot(); err != nil {
		t.Fatal(err)
	}
	id, _ := env.state.IdentifierFor("a.txt")

	tests := []struct {
		name string
		id   string
		want string
	}{
		{"known tab", id, "alpha"},
		{"unknown tab", "not-a-tab", domain.BlankText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.get(t, "/api/tabs/"+tt.id)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want 200", resp.StatusCode)
			}
			var tc domain.TabContent
			if err := json.Unmarshal(body, &tc); err != nil {
				t.Fatalf("failed to parse JSON: %v", err)
			}
			if tc.FileID != tt.id || tc.Text != tt.want {
				t.Errorf("content = %+v, want %q", tc, tt.want)
			}
		})
	}
}

func TestServer_OpenRPCAndQR(t *testing.T) {
	env := newTestEnv(t, nil, "")

	resp, body := env.get(t, "/api/rpc/discover")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("discover status = %d", resp.StatusCode)
	}
	var spec handler.OpenRPCSpec
	if err := json.Unmarshal(body, &spec); err != nil {
		t.Fatalf("failed to parse spec: %v", err)
	}
	if len(spec.Methods) != 5 {
		t.Errorf("len(methods) = %d, want 5", len(spec.Methods))
	}
	if !strings.HasPrefix(spec.Servers[0].URL, "ws://") {
		t.Errorf("server url = %s", spec.Servers[0].URL)
	}

	resp, body = env.get(t, "/api/qr")
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("qr status = %d, type = %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if !strings.HasPrefix(string(body), "\x89PNG") {
		t.Error("qr body is not a PNG")
	}
}

func TestServer_StaticDir(t *testing.T) {
	static := t.TempDir()
	if err := os.WriteFile(filepath.Join(static, "index.html"), []byte("<h1>notepad</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}
	env := newTestEnv(t, nil, static)

	resp, body := env.get(t, "/")
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "notepad") {
		t.Errorf("GET / = %d %q", resp.StatusCode, body)
	}

	resp, _ = env.get(t, "/health")
	if resp.StatusCode != http.StatusOK {
		t.Error("static handler shadows /health")
	}
}

func TestServer_NoStaticDir(t *testing.T) {
	env := newTestEnv(t, nil, "")

	resp, _ := env.get(t, "/")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET / = %d, want 404", resp.StatusCode)
	}
}

// notifications collects server notifications per method.
type notifications struct {
	ch chan *message.Notification
}

func newNotifications() *notifications {
	return &notifications{ch: make(chan *message.Notification, 32)}
}

func (n *notifications) handle(msg *message.Notification) {
	n.ch <- msg
}

func (n *notifications) next(t *testing.T, method string) json.RawMessage {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case msg := <-n.ch:
			if msg.Method == method {
				return msg.Params
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s notification", method)
			return nil
		}
	}
}

func (n *notifications) none(t *testing.T, method string, wait time.Duration) {
	t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case msg := <-n.ch:
			if msg.Method == method {
				t.Fatalf("unexpected %s notification: %s", method, msg.Params)
			}
		case <-deadline:
			return
		}
	}
}

func TestServer_WebSocketSync(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.txt": "alpha"}, "")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	notesA := newNotifications()
	a, err := client.NewTabsClient(ctx, env.wsURL(), client.WithNotificationHandler(notesA.handle))
	if err != nil {
		t.Fatalf("dial A: %v", err)
	}
	defer a.Close()

	var info domain.Info
	if err := json.Unmarshal(notesA.next(t, "info"), &info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if len(info.TabInfos) != 1 || info.TabInfos[0].Filename != "a.txt" {
		t.Fatalf("connect snapshot = %+v", info.TabInfos)
	}
	fileID := info.TabInfos[0].FileID

	notesB := newNotifications()
	b, err := client.NewTabsClient(ctx, env.wsURL(), client.WithNotificationHandler(notesB.handle))
	if err != nil {
		t.Fatalf("dial B: %v", err)
	}
	defer b.Close()
	notesB.next(t, "info")

	got, err := a.Content(ctx, fileID)
	if err != nil || got.Text != "alpha" {
		t.Fatalf("A Content() = %+v, %v", got, err)
	}
	if err := b.SetContent(ctx, fileID, "from b"); err != nil {
		t.Fatalf("B SetContent() error = %v", err)
	}
	if data, _ := os.ReadFile(filepath.Join(env.root, "a.txt")); string(data) != "from b" {
		t.Errorf("a.txt = %q, want %q", data, "from b")
	}

	// B edits a snapshot; both clients get the broadcast.
	cur, err := b.Info(ctx)
	if err != nil {
		t.Fatal(err)
	}
	cur.TabInfos[0].Filename = "renamed.txt"
	updated, err := b.Update(ctx, cur)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.TabInfos[0].Filename != "renamed.txt" {
		t.Errorf("updated tabs = %+v", updated.TabInfos)
	}
	notesA.next(t, "info")
	notesB.next(t, "info")

	// Reusing the old token is a conflict.
	_, err = b.Update(ctx, cur)
	var rpcErr *message.Error
	if !errors.As(err, &rpcErr) || rpcErr.Code != message.Conflict {
		t.Fatalf("stale Update() error = %v, want conflict", err)
	}
}

func TestServer_TabContentFanOut(t *testing.T) {
	env := newTestEnv(t, map[string]string{"a.txt": "alpha"}, "")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dial := func(notes *notifications) *client.Client {
		c, err := client.NewClient(ctx, env.wsURL(), client.WithNotificationHandler(notes.handle))
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = c.Close() })
		notes.next(t, "info")
		return c
	}

	notesA, notesB := newNotifications(), newNotifications()
	a, b := dial(notesA), dial(notesB)

	var info domain.Info
	if err := a.Result(ctx, "GetInfo", nil, &info); err != nil {
		t.Fatal(err)
	}
	params := map[string]string{"fileId": info.TabInfos[0].FileID}
	for _, c := range []*client.Client{a, b} {
		var tc domain.TabContent
		if err := c.Result(ctx, "SubscribeTabContent", params, &tc); err != nil || tc.Text != "alpha" {
			t.Fatalf("subscribe = %+v, %v", tc, err)
		}
	}

	if err := a.Result(ctx, "TabContentChanged", map[string]string{
		"fileId": info.TabInfos[0].FileID,
		"text":   "beta",
	}, nil); err != nil {
		t.Fatalf("TabContentChanged error = %v", err)
	}

	var pushed domain.TabContent
	if err := json.Unmarshal(notesB.next(t, "tabContent"), &pushed); err != nil {
		t.Fatal(err)
	}
	if pushed.Text != "beta" {
		t.Errorf("B received %q, want beta", pushed.Text)
	}
	notesA.none(t, "tabContent", 200*time.Millisecond)
}

func TestServer_OriginPolicy(t *testing.T) {
	root := t.TempDir()
	dir := storage.New(root, storage.Filter{})
	state := infostate.New(dir, metadata.NewStore(root), marker.NewTracker(marker.DefaultWindow))
	cs := content.New(state, dir, nil, 0)
	h := hub.New()
	if err := h.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = h.Stop() })

	registry := handler.NewRegistry()
	rpcServer := rpc.NewServer(handler.NewDispatcher(registry), h, nil)
	srv := NewServer(Options{
		Origins: security.NewOriginChecker([]string{"https://notes.example.com"}, true),
	}, cs, rpcServer, registry, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"https://notes.example.com", true},
		{"http://localhost:3000", true},
		{"https://evil.example", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req, _ := http.NewRequest("GET", ts.URL+"/health", nil)
			req.Header.Set("Origin", tt.origin)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			got := resp.Header.Get("Access-Control-Allow-Origin")
			if tt.allowed && got != tt.origin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.origin)
			}
			if !tt.allowed && got != "" {
				t.Errorf("Allow-Origin = %q for a rejected origin", got)
			}

			header := http.Header{}
			header.Set("Origin", tt.origin)
			conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", header)
			if conn != nil {
				_ = conn.Close()
			}
			if tt.allowed && err != nil {
				t.Errorf("dial rejected: %v", err)
			}
			if !tt.allowed && err == nil {
				t.Error("dial from a rejected origin succeeded")
			}
		})
	}
	_ = rpcServer.Stop()
}
