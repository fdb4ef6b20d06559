package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gdlive/gdlive/history"
	"github.com/gdlive/gdlive/observability"
)

type fakeStore struct {
	state   StoreState
	removed []int
	cleared bool
}

func (f *fakeStore) State() StoreState { return f.state }

func (f *fakeStore) RenderSVG(page int, _, _ float64) ([]byte, error) {
	if page < 1 || page > f.state.PageCount {
		return nil, fmt.Errorf("page %d: %w", page, history.ErrPageNotFound)
	}
	return []byte("<svg/>"), nil
}

func (f *fakeStore) RenderPDF(page int, _, _ float64) ([]byte, error) {
	if page < 1 || page > f.state.PageCount {
		return nil, fmt.Errorf("page %d: %w", page, history.ErrPageNotFound)
	}
	return []byte("%PDF-1.4"), nil
}

func (f *fakeStore) RemovePage(page int) error {
	if page < 1 || page > f.state.PageCount {
		return fmt.Errorf("page %d: %w", page, history.ErrPageNotFound)
	}
	f.removed = append(f.removed, page)
	return nil
}

func (f *fakeStore) ClearPages() { f.cleared = true }

func startTestServer(t *testing.T, cfg Config, store Store) *Server {
	t.Helper()
	cfg.Host = "127.0.0.1"
	s := New(cfg, store)
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	return s
}

func (s *Server) url(path string) string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", s.Port(), path)
}

func doReq(t *testing.T, method, url string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestStateRequiresToken(t *testing.T) {
	store := &fakeStore{state: StoreState{PageCount: 2, UpID: 7}}
	s := startTestServer(t, Config{Token: "abc123"}, store)

	if resp := doReq(t, http.MethodGet, s.url("/state"), nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d", resp.StatusCode)
	}
	if resp := doReq(t, http.MethodGet, s.url("/state?token=wrong"), nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d", resp.StatusCode)
	}

	for _, h := range []http.Header{
		{"Authorization": []string{"Bearer abc123"}},
		{TokenHeader: []string{"abc123"}},
	} {
		resp := doReq(t, http.MethodGet, s.url("/state"), h)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("authorized status = %d", resp.StatusCode)
		}
		var st struct {
			Host      string `json:"host"`
			Port      int    `json:"port"`
			Token     string `json:"token"`
			PageCount int    `json:"page_count"`
			UpID      int64  `json:"upid"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
			t.Fatalf("decode state: %v", err)
		}
		if st.Host != "127.0.0.1" || st.Port != s.Port() || st.PageCount != 2 || st.UpID != 7 {
			t.Fatalf("state = %+v", st)
		}
	}
}

func TestPingBypassesToken(t *testing.T) {
	s := startTestServer(t, Config{Token: "abc123"}, &fakeStore{})
	resp := doReq(t, http.MethodGet, s.url("/ping"), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ping status = %d", resp.StatusCode)
	}
}

func TestPlotRendersAndRejectsOutOfRange(t *testing.T) {
	store := &fakeStore{state: StoreState{PageCount: 1}}
	s := startTestServer(t, Config{}, store)

	resp := doReq(t, http.MethodGet, s.url("/plot?page=1&width=200&height=200"), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("plot status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/svg+xml" {
		t.Fatalf("content type = %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "<svg/>" {
		t.Fatalf("body = %q", body)
	}

	if resp := doReq(t, http.MethodGet, s.url("/plot?page=2"), nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("out of range status = %d", resp.StatusCode)
	}
}

func TestRemoveAndClear(t *testing.T) {
	store := &fakeStore{state: StoreState{PageCount: 3}}
	s := startTestServer(t, Config{}, store)

	resp := doReq(t, http.MethodDelete, s.url("/remove?page=2"), nil)
	var ok struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ok); err != nil || !ok.Success {
		t.Fatalf("remove response: %v %+v", err, ok)
	}
	if len(store.removed) != 1 || store.removed[0] != 2 {
		t.Fatalf("removed = %v", store.removed)
	}

	if resp := doReq(t, http.MethodDelete, s.url("/remove?page=9"), nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("remove missing status = %d", resp.StatusCode)
	}
	if resp := doReq(t, http.MethodGet, s.url("/remove?page=1"), nil); resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET remove status = %d", resp.StatusCode)
	}

	resp = doReq(t, http.MethodDelete, s.url("/clear"), nil)
	if resp.StatusCode != http.StatusOK || !store.cleared {
		t.Fatalf("clear failed: status=%d cleared=%v", resp.StatusCode, store.cleared)
	}
}

func TestCORSHeaders(t *testing.T) {
	s := startTestServer(t, Config{CORS: true}, &fakeStore{})
	resp := doReq(t, http.MethodGet, s.url("/ping"), nil)
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("allow-origin = %q", got)
	}
	if resp := doReq(t, http.MethodOptions, s.url("/state"), nil); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight status = %d", resp.StatusCode)
	}
}

func TestIndexServesPayload(t *testing.T) {
	s := startTestServer(t, Config{Payload: []byte("<html>viewer</html>")}, &fakeStore{})
	resp := doReq(t, http.MethodGet, s.url("/"), nil)
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "<html>viewer</html>" {
		t.Fatalf("payload = %q", body)
	}
}

func TestSecondInstanceFailsAlreadyRunning(t *testing.T) {
	store := &fakeStore{state: StoreState{PageCount: 1, UpID: 3}}
	first := startTestServer(t, Config{}, store)

	second := New(Config{Host: "127.0.0.1", Port: first.Port()}, &fakeStore{})
	err := second.Start()
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second start error = %v, want ErrAlreadyRunning", err)
	}

	// The first instance is unaffected.
	resp := doReq(t, http.MethodGet, first.url("/state"), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first instance state = %d", resp.StatusCode)
	}
}

func TestWebsocketReceivesUpdates(t *testing.T) {
	s := startTestServer(t, Config{}, &fakeStore{})

	url := fmt.Sprintf("ws://127.0.0.1:%d/ws", s.Port())
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Connection registration races the broadcast; retry briefly.
	go func() {
		for i := 0; i < 20; i++ {
			s.NotifyUpdate(42)
			time.Sleep(25 * time.Millisecond)
		}
	}()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev struct {
		Type string `json:"type"`
		UpID int64  `json:"upid"`
	}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != "update" || ev.UpID != 42 {
		t.Fatalf("event = %+v", ev)
	}
}

func TestBroadcastNotBlockedByStalledClient(t *testing.T) {
	h := newHub(observability.NopLogger{})
	// A client with no writer goroutine and a full buffer stands in for
	// a viewer that stopped reading.
	c := &client{id: "stalled", send: make(chan []byte, 1)}
	c.send <- []byte("backlog")
	h.clients[c] = struct{}{}

	done := make(chan struct{})
	go func() {
		h.broadcast(event{Type: "update", UpID: 1})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("broadcast blocked on a stalled client")
	}

	h.mu.Lock()
	_, still := h.clients[c]
	h.mu.Unlock()
	if still {
		t.Fatalf("stalled client not dropped")
	}
}

func TestShutdownSendsCloseFrame(t *testing.T) {
	s := New(Config{Host: "127.0.0.1"}, &fakeStore{})
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	url := fmt.Sprintf("ws://127.0.0.1:%d/ws", s.Port())
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Registration races the shutdown; wait for the hub to see the client.
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.hub.mu.Lock()
		n := len(s.hub.clients)
		s.hub.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
				t.Fatalf("close error = %v", err)
			}
			return
		}
	}
}

func TestRequestLogsServeTime(t *testing.T) {
	var buf bytes.Buffer
	s := New(Config{Logger: observability.NewWriterLogger(&buf)}, &fakeStore{})
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ping status = %d", rec.Code)
	}
	if !strings.Contains(buf.String(), observability.MetricServeTime) {
		t.Fatalf("serve time not logged: %q", buf.String())
	}
}

func TestShutdownReleasesPort(t *testing.T) {
	s := New(Config{Host: "127.0.0.1"}, &fakeStore{})
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	port := s.Port()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		t.Fatalf("port not released: %v", err)
	}
	ln.Close()
}
