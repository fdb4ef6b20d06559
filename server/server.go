// Package server exposes the recorded history over HTTP: state and
// rendering queries, page removal, a static viewer payload, and a
// websocket channel that pushes update notifications so viewers never
// have to poll. All store access goes through the Store interface,
// whose implementation is expected to do its own locking and hand back
// snapshots; the server never holds the device lock across I/O.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gdlive/gdlive/history"
	"github.com/gdlive/gdlive/observability"
)

// ErrAlreadyRunning reports that another instance of this system is
// already serving on the requested address.
var ErrAlreadyRunning = errors.New("server already running at this address")

// signature identifies our /ping responses so the startup probe can
// tell a sibling instance from an unrelated service.
const signature = "gdlive"

// TokenHeader is the dedicated header clients may use instead of a
// bearer Authorization header or a token query parameter.
const TokenHeader = "X-Gdlive-Token"

// StoreState is the cheap state snapshot served by /state.
type StoreState struct {
	PageCount int
	UpID      int64
}

// Store is the read/mutate surface the server needs from the device.
type Store interface {
	State() StoreState
	RenderSVG(page int, width, height float64) ([]byte, error)
	RenderPDF(page int, width, height float64) ([]byte, error)
	RemovePage(page int) error
	ClearPages()
}

// Config fixes the server parameters; immutable after Start.
type Config struct {
	Host        string
	Port        int
	CORS        bool
	Token       string // empty disables authentication
	Payload     []byte // static client bundle served at /
	PayloadPath string // optional: reload Payload from this file on change
	Announce    bool   // advertise via mDNS
	Logger      observability.Logger
}

type Server struct {
	cfg    Config
	store  Store
	logger observability.Logger
	hub    *hub

	httpSrv  *http.Server
	listener net.Listener
	port     int

	payloadMu sync.RWMutex
	payload   []byte

	announcer *announcer
	watcher   *payloadWatcher
}

func New(cfg Config, store Store) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &Server{
		cfg:     cfg,
		store:   store,
		logger:  logger,
		hub:     newHub(logger),
		payload: cfg.Payload,
	}
}

// Start probes for a sibling instance, binds the port and begins
// serving. It returns once the listener is bound, so a nil error means
// the port is owned and Port() is final.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	if s.cfg.Port != 0 && probeSibling(addr) {
		return fmt.Errorf("start on %s: %w", addr, ErrAlreadyRunning)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", addr, err)
	}
	s.listener = ln
	s.port = ln.Addr().(*net.TCPAddr).Port

	s.httpSrv = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("serve", observability.Error("err", err))
		}
	}()

	if s.cfg.Announce {
		a, err := announce(s.port)
		if err != nil {
			s.logger.Warn("mdns announce failed", observability.Error("err", err))
		} else {
			s.announcer = a
		}
	}
	if s.cfg.PayloadPath != "" {
		w, err := watchPayload(s.cfg.PayloadPath, s.setPayload, s.hub, s.logger)
		if err != nil {
			s.logger.Warn("payload watch failed", observability.Error("err", err))
		} else {
			s.watcher = w
		}
	}

	s.logger.Info("server listening",
		observability.String("host", s.cfg.Host),
		observability.Int("port", s.port))
	return nil
}

// Port returns the bound port; meaningful after Start.
func (s *Server) Port() int { return s.port }

// NotifyUpdate pushes a new upid to all connected clients.
func (s *Server) NotifyUpdate(upid int64) {
	s.hub.broadcast(event{Type: "update", UpID: upid})
}

// Shutdown stops accepting connections, then tells the connected
// clients the device is going away, and releases the port. The
// listener closes before the close frames go out, so no client can
// slip in behind the goodbye. Only after Shutdown returns may device
// teardown proceed; the caller signals the engine through the sync
// layer.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.watcher != nil {
		s.watcher.close()
	}
	if s.announcer != nil {
		s.announcer.close()
	}
	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}
	s.hub.closeAll()
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) setPayload(p []byte) {
	s.payloadMu.Lock()
	s.payload = p
	s.payloadMu.Unlock()
}

func (s *Server) getPayload() []byte {
	s.payloadMu.RLock()
	defer s.payloadMu.RUnlock()
	return s.payload
}

// probeSibling reports whether a sibling instance answers /ping on the
// address. Unrelated services fail the signature check and are left to
// surface as a bind error instead.
func probeSibling(addr string) bool {
	client := http.Client{Timeout: 300 * time.Millisecond}
	resp, err := client.Get("http://" + addr + "/ping")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	var pong struct {
		Sig string `json:"sig"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&pong); err != nil {
		return false
	}
	return pong.Sig == signature
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/ping", s.handlePing)
	mux.HandleFunc("/state", s.handleState)
	mux.HandleFunc("/plot", s.handlePlot)
	mux.HandleFunc("/pdf", s.handlePDF)
	mux.HandleFunc("/remove", s.handleRemove)
	mux.HandleFunc("/clear", s.handleClear)
	mux.HandleFunc("/ws", s.handleWS)
	return s.wrap(mux)
}

// wrap applies CORS headers and the token gate. Authentication runs
// before any handler touches the store; /ping stays open so the
// startup probe works without credentials.
func (s *Server) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.CORS {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, "+TokenHeader)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		if s.cfg.Token != "" && r.URL.Path != "/ping" && !s.authorized(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request served",
			observability.String("path", r.URL.Path),
			observability.Duration(observability.MetricServeTime, time.Since(start)))
	})
}

func (s *Server) authorized(r *http.Request) bool {
	token := s.cfg.Token
	if auth := r.Header.Get("Authorization"); auth == "Bearer "+token {
		return true
	}
	if r.Header.Get(TokenHeader) == token {
		return true
	}
	return r.URL.Query().Get("token") == token
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(s.getPayload())
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok", "sig": signature})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	st := s.store.State()
	writeJSON(w, map[string]interface{}{
		"host":       s.cfg.Host,
		"port":       s.port,
		"token":      s.cfg.Token,
		"page_count": st.PageCount,
		"upid":       st.UpID,
	})
}

func queryFloat(r *http.Request, key string) float64 {
	v, err := strconv.ParseFloat(r.URL.Query().Get(key), 64)
	if err != nil {
		return 0
	}
	return v
}

func queryPage(r *http.Request) int {
	p, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil {
		return 1
	}
	return p
}

func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "image/svg+xml", s.store.RenderSVG)
}

func (s *Server) handlePDF(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, "application/pdf", s.store.RenderPDF)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, contentType string,
	render func(int, float64, float64) ([]byte, error)) {
	start := time.Now()
	page := queryPage(r)
	out, err := render(page, queryFloat(r, "width"), queryFloat(r, "height"))
	if errors.Is(err, history.ErrPageNotFound) {
		http.Error(w, "page not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("render", observability.Int("page", page), observability.Error("err", err))
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	s.logger.Debug("render",
		observability.Int("page", page),
		observability.Duration(observability.MetricRenderTime, time.Since(start)))
	w.Header().Set("Content-Type", contentType)
	w.Write(out)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.store.RemovePage(queryPage(r)); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]bool{"success": false})
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.store.ClearPages()
	writeJSON(w, map[string]bool{"success": true})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
