// Package device ties one drawing session together: the history store,
// the sync guard, the metrics service and the live server. The host
// engine drives a Session through the Sink interface from its own
// single thread; everything the server needs runs through the same
// guard on the other side.
package device

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gdlive/gdlive/devsync"
	"github.com/gdlive/gdlive/draw"
	"github.com/gdlive/gdlive/fonts"
	"github.com/gdlive/gdlive/history"
	"github.com/gdlive/gdlive/observability"
	"github.com/gdlive/gdlive/pdf"
	"github.com/gdlive/gdlive/server"
	"github.com/gdlive/gdlive/svg"
)

// Config fixes one session's parameters. Immutable after NewSession.
type Config struct {
	Host       string
	Port       int
	CORS       bool
	Token      string // empty disables authentication
	Width      float64
	Height     float64
	PointSize  float64
	Background draw.Color
	Recording  bool // false keeps only the current page

	Payload     []byte
	PayloadPath string
	Announce    bool

	Metrics fonts.Service
	Logger  observability.Logger
}

// Sink is the capability interface the host engine's adapter calls
// into. Calls arrive on a single thread, one at a time. None of the
// drawing operations can fail observably; unexpected state is absorbed
// as a no-op.
type Sink interface {
	BeginPage(width, height float64, background draw.Color)
	Clip(x0, x1, y0, y1 float64)
	Mode(drawing bool)

	Line(gc draw.GC, x1, y1, x2, y2 float64)
	Polyline(gc draw.GC, xs, ys []float64)
	Polygon(gc draw.GC, xs, ys []float64)
	Path(gc draw.GC, xs, ys []float64, pointsPer []int, winding bool)
	Rect(gc draw.GC, x0, y0, x1, y1 float64)
	Circle(gc draw.GC, x, y, r float64)
	Text(gc draw.GC, x, y float64, str string, rot, hadj float64, style fonts.Style, size float64)
	Raster(gc draw.GC, pixels []uint32, width, height int, x, y, w, h, rot float64, interpolate bool)
}

// State is the session snapshot handed to the embedder.
type State struct {
	Host      string
	Port      int
	Token     string
	PageCount int
	UpID      int64
}

// Session is one drawing session. It implements Sink for the engine
// side and server.Store for the server side.
type Session struct {
	id      string
	cfg     Config
	store   *history.Store
	guard   *devsync.Guard
	srv     *server.Server
	metrics fonts.Service
	logger  observability.Logger
	clip    draw.Clip
}

func NewSession(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger{}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = fonts.Fixed{}
	}
	id := uuid.NewString()
	s := &Session{
		id:      id,
		cfg:     cfg,
		store:   history.NewStore(cfg.Recording),
		guard:   devsync.NewGuard(logger),
		metrics: metrics,
		logger:  logger.With(observability.String("session", id)),
	}
	s.srv = server.New(server.Config{
		Host:        cfg.Host,
		Port:        cfg.Port,
		CORS:        cfg.CORS,
		Token:       cfg.Token,
		Payload:     cfg.Payload,
		PayloadPath: cfg.PayloadPath,
		Announce:    cfg.Announce,
		Logger:      s.logger,
	}, s)
	return s
}

// Start brings the server up. It fails fast on a configuration error:
// a sibling instance on the address or an occupied port.
func (s *Session) Start() error {
	if err := s.srv.Start(); err != nil {
		return err
	}
	s.logger.Info("device started",
		observability.String("host", s.cfg.Host),
		observability.Int("port", s.srv.Port()))
	return nil
}

// Close drains pending deferred work, clears the history and shuts the
// server down. Only when the server has released its port does the
// device report itself closed, so a restart on the same address cannot
// race the old listener.
func (s *Session) Close() error {
	s.guard.Drain()
	s.guard.Exclusive(func() {
		s.store.Clear()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.srv.Shutdown(ctx)
	s.logger.Info("device closed")
	return err
}

// State reports the live session state for the embedder.
func (s *Session) State() server.StoreState {
	var st server.StoreState
	s.guard.Exclusive(func() {
		st = server.StoreState{PageCount: s.store.PageCount(), UpID: s.store.UpID()}
	})
	return st
}

// SessionState is State plus the connection parameters.
func (s *Session) SessionState() State {
	st := s.State()
	return State{
		Host:      s.cfg.Host,
		Port:      s.srv.Port(),
		Token:     s.cfg.Token,
		PageCount: st.PageCount,
		UpID:      st.UpID,
	}
}

// snapshot copies the requested page under the guard; rendering always
// happens after release so a slow render never blocks the engine.
func (s *Session) snapshot(page int) (*history.Page, error) {
	var (
		p   *history.Page
		err error
	)
	s.guard.Exclusive(func() {
		p, err = s.store.Page(page)
	})
	return p, err
}

// RenderSVG renders the given 1-based page at the target size.
func (s *Session) RenderSVG(page int, width, height float64) ([]byte, error) {
	p, err := s.snapshot(page)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("render svg",
		observability.Int("page", page),
		observability.Int(observability.MetricCommandCount, len(p.Commands)),
		observability.Float64("width", width),
		observability.Float64("height", height))
	return svg.Render(p, width, height), nil
}

// RenderPDF renders the given 1-based page to a PDF document.
func (s *Session) RenderPDF(page int, width, height float64) ([]byte, error) {
	p, err := s.snapshot(page)
	if err != nil {
		return nil, err
	}
	return pdf.Render(p, width, height)
}

// RemovePage removes a page on behalf of the server or the embedder.
func (s *Session) RemovePage(page int) error {
	var err error
	s.guard.Exclusive(func() {
		err = s.store.Remove(page)
	})
	if err != nil {
		return err
	}
	s.notify()
	return nil
}

// ClearPages drops the whole history.
func (s *Session) ClearPages() {
	s.guard.Exclusive(func() {
		s.store.Clear()
	})
	s.notify()
}

// RunOnEngine schedules fn to run on the drawing engine's thread at
// its next safe point (the next Mode or BeginPage call). With wait set
// it blocks until fn has completed. Failures inside fn are logged and
// swallowed, never surfaced to the engine.
func (s *Session) RunOnEngine(fn func(), wait bool) {
	s.guard.Defer(fn, wait)
}

func (s *Session) notify() {
	var (
		upid  int64
		pages int
	)
	s.guard.Exclusive(func() {
		upid = s.store.UpID()
		pages = s.store.PageCount()
	})
	s.logger.Debug("history updated",
		observability.Int64(observability.MetricUpdateID, upid),
		observability.Int(observability.MetricPageCount, pages))
	s.srv.NotifyUpdate(upid)
}

// PageSize reports the size of the page being drawn, falling back to
// the configured device size before the first page.
func (s *Session) PageSize() (w, h float64) {
	ok := false
	s.guard.Exclusive(func() {
		w, h, ok = s.store.PageSize()
	})
	if !ok {
		return s.cfg.Width, s.cfg.Height
	}
	return w, h
}
