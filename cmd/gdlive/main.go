package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/gdlive/gdlive/device"
	"github.com/gdlive/gdlive/draw"
	"github.com/gdlive/gdlive/fonts"
	"github.com/gdlive/gdlive/observability"
)

type options struct {
	host       string
	port       int
	token      string
	genToken   int
	cors       bool
	announce   bool
	width      float64
	height     float64
	payload    string
	demo       bool
	systemFont bool
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gdlive: %v\n", err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "gdlive: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var opts options
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: gdlive [flags]\n")
		flag.PrintDefaults()
	}
	flag.StringVar(&opts.host, "host", "127.0.0.1", "Address to bind")
	flag.IntVar(&opts.port, "port", 8288, "Port to bind (0 picks a free port)")
	flag.StringVar(&opts.token, "token", "", "Bearer token required on every request")
	flag.IntVar(&opts.genToken, "gen-token", 0, "Generate a random token of this length instead of -token")
	flag.BoolVar(&opts.cors, "cors", false, "Send permissive CORS headers")
	flag.BoolVar(&opts.announce, "announce", false, "Advertise the server via mDNS")
	flag.Float64Var(&opts.width, "width", 720, "Device width in points")
	flag.Float64Var(&opts.height, "height", 576, "Device height in points")
	flag.StringVar(&opts.payload, "payload", "", "Path to a client HTML bundle (watched for changes)")
	flag.BoolVar(&opts.demo, "demo", true, "Draw a demo page on startup")
	flag.BoolVar(&opts.systemFont, "system-fonts", false, "Measure text with the installed system fonts")
	flag.Parse()

	if flag.NArg() != 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", flag.Args())
	}
	if opts.token != "" && opts.genToken > 0 {
		return opts, fmt.Errorf("-token and -gen-token are mutually exclusive")
	}
	return opts, nil
}

func run(opts options) error {
	logger := observability.NewWriterLogger(os.Stderr)

	token := opts.token
	if opts.genToken > 0 {
		var err error
		token, err = device.RandomToken(opts.genToken)
		if err != nil {
			return err
		}
	}

	var metrics fonts.Service = fonts.Fixed{}
	if opts.systemFont {
		sys, err := fonts.NewSystemService("")
		if err != nil {
			logger.Warn("system fonts unavailable, using fixed metrics",
				observability.Error("err", err))
		} else {
			metrics = sys
		}
	}

	cfg := device.Config{
		Host:       opts.host,
		Port:       opts.port,
		CORS:       opts.cors,
		Token:      token,
		Width:      opts.width,
		Height:     opts.height,
		PointSize:  12,
		Background: draw.White,
		Recording:  true,
		Announce:   opts.announce,
		Payload:    []byte(viewerHTML),
		Metrics:    metrics,
		Logger:     logger,
	}
	if opts.payload != "" {
		cfg.PayloadPath = opts.payload
	}

	session := device.NewSession(cfg)
	if err := session.Start(); err != nil {
		return err
	}

	if opts.demo {
		drawDemo(session, opts.width, opts.height)
	}

	st := session.SessionState()
	fmt.Printf("serving on http://%s:%d/", st.Host, st.Port)
	if st.Token != "" {
		fmt.Printf("?token=%s", st.Token)
	}
	fmt.Println()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	return session.Close()
}

// drawDemo records a page that exercises every primitive once.
func drawDemo(s *device.Session, w, h float64) {
	stroke := draw.GC{Stroke: draw.Black, Fill: draw.Transparent, LineWidth: 1}
	filled := draw.GC{Stroke: draw.RGB(40, 40, 160), Fill: draw.RGB(200, 220, 255), LineWidth: 2}
	dashed := stroke
	dashed.LineType = draw.LineType(0x44)

	s.Mode(true)
	s.BeginPage(w, h, draw.White)

	s.Rect(filled, w*0.05, h*0.05, w*0.45, h*0.45)
	s.Circle(filled, w*0.7, h*0.25, math.Min(w, h)*0.15)
	s.Line(dashed, w*0.05, h*0.5, w*0.95, h*0.5)

	xs := make([]float64, 40)
	ys := make([]float64, 40)
	for i := range xs {
		t := float64(i) / float64(len(xs)-1)
		xs[i] = w * (0.05 + 0.9*t)
		ys[i] = h * (0.75 + 0.15*math.Sin(t*4*math.Pi))
	}
	s.Polyline(stroke, xs, ys)

	s.Text(stroke, w*0.05, h*0.6, "gdlive demo page", 0, 0,
		fonts.Style{Family: "sans"}, 16)

	s.Mode(false)
}
