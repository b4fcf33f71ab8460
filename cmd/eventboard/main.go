package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"eventboard/internal/board"
	"eventboard/internal/capture"
	"eventboard/internal/config"
	"eventboard/internal/feed"
	appLog "eventboard/internal/log"
	"eventboard/internal/web"
)

const version = "0.1.0"

// flagConfig holds CLI flag values; non-empty values override the config file.
type flagConfig struct {
	configPath string
	listen     string
	baseURL    string
	out        string
	once       bool
	capture    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout))
}

func run(ctx context.Context, args []string, stdout io.Writer) int {
	flags, err := parseFlags(args)
	if err != nil {
		return 2
	}

	appLog.Info("eventboard starting", "version", version)

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return 1
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.baseURL != "" {
		conf.BaseURL = flags.baseURL
		conf.Normalize()
	}
	if flags.capture {
		conf.Capture.Enabled = true
	}
	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		return 1
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("effective config",
		"listen", conf.Listen,
		"events_url", conf.EventsURL(),
		"format", conf.Format,
		"container_id", conf.ContainerID,
		"show_details", conf.ShowDetails,
		"refresh", conf.RefreshCron,
		"capture", conf.Capture.Enabled,
		"once", flags.once,
	)

	b, err := newBoard(conf)
	if err != nil {
		appLog.Error("failed to initialize board", err)
		return 1
	}

	if flags.once {
		return runOnce(ctx, b, flags.out, stdout)
	}
	if err := serve(ctx, conf, b); err != nil {
		appLog.Error("server stopped", err)
		return 1
	}
	appLog.Info("eventboard exiting")
	return 0
}

func parseFlags(args []string) (flagConfig, error) {
	var cfg flagConfig
	fs := flag.NewFlagSet("eventboard", flag.ContinueOnError)

	fs.StringVar(&cfg.configPath, "config", "/etc/eventboard/config.yaml", "Path to config file")
	fs.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	fs.StringVar(&cfg.baseURL, "base-url", "", "Origin serving /events (overrides config if set)")
	fs.StringVar(&cfg.out, "out", "", "With -once, write the rendered page here instead of stdout")
	fs.BoolVar(&cfg.once, "once", false, "Run one fetch+render pass, print the page and exit")
	fs.BoolVar(&cfg.capture, "capture", false, "Capture a PNG of the board after each successful pass")

	err := fs.Parse(args)
	return cfg, err
}

func newBoard(conf *config.Config) (*board.Board, error) {
	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to UTC", err, "name", conf.Timezone)
		loc = time.UTC
	}

	fetcher := feed.NewFetcher(feed.Options{
		URL:     conf.EventsURL(),
		Format:  conf.Format,
		Timeout: time.Duration(conf.TimeoutSeconds) * time.Second,
		ICS: feed.ICSOptions{
			Location:     loc,
			HorizonDays:  conf.HorizonDays,
			BackfillDays: conf.BackfillDays,
		},
	})

	page, err := board.LoadPage(conf.PagePath)
	if err != nil {
		return nil, err
	}
	return board.New(fetcher, board.Options{
		Page:        page,
		ContainerID: conf.ContainerID,
		ShowDetails: conf.ShowDetails,
	})
}

// runOnce renders a single pass. A failed fetch is already logged by the
// board; the unrendered page is still written and the exit code stays 0.
func runOnce(ctx context.Context, b *board.Board, out string, stdout io.Writer) int {
	res := b.Refresh(ctx)
	if res.Err == nil {
		appLog.Info("render pass complete", "rendered", res.Rendered)
	}

	if out == "" {
		if _, err := stdout.Write(b.HTML()); err != nil {
			appLog.Error("failed to write page", err)
			return 1
		}
		return 0
	}
	if err := os.WriteFile(out, b.HTML(), 0o644); err != nil {
		appLog.Error("failed to write page", err, "path", out)
		return 1
	}
	return 0
}

// serve runs the web server, an initial asynchronous load and the cron
// refresh schedule until ctx is canceled.
func serve(ctx context.Context, conf *config.Config, b *board.Board) error {
	afterRender := newCaptureHook(conf, capture.CapturePNG).run

	srv := web.NewServer(conf, b)
	srv.OnRefresh(afterRender)

	c := cron.New()
	if _, err := c.AddFunc(conf.RefreshCron, func() {
		if res := b.Refresh(ctx); res.Err == nil {
			afterRender(ctx)
		}
	}); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", conf.RefreshCron, err)
	}

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Run(ctx)
	}()

	// Initial pass; the page is served unrendered until it lands.
	go func() {
		if res := <-b.Load(ctx); res.Err == nil {
			afterRender(ctx)
		}
	}()

	c.Start()
	appLog.Info("refresh scheduled", "cron", conf.RefreshCron)

	err := <-srvErr
	<-c.Stop().Done()
	return err
}

// captureHook takes the post-render screenshot. Cron, the initial load and
// POST /api/refresh all reach it, so runs are serialized on one output file.
type captureHook struct {
	mu      sync.Mutex
	conf    *config.Config
	capture func(context.Context, capture.Options) error
}

func newCaptureHook(conf *config.Config, fn func(context.Context, capture.Options) error) *captureHook {
	return &captureHook{conf: conf, capture: fn}
}

func (h *captureHook) run(ctx context.Context) {
	if !h.conf.Capture.Enabled {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	opts := capture.Options{
		URL:           captureURL(h.conf),
		OutputPath:    h.conf.Capture.OutputPath,
		ReadySelector: "#" + h.conf.ContainerID,
		Width:         h.conf.Capture.Width,
		Height:        h.conf.Capture.Height,
	}
	if err := h.capture(ctx, opts); err != nil {
		appLog.Error("capture failed", err, "output", opts.OutputPath)
		return
	}
	appLog.Info("capture complete", "output", opts.OutputPath)
}

// captureURL points headless Chromium at our own listener.
func captureURL(conf *config.Config) string {
	host, port, err := net.SplitHostPort(conf.Listen)
	if err != nil {
		host, port = "127.0.0.1", "8080"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	u := url.URL{Scheme: "http", Host: net.JoinHostPort(host, port), Path: "/"}
	if conf.BasicAuth != nil && conf.BasicAuth.Username != "" && conf.BasicAuth.Password != "" {
		u.User = url.UserPassword(conf.BasicAuth.Username, conf.BasicAuth.Password)
	}
	return u.String()
}
