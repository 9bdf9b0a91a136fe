package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/thejerf/suture/v4"

	"github.com/nshruti113/ddos-detector/internal/capture/pcapsrc"
	"github.com/nshruti113/ddos-detector/internal/config"
	"github.com/nshruti113/ddos-detector/internal/detection"
	"github.com/nshruti113/ddos-detector/internal/enforce"
	"github.com/nshruti113/ddos-detector/internal/logging"
	"github.com/nshruti113/ddos-detector/internal/report"
	"github.com/nshruti113/ddos-detector/internal/storage"
)

const statsInterval = 5 * time.Second

// Server holds the engine and its collaborators
type Server struct {
	cfg    *config.Config
	engine *detection.Engine
	redis  *storage.RedisClient
	hub    *Hub
	router *gin.Engine
}

func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	s := &Server{cfg: cfg, hub: NewHub()}

	if cfg.Redis.Enabled {
		rc, err := storage.NewRedisClient(ctx, storage.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			AlertChannel: cfg.Redis.AlertChannel,
			BlocklistKey: cfg.Redis.BlocklistKey,
			HistoryLimit: cfg.Redis.HistoryLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		s.redis = rc
	}

	sinks := []detection.AlertSink{s.hub}
	if s.redis != nil {
		sinks = append(sinks, storage.NewAlertStore(s.redis))
	}

	var reporter detection.Reporter
	if cfg.Reporting.Endpoint != "" {
		reporter = report.New(report.Config{
			Endpoint:      cfg.Reporting.Endpoint,
			TargetService: cfg.Reporting.TargetService,
			Timeout:       cfg.Reporting.Timeout,
		})
	}

	s.engine = detection.NewEngine(cfg.Engine(), s.enforcer(), reporter, sinks...)
	s.router = s.setupRouter()
	return s, nil
}

func (s *Server) enforcer() detection.Enforcer {
	switch s.cfg.Enforcement.Backend {
	case config.BackendRedis:
		if s.redis != nil {
			return storage.NewBlocklist(s.redis)
		}
	case config.BackendLog:
		return enforce.NewLog()
	case config.BackendIptables:
		return enforce.NewIptables(s.cfg.Enforcement.IptablesChain, s.cfg.Enforcement.IptablesBinary)
	}
	return enforce.NewLog()
}

// supervisor assembles the suture tree: engine, HTTP API, stats feed and
// the optional packet capture source.
func (s *Server) supervisor() (*suture.Supervisor, error) {
	// the engine lifts its blocks before returning
	shutdownTimeout := s.cfg.Enforcement.TeardownTimeout + 10*time.Second

	root := suture.New("ddos-detector", suture.Spec{
		EventHook: func(e suture.Event) {
			logging.Warn().Fields(e.Map()).Msg(e.String())
		},
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          shutdownTimeout,
	})

	root.Add(s.engine)
	root.Add(&httpService{addr: s.cfg.Server.Addr, handler: s.router})
	root.Add(&statsBroadcaster{hub: s.hub, engine: s.engine, interval: statsInterval})

	c := s.cfg.Capture
	if c.Interface != "" || c.PcapFile != "" {
		src, err := pcapsrc.New(pcapsrc.Config{
			Interface:   c.Interface,
			PcapFile:    c.PcapFile,
			BPFFilter:   c.BPFFilter,
			Snaplen:     c.Snaplen,
			Promiscuous: c.Promiscuous,
		}, s.engine)
		if err != nil {
			return nil, err
		}
		root.Add(src)
	}
	return root, nil
}

func (s *Server) Close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			logging.Warn().Err(err).Msg("redis close failed")
		}
	}
}

// httpService runs the API server under the supervisor. A fresh
// http.Server is built per run since a shut down server cannot restart.
type httpService struct {
	addr    string
	handler http.Handler
}

func (h *httpService) String() string { return "http:" + h.addr }

func (h *httpService) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              h.addr,
		Handler:           h.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", h.addr).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Warn().Err(err).Msg("http shutdown")
		}
		return ctx.Err()
	}
}

func listInterfaces() error {
	ifaces, err := pcapsrc.Interfaces()
	if err != nil {
		return err
	}
	for _, iface := range ifaces {
		fmt.Println(iface.Name, iface.Description)
	}
	return nil
}

func main() {
	configPath := flag.String("config", "", "path to YAML config (default $"+config.ConfigPathEnvVar+")")
	listIfaces := flag.Bool("list-interfaces", false, "print capture interfaces and exit")
	flag.Parse()

	if *listIfaces {
		if err := listInterfaces(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	gin.SetMode(gin.ReleaseMode)

	logging.Info().Msg("🚀 Starting DDoS detector")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := NewServer(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to create server")
	}
	defer server.Close()

	logging.Info().
		Int("threshold", cfg.Detection.Threshold).
		Int("window_seconds", cfg.Detection.WindowSeconds).
		Bool("enforcement", cfg.Enforcement.Enabled).
		Str("enforcer", cfg.Enforcement.Backend).
		Bool("reporting", cfg.Reporting.Endpoint != "").
		Bool("redis", cfg.Redis.Enabled).
		Msg("configuration loaded")

	root, err := server.supervisor()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to build supervisor")
	}

	if err := root.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("supervisor exited")
	}
	logging.Info().Msg("👋 shutdown complete")
}
