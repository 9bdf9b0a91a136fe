package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/nshruti113/ddos-detector/internal/logging"
	"github.com/nshruti113/ddos-detector/internal/models"
)

// Simulator posts generated events to the server's ingest endpoint at a
// paced rate.
type Simulator struct {
	serverURL string
	client    *http.Client
	limiter   *rate.Limiter
	batch     int

	sent    int
	dropped int
}

func NewSimulator(serverURL string, pps, batch int) *Simulator {
	if batch < 1 {
		batch = 1
	}
	if batch > pps {
		batch = pps
	}
	return &Simulator{
		serverURL: serverURL,
		client:    &http.Client{Timeout: 5 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(pps), batch),
		batch:     batch,
	}
}

type ingestResponse struct {
	Accepted int `json:"accepted"`
	Dropped  int `json:"dropped"`
}

// SendTraffic posts one batch of events
func (s *Simulator) SendTraffic(ctx context.Context, evs []models.PacketEvent) error {
	data, err := json.Marshal(evs)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+"/api/traffic/ingest", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ingest returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var out ingestResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return err
	}
	s.sent += out.Accepted
	s.dropped += out.Dropped
	return nil
}

// Run sends gen's traffic until ctx is done or duration elapses. A zero
// duration runs until cancelled.
func (s *Simulator) Run(ctx context.Context, gen *Generator, duration time.Duration) error {
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	batch := make([]models.PacketEvent, s.batch)
	for {
		if err := s.limiter.WaitN(ctx, s.batch); err != nil {
			// WaitN fails early when the deadline would pass first
			if _, ok := ctx.Deadline(); ok || ctx.Err() != nil {
				return nil
			}
			return err
		}

		for i := range batch {
			batch[i] = gen.Next()
		}
		if err := s.SendTraffic(ctx, batch); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logging.Warn().Err(err).Msg("send failed")
		}
	}
}

// RunDemo alternates normal traffic with each attack type
func (s *Simulator) RunDemo(ctx context.Context, sources int, phase time.Duration) error {
	sequence := []string{ModeHTTP, ModeSYN, ModeUDP, ModeICMP}

	for i := 0; ctx.Err() == nil; i++ {
		mode := sequence[i%len(sequence)]

		attack, err := NewGenerator(mode, sources, uint64(time.Now().UnixNano()))
		if err != nil {
			return err
		}
		logging.Warn().Str("mode", mode).Msg("⚠️  Starting attack")
		if err := s.Run(ctx, attack, phase); err != nil {
			return err
		}

		normal, _ := NewGenerator(ModeNormal, sources, uint64(time.Now().UnixNano()))
		logging.Info().Msg("✅ Attack stopped")
		if err := s.Run(ctx, normal, phase); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	serverURL := flag.String("server", "http://localhost:8888", "detector base URL")
	mode := flag.String("mode", ModeDemo, "traffic mode: normal, syn, udp, http, icmp or demo")
	pps := flag.Int("pps", 500, "events per second")
	batch := flag.Int("batch", 50, "events per request")
	sources := flag.Int("sources", 3, "number of attacking sources")
	duration := flag.Duration("duration", 0, "stop after this long (0 runs until interrupted)")
	phase := flag.Duration("phase", 10*time.Second, "demo phase length")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	logging.Init(logging.Config{Level: *level, Format: "console"})

	if *pps < 1 {
		fmt.Fprintln(os.Stderr, "-pps must be positive")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	sim := NewSimulator(*serverURL, *pps, *batch)
	logging.Info().
		Str("server", *serverURL).
		Str("mode", *mode).
		Int("pps", *pps).
		Int("sources", *sources).
		Msg("🚀 Starting traffic simulator")

	var err error
	if *mode == ModeDemo {
		err = sim.RunDemo(ctx, *sources, *phase)
	} else {
		var gen *Generator
		gen, err = NewGenerator(*mode, *sources, uint64(time.Now().UnixNano()))
		if err == nil {
			err = sim.Run(ctx, gen, 0)
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Fatal().Err(err).Msg("simulator failed")
	}

	logging.Info().Int("accepted", sim.sent).Int("dropped", sim.dropped).Msg("simulator finished")
}
