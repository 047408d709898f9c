// Command relay runs the rendezvous/signaling server: the channel peers
// always use to find each other and exchange SPAKE2/fingerprint messages
// before attempting a direct QUIC connection, and the opaque byte pipe they
// fall back to when a direct connection can't be established.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quantarax/relay/internal/observability"
	"github.com/quantarax/relay/internal/ratelimit"
)

// RelayConfig holds the rendezvous server's runtime configuration.
type RelayConfig struct {
	ListenAddress    string
	ConnectRateLimit float64 // new connections/sec, per process
	ConnectBurst     int
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		ListenAddress:    ":8080",
		ConnectRateLimit: 50,
		ConnectBurst:     100,
	}
}

// RelayService is the rendezvous server: a WebSocket accept loop in front
// of a rendezvous registry, plus the usual health/metrics sidecar.
type RelayService struct {
	cfg      RelayConfig
	log      *observability.Logger
	metrics  *observability.Metrics
	health   *observability.HealthChecker
	rv       *rendezvous
	limiter  *ratelimit.TokenBucket
	upgrader websocket.Upgrader

	httpServer *http.Server
}

func NewRelayService(cfg RelayConfig, log *observability.Logger, metrics *observability.Metrics, health *observability.HealthChecker) *RelayService {
	rv := newRendezvous(log, metrics)
	return &RelayService{
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		health:  health,
		rv:      rv,
		limiter: ratelimit.NewTokenBucket(cfg.ConnectRateLimit, cfg.ConnectBurst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Start binds the listener and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *RelayService) Start(ctx context.Context) error {
	s.health.RegisterCheck("rendezvous", observability.SignalingCheck(s.rv.activeCodeCount))

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/", s.handleWebSocket)
	mux.Handle("/metrics", s.metrics.Handler())
	mux.Handle("/healthz", s.health.Handler())

	s.httpServer = &http.Server{Addr: s.cfg.ListenAddress, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("rendezvous server listening on " + s.cfg.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// handleWebSocket upgrades /ws/{code} and hands the connection off to the
// rendezvous registry for the lifetime of the WebSocket.
func (s *RelayService) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Path[len("/ws/"):]
	if code == "" {
		http.Error(w, "missing transfer code", http.StatusBadRequest)
		return
	}

	if !s.limiter.Allow(1) {
		s.metrics.RecordRelayConnection(false)
		http.Error(w, "too many connections, try again shortly", http.StatusTooManyRequests)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error(err, "websocket upgrade failed")
		return
	}

	s.rv.handlePeer(code, ws, r.RemoteAddr)
}

func main() {
	listenAddr := flag.String("listen", DefaultRelayConfig().ListenAddress, "address to listen on")
	rateLimit := flag.Float64("rate-limit", DefaultRelayConfig().ConnectRateLimit, "new connections/sec allowed")
	burst := flag.Int("burst", DefaultRelayConfig().ConnectBurst, "connection burst size")
	flag.Parse()

	cfg := DefaultRelayConfig()
	cfg.ListenAddress = *listenAddr
	cfg.ConnectRateLimit = *rateLimit
	cfg.ConnectBurst = *burst

	log := observability.NewLogger("relay-rendezvous", "1.0.0", os.Stdout)
	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker("1.0.0")

	if shutdown, err := observability.InitTracing(context.Background(), "relay-rendezvous"); err == nil {
		defer shutdown(context.Background())
	}

	svc := NewRelayService(cfg, log, metrics, health)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Start(ctx); err != nil {
		log.Fatal(err, "rendezvous server exited with error")
	}
	log.Info("rendezvous server stopped")
}
