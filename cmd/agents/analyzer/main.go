// Threshold Analyzer Agent
// Consumes sensor readings and publishes ALERT / RECOVERY transitions
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mattpat48/se4iot-se4as/pkg/agent"
	"github.com/mattpat48/se4iot-se4as/pkg/alert"
	"github.com/mattpat48/se4iot-se4as/pkg/config"
	"github.com/mattpat48/se4iot-se4as/pkg/handler"
)

// AnalyzerAgent evaluates readings against the threshold table
type AnalyzerAgent struct {
	*agent.BaseAgent

	analyzer *alert.Analyzer
	hub      *handler.WebSocketHub

	httpAddr string
	origins  []string
}

func main() {
	if err := agent.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
	}

	cfg := agent.ConfigFromEnv(agent.AgentTypeAnalyzer, "analyzer-001")

	a, err := NewAnalyzerAgent(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create analyzer agent: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		a.Logger().Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
	}()

	if err := a.Start(ctx); err != nil {
		if err == context.Canceled {
			return
		}
		fmt.Fprintf(os.Stderr, "Failed to start analyzer agent: %v\n", err)
		os.Exit(1)
	}

	if err := a.Run(ctx); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "Analyzer agent error: %v\n", err)
		os.Exit(1)
	}

	a.Stop(context.Background())
}

// NewAnalyzerAgent creates the analyzer agent seeded with the default thresholds
func NewAnalyzerAgent(cfg agent.Config) (*AnalyzerAgent, error) {
	base, err := agent.NewBaseAgent(cfg)
	if err != nil {
		return nil, err
	}
	logger := *base.Logger()

	engine := alert.NewEngine(cfg.ID, config.DefaultThresholds())
	analyzer := alert.NewAnalyzer(engine, base.Bus(),
		alert.WithLogger(logger.With().Str("component", "analyzer").Logger()),
		alert.WithMetrics(alert.NewMetrics(base.Metrics())),
		alert.WithRestore(agent.GetEnvBool("RESTORE_SESSION", true)),
		alert.WithWorkers(agent.GetEnvInt("ALERT_WORKERS", alert.DefaultWorkers)),
		alert.WithInstrument(base.Instrument),
	)

	return &AnalyzerAgent{
		BaseAgent: base,
		analyzer:  analyzer,
		hub:       handler.NewWebSocketHub(base.Bus(), handler.AnalyzerFeeds, logger),
		httpAddr:  agent.GetEnv("HTTP_ADDR", ":9091"),
		origins:   strings.Split(agent.GetEnv("CORS_ORIGINS", "*"), ","),
	}, nil
}

// Run subscribes to readings and thresholds and then runs the workers, the
// live feed and the HTTP server until ctx is done
func (a *AnalyzerAgent) Run(ctx context.Context) error {
	if err := a.analyzer.Subscribe(ctx, a.Bus()); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	server := &http.Server{
		Addr:         a.httpAddr,
		Handler:      a.router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.hub.Run(gCtx)
		return nil
	})

	g.Go(func() error {
		return a.analyzer.Run(gCtx)
	})

	g.Go(func() error {
		a.Logger().Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.Logger().Info().Msg("Shutting down HTTP server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (a *AnalyzerAgent) router() http.Handler {
	logger := *a.Logger()
	r := handler.NewRouter(a.origins, handler.NewHTTPMetrics(a.Metrics()), logger)

	r.Handle("/metrics", promhttp.HandlerFor(a.Metrics(), promhttp.HandlerOpts{}))
	r.Get("/health", a.handleHealth)
	r.Handle("/ws", handler.NewWebSocketHandler(a.hub, a.origins, logger))
	r.Mount("/api/v1", handler.NewAnalyzerHandler(a.analyzer.Engine(), a.Bus(), logger).Routes())

	return r
}

// handleHealth handles GET /health
func (a *AnalyzerAgent) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := a.Health()
	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	handler.WriteJSON(w, status, health)
}
