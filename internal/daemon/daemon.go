// Package daemon runs registered sweeps on an interval and serves metrics
// and health endpoints until interrupted.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/metric"

	"github.com/yairfalse/vacuum/internal/plugin"
	"github.com/yairfalse/vacuum/wal"
)

const shutdownTimeout = 5 * time.Second

// Config holds daemon configuration
type Config struct {
	Interval    time.Duration
	MetricsAddr string
	// Sweeps run in order each cycle. Empty means every registered sweep.
	Sweeps  []plugin.Sweep
	Handler http.Handler
	Meter   metric.Meter

	Journal          *wal.WAL
	JournalDir       string
	JournalRetention time.Duration
}

// Daemon runs sweep cycles until its context is cancelled or a signal arrives.
type Daemon struct {
	cfg        Config
	metrics    *DaemonMetrics
	startTime  time.Time
	cycleCount atomic.Int64

	mu        sync.RWMutex
	addr      string
	lastCycle time.Time
	lastErr   error
}

// NewDaemon creates a new daemon instance
func NewDaemon(cfg Config) (*Daemon, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", cfg.Interval)
	}

	metrics, err := NewDaemonMetrics(cfg.Meter)
	if err != nil {
		return nil, fmt.Errorf("create daemon metrics: %w", err)
	}

	return &Daemon{
		cfg:       cfg,
		metrics:   metrics,
		startTime: time.Now(),
	}, nil
}

// Run blocks until ctx is cancelled, SIGINT or SIGTERM is received, or the
// metrics server fails.
func (d *Daemon) Run(ctx context.Context) error {
	var g run.Group

	{
		loopCtx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			d.loop(loopCtx)
			return nil
		}, func(error) {
			cancel()
		})
	}

	if d.cfg.MetricsAddr != "" {
		ln, err := net.Listen("tcp", d.cfg.MetricsAddr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", d.cfg.MetricsAddr, err)
		}
		d.mu.Lock()
		d.addr = ln.Addr().String()
		d.mu.Unlock()

		srv := &http.Server{
			Handler:           d.routes(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Add(func() error {
			log.Info().Str("addr", ln.Addr().String()).Msg("starting metrics server")
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		}, func(error) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		})
	}

	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	err := g.Run()

	var sigErr run.SignalError
	if errors.As(err, &sigErr) {
		log.Info().Str("signal", sigErr.Signal.String()).Msg("shutting down")
		return nil
	}
	if ctx.Err() != nil {
		log.Info().Msg("shutting down")
		return nil
	}
	return err
}

func (d *Daemon) loop(ctx context.Context) {
	_ = d.RunCycle(ctx)

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = d.RunCycle(ctx)
		}
	}
}

// RunCycle runs every sweep once, in order, then expires old journals.
// A failing sweep does not stop the ones after it.
func (d *Daemon) RunCycle(ctx context.Context) error {
	start := time.Now()
	var errs []error

	for _, s := range d.sweeps() {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		res, err := s.Run(ctx)
		status := "success"
		switch {
		case err != nil:
			status = "error"
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			log.Error().Ctx(ctx).Err(err).Str("sweep", s.Name()).Msg("sweep failed")
		case res != nil && !res.Success:
			status = "partial"
		}
		d.metrics.RecordSweep(ctx, s.Name(), status)
	}

	d.cleanupJournal(ctx)

	err := errors.Join(errs...)
	status := "success"
	if err != nil {
		status = "error"
	}
	d.metrics.RecordCycle(ctx, status, time.Since(start).Seconds())
	d.cycleCount.Add(1)

	d.mu.Lock()
	d.lastCycle = time.Now()
	d.lastErr = err
	d.mu.Unlock()

	log.Info().Ctx(ctx).
		Int64("cycle", d.cycleCount.Load()).
		Dur("duration", time.Since(start)).
		Str("status", status).
		Msg("cycle complete")
	return err
}

func (d *Daemon) sweeps() []plugin.Sweep {
	if len(d.cfg.Sweeps) > 0 {
		return d.cfg.Sweeps
	}
	return plugin.All()
}

func (d *Daemon) cleanupJournal(ctx context.Context) {
	if d.cfg.JournalDir == "" || d.cfg.JournalRetention <= 0 {
		return
	}
	stats, err := wal.Cleanup(d.cfg.JournalDir, d.cfg.JournalRetention, d.cfg.Journal)
	if err != nil {
		log.Warn().Ctx(ctx).Err(err).Str("dir", d.cfg.JournalDir).Msg("journal cleanup failed")
	}
	if stats.FilesRemoved > 0 {
		log.Info().Ctx(ctx).
			Int("files", stats.FilesRemoved).
			Int64("bytes", stats.BytesFreed).
			Msg("expired journals removed")
	}
	d.metrics.RecordJournalCleanup(ctx, stats.FilesRemoved)
}

// HealthStatus represents daemon health
type HealthStatus struct {
	Status    string    `json:"status"`
	Uptime    int64     `json:"uptime_seconds"`
	Cycles    int64     `json:"cycles"`
	LastCycle time.Time `json:"last_cycle,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Health returns daemon health status. The daemon reports degraded after
// a cycle with errors and recovers on the next clean one.
func (d *Daemon) Health() HealthStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	h := HealthStatus{
		Status:    "healthy",
		Uptime:    int64(time.Since(d.startTime).Seconds()),
		Cycles:    d.cycleCount.Load(),
		LastCycle: d.lastCycle,
	}
	if d.lastErr != nil {
		h.Status = "degraded"
		h.LastError = d.lastErr.Error()
	}
	return h
}

// CycleCount returns total cycles run
func (d *Daemon) CycleCount() int64 {
	return d.cycleCount.Load()
}

// Addr returns the metrics server address once it is listening.
func (d *Daemon) Addr() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.addr
}

func (d *Daemon) routes() http.Handler {
	mux := http.NewServeMux()
	if d.cfg.Handler != nil {
		mux.Handle("/metrics", d.cfg.Handler)
	}
	mux.HandleFunc("/health", d.handleHealth)
	mux.HandleFunc("/healthz", handleHealthz)
	mux.HandleFunc("/-/healthy", handleHealthz)
	mux.HandleFunc("/readyz", d.handleReadyz)
	mux.HandleFunc("/-/ready", d.handleReadyz)
	return mux
}

func (d *Daemon) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(d.Health())
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (d *Daemon) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if len(d.sweeps()) == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("no sweeps registered"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
