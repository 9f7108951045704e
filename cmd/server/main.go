// Package main is the entry point for the GnosisLand treasury service, the
// ledger and yield-routing engine behind the marketplace: it mints the
// 1:1-backed unit-of-account, distributes purchase fees, and routes pooled
// funds into two external yield protocols.
package main

import (
	"context"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/jovemjeune/gnosisland-treasury/internal/config"
	"github.com/jovemjeune/gnosisland-treasury/internal/export"
	"github.com/jovemjeune/gnosisland-treasury/internal/migrate"
	"github.com/jovemjeune/gnosisland-treasury/internal/otel"
	"github.com/jovemjeune/gnosisland-treasury/internal/protocol"
	"github.com/jovemjeune/gnosisland-treasury/internal/security"
	"github.com/jovemjeune/gnosisland-treasury/internal/treasury"
	"github.com/jovemjeune/gnosisland-treasury/internal/types"
)

// startTime records when the service was initialized for uptime reporting
var startTime = time.Now()

// Server exposes the treasury over HTTP.
type Server struct {
	cfg      config.Config
	svc      *treasury.Service
	signer   *security.SnapshotSigner
	server   *http.Server
	metrics  *serverMetrics
	limiter  *rate.Limiter
	exporter *export.Exporter
}

// serverMetrics holds Prometheus metrics for the server
type serverMetrics struct {
	opCounter      *prometheus.CounterVec
	opDuration     *prometheus.HistogramVec
	protocolErrors *prometheus.CounterVec
	totalSupply    prometheus.Gauge
	heldUnderlying prometheus.Gauge
	revenuePool    prometheus.Gauge
	totalStaked    prometheus.Gauge
	vaultShares    prometheus.Gauge
}

// registerMetrics sets up Prometheus metrics collection
func registerMetrics() *serverMetrics {
	m := &serverMetrics{
		opCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "treasury_operations_total",
				Help: "Total number of treasury operations processed",
			},
			[]string{"op", "status"},
		),
		opDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "treasury_operation_duration_seconds",
				Help:    "Operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		protocolErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "treasury_protocol_errors_total",
				Help: "Total number of absorbed external protocol failures",
			},
			[]string{"protocol"},
		),
		totalSupply: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "treasury_total_supply",
			Help: "Unit-of-account outstanding",
		}),
		heldUnderlying: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "treasury_held_underlying",
			Help: "Underlying under treasury control",
		}),
		revenuePool: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "treasury_revenue_pool",
			Help: "Accumulated protocol revenue",
		}),
		totalStaked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "treasury_total_staked",
			Help: "Pooled funds recorded across both yield protocols",
		}),
		vaultShares: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "treasury_vault_shares",
			Help: "Vault shares outstanding",
		}),
	}

	prometheus.MustRegister(
		m.opCounter,
		m.opDuration,
		m.protocolErrors,
		m.totalSupply,
		m.heldUnderlying,
		m.revenuePool,
		m.totalStaked,
		m.vaultShares,
	)
	return m
}

// main is the entry point for the application
func main() {
	setupLogging()

	cfg := config.Load()

	shutdownTracer := otel.InitTracer(cfg.OtelEndpoint)
	defer shutdownTracer()

	svc, err := treasury.New(treasury.Options{
		Owner:                   cfg.Owner,
		AuthorizedCaller:        cfg.AuthorizedCaller,
		Alpha:                   protocol.New(types.ProtocolAlpha, cfg.ProtocolAlpha),
		Beta:                    protocol.New(types.ProtocolBeta, cfg.ProtocolBeta),
		AllocationPercent:       cfg.AllocationPercent,
		LockPeriod:              cfg.LockPeriod,
		MinPurchasePrice:        cfg.MinPurchasePrice,
		BreakerFailureThreshold: cfg.BreakerFailureThreshold,
		BreakerCooldown:         cfg.BreakerCooldown,
	})
	if err != nil {
		logrus.Fatalf("Failed to initialize treasury: %v", err)
	}

	var signer *security.SnapshotSigner
	if hexKey := os.Getenv("SNAPSHOT_SIGNING_KEY"); hexKey != "" {
		signer, err = security.NewSnapshotSignerFromHex(hexKey)
	} else {
		signer, err = security.NewSnapshotSigner()
	}
	if err != nil {
		logrus.Fatalf("Failed to initialize snapshot signer: %v", err)
	}

	server := NewServer(cfg, svc, signer)
	server.Start()
}

// setupLogging configures the logging for the application
func setupLogging() {
	logFormat := strings.ToLower(os.Getenv("LOG_FORMAT"))
	logLevel := strings.ToLower(os.Getenv("LOG_LEVEL"))

	switch logFormat {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	switch logLevel {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	logrus.Info("Logging configured")
}

// NewServer creates a new server instance around a treasury service.
func NewServer(cfg config.Config, svc *treasury.Service, signer *security.SnapshotSigner) *Server {
	s := &Server{
		cfg:     cfg,
		svc:     svc,
		signer:  signer,
		metrics: registerMetrics(),
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
	}

	// Absorbed external failures surface in metrics even though they never
	// abort an operation
	svc.Router().ErrorHook = func(name string) {
		s.metrics.protocolErrors.WithLabelValues(name).Inc()
	}

	if cfg.SnapshotWebhookURL != "" {
		s.exporter = export.New(export.Config{
			WebhookURL: cfg.SnapshotWebhookURL,
			Interval:   cfg.SnapshotInterval,
		}, s)
	}

	logrus.WithFields(logrus.Fields{
		"port":               cfg.Port,
		"allocation_percent": cfg.AllocationPercent,
		"lock_period":        cfg.LockPeriod,
		"min_price":          cfg.MinPurchasePrice.String(),
	}).Info("Server initialized")
	return s
}

// SignedSnapshot implements export.SnapshotSource.
func (s *Server) SignedSnapshot() (*migrate.Envelope, error) {
	return migrate.Export(s.svc.ExportState(), s.signer)
}

// Start begins the HTTP server and sets up graceful shutdown
func (s *Server) Start() {
	mux := http.NewServeMux()

	// Staker-facing operations
	mux.HandleFunc("/deposit", s.handleDeposit)
	mux.HandleFunc("/redeem", s.handleRedeem)
	mux.HandleFunc("/stake", s.handleStake)
	mux.HandleFunc("/unstake", s.handleUnstake)
	mux.HandleFunc("/claim", s.handleClaim)
	mux.HandleFunc("/claimable", s.handleClaimable)
	mux.HandleFunc("/withdrawable", s.handleWithdrawable)
	mux.HandleFunc("/balance", s.handleBalance)
	mux.HandleFunc("/referrer", s.handleReferrerStats)

	// Catalog-layer entry points (authorized caller only)
	mux.HandleFunc("/fee", s.handleReceiveFee)
	mux.HandleFunc("/payment", s.handleUnitPayment)
	mux.HandleFunc("/fund", s.handleFund)

	// Administrative surface (owner only)
	mux.HandleFunc("/admin/pause", s.handlePause)
	mux.HandleFunc("/admin/unpause", s.handleUnpause)
	mux.HandleFunc("/admin/allocation", s.handleSetAllocation)
	mux.HandleFunc("/admin/caller", s.handleSetCaller)
	mux.HandleFunc("/admin/owner", s.handleTransferOwnership)
	mux.HandleFunc("/state/export", s.handleExportState)
	mux.HandleFunc("/state/import", s.handleImportState)

	// Operational endpoints
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if s.exporter != nil {
		s.exporter.Start()
	}

	go func() {
		logrus.Infof("Server starting on port %s", s.cfg.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Error starting server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Server shutting down...")
	if s.exporter != nil {
		s.exporter.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		logrus.Fatalf("Server shutdown failed: %v", err)
	}

	logrus.Info("Server stopped")
}

// updateGauges refreshes the aggregate gauges after a mutating operation.
func (s *Server) updateGauges() {
	stats := s.svc.Stats()
	s.metrics.totalSupply.Set(bigToFloat(stats.TotalSupply))
	s.metrics.heldUnderlying.Set(bigToFloat(stats.Held))
	s.metrics.revenuePool.Set(bigToFloat(stats.RevenuePool))
	s.metrics.totalStaked.Set(bigToFloat(stats.TotalStaked))
	s.metrics.vaultShares.Set(bigToFloat(stats.VaultShares))
}

// bigToFloat converts a big.Int for gauge export; precision loss is
// acceptable for monitoring.
func bigToFloat(x *big.Int) float64 {
	f, _ := new(big.Float).SetInt(x).Float64()
	return f
}
