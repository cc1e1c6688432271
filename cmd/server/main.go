// Package main implements the signage fleet operations console: device
// enumeration, bulk reboot, configuration validation, and remediation over
// the upstream Wave device API.
package main

import (
	"context"
	"crypto/subtle"
	"embed"
	"flag"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"signagectl/internal/checker"
	"signagectl/internal/config"
	"signagectl/internal/policy"
	"signagectl/internal/remediate"
	"signagectl/internal/wave"
)

const (
	// HTTP timeouts. Write timeout is generous: validation runs stream
	// for minutes on large fleets.
	readTimeout  = 15 * time.Second
	writeTimeout = 30 * time.Minute
	idleTimeout  = 60 * time.Second

	shutdownTimeout = 10 * time.Second

	// Request validation limits.
	maxRequestBody = 50 * 1024 * 1024 // large device id lists
	maxDeviceIDs   = 100000
)

//go:embed static/*
var staticFiles embed.FS

var (
	envFile    = flag.String("env", ".env", "Path to env file (optional)")
	policyFile = flag.String("policy", "", "Path to fleet policy YAML (optional, built-in default)")
	portFlag   = flag.String("port", "", "Server port (overrides PORT env)")
)

// Server owns the gateway, runner, and engine shared by all handlers.
// Validation and remediation runs are independent tasks; the only shared
// mutable state is the session token set and the request counters.
type Server struct {
	gateway  wave.Gateway
	runner   *checker.Runner
	engine   *remediate.Engine
	hub      *Hub
	policy   policy.Policy
	password string

	sessionMu sync.RWMutex
	sessions  map[string]time.Time

	statsMu      sync.Mutex
	requestCount int64
	errorCount   int64
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("[ERROR] Failed to load configuration: %v", err)
	}
	if *portFlag != "" {
		cfg.Port = *portFlag
	}

	fleetPolicy, err := policy.Load(*policyFile)
	if err != nil {
		log.Fatalf("[ERROR] Failed to load policy: %v", err)
	}
	log.Printf("[INFO] Fleet policy: time_zone=%s preferred_app=%s acceptable_source=%s expected_power=%s",
		fleetPolicy.TimeZone, fleetPolicy.PreferredApp, fleetPolicy.AcceptableSource, fleetPolicy.ExpectedPower)

	gateway := wave.NewClient(cfg.WaveURL, cfg.WaveAuthorization)

	server := &Server{
		gateway:  gateway,
		runner:   checker.New(gateway, fleetPolicy, checker.Options{}),
		engine:   remediate.New(gateway, fleetPolicy, remediate.Options{}),
		hub:      NewHub(),
		policy:   fleetPolicy,
		password: cfg.ConsolePassword,
		sessions: make(map[string]time.Time),
	}

	if cfg.ConsolePassword != "" {
		log.Println("[INFO] Console password authentication enabled")
	} else {
		log.Println("[WARN] Running without console authentication")
	}

	staticRoot, err := fs.Sub(staticFiles, "static")
	if err != nil {
		log.Fatalf("[ERROR] Failed to mount static files: %v", err)
	}

	mux := server.routes(http.FileServer(http.FS(staticRoot)))

	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        loggingMiddleware(mux),
		ReadTimeout:    readTimeout,
		WriteTimeout:   writeTimeout,
		IdleTimeout:    idleTimeout,
		MaxHeaderBytes: 1 << 16,
	}

	go func() {
		log.Printf("[INFO] Console server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[ERROR] Server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("[INFO] Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[ERROR] Server shutdown error: %v", err)
	} else {
		log.Println("[INFO] Server shutdown complete")
	}
}

// routes builds the handler table around the given static file handler.
func (s *Server) routes(static http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/", static)
	mux.HandleFunc("/api/login", s.handleLogin)
	mux.HandleFunc("/api/clients", s.handleClients)
	mux.HandleFunc("/api/clients/", s.handleClientSubroutes)
	mux.HandleFunc("/api/reports/export", s.handleExport)
	mux.HandleFunc("/api/ws", s.handleWS)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		start := time.Now()
		next.ServeHTTP(w, r)
		duration := time.Since(start)

		if duration > 1*time.Second {
			log.Printf("[WARN] Slow request: %s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, duration)
		} else {
			log.Printf("[DEBUG] %s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, duration)
		}
	})
}

func (s *Server) incrementRequestCount() {
	s.statsMu.Lock()
	s.requestCount++
	s.statsMu.Unlock()
}

func (s *Server) incrementErrorCount() {
	s.statsMu.Lock()
	s.errorCount++
	s.statsMu.Unlock()
}

// constantTimeCompare performs constant-time string comparison to prevent
// timing attacks.
func constantTimeCompare(a, b string) bool {
	return len(a) == len(b) && subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
