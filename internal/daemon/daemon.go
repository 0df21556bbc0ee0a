package daemon

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/allaspectsdev/webcore/internal/admin"
	"github.com/allaspectsdev/webcore/internal/config"
	"github.com/allaspectsdev/webcore/internal/httpcache"
	"github.com/allaspectsdev/webcore/internal/metrics"
	"github.com/allaspectsdev/webcore/internal/pipeline"
	"github.com/allaspectsdev/webcore/internal/plugin"
	"github.com/allaspectsdev/webcore/internal/querycache"
	"github.com/allaspectsdev/webcore/internal/resilience"
	"github.com/allaspectsdev/webcore/internal/security"
	"github.com/allaspectsdev/webcore/internal/server"
	"github.com/allaspectsdev/webcore/internal/session"
	"github.com/allaspectsdev/webcore/internal/session/sqlitestore"
	"github.com/allaspectsdev/webcore/internal/store"
	"github.com/allaspectsdev/webcore/internal/version"
	"github.com/allaspectsdev/webcore/internal/webctx"
)

// Run is the main daemon orchestrator. It initialises every subsystem,
// starts the HTTP and admin servers, and blocks until a shutdown signal
// is received.
func Run(cfg *config.Config, foreground bool) error {
	// 1. Set up zerolog logger.
	dataDir := expandHome(cfg.Server.DataDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	zerolog.SetGlobalLevel(logLevel)

	writers := []io.Writer{}

	logPath := filepath.Join(dataDir, "webcore.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file %s: %w", logPath, err)
	}
	defer logFile.Close()
	writers = append(writers, logFile)

	if foreground {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
		writers = append(writers, consoleWriter)
	}

	multi := zerolog.MultiLevelWriter(writers...)
	log.Logger = zerolog.New(multi).With().Timestamp().Str("service", "webcore").Logger()

	log.Info().
		Str("version", version.Version).
		Str("data_dir", dataDir).
		Bool("foreground", foreground).
		Msg("webcore starting")

	// 2. Check if already running.
	if IsRunning(dataDir) {
		return fmt.Errorf("webcore is already running (PID file exists at %s)", filepath.Join(dataDir, pidFilename))
	}

	// 3. Open the backing store (overflow tier for the query cache and the
	// HTTP access log). A sqlite-backed session store opens its own file.
	dbPath := filepath.Join(dataDir, "webcore.db")
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	log.Info().Str("db_path", dbPath).Msg("store opened")

	// 4. Create the metrics collector.
	collector := metrics.NewCollector()

	// 5. Write the PID file.
	if err := WritePID(dataDir); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer func() {
		if err := RemovePID(dataDir); err != nil {
			log.Error().Err(err).Msg("failed to remove PID file")
		}
	}()

	log.Info().Int("pid", os.Getpid()).Msg("PID file written")

	// 6. Start the config watcher for hot-reloadable settings.
	configFile := config.ConfigFilePath()
	if configFile == "" {
		configFile = filepath.Join(dataDir, config.DefaultConfigFilename)
	}

	var watcher *config.Watcher
	if _, statErr := os.Stat(configFile); statErr == nil {
		w, watchErr := config.Watch(configFile)
		if watchErr != nil {
			log.Warn().Err(watchErr).Msg("failed to start config watcher; continuing without hot-reload")
		} else {
			watcher = w
			defer watcher.Close()
			watcher.OnChange(func(old, newCfg *config.Config) {
				log.Info().Msg("configuration reloaded")
				newLevel := parseLogLevel(newCfg.Server.LogLevel)
				zerolog.SetGlobalLevel(newLevel)
			})
			log.Info().Str("file", configFile).Msg("config watcher started")
		}
	}

	// 7. Start periodic data pruning.
	pruneCtx, pruneCancel := context.WithCancel(context.Background())
	defer pruneCancel()
	prunerDone := make(chan struct{})
	go func() {
		defer close(prunerDone)
		runPruner(pruneCtx, st, cfg.Metrics.RetentionDays)
	}()

	// ---------------------------------------------------------------
	// 8. Wire up the caching, session, and middleware stack.
	// ---------------------------------------------------------------

	// 8a. Response cache, with its middleware reading the captured
	// response body back out of the request's Context.
	respCfg := httpcache.DefaultConfig()
	respCfg.MaxEntries = cfg.Cache.Response.MaxEntries
	respCfg.DefaultTTL = time.Duration(cfg.Cache.Response.TTLSeconds) * time.Second
	respCache := httpcache.New(respCfg)

	var respCacheMW *httpcache.Middleware
	if cfg.Cache.Response.Enabled {
		respCacheMW = httpcache.NewMiddleware(respCache, 10, server.CaptureFromContext)
	}

	// 8b. Query cache, writing every stored entry through to the
	// disk-backed store, which is consulted on an in-memory miss.
	queryCfg := querycache.DefaultConfig()
	queryCfg.MaxEntries = cfg.Cache.Query.MaxEntries
	queryCfg.DefaultTTL = time.Duration(cfg.Cache.Query.TTLSeconds) * time.Second
	queryCache := querycache.New(queryCfg)
	if cfg.Cache.Query.Enabled {
		queryCache.SetOverflow(store.NewQueryCacheOverflow(st))
	}

	// 8c. Session manager, backed by sqlite when configured, memory
	// otherwise.
	sessCfg := session.DefaultConfig()
	sessCfg.CookieName = orDefault(cfg.Session.CookieName, sessCfg.CookieName)
	sessCfg.Secure = cfg.Session.Secure
	sessCfg.HTTPOnly = cfg.Session.HttpOnly
	sessCfg.Enabled = cfg.Session.Enabled
	if cfg.Session.MaxAgeSeconds > 0 {
		sessCfg.IdleTimeout = time.Duration(cfg.Session.MaxAgeSeconds) * time.Second
	}

	var sessStore session.Store
	if cfg.Session.StorageBackend == "sqlite" {
		sqlitePath := cfg.Session.SQLitePath
		if sqlitePath == "" {
			sqlitePath = filepath.Join(dataDir, "sessions.db")
		}
		ss, err := sqlitestore.Open(sqlitePath, sessCfg.FingerprintMode)
		if err != nil {
			return fmt.Errorf("opening session store: %w", err)
		}
		defer ss.Close()

		if cfg.Resilience.CBEnabled {
			retryCfg := resilience.RetryConfig{
				MaxAttempts:       cfg.Resilience.RetryMaxAttempts,
				BaseDelay:         time.Duration(cfg.Resilience.RetryBaseDelayMs) * time.Millisecond,
				MaxDelay:          time.Duration(cfg.Resilience.RetryMaxDelayMs) * time.Millisecond,
				BackoffMultiplier: cfg.Resilience.BackoffMultiplier,
				Jitter:            cfg.Resilience.Jitter,
			}
			breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
				FailureThreshold: cfg.Resilience.CBFailureThreshold,
				SuccessThreshold: cfg.Resilience.CBSuccessThreshold,
				HalfOpenMaxCalls: cfg.Resilience.CBHalfOpenMaxCalls,
				ResetTimeout:     time.Duration(cfg.Resilience.CBResetTimeoutSec) * time.Second,
			})
			sessStore = session.NewResilientStore(ss, retryCfg, breaker, func(state resilience.CBState) {
				collector.SetCircuitState("session_store", float64(state))
			})
		} else {
			sessStore = ss
		}
	} else {
		sessStore = session.NewMemoryStore(sessCfg.FingerprintMode)
	}

	sessionManager := session.NewManager(sessStore, sessCfg)
	defer sessionManager.Close()

	sessionMW := session.NewMiddleware(sessionManager, 20)

	// 8d. Per-route rate limiting.
	rateLimitMW := security.NewRateLimitMiddleware(5, cfg.RateLimit)

	middlewares := []pipeline.Middleware{sessionMW, rateLimitMW}
	if respCacheMW != nil {
		middlewares = append(middlewares, respCacheMW)
	}

	// 8d-bis. Plugins contribute additional middleware slots without
	// touching this construction; nothing is registered by default.
	pluginRegistry := plugin.NewRegistry()
	defer pluginRegistry.CloseAll()
	if cfg.Plugins.Enabled {
		for _, mw := range pluginRegistry.Middleware() {
			middlewares = append(middlewares, mw)
		}
	}

	chain := pipeline.NewChain(middlewares...)

	// 8e. The radix-trie router plus Chain form the HTTP entry point.
	// Route registration belongs to whatever application embeds this
	// core; a minimal health route is registered here so a fresh
	// install has something to answer with.
	httpServer := server.New(chain)
	httpServer.Handle(http.MethodGet, "/healthz", func(_ context.Context, rc *webctx.Context) {
		rc.Text("ok")
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	errCh := make(chan error, 2)

	go func() {
		log.Info().Str("addr", addr).Msg("http server starting")
		var serveErr error
		if cfg.Server.TLSEnabled {
			serveErr = srv.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			serveErr = srv.ListenAndServe()
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", serveErr)
		}
	}()

	// 9. Start the admin server (if enabled).
	var adminSrv *admin.Server
	if cfg.Admin.Enabled {
		adminAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Admin.Port)
		adminSrv = admin.NewServer(admin.Deps{
			HTTPCache:  respCache,
			QueryCache: queryCache,
			Sessions:   sessionManager,
			Chain:      chain,
			Collector:  collector,
		}, adminAddr, cfg.Admin.AuthEnabled, cfg.Admin.AuthToken)

		go func() {
			if err := adminSrv.Start(); err != nil {
				errCh <- fmt.Errorf("admin server: %w", err)
			}
		}()

		log.Info().Int("port", cfg.Server.Port).Int("admin_port", cfg.Admin.Port).Msg("webcore is ready")
		if foreground {
			fmt.Printf("\n  webcore is running!\n")
			fmt.Printf("  HTTP:  http://localhost:%d\n", cfg.Server.Port)
			fmt.Printf("  Admin: http://localhost:%d\n\n", cfg.Admin.Port)
		}
	} else {
		log.Info().Int("port", cfg.Server.Port).Msg("webcore is ready (admin disabled)")
		if foreground {
			fmt.Printf("\n  webcore is running!\n")
			fmt.Printf("  HTTP: http://localhost:%d\n\n", cfg.Server.Port)
		}
	}

	// 10. Wait for shutdown signal or fatal error.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("fatal server error")
		return err
	}

	// 11. Graceful shutdown with a 30-second timeout.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Info().Msg("shutting down servers...")

	if adminSrv != nil {
		if err := adminSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("admin server shutdown error")
		}
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	// 12. Clean up — wait for the pruner before closing the store.
	pruneCancel()
	<-prunerDone
	st.Close()
	if err := RemovePID(dataDir); err != nil {
		log.Error().Err(err).Msg("failed to remove PID file during shutdown")
	}

	log.Info().Msg("webcore stopped")
	return nil
}

// Stop reads the PID file and sends SIGTERM to the running daemon.
func Stop() error {
	dataDir := expandHome(config.Get().Server.DataDir)

	pid, err := ReadPID(dataDir)
	if err != nil {
		return fmt.Errorf("webcore does not appear to be running: %w", err)
	}

	if !isProcessAlive(pid) {
		if rmErr := RemovePID(dataDir); rmErr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to remove stale PID file: %v\n", rmErr)
		}
		return fmt.Errorf("webcore is not running (stale PID file removed)")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("sending SIGTERM to process %d: %w", pid, err)
	}

	fmt.Printf("Sent SIGTERM to webcore (PID %d)\n", pid)

	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isProcessAlive(pid) {
			return nil
		}
	}

	return nil
}

// Status checks if the daemon is running and prints a summary.
func Status() error {
	cfg := config.Get()
	dataDir := expandHome(cfg.Server.DataDir)

	if !IsRunning(dataDir) {
		fmt.Println("webcore is not running")
		return nil
	}

	pid, _ := ReadPID(dataDir)
	fmt.Printf("webcore is running (PID %d)\n", pid)

	if !cfg.Admin.Enabled {
		return nil
	}

	adminURL := fmt.Sprintf("http://localhost:%d/debug/cache", cfg.Admin.Port)
	client := &http.Client{Timeout: 3 * time.Second}

	resp, err := client.Get(adminURL)
	if err != nil {
		fmt.Println("  (admin server unreachable)")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Printf("  (admin server returned %d)\n", resp.StatusCode)
	}

	return nil
}

// runPruner periodically prunes old data from the store.
func runPruner(ctx context.Context, st *store.Store, retentionDays int) {
	if retentionDays <= 0 {
		return
	}

	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Error().Interface("panic", r).Msg("data pruner: recovered from panic")
					}
				}()
				n, err := st.Prune(retentionDays)
				if err != nil {
					log.Error().Err(err).Msg("data pruning failed")
				} else if n > 0 {
					log.Info().Int64("rows", n).Int("retention_days", retentionDays).Msg("pruned old data")
				}
			}()
		}
	}
}

// parseLogLevel converts a string log level to a zerolog.Level.
func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
