// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/muser/internal/api/httpapi"
	"github.com/osa030/muser/internal/app/exclusion"
	"github.com/osa030/muser/internal/app/guess"
	"github.com/osa030/muser/internal/app/probe"
	"github.com/osa030/muser/internal/app/rotation"
	"github.com/osa030/muser/internal/app/selector"
	"github.com/osa030/muser/internal/app/trackpool"
	"github.com/osa030/muser/internal/domain/pool"
	"github.com/osa030/muser/internal/infra/config"
	"github.com/osa030/muser/internal/infra/deezer"
	"github.com/osa030/muser/internal/infra/logger"
	"github.com/osa030/muser/internal/infra/store"
)

var (
	app        = kingpin.New("muser-server", "muser music game backend")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: from config)").String()

	// list-genres command
	listGenresCmd = app.Command("list-genres", "List configured genres and exit")

	// rotate command
	rotateCmd = app.Command("rotate", "Run one daily rotation pass and exit")
)

func init() {
	// start command (default)
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if command == listGenresCmd.FullCommand() {
		printGenres(cfg)
		return
	}

	// Initialize logger; command-line flags override the config file
	loggerConfig := logger.Config{
		Output: cfg.Log.Output,
		Level:  cfg.Log.Level,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	closeLog, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func() { _ = closeLog() }()

	zlog.Info().Msgf("Config loaded from %s", *configPath)

	if command == rotateCmd.FullCommand() {
		err = rotateOnce(cfg)
	} else {
		err = run(cfg)
	}
	if err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		_ = closeLog()
		os.Exit(1)
	}
}

// components holds the wired application.
type components struct {
	catalog  *deezer.Client
	store    store.Store
	pools    *trackpool.Cache
	selector *selector.Selector
	engine   *rotation.Engine
}

// build wires the application from configuration.
func build(ctx context.Context, cfg *config.Config) (*components, error) {
	catalog := deezer.New(deezer.Config{
		BaseURL:    cfg.Deezer.BaseURL,
		Timeout:    cfg.Deezer.Timeout,
		MaxRetries: cfg.Deezer.MaxRetries,
		RetryDelay: cfg.Deezer.RetryDelay,
	})

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open challenge store")
	}

	contexts := rotationContexts(cfg)
	created, err := store.EnsureRows(ctx, st, contexts)
	if err != nil {
		_ = st.Close()
		return nil, errors.Wrap(err, "failed to provision challenge rows")
	}
	zlog.Info().Msgf("Challenge store ready: driver=%s contexts=%d created=%d", cfg.Store.Driver, len(contexts), created)

	// Probing spends one upstream call per candidate; the budget is the retry policy
	prober := catalog.WithoutRetry()

	pools := trackpool.New(trackpool.NewResolverFromConfig(cfg, catalog), cfg.Pool.TTL)
	exclusions := exclusion.New(exclusion.ParseScope(cfg.Selection.ExclusionScope))
	sel := selector.New(pools, exclusions, probe.New(prober, cfg.Selection.MaxAttempts))

	engine := rotation.NewEngine(
		rotation.Config{Contexts: contexts, Parallelism: cfg.Rotation.Parallelism},
		pools,
		st,
		probe.New(prober, cfg.Rotation.MaxAttempts),
		catalog,
	)

	return &components{
		catalog:  catalog,
		store:    st,
		pools:    pools,
		selector: sel,
		engine:   engine,
	}, nil
}

// rotationContexts returns Main followed by every configured genre.
func rotationContexts(cfg *config.Config) []pool.Key {
	keys := []pool.Key{pool.Main()}
	for _, name := range cfg.GenreNames() {
		keys = append(keys, pool.Genre(name))
	}
	return keys
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	c, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.store.Close(); err != nil {
			zlog.Error().Msgf("Failed to close challenge store: %v", err)
		}
	}()

	handlers := httpapi.NewHandlers(c.selector, c.engine, c.catalog, guess.NewScorer(cfg.Guess.Threshold), cfg.GenreNames())
	api := httpapi.NewServer(httpapi.Config{
		AdminToken:     cfg.Admin.Token,
		RequestTimeout: cfg.Server.RequestTimeout,
		CORSOrigins:    cfg.Server.CORSOrigins,
	}, handlers)

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(api.Handler(), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start the daily rotation schedule
	stopScheduler := func() {}
	if cfg.RotationEnabled() {
		scheduler, err := rotation.NewScheduler(c.engine, cfg.Rotation.TimeOfDay, cfg.Location(), cfg.Rotation.RunOnStart)
		if err != nil {
			return errors.Wrap(err, "failed to create rotation scheduler")
		}
		stopScheduler = scheduler.Start(ctx)
		zlog.Info().Msgf("Rotation scheduled: time=%s tz=%s next=%s",
			cfg.Rotation.TimeOfDay, cfg.Rotation.Timezone, scheduler.NextRun(time.Now()).Format(time.RFC3339))
	} else {
		zlog.Info().Msg("Rotation scheduler disabled")
	}
	defer stopScheduler()

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Give the listener a moment before running startup hooks
	time.Sleep(100 * time.Millisecond)
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	// Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return errors.Wrap(err, "server error")
	}

	// Stop scheduling before draining requests
	stopScheduler()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return nil
}

// rotateOnce runs a single rotation pass without serving HTTP.
func rotateOnce(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = c.store.Close() }()

	summary := c.engine.RotateAll(ctx)
	for _, r := range summary.Results {
		line := fmt.Sprintf("  %-24s %s", r.Key, r.Outcome)
		if r.TrackID != nil {
			line += fmt.Sprintf(" track=%s", *r.TrackID)
		}
		if r.Err != nil {
			line += fmt.Sprintf(" error=%v", r.Err)
		}
		fmt.Println(line)
	}

	if !summary.OK() {
		return errors.Newf("%d of %d contexts failed", summary.Count(rotation.OutcomeFailed), len(summary.Results))
	}
	return nil
}

// printGenres prints the configured genres.
func printGenres(cfg *config.Config) {
	fmt.Println("Configured Genres:")
	for _, g := range cfg.Genres {
		fmt.Printf("  %-20s - %d playlist(s)\n", g.Name, len(g.Playlists))
	}
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
