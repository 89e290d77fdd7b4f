package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	temporalclient "go.temporal.io/sdk/client"

	"github.com/runnable/runnable-api/internal/api"
	"github.com/runnable/runnable-api/internal/config"
	"github.com/runnable/runnable-api/internal/core"
	"github.com/runnable/runnable-api/internal/db"
	"github.com/runnable/runnable-api/internal/fixture"
	"github.com/runnable/runnable-api/internal/harbourmaster"
	"github.com/runnable/runnable-api/internal/logging"
	"github.com/runnable/runnable-api/internal/metrics"
	"github.com/runnable/runnable-api/internal/platform"
)

func main() {
	if len(os.Args) >= 2 && os.Args[1] == "import-image" {
		importImage(os.Args[2:])
		return
	}

	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	migrateDirFlag := flag.String("migrate-dir", "migrations/core", "Migration files directory")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate("core-api"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	if *migrateFlag {
		logger.Info().Str("dir", *migrateDirFlag).Msg("running database migrations")
		if err := db.RunMigrations(cfg.CoreDatabaseURL, *migrateDirFlag, logger); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	corePool, err := db.NewCorePool(ctx, cfg.CoreDatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to core database")
	}
	defer corePool.Close()
	metrics.RegisterPgxPoolMetrics(corePool)

	tlsConfig, err := cfg.TemporalTLS()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure temporal TLS")
	}
	dialOpts := temporalclient.Options{HostPort: cfg.TemporalAddress}
	if tlsConfig != nil {
		dialOpts.ConnectionOptions = temporalclient.ConnectionOptions{TLS: tlsConfig}
		logger.Info().Msg("temporal mTLS enabled")
	}
	tc, err := temporalclient.Dial(dialOpts)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to temporal")
	}
	defer tc.Close()

	build := harbourmaster.NewClient(cfg.HarbourmasterURL, cfg.HarbourmasterTimeout, logger)

	// A recovered handler panic leaves the process in an unknown state, so
	// the server stops and exits non-zero for the supervisor to restart it.
	crashed := make(chan any, 1)
	onCrash := func(rec any) {
		select {
		case crashed <- rec:
		default:
		}
	}

	srv := api.NewServer(logger, corePool, tc, build, cfg, onCrash)

	httpServer := &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * cfg.HarbourmasterTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting core API server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-quit:
		logger.Info().Msg("shutting down server")
	case rec := <-crashed:
		logger.Error().Str("panic", fmt.Sprint(rec)).Msg("handler crashed, shutting down")
		exitCode = 1
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)

	if exitCode != 0 {
		corePool.Close()
		tc.Close()
		os.Exit(exitCode)
	}
}

func importImage(args []string) {
	fs := flag.NewFlagSet("import-image", flag.ExitOnError)
	owner := fs.String("owner", "", "ID of the user who will own the image (required)")
	dir := fs.String("dir", "", "Fixture directory")
	bucket := fs.String("s3-bucket", "", "S3 bucket holding the fixture")
	prefix := fs.String("s3-prefix", "", "Key prefix of the fixture inside the bucket")
	fs.Parse(args)

	if *owner == "" || (*dir == "") == (*bucket == "") {
		fmt.Fprintln(os.Stderr, "error: --owner and exactly one of --dir or --s3-bucket are required")
		fmt.Fprintln(os.Stderr, "usage: core-api import-image --owner <user-id> (--dir <path> | --s3-bucket <bucket> [--s3-prefix <prefix>])")
		os.Exit(1)
	}
	ownerID, err := platform.ResolveID(*owner)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := db.NewCorePool(ctx, cfg.CoreDatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	var src fixture.Source = fixture.DirSource{Root: *dir}
	if *bucket != "" {
		src = fixture.NewS3Source(fixture.S3Options{
			Endpoint:  cfg.FixtureS3Endpoint,
			Region:    cfg.FixtureS3Region,
			AccessKey: cfg.FixtureS3AccessKey,
			SecretKey: cfg.FixtureS3SecretKey,
		}, *bucket, *prefix)
	}

	// Image builds stream the whole build log, so the import gets a longer
	// deadline than API calls.
	build := harbourmaster.NewClient(cfg.HarbourmasterURL, 10*time.Minute, logger)
	services := core.NewServices(pool, nil, build, core.Options{
		DockerRegistry:   cfg.DockerRegistry,
		ContainerTimeout: cfg.ContainerTimeout,
		CleanupRetention: cfg.CleanupRetention,
	}, logger)

	img, err := services.Image.ImportFixture(ctx, ownerID, src)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: import %s: %v\n", src.Name(), err)
		os.Exit(1)
	}

	fmt.Printf("Image imported successfully.\n\n")
	fmt.Printf("  Name:   %s\n", img.Name)
	fmt.Printf("  ID:     %s\n", platform.EncodeID(img.ID))
	fmt.Printf("  Tags:   %d\n", len(img.Tags))
}
