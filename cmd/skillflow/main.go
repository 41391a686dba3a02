// Command skillflow runs the skill host: it terminates the bot channel,
// routes turns to registered skills and handles the token hand-off with
// calling bots.
//
// Usage:
//
//	skillflow serve                        # start the host
//	skillflow serve --config config.yaml   # with a config file
//	skillflow version                      # print version info
//	skillflow health                       # probe a running host
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

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/skillflow/adapter"
	"github.com/BaSui01/skillflow/auth"
	"github.com/BaSui01/skillflow/config"
	"github.com/BaSui01/skillflow/internal/metrics"
	"github.com/BaSui01/skillflow/internal/server"
	"github.com/BaSui01/skillflow/internal/telemetry"
	"github.com/BaSui01/skillflow/manifest"
	"github.com/BaSui01/skillflow/router"
	"github.com/BaSui01/skillflow/state"
	"github.com/BaSui01/skillflow/transport"
)

// Version information injected at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`skillflow - skill invocation host

Commands:
  serve     start the host (--config <file>)
  version   print version information
  health    probe a running host (--addr <host:port>)`)
}

func printVersion() {
	fmt.Printf("skillflow %s (built %s, commit %s)\n", Version, BuildTime, GitCommit)
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	_ = fs.Parse(args)

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := serve(cfg, logger); err != nil {
		logger.Fatal("host exited", zap.Error(err))
	}
}

func serve(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	collector := metrics.NewCollector("skillflow", prometheus.DefaultRegisterer, logger)

	store, err := buildStateStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	middleware := []adapter.Middleware{state.Middleware(store, logger)}

	var references *state.ReferenceStore
	if cfg.State.SQLitePath != "" {
		db, err := gorm.Open(sqlite.Open(cfg.State.SQLitePath), &gorm.Config{})
		if err != nil {
			return fmt.Errorf("open reference database: %w", err)
		}
		references, err = state.NewReferenceStore(db)
		if err != nil {
			return err
		}
		middleware = append(middleware, state.ReferenceMiddleware(references, logger))
		logger.Info("reference store ready", zap.String("path", cfg.State.SQLitePath))
	}

	registry := manifest.NewRegistry()
	for _, path := range cfg.Router.ManifestPaths {
		m, err := manifest.Load(path)
		if err != nil {
			return err
		}
		if err := registry.Register(m); err != nil {
			return err
		}
		logger.Info("skill registered", zap.String("skill_id", m.ID), zap.String("endpoint", m.Endpoint))
	}

	routerCfg := router.DefaultConfig()
	routerCfg.SkillMode = cfg.Router.SkillMode
	routerCfg.ActionDialogs = cfg.Router.ActionDialogs
	routerCfg.IntroMessage = cfg.Router.IntroMessage

	factory := router.HTTPChannelFactory(transport.HTTPConfig{
		Timeout: cfg.Transport.RequestTimeout,
		Headers: make(map[string]string),
	}, logger)

	r := router.New(registry, nil, factory, nil, routerCfg, collector, logger)

	// The local auth path needs a TokenProvider implementation, which only
	// embedding programs can supply. The standalone binary supports the
	// remote hand-off path.
	if len(cfg.Auth.Connections) > 0 && cfg.Auth.Remote {
		authDialog, err := auth.NewMultiProviderAuthDialog(auth.MultiProviderConfig{
			Connections:   cfg.Auth.Connections,
			Remote:        cfg.Auth.Remote,
			RemoteTimeout: cfg.Auth.RemoteTimeout,
		}, collector, logger)
		if err != nil {
			return err
		}
		r.Dialogs().Add(authDialog)
		r.WithSignOut(authDialog)
	}

	var validator *auth.JWTValidator
	if len(cfg.Auth.JWT.SigningKey) > 0 {
		validator, err = auth.NewJWTValidator(cfg.Auth.JWT)
		if err != nil {
			return err
		}
	}

	srv := server.New(cfg.Server, server.Options{
		Handler:    r.HandleTurn,
		Middleware: middleware,
		Validator:  validator,
		References: references,
		Metrics:    collector,
		Logger:     logger,
	})
	return srv.Run(ctx)
}

func buildStateStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (state.Store, error) {
	switch cfg.State.Backend {
	case config.StateBackendRedis:
		return state.NewRedisStore(ctx, state.RedisConfig{
			Addr:     cfg.State.Redis.Addr,
			Password: cfg.State.Redis.Password,
			DB:       cfg.State.Redis.DB,
			TTL:      cfg.State.Redis.TTL,
		}, logger)
	default:
		return state.NewMemoryStore(), nil
	}
}

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "localhost:3978", "host to probe")
	_ = fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + *addr + "/healthz")
	if err != nil {
		fmt.Fprintf(os.Stderr, "unhealthy: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "unhealthy: status %d\n", resp.StatusCode)
		os.Exit(1)
	}
	fmt.Println("ok")
}
