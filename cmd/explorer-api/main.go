package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/brewgator/block-explorer/internal/bitcoin"
	"github.com/brewgator/block-explorer/internal/config"
	"github.com/brewgator/block-explorer/internal/db"
	"github.com/brewgator/block-explorer/internal/explorer"
	"github.com/brewgator/block-explorer/internal/logging"
	"github.com/brewgator/block-explorer/internal/metrics"
	"github.com/brewgator/block-explorer/internal/rpc"
	"github.com/brewgator/block-explorer/internal/web"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := runMain(); err != nil {
		fmt.Fprintf(os.Stderr, "explorer-api: %v\n", err)
		os.Exit(1)
	}
}

func runMain() error {
	cfg, err := config.Read()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var (
		dbPath   = flag.String("db", cfg.Database.Path, "Path to SQLite database")
		port     = flag.Int("port", cfg.HTTP.Port, "Port to serve on")
		host     = flag.String("host", cfg.HTTP.Host, "Host to serve on")
		mockMode = flag.Bool("mock", cfg.Database.MockMode, "Record search history in mock tables")
	)
	flag.Parse()
	cfg.Database.Path = *dbPath
	cfg.HTTP.Port = *port
	cfg.HTTP.Host = *host
	cfg.Database.MockMode = *mockMode

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck
	sugar := logger.Sugar()

	if err := run(cfg, sugar); err != nil {
		sugar.Errorw("explorer-api exited", "error", err)
		return err
	}
	return nil
}

func run(cfg *config.Config, logger *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.NewDatabaseWithMockMode(cfg.Database.Path, cfg.Database.MockMode)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	if cfg.Database.MockMode {
		logger.Info("📊 API running in mock mode (using mock database tables)")
	}

	store := metrics.New("explorer", version)

	root := rpc.NewClient(rpc.Config{
		URL:               cfg.RPC.URL,
		User:              cfg.RPC.User,
		Password:          cfg.RPC.Password,
		Timeout:           cfg.RPC.Timeout,
		RequestsPerMinute: cfg.RPC.RateLimit,
	}, logger.Named("rpc"), store)
	defer root.Close()

	server, err := newServer(cfg, database, bitcoin.NewClientFromRPC(root, cfg.RPC.Wallet), store, logger)
	if err != nil {
		return err
	}
	logger.Infow("₿ Using Bitcoin Core node", "endpoint", root.Endpoint(), "wallet", cfg.RPC.Wallet, "network", cfg.RPC.Network)

	// Setup CORS from config
	c := cors.New(cors.Options{
		AllowedOrigins: cfg.HTTP.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           c.Handler(server.router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		server.feed.Start(gctx)
		return nil
	})
	g.Go(func() error {
		pruneHistory(gctx, database, cfg.History, logger.Named("history"))
		return nil
	})
	g.Go(func() error {
		logger.Infow("🚀 Block Explorer API starting", "addr", "http://"+cfg.Addr(), "db", cfg.Database.Path)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		server.feed.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("👋 Block Explorer API stopped")
	return err
}

func newServer(cfg *config.Config, database *db.Database, node explorer.Node, store *metrics.Store, logger *zap.SugaredLogger) (*Server, error) {
	params, err := cfg.ChainParams()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	renderer, err := web.New()
	if err != nil {
		return nil, err
	}

	mapper := explorer.NewMapper(explorer.NewFormatter(cfg.Display.TimeLayout, loc))
	env := explorer.Env{Node: node, Mapper: mapper, Net: params}

	opts := []explorer.SessionOption{
		explorer.WithRecorder(database),
		explorer.WithMetrics(store),
		explorer.WithLogger(logger.Named("session")),
	}
	if cfg.Sessions.LastResolvedWins {
		opts = append(opts, explorer.WithLastResolvedWins())
	}

	server := &Server{
		db:     database,
		router: mux.NewRouter(),
		env:    env,
		feed: explorer.NewFeed(node, mapper, explorer.FeedConfig{
			Interval: cfg.Feed.Interval,
			Size:     cfg.Feed.Size,
		}, logger.Named("feed"), store),
		sessions: explorer.NewSessionStore(cfg.Sessions.TTL, func() *explorer.Session {
			return explorer.NewSession(env, opts...)
		}),
		renderer: renderer,
		metrics:  store,
		logger:   logger,
		network:  params.Name,
		version:  version,
	}
	server.setupRoutes()
	return server, nil
}
