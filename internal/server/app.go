// Package server wires and runs the development auth server: the /auth
// HTTP API and the gRPC health endpoint, sharing one users service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/peerlearn/internal/logging"
	"github.com/dmitrijs2005/peerlearn/internal/server/config"
	"github.com/dmitrijs2005/peerlearn/internal/server/httpapi"
	"github.com/dmitrijs2005/peerlearn/internal/server/storage"
	"github.com/dmitrijs2005/peerlearn/internal/server/users"

	gs "github.com/dmitrijs2005/peerlearn/internal/server/grpc"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config      *config.Config
	logger      logging.Logger
	storage     storage.RepositoryManager
	userService *users.Service
	handler     http.Handler
	grpcServer  *gs.GRPCServer
}

func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	if c.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	rm, err := storage.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	us := users.NewService(rm.Users(), users.NewLogMailer(logger), c, logger)

	return &App{
		config:      c,
		logger:      logger,
		storage:     rm,
		userService: us,
		handler:     httpapi.NewRouter(httpapi.NewHandler(us, logger), c.AllowedOrigins),
		grpcServer:  gs.NewGRPCServer(c.GRPCAddr, logger, c.SecretKey),
	}, nil
}

// Handler is the HTTP API, exposed for in-process use.
func (app *App) Handler() http.Handler {
	return app.handler
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) serveHTTP(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Run serves HTTP and gRPC until ctx is cancelled, a termination signal
// arrives or either server fails.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	httpLis, err := net.Listen("tcp", app.config.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.serveHTTP(gctx, httpLis) })
	g.Go(func() error { return app.grpcServer.Run(gctx) })

	err = g.Wait()
	if cerr := app.storage.Close(); cerr != nil {
		app.logger.Error(ctx, "closing storage", "error", cerr)
	}
	return err
}
