package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/dmitrijs2005/peerlearn/internal/client/authapi"
	"github.com/dmitrijs2005/peerlearn/internal/client/config"
	"github.com/dmitrijs2005/peerlearn/internal/client/credentials"
	"github.com/dmitrijs2005/peerlearn/internal/client/models"
	"github.com/dmitrijs2005/peerlearn/internal/client/pipeline"
	"github.com/dmitrijs2005/peerlearn/internal/client/refresh"
	"github.com/dmitrijs2005/peerlearn/internal/client/session"
	"github.com/dmitrijs2005/peerlearn/internal/logging"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

const userAgent = "peerlearn-cli"

// sessionService is the part of *session.Manager the commands drive.
type sessionService interface {
	State() session.State
	Subscribe(fn func(session.State)) func()
	Init(ctx context.Context) error
	Login(ctx context.Context, email, password string) error
	Register(ctx context.Context, req models.RegisterRequest) error
	VerifyEmail(ctx context.Context, email, code string) error
	Logout(ctx context.Context) error
	UpdateProfile(ctx context.Context, upd models.ProfileUpdate) error
}

// accountService covers the auth endpoints that do not change session state.
type accountService interface {
	Me(ctx context.Context) (*models.User, error)
	User(ctx context.Context, id models.ID) (*models.User, error)
	ResendVerification(ctx context.Context, email string) (*models.MessageResponse, error)
}

type requester interface {
	Do(ctx context.Context, req *pipeline.Request) (*pipeline.Response, error)
}

type prober interface {
	Ping(ctx context.Context, opts ...grpc.CallOption) error
}

type App struct {
	config  *config.Config
	log     logging.Logger
	session sessionService
	account accountService
	http    requester
	bulk    requester
	probe   prober
	reader  *bufio.Reader
	out     io.Writer

	modeMu sync.Mutex
	Mode   Mode

	closers []func() error
}

// NewApp opens the credential store named by c and wires the request
// pipelines, the refresh coordinator and the session manager on top of it.
func NewApp(ctx context.Context, c *config.Config, log logging.Logger) (*App, error) {
	a := &App{config: c, log: log, reader: bufio.NewReader(os.Stdin), out: os.Stdout}

	backend, err := a.openBackend(ctx)
	if err != nil {
		return nil, err
	}
	store := credentials.NewStore(backend, log)

	// refresh calls go out on a pipeline without a token source so a
	// rejected refresh is final
	raw, err := pipeline.New(c.ServerURL, store, nil, log, pipeline.WithTimeout(c.RefreshTimeout), pipeline.WithUserAgent(userAgent))
	if err != nil {
		a.Close()
		return nil, err
	}
	coord := refresh.New(store, authapi.New(raw), log, refresh.WithTimeout(c.RefreshTimeout))

	pipes, err := pipeline.NewSet(c.ServerURL, store, coord, log, c.RequestTimeout, c.BulkTimeout, pipeline.WithUserAgent(userAgent))
	if err != nil {
		a.Close()
		return nil, err
	}
	api := authapi.New(pipes.Interactive)

	mgr := session.NewManager(api, store, log, session.WithLoggedOutHook(a.sessionEnded))
	coord.OnExpired(mgr.Expire)

	probe, err := dialProbe(c.GRPCAddr, store, coord)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, probe.Close)

	a.session = mgr
	a.account = api
	a.http = pipes.Interactive
	a.bulk = pipes.Bulk
	a.probe = probe
	return a, nil
}

func (a *App) openBackend(ctx context.Context) (credentials.Backend, error) {
	switch a.config.StoreDriver {
	case config.DriverMemory:
		return credentials.NewMemoryBackend(), nil
	case config.DriverRedis:
		rdb := redis.NewClient(&redis.Options{Addr: a.config.RedisAddr})
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := rdb.Ping(pctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis %s: %w", a.config.RedisAddr, err)
		}
		a.closers = append(a.closers, rdb.Close)
		return credentials.NewRedisBackend(rdb, a.config.RedisKeyPrefix), nil
	default:
		b, err := credentials.OpenSQLite(ctx, a.config.StorePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, b.Close)
		return b, nil
	}
}

// Close releases the store connection and the gRPC channel.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) setMode(mode Mode) {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()
	if a.Mode != mode {
		a.Mode = mode
		a.log.Info(context.Background(), "connectivity changed", "mode", mode)
	}
}

func (a *App) mode() Mode {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()
	return a.Mode
}

func (a *App) isLoggedIn() bool {
	return a.session.State().Status == session.StatusAuthenticated
}

// sessionEnded runs when a refresh was refused and the session is gone.
func (a *App) sessionEnded(context.Context) {
	fmt.Fprintln(a.out, "Please log in again.")
}

// StartOnlineStatusWatcher probes the server every interval until ctx ends
// and flips Mode accordingly.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) checkOnline(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	err := a.probe.Ping(pctx, a.pingOptions()...)
	cancel()

	if err != nil {
		a.setMode(ModeOffline)
		return
	}
	a.setMode(ModeOnline)
}

// Run restores the stored session, starts the connectivity watcher and
// serves the REPL until the user quits or ctx ends.
func (a *App) Run(ctx context.Context) {
	defer a.Close()

	fmt.Fprintln(a.out, "Welcome to PeerLearn CLI (type 'help' for commands)")

	unsubscribe := a.session.Subscribe(a.printTransition())
	defer unsubscribe()

	if err := a.session.Init(ctx); err != nil {
		a.log.Warn(ctx, "could not restore session", "error", err)
	}
	a.checkOnline(ctx)

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.StartOnlineStatusWatcher(wctx, a.config.OnlineCheckInterval)

	runREPL(ctx, a, a.getStatus, a.reader)
}
