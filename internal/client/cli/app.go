package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/opentrace-console/internal/client/api"
	"github.com/dmitrijs2005/opentrace-console/internal/client/config"
	"github.com/dmitrijs2005/opentrace-console/internal/client/gate"
	"github.com/dmitrijs2005/opentrace-console/internal/client/prefs"
	"github.com/dmitrijs2005/opentrace-console/internal/client/registry"
	"github.com/dmitrijs2005/opentrace-console/internal/client/session"
	"github.com/dmitrijs2005/opentrace-console/internal/client/storage"
	"github.com/dmitrijs2005/opentrace-console/internal/filex"
	"github.com/dmitrijs2005/opentrace-console/internal/logging"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

type Mode string

const (
	ModeUnknown Mode = ""
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// view is an open analytics screen.
type view interface {
	Refresh()
	Close()
}

type healthChecker interface {
	Health(ctx context.Context) error
}

type App struct {
	config   *config.Config
	logger   logging.Logger
	store    storage.Store
	closer   io.Closer
	api      *api.HTTPClient
	health   healthChecker
	guard    *session.Guard
	registry *registry.Registry
	gate     *gate.Gate
	prefs    *prefs.Prefs
	reader   *bufio.Reader

	outMu sync.Mutex
	out   io.Writer

	closeOnce sync.Once
	closeErr  error

	mu         sync.Mutex
	mode       Mode
	active     view
	activeName session.View
}

// NewApp opens the state database and wires the console.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	if err := filex.EnsureParentDir(c.DatabasePath); err != nil {
		return nil, err
	}
	st, err := storage.Open(ctx, c.DatabasePath)
	if err != nil {
		logger.Error(ctx, "error initializing database", "error", err)
		return nil, err
	}
	return newApp(c, st, st, bufio.NewReader(os.Stdin), os.Stdout, logger), nil
}

func newApp(c *config.Config, st storage.Store, closer io.Closer, in *bufio.Reader, out io.Writer, logger logging.Logger) *App {
	a := &App{
		config: c,
		logger: logger,
		store:  st,
		closer: closer,
		reader: in,
		out:    out,
	}

	a.api = api.NewHTTPClient(c.APIURL, c.RequestTimeout,
		api.TokenFunc(func(ctx context.Context) string { return a.guard.Token(ctx) }), logger)
	a.health = a.api
	a.guard = session.NewGuard(st, a.api, logger)
	a.api.OnUnauthorized(a.guard.HandleUnauthorized)
	a.guard.OnNavigate(a.navigate)

	a.registry = registry.New(a.api, st, logger)
	a.gate = gate.New(map[gate.Kind]gate.Deleter{
		gate.KindResource: a.registry.Delete,
		gate.KindCampaign: a.api.DeleteCampaign,
		gate.KindEvent:    a.api.DeleteEvent,
		gate.KindTag:      a.api.DeleteTag,
		gate.KindFunnel:   a.api.DeleteFunnel,
	}, logger)
	a.prefs = prefs.New(st)
	return a
}

// Run starts the online watcher and the REPL and blocks until the REPL
// exits or ctx is done.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)
		return nil
	})
	g.Go(func() error {
		defer cancel()
		a.Root(ctx)
		return nil
	})

	err := g.Wait()
	return multierr.Append(err, a.Close())
}

// Close stops the active view and closes the state database. It is safe to
// call more than once and from several goroutines; later calls return the
// first result.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		a.stopView()
		if a.closer == nil {
			return
		}
		if err := a.closer.Close(); err != nil {
			a.closeErr = fmt.Errorf("failed to close state db: %w", err)
		}
	})
	return a.closeErr
}

// Root prints the banner, restores a persisted session and runs the REPL.
func (a *App) Root(ctx context.Context) {
	a.printLine("Welcome to OpenTrace console (type 'help' for commands)")

	if s, st := a.guard.Current(ctx); st == session.Authenticated {
		a.printLine(fmt.Sprintf("Signed in as %s", s.Email))
		if err := a.registry.Load(ctx); err != nil {
			a.logger.Warn(ctx, "resources not loaded", "error", err)
		}
	}

	runREPL(ctx, a, a.getStatus, a.reader)
}

func (a *App) route(ctx context.Context, v session.View) session.Decision {
	return a.guard.Route(ctx, v)
}

// navigate is the guard's hard redirect, fired on the first 401 of a
// session.
func (a *App) navigate(v session.View) {
	a.stopView()
	if v == session.ViewLogin {
		a.printLine("Session expired. Use 'login' to sign in again.")
	}
}

func (a *App) getStatus() string {
	s := ""
	if sess, st := a.guard.Current(context.Background()); st == session.Authenticated {
		s = sess.Email
	}
	if r, ok := a.registry.Selected(); ok {
		s = joinStatus(s, r.Name)
	}
	if m := a.currentMode(); m != ModeUnknown {
		s = joinStatus(s, string(m))
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

func joinStatus(s, part string) string {
	if s == "" {
		return part
	}
	return s + " " + part
}

func (a *App) currentMode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// setMode records mode and reports a change. It returns whether the mode
// changed.
func (a *App) setMode(mode Mode) bool {
	a.mu.Lock()
	changed := a.mode != mode
	a.mode = mode
	a.mu.Unlock()

	if changed {
		a.logger.Info(context.Background(), "connectivity changed", "mode", string(mode))
		a.printLine(fmt.Sprintf("Backend is %s", mode))
	}
	return changed
}

// StartOnlineStatusWatcher checks /health right away and then every
// interval until ctx is done.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	check := func() {
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := a.health.Health(pctx)
		cancel()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			a.setMode(ModeOffline)
		} else {
			a.setMode(ModeOnline)
		}
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			check()
		case <-ctx.Done():
			return
		}
	}
}

// printLine writes one line to the console output. It is safe to call from
// poller goroutines.
func (a *App) printLine(s string) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintln(a.out, s)
}

// write prints a pre-rendered block.
func (a *App) write(s string) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprint(a.out, s)
}
