// Package poller keeps a view's data consistent with its current inputs.
//
// A Poller fetches immediately when its inputs change, optionally re-fetches
// on a fixed interval and on manual refresh, and guarantees that a response
// for superseded inputs never overwrites newer state. All state lives in one
// owner goroutine; fetches run in their own goroutines and report back to it
// tagged with a generation number.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/opentrace-console/internal/common"
	"github.com/dmitrijs2005/opentrace-console/internal/logging"
)

// State is what a view renders.
type State[T any] struct {
	Data    T
	HasData bool
	// Loading is set while fetching before the first success.
	Loading bool
	// Refreshing is set while a manual refresh is in flight.
	Refreshing bool
	// Err is the last fetch error; cleared on success.
	Err       error
	UpdatedAt time.Time
}

// ShowEmpty reports whether the view has nothing to draw but an error or
// empty placeholder.
func (s State[T]) ShowEmpty() bool {
	return !s.HasData && !s.Loading
}

// Config describes a poller.
type Config[I comparable, T any] struct {
	// Name labels log lines.
	Name  string
	Fetch func(ctx context.Context, in I) (T, error)
	// Interval returns the polling period for in; zero disables polling.
	// Nil means never poll.
	Interval func(in I) time.Duration
	// OnChange is called from the poller goroutine after every state change.
	// It must not call back into the poller.
	OnChange func(State[T])
	Logger   logging.Logger
}

type fetchKind int

const (
	kindInputs fetchKind = iota
	kindTick
	kindRefresh
)

type command[I comparable] struct {
	refresh bool
	inputs  I
}

type result[T any] struct {
	gen  uint64
	data T
	err  error
}

// Poller is safe for concurrent use.
type Poller[I comparable, T any] struct {
	cfg Config[I, T]

	cmds    chan command[I]
	quit    chan struct{}
	done    chan struct{}
	closing sync.Once

	mu    sync.Mutex
	state State[T]
}

// New starts the poller goroutine. Nothing is fetched until SetInputs.
func New[I comparable, T any](cfg Config[I, T]) *Poller[I, T] {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Interval == nil {
		cfg.Interval = func(I) time.Duration { return 0 }
	}
	cfg.Logger = cfg.Logger.With("poller", cfg.Name)

	p := &Poller[I, T]{
		cfg:  cfg,
		cmds: make(chan command[I]),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go p.loop()
	return p
}

// SetInputs re-keys the poller. Equal inputs are a no-op; new inputs fetch
// immediately and re-arm the interval.
func (p *Poller[I, T]) SetInputs(in I) {
	select {
	case p.cmds <- command[I]{inputs: in}:
	case <-p.quit:
	}
}

// Refresh re-fetches with the current inputs and flags the state as
// Refreshing.
func (p *Poller[I, T]) Refresh() {
	select {
	case p.cmds <- command[I]{refresh: true}:
	case <-p.quit:
	}
}

// State returns the last published state.
func (p *Poller[I, T]) State() State[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Close stops the timer and cancels in-flight fetches. Once it returns no
// further OnChange call happens.
func (p *Poller[I, T]) Close() {
	p.closing.Do(func() { close(p.quit) })
	<-p.done
}

type loopState[I comparable, T any] struct {
	inputs    I
	hasInputs bool

	gen      uint64
	inflight bool
	cancel   context.CancelFunc

	ticker *time.Ticker

	st State[T]
}

func (p *Poller[I, T]) loop() {
	defer close(p.done)

	ls := &loopState[I, T]{}
	results := make(chan result[T])

	defer func() {
		if ls.cancel != nil {
			ls.cancel()
		}
		if ls.ticker != nil {
			ls.ticker.Stop()
		}
	}()

	for {
		var tick <-chan time.Time
		if ls.ticker != nil {
			tick = ls.ticker.C
		}

		select {
		case <-p.quit:
			return

		case cmd := <-p.cmds:
			if cmd.refresh {
				if !ls.hasInputs {
					continue
				}
				p.start(ls, kindRefresh, results)
				continue
			}
			if ls.hasInputs && cmd.inputs == ls.inputs {
				continue
			}
			ls.inputs, ls.hasInputs = cmd.inputs, true
			p.rearm(ls)
			p.start(ls, kindInputs, results)

		case <-tick:
			if ls.inflight {
				continue
			}
			p.start(ls, kindTick, results)

		case r := <-results:
			if r.gen != ls.gen {
				p.cfg.Logger.Debug(context.Background(), "discarding stale result", "gen", r.gen, "current", ls.gen)
				continue
			}
			ls.inflight = false
			ls.cancel = nil
			p.finish(ls, r)
		}
	}
}

func (p *Poller[I, T]) rearm(ls *loopState[I, T]) {
	if ls.ticker != nil {
		ls.ticker.Stop()
		ls.ticker = nil
	}
	if d := p.cfg.Interval(ls.inputs); d > 0 {
		ls.ticker = time.NewTicker(d)
	}
}

// start issues a fetch for the current inputs, superseding any in-flight one.
func (p *Poller[I, T]) start(ls *loopState[I, T], kind fetchKind, results chan<- result[T]) {
	if ls.cancel != nil {
		ls.cancel()
	}
	ls.gen++
	gen, in := ls.gen, ls.inputs

	ctx, cancel := context.WithCancel(context.Background())
	ls.cancel = cancel
	ls.inflight = true

	next := ls.st
	next.Loading = !next.HasData
	next.Refreshing = kind == kindRefresh
	if next.Loading != ls.st.Loading || next.Refreshing != ls.st.Refreshing {
		p.publish(ls, next)
	}

	go func() {
		data, err := p.cfg.Fetch(ctx, in)
		select {
		case results <- result[T]{gen: gen, data: data, err: err}:
		case <-p.quit:
		}
	}()
}

func (p *Poller[I, T]) finish(ls *loopState[I, T], r result[T]) {
	ctx := context.Background()
	next := ls.st
	next.Loading = false
	next.Refreshing = false

	switch {
	case r.err == nil:
		next.Data = r.data
		next.HasData = true
		next.Err = nil
		next.UpdatedAt = time.Now()

	case errors.Is(r.err, common.ErrorUnauthorized):
		// The global 401 path owns the reaction; stop polling and leave the
		// state as it was.
		p.cfg.Logger.Info(ctx, "unauthorized, polling stopped")
		if ls.ticker != nil {
			ls.ticker.Stop()
			ls.ticker = nil
		}
		ls.hasInputs = false
		return

	default:
		p.cfg.Logger.Warn(ctx, "fetch failed", "err", r.err, "has_data", next.HasData)
		next.Err = r.err
	}
	p.publish(ls, next)
}

func (p *Poller[I, T]) publish(ls *loopState[I, T], next State[T]) {
	ls.st = next
	p.mu.Lock()
	p.state = next
	p.mu.Unlock()
	if p.cfg.OnChange != nil {
		p.cfg.OnChange(next)
	}
}
