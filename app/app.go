// Package app wires the pieces of origind together: N reactor workers
// sharing one listening address, the offload worker pool, the virtual
// document registry and signal-driven shutdown.
package app

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/searchktools/origind/config"
	"github.com/searchktools/origind/core"
	"github.com/searchktools/origind/core/offload"
	"github.com/searchktools/origind/core/virtspace"
	"github.com/searchktools/origind/metrics"
)

// App is one origind process: workers, offload pool and virtual docs.
type App struct {
	cfg *config.Config
	log zerolog.Logger

	workersN int
	kcallN   int

	vdocs   []virtspace.Doc
	workers []*core.Worker
	offq    *offload.Queue

	stopOnce sync.Once
}

// New validates the config and creates an application instance.
// Worker counts default to the online CPU count.
func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{
		cfg:      cfg,
		log:      cfg.Log,
		workersN: runtime.NumCPU(),
		kcallN:   runtime.NumCPU(),
	}
	a.registerBuiltins()
	return a, nil
}

// SetWorkers overrides the reactor worker count.
func (a *App) SetWorkers(n int) {
	if n > 0 {
		a.workersN = n
	}
}

// SetOffloadWorkers overrides the offload (blocking-syscall) worker
// count. Zero disables the offload queue entirely: filesystem calls run
// synchronously on the reactors.
func (a *App) SetOffloadWorkers(n int) {
	a.kcallN = n
}

// Handle registers a virtual document served for an exact (method,
// path) pair. Must be called before Run.
func (a *App) Handle(method, path string, handler func(virtspace.Responder)) {
	a.vdocs = append(a.vdocs, virtspace.Doc{Path: path, Method: method, Handler: handler})
}

func (a *App) registerBuiltins() {
	a.Handle("GET", "/healthz", func(r virtspace.Responder) {
		r.SetResponse(200, "text/plain", []byte("ok"))
	})
	a.Handle("GET", "/metrics", func(r virtspace.Responder) {
		r.SetResponse(200, "text/plain; version=0.0.4", metrics.Render())
	})
}

// Run builds the workers and blocks until every reactor has exited.
// SIGINT/SIGTERM trigger a cooperative stop.
func (a *App) Run() error {
	vmap, err := virtspace.Build(a.vdocs)
	if err != nil {
		return err
	}

	if a.kcallN > 0 {
		a.offq = offload.New(a.kcallN, a.workersN*a.cfg.MaxConnections)
		a.offq.Start()
	}

	a.workers = make([]*core.Worker, 0, a.workersN)
	for i := 0; i < a.workersN; i++ {
		wlog := a.log.With().Int("worker", i).Logger()
		w, err := core.NewWorker(a.cfg, vmap, a.offq, wlog)
		if err != nil {
			if a.offq != nil {
				a.offq.Stop()
			}
			return fmt.Errorf("app: worker %d: %w", i, err)
		}
		a.workers = append(a.workers, w)
	}

	a.log.Info().
		Int("workers", a.workersN).
		Str("addr", a.cfg.Addr).
		Msg("listening")

	go a.awaitSignal()

	var wg sync.WaitGroup
	errs := make(chan error, len(a.workers))
	for _, w := range a.workers {
		wg.Add(1)
		go func(w *core.Worker) {
			defer wg.Done()
			if err := w.Run(); err != nil {
				errs <- err
			}
		}(w)
	}
	wg.Wait()

	if a.offq != nil {
		a.offq.Stop()
	}

	select {
	case err := <-errs:
		return err
	default:
		return nil
	}
}

// Stop requests a cooperative shutdown of every worker.
func (a *App) Stop() {
	a.stopOnce.Do(func() {
		a.log.Debug().Msg("stopping workers")
		for _, w := range a.workers {
			w.Stop()
		}
	})
}

func (a *App) awaitSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	a.log.Info().Str("signal", sig.String()).Msg("signal received, shutting down")
	a.Stop()
}
