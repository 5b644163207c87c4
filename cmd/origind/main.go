package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/searchktools/origind/app"
	"github.com/searchktools/origind/config"
)

const version = "origind v0.1"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		listen       = flag.String("listen", ":8080", "listening address, e.g. 8080 as :8080, 127.0.0.1:8080 or [::1]:8080")
		www          = flag.String("www", "www", "web directory")
		threads      = flag.Int("threads", 0, "worker threads (default: CPU count)")
		kcallThreads = flag.Int("kcall-threads", 0, "offload worker threads (default: CPU count)")
		polling      = flag.Bool("polling", false, "active polling mode")
		debug        = flag.Bool("debug", false, "debug log level")
		ctypesFile   = flag.String("content-types", "", "content-types table file")
	)
	flag.Parse()

	fmt.Println(version)

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	cfg := config.Default()
	cfg.Addr = *listen
	cfg.FS.WWW = *www
	cfg.PollingMode = *polling
	cfg.Log = log

	if *ctypesFile != "" {
		data, err := os.ReadFile(*ctypesFile)
		if err != nil {
			return err
		}
		ct, err := config.ParseContentTypes(data)
		if err != nil {
			return err
		}
		cfg.ContentTypes = ct
	}

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	a.SetWorkers(*threads)
	if *kcallThreads > 0 {
		a.SetOffloadWorkers(*kcallThreads)
	}

	workers := *threads
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	raiseFDLimit(cfg, workers, log)

	return a.Run()
}

// raiseFDLimit asks for enough descriptors for every worker's
// connection table. Failure is not fatal; accept back-off covers it.
func raiseFDLimit(cfg *config.Config, workers int, log zerolog.Logger) {
	want := uint64(cfg.MaxConnections) * 2 * uint64(workers)
	rl := unix.Rlimit{Cur: want, Max: want}
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		log.Warn().Err(err).Uint64("want", want).Msg("setrlimit(RLIMIT_NOFILE)")
	}
}
