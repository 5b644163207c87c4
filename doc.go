/*
Package origind provides a multi-worker, event-driven HTTP/1.1 origin server
that serves a static document root and dispatches selected paths to
in-process virtual document handlers.

Each worker owns its own listening socket (SO_REUSEPORT spreads accepts
across workers), a readiness reactor, a timer queue, a pre-allocated
connection table and a fixed filter pipeline that carries every request
from the first byte received to the access-log line.

Features

  - I/O multiplexing: epoll (Linux) and kqueue (macOS), edge-triggered
  - Fixed filter pipeline: receive, request, index, autoindex, virtspace,
    file, error, transfer, response, send, access-log
  - HTTP/1.1 keep-alive and pipelining with residual-byte preservation
  - Static file serving with content-type lookup and conditional GET
  - Directory autoindex and 301 directory redirects
  - Virtual documents: (path, method) handlers served without touching disk
  - Blocking syscalls (open/stat/read, log writes) run on an offload pool
  - Structured logging via zerolog, prometheus counters on /metrics

Quick Start

package main

import (
    "github.com/searchktools/origind/app"
    "github.com/searchktools/origind/config"
)

func main() {
    cfg := config.Default()
    cfg.FS.WWW = "/srv/www"

    a, err := app.New(cfg)
    if err != nil {
        panic(err)
    }
    a.Run()
}

Modules

  - app: worker fan-out, offload pool, builtin virtual docs, signals
  - config: configuration and the content-types table
  - core: worker engine (reactor, connection table, timers, filter chain)
  - core/poller: I/O multiplexing (epoll/kqueue)
  - core/offload: blocking-syscall offload queue
  - core/http1: HTTP/1.1 request parsing
  - core/virtspace: virtual document registry
  - metrics: prometheus counters and text exposition
*/
package origind
