package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Config holds everything a worker consumes at construction time.
// The core never reads flags or files itself; cmd/origind populates
// this struct and hands it over.
type Config struct {
	// Addr is the listening address, e.g. ":8080", "127.0.0.1:8080",
	// "[::]:8080". A wildcard IPv6 address listens dual-stack.
	Addr string

	EventsNum         int // reactor readiness batch size
	FDLimitTimeoutSec int // accept back-off after fd exhaustion
	TimerIntervalMsec int // timer queue tick
	MaxConnections    int // per-worker connection table capacity
	PollingMode       bool

	MaxKeepAliveReqs int

	Receive struct {
		BufSize    int
		TimeoutSec int
	}

	Response struct {
		BufSize    int
		ServerName string
	}

	Send struct {
		TCPNodelay bool
		TimeoutSec int
	}

	FS struct {
		WWW           string
		IndexFilename string
		FileBufSize   int
	}

	// ContentTypes maps lowercase file extensions (<= 4 chars) to MIME
	// strings. Populated from the built-in table or a user file.
	ContentTypes *ContentTypes

	Log zerolog.Logger

	// ConnID is shared across workers so connection ids are unique
	// process-wide and log lines can be correlated.
	ConnID *atomic.Uint32
}

// Default returns a Config with the stock defaults.
func Default() *Config {
	cfg := &Config{
		Addr:              ":8080",
		EventsNum:         1024,
		FDLimitTimeoutSec: 10,
		TimerIntervalMsec: 250,
		MaxConnections:    10000,
		MaxKeepAliveReqs:  100,
		ContentTypes:      DefaultContentTypes(),
		Log:               zerolog.Nop(),
		ConnID:            &atomic.Uint32{},
	}
	cfg.Receive.BufSize = 4096
	cfg.Receive.TimeoutSec = 65
	cfg.Response.BufSize = 4096
	cfg.Response.ServerName = "origind"
	cfg.Send.TCPNodelay = true
	cfg.Send.TimeoutSec = 65
	cfg.FS.WWW = "www"
	cfg.FS.IndexFilename = "index.html"
	cfg.FS.FileBufSize = 16 * 1024
	return cfg
}

var errBufSize = errors.New("config: receive and response buffers must be larger than 16 bytes")

// Validate checks the fields the core depends on and fills the optional
// ones left nil.
func (c *Config) Validate() error {
	if c.Receive.BufSize <= 16 || c.Response.BufSize <= 16 {
		return errBufSize
	}
	if c.MaxConnections <= 0 {
		return errors.New("config: max connections must be positive")
	}
	if c.FS.FileBufSize <= 0 {
		return errors.New("config: file buffer size must be positive")
	}
	if _, _, err := c.ListenIP(); err != nil {
		return err
	}
	if c.ConnID == nil {
		c.ConnID = &atomic.Uint32{}
	}
	if c.ContentTypes == nil {
		c.ContentTypes = DefaultContentTypes()
	}
	return nil
}

// ListenIP splits Addr into an IP and port. An empty host means the
// IPv6 wildcard (dual-stack listening).
func (c *Config) ListenIP() (net.IP, int, error) {
	host, portStr, err := net.SplitHostPort(c.Addr)
	if err != nil {
		return nil, 0, fmt.Errorf("config: listen address %q: %w", c.Addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 0xffff {
		return nil, 0, fmt.Errorf("config: listen address %q: bad port", c.Addr)
	}
	if host == "" {
		return net.IPv6unspecified, port, nil
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, 0, fmt.Errorf("config: listen address %q: bad IP", c.Addr)
	}
	return ip, port, nil
}
