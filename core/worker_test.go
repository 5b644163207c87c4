package core

import (
	"bufio"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/searchktools/origind/config"
	"github.com/searchktools/origind/core/offload"
	"github.com/searchktools/origind/core/virtspace"
)

// testServer is one running worker over a throwaway document root.
type testServer struct {
	w    *Worker
	addr string
	www  string
	done chan struct{}
	offq *offload.Queue
}

func startServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()

	www := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(www, "hello.txt"), []byte("hi\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(www, "x"), []byte("xx"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(www, "subdir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(www, "subdir", "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(www, "dir2"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(www, "dir2", "index.html"), []byte("<b>idx</b>"), 0o644))

	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.MaxConnections = 64
	cfg.EventsNum = 64
	cfg.TimerIntervalMsec = 50
	cfg.FS.WWW = www
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	vmap, err := virtspace.Build([]virtspace.Doc{
		{Path: "/vdoc", Method: "GET", Handler: func(r virtspace.Responder) {
			r.SetResponse(200, "text/plain", []byte("virtual"))
		}},
	})
	require.NoError(t, err)

	offq := offload.New(2, 256)
	offq.Start()

	w, err := NewWorker(cfg, vmap, offq, zerolog.Nop())
	require.NoError(t, err)

	addr, err := w.Addr()
	require.NoError(t, err)

	s := &testServer{w: w, addr: addr, www: www, done: make(chan struct{}), offq: offq}
	go func() {
		w.Run()
		close(s.done)
	}()

	t.Cleanup(func() {
		w.Stop()
		select {
		case <-s.done:
		case <-time.After(5 * time.Second):
			t.Error("worker did not stop")
		}
		offq.Stop()
	})
	return s
}

func (s *testServer) dial(t *testing.T) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", s.addr, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetDeadline(time.Now().Add(10 * time.Second))
	return conn, bufio.NewReader(conn)
}

// readResponse parses one response: status line, headers, and exactly
// Content-Length body bytes.
func readResponse(t *testing.T, r *bufio.Reader) (status string, hdrs map[string]string, body string) {
	t.Helper()

	line, err := r.ReadString('\n')
	require.NoError(t, err)
	status = strings.TrimRight(line, "\r\n")

	hdrs = make(map[string]string)
	for {
		line, err = r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, val, ok := strings.Cut(line, ": ")
		require.True(t, ok, "header line %q", line)
		hdrs[name] = val
	}

	cl, err := strconv.Atoi(hdrs["Content-Length"])
	require.NoError(t, err, "missing Content-Length")
	b := make([]byte, cl)
	_, err = io.ReadFull(r, b)
	require.NoError(t, err)
	return status, hdrs, string(b)
}

func TestServeFile(t *testing.T) {
	s := startServer(t, nil)
	conn, r := s.dial(t)

	_, err := conn.Write([]byte("GET /hello.txt HTTP/1.1\r\nHost: h\r\n\r\n"))
	require.NoError(t, err)

	status, hdrs, body := readResponse(t, r)
	assert.Equal(t, "HTTP/1.1 200 OK", status)
	assert.Equal(t, "3", hdrs["Content-Length"])
	assert.Equal(t, "text/plain", hdrs["Content-Type"])
	assert.Equal(t, "keep-alive", hdrs["Connection"])
	assert.Equal(t, "origind", hdrs["Server"])
	assert.NotEmpty(t, hdrs["Last-Modified"])
	assert.Equal(t, "hi\n", body)
}

func TestNotFound(t *testing.T) {
	s := startServer(t, nil)
	conn, r := s.dial(t)

	_, err := conn.Write([]byte("GET /missing HTTP/1.1\r\nHost: h\r\n\r\n"))
	require.NoError(t, err)

	status, hdrs, body := readResponse(t, r)
	assert.Equal(t, "HTTP/1.1 404 Not Found", status)
	assert.Equal(t, "9", hdrs["Content-Length"])
	assert.Equal(t, "Not Found", body)
}

func TestDirectoryRedirect(t *testing.T) {
	s := startServer(t, nil)
	conn, r := s.dial(t)

	_, err := conn.Write([]byte("GET /subdir HTTP/1.1\r\nHost: h\r\n\r\n"))
	require.NoError(t, err)

	status, hdrs, _ := readResponse(t, r)
	assert.Equal(t, "HTTP/1.1 301 Moved Permanently", status)
	assert.Equal(t, "http://h/subdir/", hdrs["Location"])
}

func TestMethodNotAllowed(t *testing.T) {
	s := startServer(t, nil)
	conn, r := s.dial(t)

	_, err := conn.Write([]byte("POST /x HTTP/1.1\r\nHost: h\r\n\r\n"))
	require.NoError(t, err)

	status, _, body := readResponse(t, r)
	assert.Equal(t, "HTTP/1.1 405 Method Not Allowed", status)
	assert.Equal(t, "Method Not Allowed", body)
}

func TestPipelinedRequests(t *testing.T) {
	s := startServer(t, nil)
	conn, r := s.dial(t)

	_, err := conn.Write([]byte(
		"GET /hello.txt HTTP/1.1\r\nHost: h\r\n\r\n" +
			"GET /missing HTTP/1.1\r\nHost: h\r\n\r\n"))
	require.NoError(t, err)

	status, _, body := readResponse(t, r)
	assert.Equal(t, "HTTP/1.1 200 OK", status)
	assert.Equal(t, "hi\n", body)

	status, _, body = readResponse(t, r)
	assert.Equal(t, "HTTP/1.1 404 Not Found", status)
	assert.Equal(t, "Not Found", body)
}

func TestHTTP10NoHost(t *testing.T) {
	s := startServer(t, nil)
	conn, r := s.dial(t)

	_, err := conn.Write([]byte("GET / HTTP/1.0\r\n\r\n"))
	require.NoError(t, err)

	status, hdrs, body := readResponse(t, r)
	assert.Equal(t, "HTTP/1.1 200 OK", status)
	assert.Equal(t, "close", hdrs["Connection"])
	assert.Contains(t, body, "hello.txt") // autoindex listing

	// connection closes after the response
	_, err = r.ReadByte()
	assert.ErrorIs(t, err, io.EOF)
}

func TestHTTP11NoHost(t *testing.T) {
	s := startServer(t, nil)
	conn, r := s.dial(t)

	_, err := conn.Write([]byte("GET / HTTP/1.1\r\n\r\n"))
	require.NoError(t, err)

	status, hdrs, _ := readResponse(t, r)
	assert.Equal(t, "HTTP/1.1 400 Bad Request", status)
	assert.Equal(t, "close", hdrs["Connection"])
}

func TestHeadMatchesGet(t *testing.T) {
	s := startServer(t, nil)
	conn, r := s.dial(t)

	_, err := conn.Write([]byte("GET /hello.txt HTTP/1.1\r\nHost: h\r\n\r\n"))
	require.NoError(t, err)
	getStatus, getHdrs, _ := readResponse(t, r)

	_, err = conn.Write([]byte("HEAD /hello.txt HTTP/1.1\r\nHost: h\r\n\r\n"))
	require.NoError(t, err)

	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, getStatus, strings.TrimRight(line, "\r\n"))

	headHdrs := make(map[string]string)
	for {
		line, err = r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, val, ok := strings.Cut(line, ": ")
		require.True(t, ok)
		headHdrs[name] = val
	}
	assert.Equal(t, getHdrs["Content-Length"], headHdrs["Content-Length"])
	assert.Equal(t, getHdrs["Content-Type"], headHdrs["Content-Type"])

	// no body follows: the next request gets an immediate response
	_, err = conn.Write([]byte("GET /hello.txt HTTP/1.1\r\nHost: h\r\n\r\n"))
	require.NoError(t, err)
	status, _, body := readResponse(t, r)
	assert.Equal(t, "HTTP/1.1 200 OK", status)
	assert.Equal(t, "hi\n", body)
}

func TestIfModifiedSince(t *testing.T) {
	s := startServer(t, nil)
	conn, r := s.dial(t)

	_, err := conn.Write([]byte("GET /hello.txt HTTP/1.1\r\nHost: h\r\n\r\n"))
	require.NoError(t, err)
	_, hdrs, _ := readResponse(t, r)
	lm := hdrs["Last-Modified"]
	require.NotEmpty(t, lm)

	_, err = conn.Write([]byte("GET /hello.txt HTTP/1.1\r\nHost: h\r\nIf-Modified-Since: " + lm + "\r\n\r\n"))
	require.NoError(t, err)

	status, hdrs, body := readResponse(t, r)
	assert.Equal(t, "HTTP/1.1 304 Not Modified", status)
	assert.Equal(t, "0", hdrs["Content-Length"])
	assert.Empty(t, body)
}

func TestIndexFile(t *testing.T) {
	s := startServer(t, nil)
	conn, r := s.dial(t)

	_, err := conn.Write([]byte("GET /dir2/ HTTP/1.1\r\nHost: h\r\n\r\n"))
	require.NoError(t, err)

	status, hdrs, body := readResponse(t, r)
	assert.Equal(t, "HTTP/1.1 200 OK", status)
	assert.Equal(t, "text/html", hdrs["Content-Type"])
	assert.Equal(t, "<b>idx</b>", body)
}

func TestAutoindexListing(t *testing.T) {
	s := startServer(t, nil)
	conn, r := s.dial(t)

	_, err := conn.Write([]byte("GET /subdir/ HTTP/1.1\r\nHost: h\r\n\r\n"))
	require.NoError(t, err)

	status, hdrs, body := readResponse(t, r)
	assert.Equal(t, "HTTP/1.1 200 OK", status)
	assert.Equal(t, strconv.Itoa(len(body)), hdrs["Content-Length"])
	assert.Contains(t, body, "Index of /subdir/")
	assert.Contains(t, body, `<a href="/subdir/a.txt">a.txt</a>`)
	assert.Contains(t, body, `<a href="/subdir/..">..</a>`)
}

func TestVirtualDocument(t *testing.T) {
	s := startServer(t, nil)
	conn, r := s.dial(t)

	_, err := conn.Write([]byte("GET /vdoc HTTP/1.1\r\nHost: h\r\n\r\n"))
	require.NoError(t, err)

	status, hdrs, body := readResponse(t, r)
	assert.Equal(t, "HTTP/1.1 200 OK", status)
	assert.Equal(t, "text/plain", hdrs["Content-Type"])
	assert.Equal(t, "virtual", body)
}

func TestBadRequestLine(t *testing.T) {
	s := startServer(t, nil)
	conn, r := s.dial(t)

	_, err := conn.Write([]byte("BAD\r\n"))
	require.NoError(t, err)

	status, hdrs, _ := readResponse(t, r)
	assert.Equal(t, "HTTP/1.1 400 Bad Request", status)
	assert.Equal(t, "close", hdrs["Connection"])
}

func TestPathEscapeRejected(t *testing.T) {
	s := startServer(t, nil)
	conn, r := s.dial(t)

	_, err := conn.Write([]byte("GET /../etc/passwd HTTP/1.1\r\nHost: h\r\n\r\n"))
	require.NoError(t, err)

	status, _, _ := readResponse(t, r)
	assert.Equal(t, "HTTP/1.1 400 Bad Request", status)
}

func TestEscapedPath(t *testing.T) {
	s := startServer(t, nil)
	conn, r := s.dial(t)

	_, err := conn.Write([]byte("GET /%68ello.txt HTTP/1.1\r\nHost: h\r\n\r\n"))
	require.NoError(t, err)

	status, _, body := readResponse(t, r)
	assert.Equal(t, "HTTP/1.1 200 OK", status)
	assert.Equal(t, "hi\n", body)
}

func TestKeepAliveLimit(t *testing.T) {
	s := startServer(t, func(cfg *config.Config) {
		cfg.MaxKeepAliveReqs = 2
	})
	conn, r := s.dial(t)

	for i := 0; i < 2; i++ {
		_, err := conn.Write([]byte("GET /hello.txt HTTP/1.1\r\nHost: h\r\n\r\n"))
		require.NoError(t, err)
		status, _, _ := readResponse(t, r)
		assert.Equal(t, "HTTP/1.1 200 OK", status)
	}

	// the limit closes the connection after the second response
	_, err := r.ReadByte()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSplitRequestAcrossSegments(t *testing.T) {
	s := startServer(t, nil)
	conn, r := s.dial(t)

	_, err := conn.Write([]byte("GET /hello.txt HT"))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	_, err = conn.Write([]byte("TP/1.1\r\nHost: h\r\n\r\n"))
	require.NoError(t, err)

	status, _, body := readResponse(t, r)
	assert.Equal(t, "HTTP/1.1 200 OK", status)
	assert.Equal(t, "hi\n", body)
}

func TestConnectionCloseHonored(t *testing.T) {
	s := startServer(t, nil)
	conn, r := s.dial(t)

	_, err := conn.Write([]byte("GET /hello.txt HTTP/1.1\r\nHost: h\r\nConnection: close\r\n\r\n"))
	require.NoError(t, err)

	status, hdrs, _ := readResponse(t, r)
	assert.Equal(t, "HTTP/1.1 200 OK", status)
	assert.Equal(t, "close", hdrs["Connection"])

	_, err = r.ReadByte()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSynchronousFilesystemFallback(t *testing.T) {
	// no offload queue: filesystem calls run on the reactor
	www := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(www, "f.txt"), []byte("sync"), 0o644))

	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.MaxConnections = 8
	cfg.EventsNum = 16
	cfg.TimerIntervalMsec = 50
	cfg.FS.WWW = www
	require.NoError(t, cfg.Validate())

	w, err := NewWorker(cfg, nil, nil, zerolog.Nop())
	require.NoError(t, err)
	addr, err := w.Addr()
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		w.Run()
		close(done)
	}()
	t.Cleanup(func() {
		w.Stop()
		<-done
	})

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))
	r := bufio.NewReader(conn)

	_, err = conn.Write([]byte("GET /f.txt HTTP/1.1\r\nHost: h\r\n\r\n"))
	require.NoError(t, err)

	status, _, body := readResponse(t, r)
	assert.Equal(t, "HTTP/1.1 200 OK", status)
	assert.Equal(t, "sync", body)
}
