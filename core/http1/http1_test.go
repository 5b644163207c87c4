package http1

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestLine(t *testing.T) {
	b := []byte("GET /hello.txt HTTP/1.1\r\nHost: h\r\n\r\n")

	method, target, proto, n, err := ParseRequestLine(b)
	require.NoError(t, err)
	require.Equal(t, len("GET /hello.txt HTTP/1.1\r\n"), n)
	assert.Equal(t, "GET", string(method.In(b)))
	assert.Equal(t, "/hello.txt", string(target.In(b)))
	assert.Equal(t, "HTTP/1.1", string(proto.In(b)))
}

func TestParseRequestLineIncomplete(t *testing.T) {
	for _, in := range []string{"", "GET", "GET /x HTTP/1.1", "GET /x HTTP/1.1\r"} {
		_, _, _, n, err := ParseRequestLine([]byte(in))
		require.NoError(t, err, "input %q", in)
		assert.Zero(t, n, "input %q", in)
	}
}

func TestParseRequestLineMalformed(t *testing.T) {
	for _, in := range []string{
		"GET /x HTTP/1.1\n",        // bare LF
		"GET/x HTTP/1.1\r\n",       // one token short
		"GET /x\r\n",               // no protocol
		"GET /x ICY/1.1\r\n",       // unknown protocol
		"GET /x HTTP/2\r\n",        // wrong version shape
		" GET /x HTTP/1.1\r\n",     // leading space
		"\r\n",                     // empty line
	} {
		_, _, _, _, err := ParseRequestLine([]byte(in))
		assert.ErrorIs(t, err, ErrBadRequestLine, "input %q", in)
	}
}

func TestParseHeader(t *testing.T) {
	b := []byte("Host:  example.com \r\nrest")
	name, val, n, err := ParseHeader(b)
	require.NoError(t, err)
	assert.Equal(t, len(b)-len("rest"), n)
	assert.Equal(t, "Host", string(name.In(b)))
	assert.Equal(t, "example.com", string(val.In(b)))
}

func TestParseHeaderIncompleteAndBad(t *testing.T) {
	_, _, n, err := ParseHeader([]byte("Host: h"))
	require.NoError(t, err)
	assert.Zero(t, n)

	for _, in := range []string{"Host h\r\n", ": v\r\n", "Host: h\n"} {
		_, _, _, err := ParseHeader([]byte(in))
		assert.ErrorIs(t, err, ErrBadHeader, "input %q", in)
	}
}

func TestSkipHeadersEnd(t *testing.T) {
	assert.Equal(t, 2, SkipHeadersEnd([]byte("\r\nGET")))
	assert.Equal(t, 1, SkipHeadersEnd([]byte("\nGET")))
	assert.Equal(t, 0, SkipHeadersEnd([]byte("Host: h\r\n")))
	assert.Equal(t, 0, SkipHeadersEnd(nil))
}

func TestSplitTarget(t *testing.T) {
	b := []byte("GET /p?a=1 HTTP/1.1\r\n")
	_, target, _, _, err := ParseRequestLine(b)
	require.NoError(t, err)

	path, query := SplitTarget(b, target)
	assert.Equal(t, "/p", string(path.In(b)))
	assert.Equal(t, "a=1", string(query.In(b)))

	path2, query2 := SplitTarget(b, path)
	assert.Equal(t, "/p", string(path2.In(b)))
	assert.Zero(t, query2.Len)
}

func TestUnescape(t *testing.T) {
	out, err := Unescape([]byte("/a%20b%2Fc"))
	require.NoError(t, err)
	assert.Equal(t, "/a b/c", string(out))

	out, err = Unescape([]byte("/plain+path"))
	require.NoError(t, err)
	assert.Equal(t, "/plain+path", string(out))

	for _, in := range []string{"/a%2", "/a%zz", "/a%00b"} {
		_, err := Unescape([]byte(in))
		assert.ErrorIs(t, err, ErrBadEscape, "input %q", in)
	}
}

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/":              "/",
		"/a/b":           "/a/b",
		"/a/b/":          "/a/b/",
		"/a//b":          "/a/b",
		"/a/./b":         "/a/b",
		"/a/c/../b":      "/a/b",
		"/a/..":          "/",
		"/a/../":         "/",
		"/./":            "/",
	}
	for in, want := range cases {
		out, err := NormalizePath([]byte(in))
		require.NoError(t, err, "input %q", in)
		assert.Equal(t, want, string(out), "input %q", in)

		// idempotent on normalized input
		again, err := NormalizePath(out)
		require.NoError(t, err)
		assert.Equal(t, want, string(again), "input %q", in)
	}
}

func TestNormalizePathRejects(t *testing.T) {
	for _, in := range []string{"", "a/b", "/..", "/../x", "/a/../.."} {
		_, err := NormalizePath([]byte(in))
		assert.ErrorIs(t, err, ErrBadPath, "input %q", in)
	}
}
