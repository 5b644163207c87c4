// Package http1 implements incremental HTTP/1.1 request parsing over a
// caller-owned buffer, plus URL unescaping and path normalization.
//
// The parsers never allocate and never copy: results are byte spans
// into the input, so they survive buffer reuse and compaction.
package http1

import (
	"bytes"
	"errors"
)

var (
	// ErrBadRequestLine means the request line is malformed.
	ErrBadRequestLine = errors.New("http1: bad request line")
	// ErrBadHeader means a header line is malformed.
	ErrBadHeader = errors.New("http1: bad header")
	// ErrBadEscape means a percent-escape is malformed.
	ErrBadEscape = errors.New("http1: bad percent-escape")
	// ErrBadPath means the path walks above the root or is empty.
	ErrBadPath = errors.New("http1: bad path")
)

// Span is a byte range relative to the parsed buffer.
type Span struct {
	Off int
	Len int
}

// In returns the spanned bytes of b.
func (s Span) In(b []byte) []byte { return b[s.Off : s.Off+s.Len] }

// ParseRequestLine parses "METHOD SP TARGET SP HTTP/1.x CRLF".
// n == 0 means more data is needed. The line must terminate with CRLF;
// a bare LF is rejected.
func ParseRequestLine(b []byte) (method, target, proto Span, n int, err error) {
	lineEnd := bytes.IndexByte(b, '\n')
	if lineEnd == -1 {
		return Span{}, Span{}, Span{}, 0, nil
	}
	if lineEnd == 0 || b[lineEnd-1] != '\r' {
		return Span{}, Span{}, Span{}, 0, ErrBadRequestLine
	}
	line := b[:lineEnd-1]

	sp1 := bytes.IndexByte(line, ' ')
	if sp1 <= 0 {
		return Span{}, Span{}, Span{}, 0, ErrBadRequestLine
	}
	sp2 := bytes.IndexByte(line[sp1+1:], ' ')
	if sp2 <= 0 {
		return Span{}, Span{}, Span{}, 0, ErrBadRequestLine
	}
	sp2 += sp1 + 1

	method = Span{0, sp1}
	target = Span{sp1 + 1, sp2 - sp1 - 1}
	proto = Span{sp2 + 1, len(line) - sp2 - 1}

	if proto.Len != len("HTTP/1.x") || !bytes.HasPrefix(proto.In(b), []byte("HTTP/1.")) {
		return Span{}, Span{}, Span{}, 0, ErrBadRequestLine
	}
	return method, target, proto, lineEnd + 1, nil
}

// ParseHeader parses one "Name: value CRLF" line. n == 0 means more data
// is needed. A blank line is not a header: the caller tests
// SkipHeadersEnd first.
func ParseHeader(b []byte) (name, val Span, n int, err error) {
	lineEnd := bytes.IndexByte(b, '\n')
	if lineEnd == -1 {
		return Span{}, Span{}, 0, nil
	}
	if lineEnd == 0 || b[lineEnd-1] != '\r' {
		return Span{}, Span{}, 0, ErrBadHeader
	}
	line := b[:lineEnd-1]

	colon := bytes.IndexByte(line, ':')
	if colon <= 0 {
		return Span{}, Span{}, 0, ErrBadHeader
	}
	name = trimOWS(b, Span{0, colon})
	val = trimOWS(b, Span{colon + 1, len(line) - colon - 1})
	if name.Len == 0 {
		return Span{}, Span{}, 0, ErrBadHeader
	}
	return name, val, lineEnd + 1, nil
}

// SkipHeadersEnd reports the length of an end-of-headers terminator at
// the start of b: 2 for CRLF, 1 for a tolerated bare LF, 0 for none.
func SkipHeadersEnd(b []byte) int {
	if len(b) >= 2 && b[0] == '\r' && b[1] == '\n' {
		return 2
	}
	if len(b) >= 1 && b[0] == '\n' {
		return 1
	}
	return 0
}

// SplitTarget splits a request target span into path and query at the
// first '?'. The query span is zero when absent.
func SplitTarget(b []byte, target Span) (path, query Span) {
	if i := bytes.IndexByte(target.In(b), '?'); i >= 0 {
		return Span{target.Off, i}, Span{target.Off + i + 1, target.Len - i - 1}
	}
	return target, Span{}
}

func trimOWS(b []byte, s Span) Span {
	for s.Len > 0 && (b[s.Off] == ' ' || b[s.Off] == '\t') {
		s.Off++
		s.Len--
	}
	for s.Len > 0 && (b[s.Off+s.Len-1] == ' ' || b[s.Off+s.Len-1] == '\t') {
		s.Len--
	}
	return s
}

func hexDigit(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}

// Unescape percent-decodes src into a fresh slice. '+' is left as-is
// (paths, not form data).
func Unescape(src []byte) ([]byte, error) {
	out := make([]byte, 0, len(src))
	for i := 0; i < len(src); i++ {
		c := src[i]
		if c != '%' {
			out = append(out, c)
			continue
		}
		if i+2 >= len(src) {
			return nil, ErrBadEscape
		}
		hi, lo := hexDigit(src[i+1]), hexDigit(src[i+2])
		if hi < 0 || lo < 0 {
			return nil, ErrBadEscape
		}
		b := byte(hi<<4 | lo)
		if b == 0 {
			return nil, ErrBadEscape
		}
		out = append(out, b)
		i += 2
	}
	return out, nil
}

// NormalizePath resolves "." and ".." segments over a slash-separated
// path. The result always begins with '/'; a trailing slash is
// preserved. Walking above the root or an empty path is an error.
// Normalization is idempotent.
func NormalizePath(p []byte) ([]byte, error) {
	if len(p) == 0 || p[0] != '/' {
		return nil, ErrBadPath
	}
	trailing := p[len(p)-1] == '/'

	out := make([]byte, 0, len(p))
	var stack [][]byte
	for _, s := range bytes.Split(p, []byte("/")) {
		switch {
		case len(s) == 0 || bytes.Equal(s, []byte(".")):
		case bytes.Equal(s, []byte("..")):
			if len(stack) == 0 {
				return nil, ErrBadPath
			}
			stack = stack[:len(stack)-1]
		default:
			stack = append(stack, s)
		}
	}

	for _, s := range stack {
		out = append(out, '/')
		out = append(out, s...)
	}
	if len(out) == 0 {
		return []byte("/"), nil
	}
	if trailing {
		out = append(out, '/')
	}
	return out, nil
}
