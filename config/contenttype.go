package config

import (
	"errors"
	"fmt"
	"strings"
)

// ContentTypes maps lowercase file extensions to MIME strings.
// Extensions longer than four characters are not representable and are
// rejected at parse time; lookups of longer extensions miss.
type ContentTypes struct {
	m map[string]string
}

const builtinContentTypes = `image/gif	gif
image/jpeg	jpg
image/png	png
image/svg+xml	svg
image/webp	webp
text/css	css
text/html	htm html
text/plain	txt
`

// DefaultContentTypes returns the built-in table.
func DefaultContentTypes() *ContentTypes {
	ct, err := ParseContentTypes([]byte(builtinContentTypes))
	if err != nil {
		panic(err) // built-in table is constant
	}
	return ct
}

var errCTFormat = errors.New("content-types: bad line format")

// ParseContentTypes reads the line-oriented table:
//
//	MIME_TYPE \t EXT1 [SP EXT2]...
//
// '#' starts a comment running to end of line. Extensions are lowercased
// and must be at most four characters.
func ParseContentTypes(data []byte) (*ContentTypes, error) {
	ct := &ContentTypes{m: make(map[string]string)}
	for ln, line := range strings.Split(string(data), "\n") {
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			continue
		}
		mime, exts, ok := strings.Cut(line, "\t")
		if !ok || mime == "" {
			return nil, fmt.Errorf("%w (line %d)", errCTFormat, ln+1)
		}
		for _, ext := range strings.Fields(exts) {
			if len(ext) > 4 {
				return nil, fmt.Errorf("content-types: extension %q too long (line %d)", ext, ln+1)
			}
			ct.m[strings.ToLower(ext)] = mime
		}
	}
	return ct, nil
}

// Lookup returns the MIME string for a lowercase extension, or "" on miss.
func (ct *ContentTypes) Lookup(ext string) string {
	if len(ext) > 4 {
		return ""
	}
	return ct.m[ext]
}

// Len reports the number of known extensions.
func (ct *ContentTypes) Len() int { return len(ct.m) }
