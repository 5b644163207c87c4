// Package virtspace is the registry of virtual documents: in-process
// handlers keyed by (path, method) that produce responses without
// touching the filesystem.
package virtspace

import (
	"errors"

	"github.com/spaolacci/murmur3"
)

const hashSeed = 0x12345678

// Doc is one registered virtual document. Handler runs on the reactor
// thread of whichever worker accepted the connection; it must not block.
type Doc struct {
	Path    string
	Method  string
	Handler func(Responder)
}

// Responder is the narrow view of a connection a handler is given.
type Responder interface {
	// SetResponse sets the status, content type and full body of the
	// response. A handler that never calls it produces an empty 200.
	SetResponse(code int, contentType string, body []byte)
}

// Map is the immutable (path, method) lookup table.
type Map struct {
	buckets map[uint32][]*Doc
}

func hash(path, method string) uint32 {
	return murmur3.Sum32WithSeed([]byte(path), hashSeed) ^ murmur3.Sum32WithSeed([]byte(method), hashSeed)
}

var errDup = errors.New("virtspace: duplicate (path, method)")

// Build creates a Map from the given docs.
func Build(docs []Doc) (*Map, error) {
	m := &Map{buckets: make(map[uint32][]*Doc, len(docs))}
	for i := range docs {
		d := &docs[i]
		h := hash(d.Path, d.Method)
		for _, prev := range m.buckets[h] {
			if prev.Path == d.Path && prev.Method == d.Method {
				return nil, errDup
			}
		}
		m.buckets[h] = append(m.buckets[h], d)
	}
	return m, nil
}

// Find looks up a document by exact path and method.
func (m *Map) Find(path, method []byte) *Doc {
	if m == nil {
		return nil
	}
	h := murmur3.Sum32WithSeed(path, hashSeed) ^ murmur3.Sum32WithSeed(method, hashSeed)
	for _, d := range m.buckets[h] {
		if string(path) == d.Path && string(method) == d.Method {
			return d
		}
	}
	return nil
}
