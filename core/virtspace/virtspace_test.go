package virtspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type respRec struct {
	code int
	body string
}

func (r *respRec) SetResponse(code int, contentType string, body []byte) {
	r.code = code
	r.body = string(body)
}

func TestBuildAndFind(t *testing.T) {
	m, err := Build([]Doc{
		{Path: "/a", Method: "GET", Handler: func(r Responder) { r.SetResponse(200, "text/plain", []byte("a")) }},
		{Path: "/a", Method: "POST", Handler: func(r Responder) { r.SetResponse(201, "text/plain", []byte("b")) }},
		{Path: "/b", Method: "GET", Handler: func(r Responder) { r.SetResponse(200, "text/plain", []byte("c")) }},
	})
	require.NoError(t, err)

	d := m.Find([]byte("/a"), []byte("GET"))
	require.NotNil(t, d)
	var rec respRec
	d.Handler(&rec)
	assert.Equal(t, "a", rec.body)

	d = m.Find([]byte("/a"), []byte("POST"))
	require.NotNil(t, d)
	d.Handler(&rec)
	assert.Equal(t, 201, rec.code)

	assert.Nil(t, m.Find([]byte("/a"), []byte("DELETE")))
	assert.Nil(t, m.Find([]byte("/c"), []byte("GET")))
	assert.Nil(t, m.Find([]byte("/A"), []byte("GET"))) // exact match only
}

func TestBuildRejectsDuplicates(t *testing.T) {
	_, err := Build([]Doc{
		{Path: "/a", Method: "GET"},
		{Path: "/a", Method: "GET"},
	})
	assert.Error(t, err)
}

func TestNilMap(t *testing.T) {
	var m *Map
	assert.Nil(t, m.Find([]byte("/a"), []byte("GET")))
}
