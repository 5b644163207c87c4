package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	ConnsAccepted.Inc()
	ConnsActive.Inc()
	Responses.WithLabelValues("200").Inc()
	BytesIn.Add(10)
	BytesOut.Add(20)

	out := string(Render())
	assert.Contains(t, out, "origind_connections_accepted_total")
	assert.Contains(t, out, "origind_connections_active")
	assert.Contains(t, out, `origind_responses_total{code="200"}`)
	assert.Contains(t, out, "origind_bytes_in_total")
	assert.Contains(t, out, "origind_bytes_out_total")
}
