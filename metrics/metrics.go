// Package metrics holds the process-wide prometheus collectors and a
// text-exposition renderer for the built-in /metrics virtual document.
package metrics

import (
	"bytes"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

var registry = prometheus.NewRegistry()

var (
	// ConnsAccepted counts accepted connections across all workers.
	ConnsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "origind_connections_accepted_total",
		Help: "Accepted TCP connections.",
	})

	// ConnsActive tracks currently open connections.
	ConnsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "origind_connections_active",
		Help: "Currently open connections.",
	})

	// Responses counts completed responses by status code.
	Responses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "origind_responses_total",
		Help: "Completed responses.",
	}, []string{"code"})

	// BytesIn counts request bytes received.
	BytesIn = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "origind_bytes_in_total",
		Help: "Request bytes received.",
	})

	// BytesOut counts response bytes sent.
	BytesOut = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "origind_bytes_out_total",
		Help: "Response bytes sent.",
	})
)

func init() {
	registry.MustRegister(ConnsAccepted, ConnsActive, Responses, BytesIn, BytesOut)
}

// Render gathers all collectors into the prometheus text format.
func Render() []byte {
	mfs, err := registry.Gather()
	if err != nil {
		return nil
	}
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return nil
		}
	}
	return buf.Bytes()
}
