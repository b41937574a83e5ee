// Package metrics exposes the node's operational counters as Prometheus
// metrics, so the node is observable on a real boat network.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "n2k_frames_received_total",
		Help: "Total CAN frames read, by transport.",
	}, []string{"transport"})

	FramesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "n2k_frames_sent_total",
		Help: "Total CAN frames written, by transport.",
	}, []string{"transport"})

	TransportErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "n2k_transport_errors_total",
		Help: "Total transport-level read/write errors, by transport.",
	}, []string{"transport"})

	FastPacketCompletions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "n2k_fastpacket_completions_total",
		Help: "Total Fast Packet sequences reassembled into a complete message.",
	})

	FastPacketEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "n2k_fastpacket_evictions_total",
		Help: "Total Fast Packet reassembly slots evicted to make room under a full table.",
	})

	FastPacketTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "n2k_fastpacket_timeouts_total",
		Help: "Total Fast Packet sequences abandoned after exceeding the reassembly timeout.",
	})

	AddressClaimsWon = promauto.NewCounter(prometheus.CounterOpts{
		Name: "n2k_address_claims_won_total",
		Help: "Total address claim arbitrations this node won (including initial claims).",
	})

	AddressClaimsLost = promauto.NewCounter(prometheus.CounterOpts{
		Name: "n2k_address_claims_lost_total",
		Help: "Total address claim arbitrations this node lost.",
	})

	CurrentAddress = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "n2k_current_address",
		Help: "This node's current source address (claimed or being claimed), or 254 (null) when it holds none.",
	})

	DecodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "n2k_decode_errors_total",
		Help: "Total PGN decode failures, by PGN.",
	}, []string{"pgn"})
)

// Serve starts an HTTP server exposing /metrics on addr. The caller is
// responsible for shutting it down.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}
