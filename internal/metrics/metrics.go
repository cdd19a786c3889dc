// Package metrics exposes Prometheus instrumentation for keeper activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	BidsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auctionbot",
		Subsystem: "keeper",
		Name:      "bids_submitted_total",
		Help:      "Count of new bid transactions submitted.",
	}, []string{"kind"})

	BidsReplaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auctionbot",
		Subsystem: "keeper",
		Name:      "bids_replaced_total",
		Help:      "Count of in-flight bids replaced at the same nonce.",
	}, []string{"kind"})

	BidsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auctionbot",
		Subsystem: "keeper",
		Name:      "bids_skipped_total",
		Help:      "Count of candidate bids skipped.",
	}, []string{"kind", "reason"})

	AuctionsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auctionbot",
		Subsystem: "keeper",
		Name:      "auctions_settled_total",
		Help:      "Count of finished auctions settled.",
	}, []string{"kind"})

	AuctionsRestarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auctionbot",
		Subsystem: "keeper",
		Name:      "auctions_restarted_total",
		Help:      "Count of expired no-bid auctions restarted.",
	}, []string{"kind"})

	ModelRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "auctionbot",
		Subsystem: "model",
		Name:      "process_restarts_total",
		Help:      "Count of pricing model subprocess (re)starts.",
	})

	CheckDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "auctionbot",
		Subsystem: "keeper",
		Name:      "check_duration_seconds",
		Help:      "Duration of a full auction-check or bid-check pass.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"pass"})
)

// ObservePass records the duration of one polling pass.
func ObservePass(pass string, started time.Time) {
	CheckDuration.WithLabelValues(pass).Observe(time.Since(started).Seconds())
}

// Serve exposes /metrics on addr in the background. Empty addr disables it.
func Serve(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error().Err(err).Str("addr", addr).Msg("Metrics listener stopped")
		}
	}()
	log.Info().Str("addr", addr).Msg("Metrics listener started")
}
