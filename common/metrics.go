package common

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run counters, exposed when --metrics-addr is set. A price run is a
// batch job, but long days take minutes and operators scraping a fleet
// of nodes want the same counters the log lines carry.
var (
	BlocksLocated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "utxoracle_blocks_located_total",
		Help: "Target blocks resolved to a blk file location.",
	})
	BlocksParsed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "utxoracle_blocks_parsed_total",
		Help: "Blocks fully parsed from disk.",
	})
	TxsParsed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "utxoracle_transactions_parsed_total",
		Help: "Transactions parsed from target-day blocks.",
	})
	OutputsBinned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "utxoracle_outputs_binned_total",
		Help: "Qualifying outputs accumulated into the histogram.",
	})
)

// StartMetricsServer serves /metrics on addr in the background.
func StartMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			Log.WithField("error", err).Warn("metrics server exited")
		}
	}()
}
