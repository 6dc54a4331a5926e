package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Per-client cycle metrics, refreshed whenever a current-cycle view is built
	CycleUsageGB = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "datacap_cycle_usage_gb",
			Help: "Usage in the current billing cycle per client in GB",
		},
		[]string{"client_id"},
	)

	ForecastGB = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "datacap_cycle_forecast_gb",
			Help: "Projected end-of-cycle usage per client in GB",
		},
		[]string{"client_id"},
	)

	CapGB = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "datacap_client_cap_gb",
			Help: "Monthly data cap per client in GB",
		},
		[]string{"client_id"},
	)

	ReportRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datacap_report_requests_total",
			Help: "Reports assembled by kind",
		},
		[]string{"kind"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datacap_cycle_cache_lookups_total",
			Help: "Cycle cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	IngestRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datacap_ingest_rows_total",
			Help: "Bulk ingestion rows by outcome (accepted, dropped)",
		},
		[]string{"outcome"},
	)
)

// UpdateCycleMetrics updates the usage, forecast and cap gauges for a client
func UpdateCycleMetrics(clientID int64, usage, forecast, capGB float64) {
	id := strconv.FormatInt(clientID, 10)
	CycleUsageGB.WithLabelValues(id).Set(usage)
	ForecastGB.WithLabelValues(id).Set(forecast)
	CapGB.WithLabelValues(id).Set(capGB)
}

// RecordIngest adds the outcome of one ingestion run
func RecordIngest(accepted, dropped int) {
	IngestRows.WithLabelValues("accepted").Add(float64(accepted))
	IngestRows.WithLabelValues("dropped").Add(float64(dropped))
}
