package httpapi

import (
	"github.com/prometheus/client_golang/prometheus"
)

// registry is the wallet API's own Prometheus registry, matching the
// teacher's health-logging pattern of a dedicated *prometheus.Registry
// rather than the global default.
var registry = prometheus.NewRegistry()

// requestsTotal counts every wallet API request by route and status
// class, scraped off the /metrics route.
var requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "aurachain_wallet_api_requests_total",
	Help: "Total wallet API requests served, by route and status class.",
}, []string{"route", "status"})

func init() {
	registry.MustRegister(requestsTotal)
}
