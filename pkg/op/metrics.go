package op

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "idp"

var (
	rejectedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "rejected_requests_total",
		Help:      "Requests rejected by the protocol pipeline, by endpoint, error and kind.",
	}, []string{"endpoint", "error", "kind"})

	cibaPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "ciba_polls_total",
		Help:      "CIBA token endpoint polls by outcome.",
	}, []string{"outcome"})

	requestURIFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "request_uri_fetches_total",
		Help:      "request_uri resolutions by outcome.",
	}, []string{"outcome"})
)
