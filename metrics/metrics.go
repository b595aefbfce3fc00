package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// AuthOutcomes counts finished callbacks by outcome ("complete" or a failure reason)
	AuthOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gitlab_login_auth_outcomes_total",
		Help: "Finished GitLab login callbacks by outcome",
	}, []string{"outcome"})

	AuthRedirects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gitlab_login_auth_redirects_total",
		Help: "Redirects issued to the GitLab authorization endpoint",
	})

	ExtraEndpointFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gitlab_login_extra_endpoint_failures_total",
		Help: "Failed extra data requests by endpoint name",
	}, []string{"endpoint"})

	ProviderLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gitlab_login_provider_request_seconds",
		Help:    "Latency of requests to GitLab by operation",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)

// Register registers the metrics on the given registry (or default if nil)
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{AuthOutcomes, AuthRedirects, ExtraEndpointFailures, ProviderLatency} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
