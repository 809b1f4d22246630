// Package metrics declares the Prometheus collectors nervixd exposes on
// its diagnostics HTTP surface and registers them against a private
// registry so a daemon embedding this package never pollutes the global
// default registerer.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every collector the reactor's Tracer implementation
// updates. Construct with New and register with a promhttp.Handler via
// Registry().
type Metrics struct {
	registry *prometheus.Registry

	ChannelsOpen        prometheus.Gauge
	UpstreamVerbsTotal  *prometheus.CounterVec
	SessionsActivated   prometheus.Counter
	ImproperLogouts     prometheus.Counter
	UnknownPostRefs     prometheus.Counter
	UnownedPosts        prometheus.Counter
	InvalidVerbsTotal   *prometheus.CounterVec
	ClientsUnresponsive prometheus.Counter

	stateGaugesBound bool
}

// New builds a fresh Metrics bundle registered against its own private
// registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		ChannelsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nervix", Name: "channels_open", Help: "Number of currently open channels.",
		}),
		UpstreamVerbsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nervix", Name: "upstream_verbs_total", Help: "Upstream verbs processed, by verb type.",
		}, []string{"verb"}),
		SessionsActivated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nervix", Name: "sessions_activated_total", Help: "Number of times a channel was activated as a name's owner.",
		}),
		ImproperLogouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nervix", Name: "improper_logouts_total", Help: "LOGOUT verbs received from a channel that was not the name's owner.",
		}),
		UnknownPostRefs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nervix", Name: "unknown_postrefs_total", Help: "POST verbs referencing a postref that no longer exists.",
		}),
		UnownedPosts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nervix", Name: "unowned_posts_total", Help: "POST verbs received from a channel that does not own the post's name.",
		}),
		InvalidVerbsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nervix", Name: "invalid_verbs_total", Help: "Verbs dropped for failing validation, by direction.",
		}, []string{"direction"}),
		ClientsUnresponsive: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nervix", Name: "clients_unresponsive_total", Help: "Channels disconnected by keepalive for going unresponsive.",
		}),
	}

	reg.MustRegister(
		m.ChannelsOpen,
		m.UpstreamVerbsTotal, m.SessionsActivated, m.ImproperLogouts, m.UnknownPostRefs,
		m.UnownedPosts, m.InvalidVerbsTotal, m.ClientsUnresponsive,
	)
	return m
}

// Registry returns the private registry these collectors were registered
// against, suitable for promhttp.HandlerFor.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// BindStateGauges registers the reactor-state gauges (names owned,
// candidates queued, posts outstanding, interest entries) as GaugeFuncs
// backed by counts, so they always report the reactor's live state instead
// of needing to be kept in sync at every mutation call site. counts is
// typically (*reactor.Reactor).StateCounts. Call once, after both the
// Metrics and the Reactor it instruments have been constructed; calling it
// a second time panics, matching MustRegister's duplicate-collector
// behavior.
func (m *Metrics) BindStateGauges(counts func() (namesOwned, candidatesQueued, posts, interestEntries int)) {
	if m.stateGaugesBound {
		panic("metrics: BindStateGauges called more than once")
	}
	m.stateGaugesBound = true

	namesOwned := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "nervix", Name: "names_owned", Help: "Number of names with a current owner.",
	}, func() float64 { n, _, _, _ := counts(); return float64(n) })

	candidatesQueued := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "nervix", Name: "candidates_queued", Help: "Number of standby candidates queued across all names.",
	}, func() float64 { _, n, _, _ := counts(); return float64(n) })

	postsOutstanding := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "nervix", Name: "posts_outstanding", Help: "Number of posts (transient or persistent) currently tracked.",
	}, func() float64 { _, _, n, _ := counts(); return float64(n) })

	interestEntries := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "nervix", Name: "interest_entries", Help: "Number of (name, topic) pairs with nonzero interest.",
	}, func() float64 { _, _, _, n := counts(); return float64(n) })

	m.registry.MustRegister(namesOwned, candidatesQueued, postsOutstanding, interestEntries)
}
