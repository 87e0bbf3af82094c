package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SessionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wolctl_session_transitions_total",
			Help: "Session state machine transitions by target state.",
		},
		[]string{"state"},
	)
	EncryptedCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wolctl_encrypted_calls_total",
			Help: "Enveloped API calls by outcome.",
		},
		[]string{"outcome"},
	)
	ServerKeyRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wolctl_server_key_refreshes_total",
			Help: "Server public key refreshes triggered by expiry.",
		},
		[]string{"outcome"},
	)
	ForcedLogouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wolctl_forced_logouts_total",
			Help: "Logouts forced by bearer token expiry.",
		},
	)
)

// MustRegister attaches all collectors to the given registerer. Call once
// at process start; prometheus.DefaultRegisterer in the CLI.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(SessionTransitions, EncryptedCalls, ServerKeyRefreshes, ForcedLogouts)
}
