package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	AuthStateChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "authbridge", Name: "auth_state_changes_total", Help: "Number of provider auth change events by kind."},
		[]string{"event"},
	)
	SignInAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "authbridge", Name: "signin_attempts_total", Help: "Number of sign-in pass-through calls by result."},
		[]string{"result"},
	)
	SessionRestores = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "authbridge", Name: "session_restores_total", Help: "Number of startup session fetches by outcome."},
		[]string{"result"},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "authbridge", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "authbridge", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(AuthStateChanges)
	reg.MustRegister(SignInAttempts)
	reg.MustRegister(SessionRestores)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}
