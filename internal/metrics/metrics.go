package metrics

import "github.com/prometheus/client_golang/prometheus"

// Quota outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeExceeded = "exceeded"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

var (
	QuotaConsumeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "etkash",
			Name:      "quota_consume_total",
			Help:      "Quota consume calls by outcome",
		},
		[]string{"outcome"},
	)

	TokensConsumedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "etkash",
			Name:      "tokens_consumed_total",
			Help:      "Tokens charged against user quotas",
		},
	)

	TokensRefundedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "etkash",
			Name:      "tokens_refunded_total",
			Help:      "Tokens returned to quotas after a failed chat write",
		},
	)

	QuotaRolloversTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "etkash",
			Name:      "quota_rollovers_total",
			Help:      "Quota periods rolled over on consume",
		},
	)

	SignInTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "etkash",
			Name:      "signin_total",
			Help:      "Sign-in attempts by result",
		},
		[]string{"result"},
	)

	ChatSessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "etkash",
			Name:      "chat_sessions_active",
			Help:      "Chat sessions held by the in-memory chat log",
		},
	)
)

func init() {
	prometheus.MustRegister(QuotaConsumeTotal)
	prometheus.MustRegister(TokensConsumedTotal)
	prometheus.MustRegister(TokensRefundedTotal)
	prometheus.MustRegister(QuotaRolloversTotal)
	prometheus.MustRegister(SignInTotal)
	prometheus.MustRegister(ChatSessionsActive)
}
