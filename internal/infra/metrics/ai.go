package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(aiTokensIn, aiTokensOut, aiTokensTotal, aiCallsLatency, aiRetries, aiBreakerState)
}

var (
	aiTokensIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_in",
			Help: "Sum of prompt (input) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiTokensOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_out",
			Help: "Sum of completion (output) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_total",
			Help: "Sum of total tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiCallsLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_call_duration_seconds",
			Help:    "Reasoning call latency in seconds.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160, 300},
		},
		[]string{"provider", "model", "success"},
	)

	aiRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_call_retries_total",
			Help: "Reasoning calls retried after a transient failure.",
		},
		[]string{"provider"},
	)

	aiBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ai_breaker_state",
			Help: "Circuit breaker state per provider (0 closed, 1 half-open, 2 open).",
		},
		[]string{"provider"},
	)
)

func ObserveAICall(provider, model string, tokensIn, tokensOut, tokensTotal int, took time.Duration, success bool) {
	lbl := []string{norm(provider), norm(model)}
	aiTokensIn.WithLabelValues(lbl...).Add(float64(tokensIn))
	aiTokensOut.WithLabelValues(lbl...).Add(float64(tokensOut))
	aiTokensTotal.WithLabelValues(lbl...).Add(float64(tokensTotal))
	aiCallsLatency.WithLabelValues(norm(provider), norm(model), strconv.FormatBool(success)).
		Observe(took.Seconds())
}

func IncAIRetry(provider string) {
	aiRetries.WithLabelValues(norm(provider)).Inc()
}

func SetAIBreakerState(provider string, state int) {
	aiBreakerState.WithLabelValues(norm(provider)).Set(float64(state))
}
