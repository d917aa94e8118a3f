package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		codesGeneratedTotal,
		generationCollisionsTotal,
		redemptionsTotal,
		codesDeletedTotal,
		codesTotal,
	)
}

var (
	codesGeneratedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "codes_generated_total",
			Help: "Total number of redemption codes persisted to the store.",
		},
	)

	generationCollisionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "code_generation_collisions_total",
			Help: "Random candidates rejected because the code already existed.",
		},
	)

	redemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "code_redemptions_total",
			Help: "Redemption attempts by outcome.",
		},
		[]string{"outcome"}, // 'redeemed', 'not_found', 'invalid', 'error'
	)

	codesDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "codes_deleted_total",
			Help: "Total number of code records removed.",
		},
	)

	codesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "codes_total",
			Help: "Current number of code records by status.",
		},
		[]string{"status"}, // 'unredeemed', 'redeemed'
	)
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func AddCodesGenerated(n int) {
	if n > 0 {
		codesGeneratedTotal.Add(float64(n))
	}
}

func IncGenerationCollision() { generationCollisionsTotal.Inc() }

func IncRedemption(outcome string) {
	redemptionsTotal.WithLabelValues(norm(outcome)).Inc()
}

func AddCodesDeleted(n int) {
	if n > 0 {
		codesDeletedTotal.Add(float64(n))
	}
}

func SetCodesTotal(status string, n int) {
	codesTotal.WithLabelValues(norm(status)).Set(float64(n))
}
