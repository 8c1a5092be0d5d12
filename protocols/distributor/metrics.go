package distributor

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// --- Metrics ---

// Metrics holds all the Prometheus metrics for the distributor.
// A nil *Metrics records nothing.
type Metrics struct {
	claimDuration prometheus.Histogram
	claimsTotal   *prometheus.CounterVec
	depositsTotal *prometheus.CounterVec
	claimIndex    prometheus.Gauge
}

// NewMetrics creates and registers the metrics for the distributor.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		claimDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rewards_claim_duration_seconds",
			Help:    "Time taken to validate and settle a single claim.",
			Buckets: prometheus.DefBuckets,
		}),
		claimsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rewards_claims_total",
			Help: "Total number of claims processed, labeled by result.",
		}, []string{"result"}),
		depositsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rewards_deposits_total",
			Help: "Total number of reward deposits, labeled by token and result.",
		}, []string{"token", "result"}),
		claimIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rewards_claim_index",
			Help: "The current epoch index claims are accepted for.",
		}),
	}
	reg.MustRegister(m.claimDuration, m.claimsTotal, m.depositsTotal, m.claimIndex)
	return m
}

func (m *Metrics) observeClaim(start time.Time, err error) {
	if m == nil {
		return
	}
	m.claimDuration.Observe(time.Since(start).Seconds())
	m.claimsTotal.WithLabelValues(resultLabel(err)).Inc()
}

func (m *Metrics) observeDeposit(token string, err error) {
	if m == nil {
		return
	}
	m.depositsTotal.WithLabelValues(token, resultLabel(err)).Inc()
}

func (m *Metrics) setClaimIndex(epoch uint64) {
	if m == nil {
		return
	}
	m.claimIndex.Set(float64(epoch))
}

var resultLabels = []struct {
	err   error
	label string
}{
	{ErrPaused, "paused"},
	{ErrUnauthorized, "unauthorized"},
	{ErrInvalidPid, "invalid_pid"},
	{ErrUnmatchedRewardToken, "unmatched_reward_token"},
	{ErrInvalidClaimIndex, "invalid_claim_index"},
	{ErrInvalidInterval, "invalid_interval"},
	{ErrInvalidSigner, "invalid_signer"},
	{ErrAlreadyUsedSignature, "already_used_signature"},
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	for _, rl := range resultLabels {
		if errors.Is(err, rl.err) {
			return rl.label
		}
	}
	return "error"
}
