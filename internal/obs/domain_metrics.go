package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CheckoutTotal counts checkout attempts by payment method and outcome.
	CheckoutTotal *prometheus.CounterVec
	// CreditReservedAmount accumulates credit reserved by successful credit checkouts.
	CreditReservedAmount prometheus.Counter
	// FreeItemClaimTotal counts free-item claim outcomes.
	FreeItemClaimTotal *prometheus.CounterVec
	// DiscountSkippedTotal counts discounts skipped during evaluation because of bad configuration.
	DiscountSkippedTotal *prometheus.CounterVec
	// OrderTransitionTotal counts order status transitions by target status and outcome.
	OrderTransitionTotal *prometheus.CounterVec
	// RewardRecordsTotal counts reward batch record outcomes.
	RewardRecordsTotal *prometheus.CounterVec
	// RewardBatchDuration records reward batch wall time in milliseconds.
	RewardBatchDuration prometheus.Histogram
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CheckoutTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Checkout attempts by payment method and result.",
		}, []string{"method", "result"}))
		CreditReservedAmount = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credit_reserved_amount_total",
			Help:      "Sum of credit reserved by credit checkouts.",
		}))
		FreeItemClaimTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "free_item_claim_total",
			Help:      "Free-item claim attempts by result.",
		}, []string{"result"}))
		DiscountSkippedTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_skipped_total",
			Help:      "Discounts skipped during evaluation because their configuration is invalid.",
		}, []string{"type"}))
		OrderTransitionTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transition_total",
			Help:      "Order status transitions by target and result.",
		}, []string{"to", "result"}))
		RewardRecordsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reward_records_total",
			Help:      "Reward records handled by the batch processor by outcome.",
		}, []string{"outcome"}))
		RewardBatchDuration = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reward_batch_duration_ms",
			Help:      "Reward batch processing wall time in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 5000, 15000, 60000},
		}))
	})
}

// IncCheckout records a checkout outcome when metrics are registered.
func IncCheckout(method, result string) {
	if CheckoutTotal != nil {
		CheckoutTotal.WithLabelValues(method, result).Inc()
	}
}

// AddCreditReserved records reserved credit when metrics are registered.
func AddCreditReserved(amount float64) {
	if CreditReservedAmount != nil && amount > 0 {
		CreditReservedAmount.Add(amount)
	}
}

// IncFreeItemClaim records a claim outcome when metrics are registered.
func IncFreeItemClaim(result string) {
	if FreeItemClaimTotal != nil {
		FreeItemClaimTotal.WithLabelValues(result).Inc()
	}
}

// IncDiscountSkipped records a skipped discount when metrics are registered.
func IncDiscountSkipped(discountType string) {
	if DiscountSkippedTotal != nil {
		DiscountSkippedTotal.WithLabelValues(discountType).Inc()
	}
}

// IncOrderTransition records an order status change attempt.
func IncOrderTransition(to, result string) {
	if OrderTransitionTotal != nil {
		OrderTransitionTotal.WithLabelValues(to, result).Inc()
	}
}

// IncRewardRecord records a reward batch outcome.
func IncRewardRecord(outcome string) {
	if RewardRecordsTotal != nil {
		RewardRecordsTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveRewardBatch records the duration of one reward batch run.
func ObserveRewardBatch(ms float64) {
	if RewardBatchDuration != nil {
		RewardBatchDuration.Observe(ms)
	}
}
