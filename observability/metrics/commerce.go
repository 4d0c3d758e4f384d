package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// CommerceMetrics aggregates the gauges and counters the daemon exposes for
// the sale pipeline and the two pools.
type CommerceMetrics struct {
	salesTotal          *prometheus.CounterVec
	paymentVolume       *prometheus.CounterVec
	currentPrice        *prometheus.GaugeVec
	farmingInvested     prometheus.Gauge
	rewardOutstanding   prometheus.Gauge
	cashbackPoolPoints  *prometheus.GaugeVec
	cashbackRedemptions prometheus.Counter
}

var (
	commerceOnce     sync.Once
	commerceRegistry *CommerceMetrics
)

func Commerce() *CommerceMetrics {
	commerceOnce.Do(func() {
		commerceRegistry = &CommerceMetrics{
			salesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "commerce_sales_total",
				Help: "Completed product sales by alias.",
			}, []string{"alias"}),
			paymentVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "commerce_payment_volume",
				Help: "Collected payment volume by asset, in native units.",
			}, []string{"asset"}),
			currentPrice: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "commerce_product_price",
				Help: "Current product price in settlement-asset units.",
			}, []string{"alias"}),
			farmingInvested: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "commerce_farming_invested",
				Help: "Total principal held by the farming pool, normalized.",
			}),
			rewardOutstanding: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "commerce_farming_reward_outstanding",
				Help: "Rewards owed but not yet claimed, in reward-asset units.",
			}),
			cashbackPoolPoints: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "commerce_cashback_pool_points",
				Help: "Shared cashback pool size by product alias.",
			}, []string{"alias"}),
			cashbackRedemptions: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "commerce_cashback_redemptions_total",
				Help: "Count of cashback redemptions applied as discounts.",
			}),
		}
		prometheus.MustRegister(
			commerceRegistry.salesTotal,
			commerceRegistry.paymentVolume,
			commerceRegistry.currentPrice,
			commerceRegistry.farmingInvested,
			commerceRegistry.rewardOutstanding,
			commerceRegistry.cashbackPoolPoints,
			commerceRegistry.cashbackRedemptions,
		)
	})
	return commerceRegistry
}

func (m *CommerceMetrics) ObserveSale(alias string, volume float64, asset string) {
	if m == nil {
		return
	}
	if alias == "" {
		alias = "unknown"
	}
	m.salesTotal.WithLabelValues(alias).Inc()
	if asset != "" {
		m.paymentVolume.WithLabelValues(asset).Add(volume)
	}
}

func (m *CommerceMetrics) SetProductPrice(alias string, price float64) {
	if m == nil || alias == "" {
		return
	}
	m.currentPrice.WithLabelValues(alias).Set(price)
}

func (m *CommerceMetrics) SetFarmingInvested(amount float64) {
	if m == nil {
		return
	}
	m.farmingInvested.Set(amount)
}

func (m *CommerceMetrics) SetRewardOutstanding(amount float64) {
	if m == nil {
		return
	}
	m.rewardOutstanding.Set(amount)
}

func (m *CommerceMetrics) SetCashbackPool(alias string, points float64) {
	if m == nil || alias == "" {
		return
	}
	m.cashbackPoolPoints.WithLabelValues(alias).Set(points)
}

func (m *CommerceMetrics) ObserveRedemption() {
	if m == nil {
		return
	}
	m.cashbackRedemptions.Inc()
}
