package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "matchbook"

// Collector exports engine counters to prometheus. Values are read from the
// engine on every scrape.
type Collector struct {
	source StatsSource

	symbols   *prometheus.Desc
	orders    *prometheus.Desc
	trades    *prometheus.Desc
	tradedQty *prometheus.Desc
	resting   *prometheus.Desc
	ticks     *prometheus.Desc
}

func NewCollector(source StatsSource) *Collector {
	return &Collector{
		source: source,
		symbols: prometheus.NewDesc(namespace+"_symbols",
			"Number of tradable symbols.", nil, nil),
		orders: prometheus.NewDesc(namespace+"_orders_total",
			"Orders processed, by outcome.", []string{"outcome"}, nil),
		trades: prometheus.NewDesc(namespace+"_trades_total",
			"Trades executed.", nil, nil),
		tradedQty: prometheus.NewDesc(namespace+"_traded_quantity_total",
			"Quantity traded.", nil, nil),
		resting: prometheus.NewDesc(namespace+"_resting_orders",
			"Orders resting in all books.", nil, nil),
		ticks: prometheus.NewDesc(namespace+"_ticker_updates_total",
			"Reference prices applied to the ticker.", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.symbols
	ch <- c.orders
	ch <- c.trades
	ch <- c.tradedQty
	ch <- c.resting
	ch <- c.ticks
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.Stats()
	ch <- prometheus.MustNewConstMetric(c.symbols, prometheus.GaugeValue, float64(stats.Symbols))
	ch <- prometheus.MustNewConstMetric(c.orders, prometheus.CounterValue, float64(stats.OrdersAccepted), "accepted")
	ch <- prometheus.MustNewConstMetric(c.orders, prometheus.CounterValue, float64(stats.OrdersRejected), "rejected")
	ch <- prometheus.MustNewConstMetric(c.orders, prometheus.CounterValue, float64(stats.OrdersCancelled), "cancelled")
	ch <- prometheus.MustNewConstMetric(c.trades, prometheus.CounterValue, float64(stats.Trades))
	ch <- prometheus.MustNewConstMetric(c.tradedQty, prometheus.CounterValue, float64(stats.TradedQuantity))
	ch <- prometheus.MustNewConstMetric(c.resting, prometheus.GaugeValue, float64(stats.RestingOrders))
	ch <- prometheus.MustNewConstMetric(c.ticks, prometheus.CounterValue, float64(stats.TickerUpdates))
}
