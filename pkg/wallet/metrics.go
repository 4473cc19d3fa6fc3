package wallet

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var balanceGauge = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "fletcher_wallet_balance",
		Help: "Last fetched venue balance in natural units",
	},
	[]string{"platform", "currency"},
)
