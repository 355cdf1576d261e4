package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		ledgerCoinsTotal,
		walletNegativeBalanceTotal,
		walletLedgerMismatch,
	)
}

var (
	ledgerCoinsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_coins_total",
			Help:      "Absolute coins moved through ledger entries, by source and direction.",
		},
		[]string{"source", "direction"}, // direction: credit|debit
	)

	walletNegativeBalanceTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallet_negative_balance_total",
			Help:      "Reconciliations that left a wallet below zero.",
		},
	)

	walletLedgerMismatch = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "wallet_ledger_mismatch",
			Help:      "Wallets whose balance differs from the sum of their ledger, as of the last audit.",
		},
	)
)

func AddLedgerCoins(source string, coins int64) {
	direction := "credit"
	if coins < 0 {
		direction = "debit"
		coins = -coins
	}
	ledgerCoinsTotal.WithLabelValues(norm(source), direction).Add(float64(coins))
}

func IncWalletNegative() { walletNegativeBalanceTotal.Inc() }

func SetWalletMismatch(n int) { walletLedgerMismatch.Set(float64(n)) }
