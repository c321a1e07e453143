// Package app assembles the per-account collaborators (broker client,
// catalog, market data, balancing config) built in cmd/server/main.go into
// a single handlers.AccountSource the read-only HTTP surface queries for a
// live snapshot without ever submitting an order. The per-account
// scheduler.AccountJob values are built in cmd/server/main.go, not here.
package app

import (
	"github.com/vvolkov/rebalancer/internal/domain"
	"github.com/vvolkov/rebalancer/internal/modules/allocation"
	"github.com/vvolkov/rebalancer/internal/modules/portfolio"
	"github.com/vvolkov/rebalancer/internal/scheduler"
)

// Account bundles one configured account's collaborators.
type Account struct {
	ID         string
	Exchange   string
	Broker     domain.BrokerClient
	Catalog    func() domain.Catalog
	MarketData scheduler.MarketDataSource
	Cfg        domain.BalancingConfig
}

// Registry is a read-only directory of configured accounts. It implements
// handlers.AccountSource.
type Registry struct {
	accounts map[string]Account
}

// NewRegistry builds a Registry from the accounts configured at startup.
func NewRegistry(accounts []Account) *Registry {
	m := make(map[string]Account, len(accounts))
	for _, a := range accounts {
		m[a.ID] = a
	}
	return &Registry{accounts: m}
}

// Snapshot implements handlers.AccountSource: it fetches the account's
// current wallet and prices from the broker and pairs them with its
// static configuration, catalog and market-data collaborators. It never
// places an order.
func (r *Registry) Snapshot(accountID string) (domain.BalancingConfig, domain.Wallet, domain.Catalog, portfolio.PriceSource, allocation.MarketData, bool) {
	acc, ok := r.accounts[accountID]
	if !ok {
		return domain.BalancingConfig{}, domain.Wallet{}, nil, nil, allocation.MarketData{}, false
	}

	wallet, err := scheduler.FetchWallet(acc.Broker, acc.ID)
	if err != nil {
		return domain.BalancingConfig{}, domain.Wallet{}, nil, nil, allocation.MarketData{}, false
	}

	tickers := tickersOf(wallet, acc.Cfg.DesiredWallet)
	prices, err := scheduler.FetchPrices(acc.Broker, tickers)
	if err != nil {
		return domain.BalancingConfig{}, domain.Wallet{}, nil, nil, allocation.MarketData{}, false
	}

	var md allocation.MarketData
	if acc.MarketData != nil {
		md = acc.MarketData.Fetch(tickers)
	}

	return acc.Cfg, wallet, acc.Catalog(), prices, md, true
}

func tickersOf(wallet domain.Wallet, desired domain.DesiredWallet) []string {
	seen := map[string]bool{}
	var out []string
	add := func(t string) {
		if t == "" || seen[t] {
			return
		}
		seen[t] = true
		out = append(out, t)
	}
	for _, p := range wallet.Positions {
		add(p.Base)
	}
	for t := range desired {
		add(t)
	}
	return out
}
