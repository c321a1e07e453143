package allocation

import (
	"math"

	"github.com/vvolkov/rebalancer/internal/domain"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MarketData carries the auxiliary, per-tick market-data maps the
// non-manual desired modes consume. All values are already expressed in
// the account's base currency (RUB).
type MarketData struct {
	MarketCap map[string]float64 // RUB
	AUM       map[string]float64 // RUB, already FX-converted
	Shares    map[string]int64
}

// Resolve converts a BalancingConfig's desired_mode into a normalized
// DesiredWallet, per the mode semantics of the desired-mode resolver.
func Resolve(cfg domain.BalancingConfig, wallet domain.Wallet, md MarketData) domain.DesiredWallet {
	universe := universeTickers(cfg.DesiredWallet, wallet)

	switch cfg.DesiredMode {
	case domain.ModeDefault:
		return NormalizePercent(fillDefaults(cfg.DesiredWallet, universe))
	case domain.ModeMarketCap:
		return NormalizePercent(weightBy(universe, md.MarketCap))
	case domain.ModeAUM:
		return NormalizePercent(weightBy(universe, md.AUM))
	case domain.ModeDecorrelation:
		return NormalizePercent(decorrelationWeights(universe, md))
	case domain.ModeMarketCapAUM:
		return NormalizePercent(averageWeights(
			weightBy(universe, md.MarketCap),
			weightBy(universe, md.AUM),
		))
	case domain.ModeAUMDecorrelation:
		return NormalizePercent(averageWeights(
			weightBy(universe, md.AUM),
			decorrelationWeights(universe, md),
		))
	case domain.ModeDecorrelationMarketCap:
		return NormalizePercent(decorrelationThenMarketCap(universe, md))
	case domain.ModeManual:
		fallthrough
	default:
		return NormalizePercent(cfg.DesiredWallet)
	}
}

// universeTickers is the set of tickers a mode resolves weights over: every
// ticker named in the configured desired wallet, plus every non-cash
// position currently held (so a held instrument is never silently dropped
// from "default" mode just because it lacks a configured weight).
func universeTickers(desired domain.DesiredWallet, wallet domain.Wallet) []string {
	seen := make(map[string]bool, len(desired)+len(wallet.Positions))
	var out []string
	add := func(t string) {
		if t == "" || seen[t] {
			return
		}
		seen[t] = true
		out = append(out, t)
	}
	for t := range desired {
		add(t)
	}
	for _, p := range wallet.Positions {
		if !p.IsCash() {
			add(p.Base)
		}
	}
	return out
}

// fillDefaults fills in an equal share of the unconfigured remainder for
// every universe ticker missing from weights.
func fillDefaults(weights domain.DesiredWallet, universe []string) domain.DesiredWallet {
	configuredSum := 0.0
	missing := 0
	for _, t := range universe {
		if w, ok := weights[t]; ok {
			configuredSum += w
		} else {
			missing++
		}
	}

	out := make(domain.DesiredWallet, len(universe))
	for t, w := range weights {
		out[t] = w
	}
	if missing == 0 {
		return out
	}
	remainder := math.Max(0, 100-configuredSum)
	share := remainder / float64(missing)
	for _, t := range universe {
		if _, ok := weights[t]; !ok {
			out[t] = share
		}
	}
	return out
}

// weightBy builds an unnormalized weight map proportional to source[ticker]
// for every universe ticker; tickers with a missing or non-positive source
// value are dropped entirely (not zeroed), matching the marketcap/aum mode
// semantics of dropping unpriced tickers from the universe.
func weightBy(universe []string, source map[string]float64) domain.DesiredWallet {
	out := make(domain.DesiredWallet)
	for _, t := range universe {
		v, ok := source[t]
		if !ok || !(v > 0) {
			continue
		}
		out[t] = v
	}
	return out
}

// decorrelationWeights weights by marketCap-aum where positive; falls back
// to equal weighting over the full universe when no ticker is positive.
func decorrelationWeights(universe []string, md MarketData) domain.DesiredWallet {
	out := make(domain.DesiredWallet)
	any := false
	for _, t := range universe {
		cap, capOK := md.MarketCap[t]
		aum, aumOK := md.AUM[t]
		if !capOK || !aumOK {
			continue
		}
		d := cap - aum
		if d > 0 {
			out[t] = d
			any = true
		}
	}
	if !any {
		return equalWeights(universe)
	}
	return out
}

// decorrelationThenMarketCap filters the universe to tickers flagged
// positive by decorrelation, then re-weights that subset by market cap.
func decorrelationThenMarketCap(universe []string, md MarketData) domain.DesiredWallet {
	var subset []string
	for _, t := range universe {
		cap, capOK := md.MarketCap[t]
		aum, aumOK := md.AUM[t]
		if capOK && aumOK && cap-aum > 0 {
			subset = append(subset, t)
		}
	}
	if len(subset) == 0 {
		return equalWeights(universe)
	}
	return weightBy(subset, md.MarketCap)
}

func equalWeights(universe []string) domain.DesiredWallet {
	out := make(domain.DesiredWallet, len(universe))
	for _, t := range universe {
		out[t] = 1
	}
	return out
}

// averageWeights normalizes two weight maps with NormalizePercent (each
// then sums to 100, or is empty) and takes their arithmetic mean over the
// union of their keys, treating a missing key in either map as 0.
func averageWeights(a, b domain.DesiredWallet) domain.DesiredWallet {
	aNorm := NormalizePercent(a)
	bNorm := NormalizePercent(b)
	seen := make(map[string]bool, len(aNorm)+len(bNorm))
	out := make(domain.DesiredWallet)
	for t := range aNorm {
		seen[t] = true
	}
	for t := range bNorm {
		seen[t] = true
	}
	for t := range seen {
		out[t] = stat.Mean([]float64{aNorm[t], bNorm[t]}, nil)
	}
	return out
}

// NormalizePercent renormalizes a weight map so its finite, non-negative
// values sum to 100. Non-finite inputs (NaN, +-Inf) are replaced by 0
// before summing. If the sum is non-positive, the zero map is returned
// (every key present, value 0) so the caller can treat it as "do nothing".
func NormalizePercent(weights domain.DesiredWallet) domain.DesiredWallet {
	cleaned := make(map[string]float64, len(weights))
	values := make([]float64, 0, len(weights))
	for t, w := range weights {
		if !isFinite(w) || w < 0 {
			w = 0
		}
		cleaned[t] = w
		values = append(values, w)
	}

	sum := floats.Sum(values)
	out := make(domain.DesiredWallet, len(cleaned))
	if sum <= 0 {
		for t := range cleaned {
			out[t] = 0
		}
		return out
	}
	for t, w := range cleaned {
		out[t] = w / sum * 100
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
