// Package config loads CONFIG.json (the root {accounts: [...]} document)
// and environment-variable overrides for the rebalancer daemon.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/vvolkov/rebalancer/internal/domain"
)

// Config is the root of CONFIG.json plus the process-level settings that
// live outside it (log level, HTTP port, data directory).
type Config struct {
	Accounts []AccountConfig `json:"accounts"`

	LogLevel string `json:"-"`
	Port     int    `json:"-"`
	DataDir  string `json:"-"`
}

// AccountConfig is one entry of CONFIG.json's accounts array (spec.md §6).
type AccountConfig struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`

	// TInvestToken is either a literal credential or an "${ENV_VAR}"
	// token, already substituted by the time Load returns.
	TInvestToken string `json:"t_invest_token"`

	// AccountID is a literal broker account id, "INDEX:n" (select the
	// n-th account from the broker's account list), or a bare integer
	// (same index selection). Resolution against the broker's live
	// account list happens in ResolveAccountID, not here.
	AccountID string `json:"account_id"`

	DesiredWallet domain.DesiredWallet `json:"desired_wallet"`
	DesiredMode   domain.DesiredMode   `json:"desired_mode"`

	BalanceIntervalMS    int64 `json:"balance_interval"`
	SleepBetweenOrdersMS int64 `json:"sleep_between_orders"`

	MarginTrading                domain.MarginTradingConfig    `json:"margin_trading"`
	BuyRequiresTotalMarginalSell domain.BuyRequiresSellConfig  `json:"buy_requires_total_marginal_sell"`
	ExchangeClosureBehavior      ExchangeClosureBehaviorConfig `json:"exchange_closure_behavior"`

	MinBuyRebalancePercent float64 `json:"min_buy_rebalance_percent"`
}

// ExchangeClosureBehaviorConfig mirrors market_hours.ExchangeClosureBehavior
// in the JSON wire shape (a bare mode string).
type ExchangeClosureBehaviorConfig struct {
	Mode string `json:"mode"`
}

// ToBalancingConfig extracts the decision-core-relevant slice of this
// account's configuration (spec.md §3's BalancingConfig).
func (a AccountConfig) ToBalancingConfig() domain.BalancingConfig {
	return domain.BalancingConfig{
		DesiredMode:            a.DesiredMode,
		DesiredWallet:          a.DesiredWallet,
		MarginTrading:          a.MarginTrading,
		BuyRequiresSell:        a.BuyRequiresTotalMarginalSell,
		MinBuyRebalancePercent: a.MinBuyRebalancePercent,
	}
}

const (
	defaultConfigPath = "CONFIG.json"
	defaultPort       = 8080
	defaultLogLevel   = "info"
)

var envTokenPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads CONFIG.json and applies environment overrides. pathFlag, when
// non-empty, takes highest precedence (mirrors the teacher's CLI-flag
// takes-precedence-over-env-var convention); otherwise REBALANCER_CONFIG_PATH
// is consulted, then the default path in the current directory.
//
// A .env file in the working directory is loaded first (best-effort, via
// godotenv) so REBALANCER_* and any ${NAME} substitution targets can be
// supplied without exporting them in the shell.
func Load(pathFlag string) (*Config, error) {
	_ = godotenv.Load()

	path := resolveConfigPath(pathFlag)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	substituted := substituteEnvTokens(raw)

	var cfg Config
	if err := json.Unmarshal(substituted, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.LogLevel = envOr("REBALANCER_LOG_LEVEL", defaultLogLevel)
	cfg.Port = envOrInt("REBALANCER_PORT", defaultPort)
	cfg.DataDir = envOr("REBALANCER_DATA_DIR", ".")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate checks structural invariants CONFIG.json must satisfy before
// the scheduler starts a single account job. A failure here is
// ConfigInvalid (spec.md §7): fatal, non-zero exit.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Accounts))
	for _, acc := range c.Accounts {
		if acc.ID == "" {
			return fmt.Errorf("account missing id")
		}
		if seen[acc.ID] {
			return fmt.Errorf("duplicate account id %q", acc.ID)
		}
		seen[acc.ID] = true
		if acc.TInvestToken == "" {
			return fmt.Errorf("account %q missing t_invest_token", acc.ID)
		}
		if acc.BalanceIntervalMS <= 0 {
			return fmt.Errorf("account %q: balance_interval must be > 0", acc.ID)
		}
	}
	return nil
}

// ResolveAccountID turns an AccountConfig.AccountID of the literal,
// "INDEX:n", or bare-integer form into a concrete broker account id, given
// the broker's current list of accounts (order-significant).
//
// "INDEX:n" is unambiguous. A bare integer is ambiguous with a literal
// broker account number (both are all-digits): we resolve it as an index
// when it's in range for brokerAccounts, and otherwise fall back to
// treating it as a literal id. An all-digit literal id that is also an
// in-range index is therefore read as the index, not as the literal id.
func ResolveAccountID(raw string, brokerAccounts []string) (string, error) {
	if rest, ok := strings.CutPrefix(raw, "INDEX:"); ok {
		n, err := strconv.Atoi(rest)
		if err != nil {
			return "", fmt.Errorf("parse account_id %q: %w", raw, err)
		}
		if n < 0 || n >= len(brokerAccounts) {
			return "", fmt.Errorf("account_id index %d out of range (%d accounts)", n, len(brokerAccounts))
		}
		return brokerAccounts[n], nil
	}
	if n, err := strconv.Atoi(raw); err == nil && n >= 0 && n < len(brokerAccounts) {
		return brokerAccounts[n], nil
	}
	return raw, nil
}

// substituteEnvTokens replaces every literal "${NAME}" occurrence with
// os.Getenv("NAME"), left as an empty string if unset.
func substituteEnvTokens(raw []byte) []byte {
	return envTokenPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		name := envTokenPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

func resolveConfigPath(pathFlag string) string {
	if pathFlag != "" {
		return pathFlag
	}
	if v := os.Getenv("REBALANCER_CONFIG_PATH"); v != "" {
		return v
	}
	return defaultConfigPath
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func envOrInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
