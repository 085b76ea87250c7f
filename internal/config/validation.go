package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	if err := c.validateSymbols(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.Exit.validate(); err != nil {
		return err
	}
	if c.Lifecycle.TickSeconds < 1 {
		return fmt.Errorf("lifecycle.tick_seconds must be >= 1")
	}
	if c.Market.TrendLookbackDays < 2 {
		return fmt.Errorf("market.trend_lookback_days must be >= 2")
	}
	return nil
}

func (c *Config) validateSymbols() error {
	seen := make(map[string]bool, len(c.Symbols))
	for i, s := range c.Symbols {
		sym := strings.ToUpper(strings.TrimSpace(s))
		if sym == "" {
			return fmt.Errorf("symbols[%d] is empty", i)
		}
		if seen[sym] {
			return fmt.Errorf("symbols contains duplicate %s", sym)
		}
		seen[sym] = true
		c.Symbols[i] = sym
	}
	return nil
}

func (r RiskConfig) validate() error {
	if r.MinPositionUSD > r.MaxPositionUSD {
		return fmt.Errorf("risk.min_position_usd (%.2f) exceeds risk.max_position_usd (%.2f)",
			r.MinPositionUSD, r.MaxPositionUSD)
	}
	if r.MaxRiskPerTrade <= 0 || r.MaxRiskPerTrade > 1 {
		return fmt.Errorf("risk.max_risk_per_trade must be in (0, 1]")
	}
	if r.MaxAccountRisk <= 0 || r.MaxAccountRisk > 1 {
		return fmt.Errorf("risk.max_account_risk must be in (0, 1]")
	}
	if r.MaxRiskPerTrade > r.MaxAccountRisk {
		return fmt.Errorf("risk.max_risk_per_trade cannot exceed risk.max_account_risk")
	}
	if r.StopLossFraction <= 0 || r.StopLossFraction >= 1 {
		return fmt.Errorf("risk.stop_loss_fraction must be in (0, 1)")
	}
	return nil
}

func (e ExitConfig) validate() error {
	if e.ProfitTargetPct <= 0 || e.ProfitTargetPct >= 1 {
		return fmt.Errorf("exit.profit_target_pct must be in (0, 1)")
	}
	if e.StopLossPct <= 0 || e.StopLossPct >= 1 {
		return fmt.Errorf("exit.stop_loss_pct must be in (0, 1)")
	}
	return nil
}
