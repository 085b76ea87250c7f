package config

import "time"

// Config is the top-level configuration for the engine.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Symbols   []string        `mapstructure:"symbols"`
	Market    MarketConfig    `mapstructure:"market"`
	Feeds     FeedsConfig     `mapstructure:"feeds"`
	Signal    SignalConfig    `mapstructure:"signal"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Exit      ExitConfig      `mapstructure:"exit"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Store     StoreConfig     `mapstructure:"store"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
	LogPath  string `mapstructure:"log_path"`
	HTTPAddr string `mapstructure:"http_addr"`
}

// MarketConfig controls benchmark classification.
type MarketConfig struct {
	BenchmarkSymbol     string  `mapstructure:"benchmark_symbol"`
	TrendLookbackDays   int     `mapstructure:"trend_lookback_days"`
	VolLookbackDays     int     `mapstructure:"vol_lookback_days"`
	ContextTTLMinutes   int     `mapstructure:"context_ttl_minutes"`
	StressVolatilityPct float64 `mapstructure:"stress_volatility_pct"`
}

func (m MarketConfig) ContextTTL() time.Duration {
	return time.Duration(m.ContextTTLMinutes) * time.Minute
}

// FeedsConfig describes the collaborator endpoints.
type FeedsConfig struct {
	PredictionURL          string `mapstructure:"prediction_url"`
	TimeoutSeconds         int    `mapstructure:"timeout_seconds"`
	BreakerThreshold       int    `mapstructure:"breaker_threshold"`
	BreakerCooldownSeconds int    `mapstructure:"breaker_cooldown_seconds"`
}

func (f FeedsConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

func (f FeedsConfig) BreakerCooldown() time.Duration {
	return time.Duration(f.BreakerCooldownSeconds) * time.Second
}

// SignalConfig points at the hot-reloadable tuning file carrying the
// empirically-tuned weights and floors.
type SignalConfig struct {
	TuningPath string `mapstructure:"tuning_path"`
}

// RiskConfig bounds position admission. MinPositionUSD is deliberately large
// enough that a fixed per-trade cost stays a small fraction of a 1% profit
// target.
type RiskConfig struct {
	MinPositionUSD   float64 `mapstructure:"min_position_usd"`
	MaxPositionUSD   float64 `mapstructure:"max_position_usd"`
	MaxRiskPerTrade  float64 `mapstructure:"max_risk_per_trade"`
	MaxAccountRisk   float64 `mapstructure:"max_account_risk"`
	StopLossFraction float64 `mapstructure:"stop_loss_fraction"`
}

// ExitConfig applies deployment-wide, not per position, so the rule set is
// auditable across the whole book.
type ExitConfig struct {
	ProfitTargetPct float64 `mapstructure:"profit_target_pct"`
	StopLossPct     float64 `mapstructure:"stop_loss_pct"`
	MaxHoldMinutes  int     `mapstructure:"max_hold_minutes"`
}

func (e ExitConfig) MaxHold() time.Duration {
	return time.Duration(e.MaxHoldMinutes) * time.Minute
}

type LifecycleConfig struct {
	TickSeconds    int     `mapstructure:"tick_seconds"`
	InitialCashUSD float64 `mapstructure:"initial_cash_usd"`
}

func (l LifecycleConfig) TickInterval() time.Duration {
	return time.Duration(l.TickSeconds) * time.Second
}

type StoreConfig struct {
	DBPath       string `mapstructure:"db_path"`
	EventLogPath string `mapstructure:"event_log_path"`
}
