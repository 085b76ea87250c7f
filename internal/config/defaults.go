package config

const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppHTTPAddr = ":9980"

	defaultBenchmarkSymbol     = "^GSPC"
	defaultTrendLookbackDays   = 5
	defaultVolLookbackDays     = 21
	defaultContextTTLMinutes   = 30
	defaultStressVolatilityPct = 40.0

	defaultFeedTimeoutSeconds  = 10
	defaultBreakerThreshold    = 3
	defaultBreakerCooldownSecs = 120

	defaultTuningPath = "configs/tuning.yaml"

	defaultMinPositionUSD   = 5000.0
	defaultMaxPositionUSD   = 15000.0
	defaultMaxRiskPerTrade  = 0.15
	defaultMaxAccountRisk   = 0.30
	defaultStopLossFraction = 0.02

	defaultProfitTargetPct = 0.03
	defaultStopLossPct     = 0.02
	defaultMaxHoldMinutes  = 24 * 60

	defaultTickSeconds    = 60
	defaultInitialCashUSD = 100000.0

	defaultDBPath       = "data/alphapilot.db"
	defaultEventLogPath = "data/events.db"
)

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = defaultAppEnv
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = defaultAppLogLevel
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = defaultAppHTTPAddr
	}
	if len(c.Symbols) == 0 {
		c.Symbols = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA"}
	}
	if c.Market.BenchmarkSymbol == "" {
		c.Market.BenchmarkSymbol = defaultBenchmarkSymbol
	}
	if c.Market.TrendLookbackDays <= 0 {
		c.Market.TrendLookbackDays = defaultTrendLookbackDays
	}
	if c.Market.VolLookbackDays <= 0 {
		c.Market.VolLookbackDays = defaultVolLookbackDays
	}
	if c.Market.ContextTTLMinutes <= 0 {
		c.Market.ContextTTLMinutes = defaultContextTTLMinutes
	}
	if c.Market.StressVolatilityPct <= 0 {
		c.Market.StressVolatilityPct = defaultStressVolatilityPct
	}
	if c.Feeds.TimeoutSeconds <= 0 {
		c.Feeds.TimeoutSeconds = defaultFeedTimeoutSeconds
	}
	if c.Feeds.BreakerThreshold <= 0 {
		c.Feeds.BreakerThreshold = defaultBreakerThreshold
	}
	if c.Feeds.BreakerCooldownSeconds <= 0 {
		c.Feeds.BreakerCooldownSeconds = defaultBreakerCooldownSecs
	}
	if c.Signal.TuningPath == "" {
		c.Signal.TuningPath = defaultTuningPath
	}
	if c.Risk.MinPositionUSD <= 0 {
		c.Risk.MinPositionUSD = defaultMinPositionUSD
	}
	if c.Risk.MaxPositionUSD <= 0 {
		c.Risk.MaxPositionUSD = defaultMaxPositionUSD
	}
	if c.Risk.MaxRiskPerTrade <= 0 {
		c.Risk.MaxRiskPerTrade = defaultMaxRiskPerTrade
	}
	if c.Risk.MaxAccountRisk <= 0 {
		c.Risk.MaxAccountRisk = defaultMaxAccountRisk
	}
	if c.Risk.StopLossFraction <= 0 {
		c.Risk.StopLossFraction = defaultStopLossFraction
	}
	if c.Exit.ProfitTargetPct <= 0 {
		c.Exit.ProfitTargetPct = defaultProfitTargetPct
	}
	if c.Exit.StopLossPct <= 0 {
		c.Exit.StopLossPct = defaultStopLossPct
	}
	if c.Exit.MaxHoldMinutes <= 0 {
		c.Exit.MaxHoldMinutes = defaultMaxHoldMinutes
	}
	if c.Lifecycle.TickSeconds <= 0 {
		c.Lifecycle.TickSeconds = defaultTickSeconds
	}
	if c.Lifecycle.InitialCashUSD <= 0 {
		c.Lifecycle.InitialCashUSD = defaultInitialCashUSD
	}
	if c.Store.DBPath == "" {
		c.Store.DBPath = defaultDBPath
	}
	if c.Store.EventLogPath == "" {
		c.Store.EventLogPath = defaultEventLogPath
	}
}
