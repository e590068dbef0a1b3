// Package config provides configuration management for the SkyWatch threat
// assessment service. Every empirical calibration constant used by the
// scoring engines is surfaced here with behavior-parity defaults, so tuning
// does not require a rebuild.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/skywatch/backend/pkg/common"
)

const envPrefix = "SKYWATCH"

// Config is the root configuration for the service.
type Config struct {
	Log    common.LogConfig `mapstructure:"log"`
	Server ServerConfig     `mapstructure:"server"`
	Redis  RedisConfig      `mapstructure:"redis"`
	Kafka  KafkaConfig      `mapstructure:"kafka"`
	AI     AIConfig         `mapstructure:"ai"`

	Orchestrator OrchestratorConfig     `mapstructure:"orchestrator"`
	Analyzer     AnalyzerCalibration    `mapstructure:"analyzer"`
	Priority     PriorityCalibration    `mapstructure:"priority"`
	Risk         RiskCalibration        `mapstructure:"risk"`
	Correlation  CorrelationCalibration `mapstructure:"correlation"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr        string `mapstructure:"addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// RedisConfig configures the optional session snapshot store. An empty Addr
// disables it; correctness never depends on its presence.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	SnapshotTTL  time.Duration `mapstructure:"snapshot_ttl"`
}

// Enabled reports whether a snapshot store should be constructed.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// KafkaConfig configures the optional egress of finalized session summaries.
// An empty BootstrapServers disables it.
type KafkaConfig struct {
	BootstrapServers string        `mapstructure:"bootstrap_servers"`
	Topic            string        `mapstructure:"topic"`
	DeliveryTimeout  time.Duration `mapstructure:"delivery_timeout"`
}

// Enabled reports whether a publisher should be constructed.
func (c KafkaConfig) Enabled() bool { return c.BootstrapServers != "" }

// AIConfig configures the generative-AI completion collaborator.
type AIConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// OrchestratorConfig bounds the pipeline.
type OrchestratorConfig struct {
	// MaxConcurrentAnalyses limits per-event fan-out.
	MaxConcurrentAnalyses int `mapstructure:"max_concurrent_analyses"`
	// GlobalTimeout bounds a full orchestration run; the analysis stage
	// receives half of it.
	GlobalTimeout time.Duration `mapstructure:"global_timeout"`
	// ResultMaxAge is the default cleanup threshold for completed sessions.
	ResultMaxAge time.Duration `mapstructure:"result_max_age"`
	// EnableAIEnhancement toggles the optional post-correlation AI pass.
	EnableAIEnhancement bool `mapstructure:"enable_ai_enhancement"`
}

// AnalyzerCalibration carries the threat analyzer's tuned constants.
type AnalyzerCalibration struct {
	// Timeout bounds the whole multi-estimator call.
	Timeout time.Duration `mapstructure:"timeout"`
	// HistoryWindow bounds the historical-pattern lookup.
	HistoryWindow time.Duration `mapstructure:"history_window"`
	// FallbackScore and FallbackConfidence replace a failed estimator's
	// contribution.
	FallbackScore      float64 `mapstructure:"fallback_score"`
	FallbackConfidence float64 `mapstructure:"fallback_confidence"`
}

// PriorityCalibration carries the priority engine's tuned constants.
type PriorityCalibration struct {
	WeightImpactProbability float64 `mapstructure:"weight_impact_probability"`
	WeightDamagePotential   float64 `mapstructure:"weight_damage_potential"`
	WeightTimeCriticality   float64 `mapstructure:"weight_time_criticality"`
	WeightDataReliability   float64 `mapstructure:"weight_data_reliability"`

	// AIMultiplierGate is the score at/above which the AI multiplier is
	// consulted; SimulationGate the score above which Monte Carlo runs.
	AIMultiplierGate float64 `mapstructure:"ai_multiplier_gate"`
	SimulationGate   float64 `mapstructure:"simulation_gate"`

	AIMultiplierMin float64 `mapstructure:"ai_multiplier_min"`
	AIMultiplierMax float64 `mapstructure:"ai_multiplier_max"`

	SimulationTrials    int     `mapstructure:"simulation_trials"`
	SimulationMaxAdjust float64 `mapstructure:"simulation_max_adjust"`

	UrgencyMultiplierCap float64 `mapstructure:"urgency_multiplier_cap"`

	QueueCapacity int `mapstructure:"queue_capacity"`
}

// RiskCalibration carries the risk calculator's tuned constants.
type RiskCalibration struct {
	TTL              time.Duration `mapstructure:"ttl"`
	HistoryWindow    time.Duration `mapstructure:"history_window"`
	ForecastStep     time.Duration `mapstructure:"forecast_step"`
	ForecastHorizon  time.Duration `mapstructure:"forecast_horizon"`
	IntervalMargin   float64       `mapstructure:"interval_margin"`
	AIAdjustMin      float64       `mapstructure:"ai_adjust_min"`
	AIAdjustMax      float64       `mapstructure:"ai_adjust_max"`
	RapidChangePct   float64       `mapstructure:"rapid_change_pct"`
	ModerateChangePct float64      `mapstructure:"moderate_change_pct"`
}

// CorrelationCalibration carries the correlation engine's tuned constants.
type CorrelationCalibration struct {
	SignificanceThreshold float64       `mapstructure:"significance_threshold"`
	SimilarityThreshold   float64       `mapstructure:"similarity_threshold"`
	HotspotRadiusKm       float64       `mapstructure:"hotspot_radius_km"`
	CascadeMaxGapHours    float64       `mapstructure:"cascade_max_gap_hours"`
	CascadeMinLength      int           `mapstructure:"cascade_min_length"`
	CompoundRiskThreshold float64       `mapstructure:"compound_risk_threshold"`
	CorrelationTTL        time.Duration `mapstructure:"correlation_ttl"`
}

// Load reads configuration from the given yaml file (optional) and
// SKYWATCH_* environment variables, layered over defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, common.WrapError(err, "failed to read config file", map[string]interface{}{
				"path": path,
			})
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, common.WrapError(err, "failed to unmarshal config", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks structural invariants the engines rely on.
func (c *Config) Validate() error {
	if c.Orchestrator.MaxConcurrentAnalyses <= 0 {
		return common.NewError(common.CodeValidation, "max_concurrent_analyses must be positive", nil)
	}
	if c.Orchestrator.GlobalTimeout <= 0 {
		return common.NewError(common.CodeValidation, "global_timeout must be positive", nil)
	}
	wsum := c.Priority.WeightImpactProbability + c.Priority.WeightDamagePotential +
		c.Priority.WeightTimeCriticality + c.Priority.WeightDataReliability
	if wsum < 0.999 || wsum > 1.001 {
		return common.NewError(common.CodeValidation, "priority weights must sum to 1", map[string]interface{}{
			"sum": wsum,
		})
	}
	if c.Priority.QueueCapacity <= 0 {
		return common.NewError(common.CodeValidation, "queue_capacity must be positive", nil)
	}
	if c.Priority.SimulationTrials <= 0 {
		return common.NewError(common.CodeValidation, "simulation_trials must be positive", nil)
	}
	if t := c.Correlation.SignificanceThreshold; t < 0 || t > 1 {
		return common.NewError(common.CodeValidation, "significance_threshold must be in [0,1]", nil)
	}
	if c.Risk.TTL <= 0 {
		return common.NewError(common.CodeValidation, "risk ttl must be positive", nil)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Logging.
	lc := common.DefaultLogConfig()
	v.SetDefault("log.level", lc.Level)
	v.SetDefault("log.environment", lc.Environment)
	v.SetDefault("log.output_path", lc.OutputPath)
	v.SetDefault("log.max_size_mb", lc.MaxSizeMB)
	v.SetDefault("log.max_backups", lc.MaxBackups)
	v.SetDefault("log.max_age_days", lc.MaxAgeDays)
	v.SetDefault("log.compress", lc.Compress)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.metrics_addr", ":9090")

	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("redis.snapshot_ttl", time.Hour)

	v.SetDefault("kafka.topic", "skywatch.assessments")
	v.SetDefault("kafka.delivery_timeout", 30*time.Second)

	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.temperature", 0.2)
	v.SetDefault("ai.max_tokens", 1024)
	v.SetDefault("ai.timeout", 20*time.Second)

	v.SetDefault("orchestrator.max_concurrent_analyses", 10)
	v.SetDefault("orchestrator.global_timeout", 300*time.Second)
	v.SetDefault("orchestrator.result_max_age", 24*time.Hour)
	v.SetDefault("orchestrator.enable_ai_enhancement", true)

	v.SetDefault("analyzer.timeout", 30*time.Second)
	v.SetDefault("analyzer.history_window", 7*24*time.Hour)
	v.SetDefault("analyzer.fallback_score", 0.5)
	v.SetDefault("analyzer.fallback_confidence", 0.2)

	v.SetDefault("priority.weight_impact_probability", 0.35)
	v.SetDefault("priority.weight_damage_potential", 0.25)
	v.SetDefault("priority.weight_time_criticality", 0.20)
	v.SetDefault("priority.weight_data_reliability", 0.20)
	v.SetDefault("priority.ai_multiplier_gate", 0.6)
	v.SetDefault("priority.simulation_gate", 0.7)
	v.SetDefault("priority.ai_multiplier_min", 0.8)
	v.SetDefault("priority.ai_multiplier_max", 1.2)
	v.SetDefault("priority.simulation_trials", 10000)
	v.SetDefault("priority.simulation_max_adjust", 0.2)
	v.SetDefault("priority.urgency_multiplier_cap", 1.5)
	v.SetDefault("priority.queue_capacity", 1000)

	v.SetDefault("risk.ttl", time.Hour)
	v.SetDefault("risk.history_window", 7*24*time.Hour)
	v.SetDefault("risk.forecast_step", 6*time.Hour)
	v.SetDefault("risk.forecast_horizon", 72*time.Hour)
	v.SetDefault("risk.interval_margin", 0.3)
	v.SetDefault("risk.ai_adjust_min", 0.8)
	v.SetDefault("risk.ai_adjust_max", 1.2)
	v.SetDefault("risk.rapid_change_pct", 20.0)
	v.SetDefault("risk.moderate_change_pct", 5.0)

	v.SetDefault("correlation.significance_threshold", 0.4)
	v.SetDefault("correlation.similarity_threshold", 0.4)
	v.SetDefault("correlation.hotspot_radius_km", 250.0)
	v.SetDefault("correlation.cascade_max_gap_hours", 72.0)
	v.SetDefault("correlation.cascade_min_length", 3)
	v.SetDefault("correlation.compound_risk_threshold", 0.7)
	v.SetDefault("correlation.correlation_ttl", 6*time.Hour)
}

// Defaults returns a Config populated purely from defaults, used by tests
// and by engines constructed without an explicit config file.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always unmarshal cleanly.
	_ = v.Unmarshal(&cfg)
	return &cfg
}
