package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// RetryStrategy names one of the backoff shapes a RetryConfig can select.
type RetryStrategy string

const (
	RetryExponential RetryStrategy = "exponential"
	RetryLinear      RetryStrategy = "linear"
	RetryConstant    RetryStrategy = "constant"
	RetryFibonacci   RetryStrategy = "fibonacci"
)

// RerankMode names the LLM re-ranking scoring mode for retrieval.
type RerankMode string

const (
	RerankOff             RerankMode = "off"
	RerankRelevance       RerankMode = "relevance"
	RerankInformativeness RerankMode = "informativeness"
	RerankCombined        RerankMode = "combined"
)

// RetryConfig holds the parameters of whichever backoff strategy is chosen.
type RetryConfig struct {
	Strategy    RetryStrategy `json:"strategy" validate:"required,oneof=exponential linear constant fibonacci"`
	BaseDelayMs int           `json:"base_delay_ms" validate:"gt=0"`
	Factor      float64       `json:"factor" validate:"gte=1"`
	MaxDelayMs  int           `json:"max_delay_ms" validate:"gt=0"`
	Jitter      float64       `json:"jitter" validate:"gte=0,lte=1"`
}

// QualityConfig holds the global QualityGate thresholds; individual steps
// may override via their own quality_policy.
type QualityConfig struct {
	Min        float64 `json:"min" validate:"gte=0,lte=1"`
	Target     float64 `json:"target" validate:"gte=0,lte=1"`
	ReviewBand float64 `json:"review_band" validate:"gte=0,lte=1"`
}

// RetrievalConfig controls Retriever sizing and optional features.
type RetrievalConfig struct {
	TopK       int        `json:"top_k" validate:"gt=0"`
	RRFK       int        `json:"rrf_k" validate:"gt=0"`
	Expand     bool       `json:"expand"`
	RerankMode RerankMode `json:"rerank_mode" validate:"oneof=off relevance informativeness combined"`
}

// AggregationConfig weights the Aggregator's confidence computation: a
// weighted combination of median approved-step quality and mean
// relevance of the top-k retrieval results of completed steps (whether or
// not a result is cited).
type AggregationConfig struct {
	QualityWeight   float64 `json:"quality_weight" validate:"gte=0,lte=1"`
	RelevanceWeight float64 `json:"relevance_weight" validate:"gte=0,lte=1"`
	TopKCitations   int     `json:"top_k_citations" validate:"gt=0"`
}

// Config is the orchestration core's root configuration, populated from
// defaults, then environment variables, then functional overrides — the
// same three-layer priority used throughout the pack.
type Config struct {
	MaxConcurrency   int           `json:"max_concurrency" env:"VERITAS_MAX_CONCURRENCY" validate:"gt=0"`
	PerStepTimeoutMs int           `json:"per_step_timeout_ms" env:"VERITAS_PER_STEP_TIMEOUT_MS" validate:"gt=0"`
	PerPlanTimeoutMs int           `json:"per_plan_timeout_ms" env:"VERITAS_PER_PLAN_TIMEOUT_MS" validate:"gt=0"`
	CancelGraceMs    int           `json:"cancel_grace_ms" env:"VERITAS_CANCEL_GRACE_MS" validate:"gt=0"`
	Retry            RetryConfig   `json:"retry"`
	Quality          QualityConfig `json:"quality"`
	Retrieval        RetrievalConfig `json:"retrieval"`
	Aggregation      AggregationConfig `json:"aggregation"`
	StreamBufferSize int           `json:"stream_buffer_size" env:"VERITAS_STREAM_BUFFER_SIZE" validate:"gt=0"`
	HypothesisEnable bool          `json:"hypothesis_enable" env:"VERITAS_HYPOTHESIS_ENABLE"`

	logger Logger `json:"-" validate:"-"`
}

// DefaultConfig returns the spec-mandated defaults, then applies any
// recognized environment variable overrides.
func DefaultConfig() *Config {
	cfg := &Config{
		MaxConcurrency:   4,
		PerStepTimeoutMs: 60000,
		PerPlanTimeoutMs: 300000,
		CancelGraceMs:    5000,
		Retry: RetryConfig{
			Strategy:    RetryExponential,
			BaseDelayMs: 100,
			Factor:      2.0,
			MaxDelayMs:  30000,
			Jitter:      0.1,
		},
		Quality: QualityConfig{
			Min:        0.5,
			Target:     0.8,
			ReviewBand: 0.1,
		},
		Retrieval: RetrievalConfig{
			TopK:       10,
			RRFK:       60,
			Expand:     false,
			RerankMode: RerankOff,
		},
		Aggregation: AggregationConfig{
			QualityWeight:   0.6,
			RelevanceWeight: 0.4,
			TopKCitations:   5,
		},
		StreamBufferSize: 1000,
		HypothesisEnable: true,
		logger:           &NoOpLogger{},
	}
	applyEnvOverrides(cfg)
	return cfg
}

// applyEnvOverrides mirrors the env-var-driven override pattern used across
// the pack's own DefaultConfig: look up a fixed set of recognized variable
// names and, when present, parse and apply them over the struct defaults.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VERITAS_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrency = n
		}
	}
	if v := os.Getenv("VERITAS_PER_STEP_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PerStepTimeoutMs = n
		}
	}
	if v := os.Getenv("VERITAS_PER_PLAN_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PerPlanTimeoutMs = n
		}
	}
	if v := os.Getenv("VERITAS_CANCEL_GRACE_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CancelGraceMs = n
		}
	}
	if v := os.Getenv("VERITAS_RETRY_STRATEGY"); v != "" {
		switch RetryStrategy(strings.ToLower(v)) {
		case RetryExponential, RetryLinear, RetryConstant, RetryFibonacci:
			cfg.Retry.Strategy = RetryStrategy(strings.ToLower(v))
		default:
			logInvalidEnv(cfg.logger, "VERITAS_RETRY_STRATEGY", v)
		}
	}
	if v := os.Getenv("VERITAS_RETRY_BASE_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Retry.BaseDelayMs = n
		}
	}
	if v := os.Getenv("VERITAS_RETRY_MAX_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Retry.MaxDelayMs = n
		}
	}
	if v := os.Getenv("VERITAS_RETRY_FACTOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 1 {
			cfg.Retry.Factor = f
		}
	}
	if v := os.Getenv("VERITAS_RETRY_JITTER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			cfg.Retry.Jitter = f
		}
	}
	if v := os.Getenv("VERITAS_QUALITY_MIN"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Quality.Min = f
		}
	}
	if v := os.Getenv("VERITAS_QUALITY_TARGET"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Quality.Target = f
		}
	}
	if v := os.Getenv("VERITAS_QUALITY_REVIEW_BAND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Quality.ReviewBand = f
		}
	}
	if v := os.Getenv("VERITAS_RETRIEVAL_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Retrieval.TopK = n
		}
	}
	if v := os.Getenv("VERITAS_RETRIEVAL_RRF_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Retrieval.RRFK = n
		}
	}
	if v := os.Getenv("VERITAS_RETRIEVAL_EXPAND"); v != "" {
		cfg.Retrieval.Expand = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("VERITAS_RETRIEVAL_RERANK_MODE"); v != "" {
		switch RerankMode(strings.ToLower(v)) {
		case RerankOff, RerankRelevance, RerankInformativeness, RerankCombined:
			cfg.Retrieval.RerankMode = RerankMode(strings.ToLower(v))
		default:
			logInvalidEnv(cfg.logger, "VERITAS_RETRIEVAL_RERANK_MODE", v)
		}
	}
	if v := os.Getenv("VERITAS_AGGREGATION_QUALITY_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			cfg.Aggregation.QualityWeight = f
		}
	}
	if v := os.Getenv("VERITAS_AGGREGATION_RELEVANCE_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			cfg.Aggregation.RelevanceWeight = f
		}
	}
	if v := os.Getenv("VERITAS_AGGREGATION_TOP_K_CITATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Aggregation.TopKCitations = n
		}
	}
	if v := os.Getenv("VERITAS_STREAM_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StreamBufferSize = n
		}
	}
	if v := os.Getenv("VERITAS_HYPOTHESIS_ENABLE"); v != "" {
		cfg.HypothesisEnable = strings.EqualFold(v, "true") || v == "1"
	}
}

func logInvalidEnv(logger Logger, name, value string) {
	if logger == nil {
		return
	}
	logger.Warn("ignoring invalid environment override", map[string]interface{}{
		"variable": name,
		"value":    value,
	})
}

// Validate runs struct-tag validation (go-playground/validator) over the
// config. Called once at startup by cmd/veritas-server and cmd/veritas-cli.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return NewCoreError("core.Config.Validate", KindInvalidQuery, fmt.Errorf("%w: %v", ErrInvalidState, err))
	}
	return nil
}

func (c *Config) PerStepTimeout() time.Duration {
	return time.Duration(c.PerStepTimeoutMs) * time.Millisecond
}

func (c *Config) PerPlanTimeout() time.Duration {
	return time.Duration(c.PerPlanTimeoutMs) * time.Millisecond
}

func (c *Config) CancelGrace() time.Duration {
	return time.Duration(c.CancelGraceMs) * time.Millisecond
}

// WithLogger attaches a logger to the config. Environment overrides are
// applied inside DefaultConfig, before a logger can be attached, so their
// diagnostics go to the no-op logger, not this one.
func (c *Config) WithLogger(logger Logger) *Config {
	c.logger = logger
	return c
}
