package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/deepresearch/internal/orchestrator"
	"github.com/danielpatrickdp/deepresearch/internal/planner"
	"github.com/danielpatrickdp/deepresearch/internal/retrieval"
	"github.com/danielpatrickdp/deepresearch/internal/synthesis"
	"github.com/danielpatrickdp/deepresearch/internal/websearch"
)

// #region types

// Config is the full process configuration.
type Config struct {
	Research  Research  `yaml:"research"`
	Source    Source    `yaml:"source"`
	WebSearch WebSearch `yaml:"websearch"`
	GRPC      GRPC      `yaml:"grpc"`
	Store     Store     `yaml:"store"`
	Log       Log       `yaml:"log"`
	HTTP      HTTP      `yaml:"http"`
}

// Research is the run policy.
type Research struct {
	MaxSubQueries         int           `yaml:"maxSubQueries"`
	MaxAttempts           int           `yaml:"maxAttempts"`
	BackoffBase           time.Duration `yaml:"backoffBase"`
	MaxBackoff            time.Duration `yaml:"maxBackoff"`
	AttemptTimeout        time.Duration `yaml:"attemptTimeout"`
	OverallTimeout        time.Duration `yaml:"overallTimeout"`
	MinSuccessfulEvidence int           `yaml:"minSuccessfulEvidence"` // 0 = majority
	MaxConcurrency        int           `yaml:"maxConcurrency"`
	MaxTopicLength        int           `yaml:"maxTopicLength"`
	MaxSubQueryLength     int           `yaml:"maxSubQueryLength"`
	SummarySentences      int           `yaml:"summarySentences"`
}

// Source selects the EvidenceSource backend.
type Source struct {
	Kind string `yaml:"kind"` // websearch | grpc | corpus
}

// WebSearch configures the websearch source.
type WebSearch struct {
	Provider   string        `yaml:"provider"`
	APIKey     string        `yaml:"apiKey"`
	Endpoint   string        `yaml:"endpoint"`
	Depth      string        `yaml:"depth"`
	MaxResults int           `yaml:"maxResults"`
	Timeout    time.Duration `yaml:"timeout"`
	QPS        float64       `yaml:"qps"`
}

// GRPC configures the remote evidence backend and the corpus server.
type GRPC struct {
	Addr   string `yaml:"addr"`
	Listen string `yaml:"listen"`
}

// Store configures the SQLite database.
type Store struct {
	Path string `yaml:"path"`
}

// Log configures slog.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// HTTP configures the API server.
type HTTP struct {
	Addr string `yaml:"addr"`
}

// #endregion types

// #region defaults

// Default returns the built-in configuration. Web search defaults come from
// websearch.DefaultConfig and so already honour WEB_SEARCH_* variables.
func Default() Config {
	oc := orchestrator.DefaultConfig()
	ws := websearch.DefaultConfig()
	return Config{
		Research: Research{
			MaxSubQueries:     oc.Planner.MaxSubQueries,
			MaxAttempts:       oc.Retrieval.MaxAttempts,
			BackoffBase:       oc.Retrieval.BackoffBase,
			MaxBackoff:        oc.Retrieval.MaxBackoff,
			AttemptTimeout:    oc.Retrieval.AttemptTimeout,
			OverallTimeout:    oc.OverallTimeout,
			MaxConcurrency:    oc.MaxConcurrency,
			MaxTopicLength:    oc.Planner.MaxTopicLength,
			MaxSubQueryLength: oc.Planner.MaxSubQueryLength,
			SummarySentences:  oc.Synthesis.SummarySentences,
		},
		Source: Source{Kind: "websearch"},
		WebSearch: WebSearch{
			Provider:   ws.Provider,
			APIKey:     ws.APIKey,
			Endpoint:   ws.Endpoint,
			Depth:      ws.Depth,
			MaxResults: ws.MaxResults,
			Timeout:    ws.Timeout,
			QPS:        ws.QPS,
		},
		GRPC:  GRPC{Addr: "localhost:50051", Listen: ":50051"},
		Store: Store{Path: "deepresearch.db"},
		Log:   Log{Level: "info", Format: "text"},
		HTTP:  HTTP{Addr: ":8000"},
	}
}

// #endregion defaults

// #region load

// Load builds a Config from defaults, then the YAML file at path (if any),
// then DEEPRESEARCH_* environment variables, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := parse(data, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}

// applyEnv overrides fields from DEEPRESEARCH_* variables.
func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"DEEPRESEARCH_SOURCE":      &cfg.Source.Kind,
		"DEEPRESEARCH_GRPC_ADDR":   &cfg.GRPC.Addr,
		"DEEPRESEARCH_GRPC_LISTEN": &cfg.GRPC.Listen,
		"DEEPRESEARCH_DB":          &cfg.Store.Path,
		"DEEPRESEARCH_LOG_LEVEL":   &cfg.Log.Level,
		"DEEPRESEARCH_LOG_FORMAT":  &cfg.Log.Format,
		"DEEPRESEARCH_HTTP_ADDR":   &cfg.HTTP.Addr,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"DEEPRESEARCH_MAX_SUBQUERIES":          &cfg.Research.MaxSubQueries,
		"DEEPRESEARCH_MAX_ATTEMPTS":            &cfg.Research.MaxAttempts,
		"DEEPRESEARCH_MIN_SUCCESSFUL_EVIDENCE": &cfg.Research.MinSuccessfulEvidence,
		"DEEPRESEARCH_MAX_CONCURRENCY":         &cfg.Research.MaxConcurrency,
		"DEEPRESEARCH_MAX_TOPIC_LENGTH":        &cfg.Research.MaxTopicLength,
		"DEEPRESEARCH_MAX_SUBQUERY_LENGTH":     &cfg.Research.MaxSubQueryLength,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	durs := map[string]*time.Duration{
		"DEEPRESEARCH_BACKOFF_BASE":    &cfg.Research.BackoffBase,
		"DEEPRESEARCH_MAX_BACKOFF":     &cfg.Research.MaxBackoff,
		"DEEPRESEARCH_ATTEMPT_TIMEOUT": &cfg.Research.AttemptTimeout,
		"DEEPRESEARCH_OVERALL_TIMEOUT": &cfg.Research.OverallTimeout,
	}
	for key, dst := range durs {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	return nil
}

// #endregion load

// #region validate

// Validate rejects limits that would make a run impossible.
func (c Config) Validate() error {
	r := c.Research
	var errs []error
	positive := map[string]int{
		"maxSubQueries":     r.MaxSubQueries,
		"maxAttempts":       r.MaxAttempts,
		"maxConcurrency":    r.MaxConcurrency,
		"maxTopicLength":    r.MaxTopicLength,
		"maxSubQueryLength": r.MaxSubQueryLength,
	}
	for name, v := range positive {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("research.%s must be positive, got %d", name, v))
		}
	}
	for name, d := range map[string]time.Duration{
		"backoffBase":    r.BackoffBase,
		"maxBackoff":     r.MaxBackoff,
		"attemptTimeout": r.AttemptTimeout,
		"overallTimeout": r.OverallTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("research.%s must be positive, got %s", name, d))
		}
	}
	if r.MinSuccessfulEvidence < 0 {
		errs = append(errs, fmt.Errorf("research.minSuccessfulEvidence must not be negative, got %d", r.MinSuccessfulEvidence))
	}
	switch strings.ToLower(c.Source.Kind) {
	case "websearch", "grpc", "corpus":
	default:
		errs = append(errs, fmt.Errorf("source.kind must be websearch, grpc or corpus, got %q", c.Source.Kind))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// #endregion validate

// #region conversions

// Orchestrator returns the run policy in orchestrator terms.
func (c Config) Orchestrator() orchestrator.Config {
	r := c.Research
	return orchestrator.Config{
		Planner: planner.Config{
			MaxSubQueries:     r.MaxSubQueries,
			MaxTopicLength:    r.MaxTopicLength,
			MaxSubQueryLength: r.MaxSubQueryLength,
		},
		Retrieval: retrieval.Config{
			MaxAttempts:    r.MaxAttempts,
			BackoffBase:    r.BackoffBase,
			MaxBackoff:     r.MaxBackoff,
			AttemptTimeout: r.AttemptTimeout,
		},
		Synthesis:             synthesis.Config{SummarySentences: r.SummarySentences},
		OverallTimeout:        r.OverallTimeout,
		MinSuccessfulEvidence: r.MinSuccessfulEvidence,
		MaxConcurrency:        r.MaxConcurrency,
	}
}

// WebSearchConfig returns the websearch section in websearch terms.
func (c Config) WebSearchConfig() websearch.Config {
	w := c.WebSearch
	return websearch.Config{
		Provider:   w.Provider,
		APIKey:     w.APIKey,
		Endpoint:   w.Endpoint,
		Depth:      w.Depth,
		MaxResults: w.MaxResults,
		Timeout:    w.Timeout,
		QPS:        w.QPS,
	}
}

// #endregion conversions
