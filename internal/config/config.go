package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"SCOUT_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"SCOUT_DB_MAX_CONNS" default:"8"`

	StreamURL         string        `envconfig:"RC_STREAM_URL" default:"https://stream.wikimedia.org/v2/stream/recentchange"`
	Wiki              string        `envconfig:"RC_WIKI" default:"enwiki"`
	Namespaces        string        `envconfig:"RC_NAMESPACES" default:"0"`
	StreamReadTimeout time.Duration `envconfig:"RC_STREAM_READ_TIMEOUT" default:"60s"`

	APIBaseURL string `envconfig:"WIKIMEDIA_API_URL" default:"https://en.wikipedia.org/w/api.php"`
	UserAgent  string `envconfig:"SCOUT_USER_AGENT" default:"scout/1.0 (ops@horse.fit)"`

	RateLimitRequests int           `envconfig:"WIKIMEDIA_RATE_LIMIT" default:"60"`
	RateLimitWindow   time.Duration `envconfig:"WIKIMEDIA_RATE_WINDOW" default:"60s"`
	FailureThreshold  int           `envconfig:"WIKIMEDIA_FAILURE_THRESHOLD" default:"5"`
	RecoveryInterval  time.Duration `envconfig:"WIKIMEDIA_RECOVERY_INTERVAL" default:"30s"`
	MaxRetries        int           `envconfig:"WIKIMEDIA_MAX_RETRIES" default:"5"`
	BaseBackoff       time.Duration `envconfig:"WIKIMEDIA_BASE_BACKOFF" default:"1s"`
	RequestTimeout    time.Duration `envconfig:"WIKIMEDIA_REQUEST_TIMEOUT" default:"30s"`

	MetadataTTL time.Duration `envconfig:"METADATA_TTL" default:"6h"`

	BucketWidth   time.Duration `envconfig:"TERM_BUCKET_WIDTH" default:"1h"`
	NGramMin      int           `envconfig:"TERM_NGRAM_MIN" default:"1"`
	NGramMax      int           `envconfig:"TERM_NGRAM_MAX" default:"4"`
	EnglishOnly   bool          `envconfig:"TERM_ENGLISH_ONLY" default:"true"`
	EnrichWorkers int           `envconfig:"ENRICH_WORKERS" default:"4"`
	EnrichBatch   int           `envconfig:"ENRICH_BATCH" default:"100"`

	SpikeMethod      string  `envconfig:"SPIKE_METHOD" default:"robust_z"`
	RobustZThreshold float64 `envconfig:"SPIKE_Z_THRESHOLD" default:"3.5"`
	EWMAThreshold    float64 `envconfig:"SPIKE_EWMA_THRESHOLD" default:"3.0"`
	EWMASpan         int     `envconfig:"SPIKE_EWMA_SPAN" default:"24"`
	BaselineMinDays  int     `envconfig:"BASELINE_MIN_DAYS" default:"14"`
	BaselineMaxDays  int     `envconfig:"BASELINE_MAX_DAYS" default:"30"`

	TermSpikeMethod string  `envconfig:"TERM_SPIKE_METHOD" default:"log_odds"`
	TermPrior       float64 `envconfig:"TERM_SPIKE_PRIOR" default:"0.5"`
	TermMinSupport  int     `envconfig:"TERM_SPIKE_MIN_SUPPORT" default:"5"`

	ReportWindowHours      int     `envconfig:"REPORT_WINDOW_HOURS" default:"24"`
	ReportLimit            int     `envconfig:"REPORT_LIMIT" default:"20"`
	MinHoursBetweenReports int     `envconfig:"REPORT_MIN_HOURS_BETWEEN" default:"24"`
	MinScoreDelta          float64 `envconfig:"REPORT_MIN_SCORE_DELTA" default:"1.0"`
	MinNewPages            int     `envconfig:"REPORT_MIN_NEW_PAGES" default:"1"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("SCOUT_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("SCOUT_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("SCOUT_DB_MIN_CONNS (%d) cannot exceed SCOUT_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if strings.TrimSpace(c.StreamURL) == "" {
		return fmt.Errorf("RC_STREAM_URL is required")
	}
	if strings.TrimSpace(c.Wiki) == "" {
		return fmt.Errorf("RC_WIKI is required")
	}
	if _, err := c.NamespaceSet(); err != nil {
		return err
	}
	if c.RateLimitRequests < 1 {
		return fmt.Errorf("WIKIMEDIA_RATE_LIMIT must be >= 1")
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("WIKIMEDIA_RATE_WINDOW must be positive")
	}
	if c.FailureThreshold < 1 {
		return fmt.Errorf("WIKIMEDIA_FAILURE_THRESHOLD must be >= 1")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("WIKIMEDIA_MAX_RETRIES must be >= 1")
	}
	if c.BucketWidth < time.Second || c.BucketWidth%time.Second != 0 {
		return fmt.Errorf("TERM_BUCKET_WIDTH must be a positive whole number of seconds")
	}
	if c.NGramMin < 1 || c.NGramMax < c.NGramMin {
		return fmt.Errorf("TERM_NGRAM_MIN/TERM_NGRAM_MAX range is invalid (%d..%d)", c.NGramMin, c.NGramMax)
	}
	if c.EnrichWorkers < 1 {
		return fmt.Errorf("ENRICH_WORKERS must be >= 1")
	}
	if c.EnrichBatch < 1 {
		return fmt.Errorf("ENRICH_BATCH must be >= 1")
	}
	switch c.SpikeMethod {
	case "robust_z", "ewma":
	default:
		return fmt.Errorf("SPIKE_METHOD must be robust_z or ewma, got %q", c.SpikeMethod)
	}
	switch c.TermSpikeMethod {
	case "log_odds", "ratio":
	default:
		return fmt.Errorf("TERM_SPIKE_METHOD must be log_odds or ratio, got %q", c.TermSpikeMethod)
	}
	if c.BaselineMinDays < 1 || c.BaselineMaxDays < c.BaselineMinDays {
		return fmt.Errorf("BASELINE_MIN_DAYS/BASELINE_MAX_DAYS range is invalid (%d..%d)", c.BaselineMinDays, c.BaselineMaxDays)
	}
	if c.ReportWindowHours < 1 {
		return fmt.Errorf("REPORT_WINDOW_HOURS must be >= 1")
	}
	if c.ReportLimit < 1 {
		return fmt.Errorf("REPORT_LIMIT must be >= 1")
	}
	return nil
}

// NamespaceSet parses RC_NAMESPACES ("0,4,10") into an allow-set.
func (c *Config) NamespaceSet() (map[int]struct{}, error) {
	parts := strings.Split(c.Namespaces, ",")
	set := make(map[int]struct{}, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		ns, err := strconv.Atoi(trimmed)
		if err != nil {
			return nil, fmt.Errorf("RC_NAMESPACES entry %q is not an integer", trimmed)
		}
		set[ns] = struct{}{}
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("RC_NAMESPACES must list at least one namespace")
	}
	return set, nil
}
