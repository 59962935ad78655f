package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the proxy.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Gate      GateConfig      `mapstructure:"gate"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Portal    PortalConfig    `mapstructure:"portal"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Listen      string `mapstructure:"listen"`
	ServiceName string `mapstructure:"service_name"`
	Metrics     bool   `mapstructure:"metrics"`
}

// GateConfig contains API-key auth and CORS settings.
type GateConfig struct {
	APIKey         string   `mapstructure:"api_key"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func (g GateConfig) Validate() error {
	if strings.TrimSpace(g.APIKey) == "" {
		return fmt.Errorf("gate.api_key is required (CASEPROXY_GATE_API_KEY)")
	}
	return nil
}

// RateLimitConfig contains fixed-window rate limiter settings.
type RateLimitConfig struct {
	Window      time.Duration `mapstructure:"window"`
	MaxRequests uint64        `mapstructure:"max_requests"`
	// Backend selects the counter store: "memory" or "redis".
	Backend string `mapstructure:"backend"`
	// SweepInterval bounds memory growth of the in-memory table by evicting
	// expired windows. 0 disables the sweep.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	Redis         RedisConfig   `mapstructure:"redis"`
}

func (r RateLimitConfig) Validate() error {
	if r.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be > 0")
	}
	if r.MaxRequests == 0 {
		return fmt.Errorf("rate_limit.max_requests must be > 0")
	}
	switch r.Backend {
	case "memory":
	case "redis":
		if strings.TrimSpace(r.Redis.Addr) == "" {
			return fmt.Errorf("rate_limit.redis.addr required when backend is redis")
		}
	default:
		return fmt.Errorf("rate_limit.backend must be memory or redis, got %q", r.Backend)
	}
	return nil
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// BrowserConfig contains headless browser settings and per-step timeouts.
type BrowserConfig struct {
	Headless  bool   `mapstructure:"headless"`
	ExecPath  string `mapstructure:"exec_path"`
	UserAgent string `mapstructure:"user_agent"`
	// MaxSessions caps concurrent browser sessions. 0 means unbounded.
	MaxSessions int `mapstructure:"max_sessions"`

	NavTimeout     time.Duration `mapstructure:"nav_timeout"`
	InputTimeout   time.Duration `mapstructure:"input_timeout"`
	VolumeTimeout  time.Duration `mapstructure:"volume_timeout"`
	SubmitTimeout  time.Duration `mapstructure:"submit_timeout"`
	ReadNavTimeout time.Duration `mapstructure:"read_nav_timeout"`
	ContentTimeout time.Duration `mapstructure:"content_timeout"`
	SettleDelay    time.Duration `mapstructure:"settle_delay"`
	// NetworkQuiet is the window with no in-flight requests that counts as a
	// quiet network after the initial navigation. 0 disables the wait.
	NetworkQuiet time.Duration `mapstructure:"network_quiet"`
}

func (b BrowserConfig) Validate() error {
	if b.NavTimeout <= 0 || b.SubmitTimeout <= 0 || b.ReadNavTimeout <= 0 {
		return fmt.Errorf("browser navigation timeouts must be > 0")
	}
	if b.SettleDelay < 0 {
		return fmt.Errorf("browser.settle_delay cannot be negative")
	}
	return nil
}

// PortalConfig pins the target portal's URLs and markup assumptions in one
// place. Selector names describe the role each element plays in the pipeline.
type PortalConfig struct {
	SearchURL   string `mapstructure:"search_url"`
	CitationURL string `mapstructure:"citation_url"`
	// DocumentPath marks URLs that denote a direct document view after a
	// citation search resolves.
	DocumentPath string          `mapstructure:"document_path"`
	Selectors    PortalSelectors `mapstructure:"selectors"`
}

// PortalSelectors are the CSS selectors the pipeline depends on.
type PortalSelectors struct {
	QueryInput     string `mapstructure:"query_input"`
	SearchSubmit   string `mapstructure:"search_submit"`
	VolumeInput    string `mapstructure:"volume_input"`
	ReporterSelect string `mapstructure:"reporter_select"`
	PageInput      string `mapstructure:"page_input"`
	CitationSubmit string `mapstructure:"citation_submit"`
	ResultRows     string `mapstructure:"result_rows"`
	TitleLink      string `mapstructure:"title_link"`
	Description    string `mapstructure:"description"`
	NoResults      string `mapstructure:"no_results"`
	ContentPrimary string `mapstructure:"content_primary"`
	ContentFrame   string `mapstructure:"content_frame"`
	ContentBody    string `mapstructure:"content_body"`
}

func (p PortalConfig) Validate() error {
	if strings.TrimSpace(p.SearchURL) == "" || strings.TrimSpace(p.CitationURL) == "" {
		return fmt.Errorf("portal.search_url and portal.citation_url are required")
	}
	if strings.TrimSpace(p.DocumentPath) == "" {
		return fmt.Errorf("portal.document_path is required")
	}
	return nil
}

// Validate checks the full configuration.
func (c *Config) Validate() error {
	if err := c.Gate.Validate(); err != nil {
		return err
	}
	if err := c.RateLimit.Validate(); err != nil {
		return err
	}
	if err := c.Browser.Validate(); err != nil {
		return err
	}
	return c.Portal.Validate()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.service_name", "caselaw-proxy")
	v.SetDefault("server.metrics", true)

	// Registered so AutomaticEnv can populate them without a config file.
	v.SetDefault("gate.api_key", "")
	v.SetDefault("gate.allowed_origins", []string{})

	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("rate_limit.max_requests", 10)
	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.sweep_interval", 5*time.Minute)
	v.SetDefault("rate_limit.redis.addr", "")
	v.SetDefault("rate_limit.redis.password", "")
	v.SetDefault("rate_limit.redis.db", 0)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.user_agent", "caselaw-proxy/1.0")
	v.SetDefault("browser.max_sessions", 0)
	v.SetDefault("browser.nav_timeout", 30*time.Second)
	v.SetDefault("browser.input_timeout", 5*time.Second)
	v.SetDefault("browser.volume_timeout", 10*time.Second)
	v.SetDefault("browser.submit_timeout", 30*time.Second)
	v.SetDefault("browser.read_nav_timeout", 45*time.Second)
	v.SetDefault("browser.content_timeout", 15*time.Second)
	v.SetDefault("browser.settle_delay", 3*time.Second)
	v.SetDefault("browser.network_quiet", 500*time.Millisecond)

	v.SetDefault("portal.search_url", "https://www.courtlistener.com/")
	v.SetDefault("portal.citation_url", "https://www.courtlistener.com/c/")
	v.SetDefault("portal.document_path", "/opinion/")
	v.SetDefault("portal.selectors.query_input", "#id_q")
	v.SetDefault("portal.selectors.search_submit", "#search-button")
	v.SetDefault("portal.selectors.volume_input", "#id_volume")
	v.SetDefault("portal.selectors.reporter_select", "#id_reporter")
	v.SetDefault("portal.selectors.page_input", "#id_page")
	v.SetDefault("portal.selectors.citation_submit", "button[type=submit]")
	v.SetDefault("portal.selectors.result_rows", "article.search-result")
	v.SetDefault("portal.selectors.title_link", "h3 a")
	v.SetDefault("portal.selectors.description", "p.summary")
	v.SetDefault("portal.selectors.no_results", ".no-results")
	v.SetDefault("portal.selectors.content_primary", "#opinion-content")
	v.SetDefault("portal.selectors.content_frame", ".opinion-text")
	v.SetDefault("portal.selectors.content_body", "article")
}

// LoadConfig loads config from an optional file plus CASEPROXY_* environment
// overrides. A missing config file is fine; env-only deployments are the norm
// for this service.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("CASEPROXY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return &cfg, nil
}
