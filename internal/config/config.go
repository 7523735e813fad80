package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tanq16/arcfetch/internal/cache"
	"github.com/tanq16/arcfetch/internal/naming"
	"github.com/tanq16/arcfetch/internal/utils"
	"gopkg.in/yaml.v3"
)

const (
	DefaultFile    = "arcfetch.yaml"
	DomainEHentai  = "e-hentai"
	DomainExHentai = "exhentai"
)

// Config is resolved once at startup and handed to every component.
type Config struct {
	Domain            string       `yaml:"domain"`
	SiteURL           string       `yaml:"site_url,omitempty"`
	APIURL            string       `yaml:"api_url,omitempty"`
	Cookies           Cookies      `yaml:"cookies"`
	Proxy             string       `yaml:"proxy,omitempty"`
	UserAgent         string       `yaml:"user_agent,omitempty"`
	FilenameRule      string       `yaml:"filename_rule"`
	OutputDir         string       `yaml:"output_dir"`
	WriteMetadata     bool         `yaml:"write_metadata"`
	Quality           string       `yaml:"quality"`
	Favcat            int          `yaml:"favcat"`
	CacheFile         string       `yaml:"cache_file"`
	MaxWorkers        int          `yaml:"max_workers"`
	ThreadCount       int          `yaml:"thread_count"`
	MaxConnections    int          `yaml:"max_connections"`
	RequestsPerSecond float64      `yaml:"requests_per_second"`
	MaxRefresh        int          `yaml:"max_refresh"`
	Retry             RetryConfig  `yaml:"retry"`
	GitHubToken       string       `yaml:"github_token,omitempty"`
	Mirror            MirrorConfig `yaml:"mirror"`
}

// Cookies are the session cookies of a logged in site account.
type Cookies struct {
	MemberID string `yaml:"ipb_member_id"`
	PassHash string `yaml:"ipb_pass_hash"`
	Igneous  string `yaml:"igneous,omitempty"`
}

type RetryConfig struct {
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
	Timeout  time.Duration `yaml:"timeout"`
}

// MirrorConfig enables uploading finished archives to S3.
type MirrorConfig struct {
	S3      string `yaml:"s3,omitempty"`
	Profile string `yaml:"profile,omitempty"`
}

func Default() Config {
	return Config{
		Domain:            DomainEHentai,
		FilenameRule:      naming.DefaultPattern,
		OutputDir:         ".",
		Quality:           string(utils.QualityOriginal),
		Favcat:            10,
		CacheFile:         cache.DefaultFile,
		MaxWorkers:        3,
		ThreadCount:       3,
		MaxConnections:    64,
		RequestsPerSecond: 2,
		MaxRefresh:        3,
		Retry: RetryConfig{
			Attempts: 3,
			Delay:    time.Second,
			Timeout:  10 * time.Second,
		},
	}
}

// LoadFromFile overlays the YAML file at path onto the defaults.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// Save writes the config with owner-only permissions since it holds session cookies.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// LoadFromEnv applies ARCFETCH_ environment variables. Every setting of the YAML file has one,
// named after its key with dots as underscores (retry.delay is ARCFETCH_RETRY_DELAY).
func (c *Config) LoadFromEnv() error {
	strs := map[string]*string{
		"ARCFETCH_DOMAIN":         &c.Domain,
		"ARCFETCH_SITE_URL":       &c.SiteURL,
		"ARCFETCH_API_URL":        &c.APIURL,
		"ARCFETCH_MEMBER_ID":      &c.Cookies.MemberID,
		"ARCFETCH_PASS_HASH":      &c.Cookies.PassHash,
		"ARCFETCH_IGNEOUS":        &c.Cookies.Igneous,
		"ARCFETCH_PROXY":          &c.Proxy,
		"ARCFETCH_USER_AGENT":     &c.UserAgent,
		"ARCFETCH_FILENAME_RULE":  &c.FilenameRule,
		"ARCFETCH_OUTPUT_DIR":     &c.OutputDir,
		"ARCFETCH_QUALITY":        &c.Quality,
		"ARCFETCH_CACHE_FILE":     &c.CacheFile,
		"ARCFETCH_GITHUB_TOKEN":   &c.GitHubToken,
		"ARCFETCH_MIRROR_S3":      &c.Mirror.S3,
		"ARCFETCH_MIRROR_PROFILE": &c.Mirror.Profile,
	}
	for key, field := range strs {
		if v := os.Getenv(key); v != "" {
			*field = v
		}
	}
	ints := map[string]*int{
		"ARCFETCH_MAX_WORKERS":     &c.MaxWorkers,
		"ARCFETCH_THREAD_COUNT":    &c.ThreadCount,
		"ARCFETCH_MAX_CONNECTIONS": &c.MaxConnections,
		"ARCFETCH_FAVCAT":          &c.Favcat,
		"ARCFETCH_MAX_REFRESH":     &c.MaxRefresh,
		"ARCFETCH_RETRY_ATTEMPTS":  &c.Retry.Attempts,
	}
	for key, field := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", key, err)
			}
			*field = n
		}
	}
	durations := map[string]*time.Duration{
		"ARCFETCH_RETRY_DELAY":   &c.Retry.Delay,
		"ARCFETCH_RETRY_TIMEOUT": &c.Retry.Timeout,
	}
	for key, field := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", key, err)
			}
			*field = d
		}
	}
	if v := os.Getenv("ARCFETCH_REQUESTS_PER_SECOND"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse ARCFETCH_REQUESTS_PER_SECOND: %w", err)
		}
		c.RequestsPerSecond = rps
	}
	if v := os.Getenv("ARCFETCH_WRITE_METADATA"); v != "" {
		c.WriteMetadata = v == "true" || v == "1"
	}
	return nil
}

// Merge returns c with every non-zero field of override applied.
// Favcat and WriteMetadata have meaningful zero values and are set by callers directly.
func (c Config) Merge(override Config) Config {
	if override.Domain != "" {
		c.Domain = override.Domain
	}
	if override.SiteURL != "" {
		c.SiteURL = override.SiteURL
	}
	if override.Cookies.MemberID != "" {
		c.Cookies.MemberID = override.Cookies.MemberID
	}
	if override.Cookies.PassHash != "" {
		c.Cookies.PassHash = override.Cookies.PassHash
	}
	if override.Cookies.Igneous != "" {
		c.Cookies.Igneous = override.Cookies.Igneous
	}
	if override.Proxy != "" {
		c.Proxy = override.Proxy
	}
	if override.UserAgent != "" {
		c.UserAgent = override.UserAgent
	}
	if override.FilenameRule != "" {
		c.FilenameRule = override.FilenameRule
	}
	if override.OutputDir != "" {
		c.OutputDir = override.OutputDir
	}
	if override.Quality != "" {
		c.Quality = override.Quality
	}
	if override.CacheFile != "" {
		c.CacheFile = override.CacheFile
	}
	if override.MaxWorkers != 0 {
		c.MaxWorkers = override.MaxWorkers
	}
	if override.ThreadCount != 0 {
		c.ThreadCount = override.ThreadCount
	}
	if override.MaxConnections != 0 {
		c.MaxConnections = override.MaxConnections
	}
	if override.RequestsPerSecond != 0 {
		c.RequestsPerSecond = override.RequestsPerSecond
	}
	if override.Mirror.S3 != "" {
		c.Mirror.S3 = override.Mirror.S3
	}
	if override.Mirror.Profile != "" {
		c.Mirror.Profile = override.Mirror.Profile
	}
	return c
}

func (c *Config) Validate() error {
	if c.Domain != DomainEHentai && c.Domain != DomainExHentai {
		return fmt.Errorf("config: domain must be %q or %q", DomainEHentai, DomainExHentai)
	}
	if c.Cookies.MemberID == "" || c.Cookies.PassHash == "" {
		return errors.New("config: cookies.ipb_member_id and cookies.ipb_pass_hash are required")
	}
	if c.Domain == DomainExHentai && c.Cookies.Igneous == "" {
		return errors.New("config: cookies.igneous is required for exhentai")
	}
	if c.MaxWorkers <= 0 {
		return errors.New("config: max_workers must be positive")
	}
	if c.ThreadCount <= 0 {
		return errors.New("config: thread_count must be positive")
	}
	if c.MaxConnections <= 0 {
		return errors.New("config: max_connections must be positive")
	}
	if c.Favcat < 0 || c.Favcat > 10 {
		return errors.New("config: favcat must be between 0 and 10")
	}
	if c.MaxRefresh < 0 {
		return errors.New("config: max_refresh must not be negative")
	}
	if c.Retry.Attempts <= 0 {
		return errors.New("config: retry.attempts must be positive")
	}
	if c.RequestsPerSecond < 0 {
		return errors.New("config: requests_per_second must not be negative")
	}
	if _, err := utils.ParseQuality(c.Quality); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := naming.Parse(c.FilenameRule); err != nil {
		return fmt.Errorf("config: filename_rule: %w", err)
	}
	if c.Proxy != "" {
		if u, err := url.Parse(c.Proxy); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config: invalid proxy %q", c.Proxy)
		}
	}
	if c.Mirror.S3 != "" && !strings.HasPrefix(c.Mirror.S3, "s3://") {
		return fmt.Errorf("config: mirror.s3 must start with s3://")
	}
	return nil
}

// BaseURL is the site root for the configured domain.
func (c *Config) BaseURL() string {
	if c.SiteURL != "" {
		return strings.TrimRight(c.SiteURL, "/")
	}
	if c.Domain == DomainExHentai {
		return "https://exhentai.org"
	}
	return "https://e-hentai.org"
}

// EffectiveThreads caps max_workers * thread_count at max_connections.
func (c *Config) EffectiveThreads() int {
	if c.MaxWorkers*c.ThreadCount <= c.MaxConnections {
		return c.ThreadCount
	}
	return max(c.MaxConnections/c.MaxWorkers, 1)
}

// CookieMap returns the cookies the site expects, skipping empty ones.
func (c Cookies) CookieMap() map[string]string {
	m := map[string]string{
		"ipb_member_id": c.MemberID,
		"ipb_pass_hash": c.PassHash,
	}
	if c.Igneous != "" {
		m["igneous"] = c.Igneous
	}
	return m
}

// Redacted masks secrets for display.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if len(s) <= 4 {
			return strings.Repeat("*", len(s))
		}
		return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
	}
	c.Cookies.PassHash = mask(c.Cookies.PassHash)
	c.Cookies.Igneous = mask(c.Cookies.Igneous)
	c.GitHubToken = mask(c.GitHubToken)
	return c
}
