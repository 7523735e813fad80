package cmd

import (
	"fmt"
	u "net/url"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/arcfetch/internal/config"
	"github.com/tanq16/arcfetch/internal/utils"
)

// loadConfig returns the validated config for commands that talk to the site.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := readConfig(cmd)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// readConfig layers the config file, ARCFETCH_ variables and command-line flags, in that order.
func readConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if utils.FileExists(configPath) {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	} else if cmd.Flags().Changed("config") {
		return config.Config{}, fmt.Errorf("config file %s not found", configPath)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}
	cfg = cfg.Merge(config.Config{
		Proxy:       proxyURL,
		UserAgent:   userAgent,
		OutputDir:   outputDir,
		Quality:     quality,
		MaxWorkers:  workers,
		ThreadCount: threads,
	})
	if f := cmd.Flags().Lookup("favcat"); f != nil && f.Changed {
		cfg.Favcat = favcat
	}
	if f := cmd.Flags().Lookup("metadata"); f != nil && f.Changed {
		cfg.WriteMetadata = writeMetadata
	}
	return cfg, nil
}

// splitProxy moves credentials embedded in the proxy URL into separate fields.
func splitProxy(raw string) (proxy, username, password string) {
	if raw == "" {
		return "", "", ""
	}
	parsed, err := u.Parse(raw)
	if err != nil || parsed.User == nil {
		return raw, "", ""
	}
	username = parsed.User.Username()
	password, _ = parsed.User.Password()
	parsed.User = nil
	return parsed.String(), username, password
}

func resolveUserAgent(ua string) string {
	if ua == "randomize" || ua == "random" {
		return utils.GetRandomUserAgent()
	}
	return ua
}

// siteHTTPConfig is used for every request to the gallery site and carries the session cookies.
func siteHTTPConfig(cfg config.Config) utils.HTTPClientConfig {
	proxy, user, pass := splitProxy(cfg.Proxy)
	return utils.HTTPClientConfig{
		Timeout:           30 * time.Second,
		KATimeout:         90 * time.Second,
		ProxyURL:          proxy,
		ProxyUsername:     user,
		ProxyPassword:     pass,
		UserAgent:         resolveUserAgent(cfg.UserAgent),
		Headers:           utils.ParseHeaderArgs(headers),
		Cookies:           cfg.Cookies.CookieMap(),
		RequestsPerSecond: cfg.RequestsPerSecond,
	}
}

// downloadHTTPConfig talks to archive hosts. Chunk bodies can take longer than any fixed deadline,
// so only response headers are bounded here and the fetcher handles idle reads.
func downloadHTTPConfig(cfg config.Config, connections int) utils.HTTPClientConfig {
	proxy, user, pass := splitProxy(cfg.Proxy)
	return utils.HTTPClientConfig{
		Timeout:        -1,
		KATimeout:      90 * time.Second,
		HeaderTimeout:  cfg.Retry.Timeout,
		ProxyURL:       proxy,
		ProxyUsername:  user,
		ProxyPassword:  pass,
		UserAgent:      resolveUserAgent(cfg.UserAgent),
		Headers:        utils.ParseHeaderArgs(headers),
		HighThreadMode: connections > 8,
	}
}

// githubHTTPConfig fetches the tag translation database.
func githubHTTPConfig(cfg config.Config) utils.HTTPClientConfig {
	proxy, user, pass := splitProxy(cfg.Proxy)
	return utils.HTTPClientConfig{
		Timeout:       2 * time.Minute,
		ProxyURL:      proxy,
		ProxyUsername: user,
		ProxyPassword: pass,
	}
}
