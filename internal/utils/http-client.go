package utils

import (
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"
)

type HTTPClientConfig struct {
	Timeout           time.Duration // negative disables the whole-request deadline
	KATimeout         time.Duration
	HeaderTimeout     time.Duration
	ProxyURL          string
	ProxyUsername     string
	ProxyPassword     string
	UserAgent         string
	Headers           map[string]string
	Cookies           map[string]string
	RequestsPerSecond float64 // 0 disables pacing
	HighThreadMode    bool    // advanced socket options for high concurrency
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type ArcHTTPClient struct {
	client *http.Client
	config HTTPClientConfig
}

// pacedTransport holds every outgoing request until the limiter grants a token.
type pacedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *pacedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}

func NewArcHTTPClient(cfg HTTPClientConfig) *ArcHTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.KATimeout == 0 {
		cfg.KATimeout = 60 * time.Second
	}
	clientTimeout := cfg.Timeout
	if clientTimeout < 0 {
		clientTimeout = 0
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: cfg.HeaderTimeout,
		IdleConnTimeout:       cfg.KATimeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		DisableCompression:    true,
		MaxConnsPerHost:       0,
	}
	if cfg.HighThreadMode {
		transport.DialContext = (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
			Control: func(network, address string, c syscall.RawConn) error {
				return c.Control(func(fd uintptr) {
					setSocketOptions(fd)
				})
			},
		}).DialContext
	}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err == nil {
			if cfg.ProxyUsername != "" {
				if cfg.ProxyPassword != "" {
					proxyURL.User = url.UserPassword(cfg.ProxyUsername, cfg.ProxyPassword)
				} else {
					proxyURL.User = url.User(cfg.ProxyUsername)
				}
			}
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	var rt http.RoundTripper = transport
	if cfg.RequestsPerSecond > 0 {
		rt = &pacedTransport{
			base:    transport,
			limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		}
	}
	return &ArcHTTPClient{
		client: &http.Client{
			Timeout:   clientTimeout,
			Transport: rt,
		},
		config: cfg,
	}
}

// HTTPClient exposes the underlying client for libraries that drive their own requests.
func (d *ArcHTTPClient) HTTPClient() *http.Client {
	return d.client
}

// ApplyHeaders sets the user agent, custom headers and session cookies on h.
func (d *ArcHTTPClient) ApplyHeaders(h http.Header) {
	if d.config.UserAgent != "" {
		h.Set("User-Agent", d.config.UserAgent)
	} else {
		h.Set("User-Agent", ToolUserAgent)
	}
	for k, v := range d.config.Headers {
		h.Set(k, v)
	}
	if cookie := CookieHeader(d.config.Cookies); cookie != "" {
		h.Set("Cookie", cookie)
	}
}

func (d *ArcHTTPClient) Do(req *http.Request) (*http.Response, error) {
	d.ApplyHeaders(req.Header)
	return d.client.Do(req)
}

// CookieHeader renders cookies in a stable order, dropping empty values.
func CookieHeader(cookies map[string]string) string {
	if len(cookies) == 0 {
		return ""
	}
	names := make([]string, 0, len(cookies))
	for name, value := range cookies {
		if value != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+cookies[name])
	}
	return strings.Join(parts, "; ")
}
