package utils

import (
	"net"
	"net/http"
	"net/url"
	"time"
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RelayHTTPClient is the client side of the relay. Timeout bounds dialing and
// the TLS handshake only. The relay writes its headers after yt-dlp finishes,
// so neither the overall request nor the header wait is capped here.
type RelayHTTPClient struct {
	client *http.Client
	config HTTPClientConfig
}

func NewRelayHTTPClient(cfg HTTPClientConfig) *RelayHTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.KATimeout == 0 {
		cfg.KATimeout = 60 * time.Second
	}
	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string)
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: cfg.Timeout, KeepAlive: 30 * time.Second}).DialContext,
		IdleConnTimeout:     cfg.KATimeout,
		TLSHandshakeTimeout: cfg.Timeout,
		MaxIdleConns:        10,
		DisableCompression:  true,
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
	return &RelayHTTPClient{
		client: &http.Client{Transport: transport},
		config: cfg,
	}
}

func (d *RelayHTTPClient) SetHeader(key, value string) {
	d.config.Headers[key] = value
}

func (d *RelayHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if d.config.UserAgent != "" {
		req.Header.Set("User-Agent", d.config.UserAgent)
	} else {
		req.Header.Set("User-Agent", ToolUserAgent)
	}
	for k, v := range d.config.Headers {
		req.Header.Set(k, v)
	}
	return d.client.Do(req)
}
