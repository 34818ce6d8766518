package download

import (
	"net/http"
	"net/url"

	"github.com/hashicorp/go-cleanhttp"
)

// NewTransport returns a pooled transport. A nil proxy uses the
// environment's proxy settings; http, https and socks5 proxies are
// supported.
func NewTransport(proxy *url.URL) *http.Transport {
	t := cleanhttp.DefaultPooledTransport()
	t.MaxIdleConnsPerHost = MaxConcurrency
	if proxy != nil {
		t.Proxy = http.ProxyURL(proxy)
	}
	return t
}

// NewClient wraps NewTransport. It sets no overall timeout; attempts are
// bounded by the scheduler.
func NewClient(proxy *url.URL) *http.Client {
	return &http.Client{Transport: NewTransport(proxy)}
}
