// Package util holds small HTTP helpers shared by the paper loader and the
// LLM providers.
package util

import (
	"net/http"
	"net/url"
	"strings"
)

// NewProxyFunc creates a proxy function based on configuration.
// If no proxy URLs are provided, falls back to environment variables.
// noProxy is a comma-separated list of hosts (or .domain suffixes) that bypass the proxy.
func NewProxyFunc(httpProxy, httpsProxy, noProxy string) func(*http.Request) (*url.URL, error) {
	if httpProxy == "" && httpsProxy == "" {
		return http.ProxyFromEnvironment
	}

	bypass := parseNoProxy(noProxy)

	return func(req *http.Request) (*url.URL, error) {
		if bypass(req.URL.Hostname()) {
			return nil, nil
		}
		if req.URL.Scheme == "https" && httpsProxy != "" {
			return url.Parse(httpsProxy)
		}
		if httpProxy != "" {
			return url.Parse(httpProxy)
		}
		return http.ProxyFromEnvironment(req)
	}
}

func parseNoProxy(noProxy string) func(host string) bool {
	var entries []string
	for _, e := range strings.Split(noProxy, ",") {
		if e = strings.TrimSpace(strings.ToLower(e)); e != "" {
			entries = append(entries, e)
		}
	}

	return func(host string) bool {
		host = strings.ToLower(host)
		for _, e := range entries {
			if e == "*" || host == e || strings.HasSuffix(host, "."+strings.TrimPrefix(e, ".")) {
				return true
			}
		}
		return false
	}
}
