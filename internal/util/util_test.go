package util

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRobotsChecker_CanFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			fmt.Fprint(w, "User-agent: paperproof\nDisallow: /private\nCrawl-delay: 2\n")
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewRobotsChecker("paperproof/0.1 (+https://example.com)", 5*time.Second, nil)

	allowed, delay, err := checker.CanFetch(context.Background(), server.URL+"/papers/gcn.html")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 2*time.Second, delay)

	allowed, _, err = checker.CanFetch(context.Background(), server.URL+"/private/draft.html")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRobotsChecker_MissingRobotsAllows(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	checker := NewRobotsChecker("paperproof", 5*time.Second, nil)
	allowed, _, err := checker.CanFetch(context.Background(), server.URL+"/paper.md")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestNormalizeUserAgent(t *testing.T) {
	assert.Equal(t, "paperproof", NormalizeUserAgent("paperproof/0.1 (+https://github.com/ppiankov/paperproof)"))
	assert.Equal(t, "", NormalizeUserAgent(""))
}

func TestNewProxyFunc(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "https://example.com", nil)

	proxy := NewProxyFunc("http://proxy:8080", "http://secure-proxy:8443", "")
	u, err := proxy(req)
	require.NoError(t, err)
	assert.Equal(t, "secure-proxy:8443", u.Host)

	proxy = NewProxyFunc("http://proxy:8080", "", "")
	u, err = proxy(req)
	require.NoError(t, err)
	assert.Equal(t, "proxy:8080", u.Host)
}

func TestNewProxyFunc_NoProxy(t *testing.T) {
	proxy := NewProxyFunc("http://proxy:8080", "", "localhost,.internal")

	u, err := proxy(httptest.NewRequest(http.MethodGet, "http://localhost:11434/api/chat", nil))
	require.NoError(t, err)
	assert.Nil(t, u)

	u, err = proxy(httptest.NewRequest(http.MethodGet, "http://llm.internal/api/chat", nil))
	require.NoError(t, err)
	assert.Nil(t, u)

	u, err = proxy(httptest.NewRequest(http.MethodGet, "http://example.com", nil))
	require.NoError(t, err)
	assert.Equal(t, "proxy:8080", u.Host)
}
