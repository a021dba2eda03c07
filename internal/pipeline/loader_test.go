package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/paperproof/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHTTPConfig() model.HTTPConfig {
	return model.HTTPConfig{
		Timeout:           5 * time.Second,
		UserAgent:         "paperproof-test/1.0",
		MaxBodyBytes:      1 << 20,
		RespectRobots:     true,
		RequestsPerSecond: 100,
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gcn.md")
	require.NoError(t, os.WriteFile(path, []byte("\\section{Method}\n\nWe use AdamW."), 0o644))

	paper, err := NewPaperLoader(testHTTPConfig(), nil).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, paper.Source)
	assert.Equal(t, "\\section{Method}\n\nWe use AdamW.", paper.Text)
	assert.Nil(t, paper.Meta)
}

func TestLoad_DirectoryUsesPaperFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, PaperFile), []byte("We use AdamW."), 0o644))

	paper, err := NewPaperLoader(testHTTPConfig(), nil).Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, PaperFile), paper.Source)
}

func TestLoad_HTMLFileConverted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paper.html")
	require.NoError(t, os.WriteFile(path, []byte("<h2>Method</h2><p>We use AdamW.</p>"), 0o644))

	paper, err := NewPaperLoader(testHTTPConfig(), nil).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "\\section{Method}\n\nWe use AdamW.", paper.Text)
}

func TestLoad_EmptyAndMissing(t *testing.T) {
	loader := NewPaperLoader(testHTTPConfig(), nil)

	empty := filepath.Join(t.TempDir(), "paper.md")
	require.NoError(t, os.WriteFile(empty, []byte(" \n\n "), 0o644))
	_, err := loader.Load(context.Background(), empty)
	assert.True(t, errors.Is(err, ErrEmptyPaper))

	_, err = loader.Load(context.Background(), filepath.Join(t.TempDir(), "missing.md"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrEmptyPaper))
}

func TestLoad_URL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			w.WriteHeader(http.StatusNotFound)
		case "/paper.html":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = fmt.Fprint(w, "<html><body><h2>Method</h2><p>We use AdamW.</p></body></html>")
		default:
			w.Header().Set("Content-Type", "text/markdown")
			_, _ = fmt.Fprint(w, "We use AdamW.")
		}
	}))
	defer server.Close()

	loader := NewPaperLoader(testHTTPConfig(), nil)

	paper, err := loader.Load(context.Background(), server.URL+"/paper.html")
	require.NoError(t, err)
	assert.Equal(t, "\\section{Method}\n\nWe use AdamW.", paper.Text)
	require.NotNil(t, paper.Meta)
	assert.Equal(t, http.StatusOK, paper.Meta.StatusCode)

	paper, err = loader.Load(context.Background(), server.URL+"/paper.md")
	require.NoError(t, err)
	assert.Equal(t, "We use AdamW.", paper.Text)
}

func TestLoad_RobotsDisallowed(t *testing.T) {
	var paperHits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = fmt.Fprint(w, "User-agent: *\nDisallow: /private/\n")
			return
		}
		paperHits++
		_, _ = fmt.Fprint(w, "secret")
	}))
	defer server.Close()

	_, err := NewPaperLoader(testHTTPConfig(), nil).Load(context.Background(), server.URL+"/private/paper.md")
	assert.True(t, errors.Is(err, ErrRobotsDisallowed))
	assert.Equal(t, 0, paperHits)

	cfg := testHTTPConfig()
	cfg.RespectRobots = false
	paper, err := NewPaperLoader(cfg, nil).Load(context.Background(), server.URL+"/private/paper.md")
	require.NoError(t, err)
	assert.Equal(t, "secret", paper.Text)
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://arxiv.org/abs/1609.02907"))
	assert.True(t, IsURL("http://localhost/paper.md"))
	assert.False(t, IsURL("papers/gcn/paper.md"))
}
