package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/paperproof/internal/logging"
	"github.com/ppiankov/paperproof/internal/model"
	"github.com/ppiankov/paperproof/internal/util"
	"github.com/ppiankov/paperproof/internal/worker"
	"go.uber.org/zap"
)

// PaperFile is the file name looked up when a paper source is a directory
const PaperFile = "paper.md"

var (
	// ErrEmptyPaper is returned when a paper has no text
	ErrEmptyPaper = errors.New("paper is empty")

	// ErrRobotsDisallowed is returned when robots.txt forbids the download
	ErrRobotsDisallowed = errors.New("disallowed by robots.txt")
)

// Paper is loaded paper text plus where it came from
type Paper struct {
	Source string
	Text   string
	Meta   *model.FetchMeta // Only set for remote papers
}

// PaperLoader reads papers from disk or downloads them
type PaperLoader struct {
	fetcher       *Fetcher
	robots        *util.RobotsChecker
	limiter       *worker.Limiter
	respectRobots bool
	logger        *zap.Logger
}

// NewPaperLoader creates a loader from HTTP settings
func NewPaperLoader(cfg model.HTTPConfig, logger *zap.Logger) *PaperLoader {
	proxy := util.NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy)
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &PaperLoader{
		fetcher:       NewFetcher(cfg.Timeout, cfg.UserAgent, cfg.MaxBodyBytes, cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy),
		robots:        util.NewRobotsChecker(cfg.UserAgent, cfg.Timeout, proxy),
		limiter:       worker.NewLimiter(rps, 1),
		respectRobots: cfg.RespectRobots,
		logger:        logging.Module(logger, "loader"),
	}
}

// IsURL reports whether source should be downloaded
func IsURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// Load returns the paper text at source: a URL, a file, or a directory
// holding paper.md. HTML is converted to paragraphs. Empty text is an error.
func (l *PaperLoader) Load(ctx context.Context, source string) (*Paper, error) {
	var (
		paper *Paper
		err   error
	)
	if IsURL(source) {
		paper, err = l.download(ctx, source)
	} else {
		paper, err = readPaper(source)
	}
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(paper.Text) == "" {
		return nil, fmt.Errorf("%s: %w", source, ErrEmptyPaper)
	}
	l.logger.Info("paper loaded", zap.String("source", paper.Source), zap.Int("bytes", len(paper.Text)))
	return paper, nil
}

func readPaper(source string) (*Paper, error) {
	path := source
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, PaperFile)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read paper: %w", err)
	}

	text := string(data)
	if ext := strings.ToLower(filepath.Ext(path)); ext == ".html" || ext == ".htm" {
		if text, err = HTMLToPaper(text); err != nil {
			return nil, err
		}
	}
	return &Paper{Source: path, Text: text}, nil
}

func (l *PaperLoader) download(ctx context.Context, rawURL string) (*Paper, error) {
	host, err := worker.HostKey(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse paper URL: %w", err)
	}

	delay := l.robotsDelay(ctx, rawURL)
	if delay < 0 {
		return nil, fmt.Errorf("%s: %w", rawURL, ErrRobotsDisallowed)
	}
	if err := l.limiter.WaitWithDelay(ctx, host, delay); err != nil {
		return nil, err
	}

	res, err := l.fetcher.FetchWithRetry(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("download paper: %w", err)
	}

	text := res.Body
	if res.IsHTML() {
		if text, err = HTMLToPaper(text); err != nil {
			return nil, err
		}
	}

	l.logger.Debug("paper downloaded",
		zap.String("url", res.FinalURL),
		zap.String("subject", res.Subject),
		zap.Int("status", res.Meta.StatusCode),
		zap.String("content_type", res.Meta.ContentType),
	)

	meta := res.Meta
	return &Paper{Source: res.FinalURL, Text: text, Meta: &meta}, nil
}

// robotsDelay returns the crawl delay for rawURL, or -1 when the download is
// not allowed
func (l *PaperLoader) robotsDelay(ctx context.Context, rawURL string) time.Duration {
	if !l.respectRobots {
		return 0
	}
	allowed, delay, err := l.robots.CanFetch(ctx, rawURL)
	if err != nil {
		l.logger.Warn("robots.txt check failed, continuing", zap.String("url", rawURL), zap.Error(err))
		return 0
	}
	if !allowed {
		return -1
	}
	return delay
}
