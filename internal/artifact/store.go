// Package artifact persists intermediate pipeline outputs in a workspace
// directory. Presence of a file is the only cache check.
package artifact

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Well-known artifact names
const (
	FrameworkGuide   = "guide_framework_level.md"
	ConfigGuide      = "guide_config_level.yaml"
	ExhaustiveScan   = "guide_exhaustive_scan.jsonl"
	FinalSignals     = "supervisory_signals_final.json"
	DiscardedSignals = "signals_discarded.json"
	RunManifest      = "run_manifest.json"
)

// EvidenceFile names the enriched-fact artifact for a source
func EvidenceFile(source string) string {
	return "evidence_" + source + ".json"
}

// SignalsFile names the standardized-signal artifact for a source
func SignalsFile(source string) string {
	return "signals_" + source + ".json"
}

// Store reads and writes artifacts under one directory
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir, creating it if needed
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the root directory
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the absolute location of name
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Sub returns a store for a subdirectory
func (s *Store) Sub(name string) (*Store, error) {
	return NewStore(s.Path(name))
}

// Exists reports whether name is present
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// ReadText reads name as a string
func (s *Store) ReadText(name string) (string, error) {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteText atomically replaces name with text
func (s *Store) WriteText(name, text string) error {
	return s.writeAtomic(name, []byte(text))
}

// ReadJSON decodes name into v
func (s *Store) ReadJSON(name string, v any) error {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

// WriteJSON atomically replaces name with the indented JSON encoding of v
func (s *Store) WriteJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return s.writeAtomic(name, append(data, '\n'))
}

// Remove deletes name, ignoring a missing file
func (s *Store) Remove(name string) error {
	err := os.Remove(s.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (s *Store) writeAtomic(name string, data []byte) error {
	path := s.Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// JSONLWriter appends one JSON record per line and flushes after each so an
// interrupted run keeps every completed record
type JSONLWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
}

// CreateJSONL truncates name and opens it for appending records
func (s *Store) CreateJSONL(name string) (*JSONLWriter, error) {
	f, err := os.OpenFile(s.Path(name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLWriter{file: f, buf: bufio.NewWriter(f)}, nil
}

// Write appends v as one line
func (w *JSONLWriter) Write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.buf.Write(append(data, '\n')); err != nil {
		return err
	}
	return w.buf.Flush()
}

// Close flushes and closes the file
func (w *JSONLWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return errors.Join(w.buf.Flush(), w.file.Close())
}

// ReadJSONL decodes each non-empty line of name with decode
func ReadJSONL[T any](s *Store, name string) ([]T, error) {
	f, err := os.Open(s.Path(name))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var out []T
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		b := scanner.Bytes()
		if len(b) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", name, line, err)
		}
		out = append(out, v)
	}
	return out, scanner.Err()
}
