package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kilianp07/fleetdispatch/core/model"
)

// JSONLSink stores entries in a JSONL file, one entry per line.
type JSONLSink struct {
	path string
	mu   sync.Mutex
}

func NewJSONLSink(path string) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	if cerr := f.Close(); cerr != nil {
		return nil, cerr
	}
	return &JSONLSink{path: path}, nil
}

func (s *JSONLSink) Write(ctx context.Context, entries []model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	enc := json.NewEncoder(f)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

func (s *JSONLSink) Query(ctx context.Context, q Filter) ([]model.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := scanJSONL([]string{s.path}, q)
	if err != nil {
		return nil, err
	}
	return q.limit(res), nil
}

func (s *JSONLSink) Close() error { return nil }

// RotatingJSONLSink stores entries in a JSONL file with automatic rotation.
type RotatingJSONLSink struct {
	logger *lumberjack.Logger
	path   string
	mu     sync.Mutex
}

// NewRotatingJSONLSink creates a sink with rotation options in megabytes and days.
func NewRotatingJSONLSink(path string, maxSizeMB, maxBackups, maxAgeDays int) (*RotatingJSONLSink, error) {
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   false,
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &RotatingJSONLSink{logger: lj, path: path}, nil
}

// Write appends the entries and triggers rotation if needed.
func (s *RotatingJSONLSink) Write(_ context.Context, entries []model.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	enc := json.NewEncoder(s.logger)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

// Query reads the active file and the rotated backups, ordered by sequence.
func (s *RotatingJSONLSink) Query(_ context.Context, q Filter) ([]model.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ext := filepath.Ext(s.path)
	base := s.path[:len(s.path)-len(ext)]
	backups, err := filepath.Glob(base + "-*" + ext)
	if err != nil {
		return nil, err
	}
	res, err := scanJSONL(append(backups, s.path), q)
	if err != nil {
		return nil, err
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Seq < res[j].Seq })
	return q.limit(res), nil
}

// Close closes the underlying writer.
func (s *RotatingJSONLSink) Close() error {
	return s.logger.Close()
}

func scanJSONL(paths []string, q Filter) ([]model.AuditEntry, error) {
	var res []model.AuditEntry
	for _, p := range paths {
		f, err := os.Open(p)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			var e model.AuditEntry
			if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
				continue
			}
			if q.Match(e) {
				res = append(res, e)
			}
		}
		err = scanner.Err()
		_ = f.Close()
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}
