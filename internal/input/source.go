// Package input provides the lazy credential source consumed by the
// execution pipeline. Combo files are read line by line, never loaded whole,
// so arbitrarily large lists stream through a fixed memory footprint.
package input

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// ErrExhausted is returned by Next once the source has no more pairs.
var ErrExhausted = fmt.Errorf("credential source exhausted")

// autoDelimiters are tried in order when no explicit delimiter is configured.
var autoDelimiters = []string{":", ",", ";", "|"}

// Credential is one username/password candidate pair.
type Credential struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ParseLine splits one combo line into a credential pair. delimiter forces a
// specific separator; when empty, common separators are tried in order and
// the first match wins. Malformed lines (no separator, empty username or
// password) return false rather than an error: they are skipped, not fatal.
func ParseLine(line, delimiter string) (Credential, bool) {
	clean := strings.TrimSpace(line)
	if clean == "" {
		return Credential{}, false
	}

	delims := autoDelimiters
	if delimiter != "" {
		delims = []string{delimiter}
	}

	for _, d := range delims {
		if !strings.Contains(clean, d) {
			continue
		}
		parts := strings.SplitN(clean, d, 2)
		username := strings.TrimSpace(parts[0])
		password := strings.TrimSpace(parts[1])
		if username == "" || password == "" {
			return Credential{}, false
		}
		return Credential{Username: username, Password: password}, true
	}

	return Credential{}, false
}

// FileSource streams credential pairs from a combo file. It is a single-pass
// sequence: extraction is strictly serialized under an internal mutex, every
// pair is observed by exactly one caller, and the source cannot be rewound
// mid-stream (reopen the file to restart from the top).
type FileSource struct {
	mu        sync.Mutex
	file      *os.File
	scanner   *bufio.Scanner
	delimiter string
	skipped   int
	done      bool
	logger    *zap.Logger
}

// Open creates a FileSource over the given combo file. delimiter may be
// empty to enable auto-detection per line.
func Open(path, delimiter string, logger *zap.Logger) (*FileSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential file: %w", err)
	}

	scanner := bufio.NewScanner(f)
	// Combo lines are short, but leaked dumps occasionally carry junk rows.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	return &FileSource{
		file:      f,
		scanner:   scanner,
		delimiter: delimiter,
		logger:    logger.Named("input"),
	}, nil
}

// Next returns the next well-formed credential pair. Malformed lines are
// counted and skipped. Returns ErrExhausted once the file is drained and
// wraps the underlying error if the read itself fails mid-stream.
func (s *FileSource) Next() (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return Credential{}, ErrExhausted
	}

	for s.scanner.Scan() {
		cred, ok := ParseLine(s.scanner.Text(), s.delimiter)
		if !ok {
			s.skipped++
			continue
		}
		return cred, nil
	}

	s.done = true
	if err := s.scanner.Err(); err != nil {
		return Credential{}, fmt.Errorf("credential file read failed: %w", err)
	}
	if s.skipped > 0 {
		s.logger.Debug("Skipped malformed combo lines", zap.Int("count", s.skipped))
	}
	return Credential{}, ErrExhausted
}

// Skipped reports how many malformed lines were dropped so far.
func (s *FileSource) Skipped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped
}

// Close releases the underlying file handle.
func (s *FileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	return s.file.Close()
}

// SliceSource serves a fixed in-memory credential list. Used by tests and by
// callers that already hold their candidates.
type SliceSource struct {
	mu    sync.Mutex
	creds []Credential
	next  int
}

// NewSliceSource wraps a credential slice in a Source.
func NewSliceSource(creds []Credential) *SliceSource {
	return &SliceSource{creds: creds}
}

// Next pops the next pair or returns ErrExhausted.
func (s *SliceSource) Next() (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.creds) {
		return Credential{}, ErrExhausted
	}
	c := s.creds[s.next]
	s.next++
	return c, nil
}

// ReaderSource adapts any io.Reader into a credential stream, using the same
// parsing rules as FileSource.
type ReaderSource struct {
	mu        sync.Mutex
	scanner   *bufio.Scanner
	delimiter string
	done      bool
}

// FromReader streams credential pairs from an arbitrary reader.
func FromReader(r io.Reader, delimiter string) *ReaderSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &ReaderSource{scanner: scanner, delimiter: delimiter}
}

// Next pops the next parsable pair or returns ErrExhausted.
func (s *ReaderSource) Next() (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return Credential{}, ErrExhausted
	}
	for s.scanner.Scan() {
		if cred, ok := ParseLine(s.scanner.Text(), s.delimiter); ok {
			return cred, nil
		}
	}
	s.done = true
	if err := s.scanner.Err(); err != nil {
		return Credential{}, fmt.Errorf("credential stream read failed: %w", err)
	}
	return Credential{}, ErrExhausted
}
