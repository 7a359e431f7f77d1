// Package results owns the output side of a run: thread-safe counters and
// the suspect record stream. Workers never touch the output file or the
// counters directly; everything funnels through the sink's Record call.
package results

import (
	"fmt"
	"os"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/loginprobe/internal/detect"
	"github.com/xkilldash9x/loginprobe/internal/pipeline"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// progressInterval controls how often rejected-verdict progress is logged.
const progressInterval = 10

// SuspectRecord is the persisted form of a SUSPECT verdict, appended to the
// output file as one JSON line the moment the verdict arrives.
type SuspectRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	Score     int       `json:"score"`
	Reasons   []string  `json:"reasons,omitempty"`
	FinalURL  string    `json:"final_url,omitempty"`
	Status    int       `json:"status,omitempty"`
}

// Sink is the single consumer of the verdict stream. All mutation happens
// behind its mutex: counter updates and file appends are atomic with respect
// to each other, so records are never interleaved or double counted.
type Sink struct {
	mu       sync.Mutex
	out      *os.File
	tested   int
	suspects int
	logger   *zap.Logger
}

// NewSink opens (appending) the suspect output file. An empty path disables
// persistence; verdicts are still counted and logged.
func NewSink(suspectPath string, logger *zap.Logger) (*Sink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Sink{logger: logger.Named("results")}

	if suspectPath != "" {
		f, err := os.OpenFile(suspectPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open suspect output file: %w", err)
		}
		s.out = f
	}

	return s, nil
}

// Record ingests one verdict: updates the counters and, for suspects,
// appends a JSON record and logs the hit immediately so operators can act
// before the run finishes.
func (s *Sink) Record(v pipeline.Verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tested++

	if v.Classification != detect.Suspect {
		if s.tested%progressInterval == 0 {
			s.logger.Info("Progress", zap.Int("tested", s.tested), zap.Int("suspects", s.suspects))
		}
		return nil
	}

	s.suspects++
	s.logger.Warn("Potential hit",
		zap.String("username", v.Username),
		zap.Int("score", v.Score),
		zap.Strings("reasons", v.Reasons),
	)

	if s.out == nil {
		return nil
	}

	rec := SuspectRecord{
		Timestamp: time.Now().UTC(),
		Username:  v.Username,
		Password:  v.Password,
		Score:     v.Score,
		Reasons:   v.Reasons,
		FinalURL:  v.Summary.FinalURL,
		Status:    v.Summary.StatusCode,
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal suspect record: %w", err)
	}
	if _, err := s.out.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append suspect record: %w", err)
	}
	return nil
}

// Drain consumes the verdict stream until it closes and reports the first
// persistence failure. The stream is always drained to the end even after a
// failed append: stopping early would block the workers feeding the channel,
// and counting must survive the loss of a file write.
func (s *Sink) Drain(verdicts <-chan pipeline.Verdict) error {
	var firstErr error
	for v := range verdicts {
		if err := s.Record(v); err != nil {
			s.logger.Error("Failed to record verdict", zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Counts returns the current counters.
func (s *Sink) Counts() (tested, suspects int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tested, s.suspects
}

// Close flushes and releases the output file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out == nil {
		return nil
	}
	err := s.out.Close()
	s.out = nil
	return err
}
