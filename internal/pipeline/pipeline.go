// Package pipeline drives candidate testing: a fixed pool of workers pulls
// credential pairs from a shared source, submits each one over the transport,
// scores the response against the shared failure signature, and streams
// verdicts to the consumer as they complete.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/loginprobe/internal/detect"
	"github.com/xkilldash9x/loginprobe/internal/input"
)

// Worker count bounds. One worker degenerates to the sequential checker;
// past twenty the target's rate limiting dominates any throughput gain.
const (
	MinWorkerCount     = 1
	MaxWorkerCount     = 20
	DefaultWorkerCount = 5

	// DefaultRequestPacing is the minimum delay between request starts
	// issued by the same worker.
	DefaultRequestPacing = 2 * time.Second
)

// CredentialSource is the pipeline's view of the credential input. Next must
// be safe for concurrent callers and must return input.ErrExhausted once the
// sequence is drained; every pair is handed to exactly one caller.
type CredentialSource interface {
	Next() (input.Credential, error)
}

// Pipeline owns one run of candidate testing. The failure signature is
// shared read-only with every worker; the run counters live behind the
// pipeline mutex and reset on every Run call.
type Pipeline struct {
	submit    detect.SubmitFunc
	scorer    *detect.Scorer
	signature *detect.FailureSignature

	workerCount int
	pacing      time.Duration
	logger      *zap.Logger

	mu       sync.Mutex
	tested   int
	suspects int
	elapsed  time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWorkerCount sets the number of concurrent workers, clamped to [1, 20].
func WithWorkerCount(n int) Option {
	return func(p *Pipeline) {
		if n < MinWorkerCount {
			n = MinWorkerCount
		}
		if n > MaxWorkerCount {
			n = MaxWorkerCount
		}
		p.workerCount = n
	}
}

// WithRequestPacing sets the per-worker minimum delay between request
// starts. Zero or negative disables pacing.
func WithRequestPacing(d time.Duration) Option {
	return func(p *Pipeline) { p.pacing = d }
}

// New builds a pipeline around a transport, a scorer and the calibrated
// signature. The signature must not be mutated after this call.
func New(submit detect.SubmitFunc, scorer *detect.Scorer, signature *detect.FailureSignature, logger *zap.Logger, opts ...Option) (*Pipeline, error) {
	if submit == nil {
		return nil, errors.New("pipeline requires a submit function")
	}
	if scorer == nil {
		return nil, errors.New("pipeline requires a scorer")
	}
	if signature == nil {
		return nil, errors.New("pipeline requires a failure signature")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pipeline{
		submit:      submit,
		scorer:      scorer,
		signature:   signature,
		workerCount: DefaultWorkerCount,
		pacing:      DefaultRequestPacing,
		logger:      logger.Named("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run launches the worker pool and returns the verdict stream. The channel
// is unbuffered so verdicts can be consumed (logged, persisted) as they
// complete rather than buffered until the end; it closes once every worker
// has exited. Cancelling ctx stops workers from pulling further pairs, but
// in-flight requests run to completion and still emit their verdict.
func (p *Pipeline) Run(ctx context.Context, source CredentialSource) <-chan Verdict {
	p.mu.Lock()
	p.tested, p.suspects, p.elapsed = 0, 0, 0
	p.mu.Unlock()

	out := make(chan Verdict)

	go func() {
		defer close(out)
		start := time.Now()

		var wg sync.WaitGroup
		for i := 1; i <= p.workerCount; i++ {
			wg.Add(1)
			go p.runWorker(ctx, i, source, out, &wg)
		}
		wg.Wait()

		p.mu.Lock()
		p.elapsed = time.Since(start)
		p.mu.Unlock()

		if ctx.Err() != nil {
			p.logger.Warn("Pipeline stopped early", zap.Error(ctx.Err()))
		}
	}()

	return out
}

// Stats returns the current run counters. The Elapsed field is only
// meaningful once the verdict channel has closed.
func (p *Pipeline) Stats() Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Summary{Tested: p.tested, Suspects: p.suspects, Elapsed: p.elapsed}
}

// runWorker is the per-slot loop: pace, pull, submit, score, report. A panic
// anywhere in the cycle is contained to this slot; the deferred handler
// respawns the worker so sibling slots and overall forward progress are
// unaffected.
func (p *Pipeline) runWorker(ctx context.Context, id int, source CredentialSource, out chan<- Verdict, wg *sync.WaitGroup) {
	defer wg.Done()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Worker faulted, restarting slot",
				zap.Int("worker_id", id),
				zap.Any("panic", r),
			)
			wg.Add(1)
			go p.runWorker(ctx, id, source, out, wg)
		}
	}()

	logger := p.logger.With(zap.Int("worker_id", id))

	// Burst 1 with a full initial bucket: the first request starts
	// immediately, every subsequent one waits out the pacing interval.
	var limiter *rate.Limiter
	if p.pacing > 0 {
		limiter = rate.NewLimiter(rate.Every(p.pacing), 1)
	}

	for {
		if ctx.Err() != nil {
			logger.Debug("Stop signal raised, worker exiting")
			return
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
		}

		cred, err := source.Next()
		if errors.Is(err, input.ErrExhausted) {
			logger.Debug("Credential source drained, worker exiting")
			return
		}
		if err != nil {
			logger.Error("Credential source failed, worker exiting", zap.Error(err))
			return
		}

		// The attempt is detached from the stop signal so a raised stop
		// lets the in-flight exchange finish; the transport's own request
		// timeout still bounds it.
		verdict := p.process(context.WithoutCancel(ctx), cred)
		p.record(verdict)
		out <- verdict
	}
}

// process runs the submit-score cycle for one pair. Transport failures are
// recovered here: they become REJECTED verdicts carrying the failure reason,
// never worker crashes.
func (p *Pipeline) process(ctx context.Context, cred input.Credential) Verdict {
	summary, err := p.submit(ctx, cred.Username, cred.Password)
	if err != nil {
		return Verdict{
			Username:       cred.Username,
			Password:       cred.Password,
			Score:          0,
			Reasons:        []string{fmt.Sprintf("transport failure: %v", err)},
			Classification: detect.Rejected,
		}
	}

	points, reasons := p.scorer.Score(summary, p.signature)
	return Verdict{
		Username:       cred.Username,
		Password:       cred.Password,
		Score:          points,
		Reasons:        reasons,
		Summary:        summary,
		Classification: p.scorer.Classify(points),
	}
}

func (p *Pipeline) record(v Verdict) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tested++
	if v.Classification == detect.Suspect {
		p.suspects++
	}
}
