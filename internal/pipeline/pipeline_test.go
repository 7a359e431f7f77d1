package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/loginprobe/internal/detect"
	"github.com/xkilldash9x/loginprobe/internal/input"
)

func testSignature() *detect.FailureSignature {
	return &detect.FailureSignature{
		ExpectedStatus: 401,
		StatusReliable: true,
		LengthLow:      990,
		LengthHigh:     1010,
		ExpectedURL:    "/login",
		URLReliable:    true,
		ToleranceRatio: 0.01,
		SampleCount:    5,
	}
}

// consensusSummary matches the signature exactly, scoring zero.
func consensusSummary() detect.ResponseSummary {
	return detect.ResponseSummary{StatusCode: 401, BodyLength: 1000, FinalURL: "/login"}
}

func credentials(n int) []input.Credential {
	creds := make([]input.Credential, 0, n)
	for i := 0; i < n; i++ {
		creds = append(creds, input.Credential{
			Username: fmt.Sprintf("user%03d", i),
			Password: fmt.Sprintf("pass%03d", i),
		})
	}
	return creds
}

func newTestPipeline(t *testing.T, submit detect.SubmitFunc, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{WithRequestPacing(0)}, opts...)
	p, err := New(submit, detect.NewScorer(), testSignature(), zaptest.NewLogger(t), opts...)
	require.NoError(t, err)
	return p
}

func collect(t *testing.T, verdicts <-chan Verdict) []Verdict {
	t.Helper()
	var out []Verdict
	for v := range verdicts {
		out = append(out, v)
	}
	return out
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	submit := func(context.Context, string, string) (detect.ResponseSummary, error) {
		return consensusSummary(), nil
	}
	scorer := detect.NewScorer()
	logger := zaptest.NewLogger(t)

	_, err := New(nil, scorer, testSignature(), logger)
	assert.Error(t, err)

	_, err = New(submit, nil, testSignature(), logger)
	assert.Error(t, err)

	_, err = New(submit, scorer, nil, logger)
	assert.Error(t, err)
}

func TestWithWorkerCount_Clamped(t *testing.T) {
	t.Parallel()

	submit := func(context.Context, string, string) (detect.ResponseSummary, error) {
		return consensusSummary(), nil
	}

	p := newTestPipeline(t, submit, WithWorkerCount(0))
	assert.Equal(t, MinWorkerCount, p.workerCount)

	p = newTestPipeline(t, submit, WithWorkerCount(500))
	assert.Equal(t, MaxWorkerCount, p.workerCount)
}

// Ten workers against a consensus-only transport: every pair is tested
// exactly once, nothing is flagged, nothing is corrupted.
func TestRun_ConcurrencySafety(t *testing.T) {
	defer goleak.VerifyNone(t)

	creds := credentials(100)

	var mu sync.Mutex
	tested := make(map[string]int)

	submit := func(_ context.Context, username, _ string) (detect.ResponseSummary, error) {
		mu.Lock()
		tested[username]++
		mu.Unlock()
		return consensusSummary(), nil
	}

	p := newTestPipeline(t, submit, WithWorkerCount(10))
	verdicts := collect(t, p.Run(context.Background(), input.NewSliceSource(creds)))

	assert.Len(t, verdicts, len(creds))
	for _, v := range verdicts {
		assert.Equal(t, detect.Rejected, v.Classification)
		assert.Zero(t, v.Score)
	}

	assert.Len(t, tested, len(creds), "every pair reaches the transport")
	for username, n := range tested {
		assert.Equal(t, 1, n, "pair %s submitted more than once", username)
	}

	stats := p.Stats()
	assert.Equal(t, len(creds), stats.Tested)
	assert.Zero(t, stats.Suspects)
	assert.Greater(t, stats.Elapsed, time.Duration(0))
}

func TestRun_FlagsDeviatingResponses(t *testing.T) {
	defer goleak.VerifyNone(t)

	submit := func(_ context.Context, username, _ string) (detect.ResponseSummary, error) {
		if username == "user007" {
			// A successful login: redirect to the dashboard.
			return detect.ResponseSummary{StatusCode: 302, BodyLength: 250, FinalURL: "/dashboard"}, nil
		}
		return consensusSummary(), nil
	}

	p := newTestPipeline(t, submit, WithWorkerCount(4))
	verdicts := collect(t, p.Run(context.Background(), input.NewSliceSource(credentials(20))))

	var suspects []Verdict
	for _, v := range verdicts {
		if v.Classification == detect.Suspect {
			suspects = append(suspects, v)
		}
	}
	require.Len(t, suspects, 1)
	assert.Equal(t, "user007", suspects[0].Username)
	assert.Equal(t, 8, suspects[0].Score, "status, length and url all deviate")

	stats := p.Stats()
	assert.Equal(t, 20, stats.Tested)
	assert.Equal(t, 1, stats.Suspects)
}

// A transport failure becomes a REJECTED verdict carrying the reason; the
// worker moves on to the next pair.
func TestRun_TransportFailureIsRecovered(t *testing.T) {
	defer goleak.VerifyNone(t)

	submit := func(_ context.Context, username, _ string) (detect.ResponseSummary, error) {
		if username == "user003" {
			return detect.ResponseSummary{}, errors.New("dial tcp: connection refused")
		}
		return consensusSummary(), nil
	}

	p := newTestPipeline(t, submit, WithWorkerCount(3))
	verdicts := collect(t, p.Run(context.Background(), input.NewSliceSource(credentials(10))))

	require.Len(t, verdicts, 10)

	var failed *Verdict
	for i := range verdicts {
		if verdicts[i].Username == "user003" {
			failed = &verdicts[i]
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, detect.Rejected, failed.Classification)
	assert.Zero(t, failed.Score)
	require.Len(t, failed.Reasons, 1)
	assert.True(t, strings.HasPrefix(failed.Reasons[0], "transport failure:"))
	assert.Contains(t, failed.Reasons[0], "connection refused")
}

// A panicking attempt kills neither its worker slot nor the run: the slot
// restarts and all remaining pairs still get verdicts.
func TestRun_WorkerPanicIsIsolated(t *testing.T) {
	defer goleak.VerifyNone(t)

	submit := func(_ context.Context, username, _ string) (detect.ResponseSummary, error) {
		if username == "user005" {
			panic("poisoned pair")
		}
		return consensusSummary(), nil
	}

	p := newTestPipeline(t, submit, WithWorkerCount(3))
	verdicts := collect(t, p.Run(context.Background(), input.NewSliceSource(credentials(30))))

	// The poisoned pair produces no verdict; every other pair does.
	assert.Len(t, verdicts, 29)
	for _, v := range verdicts {
		assert.NotEqual(t, "user005", v.Username)
	}
}

// Cancellation lets in-flight requests finish and emit verdicts, but no new
// pairs are pulled afterwards.
func TestRun_CancellationStopsPulling(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())

	inFlight := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	submit := func(_ context.Context, _, _ string) (detect.ResponseSummary, error) {
		once.Do(func() { close(inFlight) })
		<-release
		return consensusSummary(), nil
	}

	p := newTestPipeline(t, submit, WithWorkerCount(1))
	verdicts := p.Run(ctx, input.NewSliceSource(credentials(50)))

	// Wait for the first request to be in flight, then raise the stop
	// signal and let it complete.
	<-inFlight
	cancel()
	close(release)

	collected := collect(t, verdicts)
	require.NotEmpty(t, collected, "the in-flight request still emits its verdict")
	assert.LessOrEqual(t, len(collected), 2)
	assert.Equal(t, detect.Rejected, collected[0].Classification,
		"in-flight attempt completes normally despite the stop signal")
}

func TestRun_EmptySource(t *testing.T) {
	defer goleak.VerifyNone(t)

	submit := func(context.Context, string, string) (detect.ResponseSummary, error) {
		t.Error("submit must not be called for an empty source")
		return consensusSummary(), nil
	}

	p := newTestPipeline(t, submit, WithWorkerCount(5))
	verdicts := collect(t, p.Run(context.Background(), input.NewSliceSource(nil)))

	assert.Empty(t, verdicts)
	assert.Zero(t, p.Stats().Tested)
}

// Counters reset between runs.
func TestRun_StateResetsPerInvocation(t *testing.T) {
	defer goleak.VerifyNone(t)

	submit := func(context.Context, string, string) (detect.ResponseSummary, error) {
		return consensusSummary(), nil
	}

	p := newTestPipeline(t, submit, WithWorkerCount(2))

	collect(t, p.Run(context.Background(), input.NewSliceSource(credentials(7))))
	assert.Equal(t, 7, p.Stats().Tested)

	collect(t, p.Run(context.Background(), input.NewSliceSource(credentials(3))))
	assert.Equal(t, 3, p.Stats().Tested)
}
