package detect

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SubmitFunc performs one login attempt and reports the normalized outcome.
// The detector treats the transport as opaque: TLS, cookies and header
// construction are the caller's concern. A non-nil error means the attempt
// failed at the transport level and no summary exists.
type SubmitFunc func(ctx context.Context, username, password string) (ResponseSummary, error)

// Calibrator learns the shape of a rejected login by submitting credentials
// that are guaranteed not to belong to any real account. It runs strictly
// sequentially and must complete before any candidate testing starts, since
// the resulting sample is the precondition for the failure signature.
type Calibrator struct {
	submit SubmitFunc
	pacing time.Duration
	logger *zap.Logger
}

// NewCalibrator wires a calibrator to the given transport. pacing is the
// delay between consecutive probes; zero disables it.
func NewCalibrator(submit SubmitFunc, pacing time.Duration, logger *zap.Logger) *Calibrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calibrator{
		submit: submit,
		pacing: pacing,
		logger: logger.Named("calibrator"),
	}
}

// Run sends count probe attempts with synthesized credentials and collects
// one ResponseSummary per successful exchange. It fails with a
// *CalibrationError when count < 1 or when every single probe dies at the
// transport level; partial transport failures only shrink the sample.
func (c *Calibrator) Run(ctx context.Context, count int) ([]ResponseSummary, error) {
	if count < 1 {
		return nil, &CalibrationError{Reason: fmt.Sprintf("probe count must be at least 1, got %d", count)}
	}

	c.logger.Info("Starting calibration phase", zap.Int("probes", count))

	summaries := make([]ResponseSummary, 0, count)
	var lastErr error

	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, &CalibrationError{Reason: "calibration cancelled", Err: err}
		}

		// Random credentials cannot collide with a real account.
		username := "calib-" + uuid.NewString()
		password := uuid.NewString()

		summary, err := c.submit(ctx, username, password)
		if err != nil {
			lastErr = err
			c.logger.Warn("Calibration probe failed at transport level",
				zap.Int("probe", i+1),
				zap.Error(err),
			)
		} else {
			summaries = append(summaries, summary)
			c.logger.Debug("Calibration probe recorded",
				zap.Int("probe", i+1),
				zap.Int("status", summary.StatusCode),
				zap.Int("body_length", summary.BodyLength),
				zap.String("final_url", summary.FinalURL),
			)
		}

		if c.pacing > 0 && i < count-1 {
			select {
			case <-time.After(c.pacing):
			case <-ctx.Done():
				return nil, &CalibrationError{Reason: "calibration cancelled", Err: ctx.Err()}
			}
		}
	}

	if len(summaries) == 0 {
		return nil, &CalibrationError{Reason: "every probe failed, target unreachable", Err: lastErr}
	}

	c.logger.Info("Calibration complete", zap.Int("collected", len(summaries)), zap.Int("requested", count))
	return summaries, nil
}
