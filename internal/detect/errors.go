package detect

import "fmt"

// CalibrationError indicates the calibration phase could not produce a usable
// sample set. It is fatal: without a failure signature there is nothing safe
// to score candidates against.
type CalibrationError struct {
	Reason string
	Err    error
}

func (e *CalibrationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("calibration failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("calibration failed: %s", e.Reason)
}

func (e *CalibrationError) Unwrap() error { return e.Err }

// InsufficientSampleError indicates the pattern analyzer was handed an empty
// calibration sample. Also fatal, same stage as CalibrationError.
type InsufficientSampleError struct {
	Got int
}

func (e *InsufficientSampleError) Error() string {
	return fmt.Sprintf("insufficient calibration sample: need at least 1 summary, got %d", e.Got)
}
