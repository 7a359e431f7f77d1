package pipeline

import (
	"time"

	"github.com/xkilldash9x/loginprobe/internal/detect"
)

// Verdict is the terminal record for one tested credential pair. It is
// created by exactly one worker, never mutated afterwards, and handed to the
// consumer over the pipeline's output channel.
type Verdict struct {
	Username       string                 `json:"username"`
	Password       string                 `json:"password"`
	Score          int                    `json:"score"`
	Reasons        []string               `json:"reasons,omitempty"`
	Summary        detect.ResponseSummary `json:"summary"`
	Classification detect.Classification  `json:"classification"`
}

// Summary aggregates one pipeline run. Counters are owned by the pipeline
// behind its mutex; this is the read-only snapshot handed out at completion.
type Summary struct {
	Tested   int           `json:"tested"`
	Suspects int           `json:"suspects"`
	Elapsed  time.Duration `json:"elapsed"`
}
