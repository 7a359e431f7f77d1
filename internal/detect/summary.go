package detect

import (
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ResponseSummary is a normalized digest of one HTTP exchange against the
// login endpoint. It is constructed once by the transport layer and never
// mutated afterwards; everything the detector needs to reason about a
// response lives here so the raw body can be discarded early.
type ResponseSummary struct {
	StatusCode  int           `json:"status_code"`
	BodyLength  int           `json:"body_length"`
	FinalURL    string        `json:"final_url"`
	CookieNames []string      `json:"cookie_names,omitempty"`
	Elapsed     time.Duration `json:"-"`
}

// MarshalJSON emits the elapsed time in milliseconds; a raw time.Duration
// would serialize as nanoseconds under a millisecond label.
func (r ResponseSummary) MarshalJSON() ([]byte, error) {
	type plain ResponseSummary
	return json.Marshal(struct {
		plain
		ElapsedMS int64 `json:"elapsed_ms"`
	}{plain(r), r.Elapsed.Milliseconds()})
}

// NewResponseSummary builds an immutable summary. Cookie names are
// deduplicated and sorted so summaries compare deterministically.
func NewResponseSummary(status, bodyLength int, finalURL string, cookieNames []string, elapsed time.Duration) ResponseSummary {
	if bodyLength < 0 {
		bodyLength = 0
	}

	seen := make(map[string]struct{}, len(cookieNames))
	names := make([]string, 0, len(cookieNames))
	for _, n := range cookieNames {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		names = append(names, n)
	}
	sort.Strings(names)

	return ResponseSummary{
		StatusCode:  status,
		BodyLength:  bodyLength,
		FinalURL:    finalURL,
		CookieNames: names,
		Elapsed:     elapsed,
	}
}
