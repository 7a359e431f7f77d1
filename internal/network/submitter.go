package network

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/loginprobe/internal/detect"
)

// Browser-like request headers. Login endpoints frequently vary their
// responses on User-Agent, so the prober presents as a mainstream browser to
// keep calibration and candidate responses comparable.
var defaultHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.5",
	"Connection":      "keep-alive",
}

// Submitter performs form-encoded login attempts against one target and
// normalizes each exchange into a detect.ResponseSummary. It is safe for
// concurrent use: the underlying client, its transport and its cookie jar
// all tolerate concurrent callers.
type Submitter struct {
	client        *Client
	loginURL      string
	usernameField string
	passwordField string
	logger        *zap.Logger
}

// SubmitterOption configures a Submitter.
type SubmitterOption func(*Submitter)

// WithFormFields overrides the username and password form field names.
func WithFormFields(usernameField, passwordField string) SubmitterOption {
	return func(s *Submitter) {
		if usernameField != "" {
			s.usernameField = usernameField
		}
		if passwordField != "" {
			s.passwordField = passwordField
		}
	}
}

// NewSubmitter validates the target URL and wires a submitter to the client.
func NewSubmitter(client *Client, loginURL string, logger *zap.Logger, opts ...SubmitterOption) (*Submitter, error) {
	if client == nil {
		return nil, fmt.Errorf("submitter requires a client")
	}
	parsed, err := url.Parse(loginURL)
	if err != nil {
		return nil, fmt.Errorf("invalid login URL %q: %w", loginURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("login URL %q must use http or https", loginURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Submitter{
		client:        client,
		loginURL:      loginURL,
		usernameField: "username",
		passwordField: "password",
		logger:        logger.Named("submitter"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Submit posts one credential pair and digests the exchange. It satisfies
// detect.SubmitFunc. Errors are transport-level only; any HTTP status is a
// valid summary, never an error.
func (s *Submitter) Submit(ctx context.Context, username, password string) (detect.ResponseSummary, error) {
	form := url.Values{}
	form.Set(s.usernameField, username)
	form.Set(s.passwordField, password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return detect.ResponseSummary{}, fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range defaultHeaders {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return detect.ResponseSummary{}, fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	// Only the decoded length matters for scoring; the body itself is
	// discarded as it streams.
	bodyLen, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return detect.ResponseSummary{}, fmt.Errorf("failed to read login response body: %w", err)
	}
	elapsed := time.Since(start)

	// resp.Request points at the last request of the redirect chain.
	finalURL := s.loginURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	names := make([]string, 0, len(resp.Cookies()))
	for _, c := range resp.Cookies() {
		names = append(names, c.Name)
	}
	if s.client.Jar != nil && resp.Request != nil && resp.Request.URL != nil {
		// Cookies set earlier in the redirect chain live in the jar, not on
		// the final response.
		for _, c := range s.client.Jar.Cookies(resp.Request.URL) {
			names = append(names, c.Name)
		}
	}

	summary := detect.NewResponseSummary(resp.StatusCode, int(bodyLen), finalURL, names, elapsed)

	s.logger.Debug("Login attempt completed",
		zap.Int("status", summary.StatusCode),
		zap.Int("body_length", summary.BodyLength),
		zap.String("final_url", summary.FinalURL),
		zap.Duration("elapsed", elapsed),
	)

	return summary, nil
}
